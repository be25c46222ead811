// Package daemonrt builds the fully wired Dispatcher shared by cmd/calmd
// and the short-lived cmd/calm-hook-* binaries, so every process that
// touches the stores constructs the same component graph the same way.
package daemonrt

import (
	"fmt"
	"os"

	"calmd/internal/config"
	ctxassembler "calmd/internal/context"
	"calmd/internal/dispatch"
	"calmd/internal/embedding"
	"calmd/internal/ghap"
	"calmd/internal/gitlock"
	"calmd/internal/review"
	"calmd/internal/search"
	"calmd/internal/store"
	"calmd/internal/values"
	"calmd/internal/worktree"
)

// Build opens the metadata and vector stores under cfg.Home and returns a
// Dispatcher wired over them, plus a cleanup func that closes the stores.
// Hook binaries and the daemon both call this; SQLite's WAL mode lets the
// two kinds of process hold independent connections to the same files
// safely, so a hook never has to wait on the daemon being up to read state.
func Build(cfg *config.Config) (*dispatch.Dispatcher, func(), error) {
	gitlock.SetLimit(cfg.CoreLimits.MaxConcurrentGitOps)

	meta, err := store.NewMetadataStore(cfg.MetadataDBPath())
	if err != nil {
		return nil, nil, fmt.Errorf("open metadata store: %w", err)
	}

	vec := store.NewVectorStore(meta.DB())

	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		Dimensions:     cfg.Embedding.Dimensions,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		TaskType:       cfg.Embedding.TaskType,
	})
	if err != nil {
		meta.Close()
		return nil, nil, fmt.Errorf("build embedding engine: %w", err)
	}

	gate := map[string][]review.Requirement{}
	for transition, reqs := range cfg.Gate.Requirements {
		converted := make([]review.Requirement, 0, len(reqs))
		for _, r := range reqs {
			converted = append(converted, review.Requirement{
				Description: r.Description,
				Automated:   r.Automated,
				Check:       review.RunShellCheck(r.Name, r.Command),
			})
		}
		gate[transition] = converted
	}

	wd, err := os.Getwd()
	if err != nil {
		wd = "."
	}
	mainRepo := worktree.DetectMainRepo(wd)

	d := dispatch.New(cfg.Name, cfg.Version)
	d.Meta = meta
	d.Vec = vec
	d.Collector = ghap.New(meta, vec, engine)
	d.Searcher = search.New(vec, engine)
	d.Values = values.New(meta, vec, engine)
	d.Assembler = ctxassembler.New()
	d.Worktree = worktree.New(meta, mainRepo)
	d.Review = review.New(meta, mainRepo)
	d.Gate = gate

	cleanup := func() { meta.Close() }
	return d, cleanup, nil
}

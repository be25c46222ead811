package values

import (
	"context"
	"fmt"
	"time"

	"calmd/internal/logging"
	"calmd/internal/model"
	"calmd/internal/store"
)

// ReflectionWorker periodically re-scores resolved GHAP entries' surprise
// text against the surprise axis's current clusters and promotes any that
// land close enough to an existing centroid into a Value, so lessons worth
// keeping don't require a human to notice and call store_value by hand.
// Supplemented from the original system's reflection concept (DESIGN.md).
type ReflectionWorker struct {
	store    *Store
	meta     *store.MetadataStore
	interval time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewReflectionWorker builds a worker over the shared Value Store and
// metadata store, ticking every interval.
func NewReflectionWorker(s *Store, meta *store.MetadataStore, interval time.Duration) *ReflectionWorker {
	return &ReflectionWorker{store: s, meta: meta, interval: interval, stop: make(chan struct{}), done: make(chan struct{})}
}

// Start runs the worker loop in its own goroutine until Stop is called or
// ctx is canceled.
func (w *ReflectionWorker) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-w.stop:
				return
			case <-ticker.C:
				n, err := w.RunOnce(ctx)
				if err != nil {
					logging.ValuesWarn("reflection worker pass failed: %v", err)
					continue
				}
				if n > 0 {
					logging.Values("reflection worker promoted %d value(s)", n)
				}
			}
		}
	}()
}

// Stop signals the worker loop to exit and waits for it to do so.
func (w *ReflectionWorker) Stop() {
	close(w.stop)
	<-w.done
}

// reflectedCounterName keys the dedup counter used to avoid re-scoring the
// same GHAP entry's surprise text on every tick.
func reflectedCounterName(ghapID string) string {
	return fmt.Sprintf("reflected_%s", ghapID)
}

// RunOnce scans resolved GHAP entries with unreflected surprise text,
// scores each against the surprise axis's clusters, and promotes any that
// clear SimilarityThreshold into a Value. It returns the number promoted.
func (w *ReflectionWorker) RunOnce(ctx context.Context) (int, error) {
	entries, err := w.meta.ListGHAP("", "", 0)
	if err != nil {
		return 0, err
	}

	promoted := 0
	for _, e := range entries {
		if e.Surprise == "" {
			continue
		}

		seen, err := w.meta.GetCounter(reflectedCounterName(e.ID))
		if err != nil {
			return promoted, err
		}
		if seen > 0 {
			continue
		}

		clusterID, similarity, err := w.store.NearestCluster(ctx, model.AxisSurprise, e.Surprise)
		if err != nil {
			logging.ValuesWarn("reflection worker: failed to score ghap %s: %v", e.ID, err)
			continue
		}
		if clusterID != "" && similarity >= SimilarityThreshold {
			if _, err := w.store.Store(ctx, e.Surprise, clusterID, model.AxisSurprise); err == nil {
				promoted++
			} else {
				logging.ValuesWarn("reflection worker: failed to promote ghap %s surprise into a value: %v", e.ID, err)
			}
		}

		if err := w.meta.SetCounter(reflectedCounterName(e.ID), 1); err != nil {
			logging.ValuesWarn("reflection worker: failed to mark ghap %s reflected: %v", e.ID, err)
		}
	}
	return promoted, nil
}

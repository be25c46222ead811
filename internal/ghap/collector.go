// Package ghap implements the Observation Collector: validating, persisting,
// and resolving the single active GHAP (Goal/Hypothesis/Action/Prediction)
// hypothesis record, and embedding its axis text into the four parallel
// vector collections the Clusterer and Searcher read from.
package ghap

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"calmd/internal/calmerr"
	"calmd/internal/embedding"
	"calmd/internal/logging"
	"calmd/internal/model"
	"calmd/internal/store"
)

// Collector is the Observation Collector component.
type Collector struct {
	meta   *store.MetadataStore
	vec    *store.VectorStore
	engine embedding.EmbeddingEngine
}

// New builds a Collector over the shared Metadata and Vector stores.
func New(meta *store.MetadataStore, vec *store.VectorStore, engine embedding.EmbeddingEngine) *Collector {
	return &Collector{meta: meta, vec: vec, engine: engine}
}

// axisCollection returns the named vector collection for a GHAP axis,
// following the "ghap_{axis}" convention.
func axisCollection(axis model.Axis) string {
	return "ghap_" + string(axis)
}

// Start validates inputs, enforces the single-active invariant, and
// persists a new entry with iteration_count=1. Returns only the new id.
func (c *Collector) Start(domain, strategy, goal, hypothesis, action, prediction string) (string, error) {
	if err := validateEnum("domain", domain, stringsOf(model.ValidDomains)); err != nil {
		return "", err
	}
	if err := validateEnum("strategy", strategy, stringsOf(model.ValidStrategies)); err != nil {
		return "", err
	}
	for _, f := range []struct{ name, val string }{
		{"goal", goal}, {"hypothesis", hypothesis}, {"action", action}, {"prediction", prediction},
	} {
		if strings.TrimSpace(f.val) == "" {
			return "", calmerr.New(calmerr.KindValidation, "%s must not be empty", f.name)
		}
	}

	active, err := c.meta.ActiveGHAP()
	if err != nil {
		return "", calmerr.Wrap(calmerr.KindInternal, err, "failed to check for an active entry")
	}
	if active != nil {
		return "", calmerr.New(calmerr.KindActiveGHAPExists,
			"entry %s is already active; resolve it with resolve_ghap or mutate it with update_ghap before starting a new one", active.ID)
	}

	e := &model.GHAPEntry{
		ID:             "ghap_" + uuid.NewString(),
		Domain:         model.Domain(domain),
		Strategy:       model.Strategy(strategy),
		Goal:           goal,
		Hypothesis:     hypothesis,
		Action:         action,
		Prediction:     prediction,
		IterationCount: 1,
		Status:         "active",
		CreatedAt:      time.Now().UTC(),
	}
	if err := c.meta.InsertGHAP(e); err != nil {
		if calmerr.KindOf(err) == calmerr.KindActiveGHAPExists {
			// Lost the race with a concurrent start; report the winner's id
			// the same way the pre-insert check does.
			if winner, lookupErr := c.meta.ActiveGHAP(); lookupErr == nil && winner != nil {
				return "", calmerr.New(calmerr.KindActiveGHAPExists,
					"entry %s is already active; resolve it with resolve_ghap or mutate it with update_ghap before starting a new one", winner.ID)
			}
			return "", err
		}
		return "", calmerr.Wrap(calmerr.KindInternal, err, "failed to start entry")
	}

	logging.Collector("started ghap entry %s domain=%s strategy=%s", e.ID, domain, strategy)
	return e.ID, nil
}

// UpdateFields carries the mutable subset of a GHAP entry's fields. A zero
// value means "leave unchanged".
type UpdateFields struct {
	Hypothesis string
	Prediction string
}

// Update mutates the active entry's hypothesis/prediction and increments
// iteration_count. Fails if there is no active entry.
func (c *Collector) Update(fields UpdateFields) (iterationCount int, err error) {
	active, err := c.meta.ActiveGHAP()
	if err != nil {
		return 0, calmerr.Wrap(calmerr.KindInternal, err, "failed to load active entry")
	}
	if active == nil {
		return 0, calmerr.New(calmerr.KindNotFound, "no active entry to update")
	}

	if fields.Hypothesis != "" {
		active.Hypothesis = fields.Hypothesis
	}
	if fields.Prediction != "" {
		active.Prediction = fields.Prediction
	}
	active.IterationCount++

	if err := c.meta.UpdateGHAP(active); err != nil {
		return 0, calmerr.Wrap(calmerr.KindInternal, err, "failed to update entry %s", active.ID)
	}
	logging.Collector("updated ghap entry %s iteration_count=%d", active.ID, active.IterationCount)
	return active.IterationCount, nil
}

// ResolveFields carries the terminal fields set on resolution.
type ResolveFields struct {
	Status        string // confirmed | falsified | abandoned
	OutcomeResult string
	Surprise      string
	RootCause     *model.RootCause
	Lesson        *model.Lesson
}

// confidenceTierFor derives the confidence tier awarded on resolution. The
// original system leaves tier selection to human judgment at call time; here
// it is driven directly by the resolution status, which is the documented
// Open Question decision (see DESIGN.md): confirmed defaults to gold,
// falsified to bronze unless a lesson was recorded (silver), abandoned to
// the abandoned tier.
func confidenceTierFor(f ResolveFields) model.ConfidenceTier {
	switch model.OutcomeStatus(f.Status) {
	case model.OutcomeConfirmed:
		return model.TierGold
	case model.OutcomeFalsified:
		if f.Lesson != nil {
			return model.TierSilver
		}
		return model.TierBronze
	case model.OutcomeAbandoned:
		return model.TierAbandoned
	default:
		return ""
	}
}

// Resolve finalizes the active entry. Step (1) writes the terminal fields to
// the metadata store; steps (2)-(3) embed the canonical form plus the three
// per-axis fields and upsert the four axis collections. The metadata write
// is authoritative: if the process crashes between (1) and (2)-(3), the
// vector side can always be re-derived from the metadata row, so the two are
// not wrapped in one cross-store transaction.
func (c *Collector) Resolve(ctx context.Context, f ResolveFields) (string, error) {
	if err := validateEnum("status", f.Status, stringsOf(model.ValidOutcomeStatuses)); err != nil {
		return "", err
	}
	if model.OutcomeStatus(f.Status) == model.OutcomeFalsified && f.RootCause == nil {
		return "", calmerr.New(calmerr.KindValidation, "root_cause is required when status=falsified")
	}
	if f.RootCause != nil {
		if err := validateEnum("root_cause.category", string(f.RootCause.Category), stringsOf(model.ValidRootCauseCategories)); err != nil {
			return "", err
		}
	}

	active, err := c.meta.ActiveGHAP()
	if err != nil {
		return "", calmerr.Wrap(calmerr.KindInternal, err, "failed to load active entry")
	}
	if active == nil {
		return "", calmerr.New(calmerr.KindNotFound, "no active entry to resolve")
	}

	now := time.Now().UTC()
	active.Status = f.Status
	active.OutcomeResult = f.OutcomeResult
	active.Surprise = f.Surprise
	active.RootCause = f.RootCause
	active.Lesson = f.Lesson
	active.ConfidenceTier = confidenceTierFor(f)
	active.ResolvedAt = &now

	// (1) metadata write, authoritative.
	if err := c.meta.UpdateGHAP(active); err != nil {
		return "", calmerr.Wrap(calmerr.KindInternal, err, "failed to persist resolution for %s", active.ID)
	}

	// (2)-(3) embed and upsert axis vectors; best-effort relative to (1).
	if err := c.embedAxes(ctx, active); err != nil {
		logging.Get(logging.CategoryCollector).Warn(
			"resolved %s but axis embedding failed; vector state can be re-derived later: %v", active.ID, err)
	}

	logging.Collector("resolved ghap entry %s status=%s tier=%s", active.ID, active.Status, active.ConfidenceTier)
	return active.ID, nil
}

func (c *Collector) embedAxes(ctx context.Context, e *model.GHAPEntry) error {
	if c.engine == nil {
		return fmt.Errorf("no embedding engine configured")
	}

	axisText := map[model.Axis]string{
		model.AxisFull:     canonicalForm(e),
		model.AxisStrategy: string(e.Strategy),
		model.AxisSurprise: e.Surprise,
		model.AxisRootCause: func() string {
			if e.RootCause != nil {
				return e.RootCause.Description
			}
			return ""
		}(),
	}

	payload := map[string]interface{}{
		"id":              e.ID,
		"domain":          string(e.Domain),
		"status":          e.Status,
		"confidence_tier": string(e.ConfidenceTier),
	}

	// Every resolution lands one vector in each of the four axis collections,
	// empty text included, so the collections stay id-parallel. Axis text is
	// compared against other axis text (clustering, similarity search), so
	// all four share one semantic-similarity embedding space and go through
	// a single batch call.
	texts := make([]string, len(model.ValidAxes))
	for i, axis := range model.ValidAxes {
		texts[i] = axisText[axis]
	}
	vecs, err := embedding.EmbedBatchForTask(ctx, c.engine, texts,
		map[string]interface{}{"axis": string(model.AxisFull)}, false)
	if err != nil {
		return err
	}
	if len(vecs) != len(texts) {
		return fmt.Errorf("embedding backend returned %d vectors for %d texts", len(vecs), len(texts))
	}

	var firstErr error
	for i, axis := range model.ValidAxes {
		p := store.Point{ID: e.ID, Embedding: vecs[i], Payload: payload, CreatedAt: time.Now().UTC()}
		if err := c.vec.Upsert(axisCollection(axis), p); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// canonicalForm serializes the full record for the "full" axis embedding.
func canonicalForm(e *model.GHAPEntry) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "domain: %s\nstrategy: %s\ngoal: %s\nhypothesis: %s\naction: %s\nprediction: %s",
		e.Domain, e.Strategy, e.Goal, e.Hypothesis, e.Action, e.Prediction)
	if e.Surprise != "" {
		fmt.Fprintf(&sb, "\nsurprise: %s", e.Surprise)
	}
	if e.RootCause != nil {
		fmt.Fprintf(&sb, "\nroot_cause: %s - %s", e.RootCause.Category, e.RootCause.Description)
	}
	if e.Lesson != nil {
		fmt.Fprintf(&sb, "\nlesson: %s / %s", e.Lesson.WhatWorked, e.Lesson.Takeaway)
	}
	return sb.String()
}

// GetActive returns the full active record, or nil if none exists.
func (c *Collector) GetActive() (*model.GHAPEntry, error) {
	active, err := c.meta.ActiveGHAP()
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to load active entry")
	}
	return active, nil
}

// ListEntries pages across resolved entries in descending resolved_at,
// optionally filtered by domain.
func (c *Collector) ListEntries(domain string, limit int) ([]*model.GHAPEntry, error) {
	entries, err := c.meta.ListGHAP(domain, "", limit)
	if err != nil {
		return nil, calmerr.Wrap(calmerr.KindInternal, err, "failed to list entries")
	}

	resolved := entries[:0]
	for _, e := range entries {
		if e.Status != "active" {
			resolved = append(resolved, e)
		}
	}
	sort.Slice(resolved, func(i, j int) bool {
		ti, tj := resolved[i].ResolvedAt, resolved[j].ResolvedAt
		if ti == nil || tj == nil {
			return tj == nil && ti != nil
		}
		return ti.After(*tj)
	})
	return resolved, nil
}

func validateEnum(field, value string, valid []string) error {
	for _, v := range valid {
		if value == v {
			return nil
		}
	}
	return calmerr.New(calmerr.KindValidation, "%s %q is not one of: %s", field, value, strings.Join(valid, ", "))
}

func stringsOf[T ~string](vals []T) []string {
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = string(v)
	}
	return out
}

// Package model defines the shared record types persisted by the Metadata
// Store and exchanged across components.
package model

import "time"

// Closed enums (spec section 6).

type Domain string

const (
	DomainDebugging     Domain = "debugging"
	DomainRefactoring   Domain = "refactoring"
	DomainFeature       Domain = "feature"
	DomainTesting       Domain = "testing"
	DomainConfiguration Domain = "configuration"
	DomainDocumentation Domain = "documentation"
	DomainPerformance   Domain = "performance"
	DomainSecurity      Domain = "security"
	DomainIntegration   Domain = "integration"
)

var ValidDomains = []Domain{
	DomainDebugging, DomainRefactoring, DomainFeature, DomainTesting,
	DomainConfiguration, DomainDocumentation, DomainPerformance,
	DomainSecurity, DomainIntegration,
}

type Strategy string

const (
	StrategySystematicElimination Strategy = "systematic-elimination"
	StrategyTrialAndError         Strategy = "trial-and-error"
	StrategyResearchFirst         Strategy = "research-first"
	StrategyDivideAndConquer      Strategy = "divide-and-conquer"
	StrategyRootCauseAnalysis     Strategy = "root-cause-analysis"
	StrategyCopyFromSimilar       Strategy = "copy-from-similar"
	StrategyCheckAssumptions      Strategy = "check-assumptions"
	StrategyReadTheError          Strategy = "read-the-error"
	StrategyAskUser               Strategy = "ask-user"
)

var ValidStrategies = []Strategy{
	StrategySystematicElimination, StrategyTrialAndError, StrategyResearchFirst,
	StrategyDivideAndConquer, StrategyRootCauseAnalysis, StrategyCopyFromSimilar,
	StrategyCheckAssumptions, StrategyReadTheError, StrategyAskUser,
}

type RootCauseCategory string

const (
	RootCauseWrongAssumption   RootCauseCategory = "wrong-assumption"
	RootCauseMissingKnowledge  RootCauseCategory = "missing-knowledge"
	RootCauseOversight         RootCauseCategory = "oversight"
	RootCauseEnvironmentIssue  RootCauseCategory = "environment-issue"
	RootCauseMisleadingSymptom RootCauseCategory = "misleading-symptom"
	RootCauseIncompleteFix     RootCauseCategory = "incomplete-fix"
	RootCauseWrongScope        RootCauseCategory = "wrong-scope"
	RootCauseTestIsolation     RootCauseCategory = "test-isolation"
	RootCauseTimingIssue       RootCauseCategory = "timing-issue"
)

var ValidRootCauseCategories = []RootCauseCategory{
	RootCauseWrongAssumption, RootCauseMissingKnowledge, RootCauseOversight,
	RootCauseEnvironmentIssue, RootCauseMisleadingSymptom, RootCauseIncompleteFix,
	RootCauseWrongScope, RootCauseTestIsolation, RootCauseTimingIssue,
}

type Axis string

const (
	AxisFull      Axis = "full"
	AxisStrategy  Axis = "strategy"
	AxisSurprise  Axis = "surprise"
	AxisRootCause Axis = "root_cause"
)

var ValidAxes = []Axis{AxisFull, AxisStrategy, AxisSurprise, AxisRootCause}

type OutcomeStatus string

const (
	OutcomeConfirmed OutcomeStatus = "confirmed"
	OutcomeFalsified OutcomeStatus = "falsified"
	OutcomeAbandoned OutcomeStatus = "abandoned"
)

var ValidOutcomeStatuses = []OutcomeStatus{OutcomeConfirmed, OutcomeFalsified, OutcomeAbandoned}

type ConfidenceTier string

const (
	TierGold      ConfidenceTier = "gold"
	TierSilver    ConfidenceTier = "silver"
	TierBronze    ConfidenceTier = "bronze"
	TierAbandoned ConfidenceTier = "abandoned"
)

// TierWeight returns the fixed clustering weight for a confidence tier
// (spec section 3); unknown/empty tiers weight as 0.5.
func TierWeight(tier ConfidenceTier) float64 {
	switch tier {
	case TierGold:
		return 1.0
	case TierSilver:
		return 0.8
	case TierBronze:
		return 0.5
	case TierAbandoned:
		return 0.2
	default:
		return 0.5
	}
}

type TaskType string

const (
	TaskTypeFeature TaskType = "feature"
	TaskTypeBug     TaskType = "bug"
)

type ReviewType string

const (
	ReviewTypeSpec     ReviewType = "spec"
	ReviewTypeProposal ReviewType = "proposal"
	ReviewTypeCode     ReviewType = "code"
	ReviewTypeBugfix   ReviewType = "bugfix"
)

var ValidReviewTypes = []ReviewType{ReviewTypeSpec, ReviewTypeProposal, ReviewTypeCode, ReviewTypeBugfix}

type ReviewResult string

const (
	ReviewApproved         ReviewResult = "approved"
	ReviewChangesRequested ReviewResult = "changes_requested"
)

type WorkerStatus string

const (
	WorkerActive       WorkerStatus = "active"
	WorkerCompleted    WorkerStatus = "completed"
	WorkerFailed       WorkerStatus = "failed"
	WorkerSessionEnded WorkerStatus = "session_ended"
)

// GHAPEntry is the atomic hypothesis record (spec section 3).
type GHAPEntry struct {
	ID             string             `json:"id"`
	Domain         Domain             `json:"domain"`
	Strategy       Strategy           `json:"strategy"`
	Goal           string             `json:"goal"`
	Hypothesis     string             `json:"hypothesis"`
	Action         string             `json:"action"`
	Prediction     string             `json:"prediction"`
	IterationCount int                `json:"iteration_count"`
	Status         string             `json:"status"` // "active" or an OutcomeStatus value
	OutcomeResult  string             `json:"outcome_result,omitempty"`
	Surprise       string             `json:"surprise,omitempty"`
	RootCause      *RootCause         `json:"root_cause,omitempty"`
	Lesson         *Lesson            `json:"lesson,omitempty"`
	ConfidenceTier ConfidenceTier     `json:"confidence_tier,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	ResolvedAt     *time.Time         `json:"resolved_at,omitempty"`
}

type RootCause struct {
	Category    RootCauseCategory `json:"category"`
	Description string            `json:"description"`
}

type Lesson struct {
	WhatWorked string `json:"what_worked"`
	Takeaway   string `json:"takeaway"`
}

// Value is a short curated lesson anchored to a cluster (spec 4.G).
type Value struct {
	ID        string    `json:"id"`
	Text      string    `json:"text"`
	Axis      Axis      `json:"axis"`
	ClusterID string    `json:"cluster_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Memory is a small long-lived factual note used by the Context Assembler.
type Memory struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Category   string    `json:"category"`
	Importance float64   `json:"importance"`
	CreatedAt  time.Time `json:"created_at"`
}

// Task is an orchestration unit (spec section 3).
type Task struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	TaskType      TaskType  `json:"task_type"`
	Phase         string    `json:"phase"`
	SpecID        string    `json:"spec_id,omitempty"`
	Specialist    string    `json:"specialist,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	BlockedBy     []string  `json:"blocked_by,omitempty"`
	WorktreePath  string    `json:"worktree_path,omitempty"`
	ProjectPath   string    `json:"project_path"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Review is a recorded review of a task (spec section 3).
type Review struct {
	ID         string       `json:"id"`
	TaskID     string       `json:"task_id"`
	ReviewType ReviewType   `json:"review_type"`
	Result     ReviewResult `json:"result"`
	WorkerID   string       `json:"worker_id,omitempty"`
	Notes      string       `json:"notes,omitempty"`
	CreatedAt  time.Time    `json:"created_at"`
}

// Worker is a task-scoped execution participant (spec section 3).
type Worker struct {
	ID        string       `json:"id"`
	TaskID    string       `json:"task_id"`
	Role      string       `json:"role"`
	Status    WorkerStatus `json:"status"`
	StartedAt time.Time    `json:"started_at"`
	Reason    string       `json:"reason,omitempty"`
}

// SessionHandoff records end-of-session continuation state (spec section 3).
type SessionHandoff struct {
	ID                string     `json:"id"`
	HandoffContent    string     `json:"handoff_content"`
	NeedsContinuation bool       `json:"needs_continuation"`
	CreatedAt         time.Time  `json:"created_at"`
	ResumedAt         *time.Time `json:"resumed_at,omitempty"`
}

// JournalEntry is a free-form append-only note, reflected on by the
// background reflection worker.
type JournalEntry struct {
	ID         string    `json:"id"`
	Content    string    `json:"content"`
	Reflected  bool      `json:"reflected"`
	CreatedAt  time.Time `json:"created_at"`
}

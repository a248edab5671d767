package model

import "time"

// PhaseStatus represents the current state of a pipeline phase.
type PhaseStatus string

const (
	PhaseStatusRunning  PhaseStatus = "running"
	PhaseStatusComplete PhaseStatus = "complete"
	PhaseStatusFailed   PhaseStatus = "failed"
	PhaseStatusSkipped  PhaseStatus = "skipped"
)

// PhaseResult holds the outcome of a pipeline phase.
type PhaseResult struct {
	Name     string         `json:"name"`
	Status   PhaseStatus    `json:"status"`
	Duration int64          `json:"duration_ms"`
	Error    string         `json:"error,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// RunHistory is the append-only summary of one pipeline execution.
type RunHistory struct {
	ID                       string         `json:"id"`
	RunDate                  string         `json:"run_date"`
	OperatorsFound           int            `json:"multi_location_operators_found"`
	DecisionMakersFound      int            `json:"decision_makers_found"`
	CategoriesBreakdown      map[string]int `json:"categories_breakdown"`
	AvgLocationsPerOperator  float64        `json:"avg_locations_per_operator"`
	ExpansionSignalsDetected int            `json:"expansion_signals_detected"`
	Synced                   int            `json:"synced"`
	Duplicates               int            `json:"duplicates"`
	Errors                   []string       `json:"errors"`
	CostEstimateUSD          float64        `json:"cost_estimate_usd"`
	DurationSeconds          int            `json:"duration_seconds"`
	Phases                   []PhaseResult  `json:"phases,omitempty"`
	CreatedAt                time.Time      `json:"created_at"`
}

// RunFilter specifies criteria for listing run history.
type RunFilter struct {
	Since time.Time `json:"since,omitempty"`
	Limit int       `json:"limit,omitempty"`
}

// LeadFilter specifies criteria for listing stored leads.
type LeadFilter struct {
	Layer    Layer `json:"layer,omitempty"`
	MinScore int   `json:"min_score,omitempty"`
	Limit    int   `json:"limit,omitempty"`
}

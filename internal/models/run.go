package models

import (
	"time"

	"gorm.io/datatypes"
)

// RunStatus enumerates run lifecycle states. A run in a terminal state
// (completed, failed, cancelled) never transitions again.
const (
	RunStatusPending   = "pending"
	RunStatusRunning   = "running"
	RunStatusCompleted = "completed"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// RunSummary is the aggregate outcome stored on a completed run.
type RunSummary struct {
	TotalCases       int     `json:"total_cases"`
	PassedCases      int     `json:"passed_cases"`
	PassRate         float64 `json:"pass_rate"`
	AverageScore     float64 `json:"average_score"`
	ScoredCases      int     `json:"scored_cases"`
	AverageLatencyMs int64   `json:"average_latency_ms"`
	TotalTokensIn    int     `json:"total_tokens_input"`
	TotalTokensOut   int     `json:"total_tokens_output"`
}

// EvaluationRun is one execution attempt of an evaluation.
type EvaluationRun struct {
	ID                uint                           `gorm:"primaryKey" json:"id"`
	EvaluationID      uint                           `gorm:"not null;index" json:"evaluation_id"`
	Status            string                         `gorm:"size:32;not null;default:pending" json:"status"`
	Results           datatypes.JSONType[RunSummary] `json:"results"`
	ErrorMessage      string                         `gorm:"type:text" json:"error_message"`
	TotalTokensInput  int                            `gorm:"default:0" json:"total_tokens_input"`
	TotalTokensOutput int                            `gorm:"default:0" json:"total_tokens_output"`
	StartedAt         time.Time                      `json:"started_at"`
	CompletedAt       *time.Time                     `json:"completed_at"`
	CreatedAt         time.Time                      `json:"created_at"`
	UpdatedAt         time.Time                      `json:"updated_at"`
	CaseResults       []TestCaseResult               `gorm:"foreignKey:RunID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// IsTerminal reports whether the run has reached a final status.
func (r EvaluationRun) IsTerminal() bool {
	switch r.Status {
	case RunStatusCompleted, RunStatusFailed, RunStatusCancelled:
		return true
	default:
		return false
	}
}

// TestCaseResult records the outcome of one (run, test case) execution.
// At most one row exists per pair.
type TestCaseResult struct {
	ID           uint                                  `gorm:"primaryKey" json:"id"`
	RunID        uint                                  `gorm:"not null;uniqueIndex:idx_run_case" json:"run_id"`
	TestCaseID   uint                                  `gorm:"not null;uniqueIndex:idx_run_case" json:"test_case_id"`
	ModelOutput  string                                `gorm:"type:text" json:"model_output"`
	Scores       datatypes.JSONType[map[uint]float64]  `json:"scores"`
	Feedback     datatypes.JSONType[map[uint]string]   `json:"feedback"`
	LatencyMs    int64                                 `gorm:"default:0" json:"latency_ms"`
	TokensInput  int                                   `gorm:"default:0" json:"tokens_input"`
	TokensOutput int                                   `gorm:"default:0" json:"tokens_output"`
	Passed       bool                                  `gorm:"default:false" json:"passed"`
	ErrorMessage string                                `gorm:"type:text" json:"error_message"`
	CreatedAt    time.Time                             `json:"created_at"`
}

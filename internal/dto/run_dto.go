package dto

import (
	"time"

	"github.com/promptforge/promptforge-api/internal/models"
)

// RunResponse represents an evaluation run to API consumers.
type RunResponse struct {
	ID                uint               `json:"id"`
	EvaluationID      uint               `json:"evaluation_id"`
	Status            string             `json:"status"`
	Results           *models.RunSummary `json:"results,omitempty"`
	ErrorMessage      string             `json:"error_message,omitempty"`
	TotalTokensInput  int                `json:"total_tokens_input"`
	TotalTokensOutput int                `json:"total_tokens_output"`
	StartedAt         time.Time          `json:"started_at"`
	CompletedAt       *time.Time         `json:"completed_at"`
}

// NewRunResponse builds a response DTO from a model.
func NewRunResponse(run models.EvaluationRun) RunResponse {
	response := RunResponse{
		ID:                run.ID,
		EvaluationID:      run.EvaluationID,
		Status:            run.Status,
		ErrorMessage:      run.ErrorMessage,
		TotalTokensInput:  run.TotalTokensInput,
		TotalTokensOutput: run.TotalTokensOutput,
		StartedAt:         run.StartedAt,
		CompletedAt:       run.CompletedAt,
	}

	if run.IsTerminal() && run.Status == models.RunStatusCompleted {
		summary := run.Results.Data()
		response.Results = &summary
	}

	return response
}

// TestCaseResultResponse represents one per-case result to API consumers.
type TestCaseResultResponse struct {
	ID           uint             `json:"id"`
	RunID        uint             `json:"run_id"`
	TestCaseID   uint             `json:"test_case_id"`
	ModelOutput  string           `json:"model_output"`
	Scores       map[uint]float64 `json:"scores"`
	Feedback     map[uint]string  `json:"feedback"`
	LatencyMs    int64            `json:"latency_ms"`
	TokensInput  int              `json:"tokens_input"`
	TokensOutput int              `json:"tokens_output"`
	Passed       bool             `json:"passed"`
	ErrorMessage string           `json:"error_message,omitempty"`
}

// NewTestCaseResultResponse builds a response DTO from a model.
func NewTestCaseResultResponse(result models.TestCaseResult) TestCaseResultResponse {
	return TestCaseResultResponse{
		ID:           result.ID,
		RunID:        result.RunID,
		TestCaseID:   result.TestCaseID,
		ModelOutput:  result.ModelOutput,
		Scores:       result.Scores.Data(),
		Feedback:     result.Feedback.Data(),
		LatencyMs:    result.LatencyMs,
		TokensInput:  result.TokensInput,
		TokensOutput: result.TokensOutput,
		Passed:       result.Passed,
		ErrorMessage: result.ErrorMessage,
	}
}

// Run event types streamed to websocket subscribers.
const (
	RunEventStarted      = "run_started"
	RunEventCaseFinished = "case_finished"
	RunEventFinished     = "run_finished"
)

// RunEvent is one progress notification for a run in flight.
type RunEvent struct {
	Type         string                  `json:"type"`
	RunID        uint                    `json:"run_id"`
	EvaluationID uint                    `json:"evaluation_id"`
	Status       string                  `json:"status"`
	Result       *TestCaseResultResponse `json:"result,omitempty"`
	Summary      *models.RunSummary      `json:"summary,omitempty"`
	SentAt       time.Time               `json:"sent_at"`
}

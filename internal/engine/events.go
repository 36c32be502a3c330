package engine

import "github.com/promptforge/promptforge-api/internal/models"

// RunEventPublisher receives run lifecycle notifications. Implementations
// must not block the run pipeline; slow consumers should buffer or drop.
type RunEventPublisher interface {
	RunStarted(run models.EvaluationRun)
	CaseFinished(run models.EvaluationRun, result models.TestCaseResult)
	RunFinished(run models.EvaluationRun)
}

// NopPublisher discards all run events.
type NopPublisher struct{}

func (NopPublisher) RunStarted(models.EvaluationRun)                         {}
func (NopPublisher) CaseFinished(models.EvaluationRun, models.TestCaseResult) {}
func (NopPublisher) RunFinished(models.EvaluationRun)                        {}

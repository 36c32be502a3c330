package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/promptforge/promptforge-api/internal/models"
	"github.com/promptforge/promptforge-api/internal/observability"
	"github.com/promptforge/promptforge-api/internal/repository"
	"github.com/promptforge/promptforge-api/pkg/ai"
	"github.com/promptforge/promptforge-api/pkg/ocr"
)

const (
	defaultConcurrency = 4
	defaultCallTimeout = 2 * time.Minute
	persistTimeout     = 15 * time.Second
)

// GatewayResolver builds a model gateway for a configured provider.
type GatewayResolver interface {
	Resolve(provider models.Provider) (ai.Gateway, error)
}

// Config carries the orchestrator's tuning knobs.
type Config struct {
	// Concurrency bounds the worker pool per run.
	Concurrency int
	// CallTimeout bounds one test case's model call including retries.
	CallTimeout time.Duration
}

// Orchestrator owns the run state machine: it schedules test case executions
// with bounded concurrency, drives judge scoring, persists progress after
// every case, and finalizes the run exactly once.
type Orchestrator struct {
	evaluations repository.EvaluationRepository
	runs        repository.RunRepository
	gateways    GatewayResolver
	executor    *Executor
	scorer      *Scorer
	events      RunEventPublisher
	logger      zerolog.Logger
	concurrency int
	callTimeout time.Duration

	mu     sync.Mutex
	active map[uint]context.CancelFunc
}

// NewOrchestrator constructs the run orchestrator.
func NewOrchestrator(
	evaluations repository.EvaluationRepository,
	runs repository.RunRepository,
	gateways GatewayResolver,
	extractor ocr.Extractor,
	events RunEventPublisher,
	logger zerolog.Logger,
	cfg Config,
) *Orchestrator {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = defaultConcurrency
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = defaultCallTimeout
	}
	if events == nil {
		events = NopPublisher{}
	}

	return &Orchestrator{
		evaluations: evaluations,
		runs:        runs,
		gateways:    gateways,
		executor:    NewExecutor(extractor, logger),
		scorer:      NewScorer(logger),
		events:      events,
		logger:      logger.With().Str("component", "orchestrator").Logger(),
		concurrency: cfg.Concurrency,
		callTimeout: cfg.CallTimeout,
		active:      make(map[uint]context.CancelFunc),
	}
}

// StartRun validates the evaluation, creates the run row and launches the
// asynchronous execution. It returns as soon as the run is registered.
func (o *Orchestrator) StartRun(ctx context.Context, userID, evaluationID uint) (models.EvaluationRun, error) {
	evaluation, err := o.evaluations.GetByID(ctx, evaluationID, userID)
	if err != nil {
		return models.EvaluationRun{}, err
	}

	if len(evaluation.TestCases) == 0 {
		return models.EvaluationRun{}, fmt.Errorf("%w: evaluation has no test cases", ErrInvalidState)
	}
	if evaluation.TargetModel == nil {
		return models.EvaluationRun{}, fmt.Errorf("%w: evaluation has no target model", ErrInvalidState)
	}

	targetGateway, err := o.gateways.Resolve(evaluation.TargetModel.Provider)
	if err != nil {
		return models.EvaluationRun{}, fmt.Errorf("%w: target model gateway: %v", ErrInvalidState, err)
	}

	var judgeGateway ai.Gateway
	if len(evaluation.EnabledCriteria()) > 0 {
		if evaluation.JudgeModel == nil {
			return models.EvaluationRun{}, fmt.Errorf("%w: enabled criteria require a judge model", ErrInvalidState)
		}
		judgeGateway, err = o.gateways.Resolve(evaluation.JudgeModel.Provider)
		if err != nil {
			return models.EvaluationRun{}, fmt.Errorf("%w: judge model gateway: %v", ErrInvalidState, err)
		}
	}

	run := models.EvaluationRun{
		EvaluationID: evaluation.ID,
		Status:       models.RunStatusPending,
		StartedAt:    time.Now().UTC(),
	}
	if err := o.runs.Create(ctx, &run); err != nil {
		return models.EvaluationRun{}, fmt.Errorf("create run: %w", err)
	}

	// The run outlives the HTTP request; it is cancelled only via StopRun.
	runCtx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.active[run.ID] = cancel
	o.mu.Unlock()

	go o.execute(runCtx, run, evaluation, targetGateway, judgeGateway)

	return run, nil
}

// StopRun cancels an in-progress run. No new test cases are dispatched and
// results arriving after cancellation are discarded.
func (o *Orchestrator) StopRun(ctx context.Context, userID, runID uint) error {
	run, err := o.runs.GetOwned(ctx, runID, userID)
	if err != nil {
		return err
	}
	if run.IsTerminal() {
		return fmt.Errorf("%w: run is already %s", ErrRunNotActive, run.Status)
	}

	o.mu.Lock()
	cancel, ok := o.active[runID]
	o.mu.Unlock()

	if ok {
		cancel()
		return nil
	}

	// The run row says non-terminal but nothing is executing: the process
	// restarted mid-run. Close it out directly.
	now := time.Now().UTC()
	run.Status = models.RunStatusCancelled
	run.ErrorMessage = "run stopped"
	run.CompletedAt = &now
	return o.runs.Update(ctx, &run)
}

// GetRun resolves a run by ID for its owner.
func (o *Orchestrator) GetRun(ctx context.Context, userID, runID uint) (models.EvaluationRun, error) {
	return o.runs.GetOwned(ctx, runID, userID)
}

// GetRunResults lists the per-case results recorded for a run.
func (o *Orchestrator) GetRunResults(ctx context.Context, userID, runID uint) ([]models.TestCaseResult, error) {
	if _, err := o.runs.GetOwned(ctx, runID, userID); err != nil {
		return nil, err
	}
	return o.runs.ListResults(ctx, runID)
}

func (o *Orchestrator) execute(runCtx context.Context, run models.EvaluationRun, evaluation models.Evaluation, targetGateway, judgeGateway ai.Gateway) {
	defer func() {
		o.mu.Lock()
		if cancel, ok := o.active[run.ID]; ok {
			cancel()
			delete(o.active, run.ID)
		}
		o.mu.Unlock()
	}()

	logger := o.logger.With().Uint("run_id", run.ID).Uint("evaluation_id", evaluation.ID).Logger()
	started := time.Now()
	observability.RunsStarted().Inc()

	run.Status = models.RunStatusRunning
	if err := o.updateRun(&run); err != nil {
		logger.Error().Err(err).Msg("failed to mark run running")
		o.finalize(&run, models.RunStatusFailed, fmt.Sprintf("mark running: %v", err), nil, evaluation, started)
		return
	}
	o.events.RunStarted(run)

	pool, err := ants.NewPool(o.concurrency)
	if err != nil {
		o.finalize(&run, models.RunStatusFailed, fmt.Sprintf("create worker pool: %v", err), nil, evaluation, started)
		return
	}
	defer pool.Release()

	config := evaluation.Config.Data().Normalized()
	template := ""
	if evaluation.Prompt != nil {
		template = evaluation.Prompt.Template
	}

	// One slot per test case: each task writes only its own index, so the
	// arena needs no locking.
	results := make([]models.TestCaseResult, len(evaluation.TestCases))
	dispatched := make([]bool, len(evaluation.TestCases))
	var wg sync.WaitGroup

	for idx, testCase := range evaluation.TestCases {
		if runCtx.Err() != nil {
			break
		}

		idx, testCase := idx, testCase
		wg.Add(1)
		submitErr := pool.Submit(func() {
			defer wg.Done()
			results[idx] = o.runCase(runCtx, run, evaluation, testCase, template, config, targetGateway, judgeGateway)
		})
		if submitErr != nil {
			wg.Done()
			results[idx] = models.TestCaseResult{
				RunID:        run.ID,
				TestCaseID:   testCase.ID,
				ErrorMessage: fmt.Sprintf("dispatch: %v", submitErr),
			}
		}
		dispatched[idx] = true
	}

	wg.Wait()

	if runCtx.Err() != nil {
		o.finalize(&run, models.RunStatusCancelled, "run stopped", nil, evaluation, started)
		return
	}

	completed := make([]models.TestCaseResult, 0, len(results))
	for idx := range results {
		if dispatched[idx] {
			completed = append(completed, results[idx])
		}
	}

	summary := Aggregate(completed, evaluation.Criteria, config.PassThreshold)
	o.finalize(&run, models.RunStatusCompleted, "", &summary, evaluation, started)
}

func (o *Orchestrator) runCase(
	runCtx context.Context,
	run models.EvaluationRun,
	evaluation models.Evaluation,
	testCase models.TestCase,
	template string,
	config models.EvaluationConfig,
	targetGateway, judgeGateway ai.Gateway,
) models.TestCaseResult {
	callCtx, cancel := context.WithTimeout(runCtx, o.callTimeout)
	result := o.executor.Execute(callCtx, ExecuteInput{
		TestCase:       testCase,
		PromptTemplate: template,
		Model:          *evaluation.TargetModel,
		Gateway:        targetGateway,
		Config:         config,
	})
	cancel()
	result.RunID = run.ID

	modelSucceeded := result.ErrorMessage == ""
	enabled := evaluation.EnabledCriteria()

	if modelSucceeded && len(enabled) > 0 && judgeGateway != nil {
		scores := make(map[uint]float64, len(enabled))
		feedback := make(map[uint]string, len(enabled))
		var scoringErr *multierror.Error

		for _, criterion := range enabled {
			scoreCtx, cancelScore := context.WithTimeout(runCtx, o.callTimeout)
			verdict, err := o.scorer.Score(scoreCtx, ScoreInput{
				TestCase:    testCase,
				ModelOutput: result.ModelOutput,
				Criterion:   criterion,
				JudgeModel:  *evaluation.JudgeModel,
				Gateway:     judgeGateway,
			})
			cancelScore()

			if err != nil {
				observability.JudgeFailures().Inc()
				scoringErr = multierror.Append(scoringErr, err)
				continue
			}
			scores[criterion.ID] = verdict.Score
			feedback[criterion.ID] = verdict.Feedback
		}

		result.Scores = datatypes.NewJSONType(scores)
		result.Feedback = datatypes.NewJSONType(feedback)
		if scoringErr != nil {
			result.ErrorMessage = scoringErr.Error()
		}
	}

	caseScore := ScoreCase(result.Scores.Data(), evaluation.Criteria, config.PassThreshold, modelSucceeded)
	result.Passed = caseScore.Passed

	outcome := "passed"
	if !result.Passed {
		outcome = "failed"
	}
	observability.CaseResults().WithLabelValues(outcome).Inc()

	// Results arriving after cancellation are discarded, not persisted.
	if runCtx.Err() == nil {
		persistCtx, cancelPersist := context.WithTimeout(context.Background(), persistTimeout)
		if err := o.runs.UpsertResult(persistCtx, &result); err != nil {
			o.logger.Error().Err(err).
				Uint("run_id", run.ID).
				Uint("test_case_id", testCase.ID).
				Msg("failed to persist test case result")
		}
		cancelPersist()
		o.events.CaseFinished(run, result)
	}

	return result
}

// finalize writes the terminal run row exactly once and mirrors the summary
// onto the parent evaluation.
func (o *Orchestrator) finalize(run *models.EvaluationRun, status, errorMessage string, summary *models.RunSummary, evaluation models.Evaluation, started time.Time) {
	now := time.Now().UTC()
	run.Status = status
	run.ErrorMessage = errorMessage
	run.CompletedAt = &now
	if summary != nil {
		run.Results = datatypes.NewJSONType(*summary)
		run.TotalTokensInput = summary.TotalTokensIn
		run.TotalTokensOutput = summary.TotalTokensOut
	}

	if err := o.updateRun(run); err != nil {
		o.logger.Error().Err(err).Uint("run_id", run.ID).Msg("failed to finalize run")
	}

	observability.RunsFinished().WithLabelValues(status).Inc()
	observability.RunDuration().Observe(time.Since(started).Seconds())
	o.events.RunFinished(*run)

	if status == models.RunStatusCompleted && summary != nil {
		evaluation.Status = models.EvaluationStatusReady
		evaluation.CompletedAt = &now
		evaluation.Results = datatypes.JSONMap{
			"last_run_id":   run.ID,
			"pass_rate":     summary.PassRate,
			"average_score": summary.AverageScore,
		}
		persistCtx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		if err := o.evaluations.Update(persistCtx, &evaluation); err != nil {
			o.logger.Error().Err(err).Uint("evaluation_id", evaluation.ID).Msg("failed to update evaluation summary")
		}
		cancel()
	}
}

func (o *Orchestrator) updateRun(run *models.EvaluationRun) error {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	return o.runs.Update(ctx, run)
}

package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/promptforge/promptforge-api/internal/models"
	"github.com/promptforge/promptforge-api/pkg/ai"
)

const testUserID uint = 42

type stubEvaluationRepo struct {
	mu         sync.Mutex
	evaluation models.Evaluation
	updates    []models.Evaluation
}

func (r *stubEvaluationRepo) Create(ctx context.Context, evaluation *models.Evaluation) error {
	return nil
}

func (r *stubEvaluationRepo) Update(ctx context.Context, evaluation *models.Evaluation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates = append(r.updates, *evaluation)
	return nil
}

func (r *stubEvaluationRepo) Delete(ctx context.Context, id, userID uint) error { return nil }

func (r *stubEvaluationRepo) GetByID(ctx context.Context, id, userID uint) (models.Evaluation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if userID != testUserID || id != r.evaluation.ID {
		return models.Evaluation{}, gorm.ErrRecordNotFound
	}
	return r.evaluation, nil
}

func (r *stubEvaluationRepo) List(ctx context.Context, userID uint, offset, limit int) ([]models.Evaluation, int64, error) {
	return nil, 0, nil
}

func (r *stubEvaluationRepo) CreateTestCase(ctx context.Context, testCase *models.TestCase) error {
	return nil
}

func (r *stubEvaluationRepo) UpdateTestCase(ctx context.Context, testCase *models.TestCase) error {
	return nil
}

func (r *stubEvaluationRepo) DeleteTestCase(ctx context.Context, id, evaluationID uint) error {
	return nil
}

func (r *stubEvaluationRepo) ListTestCases(ctx context.Context, evaluationID uint) ([]models.TestCase, error) {
	return nil, nil
}

func (r *stubEvaluationRepo) NextOrderIndex(ctx context.Context, evaluationID uint) (int, error) {
	return 0, nil
}

func (r *stubEvaluationRepo) CreateCriterion(ctx context.Context, criterion *models.EvaluationCriterion) error {
	return nil
}

func (r *stubEvaluationRepo) UpdateCriterion(ctx context.Context, criterion *models.EvaluationCriterion) error {
	return nil
}

func (r *stubEvaluationRepo) DeleteCriterion(ctx context.Context, id, evaluationID uint) error {
	return nil
}

func (r *stubEvaluationRepo) ListCriteria(ctx context.Context, evaluationID uint) ([]models.EvaluationCriterion, error) {
	return nil, nil
}

type stubRunRepo struct {
	mu      sync.Mutex
	nextID  uint
	runs    map[uint]models.EvaluationRun
	results map[uint][]models.TestCaseResult
}

func newStubRunRepo() *stubRunRepo {
	return &stubRunRepo{
		runs:    make(map[uint]models.EvaluationRun),
		results: make(map[uint][]models.TestCaseResult),
	}
}

func (r *stubRunRepo) Create(ctx context.Context, run *models.EvaluationRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	run.ID = r.nextID
	r.runs[run.ID] = *run
	return nil
}

func (r *stubRunRepo) Update(ctx context.Context, run *models.EvaluationRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.runs[run.ID] = *run
	return nil
}

func (r *stubRunRepo) GetByID(ctx context.Context, id uint) (models.EvaluationRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	run, ok := r.runs[id]
	if !ok {
		return models.EvaluationRun{}, gorm.ErrRecordNotFound
	}
	return run, nil
}

func (r *stubRunRepo) GetOwned(ctx context.Context, id, userID uint) (models.EvaluationRun, error) {
	if userID != testUserID {
		return models.EvaluationRun{}, gorm.ErrRecordNotFound
	}
	return r.GetByID(ctx, id)
}

func (r *stubRunRepo) ListByEvaluation(ctx context.Context, evaluationID uint) ([]models.EvaluationRun, error) {
	return nil, nil
}

func (r *stubRunRepo) UpsertResult(ctx context.Context, result *models.TestCaseResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing := r.results[result.RunID]
	for idx := range existing {
		if existing[idx].TestCaseID == result.TestCaseID {
			existing[idx] = *result
			return nil
		}
	}
	r.results[result.RunID] = append(existing, *result)
	return nil
}

func (r *stubRunRepo) ListResults(ctx context.Context, runID uint) ([]models.TestCaseResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.TestCaseResult(nil), r.results[runID]...), nil
}

func (r *stubRunRepo) status(runID uint) string {
	run, err := r.GetByID(context.Background(), runID)
	if err != nil {
		return ""
	}
	return run.Status
}

type staticResolver struct {
	gateway ai.Gateway
	err     error
}

func (s staticResolver) Resolve(provider models.Provider) (ai.Gateway, error) {
	return s.gateway, s.err
}

type scriptedGateway struct {
	complete func(ctx context.Context, model string, messages []ai.Message) (ai.Completion, error)
}

func (g scriptedGateway) Complete(ctx context.Context, model string, messages []ai.Message, params ai.Parameters) (ai.Completion, error) {
	return g.complete(ctx, model, messages)
}

type recordingPublisher struct {
	mu       sync.Mutex
	started  int
	cases    []models.TestCaseResult
	finished []models.EvaluationRun
}

func (p *recordingPublisher) RunStarted(run models.EvaluationRun) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started++
}

func (p *recordingPublisher) CaseFinished(run models.EvaluationRun, result models.TestCaseResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.cases = append(p.cases, result)
}

func (p *recordingPublisher) RunFinished(run models.EvaluationRun) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished = append(p.finished, run)
}

func (p *recordingPublisher) snapshot() (int, int, int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.started, len(p.cases), len(p.finished)
}

func echoGateway() ai.Gateway {
	return scriptedGateway{complete: func(ctx context.Context, model string, messages []ai.Message) (ai.Completion, error) {
		return ai.Completion{Text: "ok", TokensInput: 5, TokensOutput: 7, Latency: 10 * time.Millisecond}, nil
	}}
}

func runnableEvaluation(caseCount int) models.Evaluation {
	evaluation := models.Evaluation{
		ID:          1,
		UserID:      testUserID,
		Name:        "smoke",
		TargetModel: &models.Model{ID: 10, Name: "gpt-4o"},
		Prompt:      &models.Prompt{ID: 2, Template: "Answer briefly."},
	}
	for i := 0; i < caseCount; i++ {
		evaluation.TestCases = append(evaluation.TestCases, models.TestCase{
			ID:    uint(100 + i),
			Input: "question",
		})
	}
	return evaluation
}

func newTestOrchestrator(evaluation models.Evaluation, runs *stubRunRepo, target, judge ai.Gateway, events RunEventPublisher) (*Orchestrator, *stubEvaluationRepo) {
	evaluations := &stubEvaluationRepo{evaluation: evaluation}
	gateway := target
	resolver := staticResolver{gateway: gateway}
	if judge != nil {
		resolver = staticResolver{gateway: judge}
		// Target and judge share a resolver; route per model name instead.
		resolver.gateway = routedGateway{target: target, judge: judge, judgeModel: judgeModelName(evaluation)}
	}
	orchestrator := NewOrchestrator(evaluations, runs, resolver, nil, events, zerolog.Nop(), Config{
		Concurrency: 2,
		CallTimeout: 5 * time.Second,
	})
	return orchestrator, evaluations
}

func judgeModelName(evaluation models.Evaluation) string {
	if evaluation.JudgeModel == nil {
		return ""
	}
	return evaluation.JudgeModel.Name
}

type routedGateway struct {
	target     ai.Gateway
	judge      ai.Gateway
	judgeModel string
}

func (g routedGateway) Complete(ctx context.Context, model string, messages []ai.Message, params ai.Parameters) (ai.Completion, error) {
	if model == g.judgeModel {
		return g.judge.Complete(ctx, model, messages, params)
	}
	return g.target.Complete(ctx, model, messages, params)
}

func TestStartRunRejectsEmptyEvaluation(t *testing.T) {
	evaluation := runnableEvaluation(0)
	orchestrator, _ := newTestOrchestrator(evaluation, newStubRunRepo(), echoGateway(), nil, nil)

	_, err := orchestrator.StartRun(context.Background(), testUserID, evaluation.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Contains(t, err.Error(), "no test cases")
}

func TestStartRunRejectsMissingTargetModel(t *testing.T) {
	evaluation := runnableEvaluation(1)
	evaluation.TargetModel = nil
	orchestrator, _ := newTestOrchestrator(evaluation, newStubRunRepo(), echoGateway(), nil, nil)

	_, err := orchestrator.StartRun(context.Background(), testUserID, evaluation.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Contains(t, err.Error(), "no target model")
}

func TestStartRunRequiresJudgeForEnabledCriteria(t *testing.T) {
	evaluation := runnableEvaluation(1)
	evaluation.Criteria = []models.EvaluationCriterion{{ID: 1, Name: "Accuracy", Weight: 1, Enabled: true}}
	orchestrator, _ := newTestOrchestrator(evaluation, newStubRunRepo(), echoGateway(), nil, nil)

	_, err := orchestrator.StartRun(context.Background(), testUserID, evaluation.ID)
	require.ErrorIs(t, err, ErrInvalidState)
	require.Contains(t, err.Error(), "judge model")
}

func TestStartRunUnknownEvaluation(t *testing.T) {
	evaluation := runnableEvaluation(1)
	orchestrator, _ := newTestOrchestrator(evaluation, newStubRunRepo(), echoGateway(), nil, nil)

	_, err := orchestrator.StartRun(context.Background(), testUserID, 999)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	_, err = orchestrator.StartRun(context.Background(), 7, evaluation.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestRunCompletesAllCases(t *testing.T) {
	evaluation := runnableEvaluation(3)
	runs := newStubRunRepo()
	events := &recordingPublisher{}
	orchestrator, evaluations := newTestOrchestrator(evaluation, runs, echoGateway(), nil, events)

	run, err := orchestrator.StartRun(context.Background(), testUserID, evaluation.ID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusPending, run.Status)

	require.Eventually(t, func() bool {
		return runs.status(run.ID) == models.RunStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	final, err := runs.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	require.NotNil(t, final.CompletedAt)

	summary := final.Results.Data()
	require.Equal(t, 3, summary.TotalCases)
	require.Equal(t, 3, summary.PassedCases)
	require.Equal(t, 1.0, summary.PassRate)
	require.Equal(t, 15, final.TotalTokensInput)
	require.Equal(t, 21, final.TotalTokensOutput)

	results, err := runs.ListResults(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, results, 3)

	started, caseEvents, finished := events.snapshot()
	require.Equal(t, 1, started)
	require.Equal(t, 3, caseEvents)
	require.Equal(t, 1, finished)

	// A completed run mirrors its summary onto the evaluation.
	evaluations.mu.Lock()
	defer evaluations.mu.Unlock()
	require.NotEmpty(t, evaluations.updates)
	last := evaluations.updates[len(evaluations.updates)-1]
	require.Equal(t, models.EvaluationStatusReady, last.Status)
	require.Equal(t, 1.0, last.Results["pass_rate"])
}

func TestRunScoresWithJudge(t *testing.T) {
	evaluation := runnableEvaluation(1)
	evaluation.JudgeModel = &models.Model{ID: 11, Name: "judge-model"}
	evaluation.Criteria = []models.EvaluationCriterion{
		{ID: 21, Name: "Accuracy", Weight: 1, Enabled: true},
	}

	judge := scriptedGateway{complete: func(ctx context.Context, model string, messages []ai.Message) (ai.Completion, error) {
		return ai.Completion{Text: `{"score": 90, "feedback": "solid"}`}, nil
	}}

	runs := newStubRunRepo()
	orchestrator, _ := newTestOrchestrator(evaluation, runs, echoGateway(), judge, nil)

	run, err := orchestrator.StartRun(context.Background(), testUserID, evaluation.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return runs.status(run.ID) == models.RunStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	results, err := runs.ListResults(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.True(t, results[0].Passed)
	require.Equal(t, 90.0, results[0].Scores.Data()[21])
	require.Equal(t, "solid", results[0].Feedback.Data()[21])

	final, err := runs.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, 90.0, final.Results.Data().AverageScore)
}

func TestRunFailingCaseDoesNotAbortOthers(t *testing.T) {
	evaluation := runnableEvaluation(2)
	evaluation.TestCases[1].Input = "explode"

	target := scriptedGateway{complete: func(ctx context.Context, model string, messages []ai.Message) (ai.Completion, error) {
		if strings.Contains(messages[len(messages)-1].Content, "explode") {
			return ai.Completion{}, &ai.ProviderError{Provider: "openai", StatusCode: 400, Err: errors.New("content rejected")}
		}
		return ai.Completion{Text: "fine"}, nil
	}}

	runs := newStubRunRepo()
	orchestrator, _ := newTestOrchestrator(evaluation, runs, target, nil, nil)

	run, err := orchestrator.StartRun(context.Background(), testUserID, evaluation.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return runs.status(run.ID) == models.RunStatusCompleted
	}, 2*time.Second, 10*time.Millisecond)

	results, err := runs.ListResults(context.Background(), run.ID)
	require.NoError(t, err)
	require.Len(t, results, 2)

	var failed, passed int
	for _, result := range results {
		if result.Passed {
			passed++
		} else {
			failed++
			require.Contains(t, result.ErrorMessage, "content rejected")
		}
	}
	require.Equal(t, 1, passed)
	require.Equal(t, 1, failed)

	final, err := runs.GetByID(context.Background(), run.ID)
	require.NoError(t, err)
	require.Equal(t, 2, final.Results.Data().TotalCases)
	require.Equal(t, 1, final.Results.Data().PassedCases)
}

func TestStopRunCancelsActiveRun(t *testing.T) {
	evaluation := runnableEvaluation(4)

	release := make(chan struct{})
	target := scriptedGateway{complete: func(ctx context.Context, model string, messages []ai.Message) (ai.Completion, error) {
		select {
		case <-release:
			return ai.Completion{Text: "late"}, nil
		case <-ctx.Done():
			return ai.Completion{}, ctx.Err()
		}
	}}

	runs := newStubRunRepo()
	orchestrator, _ := newTestOrchestrator(evaluation, runs, target, nil, nil)

	run, err := orchestrator.StartRun(context.Background(), testUserID, evaluation.ID)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return runs.status(run.ID) == models.RunStatusRunning
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, orchestrator.StopRun(context.Background(), testUserID, run.ID))

	require.Eventually(t, func() bool {
		return runs.status(run.ID) == models.RunStatusCancelled
	}, 2*time.Second, 10*time.Millisecond)
	close(release)

	// Cancelled in-flight work is not persisted.
	results, err := runs.ListResults(context.Background(), run.ID)
	require.NoError(t, err)
	require.Empty(t, results)

	err = orchestrator.StopRun(context.Background(), testUserID, run.ID)
	require.ErrorIs(t, err, ErrRunNotActive)
}

func TestStopRunClosesOrphanedRun(t *testing.T) {
	runs := newStubRunRepo()
	orphan := models.EvaluationRun{EvaluationID: 1, Status: models.RunStatusRunning, StartedAt: time.Now().UTC()}
	require.NoError(t, runs.Create(context.Background(), &orphan))

	evaluation := runnableEvaluation(1)
	orchestrator, _ := newTestOrchestrator(evaluation, runs, echoGateway(), nil, nil)

	require.NoError(t, orchestrator.StopRun(context.Background(), testUserID, orphan.ID))

	final, err := runs.GetByID(context.Background(), orphan.ID)
	require.NoError(t, err)
	require.Equal(t, models.RunStatusCancelled, final.Status)
	require.Equal(t, "run stopped", final.ErrorMessage)
	require.NotNil(t, final.CompletedAt)
}

func TestGetRunResultsChecksOwnership(t *testing.T) {
	runs := newStubRunRepo()
	run := models.EvaluationRun{EvaluationID: 1, Status: models.RunStatusCompleted}
	require.NoError(t, runs.Create(context.Background(), &run))
	require.NoError(t, runs.UpsertResult(context.Background(), &models.TestCaseResult{RunID: run.ID, TestCaseID: 100}))

	orchestrator, _ := newTestOrchestrator(runnableEvaluation(1), runs, echoGateway(), nil, nil)

	results, err := orchestrator.GetRunResults(context.Background(), testUserID, run.ID)
	require.NoError(t, err)
	require.Len(t, results, 1)

	_, err = orchestrator.GetRunResults(context.Background(), 7, run.ID)
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

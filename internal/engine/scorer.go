package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/promptforge/promptforge-api/internal/models"
	"github.com/promptforge/promptforge-api/pkg/ai"
)

const defaultJudgeRubric = "Judge how well the response satisfies the criterion. " +
	"Consider correctness against the expected output when one is given."

// ScoreInput bundles everything needed to judge one (test case, criterion)
// pair.
type ScoreInput struct {
	TestCase    models.TestCase
	ModelOutput string
	Criterion   models.EvaluationCriterion
	JudgeModel  models.Model
	Gateway     ai.Gateway
}

// Verdict is the judge's answer for one criterion.
type Verdict struct {
	Score    float64
	Feedback string
}

// Scorer invokes the judge model to score a test case output against one
// criterion. Failures are returned to the caller, which omits the score
// rather than defaulting it to zero.
type Scorer struct {
	logger      zerolog.Logger
	maxAttempts uint64
	backoffBase time.Duration
}

// NewScorer constructs a criterion scorer.
func NewScorer(logger zerolog.Logger) *Scorer {
	return &Scorer{
		logger:      logger.With().Str("component", "scorer").Logger(),
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultRetryBackoff,
	}
}

// Score asks the judge model for a 0-100 score plus feedback.
func (s *Scorer) Score(ctx context.Context, in ScoreInput) (Verdict, error) {
	messages := []ai.Message{
		{Role: ai.RoleSystem, Content: judgeSystemPrompt()},
		{Role: ai.RoleUser, Content: buildJudgePrompt(in)},
	}

	var verdict Verdict
	operation := func() error {
		completion, err := in.Gateway.Complete(ctx, in.JudgeModel.Name, messages, ai.Parameters{})
		if err != nil {
			if !ai.IsTransient(err) {
				return backoff.Permanent(err)
			}
			return err
		}

		parsed, err := parseVerdict(completion.Text)
		if err != nil {
			// A malformed judge response is worth one more attempt.
			return err
		}
		verdict = parsed
		return nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.backoffBase

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, s.maxAttempts-1), ctx))
	if err != nil {
		s.logger.Warn().Err(err).
			Uint("test_case_id", in.TestCase.ID).
			Uint("criterion_id", in.Criterion.ID).
			Msg("judge call failed after retries")
		return Verdict{}, fmt.Errorf("score criterion %q: %w", in.Criterion.Name, err)
	}

	return verdict, nil
}

func judgeSystemPrompt() string {
	return "You are an impartial evaluation judge. Respond with a JSON object " +
		"containing \"score\" (a number from 0 to 100) and \"feedback\" (a short explanation)."
}

func buildJudgePrompt(in ScoreInput) string {
	rubric := strings.TrimSpace(in.Criterion.JudgePrompt)
	if rubric == "" {
		rubric = defaultJudgeRubric
	}

	builder := strings.Builder{}
	builder.WriteString("# Criterion\n")
	builder.WriteString(in.Criterion.Name)
	builder.WriteString("\n\n# Rubric\n")
	builder.WriteString(RenderTemplate(rubric, in.TestCase.InputVariables))
	builder.WriteString("\n\n# Input\n")
	builder.WriteString(in.TestCase.Input)
	if in.TestCase.ExpectedOutput != "" {
		builder.WriteString("\n\n# Expected Output\n")
		builder.WriteString(in.TestCase.ExpectedOutput)
	}
	builder.WriteString("\n\n# Actual Output\n")
	builder.WriteString(in.ModelOutput)
	builder.WriteString("\n\nReturn JSON.")
	return builder.String()
}

func parseVerdict(content string) (Verdict, error) {
	content = strings.TrimSpace(content)
	// Some judges wrap the object in a markdown fence despite instructions.
	if strings.HasPrefix(content, "```") {
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(strings.TrimSpace(content), "```")
		content = strings.TrimSpace(content)
	}

	var payload struct {
		Score    float64 `json:"score"`
		Feedback string  `json:"feedback"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err != nil {
		return Verdict{}, fmt.Errorf("parse judge response: %w", err)
	}

	if payload.Score < 0 {
		payload.Score = 0
	}
	if payload.Score > 100 {
		payload.Score = 100
	}

	return Verdict{Score: payload.Score, Feedback: payload.Feedback}, nil
}

package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/promptforge/promptforge-api/internal/models"
	"github.com/promptforge/promptforge-api/pkg/ai"
)

func newTestScorer() *Scorer {
	scorer := NewScorer(zerolog.Nop())
	scorer.backoffBase = time.Millisecond
	return scorer
}

func scoreInput(gateway ai.Gateway) ScoreInput {
	return ScoreInput{
		TestCase: models.TestCase{
			ID:             3,
			Input:          "What is 2+2?",
			ExpectedOutput: "4",
		},
		ModelOutput: "The answer is 4.",
		Criterion:   models.EvaluationCriterion{ID: 5, Name: "Correctness"},
		JudgeModel:  models.Model{Name: "gpt-4o"},
		Gateway:     gateway,
	}
}

func TestScorerParsesVerdict(t *testing.T) {
	gateway := &stubGateway{responses: []stubResponse{
		completionOf(`{"score": 85, "feedback": "mostly right"}`),
	}}

	verdict, err := newTestScorer().Score(context.Background(), scoreInput(gateway))
	require.NoError(t, err)
	require.Equal(t, 85.0, verdict.Score)
	require.Equal(t, "mostly right", verdict.Feedback)

	prompt := gateway.lastCall.messages[1].Content
	require.Contains(t, prompt, "# Criterion\nCorrectness")
	require.Contains(t, prompt, "# Input\nWhat is 2+2?")
	require.Contains(t, prompt, "# Expected Output\n4")
	require.Contains(t, prompt, "# Actual Output\nThe answer is 4.")
	require.Contains(t, prompt, defaultJudgeRubric)
}

func TestScorerUsesCriterionRubric(t *testing.T) {
	gateway := &stubGateway{responses: []stubResponse{
		completionOf(`{"score": 70, "feedback": "ok"}`),
	}}

	in := scoreInput(gateway)
	in.Criterion.JudgePrompt = "Check the arithmetic carefully."
	_, err := newTestScorer().Score(context.Background(), in)
	require.NoError(t, err)

	prompt := gateway.lastCall.messages[1].Content
	require.Contains(t, prompt, "Check the arithmetic carefully.")
	require.NotContains(t, prompt, defaultJudgeRubric)
}

func TestScorerRetriesMalformedResponse(t *testing.T) {
	gateway := &stubGateway{responses: []stubResponse{
		completionOf("I think it deserves an 85."),
		completionOf(`{"score": 85, "feedback": "second try"}`),
	}}

	verdict, err := newTestScorer().Score(context.Background(), scoreInput(gateway))
	require.NoError(t, err)
	require.Equal(t, "second try", verdict.Feedback)
	require.Equal(t, 2, gateway.callCount())
}

func TestScorerPermanentProviderErrorFailsFast(t *testing.T) {
	permanent := ai.ProviderError{Provider: "openai", StatusCode: 400, Err: errors.New("invalid model")}
	gateway := &stubGateway{responses: []stubResponse{{err: &permanent}}}

	_, err := newTestScorer().Score(context.Background(), scoreInput(gateway))
	require.Error(t, err)
	require.Contains(t, err.Error(), `score criterion "Correctness"`)
	require.Equal(t, 1, gateway.callCount())
}

func TestParseVerdictMarkdownFence(t *testing.T) {
	verdict, err := parseVerdict("```json\n{\"score\": 42, \"feedback\": \"fenced\"}\n```")
	require.NoError(t, err)
	require.Equal(t, 42.0, verdict.Score)
	require.Equal(t, "fenced", verdict.Feedback)

	verdict, err = parseVerdict("```\n{\"score\": 10, \"feedback\": \"\"}\n```")
	require.NoError(t, err)
	require.Equal(t, 10.0, verdict.Score)
}

func TestParseVerdictClampsScore(t *testing.T) {
	verdict, err := parseVerdict(`{"score": 250, "feedback": "generous"}`)
	require.NoError(t, err)
	require.Equal(t, 100.0, verdict.Score)

	verdict, err = parseVerdict(`{"score": -3, "feedback": "harsh"}`)
	require.NoError(t, err)
	require.Equal(t, 0.0, verdict.Score)
}

func TestParseVerdictRejectsGarbage(t *testing.T) {
	_, err := parseVerdict("not json at all")
	require.Error(t, err)
}

package engine

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/promptforge/promptforge-api/internal/models"
)

func criterion(id uint, weight float64, enabled bool) models.EvaluationCriterion {
	return models.EvaluationCriterion{ID: id, Name: "criterion", Weight: weight, Enabled: enabled}
}

func TestScoreCaseWeightedComposite(t *testing.T) {
	criteria := []models.EvaluationCriterion{
		criterion(1, 1.0, true),
		criterion(2, 3.0, true),
	}
	scores := map[uint]float64{1: 80, 2: 60}

	// (80*1 + 60*3) / 4 = 65
	result := ScoreCase(scores, criteria, 60, true)
	require.True(t, result.Scored)
	require.InDelta(t, 65.0, result.Composite, 1e-9)
	require.True(t, result.Passed)

	strict := ScoreCase(scores, criteria, 70, true)
	require.False(t, strict.Passed)
}

func TestScoreCaseMissingScoreExcludedFromWeights(t *testing.T) {
	criteria := []models.EvaluationCriterion{
		criterion(1, 1.0, true),
		criterion(2, 1.0, true),
	}
	// Criterion 2 never produced a score: it must not drag the composite
	// down as a zero.
	scores := map[uint]float64{1: 90}

	result := ScoreCase(scores, criteria, 60, true)
	require.True(t, result.Scored)
	require.InDelta(t, 90.0, result.Composite, 1e-9)
	require.True(t, result.Passed)
}

func TestScoreCaseAllScoresMissingFails(t *testing.T) {
	criteria := []models.EvaluationCriterion{criterion(1, 2.0, true)}

	result := ScoreCase(nil, criteria, 60, true)
	require.False(t, result.Scored)
	require.False(t, result.Passed)
}

func TestScoreCaseDisabledCriteriaIgnored(t *testing.T) {
	criteria := []models.EvaluationCriterion{
		criterion(1, 1.0, true),
		criterion(2, 100.0, false),
	}
	scores := map[uint]float64{1: 70, 2: 0}

	result := ScoreCase(scores, criteria, 60, true)
	require.InDelta(t, 70.0, result.Composite, 1e-9)
	require.True(t, result.Passed)
}

func TestScoreCaseNoEnabledCriteriaPassesOnModelSuccess(t *testing.T) {
	criteria := []models.EvaluationCriterion{criterion(1, 1.0, false)}

	succeeded := ScoreCase(nil, criteria, 60, true)
	require.True(t, succeeded.Passed)
	require.False(t, succeeded.Scored)

	timedOut := ScoreCase(nil, criteria, 60, false)
	require.False(t, timedOut.Passed)
}

func result(caseID uint, scores map[uint]float64, passed bool, errorMessage string) models.TestCaseResult {
	return models.TestCaseResult{
		TestCaseID:   caseID,
		Scores:       datatypes.NewJSONType(scores),
		Passed:       passed,
		ErrorMessage: errorMessage,
		TokensInput:  10,
		TokensOutput: 20,
		LatencyMs:    100,
	}
}

func TestAggregateSummaryCounts(t *testing.T) {
	criteria := []models.EvaluationCriterion{criterion(1, 1.0, true)}
	results := []models.TestCaseResult{
		result(1, map[uint]float64{1: 90}, true, ""),
		result(2, map[uint]float64{1: 40}, false, ""),
		result(3, nil, false, "model call failed"),
	}

	summary := Aggregate(results, criteria, 60)
	require.Equal(t, 3, summary.TotalCases)
	require.Equal(t, 1, summary.PassedCases)
	require.InDelta(t, 1.0/3.0, summary.PassRate, 1e-9)
	require.Equal(t, 2, summary.ScoredCases)
	require.InDelta(t, 65.0, summary.AverageScore, 1e-9)
	require.Equal(t, 30, summary.TotalTokensIn)
	require.Equal(t, 60, summary.TotalTokensOut)
	require.Equal(t, int64(100), summary.AverageLatencyMs)
}

func TestAggregatePermutationInvariant(t *testing.T) {
	criteria := []models.EvaluationCriterion{
		criterion(1, 1.0, true),
		criterion(2, 2.5, true),
	}

	results := []models.TestCaseResult{
		result(1, map[uint]float64{1: 90, 2: 80}, true, ""),
		result(2, map[uint]float64{1: 10}, false, ""),
		result(3, map[uint]float64{2: 55}, false, ""),
		result(4, nil, false, "timeout"),
		result(5, map[uint]float64{1: 100, 2: 100}, true, ""),
	}

	baseline := Aggregate(results, criteria, 60)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]models.TestCaseResult(nil), results...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		require.Equal(t, baseline, Aggregate(shuffled, criteria, 60))
	}
}

func TestAggregateJudgeFailureExcludedScenario(t *testing.T) {
	// Two criteria, one judge call failed: the composite is computed over
	// the criterion that did produce a score.
	criteria := []models.EvaluationCriterion{
		criterion(1, 1.0, true),
		criterion(2, 1.0, true),
	}
	results := []models.TestCaseResult{
		result(1, map[uint]float64{1: 90}, true, "score criterion \"clarity\": judge unavailable"),
	}

	summary := Aggregate(results, criteria, 60)
	require.Equal(t, 1, summary.ScoredCases)
	require.InDelta(t, 90.0, summary.AverageScore, 1e-9)
	require.Equal(t, 1, summary.PassedCases)
}

func TestAggregateEmpty(t *testing.T) {
	summary := Aggregate(nil, nil, 60)
	require.Equal(t, models.RunSummary{}, summary)
}

package engine

import (
	"github.com/promptforge/promptforge-api/internal/models"
)

// CaseScore is the composite outcome of one test case.
type CaseScore struct {
	// Composite is the weighted mean over the criteria that produced a score.
	// Only meaningful when Scored is true.
	Composite float64
	// Scored reports whether at least one enabled criterion produced a score.
	Scored bool
	Passed bool
}

// ScoreCase folds the per-criterion scores of one test case into a composite
// score and pass verdict. Criteria without an obtained score are excluded
// from both the numerator and the denominator; a missing score never counts
// as zero. With no enabled criteria configured at all, the case passes iff
// the model call itself succeeded.
func ScoreCase(scores map[uint]float64, criteria []models.EvaluationCriterion, passThreshold float64, modelSucceeded bool) CaseScore {
	if passThreshold <= 0 {
		passThreshold = models.DefaultPassThreshold
	}

	enabledCount := 0
	var weightedSum, weightTotal float64
	for _, criterion := range criteria {
		if !criterion.Enabled {
			continue
		}
		enabledCount++
		score, ok := scores[criterion.ID]
		if !ok || criterion.Weight <= 0 {
			continue
		}
		weightedSum += score * criterion.Weight
		weightTotal += criterion.Weight
	}

	if enabledCount == 0 {
		return CaseScore{Passed: modelSucceeded}
	}

	if weightTotal == 0 {
		// Every enabled criterion's score is missing: the composite is
		// undefined and the case cannot pass.
		return CaseScore{}
	}

	composite := weightedSum / weightTotal
	return CaseScore{
		Composite: composite,
		Scored:    true,
		Passed:    composite >= passThreshold,
	}
}

// Aggregate folds a run's case results into the run-level summary. The fold
// is commutative: any permutation of results yields an identical summary.
func Aggregate(results []models.TestCaseResult, criteria []models.EvaluationCriterion, passThreshold float64) models.RunSummary {
	summary := models.RunSummary{TotalCases: len(results)}
	if len(results) == 0 {
		return summary
	}

	var scoreSum float64
	var latencySum int64
	for _, result := range results {
		if result.Passed {
			summary.PassedCases++
		}
		summary.TotalTokensIn += result.TokensInput
		summary.TotalTokensOut += result.TokensOutput
		latencySum += result.LatencyMs

		caseScore := ScoreCase(result.Scores.Data(), criteria, passThreshold, result.ErrorMessage == "")
		if caseScore.Scored {
			summary.ScoredCases++
			scoreSum += caseScore.Composite
		}
	}

	summary.PassRate = float64(summary.PassedCases) / float64(summary.TotalCases)
	if summary.ScoredCases > 0 {
		summary.AverageScore = scoreSum / float64(summary.ScoredCases)
	}
	summary.AverageLatencyMs = latencySum / int64(summary.TotalCases)

	return summary
}

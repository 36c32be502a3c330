package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/promptforge/promptforge-api/internal/models"
)

// ErrRunFinished indicates a write was attempted against a run that already
// reached a terminal status.
var ErrRunFinished = errors.New("run already finished")

// RunRepository exposes persistence operations for evaluation runs and their
// per-case results.
type RunRepository interface {
	Create(ctx context.Context, run *models.EvaluationRun) error
	Update(ctx context.Context, run *models.EvaluationRun) error
	GetByID(ctx context.Context, id uint) (models.EvaluationRun, error)
	GetOwned(ctx context.Context, id, userID uint) (models.EvaluationRun, error)
	ListByEvaluation(ctx context.Context, evaluationID uint) ([]models.EvaluationRun, error)
	UpsertResult(ctx context.Context, result *models.TestCaseResult) error
	ListResults(ctx context.Context, runID uint) ([]models.TestCaseResult, error)
}

// NewRunRepository constructs a run repository.
func NewRunRepository(db *gorm.DB) RunRepository {
	return &runRepository{db: db}
}

type runRepository struct {
	db *gorm.DB
}

func (r *runRepository) Create(ctx context.Context, run *models.EvaluationRun) error {
	return r.db.WithContext(ctx).Create(run).Error
}

func (r *runRepository) Update(ctx context.Context, run *models.EvaluationRun) error {
	return r.db.WithContext(ctx).Save(run).Error
}

func (r *runRepository) GetByID(ctx context.Context, id uint) (models.EvaluationRun, error) {
	var run models.EvaluationRun
	if err := r.db.WithContext(ctx).First(&run, id).Error; err != nil {
		return models.EvaluationRun{}, err
	}
	return run, nil
}

// GetOwned resolves a run while enforcing ownership through the parent
// evaluation.
func (r *runRepository) GetOwned(ctx context.Context, id, userID uint) (models.EvaluationRun, error) {
	var run models.EvaluationRun
	err := r.db.WithContext(ctx).
		Joins("JOIN evaluations ON evaluations.id = evaluation_runs.evaluation_id").
		Where("evaluation_runs.id = ? AND evaluations.user_id = ?", id, userID).
		First(&run).Error
	if err != nil {
		return models.EvaluationRun{}, err
	}
	return run, nil
}

func (r *runRepository) ListByEvaluation(ctx context.Context, evaluationID uint) ([]models.EvaluationRun, error) {
	var runs []models.EvaluationRun
	err := r.db.WithContext(ctx).
		Where("evaluation_id = ?", evaluationID).
		Order("created_at DESC").
		Find(&runs).Error
	if err != nil {
		return nil, err
	}
	return runs, nil
}

// UpsertResult writes one (run, test case) result row. Writes against a run
// that already reached a terminal status are rejected so late-arriving results
// cannot mutate a finished run.
func (r *runRepository) UpsertResult(ctx context.Context, result *models.TestCaseResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run models.EvaluationRun
		if err := tx.Select("id", "status").First(&run, result.RunID).Error; err != nil {
			return err
		}
		if run.IsTerminal() {
			return ErrRunFinished
		}

		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "run_id"}, {Name: "test_case_id"}},
			UpdateAll: true,
		}).Create(result).Error
	})
}

func (r *runRepository) ListResults(ctx context.Context, runID uint) ([]models.TestCaseResult, error) {
	var results []models.TestCaseResult
	err := r.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("test_case_id ASC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/promptforge/promptforge-api/internal/models"
)

// EvaluationRepository exposes persistence operations for evaluations and
// their child test cases and criteria.
type EvaluationRepository interface {
	Create(ctx context.Context, evaluation *models.Evaluation) error
	Update(ctx context.Context, evaluation *models.Evaluation) error
	Delete(ctx context.Context, id, userID uint) error
	GetByID(ctx context.Context, id, userID uint) (models.Evaluation, error)
	List(ctx context.Context, userID uint, offset, limit int) ([]models.Evaluation, int64, error)

	CreateTestCase(ctx context.Context, testCase *models.TestCase) error
	UpdateTestCase(ctx context.Context, testCase *models.TestCase) error
	DeleteTestCase(ctx context.Context, id, evaluationID uint) error
	ListTestCases(ctx context.Context, evaluationID uint) ([]models.TestCase, error)
	NextOrderIndex(ctx context.Context, evaluationID uint) (int, error)

	CreateCriterion(ctx context.Context, criterion *models.EvaluationCriterion) error
	UpdateCriterion(ctx context.Context, criterion *models.EvaluationCriterion) error
	DeleteCriterion(ctx context.Context, id, evaluationID uint) error
	ListCriteria(ctx context.Context, evaluationID uint) ([]models.EvaluationCriterion, error)
}

// NewEvaluationRepository constructs an evaluation repository.
func NewEvaluationRepository(db *gorm.DB) EvaluationRepository {
	return &evaluationRepository{db: db}
}

type evaluationRepository struct {
	db *gorm.DB
}

func (r *evaluationRepository) Create(ctx context.Context, evaluation *models.Evaluation) error {
	return r.db.WithContext(ctx).Create(evaluation).Error
}

func (r *evaluationRepository) Update(ctx context.Context, evaluation *models.Evaluation) error {
	return r.db.WithContext(ctx).Save(evaluation).Error
}

func (r *evaluationRepository) Delete(ctx context.Context, id, userID uint) error {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Evaluation{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *evaluationRepository) GetByID(ctx context.Context, id, userID uint) (models.Evaluation, error) {
	var evaluation models.Evaluation
	err := r.db.WithContext(ctx).
		Preload("Prompt").
		Preload("TargetModel").
		Preload("TargetModel.Provider").
		Preload("JudgeModel").
		Preload("JudgeModel.Provider").
		Preload("TestCases", func(db *gorm.DB) *gorm.DB {
			return db.Order("test_cases.order_index ASC, test_cases.id ASC")
		}).
		Preload("TestCases.Attachments").
		Preload("Criteria").
		Where("user_id = ?", userID).
		First(&evaluation, id).Error
	if err != nil {
		return models.Evaluation{}, err
	}
	return evaluation, nil
}

func (r *evaluationRepository) List(ctx context.Context, userID uint, offset, limit int) ([]models.Evaluation, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.Evaluation{}).Where("user_id = ?", userID)

	var total int64
	if err := db.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if offset > 0 {
		db = db.Offset(offset)
	}
	if limit > 0 {
		db = db.Limit(limit)
	}

	var evaluations []models.Evaluation
	if err := db.Order("created_at DESC").Find(&evaluations).Error; err != nil {
		return nil, 0, err
	}

	return evaluations, total, nil
}

func (r *evaluationRepository) CreateTestCase(ctx context.Context, testCase *models.TestCase) error {
	return r.db.WithContext(ctx).Create(testCase).Error
}

func (r *evaluationRepository) UpdateTestCase(ctx context.Context, testCase *models.TestCase) error {
	return r.db.WithContext(ctx).Save(testCase).Error
}

func (r *evaluationRepository) DeleteTestCase(ctx context.Context, id, evaluationID uint) error {
	result := r.db.WithContext(ctx).
		Where("evaluation_id = ?", evaluationID).
		Delete(&models.TestCase{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *evaluationRepository) ListTestCases(ctx context.Context, evaluationID uint) ([]models.TestCase, error) {
	var testCases []models.TestCase
	err := r.db.WithContext(ctx).
		Preload("Attachments").
		Where("evaluation_id = ?", evaluationID).
		Order("order_index ASC, id ASC").
		Find(&testCases).Error
	if err != nil {
		return nil, err
	}
	return testCases, nil
}

// NextOrderIndex returns the first free order index for a new test case.
func (r *evaluationRepository) NextOrderIndex(ctx context.Context, evaluationID uint) (int, error) {
	var max *int
	err := r.db.WithContext(ctx).
		Model(&models.TestCase{}).
		Where("evaluation_id = ?", evaluationID).
		Select("MAX(order_index)").
		Scan(&max).Error
	if err != nil {
		return 0, err
	}
	if max == nil {
		return 0, nil
	}
	return *max + 1, nil
}

func (r *evaluationRepository) CreateCriterion(ctx context.Context, criterion *models.EvaluationCriterion) error {
	return r.db.WithContext(ctx).Create(criterion).Error
}

func (r *evaluationRepository) UpdateCriterion(ctx context.Context, criterion *models.EvaluationCriterion) error {
	return r.db.WithContext(ctx).Save(criterion).Error
}

func (r *evaluationRepository) DeleteCriterion(ctx context.Context, id, evaluationID uint) error {
	result := r.db.WithContext(ctx).
		Where("evaluation_id = ?", evaluationID).
		Delete(&models.EvaluationCriterion{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *evaluationRepository) ListCriteria(ctx context.Context, evaluationID uint) ([]models.EvaluationCriterion, error) {
	var criteria []models.EvaluationCriterion
	err := r.db.WithContext(ctx).
		Where("evaluation_id = ?", evaluationID).
		Order("id ASC").
		Find(&criteria).Error
	if err != nil {
		return nil, err
	}
	return criteria, nil
}

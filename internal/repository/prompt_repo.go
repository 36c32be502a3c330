package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/promptforge/promptforge-api/internal/models"
)

// PromptRepository exposes persistence operations for prompt templates.
type PromptRepository interface {
	Create(ctx context.Context, prompt *models.Prompt) error
	Update(ctx context.Context, prompt *models.Prompt) error
	Delete(ctx context.Context, id, userID uint) error
	GetByID(ctx context.Context, id, userID uint) (models.Prompt, error)
	List(ctx context.Context, userID uint, offset, limit int) ([]models.Prompt, int64, error)
}

// NewPromptRepository constructs a prompt repository.
func NewPromptRepository(db *gorm.DB) PromptRepository {
	return &promptRepository{db: db}
}

type promptRepository struct {
	db *gorm.DB
}

func (r *promptRepository) Create(ctx context.Context, prompt *models.Prompt) error {
	return r.db.WithContext(ctx).Create(prompt).Error
}

func (r *promptRepository) Update(ctx context.Context, prompt *models.Prompt) error {
	return r.db.WithContext(ctx).Save(prompt).Error
}

func (r *promptRepository) Delete(ctx context.Context, id, userID uint) error {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Prompt{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *promptRepository) GetByID(ctx context.Context, id, userID uint) (models.Prompt, error) {
	var prompt models.Prompt
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&prompt, id).Error
	if err != nil {
		return models.Prompt{}, err
	}
	return prompt, nil
}

func (r *promptRepository) List(ctx context.Context, userID uint, offset, limit int) ([]models.Prompt, int64, error) {
	db := r.db.WithContext(ctx).Model(&models.Prompt{}).Where("user_id = ?", userID)

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

	var prompts []models.Prompt
	if err := db.Order("created_at DESC").Find(&prompts).Error; err != nil {
		return nil, 0, err
	}

	return prompts, total, nil
}

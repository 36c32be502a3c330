package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/promptforge/promptforge-api/internal/models"
)

// ProviderRepository exposes persistence operations for providers and models.
type ProviderRepository interface {
	Create(ctx context.Context, provider *models.Provider) error
	Update(ctx context.Context, provider *models.Provider) error
	Delete(ctx context.Context, id, userID uint) error
	GetByID(ctx context.Context, id, userID uint) (models.Provider, error)
	List(ctx context.Context, userID uint) ([]models.Provider, error)
	AddModel(ctx context.Context, model *models.Model) error
	DeleteModel(ctx context.Context, modelID, userID uint) error
	GetModel(ctx context.Context, modelID, userID uint) (models.Model, error)
}

// NewProviderRepository constructs a provider repository.
func NewProviderRepository(db *gorm.DB) ProviderRepository {
	return &providerRepository{db: db}
}

type providerRepository struct {
	db *gorm.DB
}

func (r *providerRepository) Create(ctx context.Context, provider *models.Provider) error {
	return r.db.WithContext(ctx).Create(provider).Error
}

func (r *providerRepository) Update(ctx context.Context, provider *models.Provider) error {
	return r.db.WithContext(ctx).Save(provider).Error
}

func (r *providerRepository) Delete(ctx context.Context, id, userID uint) error {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Provider{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *providerRepository) GetByID(ctx context.Context, id, userID uint) (models.Provider, error) {
	var provider models.Provider
	err := r.db.WithContext(ctx).
		Preload("Models").
		Where("user_id = ?", userID).
		First(&provider, id).Error
	if err != nil {
		return models.Provider{}, err
	}
	return provider, nil
}

func (r *providerRepository) List(ctx context.Context, userID uint) ([]models.Provider, error) {
	var providers []models.Provider
	err := r.db.WithContext(ctx).
		Preload("Models").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&providers).Error
	if err != nil {
		return nil, err
	}
	return providers, nil
}

func (r *providerRepository) AddModel(ctx context.Context, model *models.Model) error {
	return r.db.WithContext(ctx).Create(model).Error
}

func (r *providerRepository) DeleteModel(ctx context.Context, modelID, userID uint) error {
	result := r.db.WithContext(ctx).
		Where("id IN (?)", r.db.Model(&models.Model{}).
			Select("models.id").
			Joins("JOIN providers ON providers.id = models.provider_id").
			Where("models.id = ? AND providers.user_id = ?", modelID, userID)).
		Delete(&models.Model{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetModel resolves a model and its provider, enforcing ownership through the
// provider row.
func (r *providerRepository) GetModel(ctx context.Context, modelID, userID uint) (models.Model, error) {
	var model models.Model
	err := r.db.WithContext(ctx).
		Preload("Provider").
		Joins("JOIN providers ON providers.id = models.provider_id").
		Where("models.id = ? AND providers.user_id = ?", modelID, userID).
		First(&model).Error
	if err != nil {
		return models.Model{}, err
	}
	return model, nil
}

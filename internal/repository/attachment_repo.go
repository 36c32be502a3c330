package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/promptforge/promptforge-api/internal/models"
)

// AttachmentRepository exposes persistence helpers for stored attachments.
type AttachmentRepository interface {
	Create(ctx context.Context, attachment *models.Attachment) error
	GetByID(ctx context.Context, id, userID uint) (models.Attachment, error)
	ListByIDs(ctx context.Context, ids []uint, userID uint) ([]models.Attachment, error)
	Delete(ctx context.Context, id, userID uint) error
}

// NewAttachmentRepository constructs an attachment repository.
func NewAttachmentRepository(db *gorm.DB) AttachmentRepository {
	return &attachmentRepository{db: db}
}

type attachmentRepository struct {
	db *gorm.DB
}

func (r *attachmentRepository) Create(ctx context.Context, attachment *models.Attachment) error {
	return r.db.WithContext(ctx).Create(attachment).Error
}

func (r *attachmentRepository) GetByID(ctx context.Context, id, userID uint) (models.Attachment, error) {
	var attachment models.Attachment
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&attachment, id).Error
	if err != nil {
		return models.Attachment{}, err
	}
	return attachment, nil
}

func (r *attachmentRepository) ListByIDs(ctx context.Context, ids []uint, userID uint) ([]models.Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var attachments []models.Attachment
	err := r.db.WithContext(ctx).
		Where("id IN ? AND user_id = ?", ids, userID).
		Find(&attachments).Error
	if err != nil {
		return nil, err
	}
	return attachments, nil
}

func (r *attachmentRepository) Delete(ctx context.Context, id, userID uint) error {
	result := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&models.Attachment{}, id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

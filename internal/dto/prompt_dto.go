package dto

import (
	"time"

	"github.com/promptforge/promptforge-api/internal/models"
)

// PromptCreateRequest represents the payload for creating a prompt template.
type PromptCreateRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
	Template    string `json:"template" validate:"required"`
}

// PromptUpdateRequest represents the payload for updating a prompt template.
type PromptUpdateRequest struct {
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
	Template    string `json:"template" validate:"required"`
}

// PromptResponse represents a prompt template to API consumers.
type PromptResponse struct {
	ID          uint      `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Template    string    `json:"template"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewPromptResponse builds a response DTO from a model.
func NewPromptResponse(prompt models.Prompt) PromptResponse {
	return PromptResponse{
		ID:          prompt.ID,
		Name:        prompt.Name,
		Description: prompt.Description,
		Template:    prompt.Template,
		CreatedAt:   prompt.CreatedAt,
		UpdatedAt:   prompt.UpdatedAt,
	}
}

// PromptListResponse wraps a page of prompts.
type PromptListResponse struct {
	Prompts []PromptResponse `json:"prompts"`
	Total   int64            `json:"total"`
}

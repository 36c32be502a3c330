package dto

import (
	"time"

	"github.com/promptforge/promptforge-api/internal/models"
)

// ProviderCreateRequest represents the payload for registering a provider.
type ProviderCreateRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	Kind    string `json:"kind" validate:"required,oneof=openai anthropic"`
	BaseURL string `json:"base_url" validate:"omitempty,url"`
	APIKey  string `json:"api_key" validate:"required"`
}

// ProviderUpdateRequest represents the payload for updating a provider.
// An empty APIKey leaves the stored key untouched.
type ProviderUpdateRequest struct {
	Name    string `json:"name" validate:"required,max=255"`
	BaseURL string `json:"base_url" validate:"omitempty,url"`
	APIKey  string `json:"api_key"`
}

// ModelCreateRequest represents the payload for adding a model to a provider.
type ModelCreateRequest struct {
	Name           string `json:"name" validate:"required,max=255"`
	DisplayName    string `json:"display_name" validate:"max=255"`
	SupportsVision bool   `json:"supports_vision"`
	MaxTokens      int    `json:"max_tokens" validate:"gte=0"`
}

// ModelResponse represents a provider model to API consumers.
type ModelResponse struct {
	ID             uint   `json:"id"`
	ProviderID     uint   `json:"provider_id"`
	Name           string `json:"name"`
	DisplayName    string `json:"display_name"`
	SupportsVision bool   `json:"supports_vision"`
	MaxTokens      int    `json:"max_tokens"`
}

// ProviderResponse represents a provider to API consumers. The API key is
// never echoed back.
type ProviderResponse struct {
	ID        uint            `json:"id"`
	Name      string          `json:"name"`
	Kind      string          `json:"kind"`
	BaseURL   string          `json:"base_url"`
	Models    []ModelResponse `json:"models"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewModelResponse builds a response DTO from a model.
func NewModelResponse(model models.Model) ModelResponse {
	return ModelResponse{
		ID:             model.ID,
		ProviderID:     model.ProviderID,
		Name:           model.Name,
		DisplayName:    model.DisplayName,
		SupportsVision: model.SupportsVision,
		MaxTokens:      model.MaxTokens,
	}
}

// NewProviderResponse builds a response DTO from a model.
func NewProviderResponse(provider models.Provider) ProviderResponse {
	modelResponses := make([]ModelResponse, 0, len(provider.Models))
	for _, model := range provider.Models {
		modelResponses = append(modelResponses, NewModelResponse(model))
	}

	return ProviderResponse{
		ID:        provider.ID,
		Name:      provider.Name,
		Kind:      provider.Kind,
		BaseURL:   provider.BaseURL,
		Models:    modelResponses,
		CreatedAt: provider.CreatedAt,
	}
}

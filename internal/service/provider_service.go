package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/promptforge/promptforge-api/internal/dto"
	"github.com/promptforge/promptforge-api/internal/models"
	"github.com/promptforge/promptforge-api/internal/repository"
)

// ProviderService manages model providers and their models. API keys are
// stored server-side and never returned to clients.
type ProviderService interface {
	Create(ctx context.Context, userID uint, req dto.ProviderCreateRequest) (dto.ProviderResponse, error)
	Update(ctx context.Context, userID, id uint, req dto.ProviderUpdateRequest) (dto.ProviderResponse, error)
	Delete(ctx context.Context, userID, id uint) error
	Get(ctx context.Context, userID, id uint) (dto.ProviderResponse, error)
	List(ctx context.Context, userID uint) ([]dto.ProviderResponse, error)
	AddModel(ctx context.Context, userID, providerID uint, req dto.ModelCreateRequest) (dto.ModelResponse, error)
	DeleteModel(ctx context.Context, userID, modelID uint) error
}

type providerService struct {
	repo      repository.ProviderRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewProviderService constructs the provider service.
func NewProviderService(repo repository.ProviderRepository, validate *validator.Validate, logger zerolog.Logger) ProviderService {
	return &providerService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "provider_service").Logger(),
	}
}

func (s *providerService) Create(ctx context.Context, userID uint, req dto.ProviderCreateRequest) (dto.ProviderResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ProviderResponse{}, err
	}

	provider := models.Provider{
		UserID:  userID,
		Name:    strings.TrimSpace(req.Name),
		Kind:    req.Kind,
		BaseURL: strings.TrimSpace(req.BaseURL),
		APIKey:  req.APIKey,
	}

	if err := s.repo.Create(ctx, &provider); err != nil {
		return dto.ProviderResponse{}, err
	}

	s.logger.Info().Uint("provider_id", provider.ID).Str("kind", provider.Kind).Msg("provider registered")
	return dto.NewProviderResponse(provider), nil
}

func (s *providerService) Update(ctx context.Context, userID, id uint, req dto.ProviderUpdateRequest) (dto.ProviderResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ProviderResponse{}, err
	}

	provider, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return dto.ProviderResponse{}, err
	}

	provider.Name = strings.TrimSpace(req.Name)
	provider.BaseURL = strings.TrimSpace(req.BaseURL)
	if req.APIKey != "" {
		provider.APIKey = req.APIKey
	}

	if err := s.repo.Update(ctx, &provider); err != nil {
		return dto.ProviderResponse{}, err
	}

	return dto.NewProviderResponse(provider), nil
}

func (s *providerService) Delete(ctx context.Context, userID, id uint) error {
	return s.repo.Delete(ctx, id, userID)
}

func (s *providerService) Get(ctx context.Context, userID, id uint) (dto.ProviderResponse, error) {
	provider, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return dto.ProviderResponse{}, err
	}
	return dto.NewProviderResponse(provider), nil
}

func (s *providerService) List(ctx context.Context, userID uint) ([]dto.ProviderResponse, error) {
	providers, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	items := make([]dto.ProviderResponse, 0, len(providers))
	for _, provider := range providers {
		items = append(items, dto.NewProviderResponse(provider))
	}
	return items, nil
}

func (s *providerService) AddModel(ctx context.Context, userID, providerID uint, req dto.ModelCreateRequest) (dto.ModelResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ModelResponse{}, err
	}

	// Ownership check before attaching the model.
	if _, err := s.repo.GetByID(ctx, providerID, userID); err != nil {
		return dto.ModelResponse{}, err
	}

	model := models.Model{
		ProviderID:     providerID,
		Name:           strings.TrimSpace(req.Name),
		DisplayName:    strings.TrimSpace(req.DisplayName),
		SupportsVision: req.SupportsVision,
		MaxTokens:      req.MaxTokens,
	}

	if err := s.repo.AddModel(ctx, &model); err != nil {
		return dto.ModelResponse{}, err
	}

	return dto.NewModelResponse(model), nil
}

func (s *providerService) DeleteModel(ctx context.Context, userID, modelID uint) error {
	return s.repo.DeleteModel(ctx, modelID, userID)
}

package service

import (
	"context"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"

	"github.com/promptforge/promptforge-api/internal/dto"
	"github.com/promptforge/promptforge-api/internal/engine"
	"github.com/promptforge/promptforge-api/internal/models"
	"github.com/promptforge/promptforge-api/internal/repository"
)

// PromptService manages reusable prompt templates.
type PromptService interface {
	Create(ctx context.Context, userID uint, req dto.PromptCreateRequest) (dto.PromptResponse, error)
	Update(ctx context.Context, userID, id uint, req dto.PromptUpdateRequest) (dto.PromptResponse, error)
	Delete(ctx context.Context, userID, id uint) error
	Get(ctx context.Context, userID, id uint) (dto.PromptResponse, error)
	List(ctx context.Context, userID uint, page, pageSize int) (dto.PromptListResponse, error)
	Render(template string, variables map[string]interface{}) string
}

type promptService struct {
	repo      repository.PromptRepository
	validator *validator.Validate
	sanitizer *bluemonday.Policy
	logger    zerolog.Logger
}

// NewPromptService constructs the prompt service.
func NewPromptService(repo repository.PromptRepository, validate *validator.Validate, logger zerolog.Logger) PromptService {
	return &promptService{
		repo:      repo,
		validator: validate,
		sanitizer: bluemonday.StrictPolicy(),
		logger:    logger.With().Str("component", "prompt_service").Logger(),
	}
}

func (s *promptService) Create(ctx context.Context, userID uint, req dto.PromptCreateRequest) (dto.PromptResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.PromptResponse{}, err
	}

	prompt := models.Prompt{
		UserID:      userID,
		Name:        strings.TrimSpace(req.Name),
		Description: s.sanitizer.Sanitize(req.Description),
		Template:    req.Template,
	}

	if err := s.repo.Create(ctx, &prompt); err != nil {
		return dto.PromptResponse{}, err
	}

	s.logger.Info().Uint("prompt_id", prompt.ID).Uint("user_id", userID).Msg("prompt created")
	return dto.NewPromptResponse(prompt), nil
}

func (s *promptService) Update(ctx context.Context, userID, id uint, req dto.PromptUpdateRequest) (dto.PromptResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.PromptResponse{}, err
	}

	prompt, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return dto.PromptResponse{}, err
	}

	prompt.Name = strings.TrimSpace(req.Name)
	prompt.Description = s.sanitizer.Sanitize(req.Description)
	prompt.Template = req.Template

	if err := s.repo.Update(ctx, &prompt); err != nil {
		return dto.PromptResponse{}, err
	}

	return dto.NewPromptResponse(prompt), nil
}

func (s *promptService) Delete(ctx context.Context, userID, id uint) error {
	return s.repo.Delete(ctx, id, userID)
}

func (s *promptService) Get(ctx context.Context, userID, id uint) (dto.PromptResponse, error) {
	prompt, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return dto.PromptResponse{}, err
	}
	return dto.NewPromptResponse(prompt), nil
}

func (s *promptService) List(ctx context.Context, userID uint, page, pageSize int) (dto.PromptListResponse, error) {
	page = normalizePage(page)
	pageSize = clampPageSize(pageSize)

	prompts, total, err := s.repo.List(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return dto.PromptListResponse{}, err
	}

	items := make([]dto.PromptResponse, 0, len(prompts))
	for _, prompt := range prompts {
		items = append(items, dto.NewPromptResponse(prompt))
	}

	return dto.PromptListResponse{Prompts: items, Total: total}, nil
}

// Render substitutes {{variable}} placeholders, used for template previews.
func (s *promptService) Render(template string, variables map[string]interface{}) string {
	return engine.RenderTemplate(template, variables)
}

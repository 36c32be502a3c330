package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/promptforge/promptforge-api/internal/dto"
	"github.com/promptforge/promptforge-api/internal/models"
	"github.com/promptforge/promptforge-api/internal/repository"
)

// ErrAttachmentNotOwned indicates a referenced attachment does not exist or
// belongs to another user.
var ErrAttachmentNotOwned = errors.New("attachment not found")

// EvaluationService manages evaluations with their test cases and criteria.
type EvaluationService interface {
	Create(ctx context.Context, userID uint, req dto.EvaluationCreateRequest) (dto.EvaluationResponse, error)
	Update(ctx context.Context, userID, id uint, req dto.EvaluationUpdateRequest) (dto.EvaluationResponse, error)
	Delete(ctx context.Context, userID, id uint) error
	Get(ctx context.Context, userID, id uint) (dto.EvaluationResponse, error)
	List(ctx context.Context, userID uint, page, pageSize int) (dto.EvaluationListResponse, error)

	AddTestCase(ctx context.Context, userID, evaluationID uint, req dto.TestCaseCreateRequest) (dto.TestCaseResponse, error)
	UpdateTestCase(ctx context.Context, userID, evaluationID, testCaseID uint, req dto.TestCaseUpdateRequest) (dto.TestCaseResponse, error)
	DeleteTestCase(ctx context.Context, userID, evaluationID, testCaseID uint) error
	ListTestCases(ctx context.Context, userID, evaluationID uint) ([]dto.TestCaseResponse, error)

	AddCriterion(ctx context.Context, userID, evaluationID uint, req dto.CriterionCreateRequest) (dto.CriterionResponse, error)
	UpdateCriterion(ctx context.Context, userID, evaluationID, criterionID uint, req dto.CriterionUpdateRequest) (dto.CriterionResponse, error)
	DeleteCriterion(ctx context.Context, userID, evaluationID, criterionID uint) error
	ListCriteria(ctx context.Context, userID, evaluationID uint) ([]dto.CriterionResponse, error)
}

type evaluationService struct {
	repo        repository.EvaluationRepository
	attachments repository.AttachmentRepository
	validator   *validator.Validate
	sanitizer   *bluemonday.Policy
	logger      zerolog.Logger
}

// NewEvaluationService constructs the evaluation service.
func NewEvaluationService(repo repository.EvaluationRepository, attachments repository.AttachmentRepository, validate *validator.Validate, logger zerolog.Logger) EvaluationService {
	return &evaluationService{
		repo:        repo,
		attachments: attachments,
		validator:   validate,
		sanitizer:   bluemonday.StrictPolicy(),
		logger:      logger.With().Str("component", "evaluation_service").Logger(),
	}
}

func (s *evaluationService) Create(ctx context.Context, userID uint, req dto.EvaluationCreateRequest) (dto.EvaluationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.EvaluationResponse{}, err
	}

	config := models.EvaluationConfig{}.Normalized()
	if req.Config != nil {
		config = req.Config.ToModel()
	}

	evaluation := models.Evaluation{
		UserID:        userID,
		Name:          strings.TrimSpace(req.Name),
		Description:   s.sanitizer.Sanitize(req.Description),
		PromptID:      req.PromptID,
		TargetModelID: req.TargetModelID,
		JudgeModelID:  req.JudgeModelID,
		Status:        models.EvaluationStatusDraft,
		Config:        datatypes.NewJSONType(config),
	}

	if err := s.repo.Create(ctx, &evaluation); err != nil {
		return dto.EvaluationResponse{}, err
	}

	s.logger.Info().Uint("evaluation_id", evaluation.ID).Uint("user_id", userID).Msg("evaluation created")
	return dto.NewEvaluationResponse(evaluation, false), nil
}

func (s *evaluationService) Update(ctx context.Context, userID, id uint, req dto.EvaluationUpdateRequest) (dto.EvaluationResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.EvaluationResponse{}, err
	}

	evaluation, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return dto.EvaluationResponse{}, err
	}

	evaluation.Name = strings.TrimSpace(req.Name)
	evaluation.Description = s.sanitizer.Sanitize(req.Description)
	evaluation.PromptID = req.PromptID
	evaluation.TargetModelID = req.TargetModelID
	evaluation.JudgeModelID = req.JudgeModelID
	if req.Config != nil {
		evaluation.Config = datatypes.NewJSONType(req.Config.ToModel())
	}

	if err := s.repo.Update(ctx, &evaluation); err != nil {
		return dto.EvaluationResponse{}, err
	}

	return dto.NewEvaluationResponse(evaluation, true), nil
}

func (s *evaluationService) Delete(ctx context.Context, userID, id uint) error {
	return s.repo.Delete(ctx, id, userID)
}

func (s *evaluationService) Get(ctx context.Context, userID, id uint) (dto.EvaluationResponse, error) {
	evaluation, err := s.repo.GetByID(ctx, id, userID)
	if err != nil {
		return dto.EvaluationResponse{}, err
	}
	return dto.NewEvaluationResponse(evaluation, true), nil
}

func (s *evaluationService) List(ctx context.Context, userID uint, page, pageSize int) (dto.EvaluationListResponse, error) {
	page = normalizePage(page)
	pageSize = clampPageSize(pageSize)

	evaluations, total, err := s.repo.List(ctx, userID, (page-1)*pageSize, pageSize)
	if err != nil {
		return dto.EvaluationListResponse{}, err
	}

	items := make([]dto.EvaluationResponse, 0, len(evaluations))
	for _, evaluation := range evaluations {
		items = append(items, dto.NewEvaluationResponse(evaluation, false))
	}

	return dto.EvaluationListResponse{Evaluations: items, Total: total}, nil
}

func (s *evaluationService) AddTestCase(ctx context.Context, userID, evaluationID uint, req dto.TestCaseCreateRequest) (dto.TestCaseResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.TestCaseResponse{}, err
	}

	if _, err := s.repo.GetByID(ctx, evaluationID, userID); err != nil {
		return dto.TestCaseResponse{}, err
	}

	attachments, err := s.resolveAttachments(ctx, req.AttachmentIDs, userID)
	if err != nil {
		return dto.TestCaseResponse{}, err
	}

	orderIndex, err := s.repo.NextOrderIndex(ctx, evaluationID)
	if err != nil {
		return dto.TestCaseResponse{}, err
	}

	testCase := models.TestCase{
		EvaluationID:   evaluationID,
		Input:          req.Input,
		InputVariables: req.InputVariables,
		ExpectedOutput: req.ExpectedOutput,
		OrderIndex:     orderIndex,
		Attachments:    attachments,
	}

	if err := s.repo.CreateTestCase(ctx, &testCase); err != nil {
		return dto.TestCaseResponse{}, err
	}

	return dto.NewTestCaseResponse(testCase), nil
}

func (s *evaluationService) UpdateTestCase(ctx context.Context, userID, evaluationID, testCaseID uint, req dto.TestCaseUpdateRequest) (dto.TestCaseResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.TestCaseResponse{}, err
	}

	if _, err := s.repo.GetByID(ctx, evaluationID, userID); err != nil {
		return dto.TestCaseResponse{}, err
	}

	existing, err := s.findTestCase(ctx, evaluationID, testCaseID)
	if err != nil {
		return dto.TestCaseResponse{}, err
	}

	attachments, err := s.resolveAttachments(ctx, req.AttachmentIDs, userID)
	if err != nil {
		return dto.TestCaseResponse{}, err
	}

	existing.Input = req.Input
	existing.InputVariables = req.InputVariables
	existing.ExpectedOutput = req.ExpectedOutput
	existing.Attachments = attachments
	if req.OrderIndex != nil {
		existing.OrderIndex = *req.OrderIndex
	}

	if err := s.repo.UpdateTestCase(ctx, &existing); err != nil {
		return dto.TestCaseResponse{}, err
	}

	return dto.NewTestCaseResponse(existing), nil
}

func (s *evaluationService) DeleteTestCase(ctx context.Context, userID, evaluationID, testCaseID uint) error {
	if _, err := s.repo.GetByID(ctx, evaluationID, userID); err != nil {
		return err
	}
	return s.repo.DeleteTestCase(ctx, testCaseID, evaluationID)
}

func (s *evaluationService) ListTestCases(ctx context.Context, userID, evaluationID uint) ([]dto.TestCaseResponse, error) {
	if _, err := s.repo.GetByID(ctx, evaluationID, userID); err != nil {
		return nil, err
	}

	testCases, err := s.repo.ListTestCases(ctx, evaluationID)
	if err != nil {
		return nil, err
	}

	items := make([]dto.TestCaseResponse, 0, len(testCases))
	for _, testCase := range testCases {
		items = append(items, dto.NewTestCaseResponse(testCase))
	}
	return items, nil
}

func (s *evaluationService) AddCriterion(ctx context.Context, userID, evaluationID uint, req dto.CriterionCreateRequest) (dto.CriterionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.CriterionResponse{}, err
	}

	if _, err := s.repo.GetByID(ctx, evaluationID, userID); err != nil {
		return dto.CriterionResponse{}, err
	}

	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	criterion := models.EvaluationCriterion{
		EvaluationID: evaluationID,
		Name:         strings.TrimSpace(req.Name),
		JudgePrompt:  req.JudgePrompt,
		Weight:       req.Weight,
		Enabled:      enabled,
	}
	if criterion.Weight <= 0 {
		criterion.Weight = 1
	}

	if err := s.repo.CreateCriterion(ctx, &criterion); err != nil {
		return dto.CriterionResponse{}, err
	}

	return dto.NewCriterionResponse(criterion), nil
}

func (s *evaluationService) UpdateCriterion(ctx context.Context, userID, evaluationID, criterionID uint, req dto.CriterionUpdateRequest) (dto.CriterionResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.CriterionResponse{}, err
	}

	if _, err := s.repo.GetByID(ctx, evaluationID, userID); err != nil {
		return dto.CriterionResponse{}, err
	}

	existing, err := s.findCriterion(ctx, evaluationID, criterionID)
	if err != nil {
		return dto.CriterionResponse{}, err
	}

	existing.Name = strings.TrimSpace(req.Name)
	existing.JudgePrompt = req.JudgePrompt
	if req.Weight > 0 {
		existing.Weight = req.Weight
	}
	if req.Enabled != nil {
		existing.Enabled = *req.Enabled
	}

	if err := s.repo.UpdateCriterion(ctx, &existing); err != nil {
		return dto.CriterionResponse{}, err
	}

	return dto.NewCriterionResponse(existing), nil
}

func (s *evaluationService) DeleteCriterion(ctx context.Context, userID, evaluationID, criterionID uint) error {
	if _, err := s.repo.GetByID(ctx, evaluationID, userID); err != nil {
		return err
	}
	return s.repo.DeleteCriterion(ctx, criterionID, evaluationID)
}

func (s *evaluationService) ListCriteria(ctx context.Context, userID, evaluationID uint) ([]dto.CriterionResponse, error) {
	if _, err := s.repo.GetByID(ctx, evaluationID, userID); err != nil {
		return nil, err
	}

	criteria, err := s.repo.ListCriteria(ctx, evaluationID)
	if err != nil {
		return nil, err
	}

	items := make([]dto.CriterionResponse, 0, len(criteria))
	for _, criterion := range criteria {
		items = append(items, dto.NewCriterionResponse(criterion))
	}
	return items, nil
}

func (s *evaluationService) resolveAttachments(ctx context.Context, ids []uint, userID uint) ([]models.Attachment, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	attachments, err := s.attachments.ListByIDs(ctx, ids, userID)
	if err != nil {
		return nil, err
	}
	if len(attachments) != len(ids) {
		return nil, fmt.Errorf("%w: %d of %d resolved", ErrAttachmentNotOwned, len(attachments), len(ids))
	}
	return attachments, nil
}

func (s *evaluationService) findTestCase(ctx context.Context, evaluationID, testCaseID uint) (models.TestCase, error) {
	testCases, err := s.repo.ListTestCases(ctx, evaluationID)
	if err != nil {
		return models.TestCase{}, err
	}
	for _, testCase := range testCases {
		if testCase.ID == testCaseID {
			return testCase, nil
		}
	}
	return models.TestCase{}, gorm.ErrRecordNotFound
}

func (s *evaluationService) findCriterion(ctx context.Context, evaluationID, criterionID uint) (models.EvaluationCriterion, error) {
	criteria, err := s.repo.ListCriteria(ctx, evaluationID)
	if err != nil {
		return models.EvaluationCriterion{}, err
	}
	for _, criterion := range criteria {
		if criterion.ID == criterionID {
			return criterion, nil
		}
	}
	return models.EvaluationCriterion{}, gorm.ErrRecordNotFound
}

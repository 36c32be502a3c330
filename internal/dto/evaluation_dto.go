package dto

import (
	"time"

	"github.com/promptforge/promptforge-api/internal/models"
)

// EvaluationConfigPayload mirrors models.EvaluationConfig for request bodies.
type EvaluationConfigPayload struct {
	PassThreshold  float64 `json:"pass_threshold" validate:"gte=0,lte=100"`
	Temperature    float32 `json:"temperature" validate:"gte=0,lte=2"`
	TopP           float32 `json:"top_p" validate:"gte=0,lte=1"`
	MaxTokens      int     `json:"max_tokens" validate:"gte=0"`
	FileProcessing string  `json:"file_processing" validate:"omitempty,oneof=vision ocr auto none"`
}

// ToModel converts the payload into the persisted config shape.
func (p EvaluationConfigPayload) ToModel() models.EvaluationConfig {
	return models.EvaluationConfig{
		PassThreshold:  p.PassThreshold,
		Temperature:    p.Temperature,
		TopP:           p.TopP,
		MaxTokens:      p.MaxTokens,
		FileProcessing: p.FileProcessing,
	}.Normalized()
}

// EvaluationCreateRequest represents the payload for creating an evaluation.
type EvaluationCreateRequest struct {
	Name          string                   `json:"name" validate:"required,max=255"`
	Description   string                   `json:"description"`
	PromptID      *uint                    `json:"prompt_id"`
	TargetModelID *uint                    `json:"target_model_id"`
	JudgeModelID  *uint                    `json:"judge_model_id"`
	Config        *EvaluationConfigPayload `json:"config"`
}

// EvaluationUpdateRequest represents the payload for updating an evaluation.
type EvaluationUpdateRequest struct {
	Name          string                   `json:"name" validate:"required,max=255"`
	Description   string                   `json:"description"`
	PromptID      *uint                    `json:"prompt_id"`
	TargetModelID *uint                    `json:"target_model_id"`
	JudgeModelID  *uint                    `json:"judge_model_id"`
	Config        *EvaluationConfigPayload `json:"config"`
}

// TestCaseCreateRequest represents the payload for adding a test case.
type TestCaseCreateRequest struct {
	Input          string                 `json:"input" validate:"required"`
	InputVariables map[string]interface{} `json:"input_variables"`
	ExpectedOutput string                 `json:"expected_output"`
	AttachmentIDs  []uint                 `json:"attachment_ids"`
}

// TestCaseUpdateRequest represents the payload for updating a test case.
type TestCaseUpdateRequest struct {
	Input          string                 `json:"input" validate:"required"`
	InputVariables map[string]interface{} `json:"input_variables"`
	ExpectedOutput string                 `json:"expected_output"`
	AttachmentIDs  []uint                 `json:"attachment_ids"`
	OrderIndex     *int                   `json:"order_index"`
}

// CriterionCreateRequest represents the payload for adding a criterion.
type CriterionCreateRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	JudgePrompt string  `json:"judge_prompt"`
	Weight      float64 `json:"weight" validate:"gte=0"`
	Enabled     *bool   `json:"enabled"`
}

// CriterionUpdateRequest represents the payload for updating a criterion.
type CriterionUpdateRequest struct {
	Name        string  `json:"name" validate:"required,max=255"`
	JudgePrompt string  `json:"judge_prompt"`
	Weight      float64 `json:"weight" validate:"gte=0"`
	Enabled     *bool   `json:"enabled"`
}

// AttachmentResponse represents a stored attachment to API consumers.
type AttachmentResponse struct {
	ID        uint      `json:"id"`
	FileName  string    `json:"file_name"`
	MimeType  string    `json:"mime_type"`
	SizeBytes int64     `json:"size_bytes"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// NewAttachmentResponse builds a response DTO from a model.
func NewAttachmentResponse(attachment models.Attachment) AttachmentResponse {
	return AttachmentResponse{
		ID:        attachment.ID,
		FileName:  attachment.FileName,
		MimeType:  attachment.MimeType,
		SizeBytes: attachment.SizeBytes,
		URL:       attachment.URL,
		CreatedAt: attachment.CreatedAt,
	}
}

// TestCaseResponse represents a test case to API consumers.
type TestCaseResponse struct {
	ID             uint                   `json:"id"`
	EvaluationID   uint                   `json:"evaluation_id"`
	Input          string                 `json:"input"`
	InputVariables map[string]interface{} `json:"input_variables"`
	ExpectedOutput string                 `json:"expected_output"`
	OrderIndex     int                    `json:"order_index"`
	Attachments    []AttachmentResponse   `json:"attachments"`
}

// NewTestCaseResponse builds a response DTO from a model.
func NewTestCaseResponse(testCase models.TestCase) TestCaseResponse {
	attachments := make([]AttachmentResponse, 0, len(testCase.Attachments))
	for _, attachment := range testCase.Attachments {
		attachments = append(attachments, NewAttachmentResponse(attachment))
	}

	return TestCaseResponse{
		ID:             testCase.ID,
		EvaluationID:   testCase.EvaluationID,
		Input:          testCase.Input,
		InputVariables: testCase.InputVariables,
		ExpectedOutput: testCase.ExpectedOutput,
		OrderIndex:     testCase.OrderIndex,
		Attachments:    attachments,
	}
}

// CriterionResponse represents a criterion to API consumers.
type CriterionResponse struct {
	ID           uint    `json:"id"`
	EvaluationID uint    `json:"evaluation_id"`
	Name         string  `json:"name"`
	JudgePrompt  string  `json:"judge_prompt"`
	Weight       float64 `json:"weight"`
	Enabled      bool    `json:"enabled"`
}

// NewCriterionResponse builds a response DTO from a model.
func NewCriterionResponse(criterion models.EvaluationCriterion) CriterionResponse {
	return CriterionResponse{
		ID:           criterion.ID,
		EvaluationID: criterion.EvaluationID,
		Name:         criterion.Name,
		JudgePrompt:  criterion.JudgePrompt,
		Weight:       criterion.Weight,
		Enabled:      criterion.Enabled,
	}
}

// EvaluationResponse represents an evaluation to API consumers.
type EvaluationResponse struct {
	ID            uint                    `json:"id"`
	Name          string                  `json:"name"`
	Description   string                  `json:"description"`
	PromptID      *uint                   `json:"prompt_id"`
	TargetModelID *uint                   `json:"target_model_id"`
	JudgeModelID  *uint                   `json:"judge_model_id"`
	Status        string                  `json:"status"`
	Config        EvaluationConfigPayload `json:"config"`
	Results       map[string]interface{}  `json:"results,omitempty"`
	TestCases     []TestCaseResponse      `json:"test_cases,omitempty"`
	Criteria      []CriterionResponse     `json:"criteria,omitempty"`
	CompletedAt   *time.Time              `json:"completed_at"`
	CreatedAt     time.Time               `json:"created_at"`
	UpdatedAt     time.Time               `json:"updated_at"`
}

// NewEvaluationResponse builds a response DTO from a model.
func NewEvaluationResponse(evaluation models.Evaluation, includeChildren bool) EvaluationResponse {
	config := evaluation.Config.Data().Normalized()
	response := EvaluationResponse{
		ID:            evaluation.ID,
		Name:          evaluation.Name,
		Description:   evaluation.Description,
		PromptID:      evaluation.PromptID,
		TargetModelID: evaluation.TargetModelID,
		JudgeModelID:  evaluation.JudgeModelID,
		Status:        evaluation.Status,
		Config: EvaluationConfigPayload{
			PassThreshold:  config.PassThreshold,
			Temperature:    config.Temperature,
			TopP:           config.TopP,
			MaxTokens:      config.MaxTokens,
			FileProcessing: config.FileProcessing,
		},
		Results:     evaluation.Results,
		CompletedAt: evaluation.CompletedAt,
		CreatedAt:   evaluation.CreatedAt,
		UpdatedAt:   evaluation.UpdatedAt,
	}

	if includeChildren {
		response.TestCases = make([]TestCaseResponse, 0, len(evaluation.TestCases))
		for _, testCase := range evaluation.TestCases {
			response.TestCases = append(response.TestCases, NewTestCaseResponse(testCase))
		}
		response.Criteria = make([]CriterionResponse, 0, len(evaluation.Criteria))
		for _, criterion := range evaluation.Criteria {
			response.Criteria = append(response.Criteria, NewCriterionResponse(criterion))
		}
	}

	return response
}

// EvaluationListResponse wraps a page of evaluations.
type EvaluationListResponse struct {
	Evaluations []EvaluationResponse `json:"evaluations"`
	Total       int64                `json:"total"`
}

package models

import (
	"time"

	"gorm.io/datatypes"
)

// EvaluationStatus enumerates evaluation lifecycle states.
const (
	EvaluationStatusDraft   = "draft"
	EvaluationStatusReady   = "ready"
	EvaluationStatusRunning = "running"
)

// FileProcessing enumerates how test case attachments are handled during a run.
const (
	FileProcessingVision = "vision"
	FileProcessingOCR    = "ocr"
	FileProcessingAuto   = "auto"
	FileProcessingNone   = "none"
)

// DefaultPassThreshold is the composite score a test case must reach to pass.
const DefaultPassThreshold = 60.0

// EvaluationConfig holds run-time knobs stored alongside an evaluation.
type EvaluationConfig struct {
	PassThreshold  float64 `json:"pass_threshold"`
	Temperature    float32 `json:"temperature"`
	TopP           float32 `json:"top_p"`
	MaxTokens      int     `json:"max_tokens"`
	FileProcessing string  `json:"file_processing"`
}

// Normalized returns the config with defaults applied.
func (c EvaluationConfig) Normalized() EvaluationConfig {
	if c.PassThreshold <= 0 {
		c.PassThreshold = DefaultPassThreshold
	}
	if c.FileProcessing == "" {
		c.FileProcessing = FileProcessingNone
	}
	return c
}

// Evaluation binds a prompt, a target model, an optional judge model, test
// cases and weighted criteria into one runnable unit.
type Evaluation struct {
	ID            uint                                   `gorm:"primaryKey" json:"id"`
	UserID        uint                                   `gorm:"not null;index" json:"user_id"`
	Name          string                                 `gorm:"size:255;not null" json:"name"`
	Description   string                                 `gorm:"type:text" json:"description"`
	PromptID      *uint                                  `json:"prompt_id"`
	TargetModelID *uint                                  `json:"target_model_id"`
	JudgeModelID  *uint                                  `json:"judge_model_id"`
	Status        string                                 `gorm:"size:32;not null;default:draft" json:"status"`
	Config        datatypes.JSONType[EvaluationConfig]   `json:"config"`
	Results       datatypes.JSONMap                      `json:"results"`
	CompletedAt   *time.Time                             `json:"completed_at"`
	CreatedAt     time.Time                              `json:"created_at"`
	UpdatedAt     time.Time                              `json:"updated_at"`
	Prompt        *Prompt                                `gorm:"constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"prompt,omitempty"`
	TargetModel   *Model                                 `gorm:"foreignKey:TargetModelID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"target_model,omitempty"`
	JudgeModel    *Model                                 `gorm:"foreignKey:JudgeModelID;constraint:OnUpdate:CASCADE,OnDelete:SET NULL" json:"judge_model,omitempty"`
	TestCases     []TestCase                             `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"test_cases,omitempty"`
	Criteria      []EvaluationCriterion                  `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"criteria,omitempty"`
	Runs          []EvaluationRun                        `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

// EnabledCriteria filters the attached criteria down to the enabled ones.
func (e Evaluation) EnabledCriteria() []EvaluationCriterion {
	enabled := make([]EvaluationCriterion, 0, len(e.Criteria))
	for _, criterion := range e.Criteria {
		if criterion.Enabled {
			enabled = append(enabled, criterion)
		}
	}
	return enabled
}

// TestCase is one input run through the target model during an evaluation run.
type TestCase struct {
	ID             uint              `gorm:"primaryKey" json:"id"`
	EvaluationID   uint              `gorm:"not null;index" json:"evaluation_id"`
	Input          string            `gorm:"type:text" json:"input"`
	InputVariables datatypes.JSONMap `json:"input_variables"`
	ExpectedOutput string            `gorm:"type:text" json:"expected_output"`
	OrderIndex     int               `gorm:"not null;default:0" json:"order_index"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
	Attachments    []Attachment      `gorm:"many2many:test_case_attachments" json:"attachments,omitempty"`
}

// EvaluationCriterion is a weighted, independently judged quality dimension.
type EvaluationCriterion struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	EvaluationID uint      `gorm:"not null;index" json:"evaluation_id"`
	Name         string    `gorm:"size:255;not null" json:"name"`
	JudgePrompt  string    `gorm:"type:text" json:"judge_prompt"`
	Weight       float64   `gorm:"not null;default:1" json:"weight"`
	Enabled      bool      `gorm:"not null;default:true" json:"enabled"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/promptforge/promptforge-api/internal/models"
	"github.com/promptforge/promptforge-api/pkg/ai"
	"github.com/promptforge/promptforge-api/pkg/ocr"
)

const (
	defaultMaxAttempts  = 3
	defaultRetryBackoff = time.Second
)

// ExecuteInput bundles everything needed to run one test case against the
// target model.
type ExecuteInput struct {
	TestCase       models.TestCase
	PromptTemplate string
	Model          models.Model
	Gateway        ai.Gateway
	Config         models.EvaluationConfig
}

// Executor runs single test cases. Execute is total: any failure is folded
// into the returned result, never surfaced as an error, so one case's failure
// cannot abort the others.
type Executor struct {
	ocr         ocr.Extractor
	logger      zerolog.Logger
	maxAttempts uint64
	backoffBase time.Duration
}

// NewExecutor constructs a test case executor. The extractor may be nil when
// OCR is not configured.
func NewExecutor(extractor ocr.Extractor, logger zerolog.Logger) *Executor {
	return &Executor{
		ocr:         extractor,
		logger:      logger.With().Str("component", "executor").Logger(),
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultRetryBackoff,
	}
}

// Execute runs the test case and returns its unscored result.
func (e *Executor) Execute(ctx context.Context, in ExecuteInput) models.TestCaseResult {
	result := models.TestCaseResult{TestCaseID: in.TestCase.ID}

	messages, err := e.composeMessages(ctx, in)
	if err != nil {
		result.ErrorMessage = err.Error()
		return result
	}

	params := ai.Parameters{
		Temperature: in.Config.Temperature,
		TopP:        in.Config.TopP,
		MaxTokens:   in.Config.MaxTokens,
	}

	completion, err := e.completeWithRetry(ctx, in.Gateway, in.Model.Name, messages, params)
	if err != nil {
		e.logger.Warn().Err(err).
			Uint("test_case_id", in.TestCase.ID).
			Str("model", in.Model.Name).
			Msg("model call failed after retries")
		result.ErrorMessage = err.Error()
		return result
	}

	result.ModelOutput = completion.Text
	result.TokensInput = completion.TokensInput
	result.TokensOutput = completion.TokensOutput
	result.LatencyMs = completion.Latency.Milliseconds()
	return result
}

func (e *Executor) completeWithRetry(ctx context.Context, gateway ai.Gateway, model string, messages []ai.Message, params ai.Parameters) (ai.Completion, error) {
	var completion ai.Completion

	operation := func() error {
		var err error
		completion, err = gateway.Complete(ctx, model, messages, params)
		if err != nil && !ai.IsTransient(err) {
			return backoff.Permanent(err)
		}
		return err
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = e.backoffBase

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(policy, e.maxAttempts-1), ctx))
	if err != nil {
		return ai.Completion{}, err
	}
	return completion, nil
}

func (e *Executor) composeMessages(ctx context.Context, in ExecuteInput) ([]ai.Message, error) {
	userMessage := ai.Message{
		Role:    ai.RoleUser,
		Content: strings.TrimSpace(in.TestCase.Input),
	}

	if err := e.applyFilePolicy(ctx, in, &userMessage); err != nil {
		return nil, err
	}

	messages := make([]ai.Message, 0, 2)
	if in.PromptTemplate != "" {
		messages = append(messages, ai.Message{
			Role:    ai.RoleSystem,
			Content: RenderTemplate(in.PromptTemplate, in.TestCase.InputVariables),
		})
	}
	if userMessage.Content == "" && len(userMessage.ImageURLs) == 0 {
		return nil, fmt.Errorf("test case %d has no input", in.TestCase.ID)
	}

	return append(messages, userMessage), nil
}

func (e *Executor) applyFilePolicy(ctx context.Context, in ExecuteInput, message *ai.Message) error {
	attachments := in.TestCase.Attachments
	if len(attachments) == 0 {
		return nil
	}

	policy := in.Config.Normalized().FileProcessing
	if policy == models.FileProcessingAuto {
		switch {
		case in.Model.SupportsVision:
			policy = models.FileProcessingVision
		case e.ocr != nil:
			policy = models.FileProcessingOCR
		default:
			policy = models.FileProcessingNone
		}
	}

	switch policy {
	case models.FileProcessingNone:
		return nil
	case models.FileProcessingVision:
		if !in.Model.SupportsVision {
			return fmt.Errorf("%w: model %q cannot process attachments as vision input", ErrCapability, in.Model.Name)
		}
		for _, attachment := range attachments {
			message.ImageURLs = append(message.ImageURLs, attachment.URL)
		}
		return nil
	case models.FileProcessingOCR:
		if e.ocr == nil {
			return fmt.Errorf("%w: ocr extraction is not configured", ErrCapability)
		}
		var extracted strings.Builder
		for _, attachment := range attachments {
			text, err := e.ocr.Extract(ctx, attachment.URL)
			if err != nil {
				return fmt.Errorf("ocr extraction for %q: %w", attachment.FileName, err)
			}
			extracted.WriteString(fmt.Sprintf("\n\n[Attachment: %s]\n%s", attachment.FileName, strings.TrimSpace(text)))
		}
		message.Content += extracted.String()
		return nil
	default:
		return fmt.Errorf("unknown file processing policy %q", policy)
	}
}

// RenderTemplate substitutes {{name}} placeholders with the test case's
// input variables. Unknown placeholders are left untouched.
func RenderTemplate(template string, variables map[string]interface{}) string {
	if len(variables) == 0 {
		return template
	}

	pairs := make([]string, 0, len(variables)*2)
	for name, value := range variables {
		pairs = append(pairs, "{{"+name+"}}", fmt.Sprintf("%v", value))
	}
	return strings.NewReplacer(pairs...).Replace(template)
}

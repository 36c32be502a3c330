package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const anthropicDefaultMaxTokens = 1024

// AnthropicConfig defines configuration for the Anthropic gateway.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Logger  zerolog.Logger
}

// AnthropicGateway implements Gateway against the Anthropic messages API.
type AnthropicGateway struct {
	client anthropic.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewAnthropicGateway builds a gateway using the provided configuration.
func NewAnthropicGateway(cfg AnthropicConfig) (*AnthropicGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic api key is required")
	}

	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &AnthropicGateway{
		client: anthropic.NewClient(opts...),
		tracer: otel.Tracer("github.com/promptforge/promptforge-api/pkg/ai/anthropic"),
		logger: cfg.Logger.With().Str("component", "anthropic_gateway").Logger(),
	}, nil
}

// Complete sends the message request and maps the response.
func (g *AnthropicGateway) Complete(parent context.Context, model string, messages []Message, params Parameters) (Completion, error) {
	ctx, span := g.tracer.Start(parent, "anthropic.complete", trace.WithAttributes(
		attribute.String("model", model),
	))
	defer span.End()

	maxTokens := params.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicDefaultMaxTokens
	}

	request := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
	}
	if params.Temperature > 0 {
		request.Temperature = anthropic.Float(float64(params.Temperature))
	}
	if params.TopP > 0 {
		request.TopP = anthropic.Float(float64(params.TopP))
	}

	// Anthropic takes the system prompt out of band.
	for _, message := range messages {
		if message.Role == RoleSystem {
			request.System = append(request.System, anthropic.TextBlockParam{Text: message.Content})
			continue
		}
		request.Messages = append(request.Messages, buildAnthropicMessage(message))
	}

	start := time.Now()
	resp, err := g.client.Messages.New(ctx, request)
	latency := time.Since(start)
	if err != nil {
		completionFailures.WithLabelValues("anthropic", model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Completion{}, classifyAnthropicError(err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	tokensIn := int(resp.Usage.InputTokens)
	tokensOut := int(resp.Usage.OutputTokens)
	observeCompletion("anthropic", model, latency.Seconds(), tokensIn, tokensOut)

	return Completion{
		Text:         text.String(),
		TokensInput:  tokensIn,
		TokensOutput: tokensOut,
		Latency:      latency,
	}, nil
}

func buildAnthropicMessage(message Message) anthropic.MessageParam {
	role := anthropic.MessageParamRoleUser
	if message.Role == RoleAssistant {
		role = anthropic.MessageParamRoleAssistant
	}

	content := make([]anthropic.ContentBlockParamUnion, 0, len(message.ImageURLs)+1)
	if message.Content != "" {
		content = append(content, anthropic.NewTextBlock(message.Content))
	}
	for _, url := range message.ImageURLs {
		content = append(content, anthropic.ContentBlockParamUnion{
			OfImage: &anthropic.ImageBlockParam{
				Source: anthropic.ImageBlockParamSourceUnion{
					OfURL: &anthropic.URLImageSourceParam{URL: url},
				},
			},
		})
	}

	return anthropic.MessageParam{Role: role, Content: content}
}

func classifyAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		// 529 is Anthropic's overloaded status.
		transient := transientStatus(apiErr.StatusCode) || apiErr.StatusCode == 529
		return &ProviderError{
			Provider:   "anthropic",
			StatusCode: apiErr.StatusCode,
			Transient:  transient,
			Err:        err,
		}
	}

	return &ProviderError{Provider: "anthropic", Transient: true, Err: err}
}

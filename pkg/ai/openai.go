package ai

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// OpenAIConfig defines configuration for an OpenAI-compatible gateway.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Logger  zerolog.Logger
}

// OpenAIGateway implements Gateway against the OpenAI chat completion API,
// including OpenAI-compatible third-party endpoints via BaseURL.
type OpenAIGateway struct {
	client *openai.Client
	tracer trace.Tracer
	logger zerolog.Logger
}

// NewOpenAIGateway builds a gateway using the provided configuration.
func NewOpenAIGateway(cfg OpenAIConfig) (*OpenAIGateway, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}

	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = cfg.BaseURL
	}

	return &OpenAIGateway{
		client: openai.NewClientWithConfig(config),
		tracer: otel.Tracer("github.com/promptforge/promptforge-api/pkg/ai/openai"),
		logger: cfg.Logger.With().Str("component", "openai_gateway").Logger(),
	}, nil
}

// Complete sends the chat completion request and maps the response.
func (g *OpenAIGateway) Complete(parent context.Context, model string, messages []Message, params Parameters) (Completion, error) {
	ctx, span := g.tracer.Start(parent, "openai.complete", trace.WithAttributes(
		attribute.String("model", model),
	))
	defer span.End()

	request := openai.ChatCompletionRequest{
		Model:       model,
		Messages:    buildOpenAIMessages(messages),
		Temperature: params.Temperature,
		TopP:        params.TopP,
		MaxTokens:   params.MaxTokens,
	}

	start := time.Now()
	resp, err := g.client.CreateChatCompletion(ctx, request)
	latency := time.Since(start)
	if err != nil {
		completionFailures.WithLabelValues("openai", model).Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Completion{}, classifyOpenAIError(err)
	}

	if len(resp.Choices) == 0 {
		completionFailures.WithLabelValues("openai", model).Inc()
		span.RecordError(ErrNoCompletion)
		span.SetStatus(codes.Error, ErrNoCompletion.Error())
		return Completion{}, &ProviderError{Provider: "openai", Transient: true, Err: ErrNoCompletion}
	}

	observeCompletion("openai", model, latency.Seconds(), resp.Usage.PromptTokens, resp.Usage.CompletionTokens)

	return Completion{
		Text:         resp.Choices[0].Message.Content,
		TokensInput:  resp.Usage.PromptTokens,
		TokensOutput: resp.Usage.CompletionTokens,
		Latency:      latency,
	}, nil
}

func buildOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, message := range messages {
		if len(message.ImageURLs) == 0 {
			converted = append(converted, openai.ChatCompletionMessage{
				Role:    message.Role,
				Content: message.Content,
			})
			continue
		}

		parts := make([]openai.ChatMessagePart, 0, len(message.ImageURLs)+1)
		if message.Content != "" {
			parts = append(parts, openai.ChatMessagePart{
				Type: openai.ChatMessagePartTypeText,
				Text: message.Content,
			})
		}
		for _, url := range message.ImageURLs {
			parts = append(parts, openai.ChatMessagePart{
				Type:     openai.ChatMessagePartTypeImageURL,
				ImageURL: &openai.ChatMessageImageURL{URL: url},
			})
		}

		converted = append(converted, openai.ChatCompletionMessage{
			Role:         message.Role,
			MultiContent: parts,
		})
	}
	return converted
}

func classifyOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &ProviderError{
			Provider:   "openai",
			StatusCode: apiErr.HTTPStatusCode,
			Transient:  transientStatus(apiErr.HTTPStatusCode),
			Err:        err,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &ProviderError{
			Provider:   "openai",
			StatusCode: reqErr.HTTPStatusCode,
			Transient:  transientStatus(reqErr.HTTPStatusCode),
			Err:        err,
		}
	}

	// Network-level failures carry no status code. Treat them as transient so
	// the caller's retry policy gets a chance.
	return &ProviderError{Provider: "openai", Transient: true, Err: err}
}

package service

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/promptforge/promptforge-api/internal/models"
	"github.com/promptforge/promptforge-api/pkg/ai"
)

// ProviderGatewayResolver builds a completion gateway for a stored provider.
type ProviderGatewayResolver struct {
	logger zerolog.Logger
}

// NewProviderGatewayResolver constructs a resolver.
func NewProviderGatewayResolver(logger zerolog.Logger) *ProviderGatewayResolver {
	return &ProviderGatewayResolver{
		logger: logger.With().Str("component", "gateway_resolver").Logger(),
	}
}

// Resolve maps a provider record to a gateway implementation.
func (r *ProviderGatewayResolver) Resolve(provider models.Provider) (ai.Gateway, error) {
	switch provider.Kind {
	case models.ProviderKindOpenAI:
		return ai.NewOpenAIGateway(ai.OpenAIConfig{
			APIKey:  provider.APIKey,
			BaseURL: provider.BaseURL,
			Logger:  r.logger,
		})
	case models.ProviderKindAnthropic:
		return ai.NewAnthropicGateway(ai.AnthropicConfig{
			APIKey:  provider.APIKey,
			BaseURL: provider.BaseURL,
			Logger:  r.logger,
		})
	default:
		return nil, fmt.Errorf("unsupported provider kind %q", provider.Kind)
	}
}

package ai

import (
	"context"
	"time"
)

// Message roles accepted by the gateway.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one chat-style message sent to a model. ImageURLs are only
// honored by vision-capable models.
type Message struct {
	Role      string
	Content   string
	ImageURLs []string
}

// Parameters carries the sampling knobs for a completion request.
type Parameters struct {
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// Completion is the provider-agnostic result of a chat completion.
type Completion struct {
	Text         string
	TokensInput  int
	TokensOutput int
	Latency      time.Duration
}

// Gateway abstracts a chat completion capability. Implementations hide all
// provider-specific request and response shaping.
type Gateway interface {
	Complete(ctx context.Context, model string, messages []Message, params Parameters) (Completion, error)
}

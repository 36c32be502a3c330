package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrNoCompletion indicates the provider returned an empty choice list.
var ErrNoCompletion = errors.New("no completion returned by provider")

// ProviderError wraps a provider failure with enough context to decide
// whether a retry can help.
type ProviderError struct {
	Provider   string
	StatusCode int
	Transient  bool
	Err        error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s provider error (status %d): %v", e.Provider, e.StatusCode, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether the error is worth retrying: rate limits,
// timeouts and server-side failures. Auth and invalid-request errors are not.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var providerErr *ProviderError
	if errors.As(err, &providerErr) {
		return providerErr.Transient
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	return false
}

func transientStatus(code int) bool {
	return code == 408 || code == 429 || code >= 500
}

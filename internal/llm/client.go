// Package llm defines the inference-backend boundary. The backend is an
// opaque text-completion service: it takes a prompt and a token budget and
// returns raw text. Nothing above this boundary may assume the response is
// well formed, and every call site must have a deterministic fallback that
// keeps the session moving when the backend is down.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the backend cannot be reached or has no usable
// model loaded. Callers treat it as a signal to fall back, never as a
// session failure.
var ErrUnavailable = errors.New("inference backend unavailable")

// Client is a text-completion backend.
type Client interface {
	// Complete sends prompt and returns the raw response text. maxTokens
	// bounds the generation; zero means the client default.
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)

	// Available reports whether the backend is reachable and serving the
	// configured model. Cheap enough to call before every round.
	Available(ctx context.Context) bool
}

// Disabled is a Client that is never available. Used when no backend is
// configured and in tests asserting fallback totality.
type Disabled struct{}

func (Disabled) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	return "", ErrUnavailable
}

func (Disabled) Available(ctx context.Context) bool { return false }

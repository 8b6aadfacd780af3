package scanning

import (
	"context"
	"errors"
	"fmt"
)

// Completer sends a prompt (and optionally one image) to a language model and
// returns the raw completion text. Implementations must request non-streaming
// responses so one call yields exactly one complete text.
type Completer interface {
	// Complete sends the prompt with an optional PNG image attached.
	// A nil image means a text-only request.
	Complete(ctx context.Context, prompt string, image []byte) (string, error)
	// Model identifies the completion model, for diagnostics
	Model() string
	// Close releases any resources held by the client
	Close() error
}

// Embedder turns text into a fixed-dimension vector
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ErrTimeout indicates the model did not respond within the configured deadline
var ErrTimeout = errors.New("model request timed out")

// StatusError is returned when the completion or embedding service answers
// with a non-success HTTP status. The body is carried verbatim for diagnostics.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("service error (status %d): %s", e.Code, e.Body)
}

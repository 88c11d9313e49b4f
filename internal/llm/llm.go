// Package llm adapts chat-completion providers to one request shape.
package llm

import (
	"context"
	"fmt"
)

// Message roles understood by every provider adapter.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type Message struct {
	Role    string
	Content string
}

// Request is a single completion call. System is sent as the provider's
// system instruction, never as a chat turn.
type Request struct {
	System      string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSON asks the provider for a JSON-object-only reply where supported.
	JSON bool
}

// Completer returns the text of exactly one completion. Implementations do not retry.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// UpstreamError is a non-success reply from the provider, kept verbatim.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Provider, e.StatusCode, e.Body)
}

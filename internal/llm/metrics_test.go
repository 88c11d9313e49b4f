package llm

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeCompleter struct {
	text string
	err  error
	reqs []Request
}

func (f *fakeCompleter) Complete(ctx context.Context, req Request) (string, error) {
	f.reqs = append(f.reqs, req)
	return f.text, f.err
}

func TestInstrumented_PassesThrough(t *testing.T) {
	inner := &fakeCompleter{text: "ok"}
	c := NewInstrumented(inner, "test")

	req := Request{System: "s", Messages: []Message{{Role: RoleUser, Content: "x"}}}
	text, err := c.Complete(context.Background(), req)

	assert.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, []Request{req}, inner.reqs)
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"success", nil, "ok"},
		{"upstream", fmt.Errorf("wrap: %w", &UpstreamError{Provider: "p", StatusCode: 502}), "502"},
		{"deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"other", errors.New("boom"), "error"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, outcome(tc.err))
		})
	}
}

func TestGeminiRole(t *testing.T) {
	assert.Equal(t, "model", geminiRole(RoleAssistant))
	assert.Equal(t, "user", geminiRole(RoleUser))
}

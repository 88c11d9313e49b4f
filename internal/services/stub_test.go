package services

import (
	"context"
	"sync"

	"taamsimcha-backend/internal/llm"
)

// stubCompleter records every request and replies with a fixed text or error.
type stubCompleter struct {
	mu    sync.Mutex
	reply string
	err   error
	calls []llm.Request
}

func (s *stubCompleter) Complete(ctx context.Context, req llm.Request) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, req)
	return s.reply, s.err
}

func (s *stubCompleter) callCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}

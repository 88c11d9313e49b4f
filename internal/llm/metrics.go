package llm

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "llm_requests_total",
		Help: "Completion requests by provider and outcome.",
	}, []string{"provider", "outcome"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "llm_request_duration_seconds",
		Help:    "Completion latency by provider.",
		Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
	}, []string{"provider"})
)

// Instrumented records latency and outcome of every call made through next.
type Instrumented struct {
	next     Completer
	provider string
}

func NewInstrumented(next Completer, provider string) *Instrumented {
	return &Instrumented{next: next, provider: provider}
}

func (i *Instrumented) Complete(ctx context.Context, req Request) (string, error) {
	start := time.Now()
	text, err := i.next.Complete(ctx, req)
	requestDuration.WithLabelValues(i.provider).Observe(time.Since(start).Seconds())
	requestsTotal.WithLabelValues(i.provider, outcome(err)).Inc()
	return text, err
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	var upstream *UpstreamError
	switch {
	case errors.As(err, &upstream):
		return strconv.Itoa(upstream.StatusCode)
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	}
	return "error"
}

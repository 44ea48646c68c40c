package provider

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	// ConsecutiveFailures trips the breaker. Zero disables it.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open before probing.
	OpenTimeout time.Duration
	// OnStateChange is notified on every transition.
	OnStateChange func(provider, from, to string)
}

type breakerAdapter struct {
	Adapter
	cb *gobreaker.CircuitBreaker[string]
}

// WithBreaker wraps a with a circuit breaker. While open, Invoke fails fast
// with a provider error instead of calling the backend.
func WithBreaker(a Adapter, cfg BreakerConfig) Adapter {
	if cfg.ConsecutiveFailures == 0 {
		return a
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}

	settings := gobreaker.Settings{
		Name:        a.Name(),
		MaxRequests: 1,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		IsSuccessful: func(err error) bool {
			// the caller giving up says nothing about the backend
			return err == nil || errors.Is(err, context.Canceled)
		},
	}
	if cfg.OnStateChange != nil {
		settings.OnStateChange = func(name string, from, to gobreaker.State) {
			cfg.OnStateChange(name, from.String(), to.String())
		}
	}

	return &breakerAdapter{
		Adapter: a,
		cb:      gobreaker.NewCircuitBreaker[string](settings),
	}
}

func (b *breakerAdapter) Invoke(ctx context.Context, call Call) (string, error) {
	out, err := b.cb.Execute(func() (string, error) {
		return b.Adapter.Invoke(ctx, call)
	})
	if err != nil {
		return "", wrapErr(b.Name(), ctx, err)
	}
	return out, nil
}

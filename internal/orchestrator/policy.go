// Package orchestrator picks which backend handles a request and falls back
// to the other one when the first attempt fails.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DocExplain/DocExplain-app/internal/metrics"
	"github.com/DocExplain/DocExplain-app/internal/models"
	"github.com/DocExplain/DocExplain-app/internal/provider"
	"github.com/DocExplain/DocExplain-app/internal/utils"
)

const (
	// LongTextThreshold is the text length above which the long-context
	// backend is preferred, for both tasks.
	LongTextThreshold = 15000
	// DefaultTimeout bounds each single attempt.
	DefaultTimeout = 60 * time.Second

	fallbackSuffix = " (fallback)"
)

type Task int

const (
	TaskAnalysis Task = iota
	TaskDraft
)

func (t Task) String() string {
	if t == TaskDraft {
		return "draft"
	}
	return "analysis"
}

// ErrNotConfigured means no backend has a credential.
var ErrNotConfigured = errors.New("no AI provider is configured")

// AttemptError is one failed attempt inside an AggregateError.
type AttemptError struct {
	Provider string
	Err      error
}

// AggregateError is returned when every available backend failed.
type AggregateError struct {
	Attempts []AttemptError
}

func (e *AggregateError) Error() string {
	return "all providers failed: " + strings.Join(e.Messages(), "; ")
}

func (e *AggregateError) Unwrap() []error {
	errs := make([]error, len(e.Attempts))
	for i, a := range e.Attempts {
		errs[i] = a.Err
	}
	return errs
}

// Messages returns the per-provider failure messages.
func (e *AggregateError) Messages() []string {
	msgs := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		var pe *provider.Error
		if errors.As(a.Err, &pe) {
			msgs[i] = a.Err.Error()
			continue
		}
		msgs[i] = fmt.Sprintf("%s: %v", a.Provider, a.Err)
	}
	return msgs
}

type Input struct {
	Task Task
	Call provider.Call
	// TemplateID is the drafting goal; the form template needs the
	// long-context backend.
	TemplateID string
	// Validate checks a raw result. A failing result counts as a failed
	// attempt and triggers fallback.
	Validate func(raw string) error
}

type Output struct {
	Raw       string
	ModelUsed string
}

type Config struct {
	Timeout time.Duration
}

// Policy sequences the long-context and fast-text adapters.
type Policy struct {
	longContext provider.Adapter
	fastText    provider.Adapter
	timeout     time.Duration
	logger      *utils.Logger
	metrics     *metrics.Metrics
}

func NewPolicy(longContext, fastText provider.Adapter, cfg Config, logger *utils.Logger, m *metrics.Metrics) *Policy {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &Policy{
		longContext: longContext,
		fastText:    fastText,
		timeout:     cfg.Timeout,
		logger:      logger,
		metrics:     m,
	}
}

// Configured reports whether at least one adapter can be invoked.
func (p *Policy) Configured() bool {
	return available(p.longContext) || available(p.fastText)
}

// Order returns the primary and secondary adapter for in.
func (p *Policy) Order(in Input) (primary, secondary provider.Adapter) {
	isImage := in.Call.Image != ""
	isLong := utf8.RuneCountInString(in.Call.Content) > LongTextThreshold
	isForm := in.Task == TaskDraft && in.TemplateID == models.TemplateFormFilling

	if isImage || isLong || isForm {
		return p.longContext, p.fastText
	}
	return p.fastText, p.longContext
}

// Run invokes the primary adapter and, if it fails, the secondary exactly
// once with the same call. Unavailable adapters are skipped.
func (p *Policy) Run(ctx context.Context, in Input) (*Output, error) {
	primary, secondary := p.Order(in)

	var attempts []provider.Adapter
	for _, a := range []provider.Adapter{primary, secondary} {
		if available(a) {
			attempts = append(attempts, a)
		}
	}
	if len(attempts) == 0 {
		return nil, ErrNotConfigured
	}

	agg := &AggregateError{}
	for i, a := range attempts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		raw, err := p.attempt(ctx, a, in)
		if err == nil {
			modelUsed := a.Name()
			if i > 0 {
				modelUsed += fallbackSuffix
				p.metrics.Fallback(in.Task.String())
				p.logger.Info("Served by fallback provider", "task", in.Task.String(), "provider", a.Name())
			}
			return &Output{Raw: raw, ModelUsed: modelUsed}, nil
		}

		p.logger.Warn("Provider attempt failed",
			"task", in.Task.String(),
			"provider", a.Name(),
			"primary", i == 0,
			"error", err,
		)
		agg.Attempts = append(agg.Attempts, AttemptError{Provider: a.Name(), Err: err})
	}

	p.logger.Error("All providers failed", "task", in.Task.String(), "error", agg)
	return nil, agg
}

func (p *Policy) attempt(ctx context.Context, a provider.Adapter, in Input) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	raw, err := a.Invoke(ctx, in.Call)
	if err == nil && in.Validate != nil {
		err = in.Validate(raw)
	}

	outcome := "success"
	switch {
	case err == nil:
	case errors.Is(err, context.DeadlineExceeded):
		outcome = "timeout"
	default:
		outcome = "error"
	}
	p.metrics.ObserveProvider(a.Name(), in.Task.String(), outcome, time.Since(start))

	return raw, err
}

func available(a provider.Adapter) bool {
	return a != nil && a.Available()
}

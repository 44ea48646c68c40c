// Package ads models interstitial and rewarded ad presentation as a small
// state machine driven by an event source, so it runs the same against a
// real ad SDK, a server-side timer, or a test fake.
//
// The server only runs rewarded ads, through Registry. Interstitials are
// shown by the client: a host app drives ShowInterstitial and Run from its
// ad SDK callbacks wrapped as an EventSource.
package ads

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/metrics"
	"github.com/DocExplain/DocExplain-app/internal/models"
)

const (
	DefaultInterstitialCountdown = 5 * time.Second
	DefaultRewardCountdown       = 15 * time.Second
)

type Kind string

const (
	KindInterstitial Kind = "interstitial"
	KindReward       Kind = "reward"
)

type Phase string

const (
	PhaseIdle     Phase = "idle"
	PhaseShowing  Phase = "showing"
	PhaseComplete Phase = "complete"
)

type EventType string

const (
	// EventDismissed is the user closing the ad.
	EventDismissed EventType = "dismissed"
	// EventLoadFailed means the ad could not be shown.
	EventLoadFailed EventType = "load_failed"
	// EventCompleted is the countdown elapsing or the SDK reward signal. It
	// makes the close action available and, for rewarded ads, grants the reward.
	EventCompleted EventType = "completed"
)

type Event struct {
	Type EventType
}

// EventSource delivers ad events. The channel is closed when the source ends.
type EventSource interface {
	Events() <-chan Event
}

// PendingAction is the work held back while an ad is on screen.
type PendingAction struct {
	Kind    Kind                   `json:"kind"`
	Payload *models.AnalysisResult `json:"payload,omitempty"`
}

// Hooks are the side effects of transitions. Any of them may be nil.
type Hooks struct {
	// Deliver hands a held-back result to the user.
	Deliver func(payload *models.AnalysisResult)
	// Preload prepares the next interstitial.
	Preload func()
	// Credit grants the reward.
	Credit func(ctx context.Context) error
}

// ErrAdActive is returned when an ad is requested while one is showing.
var ErrAdActive = errors.New("an ad is already showing")

type Config struct {
	InterstitialCountdown time.Duration
	RewardCountdown       time.Duration
}

// Lifecycle is safe for concurrent use. Hooks run outside its lock.
type Lifecycle struct {
	hooks   Hooks
	cfg     Config
	metrics *metrics.Metrics

	mu      sync.Mutex
	phase   Phase
	pending *PendingAction
	started chan struct{}
}

func NewLifecycle(cfg Config, hooks Hooks, m *metrics.Metrics) *Lifecycle {
	if cfg.InterstitialCountdown <= 0 {
		cfg.InterstitialCountdown = DefaultInterstitialCountdown
	}
	if cfg.RewardCountdown <= 0 {
		cfg.RewardCountdown = DefaultRewardCountdown
	}
	return &Lifecycle{
		hooks:   hooks,
		cfg:     cfg,
		metrics: m,
		phase:   PhaseIdle,
		started: make(chan struct{}, 1),
	}
}

func (l *Lifecycle) Phase() Phase {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.phase
}

// Pending returns a copy of the held-back action, if any.
func (l *Lifecycle) Pending() *PendingAction {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.pending == nil {
		return nil
	}
	p := *l.pending
	return &p
}

// CanClose reports whether the close action is available.
func (l *Lifecycle) CanClose() bool {
	return l.Phase() == PhaseComplete
}

// Countdown is the fixed duration for kind.
func (l *Lifecycle) Countdown(kind Kind) time.Duration {
	if kind == KindReward {
		return l.cfg.RewardCountdown
	}
	return l.cfg.InterstitialCountdown
}

// ShowInterstitial holds result back until the interstitial goes away.
func (l *Lifecycle) ShowInterstitial(result *models.AnalysisResult) error {
	return l.show(&PendingAction{Kind: KindInterstitial, Payload: result})
}

// ShowReward starts a rewarded ad.
func (l *Lifecycle) ShowReward() error {
	return l.show(&PendingAction{Kind: KindReward})
}

func (l *Lifecycle) show(p *PendingAction) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.phase != PhaseIdle {
		return ErrAdActive
	}
	l.phase = PhaseShowing
	l.pending = p
	select {
	case l.started <- struct{}{}:
	default:
	}
	l.metrics.AdEvent(string(p.Kind), "shown")
	return nil
}

type effects struct {
	deliver bool
	payload *models.AnalysisResult
	preload bool
	credit  bool
}

// Handle applies one event. Events that do not apply to the current phase
// are ignored.
func (l *Lifecycle) Handle(ctx context.Context, e Event) error {
	l.mu.Lock()
	if l.pending == nil {
		l.mu.Unlock()
		return nil
	}
	kind := l.pending.Kind
	fx := l.transition(e)
	l.mu.Unlock()

	l.metrics.AdEvent(string(kind), string(e.Type))

	if fx.deliver && l.hooks.Deliver != nil {
		l.hooks.Deliver(fx.payload)
	}
	if fx.preload && l.hooks.Preload != nil {
		l.hooks.Preload()
	}
	if fx.credit && l.hooks.Credit != nil {
		if err := l.hooks.Credit(ctx); err != nil {
			l.mu.Lock()
			if l.pending != nil && l.pending.Kind == KindReward && l.phase == PhaseComplete {
				// nothing was credited, so a later completion may try again
				l.phase = PhaseShowing
			}
			l.mu.Unlock()
			return fmt.Errorf("failed to credit reward: %w", err)
		}
	}
	return nil
}

// transition mutates state and returns the side effects. Caller holds mu.
func (l *Lifecycle) transition(e Event) effects {
	var fx effects
	p := l.pending

	switch p.Kind {
	case KindInterstitial:
		switch {
		case e.Type == EventDismissed:
			fx.deliver, fx.payload, fx.preload = true, p.Payload, true
			l.reset()
		case e.Type == EventLoadFailed:
			fx.deliver, fx.payload = true, p.Payload
			l.reset()
		case e.Type == EventCompleted && l.phase == PhaseShowing:
			l.phase = PhaseComplete
		}

	case KindReward:
		switch {
		case e.Type == EventCompleted && l.phase == PhaseShowing:
			l.phase = PhaseComplete
			fx.credit = true
		case e.Type == EventDismissed, e.Type == EventLoadFailed:
			// before completion this discards the reward
			l.reset()
		}
	}
	return fx
}

func (l *Lifecycle) reset() {
	l.phase = PhaseIdle
	l.pending = nil
}

// Run feeds events from src into the lifecycle and fires the countdown for
// each ad shown. It returns when ctx ends or src closes.
func (l *Lifecycle) Run(ctx context.Context, src EventSource) error {
	events := src.Events()
	var timer *time.Timer
	var countdown <-chan time.Time
	stop := func() {
		if timer != nil {
			timer.Stop()
			timer, countdown = nil, nil
		}
	}
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case <-l.started:
			stop()
			if p := l.Pending(); p != nil {
				timer = time.NewTimer(l.Countdown(p.Kind))
				countdown = timer.C
			}

		case <-countdown:
			timer, countdown = nil, nil
			if err := l.Handle(ctx, Event{Type: EventCompleted}); err != nil {
				return err
			}

		case e, ok := <-events:
			if !ok {
				return nil
			}
			if e.Type != EventCompleted {
				stop()
			}
			if err := l.Handle(ctx, e); err != nil {
				return err
			}
		}
	}
}

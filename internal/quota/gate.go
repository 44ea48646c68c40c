package quota

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/metrics"
)

const (
	FreeDailyLimit = 3
	MaxFreeChars   = 15000
)

type Decision string

const (
	Allow          Decision = "allow"
	AtLimit        Decision = "at_limit"
	RequireUpgrade Decision = "require_upgrade"
)

// Option is an affordance offered to a user at the limit.
type Option string

const (
	OptionWatchAd Option = "watch_ad"
	OptionUpgrade Option = "upgrade"
)

// ErrMissingDevice is returned for an empty device id.
var ErrMissingDevice = errors.New("device id is required")

// Result is the outcome of Check.
type Result struct {
	Decision  Decision `json:"decision"`
	Options   []Option `json:"options,omitempty"`
	Remaining int      `json:"remaining"`
	State     State    `json:"state"`
}

type Config struct {
	FreeDailyLimit int
	MaxFreeChars   int
	Location       *time.Location
}

// Gate applies quota events for many devices. Updates for one device are
// serialised; different devices proceed in parallel.
type Gate struct {
	store   Store
	cfg     Config
	now     func() time.Time
	locks   *keyedMutex
	metrics *metrics.Metrics
}

func NewGate(store Store, cfg Config, m *metrics.Metrics) *Gate {
	if cfg.FreeDailyLimit <= 0 {
		cfg.FreeDailyLimit = FreeDailyLimit
	}
	if cfg.MaxFreeChars <= 0 {
		cfg.MaxFreeChars = MaxFreeChars
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Gate{
		store:   store,
		cfg:     cfg,
		now:     time.Now,
		locks:   newKeyedMutex(),
		metrics: m,
	}
}

// WithClock replaces the time source.
func (g *Gate) WithClock(now func() time.Time) *Gate {
	g.now = now
	return g
}

// Check decides whether deviceID may run an analysis of textLen characters.
// It consumes nothing; use Reserve to decide and consume in one step.
func (g *Gate) Check(ctx context.Context, deviceID string, textLen int) (Result, error) {
	s, err := g.apply(ctx, deviceID)
	if err != nil {
		return Result{}, err
	}

	res := g.decide(s, textLen)
	g.metrics.QuotaDecision(string(res.Decision))
	return res, nil
}

// Reservation is an analysis consumed before its result exists. Pass it to
// Release if the analysis fails.
type Reservation struct {
	DeviceID string
	Date     string
}

// Reserve decides like Check and, when the decision is Allow, consumes one
// analysis under the same per-device lock. Concurrent callers for one device
// therefore never exceed the allowance. The reservation is nil unless the
// decision is Allow.
func (g *Gate) Reserve(ctx context.Context, deviceID string, textLen int) (Result, *Reservation, error) {
	var res Result
	s, err := g.update(ctx, deviceID, func(s State) State {
		res = g.decide(s, textLen)
		if res.Decision == Allow {
			s = Reduce(s, AnalysisSucceeded{})
		}
		return s
	})
	if err != nil {
		return Result{}, nil, err
	}

	g.metrics.QuotaDecision(string(res.Decision))
	if res.Decision != Allow {
		return res, nil, nil
	}
	res.State = s
	res.Remaining = s.Remaining(g.cfg.FreeDailyLimit)
	return res, &Reservation{DeviceID: strings.TrimSpace(deviceID), Date: s.LastResetDate}, nil
}

// Release gives back a reserved analysis. A nil reservation is a no-op.
func (g *Gate) Release(ctx context.Context, r *Reservation) (State, error) {
	if r == nil {
		return State{}, nil
	}
	return g.apply(ctx, r.DeviceID, AnalysisReleased{Date: r.Date})
}

func (g *Gate) decide(s State, textLen int) Result {
	res := Result{State: s, Remaining: s.Remaining(g.cfg.FreeDailyLimit)}
	switch {
	case s.IsPro:
		res.Decision = Allow
	case textLen > g.cfg.MaxFreeChars:
		res.Decision = RequireUpgrade
		res.Options = []Option{OptionUpgrade}
	case s.DailyUsageCount < s.Allowance(g.cfg.FreeDailyLimit):
		res.Decision = Allow
	default:
		res.Decision = AtLimit
		res.Options = []Option{OptionWatchAd, OptionUpgrade}
	}
	return res
}

// State returns the device's state for today.
func (g *Gate) State(ctx context.Context, deviceID string) (State, error) {
	return g.apply(ctx, deviceID)
}

// RecordSuccessfulAnalysis consumes one analysis. Call it only after a
// result has been produced.
func (g *Gate) RecordSuccessfulAnalysis(ctx context.Context, deviceID string) (State, error) {
	return g.apply(ctx, deviceID, AnalysisSucceeded{})
}

// CreditReward grants one bonus analysis for a completed rewarded ad.
func (g *Gate) CreditReward(ctx context.Context, deviceID string) (State, error) {
	return g.apply(ctx, deviceID, RewardCredited{})
}

func (g *Gate) SetPro(ctx context.Context, deviceID string, isPro bool) (State, error) {
	return g.apply(ctx, deviceID, ProChanged{IsPro: isPro})
}

// apply reduces events onto the device's state for today.
func (g *Gate) apply(ctx context.Context, deviceID string, events ...Event) (State, error) {
	return g.update(ctx, deviceID, func(s State) State {
		for _, e := range events {
			s = Reduce(s, e)
		}
		return s
	})
}

// update loads the state, observes today's date, runs fn and saves the
// result if it changed, all under the device's lock.
func (g *Gate) update(ctx context.Context, deviceID string, fn func(State) State) (State, error) {
	deviceID = strings.TrimSpace(deviceID)
	if deviceID == "" {
		return State{}, ErrMissingDevice
	}

	unlock := g.locks.Lock(deviceID)
	defer unlock()

	before, err := g.store.Load(ctx, deviceID)
	if err != nil {
		return State{}, fmt.Errorf("failed to load quota: %w", err)
	}

	s := fn(Reduce(before, DayObserved{Date: Today(g.now(), g.cfg.Location)}))

	if s != before {
		if err := g.store.Save(ctx, deviceID, s); err != nil {
			return State{}, fmt.Errorf("failed to save quota: %w", err)
		}
	}
	return s, nil
}

package ads

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/metrics"
	"github.com/DocExplain/DocExplain-app/internal/quota"
	"github.com/DocExplain/DocExplain-app/internal/utils"
)

// StaleAdAge is how long an unclosed server-side ad is kept.
const StaleAdAge = 30 * time.Minute

var (
	// ErrUnknownAd is returned for an ad id the registry does not hold.
	ErrUnknownAd = errors.New("unknown ad")
	// ErrAdClosing is returned while another Close for the same ad runs.
	ErrAdClosing = errors.New("ad is already closing")
)

// RewardCrediter grants bonus quota.
type RewardCrediter interface {
	CreditReward(ctx context.Context, deviceID string) (quota.State, error)
}

// Ticket describes a started server-side ad.
type Ticket struct {
	AdID             string    `json:"adId"`
	DeviceID         string    `json:"deviceId"`
	Kind             Kind      `json:"kind"`
	CountdownSeconds int       `json:"countdownSeconds"`
	ReadyAt          time.Time `json:"readyAt"`
}

// Outcome is the result of closing an ad.
type Outcome struct {
	AdID     string `json:"adId"`
	Rewarded bool   `json:"rewarded"`
}

type serverAd struct {
	deviceID  string
	lifecycle *Lifecycle
	startedAt time.Time
	closing   bool
}

// Registry runs rewarded ads for clients that cannot be trusted to time
// the countdown themselves: the server starts the clock and decides at close
// time whether the reward was earned.
type Registry struct {
	crediter RewardCrediter
	cfg      Config
	metrics  *metrics.Metrics
	now      func() time.Time

	mu  sync.Mutex
	ads map[string]*serverAd
}

func NewRegistry(crediter RewardCrediter, cfg Config, m *metrics.Metrics) *Registry {
	if cfg.RewardCountdown <= 0 {
		cfg.RewardCountdown = DefaultRewardCountdown
	}
	if cfg.InterstitialCountdown <= 0 {
		cfg.InterstitialCountdown = DefaultInterstitialCountdown
	}
	return &Registry{
		crediter: crediter,
		cfg:      cfg,
		metrics:  m,
		now:      time.Now,
		ads:      make(map[string]*serverAd),
	}
}

// StartReward begins a rewarded ad for deviceID.
func (r *Registry) StartReward(deviceID string) (Ticket, error) {
	if deviceID == "" {
		return Ticket{}, quota.ErrMissingDevice
	}

	lc := NewLifecycle(r.cfg, Hooks{
		Credit: func(ctx context.Context) error {
			_, err := r.crediter.CreditReward(ctx, deviceID)
			return err
		},
	}, r.metrics)
	if err := lc.ShowReward(); err != nil {
		return Ticket{}, err
	}

	id := utils.GenerateID()
	started := r.now()

	r.mu.Lock()
	r.ads[id] = &serverAd{deviceID: deviceID, lifecycle: lc, startedAt: started}
	r.mu.Unlock()

	return Ticket{
		AdID:             id,
		DeviceID:         deviceID,
		Kind:             KindReward,
		CountdownSeconds: int(r.cfg.RewardCountdown / time.Second),
		ReadyAt:          started.Add(r.cfg.RewardCountdown),
	}, nil
}

// Close ends the ad. If the countdown has elapsed the reward is credited
// first; closing early discards it. When crediting fails the ad stays open
// so the close can be retried.
func (r *Registry) Close(ctx context.Context, adID string) (Outcome, error) {
	r.mu.Lock()
	ad, ok := r.ads[adID]
	if ok && ad.closing {
		r.mu.Unlock()
		return Outcome{}, ErrAdClosing
	}
	if ok {
		ad.closing = true
	}
	r.mu.Unlock()
	if !ok {
		return Outcome{}, ErrUnknownAd
	}

	out, err := r.finish(ctx, adID, ad)

	r.mu.Lock()
	if err != nil {
		ad.closing = false
	} else {
		delete(r.ads, adID)
	}
	r.mu.Unlock()
	return out, err
}

func (r *Registry) finish(ctx context.Context, adID string, ad *serverAd) (Outcome, error) {
	out := Outcome{AdID: adID}
	lc := ad.lifecycle
	if r.now().Sub(ad.startedAt) >= lc.Countdown(KindReward) {
		if err := lc.Handle(ctx, Event{Type: EventCompleted}); err != nil {
			return out, err
		}
		out.Rewarded = lc.Phase() == PhaseComplete
	}
	if err := lc.Handle(ctx, Event{Type: EventDismissed}); err != nil {
		return out, err
	}
	return out, nil
}

// Device returns the device an open ad belongs to.
func (r *Registry) Device(adID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ad, ok := r.ads[adID]
	if !ok {
		return "", false
	}
	return ad.deviceID, true
}

// Sweep drops ads that were never closed.
func (r *Registry) Sweep() int {
	cutoff := r.now().Add(-StaleAdAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, ad := range r.ads {
		if ad.startedAt.Before(cutoff) {
			delete(r.ads, id)
			removed++
		}
	}
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ads)
}

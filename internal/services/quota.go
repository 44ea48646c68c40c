package services

import (
	"context"
	"errors"

	"github.com/DocExplain/DocExplain-app/internal/ads"
	"github.com/DocExplain/DocExplain-app/internal/quota"
	"github.com/DocExplain/DocExplain-app/internal/utils"
)

// QuotaStatus is a device's quota as shown to the client.
type QuotaStatus struct {
	DeviceID  string      `json:"deviceId"`
	State     quota.State `json:"state"`
	Remaining int         `json:"remaining"`
	Limit     int         `json:"dailyLimit"`
}

// AdClosed is the reply to closing a server-timed rewarded ad.
type AdClosed struct {
	ads.Outcome
	Quota QuotaStatus `json:"quota"`
}

type QuotaService interface {
	Status(ctx context.Context, deviceID string) (*QuotaStatus, error)
	SetPro(ctx context.Context, deviceID string, isPro bool) (*QuotaStatus, error)
	StartAd(ctx context.Context, deviceID string) (*ads.Ticket, error)
	CloseAd(ctx context.Context, adID string) (*AdClosed, error)
}

type quotaService struct {
	gate       *quota.Gate
	registry   *ads.Registry
	dailyLimit int
	logger     *utils.Logger
}

func NewQuotaService(gate *quota.Gate, registry *ads.Registry, dailyLimit int, logger *utils.Logger) QuotaService {
	if dailyLimit <= 0 {
		dailyLimit = quota.FreeDailyLimit
	}
	if logger == nil {
		logger = utils.NopLogger()
	}
	return &quotaService{gate: gate, registry: registry, dailyLimit: dailyLimit, logger: logger}
}

func (s *quotaService) status(deviceID string, st quota.State) *QuotaStatus {
	return &QuotaStatus{
		DeviceID:  deviceID,
		State:     st,
		Remaining: st.Remaining(s.dailyLimit),
		Limit:     s.dailyLimit,
	}
}

func (s *quotaService) Status(ctx context.Context, deviceID string) (*QuotaStatus, error) {
	st, err := s.gate.State(ctx, deviceID)
	if err != nil {
		return nil, appError(err, "Quota lookup")
	}
	return s.status(deviceID, st), nil
}

func (s *quotaService) SetPro(ctx context.Context, deviceID string, isPro bool) (*QuotaStatus, error) {
	st, err := s.gate.SetPro(ctx, deviceID, isPro)
	if err != nil {
		return nil, appError(err, "Entitlement update")
	}
	s.logger.Info("Entitlement changed", "device_id", deviceID, "is_pro", isPro)
	return s.status(deviceID, st), nil
}

func (s *quotaService) StartAd(ctx context.Context, deviceID string) (*ads.Ticket, error) {
	ticket, err := s.registry.StartReward(deviceID)
	if err != nil {
		return nil, appError(err, "Ad start")
	}
	return &ticket, nil
}

func (s *quotaService) CloseAd(ctx context.Context, adID string) (*AdClosed, error) {
	deviceID, ok := s.registry.Device(adID)
	if !ok {
		return nil, utils.NewNotFoundError("Ad not found")
	}

	out, err := s.registry.Close(ctx, adID)
	if errors.Is(err, ads.ErrUnknownAd) {
		return nil, utils.NewNotFoundError("Ad not found")
	}
	if errors.Is(err, ads.ErrAdClosing) {
		return nil, utils.NewConflictError("Ad is already being closed")
	}
	if err != nil {
		s.logger.Error("Failed to credit reward", "error", err, "ad_id", adID)
		return nil, appError(err, "Reward")
	}

	st, err := s.gate.State(ctx, deviceID)
	if err != nil {
		return nil, appError(err, "Quota lookup")
	}
	return &AdClosed{Outcome: out, Quota: *s.status(deviceID, st)}, nil
}

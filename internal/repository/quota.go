package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/quota"
	"github.com/jmoiron/sqlx"
)

// QuotaRepository persists quota.State per device.
type QuotaRepository struct {
	db *sqlx.DB
}

var _ quota.Store = (*QuotaRepository)(nil)

func NewQuotaRepository(db *sqlx.DB) *QuotaRepository {
	return &QuotaRepository{db: db}
}

func (r *QuotaRepository) Load(ctx context.Context, deviceID string) (quota.State, error) {
	var s quota.State
	query := `
		SELECT daily_usage_count, bonus_quota, last_reset_date, is_pro
		FROM quota_state
		WHERE device_id = ?
	`

	err := r.db.GetContext(ctx, &s, query, deviceID)
	if errors.Is(err, sql.ErrNoRows) {
		return quota.State{}, nil
	}
	return s, err
}

func (r *QuotaRepository) Save(ctx context.Context, deviceID string, s quota.State) error {
	query := `
		INSERT INTO quota_state (device_id, daily_usage_count, bonus_quota, last_reset_date, is_pro, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (device_id) DO UPDATE SET
			daily_usage_count = excluded.daily_usage_count,
			bonus_quota = excluded.bonus_quota,
			last_reset_date = excluded.last_reset_date,
			is_pro = excluded.is_pro,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, query,
		deviceID,
		s.DailyUsageCount,
		s.BonusQuota,
		s.LastResetDate,
		s.IsPro,
		time.Now().UTC(),
	)
	return err
}

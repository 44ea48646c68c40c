package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/models"
	"github.com/jmoiron/sqlx"
)

type HistoryRepository interface {
	Create(ctx context.Context, entry *models.HistoryEntry) error
	GetByID(ctx context.Context, id string) (*models.HistoryEntry, error)
	ListByDevice(ctx context.Context, deviceID string, limit int) ([]models.HistoryEntry, error)
	Delete(ctx context.Context, id string) (*models.HistoryEntry, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, int, error)
}

type historyRow struct {
	ID         string    `db:"id"`
	DeviceID   string    `db:"device_id"`
	FileName   string    `db:"file_name"`
	Category   string    `db:"category"`
	ModelUsed  string    `db:"model_used"`
	ResultJSON string    `db:"result_json"`
	ArchiveKey string    `db:"archive_key"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r historyRow) entry() (*models.HistoryEntry, error) {
	e := &models.HistoryEntry{
		ID:         r.ID,
		DeviceID:   r.DeviceID,
		ArchiveKey: r.ArchiveKey,
		CreatedAt:  r.CreatedAt,
	}
	if err := json.Unmarshal([]byte(r.ResultJSON), &e.Result); err != nil {
		return nil, fmt.Errorf("corrupt history entry %s: %w", r.ID, err)
	}
	return e, nil
}

type historyRepository struct {
	db *sqlx.DB
}

func NewHistoryRepository(db *sqlx.DB) HistoryRepository {
	return &historyRepository{db: db}
}

func (r *historyRepository) Create(ctx context.Context, entry *models.HistoryEntry) error {
	resultJSON, err := json.Marshal(entry.Result)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO history (id, device_id, file_name, category, model_used, result_json, archive_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, query,
		entry.ID,
		entry.DeviceID,
		entry.Result.FileName,
		string(entry.Result.Category),
		entry.Result.ModelUsed,
		string(resultJSON),
		entry.ArchiveKey,
		entry.CreatedAt.UTC(),
	)

	return err
}

// GetByID returns nil, nil when the entry does not exist.
func (r *historyRepository) GetByID(ctx context.Context, id string) (*models.HistoryEntry, error) {
	var row historyRow
	query := `
		SELECT id, device_id, file_name, category, model_used, result_json, archive_key, created_at
		FROM history
		WHERE id = ?
	`

	err := r.db.GetContext(ctx, &row, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return row.entry()
}

// ListByDevice returns the newest entries first.
func (r *historyRepository) ListByDevice(ctx context.Context, deviceID string, limit int) ([]models.HistoryEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	var rows []historyRow
	query := `
		SELECT id, device_id, file_name, category, model_used, result_json, archive_key, created_at
		FROM history
		WHERE device_id = ?
		ORDER BY created_at DESC
		LIMIT ?
	`

	if err := r.db.SelectContext(ctx, &rows, query, deviceID, limit); err != nil {
		return nil, err
	}

	entries := make([]models.HistoryEntry, 0, len(rows))
	for _, row := range rows {
		e, err := row.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, nil
}

// Delete removes the entry and returns it, or nil if it did not exist.
func (r *historyRepository) Delete(ctx context.Context, id string) (*models.HistoryEntry, error) {
	entry, err := r.GetByID(ctx, id)
	if err != nil || entry == nil {
		return nil, err
	}

	if _, err := r.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id); err != nil {
		return nil, err
	}
	return entry, nil
}

// DeleteOlderThan removes entries created before cutoff and returns their
// archive keys so the archived uploads can be removed too.
func (r *historyRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) ([]string, int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, 0, err
	}
	defer tx.Rollback()

	var keys []string
	err = tx.SelectContext(ctx, &keys,
		`SELECT archive_key FROM history WHERE created_at < ? AND archive_key != ''`, cutoff.UTC())
	if err != nil {
		return nil, 0, err
	}

	res, err := tx.ExecContext(ctx, `DELETE FROM history WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return nil, 0, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return nil, 0, err
	}

	if err := tx.Commit(); err != nil {
		return nil, 0, err
	}
	return keys, int(deleted), nil
}

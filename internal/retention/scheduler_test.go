package retention

import (
	"context"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/db"
	"github.com/DocExplain/DocExplain-app/internal/models"
	"github.com/DocExplain/DocExplain-app/internal/repository"
	"github.com/DocExplain/DocExplain-app/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunOnce_ExpiresHistoryAndArchives(t *testing.T) {
	ctx := context.Background()
	conn, err := db.NewSQLiteDB(filepath.Join(t.TempDir(), "retention.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, db.RunMigrations(conn))

	history := repository.NewHistoryRepository(conn)
	archive := storage.NewMemoryArchive()
	now := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)

	for _, e := range []struct {
		id  string
		age time.Duration
		key string
	}{
		{"old", 40 * 24 * time.Hour, "uploads/old/a.pdf"},
		{"recent", time.Hour, "uploads/recent/b.pdf"},
	} {
		require.NoError(t, archive.Put(ctx, e.key, []byte("x"), "application/pdf"))
		require.NoError(t, history.Create(ctx, &models.HistoryEntry{
			ID:         e.id,
			DeviceID:   "dev",
			Result:     models.AnalysisResult{Summary: e.id, KeyPoints: []string{"k"}},
			ArchiveKey: e.key,
			CreatedAt:  now.Add(-e.age),
		}))
	}

	s := New(Config{HistoryRetention: 30 * 24 * time.Hour}, history, archive, nil)
	s.now = func() time.Time { return now }
	var sessionSweeps int32
	s.AddSweeper("sessions", func() int { atomic.AddInt32(&sessionSweeps, 1); return 2 })
	s.AddSweeper("ads", func() int { return 0 })

	report := s.RunOnce(ctx)
	assert.Equal(t, 1, report.HistoryDeleted)
	assert.Equal(t, 1, report.ArchivesDeleted)
	assert.Equal(t, map[string]int{"sessions": 2, "ads": 0}, report.Swept)
	assert.Equal(t, int32(1), atomic.LoadInt32(&sessionSweeps))

	_, _, err = archive.Get(ctx, "uploads/old/a.pdf")
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.Equal(t, 1, archive.Len())

	left, err := history.ListByDevice(ctx, "dev", 0)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "recent", left[0].ID)
}

func TestRunOnce_WithoutHistory(t *testing.T) {
	s := New(Config{HistoryRetention: time.Hour}, nil, nil, nil)
	report := s.RunOnce(context.Background())
	assert.Zero(t, report.HistoryDeleted)
	assert.Empty(t, report.Swept)
}

func TestStart_RunsOnSchedule(t *testing.T) {
	s := New(Config{Schedule: "@every 1s"}, nil, nil, nil)
	var runs int32
	s.AddSweeper("counter", func() int { atomic.AddInt32(&runs, 1); return 0 })

	require.NoError(t, s.Start())
	defer s.Stop(context.Background())

	require.Eventually(t, func() bool { return atomic.LoadInt32(&runs) > 0 }, 3*time.Second, 50*time.Millisecond)
}

func TestStart_InvalidSchedule(t *testing.T) {
	s := New(Config{Schedule: "every now and then"}, nil, nil, nil)
	assert.Error(t, s.Start())
}

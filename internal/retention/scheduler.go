// Package retention runs periodic cleanup: expiring history entries and
// their archived uploads, and sweeping idle in-memory state.
package retention

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/DocExplain/DocExplain-app/internal/repository"
	"github.com/DocExplain/DocExplain-app/internal/storage"
	"github.com/DocExplain/DocExplain-app/internal/utils"
	"github.com/robfig/cron/v3"
)

const DefaultSchedule = "@every 10m"

type Config struct {
	// Schedule is a cron expression or descriptor such as "@every 10m".
	Schedule string
	// HistoryRetention is how long history entries are kept. Zero keeps
	// them forever.
	HistoryRetention time.Duration
}

// Report summarises one cleanup run.
type Report struct {
	HistoryDeleted  int
	ArchivesDeleted int
	Swept           map[string]int
}

type Scheduler struct {
	cfg     Config
	history repository.HistoryRepository
	archive storage.Archive
	logger  *utils.Logger
	now     func() time.Time
	cron    *cron.Cron

	mu       sync.Mutex
	sweepers map[string]func() int
}

// New builds a scheduler. history and archive may be nil.
func New(cfg Config, history repository.HistoryRepository, archive storage.Archive, logger *utils.Logger) *Scheduler {
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if logger == nil {
		logger = utils.NopLogger()
	}
	cl := cronLogger{logger}
	return &Scheduler{
		cfg:      cfg,
		history:  history,
		archive:  archive,
		logger:   logger,
		now:      time.Now,
		cron:     cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		sweepers: make(map[string]func() int),
	}
}

// AddSweeper registers fn to run on every cleanup. fn returns how many
// items it removed.
func (s *Scheduler) AddSweeper(name string, fn func() int) {
	s.mu.Lock()
	s.sweepers[name] = fn
	s.mu.Unlock()
}

// Start schedules the cleanup job.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		s.RunOnce(context.Background())
	}); err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", s.cfg.Schedule, err)
	}
	s.cron.Start()
	s.logger.Info("Retention scheduler started", "schedule", s.cfg.Schedule, "history_retention", s.cfg.HistoryRetention.String())
	return nil
}

// Stop stops scheduling and waits for a running job until ctx is done.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce performs one cleanup pass.
func (s *Scheduler) RunOnce(ctx context.Context) Report {
	report := Report{Swept: make(map[string]int)}

	if s.history != nil && s.cfg.HistoryRetention > 0 {
		cutoff := s.now().Add(-s.cfg.HistoryRetention)
		keys, deleted, err := s.expireHistory(ctx, cutoff)
		if err != nil {
			s.logger.Error("History retention failed", "error", err)
		}
		report.HistoryDeleted = deleted
		report.ArchivesDeleted = keys
	}

	s.mu.Lock()
	names := make([]string, 0, len(s.sweepers))
	for name := range s.sweepers {
		names = append(names, name)
	}
	sort.Strings(names)
	sweepers := make([]func() int, len(names))
	for i, name := range names {
		sweepers[i] = s.sweepers[name]
	}
	s.mu.Unlock()

	for i, fn := range sweepers {
		report.Swept[names[i]] = fn()
	}

	s.logger.Debug("Retention run finished",
		"history_deleted", report.HistoryDeleted,
		"archives_deleted", report.ArchivesDeleted,
		"swept", report.Swept)
	return report
}

func (s *Scheduler) expireHistory(ctx context.Context, cutoff time.Time) (archived, deleted int, err error) {
	keys, deleted, err := s.history.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, 0, err
	}
	if s.archive == nil {
		return 0, deleted, nil
	}
	for _, key := range keys {
		if err := s.archive.Delete(ctx, key); err != nil {
			s.logger.Warn("Failed to delete archived upload", "error", err, "key", key)
			continue
		}
		archived++
	}
	return archived, deleted, nil
}

// cronLogger adapts utils.Logger to cron.Logger.
type cronLogger struct {
	logger *utils.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error("cron: "+msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

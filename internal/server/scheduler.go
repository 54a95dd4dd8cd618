package server

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorhill/cronexpr"
	"github.com/mohammad-safakhou/aeoengine/internal/knowledge"
	"github.com/mohammad-safakhou/aeoengine/internal/logging"
)

// Scheduler re-ingests the knowledge corpus on a cron schedule. Cross-process
// exclusion comes from the ingester's lock; a run already in progress
// elsewhere is skipped, not queued.
type Scheduler struct {
	Ingester  Ingester
	CorpusDir string
	Cron      string
	Interval  time.Duration
	Logger    *slog.Logger

	now func() time.Time

	mu   sync.Mutex
	last *time.Time
	stop chan struct{}
	done chan struct{}
}

func NewScheduler(ing Ingester, corpusDir, cron string, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		Ingester:  ing,
		CorpusDir: corpusDir,
		Cron:      cron,
		Interval:  time.Minute,
		Logger:    logging.NewComponentLogger(logger, "scheduler"),
	}
}

// Start checks the schedule every Interval until Stop or ctx is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.stop != nil {
		s.mu.Unlock()
		return
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stop, s.done
	s.mu.Unlock()

	ticker := time.NewTicker(s.Interval)
	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.tick(ctx)
			}
		}
	}()
}

// Stop halts the loop and waits for an in-flight tick.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop = nil
	s.mu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (s *Scheduler) clock() time.Time {
	if s.now != nil {
		return s.now()
	}
	return time.Now()
}

// tick runs one ingest when the schedule says it is due.
func (s *Scheduler) tick(ctx context.Context) {
	now := s.clock()
	s.mu.Lock()
	last := s.last
	s.mu.Unlock()
	if !isDue(s.Cron, last, now) {
		return
	}

	report, err := s.Ingester.Ingest(ctx, s.CorpusDir)
	switch {
	case errors.Is(err, knowledge.ErrIngestInProgress):
		s.Logger.Info("scheduled ingest skipped; another ingest holds the lock")
	case err != nil:
		s.Logger.Error("scheduled ingest failed", "error", err)
	default:
		s.Logger.Info("scheduled ingest completed", "documents", report.Documents, "remote", report.Remote)
	}
	// failures wait for the next slot instead of retrying every tick
	s.mu.Lock()
	s.last = &now
	s.mu.Unlock()
}

// isDue reports whether cronSpec has a slot between last and now.
// Supports "@daily", "@hourly", and standard cron expressions. An invalid
// expression is treated as @daily.
func isDue(cronSpec string, last *time.Time, now time.Time) bool {
	if last == nil {
		return true
	}
	switch cronSpec {
	case "@daily":
		return now.Sub(*last) >= 24*time.Hour
	case "@hourly":
		return now.Sub(*last) >= time.Hour
	}
	expr, err := cronexpr.Parse(cronSpec)
	if err != nil {
		return now.Sub(*last) >= 24*time.Hour
	}
	next := expr.Next(*last)
	return !next.IsZero() && !next.After(now)
}

package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/habits"
	"github.com/Noxter68/habit-tracking-sub001/internal/domain/progression"
	"github.com/Noxter68/habit-tracking-sub001/internal/infrastructure/metrics"
	"github.com/Noxter68/habit-tracking-sub001/pkg/logger"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// HabitLister lists the habits the nightly refresh covers.
type HabitLister interface {
	ListActive(ctx context.Context) ([]habits.HabitRef, error)
}

// Refresher recomputes the progression of one habit.
type Refresher interface {
	Refresh(ctx context.Context, habitID, userID uuid.UUID, today habits.Day) (*progression.RefreshResult, error)
}

type Options struct {
	// Hour of day, in Location, at which the refresh runs.
	Hour        int
	Location    *time.Location
	Concurrency int
	RunOnStart  bool
	Now         func() time.Time
	// After replaces time.After; tests use it to fire runs on demand.
	After func(d time.Duration) <-chan time.Time
}

// Summary reports one refresh run.
type Summary struct {
	Today       habits.Day    `json:"today"`
	Total       int           `json:"total"`
	Refreshed   int           `json:"refreshed"`
	Failed      int           `json:"failed"`
	Unlocked    int           `json:"milestones_unlocked"`
	TierChanges int           `json:"tier_changes"`
	Duration    time.Duration `json:"duration"`
}

type Scheduler struct {
	habits    HabitLister
	refresher Refresher
	logger    *logger.Logger
	opts      Options

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(lister HabitLister, refresher Refresher, opts Options, log *logger.Logger) *Scheduler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.After == nil {
		opts.After = time.After
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &Scheduler{
		habits:    lister,
		refresher: refresher,
		logger:    log,
		opts:      opts,
	}
}

// Start launches the nightly loop. It returns immediately; the loop ends when
// ctx is cancelled or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})

	go func(done chan struct{}) {
		defer close(done)
		s.loop(ctx)
	}(s.done)
}

// Stop cancels the loop and waits for an in-flight run to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context) {
	if s.opts.RunOnStart {
		s.run(ctx)
	}

	for {
		now := s.opts.Now()
		next := NextRun(now, s.opts.Hour, s.opts.Location)
		s.logger.Info("Progression refresh scheduled",
			zap.Time("current_time", now),
			zap.Time("next_run", next),
			zap.Duration("time_until_next_run", next.Sub(now)),
		)

		select {
		case <-ctx.Done():
			return
		case <-s.opts.After(next.Sub(now)):
			s.run(ctx)
		}
	}
}

func (s *Scheduler) run(ctx context.Context) {
	summary, err := s.RunOnce(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Error("Progression refresh failed", zap.Error(err))
		}
		return
	}
	s.logger.Info("Completed progression refresh",
		zap.String("today", summary.Today.String()),
		zap.Int("habits", summary.Total),
		zap.Int("refreshed", summary.Refreshed),
		zap.Int("failed", summary.Failed),
		zap.Int("milestones_unlocked", summary.Unlocked),
		zap.Int("tier_changes", summary.TierChanges),
		zap.Duration("duration", summary.Duration),
	)
}

// RunOnce refreshes every active habit for the current day. Per-habit failures
// are logged and counted; only listing failures and cancellation are returned.
func (s *Scheduler) RunOnce(ctx context.Context) (Summary, error) {
	start := time.Now()
	today := habits.DayOf(s.opts.Now(), s.opts.Location)
	summary := Summary{Today: today}

	s.logger.Info("Starting progression refresh", zap.String("today", today.String()))

	refs, err := s.habits.ListActive(ctx)
	if err != nil {
		return summary, err
	}
	summary.Total = len(refs)

	var refreshed, failed, unlocked, tierChanges atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for _, ref := range refs {
		ref := ref // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := s.refresher.Refresh(gctx, ref.ID, ref.UserID, today)
			metrics.RefreshResult(err == nil)
			if err != nil {
				failed.Add(1)
				s.logger.Error("Failed to refresh habit",
					zap.String("habit_id", ref.ID.String()),
					zap.Error(err))
				return nil
			}
			refreshed.Add(1)
			if res.Unlock.Unlocked {
				unlocked.Add(1)
			}
			if res.TierChanged {
				tierChanges.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()

	summary.Refreshed = int(refreshed.Load())
	summary.Failed = int(failed.Load())
	summary.Unlocked = int(unlocked.Load())
	summary.TierChanges = int(tierChanges.Load())
	summary.Duration = time.Since(start)
	return summary, err
}

// NextRun returns the first instant after now that falls on hour:00 in loc.
func NextRun(now time.Time, hour int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, loc)
	}
	return next
}

package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/habits"
	"github.com/Noxter68/habit-tracking-sub001/internal/infrastructure/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const insightsCacheType = "insights"

// Cache is the subset of the redis client the insight path uses.
type Cache interface {
	GetJSON(ctx context.Context, key string, dst interface{}) (bool, error)
	SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error
	InvalidateCache(ctx context.Context, entityType string, entityID interface{}) error
}

type Service interface {
	GetInsights(ctx context.Context, habitID uuid.UUID, today habits.Day) (*Insights, error)
	GetUserInsights(ctx context.Context, userID uuid.UUID, today habits.Day) ([]Insights, error)
	GetPerformance(ctx context.Context, habitID uuid.UUID, today habits.Day) (*PerformanceMetrics, error)
	GetPeriodStats(ctx context.Context, userID uuid.UUID, period Period, today habits.Day) (*PeriodStats, error)
	Invalidate(ctx context.Context, habitID uuid.UUID) error
}

type Options struct {
	WindowDays  int
	CacheTTL    time.Duration
	Concurrency int
}

type service struct {
	habits habits.Service
	cache  Cache
	opts   Options
	logger *zap.Logger
}

// NewService wires the insight path. cache may be nil, which disables caching.
func NewService(habitSvc habits.Service, cache Cache, opts Options, logger *zap.Logger) Service {
	if opts.WindowDays <= 0 {
		opts.WindowDays = DefaultWindowDays
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = 10 * time.Minute
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		habits: habitSvc,
		cache:  cache,
		opts:   opts,
		logger: logger,
	}
}

func insightsKey(habitID uuid.UUID, today habits.Day) string {
	return fmt.Sprintf("%s:%s:%s", insightsCacheType, habitID, today)
}

func (s *service) GetInsights(ctx context.Context, habitID uuid.UUID, today habits.Day) (*Insights, error) {
	key := insightsKey(habitID, today)
	if s.cache != nil {
		var cached Insights
		hit, err := s.cache.GetJSON(ctx, key, &cached)
		if err != nil {
			s.logger.Error("Error getting insights from cache", zap.String("key", key), zap.Error(err))
		} else if hit {
			return &cached, nil
		}
	}

	habit, err := s.habits.GetHabit(ctx, habitID)
	if err != nil {
		if errors.Is(err, habits.ErrHabitNotFound) {
			empty := ComputeInsights(nil, today, s.opts.WindowDays)
			empty.HabitID = habitID
			return &empty, nil
		}
		return nil, err
	}

	start := time.Now()
	in := ComputeInsights(habit, today, s.opts.WindowDays)
	metrics.ObserveCompute("insights", start)

	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, key, in, s.opts.CacheTTL); err != nil {
			s.logger.Error("Error caching insights", zap.String("key", key), zap.Error(err))
		}
	}
	return &in, nil
}

// GetUserInsights computes insights for every habit of a user in parallel.
func (s *service) GetUserInsights(ctx context.Context, userID uuid.UUID, today habits.Day) ([]Insights, error) {
	hs, err := s.habits.ListUserHabits(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]Insights, len(hs))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Concurrency)
	for i := range hs {
		i := i // per-iteration copy (go 1.21 loop semantics)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			out[i] = ComputeInsights(&hs[i], today, s.opts.WindowDays)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetPerformance loads only the rows of the trailing window it scores.
func (s *service) GetPerformance(ctx context.Context, habitID uuid.UUID, today habits.Day) (*PerformanceMetrics, error) {
	habit, err := s.habits.GetHabitWindow(ctx, habitID, habits.Window(today, s.opts.WindowDays))
	if err != nil {
		if errors.Is(err, habits.ErrHabitNotFound) {
			empty := ComputePerformance(nil, today, s.opts.WindowDays)
			return &empty, nil
		}
		return nil, err
	}

	start := time.Now()
	m := ComputePerformance(habit, today, s.opts.WindowDays)
	metrics.ObserveCompute("performance", start)
	return &m, nil
}

func (s *service) GetPeriodStats(ctx context.Context, userID uuid.UUID, period Period, today habits.Day) (*PeriodStats, error) {
	hs, err := s.habits.ListUserHabits(ctx, userID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	stats := ComputePeriodStats(hs, period, today)
	metrics.ObserveCompute("period_stats", start)
	return &stats, nil
}

// Invalidate drops every cached insight of a habit.
func (s *service) Invalidate(ctx context.Context, habitID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.InvalidateCache(ctx, insightsCacheType, habitID)
}

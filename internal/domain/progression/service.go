package progression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/analytics"
	"github.com/Noxter68/habit-tracking-sub001/internal/domain/events"
	"github.com/Noxter68/habit-tracking-sub001/internal/domain/habits"
	"github.com/Noxter68/habit-tracking-sub001/internal/domain/xp"
	"github.com/Noxter68/habit-tracking-sub001/internal/infrastructure/metrics"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// errAlreadyClaimed aborts the unlock transaction when a concurrent check won.
var errAlreadyClaimed = errors.New("milestone already claimed")

// EventPublisher delivers progression events to the presentation layer.
type EventPublisher interface {
	PublishProgressionEvent(ctx context.Context, event *events.ProgressionEvent) error
}

// InsightInvalidator drops cached insights of a habit.
type InsightInvalidator interface {
	Invalidate(ctx context.Context, habitID uuid.UUID) error
}

// UnlockResult is the outcome of one milestone check.
type UnlockResult struct {
	Unlocked  bool       `json:"unlocked"`
	Milestone *Milestone `json:"milestone,omitempty"`
	XPAwarded int        `json:"xp_awarded"`
}

// RefreshResult summarises a progression refresh of one habit.
type RefreshResult struct {
	HabitID      uuid.UUID                    `json:"habit_id"`
	UserID       uuid.UUID                    `json:"user_id"`
	Streak       habits.StreakSnapshot        `json:"streak"`
	Tier         TierProgress                 `json:"tier"`
	PreviousTier string                       `json:"previous_tier,omitempty"`
	TierChanged  bool                         `json:"tier_changed"`
	Performance  analytics.PerformanceMetrics `json:"performance"`
	Unlock       UnlockResult                 `json:"unlock"`
}

type Service interface {
	// CheckUnlock grants the milestone matching streak exactly, if any, and
	// awards its XP in the same transaction.
	CheckUnlock(ctx context.Context, habitID, userID uuid.UUID, streak int) (*UnlockResult, error)
	// Refresh recomputes streaks, tier and the performance snapshot of a
	// habit, then runs the milestone check.
	Refresh(ctx context.Context, habitID, userID uuid.UUID, today habits.Day) (*RefreshResult, error)
	// OnCompletion records a completion for day and refreshes the habit.
	OnCompletion(ctx context.Context, habitID, userID uuid.UUID, day, today habits.Day) (*RefreshResult, error)
	// OnUncompletion removes the completion of day and refreshes the habit.
	// Milestones already unlocked are kept.
	OnUncompletion(ctx context.Context, habitID, userID uuid.UUID, day, today habits.Day) (*RefreshResult, error)
	GetStatus(ctx context.Context, habitID, userID uuid.UUID, today habits.Day) (*Status, error)
	Tiers() *TierTable
}

type Options struct {
	WindowDays int
	Publisher  EventPublisher
	Insights   InsightInvalidator
	Now        func() time.Time
}

type service struct {
	habits     habits.Service
	repo       Repository
	catalog    Catalog
	ledger     xp.Ledger
	tiers      *TierTable
	publisher  EventPublisher
	insights   InsightInvalidator
	windowDays int
	now        func() time.Time
	logger     *zap.Logger
}

func NewService(habitSvc habits.Service, repo Repository, catalog Catalog, ledger xp.Ledger, tiers *TierTable, opts Options, logger *zap.Logger) Service {
	if tiers == nil {
		tiers = DefaultTierTable()
	}
	if opts.WindowDays <= 0 {
		opts.WindowDays = analytics.DefaultWindowDays
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		habits:     habitSvc,
		repo:       repo,
		catalog:    catalog,
		ledger:     ledger,
		tiers:      tiers,
		publisher:  opts.Publisher,
		insights:   opts.Insights,
		windowDays: opts.WindowDays,
		now:        opts.Now,
		logger:     logger,
	}
}

func (s *service) Tiers() *TierTable { return s.tiers }

func (s *service) CheckUnlock(ctx context.Context, habitID, userID uuid.UUID, streak int) (*UnlockResult, error) {
	p, err := s.repo.GetOrCreate(ctx, habitID, userID, s.tiers.First().Name)
	if err != nil {
		metrics.UnlockOutcome(metrics.OutcomeError)
		return nil, fmt.Errorf("load progression: %w", err)
	}

	catalog, err := s.catalog.ListMilestones(ctx)
	if err != nil {
		metrics.UnlockOutcome(metrics.OutcomeError)
		return nil, fmt.Errorf("list milestones: %w", err)
	}

	m, ok := DetectUnlock(catalog, streak, p.MilestonesUnlocked)
	if !ok {
		metrics.UnlockOutcome(metrics.OutcomeNone)
		return &UnlockResult{}, nil
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		claimed, err := s.repo.ClaimMilestone(ctx, p.ID, m.Title, s.now().UTC())
		if err != nil {
			return err
		}
		if !claimed {
			return errAlreadyClaimed
		}
		if m.XPReward == 0 {
			return nil
		}

		id := habitID
		awarded, err := s.ledger.AwardXP(ctx, userID, xp.Award{
			Amount:      m.XPReward,
			SourceType:  xp.SourceMilestone,
			SourceID:    habitID.String() + ":" + m.Title,
			HabitID:     &id,
			Description: fmt.Sprintf("Milestone unlocked: %s", m.Title),
		})
		if err != nil {
			return fmt.Errorf("award xp: %w", err)
		}
		if !awarded {
			return xp.ErrXPAwardRejected
		}
		return nil
	})

	switch {
	case errors.Is(err, errAlreadyClaimed):
		metrics.UnlockOutcome(metrics.OutcomeRaced)
		return &UnlockResult{}, nil
	case errors.Is(err, xp.ErrXPAwardRejected):
		metrics.UnlockOutcome(metrics.OutcomeRejected)
		return nil, fmt.Errorf("unlock %q: %w", m.Title, err)
	case err != nil:
		metrics.UnlockOutcome(metrics.OutcomeError)
		return nil, fmt.Errorf("unlock %q: %w", m.Title, err)
	}

	metrics.UnlockOutcome(metrics.OutcomeUnlocked)
	metrics.MilestoneUnlocked(m.Title)
	s.logger.Info("Milestone unlocked",
		zap.String("habit_id", habitID.String()),
		zap.String("user_id", userID.String()),
		zap.String("milestone", m.Title),
		zap.Int("xp", m.XPReward))
	s.publish(ctx, events.EventTypeMilestoneUnlocked, habitID, userID, events.MilestoneUnlockedDetails{
		Title:    m.Title,
		Days:     m.Days,
		XPReward: m.XPReward,
	})

	return &UnlockResult{Unlocked: true, Milestone: &m, XPAwarded: m.XPReward}, nil
}

func (s *service) Refresh(ctx context.Context, habitID, userID uuid.UUID, today habits.Day) (*RefreshResult, error) {
	h, err := s.habits.GetHabit(ctx, habitID)
	if errors.Is(err, habits.ErrHabitNotFound) || (err == nil && h.UserID != userID) {
		return &RefreshResult{HabitID: habitID, UserID: userID, Tier: s.tiers.TierFromStreak(0)}, nil
	}
	if err != nil {
		return nil, err
	}

	previousStreak := h.CurrentStreak
	snap, err := s.habits.SyncStreaks(ctx, h, today)
	if err != nil {
		return nil, fmt.Errorf("sync streaks: %w", err)
	}

	p, err := s.repo.GetOrCreate(ctx, habitID, userID, s.tiers.First().Name)
	if err != nil {
		return nil, fmt.Errorf("load progression: %w", err)
	}

	start := time.Now()
	tier := s.tiers.TierFromStreak(snap.Current)
	perf := analytics.ComputePerformance(h, today, s.windowDays)
	metrics.ObserveCompute("progression", start)

	res := &RefreshResult{
		HabitID:     habitID,
		UserID:      userID,
		Streak:      *snap,
		Tier:        tier,
		Performance: perf,
	}

	patch := ProgressionPatch{PerformanceMetrics: &perf}
	if tier.Tier.Name != p.CurrentTier {
		name := tier.Tier.Name
		patch.CurrentTier = &name
		res.PreviousTier = p.CurrentTier
		res.TierChanged = true
	}
	if err := s.repo.Update(ctx, p.ID, patch); err != nil {
		return nil, fmt.Errorf("update progression: %w", err)
	}

	if res.TierChanged {
		metrics.TierChanged(tier.Tier.Name)
		s.logger.Info("Tier changed",
			zap.String("habit_id", habitID.String()),
			zap.String("from", res.PreviousTier),
			zap.String("to", tier.Tier.Name))
		s.publish(ctx, events.EventTypeTierChanged, habitID, userID, events.TierChangedDetails{
			From:   res.PreviousTier,
			To:     tier.Tier.Name,
			Streak: snap.Current,
		})
	}
	if snap.Broken {
		s.publish(ctx, events.EventTypeStreakBroken, habitID, userID, events.StreakBrokenDetails{
			PreviousStreak: previousStreak,
		})
	}

	unlock, err := s.CheckUnlock(ctx, habitID, userID, snap.Current)
	switch {
	case errors.Is(err, xp.ErrXPAwardRejected):
		s.logger.Warn("Milestone unlock rejected by ledger",
			zap.String("habit_id", habitID.String()),
			zap.Error(err))
	case err != nil:
		return nil, err
	default:
		res.Unlock = *unlock
	}

	if s.insights != nil {
		if err := s.insights.Invalidate(ctx, habitID); err != nil {
			s.logger.Error("Failed to invalidate insights",
				zap.String("habit_id", habitID.String()),
				zap.Error(err))
		}
	}

	return res, nil
}

func (s *service) OnCompletion(ctx context.Context, habitID, userID uuid.UUID, day, today habits.Day) (*RefreshResult, error) {
	if err := s.habits.LogCompletion(ctx, habitID, userID, day); err != nil {
		return nil, fmt.Errorf("log completion: %w", err)
	}
	return s.Refresh(ctx, habitID, userID, today)
}

func (s *service) OnUncompletion(ctx context.Context, habitID, userID uuid.UUID, day, today habits.Day) (*RefreshResult, error) {
	if err := s.habits.RemoveCompletion(ctx, habitID, userID, day); err != nil {
		return nil, fmt.Errorf("remove completion: %w", err)
	}
	return s.Refresh(ctx, habitID, userID, today)
}

func (s *service) GetStatus(ctx context.Context, habitID, userID uuid.UUID, today habits.Day) (*Status, error) {
	status := &Status{HabitID: habitID, UserID: userID}

	h, err := s.habits.GetHabit(ctx, habitID)
	switch {
	case errors.Is(err, habits.ErrHabitNotFound):
		h = nil
	case err != nil:
		return nil, err
	case h.UserID != userID:
		h = nil
	}
	if h != nil {
		status.CurrentStreak = habits.CurrentStreak(h, today)

		runs, err := s.habits.GetStreakHistory(ctx, habitID)
		if err != nil {
			return nil, fmt.Errorf("load streak history: %w", err)
		}
		for _, r := range runs {
			status.PastStreaks = append(status.PastStreaks, PastStreak{
				Start:  habits.DayOf(r.StartDate, time.UTC).String(),
				End:    habits.DayOf(r.EndDate, time.UTC).String(),
				Length: r.StreakLength,
			})
		}
	}

	var unlocked []string
	p, err := s.repo.Get(ctx, habitID, userID)
	switch {
	case errors.Is(err, ErrProgressionNotFound):
	case err != nil:
		return nil, fmt.Errorf("load progression: %w", err)
	default:
		unlocked = p.MilestonesUnlocked
		status.HabitXP = p.HabitXP
		status.LastMilestone = p.LastMilestoneDate
		status.Performance = p.Metrics()
	}

	catalog, err := s.catalog.ListMilestones(ctx)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}

	status.Tier = s.tiers.TierFromStreak(status.CurrentStreak)
	status.XPMultiplier = status.Tier.Tier.Multiplier
	if next, ok := s.tiers.NextTier(status.Tier.Tier.Name); ok {
		status.NextTier = &next
	}
	status.Milestones = GetMilestoneStatus(catalog, status.CurrentStreak, unlocked)
	return status, nil
}

func (s *service) publish(ctx context.Context, eventType string, habitID, userID uuid.UUID, details interface{}) {
	if s.publisher == nil {
		return
	}
	event := &events.ProgressionEvent{
		EventType: eventType,
		UserID:    userID,
		HabitID:   habitID,
		Timestamp: s.now().UTC(),
		Details:   details,
	}
	if err := s.publisher.PublishProgressionEvent(ctx, event); err != nil {
		s.logger.Error("Failed to publish progression event",
			zap.String("event_type", eventType),
			zap.String("habit_id", habitID.String()),
			zap.Error(err))
	}
}

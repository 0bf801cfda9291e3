package habits

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// StreakSnapshot is the result of recomputing a habit's streaks for a given day.
type StreakSnapshot struct {
	HabitID       uuid.UUID `json:"habit_id"`
	UserID        uuid.UUID `json:"user_id"`
	Current       int       `json:"current_streak"`
	Best          int       `json:"best_streak"`
	LastCompleted Day       `json:"last_completed"`
	// Broken is set when the cached streak was positive and the recomputed one is zero.
	Broken bool `json:"broken"`
}

type Service interface {
	GetHabit(ctx context.Context, id uuid.UUID) (*Habit, error)
	// GetHabitWindow loads a habit with only the completions inside r.
	GetHabitWindow(ctx context.Context, id uuid.UUID, r DayRange) (*Habit, error)
	ListUserHabits(ctx context.Context, userID uuid.UUID) ([]Habit, error)
	ListActive(ctx context.Context) ([]HabitRef, error)
	RefreshStreaks(ctx context.Context, id uuid.UUID, today Day) (*StreakSnapshot, error)
	SyncStreaks(ctx context.Context, habit *Habit, today Day) (*StreakSnapshot, error)
	GetStreakHistory(ctx context.Context, id uuid.UUID) ([]StreakHistory, error)
	LogCompletion(ctx context.Context, habitID, userID uuid.UUID, day Day) error
	RemoveCompletion(ctx context.Context, habitID, userID uuid.UUID, day Day) error
}

type service struct {
	repo   Repository
	logger *zap.Logger
}

func NewService(repo Repository, logger *zap.Logger) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &service{
		repo:   repo,
		logger: logger,
	}
}

func (s *service) GetHabit(ctx context.Context, id uuid.UUID) (*Habit, error) {
	habit, err := s.repo.GetHabit(ctx, id)
	if err != nil {
		return nil, err
	}
	if habit == nil {
		return nil, ErrHabitNotFound
	}
	return habit, nil
}

func (s *service) GetHabitWindow(ctx context.Context, id uuid.UUID, r DayRange) (*Habit, error) {
	habit, err := s.repo.GetHabitInfo(ctx, id)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.GetCompletionRows(ctx, id, r)
	if err != nil {
		return nil, err
	}
	habit.ApplyRows(rows)
	return habit, nil
}

func (s *service) ListUserHabits(ctx context.Context, userID uuid.UUID) ([]Habit, error) {
	return s.repo.ListByUser(ctx, userID)
}

func (s *service) ListActive(ctx context.Context) ([]HabitRef, error) {
	return s.repo.ListActiveIDs(ctx)
}

// RefreshStreaks recomputes current and best streak from the completion history,
// writes them to the cached columns and records the run that just ended when
// the streak broke.
func (s *service) RefreshStreaks(ctx context.Context, id uuid.UUID, today Day) (*StreakSnapshot, error) {
	habit, err := s.GetHabit(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.SyncStreaks(ctx, habit, today)
}

// SyncStreaks is RefreshStreaks for a habit the caller already loaded. The
// habit's cached streak fields are updated in place.
func (s *service) SyncStreaks(ctx context.Context, habit *Habit, today Day) (*StreakSnapshot, error) {
	snap := Snapshot(habit, today)

	if snap.Broken {
		start, end := LastRun(habit, today, habit.CurrentStreak)
		if !end.IsZero() {
			if err := s.repo.LogStreakHistory(ctx, habit.ID, habit.CurrentStreak, start, end); err != nil && !errors.Is(err, ErrInvalidInput) {
				s.logger.Error("Failed to log streak history",
					zap.String("habit_id", habit.ID.String()),
					zap.Error(err))
			}
		}
		s.logger.Info("Streak broken",
			zap.String("habit_id", habit.ID.String()),
			zap.Int("previous_streak", habit.CurrentStreak))
	}

	if err := s.repo.UpdateStreakCache(ctx, habit.ID, snap.Current, snap.Best, snap.LastCompleted); err != nil {
		return nil, fmt.Errorf("update streak cache: %w", err)
	}
	habit.CurrentStreak = snap.Current
	if snap.Best > habit.BestStreak {
		habit.BestStreak = snap.Best
	}

	return &snap, nil
}

func (s *service) GetStreakHistory(ctx context.Context, id uuid.UUID) ([]StreakHistory, error) {
	if _, err := s.GetHabit(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.GetStreakHistory(ctx, id)
}

func (s *service) LogCompletion(ctx context.Context, habitID, userID uuid.UUID, day Day) error {
	habit, err := s.GetHabit(ctx, habitID)
	if err != nil {
		return err
	}
	if habit.UserID != userID {
		return ErrHabitNotFound
	}
	return s.repo.LogCompletion(ctx, habitID, userID, day)
}

// RemoveCompletion undoes a whole-habit completion. Removing a day that was
// never logged is not an error.
func (s *service) RemoveCompletion(ctx context.Context, habitID, userID uuid.UUID, day Day) error {
	habit, err := s.GetHabit(ctx, habitID)
	if err != nil {
		return err
	}
	if habit.UserID != userID {
		return ErrHabitNotFound
	}
	if err := s.repo.RemoveCompletion(ctx, habitID, userID, day); err != nil {
		return err
	}
	s.logger.Info("Completion removed",
		zap.String("habit_id", habitID.String()),
		zap.String("day", day.String()))
	return nil
}

// Snapshot computes the streak figures of h as of today without touching storage.
func Snapshot(h *Habit, today Day) StreakSnapshot {
	current := CurrentStreak(h, today)
	best := BestStreak(h, today)
	if current > best {
		best = current
	}

	var last Day
	if history := CompletionHistory(h, today); len(history) > 0 {
		last = history[len(history)-1]
	}

	return StreakSnapshot{
		HabitID:       h.ID,
		UserID:        h.UserID,
		Current:       current,
		Best:          best,
		LastCompleted: last,
		Broken:        h.CurrentStreak > 0 && current == 0,
	}
}

// LastRun returns the first and last day of the most recent run of completed
// applicable days before today, trimmed to at most length days.
func LastRun(h *Habit, today Day, length int) (Day, Day) {
	history := CompletionHistory(h, today)
	if len(history) == 0 || length <= 0 {
		return Day{}, Day{}
	}

	end := history[len(history)-1]
	start := end
	taken := 1
	for d := end.AddDays(-1); taken < length && !d.Before(h.ActiveSince()); d = d.AddDays(-1) {
		if !h.MatchesSchedule(d) {
			continue
		}
		if !h.IsComplete(d) {
			break
		}
		start = d
		taken++
	}
	return start, end
}

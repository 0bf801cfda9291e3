package progression

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/events"
	"github.com/Noxter68/habit-tracking-sub001/internal/domain/habits"
	"github.com/Noxter68/habit-tracking-sub001/internal/domain/xp"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

var (
	today   = habits.MustParseDay("2024-03-20")
	fixedAt = time.Date(2024, 3, 20, 18, 30, 0, 0, time.UTC)
)

// mockHabits serves habits from memory and mirrors the streak cache updates
// of the real service.
type mockHabits struct {
	habits  map[uuid.UUID]*habits.Habit
	history map[uuid.UUID][]habits.StreakHistory
}

func (m *mockHabits) GetHabit(ctx context.Context, id uuid.UUID) (*habits.Habit, error) {
	h, ok := m.habits[id]
	if !ok {
		return nil, habits.ErrHabitNotFound
	}
	return h, nil
}

func (m *mockHabits) ListUserHabits(ctx context.Context, userID uuid.UUID) ([]habits.Habit, error) {
	var out []habits.Habit
	for _, h := range m.habits {
		if h.UserID == userID {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (m *mockHabits) ListActive(ctx context.Context) ([]habits.HabitRef, error) {
	var out []habits.HabitRef
	for _, h := range m.habits {
		out = append(out, habits.HabitRef{ID: h.ID, UserID: h.UserID})
	}
	return out, nil
}

func (m *mockHabits) RefreshStreaks(ctx context.Context, id uuid.UUID, today habits.Day) (*habits.StreakSnapshot, error) {
	h, err := m.GetHabit(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.SyncStreaks(ctx, h, today)
}

func (m *mockHabits) SyncStreaks(ctx context.Context, h *habits.Habit, today habits.Day) (*habits.StreakSnapshot, error) {
	snap := habits.Snapshot(h, today)
	h.CurrentStreak = snap.Current
	if snap.Best > h.BestStreak {
		h.BestStreak = snap.Best
	}
	return &snap, nil
}

func (m *mockHabits) GetHabitWindow(ctx context.Context, id uuid.UUID, r habits.DayRange) (*habits.Habit, error) {
	return m.GetHabit(ctx, id)
}

func (m *mockHabits) GetStreakHistory(ctx context.Context, id uuid.UUID) ([]habits.StreakHistory, error) {
	return m.history[id], nil
}

func (m *mockHabits) RemoveCompletion(ctx context.Context, habitID, userID uuid.UUID, day habits.Day) error {
	h, ok := m.habits[habitID]
	if !ok || h.UserID != userID {
		return habits.ErrHabitNotFound
	}
	delete(h.CompletedDays, day)
	return nil
}

func (m *mockHabits) LogCompletion(ctx context.Context, habitID, userID uuid.UUID, day habits.Day) error {
	h, ok := m.habits[habitID]
	if !ok || h.UserID != userID {
		return habits.ErrHabitNotFound
	}
	if h.CompletedDays == nil {
		h.CompletedDays = habits.NewDaySet()
	}
	h.CompletedDays.Add(day)
	return nil
}

// mockRepository keeps progressions in memory. WithTx restores the previous
// state when fn fails.
type mockRepository struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*HabitProgression
	// afterLoad runs on the stored row after GetOrCreate returned a copy.
	afterLoad func(p *HabitProgression)
	failGet   error
}

func newMockRepository() *mockRepository {
	return &mockRepository{rows: make(map[uuid.UUID]*HabitProgression)}
}

func clone(p *HabitProgression) *HabitProgression {
	c := *p
	c.MilestonesUnlocked = append(pq.StringArray{}, p.MilestonesUnlocked...)
	if p.LastMilestoneDate != nil {
		at := *p.LastMilestoneDate
		c.LastMilestoneDate = &at
	}
	return &c
}

func (r *mockRepository) find(habitID, userID uuid.UUID) *HabitProgression {
	for _, p := range r.rows {
		if p.HabitID == habitID && p.UserID == userID {
			return p
		}
	}
	return nil
}

func (r *mockRepository) Get(ctx context.Context, habitID, userID uuid.UUID) (*HabitProgression, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p := r.find(habitID, userID); p != nil {
		return clone(p), nil
	}
	return nil, ErrProgressionNotFound
}

func (r *mockRepository) GetOrCreate(ctx context.Context, habitID, userID uuid.UUID, initialTier string) (*HabitProgression, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failGet != nil {
		return nil, r.failGet
	}
	p := r.find(habitID, userID)
	if p == nil {
		p = &HabitProgression{
			ID:                 uuid.New(),
			HabitID:            habitID,
			UserID:             userID,
			CurrentTier:        initialTier,
			MilestonesUnlocked: pq.StringArray{},
		}
		r.rows[p.ID] = p
	}
	out := clone(p)
	if r.afterLoad != nil {
		r.afterLoad(p)
	}
	return out, nil
}

func (r *mockRepository) Update(ctx context.Context, id uuid.UUID, patch ProgressionPatch) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok {
		return ErrProgressionNotFound
	}
	updates, err := patch.updates()
	if err != nil {
		return err
	}
	if v, ok := updates["current_tier"]; ok {
		p.CurrentTier = v.(string)
	}
	if v, ok := updates["performance_metrics"]; ok {
		p.PerformanceMetrics = v.(datatypes.JSON)
	}
	return nil
}

func (r *mockRepository) ClaimMilestone(ctx context.Context, id uuid.UUID, title string, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.rows[id]
	if !ok || p.HasMilestone(title) {
		return false, nil
	}
	p.MilestonesUnlocked = append(p.MilestonesUnlocked, title)
	p.LastMilestoneDate = &at
	return true, nil
}

func (r *mockRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	saved := make(map[uuid.UUID]*HabitProgression, len(r.rows))
	for id, p := range r.rows {
		saved[id] = clone(p)
	}
	r.mu.Unlock()

	if err := fn(ctx); err != nil {
		r.mu.Lock()
		r.rows = saved
		r.mu.Unlock()
		return err
	}
	return nil
}

type recordingPublisher struct {
	events []*events.ProgressionEvent
}

func (p *recordingPublisher) PublishProgressionEvent(ctx context.Context, e *events.ProgressionEvent) error {
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []string {
	var out []string
	for _, e := range p.events {
		out = append(out, e.EventType)
	}
	return out
}

type recordingInvalidator struct {
	ids []uuid.UUID
}

func (i *recordingInvalidator) Invalidate(ctx context.Context, habitID uuid.UUID) error {
	i.ids = append(i.ids, habitID)
	return nil
}

type fixture struct {
	svc       Service
	habits    *mockHabits
	repo      *mockRepository
	ledger    *xp.MemoryLedger
	publisher *recordingPublisher
	insights  *recordingInvalidator
}

func newFixture(t *testing.T, hs ...*habits.Habit) *fixture {
	t.Helper()
	f := &fixture{
		habits:    &mockHabits{habits: make(map[uuid.UUID]*habits.Habit)},
		repo:      newMockRepository(),
		ledger:    xp.NewMemoryLedger(),
		publisher: &recordingPublisher{},
		insights:  &recordingInvalidator{},
	}
	for _, h := range hs {
		f.habits.habits[h.ID] = h
	}
	catalog, err := NewStaticCatalog(testCatalog())
	require.NoError(t, err)

	f.svc = NewService(f.habits, f.repo, catalog, f.ledger, DefaultTierTable(), Options{
		WindowDays: 30,
		Publisher:  f.publisher,
		Insights:   f.insights,
		Now:        func() time.Time { return fixedAt },
	}, nil)
	return f
}

// dailyHabit returns a daily habit created `age` days before today with the
// last `streak` days (today included) completed.
func dailyHabit(age, streak int) *habits.Habit {
	h := &habits.Habit{
		ID:            uuid.New(),
		UserID:        uuid.New(),
		Title:         "Meditate",
		Frequency:     habits.FrequencyDaily,
		CompletedDays: habits.NewDaySet(),
		CreatedAt:     today.AddDays(-age),
	}
	for i := 0; i < streak; i++ {
		h.CompletedDays.Add(today.AddDays(-i))
	}
	return h
}

func TestCheckUnlock(t *testing.T) {
	ctx := context.Background()

	t.Run("Unlocks once", func(t *testing.T) {
		f := newFixture(t)
		habitID, userID := uuid.New(), uuid.New()

		res, err := f.svc.CheckUnlock(ctx, habitID, userID, 7)
		require.NoError(t, err)
		require.True(t, res.Unlocked)
		assert.Equal(t, "Week Warrior", res.Milestone.Title)
		assert.Equal(t, 50, res.XPAwarded)

		again, err := f.svc.CheckUnlock(ctx, habitID, userID, 7)
		require.NoError(t, err)
		assert.False(t, again.Unlocked)

		total, _ := f.ledger.TotalXP(ctx, userID)
		assert.Equal(t, 50, total)

		p, err := f.repo.Get(ctx, habitID, userID)
		require.NoError(t, err)
		assert.Equal(t, pq.StringArray{"Week Warrior"}, p.MilestonesUnlocked)
		require.NotNil(t, p.LastMilestoneDate)
		assert.Equal(t, fixedAt, *p.LastMilestoneDate)
		assert.Equal(t, []string{events.EventTypeMilestoneUnlocked}, f.publisher.types())
	})

	t.Run("Streak jumping past a threshold", func(t *testing.T) {
		f := newFixture(t)
		habitID, userID := uuid.New(), uuid.New()

		for _, streak := range []int{6, 8} {
			res, err := f.svc.CheckUnlock(ctx, habitID, userID, streak)
			require.NoError(t, err)
			assert.False(t, res.Unlocked, "streak %d", streak)
		}

		p, err := f.repo.Get(ctx, habitID, userID)
		require.NoError(t, err)
		assert.Empty(t, p.MilestonesUnlocked)
		assert.Nil(t, p.LastMilestoneDate)
	})

	t.Run("Rejected award rolls back", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Reject = true
		habitID, userID := uuid.New(), uuid.New()

		_, err := f.svc.CheckUnlock(ctx, habitID, userID, 7)
		assert.ErrorIs(t, err, xp.ErrXPAwardRejected)

		p, err := f.repo.Get(ctx, habitID, userID)
		require.NoError(t, err)
		assert.Empty(t, p.MilestonesUnlocked)
		assert.Nil(t, p.LastMilestoneDate)
		assert.Empty(t, f.publisher.events)
	})

	t.Run("Ledger failure rolls back and retry succeeds", func(t *testing.T) {
		f := newFixture(t)
		f.ledger.Fail = errors.New("ledger unavailable")
		habitID, userID := uuid.New(), uuid.New()

		_, err := f.svc.CheckUnlock(ctx, habitID, userID, 7)
		assert.ErrorIs(t, err, f.ledger.Fail)
		p, _ := f.repo.Get(ctx, habitID, userID)
		assert.Empty(t, p.MilestonesUnlocked)

		f.ledger.Fail = nil
		res, err := f.svc.CheckUnlock(ctx, habitID, userID, 7)
		require.NoError(t, err)
		assert.True(t, res.Unlocked)
		total, _ := f.ledger.TotalXP(ctx, userID)
		assert.Equal(t, 50, total)
	})

	t.Run("Concurrent claim wins", func(t *testing.T) {
		f := newFixture(t)
		f.repo.afterLoad = func(p *HabitProgression) {
			if !p.HasMilestone("Week Warrior") {
				p.MilestonesUnlocked = append(p.MilestonesUnlocked, "Week Warrior")
			}
		}
		habitID, userID := uuid.New(), uuid.New()

		res, err := f.svc.CheckUnlock(ctx, habitID, userID, 7)
		require.NoError(t, err)
		assert.False(t, res.Unlocked)
		total, _ := f.ledger.TotalXP(ctx, userID)
		assert.Zero(t, total)
	})

	t.Run("Store error", func(t *testing.T) {
		f := newFixture(t)
		f.repo.failGet = errors.New("connection reset")

		_, err := f.svc.CheckUnlock(ctx, uuid.New(), uuid.New(), 7)
		assert.ErrorIs(t, err, f.repo.failGet)
	})
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()

	t.Run("Habit created today", func(t *testing.T) {
		h := dailyHabit(0, 0)
		f := newFixture(t, h)

		res, err := f.svc.Refresh(ctx, h.ID, h.UserID, today)
		require.NoError(t, err)
		assert.Zero(t, res.Streak.Current)
		assert.Equal(t, "Crystal", res.Tier.Tier.Name)
		assert.Zero(t, res.Tier.ProgressPercent)
		assert.False(t, res.TierChanged)
		assert.False(t, res.Unlock.Unlocked)
	})

	t.Run("Seventh day unlocks the first milestone", func(t *testing.T) {
		h := dailyHabit(9, 7)
		f := newFixture(t, h)

		res, err := f.svc.Refresh(ctx, h.ID, h.UserID, today)
		require.NoError(t, err)
		assert.Equal(t, 7, res.Streak.Current)
		assert.InDelta(t, 14.0, res.Tier.ProgressPercent, 0.0001)
		require.True(t, res.Unlock.Unlocked)
		assert.Equal(t, "Week Warrior", res.Unlock.Milestone.Title)
		assert.Equal(t, 7, h.CurrentStreak)
		assert.Equal(t, []uuid.UUID{h.ID}, f.insights.ids)

		p, err := f.repo.Get(ctx, h.ID, h.UserID)
		require.NoError(t, err)
		stored := p.Metrics()
		assert.Equal(t, res.Performance, stored)
		assert.InDelta(t, 7.0/30*100, stored.CompletionRate, 0.0001)
	})

	t.Run("Tier boundary", func(t *testing.T) {
		h := dailyHabit(49, 50)
		f := newFixture(t, h)

		res, err := f.svc.Refresh(ctx, h.ID, h.UserID, today)
		require.NoError(t, err)
		assert.Equal(t, "Ruby", res.Tier.Tier.Name)
		assert.Zero(t, res.Tier.ProgressPercent)
		assert.True(t, res.TierChanged)
		assert.Equal(t, "Crystal", res.PreviousTier)
		assert.Equal(t, "Ruby Ascension", res.Unlock.Milestone.Title)
		assert.Equal(t, []string{events.EventTypeTierChanged, events.EventTypeMilestoneUnlocked}, f.publisher.types())

		details, ok := f.publisher.events[0].Details.(events.TierChangedDetails)
		require.True(t, ok)
		assert.Equal(t, events.TierChangedDetails{From: "Crystal", To: "Ruby", Streak: 50}, details)

		p, _ := f.repo.Get(ctx, h.ID, h.UserID)
		assert.Equal(t, "Ruby", p.CurrentTier)

		// a second refresh changes nothing
		again, err := f.svc.Refresh(ctx, h.ID, h.UserID, today)
		require.NoError(t, err)
		assert.False(t, again.TierChanged)
		assert.False(t, again.Unlock.Unlocked)
		assert.Len(t, f.publisher.events, 2)
	})

	t.Run("Broken streak", func(t *testing.T) {
		h := dailyHabit(20, 0)
		for i := 3; i < 8; i++ {
			h.CompletedDays.Add(today.AddDays(-i))
		}
		h.CurrentStreak = 5
		f := newFixture(t, h)

		res, err := f.svc.Refresh(ctx, h.ID, h.UserID, today)
		require.NoError(t, err)
		assert.True(t, res.Streak.Broken)
		assert.Zero(t, h.CurrentStreak)
		require.Equal(t, []string{events.EventTypeStreakBroken}, f.publisher.types())
		assert.Equal(t, events.StreakBrokenDetails{PreviousStreak: 5}, f.publisher.events[0].Details)
	})

	t.Run("Rejected award does not fail the refresh", func(t *testing.T) {
		h := dailyHabit(9, 7)
		f := newFixture(t, h)
		f.ledger.Reject = true

		res, err := f.svc.Refresh(ctx, h.ID, h.UserID, today)
		require.NoError(t, err)
		assert.False(t, res.Unlock.Unlocked)
		p, _ := f.repo.Get(ctx, h.ID, h.UserID)
		assert.Empty(t, p.MilestonesUnlocked)
	})

	t.Run("Unknown habit or wrong owner", func(t *testing.T) {
		h := dailyHabit(9, 7)
		f := newFixture(t, h)

		for _, ids := range [][2]uuid.UUID{{uuid.New(), h.UserID}, {h.ID, uuid.New()}} {
			res, err := f.svc.Refresh(ctx, ids[0], ids[1], today)
			require.NoError(t, err)
			assert.Zero(t, res.Streak.Current)
			assert.Equal(t, "Crystal", res.Tier.Tier.Name)
		}
		assert.Empty(t, f.repo.rows)
	})
}

func TestOnCompletion(t *testing.T) {
	ctx := context.Background()
	h := dailyHabit(9, 0)
	for i := 1; i <= 6; i++ {
		h.CompletedDays.Add(today.AddDays(-i))
	}
	f := newFixture(t, h)

	res, err := f.svc.OnCompletion(ctx, h.ID, h.UserID, today, today)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Streak.Current)
	assert.True(t, res.Unlock.Unlocked)
	assert.True(t, h.IsComplete(today))

	_, err = f.svc.OnCompletion(ctx, h.ID, uuid.New(), today, today)
	assert.ErrorIs(t, err, habits.ErrHabitNotFound)
}

func TestOnUncompletion(t *testing.T) {
	ctx := context.Background()
	h := dailyHabit(9, 7)
	f := newFixture(t, h)

	res, err := f.svc.Refresh(ctx, h.ID, h.UserID, today)
	require.NoError(t, err)
	require.True(t, res.Unlock.Unlocked)
	awarded, _ := f.ledger.TotalXP(ctx, h.UserID)

	res, err = f.svc.OnUncompletion(ctx, h.ID, h.UserID, today, today)
	require.NoError(t, err)
	assert.Equal(t, 6, res.Streak.Current)
	assert.False(t, h.IsComplete(today))

	// The milestone stays unlocked and a second completion does not pay again.
	res, err = f.svc.OnCompletion(ctx, h.ID, h.UserID, today, today)
	require.NoError(t, err)
	assert.Equal(t, 7, res.Streak.Current)
	assert.False(t, res.Unlock.Unlocked)
	total, _ := f.ledger.TotalXP(ctx, h.UserID)
	assert.Equal(t, awarded, total)

	status, err := f.svc.GetStatus(ctx, h.ID, h.UserID, today)
	require.NoError(t, err)
	assert.Len(t, status.Milestones.Unlocked, 1)

	_, err = f.svc.OnUncompletion(ctx, h.ID, uuid.New(), today, today)
	assert.ErrorIs(t, err, habits.ErrHabitNotFound)
}

func TestGetStatus(t *testing.T) {
	ctx := context.Background()
	h := dailyHabit(9, 7)
	f := newFixture(t, h)

	_, err := f.svc.Refresh(ctx, h.ID, h.UserID, today)
	require.NoError(t, err)

	status, err := f.svc.GetStatus(ctx, h.ID, h.UserID, today)
	require.NoError(t, err)
	assert.Equal(t, 7, status.CurrentStreak)
	assert.Equal(t, "Crystal", status.Tier.Tier.Name)
	assert.Equal(t, 1.0, status.XPMultiplier)
	require.NotNil(t, status.NextTier)
	assert.Equal(t, "Ruby", status.NextTier.Name)
	require.Len(t, status.Milestones.Unlocked, 1)
	assert.Equal(t, "Habit Former", status.Milestones.Next.Title)
	assert.InDelta(t, 7.0/30*100, status.Performance.CompletionRate, 0.0001)
	assert.Empty(t, status.PastStreaks)

	f.habits.history = map[uuid.UUID][]habits.StreakHistory{h.ID: {
		{HabitID: h.ID, StartDate: today.AddDays(-20).Time(), EndDate: today.AddDays(-12).Time(), StreakLength: 9},
	}}
	status, err = f.svc.GetStatus(ctx, h.ID, h.UserID, today)
	require.NoError(t, err)
	assert.Equal(t, []PastStreak{{Start: "2024-02-29", End: "2024-03-08", Length: 9}}, status.PastStreaks)

	other, err := f.svc.GetStatus(ctx, h.ID, uuid.New(), today)
	require.NoError(t, err)
	assert.Empty(t, other.PastStreaks)

	empty, err := f.svc.GetStatus(ctx, uuid.New(), uuid.New(), today)
	require.NoError(t, err)
	assert.Zero(t, empty.CurrentStreak)
	assert.Equal(t, "Crystal", empty.Tier.Tier.Name)
	assert.Len(t, empty.Milestones.Upcoming, 3)
}

package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/habits"
	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHabits struct {
	habits  map[uuid.UUID]*habits.Habit
	windows []habits.DayRange
	loads   int
	err     error
}

func newFakeHabits(hs ...*habits.Habit) *fakeHabits {
	f := &fakeHabits{habits: make(map[uuid.UUID]*habits.Habit)}
	for _, h := range hs {
		f.habits[h.ID] = h
	}
	return f
}

func (f *fakeHabits) GetHabit(ctx context.Context, id uuid.UUID) (*habits.Habit, error) {
	f.loads++
	if f.err != nil {
		return nil, f.err
	}
	h, ok := f.habits[id]
	if !ok {
		return nil, habits.ErrHabitNotFound
	}
	return h, nil
}

// GetHabitWindow copies the habit keeping only the completions inside r.
func (f *fakeHabits) GetHabitWindow(ctx context.Context, id uuid.UUID, r habits.DayRange) (*habits.Habit, error) {
	h, err := f.GetHabit(ctx, id)
	if err != nil {
		return nil, err
	}
	f.windows = append(f.windows, r)
	windowed := *h
	windowed.DailyTasks = make(habits.DailyTasks)
	windowed.CompletedDays = make(habits.DaySet)
	for d, rec := range h.DailyTasks {
		if r.Contains(d) {
			windowed.DailyTasks[d] = rec
		}
	}
	for d := range h.CompletedDays {
		if r.Contains(d) {
			windowed.CompletedDays.Add(d)
		}
	}
	return &windowed, nil
}

func (f *fakeHabits) ListUserHabits(ctx context.Context, userID uuid.UUID) ([]habits.Habit, error) {
	if f.err != nil {
		return nil, f.err
	}
	var out []habits.Habit
	for _, h := range f.habits {
		if h.UserID == userID {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (f *fakeHabits) ListActive(ctx context.Context) ([]habits.HabitRef, error) { return nil, nil }

func (f *fakeHabits) RefreshStreaks(ctx context.Context, id uuid.UUID, today habits.Day) (*habits.StreakSnapshot, error) {
	h, err := f.GetHabit(ctx, id)
	if err != nil {
		return nil, err
	}
	return f.SyncStreaks(ctx, h, today)
}

func (f *fakeHabits) SyncStreaks(ctx context.Context, h *habits.Habit, today habits.Day) (*habits.StreakSnapshot, error) {
	snap := habits.Snapshot(h, today)
	return &snap, nil
}

func (f *fakeHabits) GetStreakHistory(ctx context.Context, id uuid.UUID) ([]habits.StreakHistory, error) {
	return nil, nil
}

func (f *fakeHabits) LogCompletion(ctx context.Context, habitID, userID uuid.UUID, day habits.Day) error {
	return nil
}

func (f *fakeHabits) RemoveCompletion(ctx context.Context, habitID, userID uuid.UUID, day habits.Day) error {
	return nil
}

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]string
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]string)}
}

func (c *memoryCache) GetJSON(ctx context.Context, key string, dst interface{}) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal([]byte(raw), dst)
}

func (c *memoryCache) SetJSON(ctx context.Context, key string, v interface{}, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = string(data)
	return nil
}

func (c *memoryCache) InvalidateCache(ctx context.Context, entityType string, entityID interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prefix := fmt.Sprintf("%s:%v", entityType, entityID)
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	return nil
}

func TestGetInsightsUsesCache(t *testing.T) {
	created := today.AddDays(-9)
	h := daily(created, span(created, 0, 9)...)
	store := newFakeHabits(h)
	cache := newMemoryCache()
	svc := NewService(store, cache, Options{WindowDays: 30}, nil)
	ctx := context.Background()

	first, err := svc.GetInsights(ctx, h.ID, today)
	require.NoError(t, err)
	assert.Equal(t, 10, first.CurrentStreak)
	assert.Equal(t, 1, store.loads)
	assert.Contains(t, cache.entries, "insights:"+h.ID.String()+":2024-03-20")

	second, err := svc.GetInsights(ctx, h.ID, today)
	require.NoError(t, err)
	assert.Equal(t, 1, store.loads)
	if diff := cmp.Diff(*first, *second); diff != "" {
		t.Errorf("cached insights differ (-computed +cached):\n%s", diff)
	}

	require.NoError(t, svc.Invalidate(ctx, h.ID))
	assert.Empty(t, cache.entries)

	_, err = svc.GetInsights(ctx, h.ID, today)
	require.NoError(t, err)
	assert.Equal(t, 2, store.loads)
}

func TestGetInsightsMissingHabit(t *testing.T) {
	svc := NewService(newFakeHabits(), nil, Options{}, nil)
	id := uuid.New()

	in, err := svc.GetInsights(context.Background(), id, today)
	require.NoError(t, err)
	assert.Equal(t, id, in.HabitID)
	assert.Zero(t, in.CurrentStreak)
	assert.Equal(t, MomentumStable, in.Momentum)

	perf, err := svc.GetPerformance(context.Background(), id, today)
	require.NoError(t, err)
	assert.Zero(t, perf.CompletionRate)
}

func TestGetPerformanceLoadsTrailingWindow(t *testing.T) {
	created := today.AddDays(-90)
	// completions long before the window must not count
	h := daily(created, append(span(created, 0, 40), span(today, -9, 0)...)...)
	store := newFakeHabits(h)
	svc := NewService(store, nil, Options{WindowDays: 30}, nil)

	perf, err := svc.GetPerformance(context.Background(), h.ID, today)
	require.NoError(t, err)

	require.Len(t, store.windows, 1)
	assert.Equal(t, habits.Window(today, 30), store.windows[0])
	assert.InDelta(t, 10.0/30*100, perf.CompletionRate, 0.001)
	assert.Equal(t, ComputePerformance(h, today, 30), *perf)
}

func TestServicePropagatesStoreErrors(t *testing.T) {
	store := newFakeHabits()
	store.err = errors.New("connection refused")
	svc := NewService(store, nil, Options{}, nil)

	_, err := svc.GetInsights(context.Background(), uuid.New(), today)
	assert.ErrorIs(t, err, store.err)

	_, err = svc.GetPeriodStats(context.Background(), uuid.New(), PeriodWeek, today)
	assert.ErrorIs(t, err, store.err)
}

func TestGetUserInsights(t *testing.T) {
	user := uuid.New()
	var hs []*habits.Habit
	for i := 0; i < 12; i++ {
		h := daily(today.AddDays(-20), span(today, -i, 0)...)
		h.UserID = user
		hs = append(hs, h)
	}
	other := daily(today.AddDays(-5), today)
	svc := NewService(newFakeHabits(append(hs, other)...), nil, Options{Concurrency: 3}, nil)

	out, err := svc.GetUserInsights(context.Background(), user, today)
	require.NoError(t, err)
	require.Len(t, out, 12)

	streaks := make(map[uuid.UUID]int)
	for _, in := range out {
		streaks[in.HabitID] = in.CurrentStreak
	}
	for i, h := range hs {
		assert.Equal(t, i+1, streaks[h.ID])
	}
}

func TestGetPeriodStats(t *testing.T) {
	user := uuid.New()
	hs := periodHabits()
	var ptrs []*habits.Habit
	for i := range hs {
		hs[i].UserID = user
		ptrs = append(ptrs, &hs[i])
	}
	svc := NewService(newFakeHabits(ptrs...), nil, Options{}, nil)

	stats, err := svc.GetPeriodStats(context.Background(), user, PeriodWeek, today)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.TotalHabits)
	assert.Equal(t, 3, stats.PerfectDays)
}

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/habits"
	"github.com/Noxter68/habit-tracking-sub001/internal/domain/progression"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticLister struct {
	refs []habits.HabitRef
	err  error
}

func (l *staticLister) ListActive(ctx context.Context) ([]habits.HabitRef, error) {
	return l.refs, l.err
}

type countingRefresher struct {
	mu      sync.Mutex
	calls   map[uuid.UUID]habits.Day
	failFor uuid.UUID
	ran     chan struct{}
}

func newCountingRefresher() *countingRefresher {
	return &countingRefresher{
		calls: make(map[uuid.UUID]habits.Day),
		ran:   make(chan struct{}, 64),
	}
}

func (r *countingRefresher) Refresh(ctx context.Context, habitID, userID uuid.UUID, today habits.Day) (*progression.RefreshResult, error) {
	r.mu.Lock()
	r.calls[habitID] = today
	r.mu.Unlock()
	defer func() { r.ran <- struct{}{} }()

	if habitID == r.failFor {
		return nil, errors.New("refresh failed")
	}
	return &progression.RefreshResult{
		HabitID:     habitID,
		UserID:      userID,
		TierChanged: true,
		Unlock:      progression.UnlockResult{Unlocked: true},
	}, nil
}

func (r *countingRefresher) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.calls)
}

func refs(n int) []habits.HabitRef {
	out := make([]habits.HabitRef, n)
	for i := range out {
		out[i] = habits.HabitRef{ID: uuid.New(), UserID: uuid.New()}
	}
	return out
}

func TestRunOnce(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	require.NoError(t, err)

	list := &staticLister{refs: refs(20)}
	refresher := newCountingRefresher()
	refresher.failFor = list.refs[3].ID

	s := NewScheduler(list, refresher, Options{
		Location:    berlin,
		Concurrency: 3,
		// 23:30 UTC is already the next day in Berlin
		Now: func() time.Time { return time.Date(2024, 3, 19, 23, 30, 0, 0, time.UTC) },
	}, nil)

	summary, err := s.RunOnce(context.Background())
	require.NoError(t, err)

	assert.Equal(t, habits.MustParseDay("2024-03-20"), summary.Today)
	assert.Equal(t, 20, summary.Total)
	assert.Equal(t, 19, summary.Refreshed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 19, summary.TierChanges)
	assert.Equal(t, 19, summary.Unlocked)
	assert.Equal(t, 20, refresher.count())
	for _, day := range refresher.calls {
		assert.Equal(t, summary.Today, day)
	}
}

func TestRunOnceListError(t *testing.T) {
	list := &staticLister{err: errors.New("db down")}
	s := NewScheduler(list, newCountingRefresher(), Options{}, nil)

	_, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, list.err)
}

func TestRunOnceCancelled(t *testing.T) {
	list := &staticLister{refs: refs(5)}
	refresher := newCountingRefresher()
	s := NewScheduler(list, refresher, Options{Concurrency: 1}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.RunOnce(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, refresher.count())
}

func TestStartAndStop(t *testing.T) {
	list := &staticLister{refs: refs(2)}
	refresher := newCountingRefresher()
	fire := make(chan time.Time)

	s := NewScheduler(list, refresher, Options{
		RunOnStart: true,
		After:      func(time.Duration) <-chan time.Time { return fire },
	}, nil)
	s.Start(context.Background())
	s.Start(context.Background())

	waitRuns(t, refresher, 2)

	fire <- time.Now()
	waitRuns(t, refresher, 2)

	s.Stop()
	s.Stop()
}

func TestStopOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewScheduler(&staticLister{}, newCountingRefresher(), Options{
		After: func(time.Duration) <-chan time.Time { return nil },
	}, nil)

	s.Start(ctx)
	cancel()
	s.Stop()
}

func waitRuns(t *testing.T, r *countingRefresher, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.ran:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for refresh %d of %d", i+1, n)
		}
	}
}

func TestNextRun(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	tests := []struct {
		name string
		now  time.Time
		hour int
		loc  *time.Location
		want time.Time
	}{
		{
			name: "Later today",
			now:  time.Date(2024, 3, 20, 1, 0, 0, 0, time.UTC),
			hour: 3,
			loc:  time.UTC,
			want: time.Date(2024, 3, 20, 3, 0, 0, 0, time.UTC),
		},
		{
			name: "Exactly on the hour rolls to tomorrow",
			now:  time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
			hour: 0,
			loc:  time.UTC,
			want: time.Date(2024, 3, 21, 0, 0, 0, 0, time.UTC),
		},
		{
			name: "Other zone",
			now:  time.Date(2024, 3, 20, 3, 0, 0, 0, time.UTC), // 23:00 on the 19th in New York
			hour: 0,
			loc:  ny,
			want: time.Date(2024, 3, 20, 0, 0, 0, 0, ny),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NextRun(tt.now, tt.hour, tt.loc)
			assert.True(t, tt.want.Equal(got), "got %s, want %s", got, tt.want)
		})
	}
}

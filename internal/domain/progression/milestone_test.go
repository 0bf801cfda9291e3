package progression

import (
	"context"
	"testing"

	"github.com/Noxter68/habit-tracking-sub001/pkg/config"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCatalog() []Milestone {
	return []Milestone{
		{Days: 7, Title: "Week Warrior", XPReward: 50, Tier: "Crystal"},
		{Days: 21, Title: "Habit Former", XPReward: 150, Tier: "Crystal"},
		{Days: 50, Title: "Ruby Ascension", XPReward: 300, Tier: "Ruby"},
	}
}

func TestDetectUnlock(t *testing.T) {
	catalog := testCatalog()

	t.Run("Exact match", func(t *testing.T) {
		m, ok := DetectUnlock(catalog, 7, nil)
		require.True(t, ok)
		assert.Equal(t, "Week Warrior", m.Title)
	})

	t.Run("Already unlocked", func(t *testing.T) {
		_, ok := DetectUnlock(catalog, 7, []string{"Week Warrior"})
		assert.False(t, ok)
	})

	t.Run("Between thresholds", func(t *testing.T) {
		_, ok := DetectUnlock(catalog, 10, nil)
		assert.False(t, ok)
	})

	t.Run("Skipped threshold is never granted", func(t *testing.T) {
		var unlocked []string
		for _, streak := range []int{5, 6, 8, 9} {
			if m, ok := DetectUnlock(catalog, streak, unlocked); ok {
				unlocked = append(unlocked, m.Title)
			}
		}
		assert.Empty(t, unlocked)

		status := GetMilestoneStatus(catalog, 9, unlocked)
		assert.Equal(t, "Week Warrior", status.Unlocked[0].Title, "status still lists it as reached")
	})

	t.Run("Empty catalog", func(t *testing.T) {
		_, ok := DetectUnlock(nil, 7, nil)
		assert.False(t, ok)
	})
}

func TestGetMilestoneStatus(t *testing.T) {
	catalog := testCatalog()

	t.Run("Fresh habit", func(t *testing.T) {
		status := GetMilestoneStatus(catalog, 0, nil)
		assert.Empty(t, status.Unlocked)
		assert.Len(t, status.Upcoming, 3)
		require.NotNil(t, status.Next)
		assert.Equal(t, 7, status.Next.Days)
	})

	t.Run("Unlocked title or reached threshold", func(t *testing.T) {
		// Ruby Ascension was unlocked during an earlier, longer streak
		status := GetMilestoneStatus(catalog, 8, []string{"Ruby Ascension"})

		var titles []string
		for _, m := range status.Unlocked {
			titles = append(titles, m.Title)
		}
		assert.Equal(t, []string{"Week Warrior", "Ruby Ascension"}, titles)
		require.Len(t, status.Upcoming, 1)
		assert.Equal(t, "Habit Former", status.Next.Title)
	})

	t.Run("Everything unlocked", func(t *testing.T) {
		status := GetMilestoneStatus(catalog, 60, nil)
		assert.Len(t, status.Unlocked, 3)
		assert.Empty(t, status.Upcoming)
		assert.Nil(t, status.Next)
	})
}

func TestValidateCatalog(t *testing.T) {
	sorted, err := ValidateCatalog([]Milestone{
		{Days: 30, Title: "Monthly Master"},
		{Days: 7, Title: "Week Warrior"},
	})
	require.NoError(t, err)
	assert.Equal(t, 7, sorted[0].Days)

	tests := []struct {
		name string
		ms   []Milestone
	}{
		{"Duplicate title", []Milestone{{Days: 7, Title: "A"}, {Days: 14, Title: "A"}}},
		{"Missing title", []Milestone{{Days: 7}}},
		{"Zero days", []Milestone{{Days: 0, Title: "A"}}},
		{"Negative reward", []Milestone{{Days: 7, Title: "A", XPReward: -1}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateCatalog(tt.ms)
			assert.ErrorIs(t, err, ErrInvalidCatalog)
		})
	}

	_, err = ValidateCatalog(DefaultMilestones())
	assert.NoError(t, err)
}

func TestStaticCatalog(t *testing.T) {
	c, err := CatalogFromConfig([]config.MilestoneConfig{
		{Days: 14, Title: "Two Weeks", XPReward: 80, Tier: "Crystal"},
		{Days: 3, Title: "Warm Up", XPReward: 10, Tier: "Crystal"},
	})
	require.NoError(t, err)

	got, err := c.ListMilestones(context.Background())
	require.NoError(t, err)
	want := []Milestone{
		{Days: 3, Title: "Warm Up", XPReward: 10, Tier: "Crystal"},
		{Days: 14, Title: "Two Weeks", XPReward: 80, Tier: "Crystal"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("ListMilestones mismatch (-want +got):\n%s", diff)
	}

	got[0].Title = "changed"
	again, _ := c.ListMilestones(context.Background())
	assert.Equal(t, "Warm Up", again[0].Title)

	def, err := CatalogFromConfig(nil)
	require.NoError(t, err)
	all, _ := def.ListMilestones(context.Background())
	assert.Len(t, all, len(DefaultMilestones()))
}

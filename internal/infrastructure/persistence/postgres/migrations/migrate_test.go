package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type tabler interface {
	TableName() string
}

func TestModels(t *testing.T) {
	var names []string
	for _, m := range Models() {
		tm, ok := m.(tabler)
		require.True(t, ok, "%T has no table name", m)
		names = append(names, tm.TableName())
	}

	assert.Equal(t, []string{
		"habits",
		"habit_daily_tasks",
		"habit_completion_logs",
		"habit_streak_history",
		"milestones",
		"habit_progressions",
		"xp_transactions",
	}, names)
}

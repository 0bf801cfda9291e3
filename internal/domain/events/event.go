package events

import (
	"time"

	"github.com/google/uuid"
)

// Progression event types
const (
	EventTypeTierChanged       = "tier_changed"
	EventTypeMilestoneUnlocked = "milestone_unlocked"
	EventTypeStreakBroken      = "streak_broken"
	EventTypeInsightsRefreshed = "insights_refreshed"
)

// ProgressionEvent tells the presentation layer that a habit's derived state
// changed and cached views of it are stale.
type ProgressionEvent struct {
	EventType string      `json:"event_type"`
	UserID    uuid.UUID   `json:"user_id"`
	HabitID   uuid.UUID   `json:"habit_id"`
	Timestamp time.Time   `json:"timestamp"`
	Details   interface{} `json:"details,omitempty"`
}

type TierChangedDetails struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Streak int    `json:"streak"`
}

type MilestoneUnlockedDetails struct {
	Title    string `json:"title"`
	Days     int    `json:"days"`
	XPReward int    `json:"xp_reward"`
}

type StreakBrokenDetails struct {
	PreviousStreak int `json:"previous_streak"`
}

package progression

import (
	"encoding/json"
	"time"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/analytics"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// HabitProgression is the reward state of one habit for one user
type HabitProgression struct {
	ID                 uuid.UUID      `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	HabitID            uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_progression_habit_user,priority:1" json:"habit_id"`
	UserID             uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_progression_habit_user,priority:2;index" json:"user_id"`
	CurrentTier        string         `gorm:"size:64;not null" json:"current_tier"`
	HabitXP            int            `gorm:"not null;default:0" json:"habit_xp"`
	MilestonesUnlocked pq.StringArray `gorm:"type:text[];not null;default:'{}'" json:"milestones_unlocked"`
	LastMilestoneDate  *time.Time     `gorm:"default:null" json:"last_milestone_date,omitempty"`
	PerformanceMetrics datatypes.JSON `gorm:"type:jsonb" json:"performance_metrics"`
	CreatedAt          time.Time      `gorm:"not null;default:current_timestamp" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"not null;default:current_timestamp;autoUpdateTime" json:"updated_at"`
}

// TableName specifies the table name for the HabitProgression model
func (HabitProgression) TableName() string {
	return "habit_progressions"
}

// BeforeCreate is called before creating a new progression record
func (p *HabitProgression) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.MilestonesUnlocked == nil {
		p.MilestonesUnlocked = pq.StringArray{}
	}
	return nil
}

// Metrics decodes the stored performance snapshot. A missing or unreadable
// snapshot yields the zero value.
func (p *HabitProgression) Metrics() analytics.PerformanceMetrics {
	var m analytics.PerformanceMetrics
	if len(p.PerformanceMetrics) == 0 {
		return m
	}
	if err := json.Unmarshal(p.PerformanceMetrics, &m); err != nil {
		return analytics.PerformanceMetrics{}
	}
	return m
}

func (p *HabitProgression) HasMilestone(title string) bool {
	for _, t := range p.MilestonesUnlocked {
		if t == title {
			return true
		}
	}
	return false
}

// ProgressionPatch holds the routine fields refreshed after a completion.
// Nil fields are left unchanged.
type ProgressionPatch struct {
	CurrentTier        *string
	PerformanceMetrics *analytics.PerformanceMetrics
}

func (p ProgressionPatch) IsEmpty() bool {
	return p.CurrentTier == nil && p.PerformanceMetrics == nil
}

func (p ProgressionPatch) updates() (map[string]interface{}, error) {
	out := make(map[string]interface{}, 2)
	if p.CurrentTier != nil {
		out["current_tier"] = *p.CurrentTier
	}
	if p.PerformanceMetrics != nil {
		raw, err := json.Marshal(p.PerformanceMetrics)
		if err != nil {
			return nil, err
		}
		out["performance_metrics"] = datatypes.JSON(raw)
	}
	return out, nil
}

// Status is the read model combining tier, milestones and the stored snapshot.
type Status struct {
	HabitID       uuid.UUID                    `json:"habit_id"`
	UserID        uuid.UUID                    `json:"user_id"`
	CurrentStreak int                          `json:"current_streak"`
	Tier          TierProgress                 `json:"tier"`
	NextTier      *Tier                        `json:"next_tier,omitempty"`
	HabitXP       int                          `json:"habit_xp"`
	Milestones    MilestoneStatus              `json:"milestones"`
	LastMilestone *time.Time                   `json:"last_milestone_date,omitempty"`
	Performance   analytics.PerformanceMetrics `json:"performance"`
	XPMultiplier  float64                      `json:"xp_multiplier"`
	PastStreaks   []PastStreak                 `json:"past_streaks,omitempty"`
}

// PastStreak is a run that has ended, most recent first in Status.
type PastStreak struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Length int    `json:"length"`
}

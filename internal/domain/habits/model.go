package habits

import (
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// Frequency is how often a habit is expected to be performed.
type Frequency string

const (
	FrequencyDaily  Frequency = "daily"
	FrequencyWeekly Frequency = "weekly"
	FrequencyCustom Frequency = "custom"
)

// DayRecord is the per-task completion state of one calendar day.
type DayRecord struct {
	CompletedTasks []string `json:"completed_tasks"`
	AllCompleted   bool     `json:"all_completed"`
}

// DailyTasks maps a calendar day to its completion record. Keys serialize as YYYY-MM-DD.
type DailyTasks map[Day]DayRecord

// Dates returns the recorded days in ascending order.
func (dt DailyTasks) Dates() []Day {
	out := make([]Day, 0, len(dt))
	for d := range dt {
		out = append(out, d)
	}
	sortDays(out)
	return out
}

// DaySet is a set of calendar days.
type DaySet map[Day]struct{}

func NewDaySet(days ...Day) DaySet {
	s := make(DaySet, len(days))
	for _, d := range days {
		s[d] = struct{}{}
	}
	return s
}

func (s DaySet) Has(d Day) bool {
	_, ok := s[d]
	return ok
}

func (s DaySet) Add(d Day) { s[d] = struct{}{} }

// Sorted returns the members in ascending order.
func (s DaySet) Sorted() []Day {
	out := make([]Day, 0, len(s))
	for d := range s {
		out = append(out, d)
	}
	sortDays(out)
	return out
}

// WeekdaySet is a bitmask of weekdays, bit i set for time.Weekday(i).
type WeekdaySet uint8

var weekdayCodes = map[string]time.Weekday{
	"sun": time.Sunday, "sunday": time.Sunday,
	"mon": time.Monday, "monday": time.Monday,
	"tue": time.Tuesday, "tuesday": time.Tuesday,
	"wed": time.Wednesday, "wednesday": time.Wednesday,
	"thu": time.Thursday, "thursday": time.Thursday,
	"fri": time.Friday, "friday": time.Friday,
	"sat": time.Saturday, "saturday": time.Saturday,
}

// ParseWeekdays converts weekday codes ("mon", "Tuesday", ...) into a set.
// Unknown codes are returned separately and otherwise ignored.
func ParseWeekdays(codes []string) (WeekdaySet, []string) {
	var set WeekdaySet
	var unknown []string
	for _, c := range codes {
		wd, ok := weekdayCodes[strings.ToLower(strings.TrimSpace(c))]
		if !ok {
			unknown = append(unknown, c)
			continue
		}
		set = set.With(wd)
	}
	return set, unknown
}

func WeekdaysOf(days ...time.Weekday) WeekdaySet {
	var set WeekdaySet
	for _, d := range days {
		set = set.With(d)
	}
	return set
}

func (s WeekdaySet) With(d time.Weekday) WeekdaySet { return s | 1<<uint(d) }
func (s WeekdaySet) Has(d time.Weekday) bool        { return s&(1<<uint(d)) != 0 }
func (s WeekdaySet) IsEmpty() bool                  { return s == 0 }

// Codes returns the three-letter codes in Sunday-first order.
func (s WeekdaySet) Codes() []string {
	var out []string
	for d := time.Sunday; d <= time.Saturday; d++ {
		if s.Has(d) {
			out = append(out, strings.ToLower(d.String()[:3]))
		}
	}
	return out
}

// Habit is the engine's snapshot of a trackable routine and its completion history.
type Habit struct {
	ID            uuid.UUID  `json:"id"`
	UserID        uuid.UUID  `json:"user_id"`
	Title         string     `json:"title"`
	Frequency     Frequency  `json:"frequency"`
	CustomDays    WeekdaySet `json:"custom_days"`
	Tasks         []string   `json:"tasks"`
	DailyTasks    DailyTasks `json:"daily_tasks"`
	CompletedDays DaySet     `json:"-"`
	CurrentStreak int        `json:"current_streak"`
	BestStreak    int        `json:"best_streak"`
	CreatedAt     Day        `json:"created_at"`
}

// HabitRef identifies a habit and its owner.
type HabitRef struct {
	ID     uuid.UUID
	UserID uuid.UUID
}

// CompletionRow is one stored completion for a day: a sub-task row, or with
// Logged set, a whole-habit completion log entry.
type CompletionRow struct {
	Date           Day
	CompletedTasks []string
	AllCompleted   bool
	Logged         bool
}

// ApplyRows merges completion rows into DailyTasks and CompletedDays.
func (h *Habit) ApplyRows(rows []CompletionRow) {
	if h.DailyTasks == nil {
		h.DailyTasks = make(DailyTasks, len(rows))
	}
	if h.CompletedDays == nil {
		h.CompletedDays = make(DaySet)
	}
	for _, r := range rows {
		if r.Logged {
			h.CompletedDays.Add(r.Date)
			continue
		}
		h.DailyTasks[r.Date] = DayRecord{CompletedTasks: r.CompletedTasks, AllCompleted: r.AllCompleted}
	}
}

// FirstRecordedDay is the earliest day with any completion data, or the zero Day.
func (h *Habit) FirstRecordedDay() Day {
	var first Day
	for d := range h.DailyTasks {
		first = MinDay(first, d)
	}
	for d := range h.CompletedDays {
		first = MinDay(first, d)
	}
	return first
}

// ActiveSince is the first day that can count for the habit: CreatedAt, or
// the first recorded day when the creation date is unknown.
func (h *Habit) ActiveSince() Day {
	if !h.CreatedAt.IsZero() {
		return h.CreatedAt
	}
	return h.FirstRecordedDay()
}

func sortDays(days []Day) {
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })
}

// HabitRecord is the persisted habit row.
type HabitRecord struct {
	ID                uuid.UUID      `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID            uuid.UUID      `gorm:"type:uuid;not null;index"`
	Title             string         `gorm:"size:255;not null"`
	Description       string         `gorm:"type:text"`
	Frequency         string         `gorm:"size:16;not null;default:daily"`
	CustomDays        pq.StringArray `gorm:"type:text[]"`
	Tasks             pq.StringArray `gorm:"type:text[]"`
	StartDay          time.Time      `gorm:"not null;default:current_timestamp"`
	CurrentStreak     int            `gorm:"default:0;not null"`
	LongestStreak     int            `gorm:"default:0;not null"`
	LastCompletedDate *time.Time     `gorm:"default:null"`
	IsArchived        bool           `gorm:"default:false;not null"`
	CreatedAt         time.Time      `gorm:"not null;default:current_timestamp"`
	UpdatedAt         time.Time      `gorm:"not null;default:current_timestamp;autoUpdateTime"`
}

// TableName specifies the table name for the HabitRecord model
func (HabitRecord) TableName() string {
	return "habits"
}

// BeforeCreate is called before creating a new habit record
func (h *HabitRecord) BeforeCreate(tx *gorm.DB) error {
	if h.ID == uuid.Nil {
		h.ID = uuid.New()
	}
	return nil
}

// DailyTaskRecord stores which sub-tasks of a habit were done on a given day
type DailyTaskRecord struct {
	ID             uuid.UUID      `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	HabitID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:idx_daily_task_habit_date,priority:1"`
	Date           time.Time      `gorm:"type:date;not null;uniqueIndex:idx_daily_task_habit_date,priority:2"`
	CompletedTasks pq.StringArray `gorm:"type:text[]"`
	AllCompleted   bool           `gorm:"default:false;not null"`
	UpdatedAt      time.Time      `gorm:"not null;default:current_timestamp;autoUpdateTime"`
}

// TableName specifies the table name for the DailyTaskRecord model
func (DailyTaskRecord) TableName() string {
	return "habit_daily_tasks"
}

// HabitCompletionLog records a whole-habit completion for habits without sub-tasks
type HabitCompletionLog struct {
	ID        uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	HabitID   uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_habit_completion,priority:1"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_habit_completion,priority:2"`
	Date      time.Time `gorm:"type:date;not null;uniqueIndex:idx_habit_completion,priority:3"`
	CreatedAt time.Time `gorm:"not null;default:current_timestamp"`
}

// TableName specifies the table name for the HabitCompletionLog model
func (HabitCompletionLog) TableName() string {
	return "habit_completion_logs"
}

// StreakHistory represents a historical record of a habit streak
type StreakHistory struct {
	ID           uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	HabitID      uuid.UUID `gorm:"type:uuid;not null;index"`
	StartDate    time.Time `gorm:"type:date;not null"`
	EndDate      time.Time `gorm:"type:date;not null"`
	StreakLength int       `gorm:"not null"`
	CreatedAt    time.Time `gorm:"not null;default:current_timestamp"`
}

// TableName specifies the table name for the StreakHistory model
func (StreakHistory) TableName() string {
	return "habit_streak_history"
}

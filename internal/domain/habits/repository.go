package habits

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Noxter68/habit-tracking-sub001/internal/infrastructure/persistence/postgres/connection"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrHabitNotFound = errors.New("habit not found")
	ErrInvalidInput  = errors.New("invalid input")
)

// Repository is the read side of the habit store plus the cached streak columns.
type Repository interface {
	// GetHabit loads the habit with its whole completion history.
	GetHabit(ctx context.Context, id uuid.UUID) (*Habit, error)
	// GetHabitInfo loads the habit without completion history.
	GetHabitInfo(ctx context.Context, id uuid.UUID) (*Habit, error)
	GetCompletionRows(ctx context.Context, habitID uuid.UUID, r DayRange) ([]CompletionRow, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]Habit, error)
	ListActiveIDs(ctx context.Context) ([]HabitRef, error)
	UpdateStreakCache(ctx context.Context, habitID uuid.UUID, current, best int, lastCompleted Day) error
	LogStreakHistory(ctx context.Context, habitID uuid.UUID, streakLength int, start, end Day) error
	GetStreakHistory(ctx context.Context, habitID uuid.UUID) ([]StreakHistory, error)

	// Completion logging for habits without sub-tasks
	LogCompletion(ctx context.Context, habitID, userID uuid.UUID, day Day) error
	RemoveCompletion(ctx context.Context, habitID, userID uuid.UUID, day Day) error
}

type repository struct {
	db  *connection.Database
	loc *time.Location
}

// NewRepository returns the postgres-backed repository. loc is the zone used to
// turn the habit start timestamp into a calendar day.
func NewRepository(db *connection.Database, loc *time.Location) Repository {
	if loc == nil {
		loc = time.UTC
	}
	return &repository{db: db, loc: loc}
}

func (r *repository) getRecord(ctx context.Context, id uuid.UUID) (*HabitRecord, error) {
	var rec HabitRecord
	result := r.db.Conn(ctx).First(&rec, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrHabitNotFound
		}
		return nil, result.Error
	}
	return &rec, nil
}

func (r *repository) GetHabit(ctx context.Context, id uuid.UUID) (*Habit, error) {
	rec, err := r.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	loaded, err := r.load(ctx, []HabitRecord{*rec})
	if err != nil {
		return nil, err
	}
	return &loaded[0], nil
}

func (r *repository) GetHabitInfo(ctx context.Context, id uuid.UUID) (*Habit, error) {
	rec, err := r.getRecord(ctx, id)
	if err != nil {
		return nil, err
	}
	h := r.toDomain(*rec)
	return &h, nil
}

// GetCompletionRows returns the sub-task rows and completion log entries of a
// habit inside rng. A zero bound leaves that side open.
func (r *repository) GetCompletionRows(ctx context.Context, habitID uuid.UUID, rng DayRange) ([]CompletionRow, error) {
	inRange := func(q *gorm.DB) *gorm.DB {
		q = q.Where("habit_id = ?", habitID)
		if !rng.Start.IsZero() {
			q = q.Where("date >= ?", rng.Start.Time())
		}
		if !rng.End.IsZero() {
			q = q.Where("date <= ?", rng.End.Time())
		}
		return q.Order("date ASC")
	}

	var recs []DailyTaskRecord
	if err := inRange(r.db.Conn(ctx).Model(&DailyTaskRecord{})).Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("load completion rows: %w", err)
	}
	var logs []HabitCompletionLog
	if err := inRange(r.db.Conn(ctx).Model(&HabitCompletionLog{})).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("load completion logs: %w", err)
	}

	rows := make([]CompletionRow, 0, len(recs)+len(logs))
	for _, rec := range recs {
		rows = append(rows, CompletionRow{
			Date:           DayOf(rec.Date, nil),
			CompletedTasks: []string(rec.CompletedTasks),
			AllCompleted:   rec.AllCompleted,
		})
	}
	for _, l := range logs {
		rows = append(rows, CompletionRow{Date: DayOf(l.Date, nil), Logged: true})
	}
	return rows, nil
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]Habit, error) {
	var recs []HabitRecord
	err := r.db.Conn(ctx).
		Where("user_id = ? AND is_archived = ?", userID, false).
		Order("created_at ASC").
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list habits: %w", err)
	}
	if len(recs) == 0 {
		return nil, nil
	}
	return r.load(ctx, recs)
}

func (r *repository) ListActiveIDs(ctx context.Context) ([]HabitRef, error) {
	var refs []HabitRef
	err := r.db.Conn(ctx).Model(&HabitRecord{}).
		Select("id, user_id").
		Where("is_archived = ?", false).
		Order("id").
		Scan(&refs).Error
	return refs, err
}

func (r *repository) UpdateStreakCache(ctx context.Context, habitID uuid.UUID, current, best int, lastCompleted Day) error {
	updates := map[string]interface{}{
		"current_streak": current,
		"longest_streak": gorm.Expr("GREATEST(longest_streak, ?)", best),
	}
	if !lastCompleted.IsZero() {
		updates["last_completed_date"] = lastCompleted.Time()
	}

	result := r.db.Conn(ctx).Model(&HabitRecord{}).
		Where("id = ?", habitID).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrHabitNotFound
	}
	return nil
}

func (r *repository) LogStreakHistory(ctx context.Context, habitID uuid.UUID, streakLength int, start, end Day) error {
	if streakLength <= 0 || start.IsZero() || end.IsZero() {
		return ErrInvalidInput
	}

	// A run is logged once; the nightly refresh and a completion event may both see it end
	var existing int64
	if err := r.db.Conn(ctx).Model(&StreakHistory{}).
		Where("habit_id = ? AND end_date = ?", habitID, end.Time()).
		Count(&existing).Error; err != nil {
		return err
	}
	if existing > 0 {
		return nil
	}

	history := StreakHistory{
		ID:           uuid.New(),
		HabitID:      habitID,
		StartDate:    start.Time(),
		EndDate:      end.Time(),
		StreakLength: streakLength,
		CreatedAt:    time.Now(),
	}
	return r.db.Conn(ctx).Create(&history).Error
}

func (r *repository) GetStreakHistory(ctx context.Context, habitID uuid.UUID) ([]StreakHistory, error) {
	var history []StreakHistory
	err := r.db.Conn(ctx).
		Where("habit_id = ?", habitID).
		Order("end_date DESC").
		Find(&history).Error
	return history, err
}

func (r *repository) LogCompletion(ctx context.Context, habitID, userID uuid.UUID, day Day) error {
	if day.IsZero() {
		return ErrInvalidInput
	}
	log := HabitCompletionLog{
		ID:        uuid.New(),
		HabitID:   habitID,
		UserID:    userID,
		Date:      day.Time(),
		CreatedAt: time.Now(),
	}
	return r.db.Conn(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&log).Error
}

func (r *repository) RemoveCompletion(ctx context.Context, habitID, userID uuid.UUID, day Day) error {
	if day.IsZero() {
		return ErrInvalidInput
	}
	return r.db.Conn(ctx).
		Where("habit_id = ? AND user_id = ? AND date = ?", habitID, userID, day.Time()).
		Delete(&HabitCompletionLog{}).Error
}

// load converts records into domain habits with their daily rows and
// completion logs attached, using one query per table.
func (r *repository) load(ctx context.Context, recs []HabitRecord) ([]Habit, error) {
	ids := make([]uuid.UUID, 0, len(recs))
	byID := make(map[uuid.UUID]int, len(recs))
	out := make([]Habit, len(recs))
	for i, rec := range recs {
		ids = append(ids, rec.ID)
		byID[rec.ID] = i
		out[i] = r.toDomain(rec)
	}

	var rows []DailyTaskRecord
	if err := r.db.Conn(ctx).Where("habit_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load daily tasks: %w", err)
	}
	for _, row := range rows {
		out[byID[row.HabitID]].ApplyRows([]CompletionRow{{
			Date:           DayOf(row.Date, nil),
			CompletedTasks: []string(row.CompletedTasks),
			AllCompleted:   row.AllCompleted,
		}})
	}

	var logs []HabitCompletionLog
	if err := r.db.Conn(ctx).Where("habit_id IN ?", ids).Find(&logs).Error; err != nil {
		return nil, fmt.Errorf("load completion logs: %w", err)
	}
	for _, l := range logs {
		out[byID[l.HabitID]].ApplyRows([]CompletionRow{{Date: DayOf(l.Date, nil), Logged: true}})
	}

	return out, nil
}

func (r *repository) toDomain(rec HabitRecord) Habit {
	custom, _ := ParseWeekdays(rec.CustomDays)
	return Habit{
		ID:            rec.ID,
		UserID:        rec.UserID,
		Title:         rec.Title,
		Frequency:     Frequency(rec.Frequency),
		CustomDays:    custom,
		Tasks:         []string(rec.Tasks),
		DailyTasks:    make(DailyTasks),
		CompletedDays: make(DaySet),
		CurrentStreak: rec.CurrentStreak,
		BestStreak:    rec.LongestStreak,
		CreatedAt:     DayOf(rec.StartDay, r.loc),
	}
}

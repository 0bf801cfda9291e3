package progression

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Noxter68/habit-tracking-sub001/internal/infrastructure/persistence/postgres/connection"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrProgressionNotFound = errors.New("progression not found")

type Repository interface {
	Get(ctx context.Context, habitID, userID uuid.UUID) (*HabitProgression, error)
	// GetOrCreate returns the progression of a habit/user pair, creating it
	// with initialTier when it does not exist yet.
	GetOrCreate(ctx context.Context, habitID, userID uuid.UUID, initialTier string) (*HabitProgression, error)
	Update(ctx context.Context, id uuid.UUID, patch ProgressionPatch) error
	// ClaimMilestone appends title to the unlocked set unless it is already
	// there. It reports whether this call added it.
	ClaimMilestone(ctx context.Context, id uuid.UUID, title string, at time.Time) (bool, error)
	// WithTx runs fn in one store transaction carried by the ctx passed to fn.
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type repository struct {
	db *connection.Database
}

func NewRepository(db *connection.Database) Repository {
	return &repository{db: db}
}

func (r *repository) Get(ctx context.Context, habitID, userID uuid.UUID) (*HabitProgression, error) {
	var p HabitProgression
	result := r.db.Conn(ctx).Where("habit_id = ? AND user_id = ?", habitID, userID).First(&p)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrProgressionNotFound
		}
		return nil, result.Error
	}
	return &p, nil
}

func (r *repository) GetOrCreate(ctx context.Context, habitID, userID uuid.UUID, initialTier string) (*HabitProgression, error) {
	p := HabitProgression{
		HabitID:            habitID,
		UserID:             userID,
		CurrentTier:        initialTier,
		MilestonesUnlocked: pq.StringArray{},
	}
	err := r.db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "habit_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(&p).Error
	if err != nil {
		return nil, fmt.Errorf("create progression: %w", err)
	}
	return r.Get(ctx, habitID, userID)
}

func (r *repository) Update(ctx context.Context, id uuid.UUID, patch ProgressionPatch) error {
	if patch.IsEmpty() {
		return nil
	}
	updates, err := patch.updates()
	if err != nil {
		return fmt.Errorf("encode progression patch: %w", err)
	}

	result := r.db.Conn(ctx).Model(&HabitProgression{}).Where("id = ?", id).Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrProgressionNotFound
	}
	return nil
}

func (r *repository) ClaimMilestone(ctx context.Context, id uuid.UUID, title string, at time.Time) (bool, error) {
	result := r.db.Conn(ctx).Model(&HabitProgression{}).
		Where("id = ? AND NOT (? = ANY(milestones_unlocked))", id, title).
		Updates(map[string]interface{}{
			"milestones_unlocked": gorm.Expr("array_append(milestones_unlocked, ?)", title),
			"last_milestone_date": at,
		})
	if result.Error != nil {
		return false, fmt.Errorf("claim milestone: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.Transaction(ctx, fn)
}

package xp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Noxter68/habit-tracking-sub001/internal/infrastructure/persistence/postgres/connection"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Source types recorded on transactions
const (
	SourceMilestone = "milestone"
	SourceBonus     = "bonus"
)

var ErrXPAwardRejected = errors.New("xp award rejected")

// Award describes one XP grant. SourceType and SourceID together make the
// grant idempotent per user.
type Award struct {
	Amount      int
	SourceType  string
	SourceID    string
	HabitID     *uuid.UUID
	Description string
}

func (a Award) validate() error {
	if a.Amount <= 0 {
		return fmt.Errorf("%w: amount must be positive, got %d", ErrXPAwardRejected, a.Amount)
	}
	if strings.TrimSpace(a.SourceType) == "" || strings.TrimSpace(a.SourceID) == "" {
		return fmt.Errorf("%w: missing source", ErrXPAwardRejected)
	}
	return nil
}

// Ledger awards XP. AwardXP reports false when the award was not applied,
// either because it is invalid or because the same source was already paid.
type Ledger interface {
	AwardXP(ctx context.Context, userID uuid.UUID, award Award) (bool, error)
	TotalXP(ctx context.Context, userID uuid.UUID) (int, error)
}

// XPTransaction is one row of the append-only XP ledger
type XPTransaction struct {
	ID          uuid.UUID  `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;uniqueIndex:idx_xp_source,priority:1"`
	HabitID     *uuid.UUID `gorm:"type:uuid;index"`
	Amount      int        `gorm:"not null"`
	SourceType  string     `gorm:"size:32;not null;uniqueIndex:idx_xp_source,priority:2"`
	SourceID    string     `gorm:"size:255;not null;uniqueIndex:idx_xp_source,priority:3"`
	Description string     `gorm:"type:text"`
	CreatedAt   time.Time  `gorm:"not null;default:current_timestamp"`
}

// TableName specifies the table name for the XPTransaction model
func (XPTransaction) TableName() string {
	return "xp_transactions"
}

// BeforeCreate is called before creating a new transaction
func (t *XPTransaction) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type ledger struct {
	db *connection.Database
}

// NewLedger returns the postgres ledger. Calls join the transaction carried
// in ctx, if any.
func NewLedger(db *connection.Database) Ledger {
	return &ledger{db: db}
}

func (l *ledger) AwardXP(ctx context.Context, userID uuid.UUID, award Award) (bool, error) {
	if err := award.validate(); err != nil {
		return false, nil
	}

	applied := false
	err := l.db.Transaction(ctx, func(ctx context.Context) error {
		tx := l.db.Conn(ctx)
		row := XPTransaction{
			UserID:      userID,
			HabitID:     award.HabitID,
			Amount:      award.Amount,
			SourceType:  award.SourceType,
			SourceID:    award.SourceID,
			Description: award.Description,
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
		if result.Error != nil {
			return fmt.Errorf("insert xp transaction: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return nil
		}

		if award.HabitID != nil {
			if err := tx.Table("habit_progressions").
				Where("habit_id = ? AND user_id = ?", *award.HabitID, userID).
				Update("habit_xp", gorm.Expr("habit_xp + ?", award.Amount)).Error; err != nil {
				return fmt.Errorf("update habit xp: %w", err)
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func (l *ledger) TotalXP(ctx context.Context, userID uuid.UUID) (int, error) {
	var total int
	err := l.db.Conn(ctx).Model(&XPTransaction{}).
		Where("user_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("sum xp: %w", err)
	}
	return total, nil
}

// MemoryLedger is an in-process Ledger for tests and local tooling.
type MemoryLedger struct {
	mu     sync.Mutex
	paid   map[string]struct{}
	totals map[uuid.UUID]int
	// Fail, when set, is returned by every AwardXP call.
	Fail error
	// Reject makes every AwardXP call report a refused award.
	Reject bool
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		paid:   make(map[string]struct{}),
		totals: make(map[uuid.UUID]int),
	}
}

func (m *MemoryLedger) AwardXP(ctx context.Context, userID uuid.UUID, award Award) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Fail != nil {
		return false, m.Fail
	}
	if m.Reject || award.validate() != nil {
		return false, nil
	}
	key := userID.String() + "|" + award.SourceType + "|" + award.SourceID
	if _, ok := m.paid[key]; ok {
		return false, nil
	}
	m.paid[key] = struct{}{}
	m.totals[userID] += award.Amount
	return true, nil
}

func (m *MemoryLedger) TotalXP(ctx context.Context, userID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.totals[userID], nil
}

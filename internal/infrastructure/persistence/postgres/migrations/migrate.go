package migrations

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/habits"
	"github.com/Noxter68/habit-tracking-sub001/internal/domain/progression"
	"github.com/Noxter68/habit-tracking-sub001/internal/domain/xp"
	"github.com/Noxter68/habit-tracking-sub001/internal/infrastructure/persistence/postgres/connection"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// MigrationRecord tracks the migration history
type MigrationRecord struct {
	ID        uint      `gorm:"primaryKey"`
	Name      string    `gorm:"not null;unique"`
	Version   int       `gorm:"not null"`
	AppliedAt time.Time `gorm:"not null"`
}

// TableName specifies the table name for migration records
func (MigrationRecord) TableName() string {
	return "schema_migrations"
}

// Models lists the tables of the engine in migration order.
func Models() []interface{} {
	return []interface{}{
		&habits.HabitRecord{},
		&habits.DailyTaskRecord{},
		&habits.HabitCompletionLog{},
		&habits.StreakHistory{},
		&progression.MilestoneRecord{},
		&progression.HabitProgression{},
		&xp.XPTransaction{},
	}
}

// AutoMigrate runs database migrations for all models and, when seed is not
// empty, upserts the milestone catalog.
func AutoMigrate(ctx context.Context, db *connection.Database, seed []progression.Milestone, logger *zap.Logger) error {
	logger.Info("Starting automatic database migration...")

	// Enable UUID extension for PostgreSQL
	if err := db.Conn(ctx).Exec(`CREATE EXTENSION IF NOT EXISTS "uuid-ossp";`).Error; err != nil {
		logger.Error("Failed to create UUID extension", zap.Error(err))
		return fmt.Errorf("failed to create UUID extension: %w", err)
	}

	// Create migrations table if it doesn't exist
	if err := db.Conn(ctx).AutoMigrate(&MigrationRecord{}); err != nil {
		logger.Error("Failed to create migrations table", zap.Error(err))
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	return db.Transaction(ctx, func(ctx context.Context) error {
		tx := db.Conn(ctx)

		var lastVersion int
		if err := tx.Model(&MigrationRecord{}).Select("COALESCE(MAX(version), 0)").Scan(&lastVersion).Error; err != nil {
			return fmt.Errorf("failed to get last version: %w", err)
		}

		for i, model := range Models() {
			modelName := fmt.Sprintf("%T", model)

			var record MigrationRecord
			err := tx.Where("name = ?", modelName).First(&record).Error
			isNewMigration := errors.Is(err, gorm.ErrRecordNotFound)

			if err := tx.AutoMigrate(model); err != nil {
				logger.Error("Failed to migrate model",
					zap.String("model", modelName),
					zap.Error(err),
				)
				return fmt.Errorf("failed to migrate %s: %w", modelName, err)
			}

			if isNewMigration {
				record = MigrationRecord{
					Name:      modelName,
					Version:   lastVersion + i + 1,
					AppliedAt: time.Now(),
				}
				if err := tx.Create(&record).Error; err != nil {
					logger.Error("Failed to record migration",
						zap.String("model", modelName),
						zap.Error(err),
					)
					return fmt.Errorf("failed to record migration for %s: %w", modelName, err)
				}
				logger.Info("Applied new migration",
					zap.String("model", modelName),
					zap.Int("version", record.Version),
				)
			}
		}

		if len(seed) > 0 {
			if err := progression.SeedMilestones(ctx, db, seed); err != nil {
				return err
			}
			logger.Info("Seeded milestone catalog", zap.Int("milestones", len(seed)))
		}

		logger.Info("Database migration completed successfully")
		return nil
	})
}

// GetMigrationHistory returns the history of applied migrations
func GetMigrationHistory(ctx context.Context, db *connection.Database) ([]MigrationRecord, error) {
	var records []MigrationRecord
	err := db.Conn(ctx).Order("version ASC").Find(&records).Error
	return records, err
}

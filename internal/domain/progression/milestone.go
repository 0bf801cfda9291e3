package progression

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Noxter68/habit-tracking-sub001/internal/infrastructure/persistence/postgres/connection"
	"github.com/Noxter68/habit-tracking-sub001/pkg/config"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrInvalidCatalog = errors.New("invalid milestone catalog")

// Milestone is a one-time reward for reaching an exact streak length.
// Title is unique within a catalog and identifies the unlock.
type Milestone struct {
	Days        int    `json:"days"`
	Title       string `json:"title"`
	XPReward    int    `json:"xp_reward"`
	Tier        string `json:"tier"`
	Description string `json:"description,omitempty"`
}

// MilestoneStatus classifies a catalog against a streak and the unlocked set.
type MilestoneStatus struct {
	Unlocked []Milestone `json:"unlocked"`
	Upcoming []Milestone `json:"upcoming"`
	Next     *Milestone  `json:"next,omitempty"`
}

// Catalog lists milestones in ascending order of Days.
type Catalog interface {
	ListMilestones(ctx context.Context) ([]Milestone, error)
}

func DefaultMilestones() []Milestone {
	return []Milestone{
		{Days: 7, Title: "Week Warrior", XPReward: 50, Tier: "Crystal", Description: "Seven days in a row"},
		{Days: 14, Title: "Fortnight Fighter", XPReward: 100, Tier: "Crystal"},
		{Days: 21, Title: "Habit Former", XPReward: 150, Tier: "Crystal", Description: "Three weeks of showing up"},
		{Days: 30, Title: "Monthly Master", XPReward: 200, Tier: "Crystal"},
		{Days: 50, Title: "Ruby Ascension", XPReward: 300, Tier: "Ruby", Description: "Welcome to the Ruby tier"},
		{Days: 66, Title: "Habit Formed", XPReward: 400, Tier: "Ruby"},
		{Days: 100, Title: "Century Club", XPReward: 600, Tier: "Ruby"},
		{Days: 150, Title: "Amethyst Ascension", XPReward: 800, Tier: "Amethyst", Description: "Welcome to the Amethyst tier"},
		{Days: 365, Title: "Year Legend", XPReward: 2000, Tier: "Amethyst"},
	}
}

// ValidateCatalog checks titles are present and unique and thresholds positive.
// The returned slice is sorted ascending by Days.
func ValidateCatalog(ms []Milestone) ([]Milestone, error) {
	seen := make(map[string]struct{}, len(ms))
	for _, m := range ms {
		if m.Title == "" {
			return nil, fmt.Errorf("%w: milestone at %d days has no title", ErrInvalidCatalog, m.Days)
		}
		if m.Days <= 0 {
			return nil, fmt.Errorf("%w: %q needs a positive day count", ErrInvalidCatalog, m.Title)
		}
		if m.XPReward < 0 {
			return nil, fmt.Errorf("%w: %q has a negative reward", ErrInvalidCatalog, m.Title)
		}
		if _, dup := seen[m.Title]; dup {
			return nil, fmt.Errorf("%w: duplicate title %q", ErrInvalidCatalog, m.Title)
		}
		seen[m.Title] = struct{}{}
	}

	out := make([]Milestone, len(ms))
	copy(out, ms)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Days < out[j].Days })
	return out, nil
}

// DetectUnlock returns the catalog entry whose threshold equals streak and
// whose title is not yet unlocked. Streaks that skip past a threshold never
// match it.
func DetectUnlock(catalog []Milestone, streak int, unlocked []string) (Milestone, bool) {
	have := titleSet(unlocked)
	for _, m := range catalog {
		if m.Days != streak {
			continue
		}
		if _, ok := have[m.Title]; ok {
			continue
		}
		return m, true
	}
	return Milestone{}, false
}

// GetMilestoneStatus splits the catalog into unlocked (title unlocked or
// threshold reached) and upcoming milestones.
func GetMilestoneStatus(catalog []Milestone, streak int, unlocked []string) MilestoneStatus {
	have := titleSet(unlocked)
	status := MilestoneStatus{Unlocked: []Milestone{}, Upcoming: []Milestone{}}
	for _, m := range catalog {
		if _, ok := have[m.Title]; ok || m.Days <= streak {
			status.Unlocked = append(status.Unlocked, m)
			continue
		}
		status.Upcoming = append(status.Upcoming, m)
	}
	sort.SliceStable(status.Upcoming, func(i, j int) bool { return status.Upcoming[i].Days < status.Upcoming[j].Days })
	if len(status.Upcoming) > 0 {
		next := status.Upcoming[0]
		status.Next = &next
	}
	return status
}

func titleSet(titles []string) map[string]struct{} {
	set := make(map[string]struct{}, len(titles))
	for _, t := range titles {
		set[t] = struct{}{}
	}
	return set
}

// StaticCatalog serves a fixed, validated list.
type StaticCatalog struct {
	milestones []Milestone
}

func NewStaticCatalog(ms []Milestone) (*StaticCatalog, error) {
	sorted, err := ValidateCatalog(ms)
	if err != nil {
		return nil, err
	}
	return &StaticCatalog{milestones: sorted}, nil
}

func (c *StaticCatalog) ListMilestones(ctx context.Context) ([]Milestone, error) {
	out := make([]Milestone, len(c.milestones))
	copy(out, c.milestones)
	return out, nil
}

// MilestonesFromConfig converts configured entries, falling back to the
// built-in catalog when none are configured.
func MilestonesFromConfig(cfgs []config.MilestoneConfig) []Milestone {
	if len(cfgs) == 0 {
		return DefaultMilestones()
	}
	out := make([]Milestone, 0, len(cfgs))
	for _, c := range cfgs {
		out = append(out, Milestone{
			Days:        c.Days,
			Title:       c.Title,
			XPReward:    c.XPReward,
			Tier:        c.Tier,
			Description: c.Description,
		})
	}
	return out
}

// CatalogFromConfig builds a static catalog from configuration.
func CatalogFromConfig(cfgs []config.MilestoneConfig) (*StaticCatalog, error) {
	return NewStaticCatalog(MilestonesFromConfig(cfgs))
}

// MilestoneRecord is the persisted catalog row
type MilestoneRecord struct {
	ID          uuid.UUID `gorm:"type:uuid;primary_key;default:uuid_generate_v4()"`
	Title       string    `gorm:"size:255;not null;uniqueIndex"`
	Days        int       `gorm:"not null;index"`
	XPReward    int       `gorm:"not null;default:0"`
	Tier        string    `gorm:"size:64;not null"`
	Description string    `gorm:"type:text"`
	CreatedAt   time.Time `gorm:"not null;default:current_timestamp"`
	UpdatedAt   time.Time `gorm:"not null;default:current_timestamp;autoUpdateTime"`
}

// TableName specifies the table name for the MilestoneRecord model
func (MilestoneRecord) TableName() string {
	return "milestones"
}

// BeforeCreate is called before creating a new milestone record
func (m *MilestoneRecord) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

type dbCatalog struct {
	db *connection.Database
}

// NewDBCatalog reads the catalog from the milestones table.
func NewDBCatalog(db *connection.Database) Catalog {
	return &dbCatalog{db: db}
}

func (c *dbCatalog) ListMilestones(ctx context.Context) ([]Milestone, error) {
	var recs []MilestoneRecord
	if err := c.db.Conn(ctx).Order("days ASC, title ASC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	out := make([]Milestone, 0, len(recs))
	for _, r := range recs {
		out = append(out, Milestone{
			Days:        r.Days,
			Title:       r.Title,
			XPReward:    r.XPReward,
			Tier:        r.Tier,
			Description: r.Description,
		})
	}
	return out, nil
}

// SeedMilestones upserts the given catalog into the milestones table, keyed by title.
func SeedMilestones(ctx context.Context, db *connection.Database, ms []Milestone) error {
	sorted, err := ValidateCatalog(ms)
	if err != nil {
		return err
	}
	if len(sorted) == 0 {
		return nil
	}

	recs := make([]MilestoneRecord, 0, len(sorted))
	for _, m := range sorted {
		recs = append(recs, MilestoneRecord{
			Title:       m.Title,
			Days:        m.Days,
			XPReward:    m.XPReward,
			Tier:        m.Tier,
			Description: m.Description,
		})
	}

	err = db.Conn(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "title"}},
		DoUpdates: clause.AssignmentColumns([]string{"days", "xp_reward", "tier", "description", "updated_at"}),
	}).Create(&recs).Error
	if err != nil {
		return fmt.Errorf("seed milestones: %w", err)
	}
	return nil
}

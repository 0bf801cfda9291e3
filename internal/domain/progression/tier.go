package progression

import (
	"errors"
	"fmt"

	"github.com/Noxter68/habit-tracking-sub001/pkg/config"
)

var ErrInvalidTierTable = errors.New("invalid tier table")

// Tier is one rank of the progression ladder. MaxDays is nil only for the last tier.
type Tier struct {
	Name        string  `json:"name"`
	MinDays     int     `json:"min_days"`
	MaxDays     *int    `json:"max_days,omitempty"`
	Multiplier  float64 `json:"multiplier"`
	Color       string  `json:"color,omitempty"`
	Icon        string  `json:"icon,omitempty"`
	Description string  `json:"description,omitempty"`
}

// Contains reports whether a streak of the given length falls inside the tier.
func (t Tier) Contains(streak int) bool {
	if streak < t.MinDays {
		return false
	}
	return t.MaxDays == nil || streak <= *t.MaxDays
}

// TierProgress is where a streak sits inside its tier.
type TierProgress struct {
	Tier            Tier    `json:"tier"`
	ProgressPercent float64 `json:"progress_percent"`
}

// TierTable is a validated, ordered tier list partitioning [0, inf).
type TierTable struct {
	tiers []Tier
}

func intPtr(n int) *int { return &n }

// DefaultTiers is the built-in ladder.
func DefaultTiers() []Tier {
	return []Tier{
		{Name: "Crystal", MinDays: 0, MaxDays: intPtr(49), Multiplier: 1.0, Color: "#60A5FA", Icon: "crystal", Description: "Building the foundation"},
		{Name: "Ruby", MinDays: 50, MaxDays: intPtr(149), Multiplier: 1.2, Color: "#EF4444", Icon: "ruby", Description: "A habit that sticks"},
		{Name: "Amethyst", MinDays: 150, Multiplier: 1.5, Color: "#A855F7", Icon: "amethyst", Description: "Part of who you are"},
	}
}

// NewTierTable validates tiers and returns the table. Tiers must start at
// zero, be contiguous and ordered, and only the last may be open-ended.
func NewTierTable(tiers []Tier) (*TierTable, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: no tiers", ErrInvalidTierTable)
	}
	if tiers[0].MinDays != 0 {
		return nil, fmt.Errorf("%w: first tier %q starts at %d, want 0", ErrInvalidTierTable, tiers[0].Name, tiers[0].MinDays)
	}

	seen := make(map[string]struct{}, len(tiers))
	for i, t := range tiers {
		if t.Name == "" {
			return nil, fmt.Errorf("%w: tier %d has no name", ErrInvalidTierTable, i)
		}
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("%w: duplicate tier %q", ErrInvalidTierTable, t.Name)
		}
		seen[t.Name] = struct{}{}
		if t.Multiplier <= 0 {
			return nil, fmt.Errorf("%w: tier %q multiplier must be positive", ErrInvalidTierTable, t.Name)
		}

		last := i == len(tiers)-1
		if t.MaxDays == nil {
			if !last {
				return nil, fmt.Errorf("%w: only the last tier may be open-ended, %q is not last", ErrInvalidTierTable, t.Name)
			}
			continue
		}
		if *t.MaxDays < t.MinDays {
			return nil, fmt.Errorf("%w: tier %q ends before it starts", ErrInvalidTierTable, t.Name)
		}
		if last {
			return nil, fmt.Errorf("%w: last tier %q must be open-ended", ErrInvalidTierTable, t.Name)
		}
		if next := tiers[i+1]; next.MinDays != *t.MaxDays+1 {
			return nil, fmt.Errorf("%w: gap or overlap between %q and %q", ErrInvalidTierTable, t.Name, next.Name)
		}
	}

	out := make([]Tier, len(tiers))
	copy(out, tiers)
	return &TierTable{tiers: out}, nil
}

// DefaultTierTable returns the built-in table.
func DefaultTierTable() *TierTable {
	t, err := NewTierTable(DefaultTiers())
	if err != nil {
		panic(err)
	}
	return t
}

// TiersFromConfig builds a table from configuration, falling back to the
// default ladder when none is configured.
func TiersFromConfig(cfgs []config.TierConfig) (*TierTable, error) {
	if len(cfgs) == 0 {
		return DefaultTierTable(), nil
	}
	tiers := make([]Tier, 0, len(cfgs))
	for _, c := range cfgs {
		t := Tier{
			Name:        c.Name,
			MinDays:     c.MinDays,
			Multiplier:  c.Multiplier,
			Color:       c.Color,
			Icon:        c.Icon,
			Description: c.Description,
		}
		if c.MaxDays != nil {
			t.MaxDays = intPtr(*c.MaxDays)
		}
		tiers = append(tiers, t)
	}
	return NewTierTable(tiers)
}

// Tiers returns a copy of the ladder in ascending order.
func (tt *TierTable) Tiers() []Tier {
	out := make([]Tier, len(tt.tiers))
	copy(out, tt.tiers)
	return out
}

func (tt *TierTable) First() Tier { return tt.tiers[0] }

// Lookup finds a tier by name.
func (tt *TierTable) Lookup(name string) (Tier, bool) {
	for _, t := range tt.tiers {
		if t.Name == name {
			return t, true
		}
	}
	return Tier{}, false
}

// TierFromStreak maps a streak to its tier and the progress toward the next
// one. Negative streaks count as zero; the terminal tier always reports 100.
func (tt *TierTable) TierFromStreak(streak int) TierProgress {
	if streak < 0 {
		streak = 0
	}

	idx := len(tt.tiers) - 1
	for i, t := range tt.tiers {
		if t.Contains(streak) {
			idx = i
			break
		}
	}
	tier := tt.tiers[idx]
	if idx == len(tt.tiers)-1 {
		return TierProgress{Tier: tier, ProgressPercent: 100}
	}

	next := tt.tiers[idx+1]
	span := float64(next.MinDays - tier.MinDays)
	pct := float64(streak-tier.MinDays) / span * 100
	return TierProgress{Tier: tier, ProgressPercent: clamp(pct, 0, 100)}
}

// NextTier returns the tier above the named one, or false at the top.
func (tt *TierTable) NextTier(name string) (Tier, bool) {
	for i, t := range tt.tiers {
		if t.Name == name {
			if i+1 < len(tt.tiers) {
				return tt.tiers[i+1], true
			}
			return Tier{}, false
		}
	}
	return Tier{}, false
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

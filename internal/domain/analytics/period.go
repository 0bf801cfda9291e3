package analytics

import (
	"fmt"
	"strings"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/habits"
	"github.com/google/uuid"
)

type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodAll   Period = "all"
)

func ParsePeriod(s string) (Period, error) {
	switch p := Period(strings.ToLower(strings.TrimSpace(s))); p {
	case PeriodWeek, PeriodMonth, PeriodAll:
		return p, nil
	case "":
		return PeriodWeek, nil
	default:
		return "", fmt.Errorf("unknown period %q", s)
	}
}

// Range resolves the period around today. Weeks start on Monday; "all" has
// no start and ends today.
func (p Period) Range(today habits.Day) habits.DayRange {
	switch p {
	case PeriodWeek:
		start := today.StartOfISOWeek()
		return habits.DayRange{Start: start, End: start.AddDays(6)}
	case PeriodMonth:
		return habits.DayRange{Start: today.StartOfMonth(), End: today.EndOfMonth()}
	default:
		return habits.DayRange{End: today}
	}
}

type PeriodStats struct {
	Period           Period          `json:"period"`
	Range            habits.DayRange `json:"range"`
	TotalHabits      int             `json:"total_habits"`
	CurrentStreak    int             `json:"current_streak"`
	BestStreak       int             `json:"best_streak"`
	ChampionHabitID  *uuid.UUID      `json:"champion_habit_id,omitempty"`
	ChampionTitle    string          `json:"champion_title,omitempty"`
	CompletedToday   int             `json:"completed_today"`
	TotalCompletions int             `json:"total_completions"`
	PerfectDays      int             `json:"perfect_days"`
	// WeeklyAverage is completions as a percentage of possible completions.
	WeeklyAverage float64 `json:"weekly_average"`
}

// ComputePeriodStats aggregates a user's habits over the period containing today.
func ComputePeriodStats(hs []habits.Habit, period Period, today habits.Day) PeriodStats {
	rng := period.Range(today)
	stats := PeriodStats{Period: period, Range: rng, TotalHabits: len(hs)}
	if len(hs) == 0 || today.IsZero() {
		return stats
	}

	// days after today cannot have been completed yet
	effective := rng.Clip(habits.Day{}, today)

	possible := 0
	var earliest habits.Day
	for i := range hs {
		h := &hs[i]

		if cur := habits.CurrentStreak(h, today); cur > stats.CurrentStreak {
			stats.CurrentStreak = cur
		}
		if h.IsApplicable(today) && h.IsComplete(today) {
			stats.CompletedToday++
		}

		window := habitWindow(h, effective)
		if window.IsEmpty() {
			continue
		}
		earliest = habits.MinDay(earliest, window.Start)

		if best := habits.BestStreakInWindow(h, window.Start, window.End); best > stats.BestStreak {
			stats.BestStreak = best
			id := h.ID
			stats.ChampionHabitID = &id
			stats.ChampionTitle = h.Title
		}
		stats.TotalCompletions += len(habits.CompletedDates(h, window))
		possible += h.ApplicableDays(window)
	}

	if !earliest.IsZero() {
		stats.PerfectDays = PerfectDays(hs, habits.DayRange{Start: earliest, End: effective.End})
	}
	stats.WeeklyAverage = percent(stats.TotalCompletions, possible)
	if rng.Start.IsZero() {
		stats.Range.Start = earliest
	}
	return stats
}

// PerfectDays counts days in r on which every habit applicable that day was
// completed. Days with no applicable habit do not count.
func PerfectDays(hs []habits.Habit, r habits.DayRange) int {
	n := 0
	for _, d := range r.Days() {
		applicable, done := 0, 0
		for i := range hs {
			h := &hs[i]
			if !h.IsApplicable(d) {
				continue
			}
			applicable++
			if h.IsComplete(d) {
				done++
			}
		}
		if applicable > 0 && applicable == done {
			n++
		}
	}
	return n
}

// habitWindow clips r to [max(activeSince, start), min(today, end)].
func habitWindow(h *habits.Habit, r habits.DayRange) habits.DayRange {
	since := h.ActiveSince()
	if since.IsZero() {
		return habits.DayRange{}
	}
	if r.Start.IsZero() {
		r.Start = since
	}
	return r.Clip(since, habits.Day{})
}

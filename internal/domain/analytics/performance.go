package analytics

import (
	"github.com/Noxter68/habit-tracking-sub001/internal/domain/habits"
)

// DefaultWindowDays is the trailing window used when none is configured.
const DefaultWindowDays = 30

// Consistency penalties: each gap costs a flat amount plus a per-missed-day amount.
const (
	gapPenalty       = 5.0
	missedDayPenalty = 2.0
)

// PerformanceMetrics summarises a habit over a trailing window. Rates are percentages.
type PerformanceMetrics struct {
	WindowDays          int     `json:"window_days"`
	PerfectDays         int     `json:"perfect_days"`
	PerfectDayRate      float64 `json:"perfect_day_rate"`
	CompletionRate      float64 `json:"completion_rate"`
	BestWeeklyStreak    int     `json:"best_weekly_streak"`
	ConsistencyScore    float64 `json:"consistency_score"`
	AverageTasksPerDay  float64 `json:"average_tasks_per_day"`
	TotalTasksCompleted int     `json:"total_tasks_completed"`
}

// ComputePerformance recomputes the metrics of h over the windowDays ending at today.
func ComputePerformance(h *habits.Habit, today habits.Day, windowDays int) PerformanceMetrics {
	if windowDays <= 0 {
		windowDays = DefaultWindowDays
	}
	m := PerformanceMetrics{WindowDays: windowDays}
	if h == nil || today.IsZero() {
		return m
	}

	window := habits.Window(today, windowDays)
	m.CompletionRate = CompletionRate(h, window)
	m.ConsistencyScore = ConsistencyScore(h, window)
	m.BestWeeklyStreak = habits.BestStreakInWindow(h, today.AddDays(-6), today)

	observed := 0
	for _, d := range window.Clip(h.ActiveSince(), today).Days() {
		if !h.HasRecord(d) {
			continue
		}
		observed++
		m.TotalTasksCompleted += h.CompletedTaskCount(d)
		if h.IsComplete(d) {
			m.PerfectDays++
		}
	}
	if observed > 0 {
		m.PerfectDayRate = percent(m.PerfectDays, observed)
		m.AverageTasksPerDay = float64(m.TotalTasksCompleted) / float64(observed)
	}
	return m
}

// CompletionRate is the completed days in r as a share of the full length of
// r. The range is not clipped to the habit's creation date, so a habit younger
// than the window cannot score 100.
func CompletionRate(h *habits.Habit, r habits.DayRange) float64 {
	return percent(len(habits.CompletedDates(h, r)), r.Len())
}

// ConsistencyScore starts at 100 and loses points for every gap between two
// completed days in r. A gap is one or more missed applicable days; it costs
// 5 points plus 2 per missed day. No completions scores 0.
func ConsistencyScore(h *habits.Habit, r habits.DayRange) float64 {
	completed := habits.CompletedDates(h, r)
	if len(completed) == 0 {
		return 0
	}

	score := 100.0
	for i := 1; i < len(completed); i++ {
		missed := habits.MissedDays(h, completed[i-1].AddDays(1), completed[i].AddDays(-1))
		if missed > 0 {
			score -= gapPenalty + missedDayPenalty*float64(missed)
		}
	}
	if score < 0 {
		return 0
	}
	return score
}

func percent(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d) * 100
}

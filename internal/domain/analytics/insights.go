package analytics

import (
	"math"
	"time"

	"github.com/Noxter68/habit-tracking-sub001/internal/domain/habits"
	"github.com/google/uuid"
)

type Momentum string

const (
	MomentumIncreasing Momentum = "increasing"
	MomentumStable     Momentum = "stable"
	MomentumDecreasing Momentum = "decreasing"
)

const (
	velocityHistory   = 14
	velocityMinPoints = 7
	formationEarly    = 21
	formationFull     = 66
	maxProbability    = 95.0
)

// Risk and strength tags, shown to users as is
const (
	RiskLowConsistency    = "Low consistency"
	RiskLowCompletion     = "Low completion rate"
	RiskDecliningMomentum = "Declining momentum"
	RiskStreakBroken      = "Streak broken"
	RiskNoRecentActivity  = "No recent activity"

	StrengthLongStreak      = "Long streak"
	StrengthHighConsistency = "High consistency"
	StrengthHighCompletion  = "High completion rate"
	StrengthGrowingMomentum = "Growing momentum"
	StrengthHabitFormed     = "Habit formed"
)

// Factor thresholds, in percent
const (
	lowConsistency  = 60.0
	lowCompletion   = 50.0
	highConsistency = 80.0
	highCompletion  = 80.0
	longStreakDays  = 7
)

// WeekdayRate is the normalised completion rate of one weekday.
type WeekdayRate struct {
	Weekday string  `json:"weekday"`
	Count   int     `json:"count"`
	Rate    float64 `json:"rate"`
}

type Insights struct {
	HabitID                uuid.UUID          `json:"habit_id"`
	AsOf                   habits.Day         `json:"as_of"`
	CurrentStreak          int                `json:"current_streak"`
	BestStreak             int                `json:"best_streak"`
	Momentum               Momentum           `json:"momentum"`
	RecentCompletions      int                `json:"recent_completions"`
	PreviousCompletions    int                `json:"previous_completions"`
	StreakVelocity         float64            `json:"streak_velocity"`
	WeeklyPattern          []WeekdayRate      `json:"weekly_pattern"`
	BestDay                string             `json:"best_day,omitempty"`
	SuccessProbability     float64            `json:"success_probability"`
	PredictedMaxStreak     int                `json:"predicted_max_streak"`
	HabitFormationProgress float64            `json:"habit_formation_progress"`
	Projected30Days        int                `json:"projected_streak_30d"`
	Projected90Days        int                `json:"projected_streak_90d"`
	RiskFactors            []string           `json:"risk_factors"`
	StrengthFactors        []string           `json:"strength_factors"`
	Performance            PerformanceMetrics `json:"performance"`
}

// ComputeInsights derives the forward-looking view of h as of today.
func ComputeInsights(h *habits.Habit, today habits.Day, windowDays int) Insights {
	in := Insights{
		AsOf:            today,
		Momentum:        MomentumStable,
		WeeklyPattern:   WeeklyPattern(nil, today),
		RiskFactors:     []string{},
		StrengthFactors: []string{},
	}
	if h == nil || today.IsZero() {
		return in
	}

	in.HabitID = h.ID
	in.CurrentStreak = habits.CurrentStreak(h, today)
	in.BestStreak = habits.BestStreak(h, today)
	in.Performance = ComputePerformance(h, today, windowDays)
	in.Momentum, in.RecentCompletions, in.PreviousCompletions = MomentumOf(h, today)

	history := habits.CompletionHistory(h, today)
	in.StreakVelocity = StreakVelocity(history, today)
	in.WeeklyPattern = WeeklyPattern(h, today)
	in.BestDay = bestDay(in.WeeklyPattern)
	in.SuccessProbability = SuccessProbability(in.CurrentStreak, in.Performance.ConsistencyScore, in.Performance.CompletionRate)
	in.PredictedMaxStreak = PredictedMaxStreak(in.CurrentStreak, in.Performance.ConsistencyScore, in.Momentum)
	in.HabitFormationProgress = FormationProgress(len(history))

	fraction := in.Performance.CompletionRate / 100
	in.Projected30Days = ProjectStreak(in.CurrentStreak, 30, fraction, in.Momentum)
	in.Projected90Days = ProjectStreak(in.CurrentStreak, 90, fraction, in.Momentum)

	in.RiskFactors, in.StrengthFactors = factors(in, len(history))
	return in
}

// MomentumOf compares completions in the last 7 days with the 7 days before.
// A difference of at most one completion is stable.
func MomentumOf(h *habits.Habit, today habits.Day) (Momentum, int, int) {
	recent := len(habits.CompletedDates(h, habits.Window(today, 7)))
	previous := len(habits.CompletedDates(h, habits.Window(today.AddDays(-7), 7)))

	switch diff := recent - previous; {
	case diff > 1:
		return MomentumIncreasing, recent, previous
	case diff < -1:
		return MomentumDecreasing, recent, previous
	default:
		return MomentumStable, recent, previous
	}
}

// StreakVelocity compares the last calendar week with the one before, using
// the most recent 14 completed dates. Fewer than 7 dates gives 0. The change is
// relative to the first week, so an empty first week has no base: any
// completions in the second week then count as +100, none as 0.
func StreakVelocity(history []habits.Day, today habits.Day) float64 {
	if len(history) > velocityHistory {
		history = history[len(history)-velocityHistory:]
	}
	if len(history) < velocityMinPoints {
		return 0
	}

	firstWeek := habits.Window(today.AddDays(-7), 7)
	secondWeek := habits.Window(today, 7)
	first, second := 0, 0
	for _, d := range history {
		switch {
		case firstWeek.Contains(d):
			first++
		case secondWeek.Contains(d):
			second++
		}
	}

	if first == 0 {
		if second > 0 {
			return 100
		}
		return 0
	}
	return float64(second-first) / float64(first) * 100
}

// WeeklyPattern counts completions per weekday since the habit became active,
// normalised by the number of elapsed weeks and capped at 100.
func WeeklyPattern(h *habits.Habit, today habits.Day) []WeekdayRate {
	out := make([]WeekdayRate, 7)
	for d := time.Sunday; d <= time.Saturday; d++ {
		out[d] = WeekdayRate{Weekday: d.String()}
	}
	if h == nil {
		return out
	}
	since := h.ActiveSince()
	if since.IsZero() || today.Before(since) {
		return out
	}

	for _, d := range habits.CompletionHistory(h, today) {
		out[d.Weekday()].Count++
	}

	weeks := int(math.Ceil(float64(habits.DaysBetween(since, today)+1) / 7))
	if weeks < 1 {
		weeks = 1
	}
	for i := range out {
		out[i].Rate = math.Min(100, float64(out[i].Count)/float64(weeks)*100)
	}
	return out
}

func bestDay(pattern []WeekdayRate) string {
	best := -1
	for i, p := range pattern {
		if p.Count == 0 {
			continue
		}
		if best < 0 || p.Rate > pattern[best].Rate {
			best = i
		}
	}
	if best < 0 {
		return ""
	}
	return pattern[best].Weekday
}

// SuccessProbability weighs streak length (30), consistency (40) and
// completion rate (30), capped at 95.
func SuccessProbability(streak int, consistency, completionRate float64) float64 {
	streakFactor := math.Min(float64(streak)/formationEarly, 1)
	p := streakFactor*30 + consistency/100*40 + completionRate/100*30
	return math.Min(maxProbability, p)
}

func momentumMultiplier(m Momentum, increasing, stable, decreasing float64) float64 {
	switch m {
	case MomentumIncreasing:
		return increasing
	case MomentumDecreasing:
		return decreasing
	default:
		return stable
	}
}

// PredictedMaxStreak extrapolates the current streak by consistency and
// momentum: streak + streak*mult*consistency/100, rounded to whole days.
func PredictedMaxStreak(streak int, consistency float64, m Momentum) int {
	mult := momentumMultiplier(m, 1.5, 1.0, 0.7)
	return int(math.Round(float64(streak) + float64(streak)*mult*(consistency/100)))
}

// FormationProgress maps completed days onto the 21/66 day formation curve:
// half way after 21 days, complete after 66.
func FormationProgress(completedDays int) float64 {
	switch {
	case completedDays <= 0:
		return 0
	case completedDays < formationEarly:
		return float64(completedDays) / formationEarly * 50
	case completedDays < formationFull:
		return 50 + float64(completedDays-formationEarly)/float64(formationFull-formationEarly)*50
	default:
		return 100
	}
}

// ProjectStreak estimates the streak after horizon days at the given
// completion fraction, adjusted for momentum. The real-valued estimate is
// rounded to whole days.
func ProjectStreak(streak, horizon int, completionFraction float64, m Momentum) int {
	var adj float64
	if horizon <= 30 {
		adj = momentumMultiplier(m, 1.2, 1.0, 0.8)
	} else {
		adj = momentumMultiplier(m, 1.1, 0.9, 0.7)
	}
	return int(math.Round(float64(streak) + float64(horizon)*completionFraction*adj))
}

func factors(in Insights, completedDays int) ([]string, []string) {
	risks := []string{}
	strengths := []string{}
	perf := in.Performance

	if perf.ConsistencyScore < lowConsistency {
		risks = append(risks, RiskLowConsistency)
	}
	if perf.CompletionRate < lowCompletion {
		risks = append(risks, RiskLowCompletion)
	}
	if in.Momentum == MomentumDecreasing {
		risks = append(risks, RiskDecliningMomentum)
	}
	if in.CurrentStreak == 0 && completedDays > 0 {
		risks = append(risks, RiskStreakBroken)
	}
	if completedDays > 0 && in.RecentCompletions == 0 {
		risks = append(risks, RiskNoRecentActivity)
	}

	if in.CurrentStreak >= longStreakDays {
		strengths = append(strengths, StrengthLongStreak)
	}
	if perf.ConsistencyScore >= highConsistency {
		strengths = append(strengths, StrengthHighConsistency)
	}
	if perf.CompletionRate >= highCompletion {
		strengths = append(strengths, StrengthHighCompletion)
	}
	if in.Momentum == MomentumIncreasing {
		strengths = append(strengths, StrengthGrowingMomentum)
	}
	if in.HabitFormationProgress >= 100 {
		strengths = append(strengths, StrengthHabitFormed)
	}
	return risks, strengths
}

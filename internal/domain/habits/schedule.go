package habits

import "time"

// WeeklyDay is the single applicable weekday of a weekly habit.
const WeeklyDay = time.Sunday

// MatchesSchedule reports whether the weekday of d fits the habit's frequency,
// ignoring the creation date. A custom habit with no days and an unknown
// frequency match nothing.
func (h *Habit) MatchesSchedule(d Day) bool {
	switch h.Frequency {
	case FrequencyDaily:
		return true
	case FrequencyWeekly:
		return d.Weekday() == WeeklyDay
	case FrequencyCustom:
		return h.CustomDays.Has(d.Weekday())
	default:
		return false
	}
}

// IsApplicable reports whether the habit is expected to be performed on d.
func (h *Habit) IsApplicable(d Day) bool {
	if d.IsZero() {
		return false
	}
	since := h.ActiveSince()
	if since.IsZero() || d.Before(since) {
		return false
	}
	return h.MatchesSchedule(d)
}

// IsComplete reports whether the habit was done on d: every sub-task finished,
// or for habits without sub-tasks, the day is in CompletedDays.
func (h *Habit) IsComplete(d Day) bool {
	if rec, ok := h.DailyTasks[d]; ok && rec.AllCompleted {
		return true
	}
	return len(h.Tasks) == 0 && h.CompletedDays.Has(d)
}

// CompletedTaskCount is the number of sub-task units done on d. A whole-habit
// completion of a habit without sub-tasks counts as one unit.
func (h *Habit) CompletedTaskCount(d Day) int {
	if rec, ok := h.DailyTasks[d]; ok {
		if n := len(rec.CompletedTasks); n > 0 {
			return n
		}
		if rec.AllCompleted {
			return 1
		}
	}
	if len(h.Tasks) == 0 && h.CompletedDays.Has(d) {
		return 1
	}
	return 0
}

// HasRecord reports whether any completion data exists for d.
func (h *Habit) HasRecord(d Day) bool {
	if _, ok := h.DailyTasks[d]; ok {
		return true
	}
	return h.CompletedDays.Has(d)
}

// ApplicableDays counts the applicable days within r.
func (h *Habit) ApplicableDays(r DayRange) int {
	since := h.ActiveSince()
	if since.IsZero() {
		return 0
	}
	r = r.Clip(since, Day{})
	n := 0
	for _, d := range r.Days() {
		if h.MatchesSchedule(d) {
			n++
		}
	}
	return n
}

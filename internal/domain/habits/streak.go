package habits

// CurrentStreak counts consecutive completed applicable days ending today, or
// yesterday when today is not complete yet. Days the habit is not scheduled on
// are skipped without breaking the run.
func CurrentStreak(h *Habit, today Day) int {
	if h == nil || today.IsZero() {
		return 0
	}
	since := h.ActiveSince()
	if since.IsZero() {
		return 0
	}

	start := today
	if !h.IsComplete(today) {
		start = today.AddDays(-1)
	}

	streak := 0
	for d := start; !d.Before(since); d = d.AddDays(-1) {
		if !h.MatchesSchedule(d) {
			continue
		}
		if !h.IsComplete(d) {
			break
		}
		streak++
	}
	return streak
}

// BestStreakInWindow returns the longest run of consecutive applicable days
// completed inside [start, end]. Runs are counted in applicable days, so a
// weekly habit done on five Sundays in a row has a run of five.
func BestStreakInWindow(h *Habit, start, end Day) int {
	if h == nil {
		return 0
	}
	r := DayRange{Start: start, End: end}.Clip(h.ActiveSince(), Day{})
	if h.ActiveSince().IsZero() || r.IsEmpty() {
		return 0
	}

	best, run := 0, 0
	for _, d := range r.Days() {
		if !h.MatchesSchedule(d) {
			continue
		}
		if h.IsComplete(d) {
			run++
			if run > best {
				best = run
			}
			continue
		}
		run = 0
	}
	return best
}

// BestStreak is the best run over the habit's whole history up to today.
func BestStreak(h *Habit, today Day) int {
	if h == nil {
		return 0
	}
	return BestStreakInWindow(h, h.ActiveSince(), today)
}

// MissedDays counts applicable days in [start, end] that were not completed.
func MissedDays(h *Habit, start, end Day) int {
	if h == nil || h.ActiveSince().IsZero() {
		return 0
	}
	r := DayRange{Start: start, End: end}.Clip(h.ActiveSince(), Day{})
	missed := 0
	for _, d := range r.Days() {
		if h.MatchesSchedule(d) && !h.IsComplete(d) {
			missed++
		}
	}
	return missed
}

// CompletedDates lists the completed applicable days in r, ascending.
func CompletedDates(h *Habit, r DayRange) []Day {
	if h == nil || h.ActiveSince().IsZero() {
		return nil
	}
	r = r.Clip(h.ActiveSince(), Day{})
	var out []Day
	for _, d := range r.Days() {
		if h.MatchesSchedule(d) && h.IsComplete(d) {
			out = append(out, d)
		}
	}
	return out
}

// CompletionHistory lists every completed applicable day up to today. Days
// recorded after today are ignored.
func CompletionHistory(h *Habit, today Day) []Day {
	if h == nil {
		return nil
	}
	return CompletedDates(h, DayRange{Start: h.ActiveSince(), End: today})
}

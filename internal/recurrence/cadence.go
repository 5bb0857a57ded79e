package recurrence

import (
	"cloud.google.com/go/civil"
	"github.com/dvloznov/cashflow-engine/internal/calendar"
	"github.com/dvloznov/cashflow-engine/internal/domain"
)

// schedule describes when a source fires.
type schedule struct {
	cadence domain.Cadence
	// seed is the first occurrence of a rule. Bills have no seed.
	seed    civil.Date
	hasSeed bool
	// day is the day-of-month for monthly schedules.
	day int
}

// occurrences is the single dispatch point for cadences. Adding a cadence means adding
// a case here and a constant in domain.
func occurrences(s schedule, start, end civil.Date) []civil.Date {
	switch s.cadence {
	case domain.CadenceWeekly:
		return stepping(s.seed, 7, start, end)
	case domain.CadenceBiweekly:
		return stepping(s.seed, 14, start, end)
	case domain.CadenceMonthly:
		return monthly(s, start, end)
	}
	return nil
}

// stepping walks forward from seed in fixed steps and keeps the dates inside [start, end].
func stepping(seed civil.Date, step int, start, end civil.Date) []civil.Date {
	if seed.After(end) {
		return nil
	}

	d := seed
	if d.Before(start) {
		// Skip whole steps that land before the period.
		n := (start.DaysSince(seed) + step - 1) / step
		d = seed.AddDays(n * step)
	}

	var out []civil.Date
	for ; !d.After(end); d = d.AddDays(step) {
		out = append(out, d)
	}
	return out
}

// monthly emits once per overlapping month on the schedule's day, clamped to the
// month's last day. Rules never fire before their seed date.
func monthly(s schedule, start, end civil.Date) []civil.Date {
	if s.hasSeed && s.seed.After(end) {
		return nil
	}

	var out []civil.Date
	for _, m := range calendar.MonthsOverlapping(start, end) {
		d := calendar.Clamp(m.Year, m.Month, s.day)
		if !calendar.Within(d, start, end) {
			continue
		}
		if s.hasSeed && d.Before(s.seed) {
			continue
		}
		out = append(out, d)
	}
	return out
}

// Package recurrence expands recurring income rules, outflow rules and bill templates
// into the dated events of one period.
package recurrence

import (
	"sort"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cashflow-engine/internal/calendar"
	"github.com/dvloznov/cashflow-engine/internal/domain"
)

// source is a rule or bill flattened into what the expander needs.
type source struct {
	id       string
	label    string
	amount   domain.Money
	typ      domain.TransactionType
	category domain.Category
	enabled  bool
	bill     bool
	sched    schedule
	valid    bool
}

func (s source) event(d civil.Date) domain.CashflowEvent {
	date := calendar.Format(d)
	return domain.CashflowEvent{
		ID:       EventID(s.id, date),
		Date:     date,
		Label:    s.label,
		Amount:   s.amount,
		Type:     s.typ,
		Category: s.category,
		SourceID: s.id,
	}
}

// EventID builds the synthetic id that EventOverrides are keyed by.
func EventID(sourceID, date string) string {
	return sourceID + "-" + date
}

// Expand returns every event of the period in date order. An unknown period id or a
// period with malformed dates yields an empty slice.
func Expand(plan *domain.Plan, periodID int) []domain.CashflowEvent {
	return expand(plan, periodID, nil)
}

func expand(plan *domain.Plan, periodID int, record func(Amendment)) []domain.CashflowEvent {
	events := []domain.CashflowEvent{}
	if plan == nil {
		return events
	}
	period, ok := plan.PeriodByID(periodID)
	if !ok {
		return events
	}
	start, end, ok := calendar.Range(period.Start, period.End)
	if !ok {
		return events
	}
	if record == nil {
		record = func(Amendment) {}
	}

	periodOverride, _ := plan.PeriodOverrideFor(periodID)
	sources := collectSources(plan)
	ov := newOverlay(plan)

	for _, src := range sources {
		if !src.enabled || !src.valid {
			continue
		}
		for _, d := range occurrences(src.sched, start, end) {
			ev := src.event(d)

			if src.bill && periodOverride.BillDisabled(src.id) {
				record(Amendment{EventID: ev.ID, Kind: KindBillDisabled, Before: ptr(ev)})
				continue
			}

			resolved, keep := ov.resolve(ev, start, end, record)
			if keep {
				events = append(events, resolved)
			}
		}
	}

	events = ov.applyFlat(events, sources, periodOverride, start, end, record)

	sort.SliceStable(events, func(i, j int) bool {
		if events[i].Date != events[j].Date {
			return events[i].Date < events[j].Date
		}
		return events[i].ID < events[j].ID
	})
	return events
}

func collectSources(plan *domain.Plan) []source {
	sources := make([]source, 0, len(plan.IncomeRules)+len(plan.OutflowRules)+len(plan.Bills))

	for _, r := range plan.IncomeRules {
		sources = append(sources, ruleSource(r, domain.TypeIncome, domain.CategoryIncome))
	}
	for _, r := range plan.OutflowRules {
		sources = append(sources, ruleSource(r, domain.TypeOutflow, domain.CategoryOther))
	}
	for _, b := range plan.Bills {
		category := b.Category
		if category == "" {
			category = domain.CategoryBill
		}
		sources = append(sources, source{
			id:       b.ID,
			label:    b.Label,
			amount:   b.Amount,
			typ:      domain.TypeOutflow,
			category: category,
			enabled:  b.Enabled,
			bill:     true,
			sched:    schedule{cadence: domain.CadenceMonthly, day: b.DueDay},
			valid:    b.DueDay >= 1 && b.DueDay <= 31,
		})
	}
	return sources
}

func ruleSource(r domain.Rule, typ domain.TransactionType, fallback domain.Category) source {
	category := r.Category
	if category == "" {
		category = fallback
	}
	seed, err := calendar.Parse(r.SeedDate)
	return source{
		id:       r.ID,
		label:    r.Label,
		amount:   r.Amount,
		typ:      typ,
		category: category,
		enabled:  r.Enabled,
		sched:    schedule{cadence: r.Cadence, seed: seed, hasSeed: true, day: seed.Day},
		valid:    err == nil && r.Cadence.Valid(),
	}
}

func ptr[T any](v T) *T {
	return &v
}

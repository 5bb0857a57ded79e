package recurrence

import (
	"cloud.google.com/go/civil"
	"github.com/dvloznov/cashflow-engine/internal/calendar"
	"github.com/dvloznov/cashflow-engine/internal/domain"
)

// AmendmentKind names what an override did to an event.
type AmendmentKind string

const (
	KindDisabled     AmendmentKind = "disabled"
	KindBillDisabled AmendmentKind = "bill_disabled"
	KindAmount       AmendmentKind = "amount"
	KindMoved        AmendmentKind = "moved"
	KindDropped      AmendmentKind = "moved_out_of_period"
	KindReplaced     AmendmentKind = "replaced"
	KindAdded        AmendmentKind = "added"
)

// Amendment records one change the override overlay made to the generated events.
// Before is nil for added events; After is nil for removed ones.
type Amendment struct {
	EventID string                `json:"eventId"`
	Kind    AmendmentKind         `json:"kind"`
	Before  *domain.CashflowEvent `json:"before,omitempty"`
	After   *domain.CashflowEvent `json:"after,omitempty"`
}

// Diff lists the amendments overrides make to a period's events, in application order.
func Diff(plan *domain.Plan, periodID int) []Amendment {
	amendments := []Amendment{}
	expand(plan, periodID, func(a Amendment) {
		amendments = append(amendments, a)
	})
	return amendments
}

// overlay is the override lookup built once per expansion and consulted per event.
type overlay struct {
	byEvent    map[string]domain.EventOverride
	suppressed map[string]bool
	flat       []domain.Override
}

func newOverlay(plan *domain.Plan) overlay {
	o := overlay{
		byEvent:    make(map[string]domain.EventOverride, len(plan.EventOverrides)),
		suppressed: make(map[string]bool),
		flat:       plan.Overrides,
	}
	for _, eo := range plan.EventOverrides {
		o.byEvent[eo.EventID] = eo
		if eo.Disabled {
			o.suppressed[eo.EventID] = true
		}
	}
	return o
}

// resolve applies the EventOverride for ev, if any. keep is false when the event is
// disabled or moved outside [start, end].
func (o overlay) resolve(ev domain.CashflowEvent, start, end civil.Date, record func(Amendment)) (domain.CashflowEvent, bool) {
	eo, ok := o.byEvent[ev.ID]
	if !ok {
		return ev, true
	}
	if eo.Disabled {
		record(Amendment{EventID: ev.ID, Kind: KindDisabled, Before: ptr(ev)})
		return ev, false
	}

	out := ev
	if eo.Amount != nil {
		out.Amount = *eo.Amount
		record(Amendment{EventID: ev.ID, Kind: KindAmount, Before: ptr(ev), After: ptr(out)})
	}
	if eo.Date != nil && *eo.Date != ev.Date {
		d, err := calendar.Parse(*eo.Date)
		if err != nil {
			return out, true
		}
		moved := out
		moved.Date = calendar.Format(d)
		if !calendar.Within(d, start, end) {
			o.suppressed[ev.ID] = true
			record(Amendment{EventID: ev.ID, Kind: KindDropped, Before: ptr(out)})
			return out, false
		}
		record(Amendment{EventID: ev.ID, Kind: KindMoved, Before: ptr(out), After: ptr(moved)})
		out = moved
	}
	return out, true
}

// applyFlat folds the plan's one-off overrides into events. An override matching an
// existing event by rule id and date (the date it lands on, else its original date)
// replaces its amount; otherwise it adds a one-off event for that rule. Unknown or disabled rules are ignored.
func (o overlay) applyFlat(
	events []domain.CashflowEvent,
	sources []source,
	periodOverride domain.PeriodOverride,
	start, end civil.Date,
	record func(Amendment),
) []domain.CashflowEvent {
	if len(o.flat) == 0 {
		return events
	}

	byID := make(map[string]source, len(sources))
	for _, s := range sources {
		byID[s.id] = s
	}
	// Events are addressed by where they land first, then by their synthetic id, so
	// an override on the new date of a moved event amends it.
	landed := make(map[string]int, len(events))
	index := make(map[string]int, len(events))
	for i, ev := range events {
		landed[EventID(ev.SourceID, ev.Date)] = i
		index[ev.ID] = i
	}

	for _, fo := range o.flat {
		src, ok := byID[fo.RuleID]
		if !ok || !src.enabled {
			continue
		}
		if src.bill && periodOverride.BillDisabled(src.id) {
			continue
		}
		d, err := calendar.Parse(fo.Date)
		if err != nil || !calendar.Within(d, start, end) {
			continue
		}

		id := EventID(src.id, calendar.Format(d))
		i, exists := landed[id]
		if !exists {
			i, exists = index[id]
		}
		if exists {
			before := events[i]
			events[i].Amount = fo.Amount
			if fo.Label != "" {
				events[i].Label = fo.Label
			}
			record(Amendment{EventID: before.ID, Kind: KindReplaced, Before: ptr(before), After: ptr(events[i])})
			continue
		}
		if o.suppressed[id] {
			continue
		}

		ev := src.event(d)
		ev.Amount = fo.Amount
		if fo.Label != "" {
			ev.Label = fo.Label
		}
		index[id] = len(events)
		landed[EventID(ev.SourceID, ev.Date)] = len(events)
		events = append(events, ev)
		record(Amendment{EventID: id, Kind: KindAdded, After: ptr(ev)})
	}
	return events
}

package planstore

import (
	"errors"
	"fmt"

	"github.com/dvloznov/cashflow-engine/internal/calendar"
	"github.com/dvloznov/cashflow-engine/internal/domain"
)

// ErrInvalidPlan marks a plan whose shape the engine cannot work with.
var ErrInvalidPlan = errors.New("invalid plan")

// Validate checks the structural invariants of a plan and reports every
// problem found. The returned error wraps ErrInvalidPlan.
func Validate(plan *domain.Plan) error {
	if plan == nil {
		return fmt.Errorf("%w: plan is nil", ErrInvalidPlan)
	}

	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if plan.Setup.AsOfDate != "" && !calendar.Valid(plan.Setup.AsOfDate) {
		add("setup.asOfDate %q is not a YYYY-MM-DD date", plan.Setup.AsOfDate)
	}
	if plan.Setup.ExpectedMinBalance.IsNegative() {
		add("setup.expectedMinBalance must not be negative")
	}

	periodIDs := make(map[int]bool, len(plan.Periods))
	for i, p := range plan.Periods {
		if periodIDs[p.ID] {
			add("periods[%d]: duplicate id %d", i, p.ID)
		}
		periodIDs[p.ID] = true

		if i > 0 {
			prev := plan.Periods[i-1]
			if p.ID <= prev.ID {
				add("periods[%d]: id %d is not after %d", i, p.ID, prev.ID)
			}
			if p.Start <= prev.Start {
				add("periods[%d]: start %s is not after %s", i, p.Start, prev.Start)
			}
			if calendar.Valid(p.Start) && calendar.Valid(prev.End) {
				switch next := calendar.AddDays(prev.End, 1); {
				case p.Start < next:
					add("periods[%d]: start %s overlaps period %d ending %s", i, p.Start, prev.ID, prev.End)
				case p.Start > next:
					add("periods[%d]: start %s leaves a gap after period %d ending %s", i, p.Start, prev.ID, prev.End)
				}
			}
		}

		if _, _, ok := calendar.Range(p.Start, p.End); !ok {
			add("periods[%d]: range %q..%q is not a valid date range", i, p.Start, p.End)
		}
	}
	if plan.Setup.SelectedPeriodID != 0 && len(plan.Periods) > 0 && !periodIDs[plan.Setup.SelectedPeriodID] {
		add("setup.selectedPeriodId %d does not match any period", plan.Setup.SelectedPeriodID)
	}

	ruleIDs := make(map[string]bool)
	checkID := func(where, id string) {
		switch {
		case id == "":
			add("%s: id is required", where)
		case ruleIDs[id]:
			add("%s: duplicate id %q", where, id)
		}
		ruleIDs[id] = true
	}

	ruleSets := []struct {
		kind  string
		rules []domain.Rule
	}{
		{"incomeRules", plan.IncomeRules},
		{"outflowRules", plan.OutflowRules},
	}
	for _, set := range ruleSets {
		for i, r := range set.rules {
			where := fmt.Sprintf("%s[%d]", set.kind, i)
			checkID(where, r.ID)
			if !r.Cadence.Valid() {
				add("%s: unknown cadence %q", where, r.Cadence)
			}
			if !calendar.Valid(r.SeedDate) {
				add("%s: seedDate %q is not a YYYY-MM-DD date", where, r.SeedDate)
			}
			if r.Amount.IsNegative() {
				add("%s: amount must not be negative", where)
			}
		}
	}

	for i, b := range plan.Bills {
		where := fmt.Sprintf("bills[%d]", i)
		checkID(where, b.ID)
		if b.DueDay < 1 || b.DueDay > 31 {
			add("%s: dueDay %d is outside 1..31", where, b.DueDay)
		}
		if b.Amount.IsNegative() {
			add("%s: amount must not be negative", where)
		}
	}

	for i, tx := range plan.Transactions {
		where := fmt.Sprintf("transactions[%d]", i)
		if !calendar.Valid(tx.Date) {
			add("%s: date %q is not a YYYY-MM-DD date", where, tx.Date)
		}
		if tx.Amount.IsNegative() {
			add("%s: amount must not be negative", where)
		}
		if !tx.Type.Valid() {
			add("%s: unknown type %q", where, tx.Type)
		}
	}

	for i, o := range plan.PeriodOverrides {
		if !periodIDs[o.PeriodID] {
			add("periodOverrides[%d]: period %d does not exist", i, o.PeriodID)
		}
	}
	for i, o := range plan.EventOverrides {
		if o.EventID == "" {
			add("eventOverrides[%d]: eventId is required", i)
		}
		if o.Date != nil && !calendar.Valid(*o.Date) {
			add("eventOverrides[%d]: date %q is not a YYYY-MM-DD date", i, *o.Date)
		}
		if o.Amount != nil && o.Amount.IsNegative() {
			add("eventOverrides[%d]: amount must not be negative", i)
		}
	}
	for i, o := range plan.Overrides {
		if !calendar.Valid(o.Date) {
			add("overrides[%d]: date %q is not a YYYY-MM-DD date", i, o.Date)
		}
		if o.Amount.IsNegative() {
			add("overrides[%d]: amount must not be negative", i)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrInvalidPlan, errors.Join(errs...))
}

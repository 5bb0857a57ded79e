// Package timeline builds day-by-day running-balance timelines for a period from the
// ledger, from projected events, or from both split at the as-of date.
package timeline

import (
	"strings"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/cashflow-engine/internal/calendar"
	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/dvloznov/cashflow-engine/internal/recurrence"
	"github.com/shopspring/decimal"
)

// Builder produces timelines for the periods of one plan. AsOf overrides
// Plan.Setup.AsOfDate when set.
type Builder struct {
	Plan *domain.Plan
	AsOf string
}

// New returns a Builder using the plan's own as-of date.
func New(plan *domain.Plan) Builder {
	return Builder{Plan: plan}
}

func (b Builder) asOf() string {
	if b.AsOf != "" {
		return b.AsOf
	}
	if b.Plan == nil {
		return ""
	}
	return b.Plan.Setup.AsOfDate
}

// Actuals walks the ledger from the period start to min(as-of, period end). An as-of
// date before the period start yields no rows.
func (b Builder) Actuals(periodID int) []domain.TimelineRow {
	start, end, ok := b.periodRange(periodID)
	if !ok {
		return []domain.TimelineRow{}
	}
	asOf, err := calendar.Parse(b.asOf())
	if err != nil || asOf.Before(start) {
		return []domain.TimelineRow{}
	}
	return b.walk(start, calendar.Min(asOf, end), b.OpeningBalance(periodID), LedgerSource(b.Plan.Transactions))
}

// Projected walks every day of the period using generated events.
func (b Builder) Projected(periodID int) []domain.TimelineRow {
	start, end, ok := b.periodRange(periodID)
	if !ok {
		return []domain.TimelineRow{}
	}
	return b.walk(start, end, b.OpeningBalance(periodID), EventSource(recurrence.Expand(b.Plan, periodID)))
}

// Hybrid walks every day of the period, taking ledger values up to and including the
// as-of date and projected values after it. The balance carries across the cutover.
func (b Builder) Hybrid(periodID int) []domain.TimelineRow {
	start, end, ok := b.periodRange(periodID)
	if !ok {
		return []domain.TimelineRow{}
	}
	if !calendar.Valid(b.asOf()) {
		return []domain.TimelineRow{}
	}
	return b.hybrid(periodID, start, end, b.OpeningBalance(periodID))
}

func (b Builder) hybrid(periodID int, start, end civil.Date, opening domain.Money) []domain.TimelineRow {
	src := Cutover{
		AsOf:      b.asOf(),
		Actual:    LedgerSource(b.Plan.Transactions),
		Projected: EventSource(recurrence.Expand(b.Plan, periodID)),
	}
	return b.walk(start, end, opening, src)
}

// OpeningBalance resolves the starting balance of a period: an explicit period
// override, then the prior period's hybrid ending balance when rolling forward, then
// the plan default.
func (b Builder) OpeningBalance(periodID int) domain.Money {
	if b.Plan == nil {
		return decimal.Zero
	}
	idx := b.Plan.PeriodIndex(periodID)
	if !b.Plan.Setup.RollForwardBalance || idx < 0 {
		return b.explicitOpening(periodID, b.Plan.Setup.StartingBalance)
	}

	// Carry the balance forward period by period, walking each prior period once.
	validAsOf := calendar.Valid(b.asOf())
	opening := b.Plan.Setup.StartingBalance
	for i := 0; ; i++ {
		id := b.Plan.Periods[i].ID
		opening = b.explicitOpening(id, opening)
		if i == idx {
			return opening
		}
		start, end, ok := b.periodRange(id)
		if ok && validAsOf {
			opening = Ending(b.hybrid(id, start, end, opening), opening)
		}
	}
}

// explicitOpening returns the period override's starting balance, or fallback.
func (b Builder) explicitOpening(periodID int, fallback domain.Money) domain.Money {
	if po, ok := b.Plan.PeriodOverrideFor(periodID); ok && po.StartingBalance != nil {
		return *po.StartingBalance
	}
	return fallback
}

func (b Builder) periodRange(periodID int) (civil.Date, civil.Date, bool) {
	if b.Plan == nil {
		return civil.Date{}, civil.Date{}, false
	}
	period, ok := b.Plan.PeriodByID(periodID)
	if !ok {
		return civil.Date{}, civil.Date{}, false
	}
	return calendar.Range(period.Start, period.End)
}

// walk is the single day-walking loop behind every timeline.
func (b Builder) walk(from, to civil.Date, opening domain.Money, src DaySource) []domain.TimelineRow {
	minBalance := b.Plan.Setup.ExpectedMinBalance
	rows := make([]domain.TimelineRow, 0, to.DaysSince(from)+1)
	balance := opening

	for d := from; !d.After(to); d = d.AddDays(1) {
		date := calendar.Format(d)
		day := src.Day(date)
		net := day.Income.Sub(day.Outflow)
		balance = balance.Add(net)

		rows = append(rows, domain.TimelineRow{
			Date:    date,
			Label:   strings.Join(day.Labels, ", "),
			Income:  day.Income,
			Outflow: day.Outflow,
			Net:     net,
			Balance: balance,
			Warning: minBalance.IsPositive() && balance.LessThan(minBalance),
		})
	}
	return rows
}

// Lowest returns the row with the smallest balance, the earliest on ties.
func Lowest(rows []domain.TimelineRow) (domain.TimelineRow, bool) {
	if len(rows) == 0 {
		return domain.TimelineRow{}, false
	}
	low := rows[0]
	for _, r := range rows[1:] {
		if r.Balance.LessThan(low.Balance) {
			low = r
		}
	}
	return low, true
}

// Ending returns the closing balance of rows, or opening when there are none.
func Ending(rows []domain.TimelineRow, opening domain.Money) domain.Money {
	if len(rows) == 0 {
		return opening
	}
	return rows[len(rows)-1].Balance
}

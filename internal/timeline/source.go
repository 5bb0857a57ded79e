package timeline

import (
	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// Day is what a source contributes to one calendar day.
type Day struct {
	Labels  []string
	Income  domain.Money
	Outflow domain.Money
}

// DaySource produces the income and outflow of a single day.
type DaySource interface {
	Day(date string) Day
}

// daily is a DaySource backed by a date-keyed map.
type daily map[string]Day

func (d daily) Day(date string) Day {
	if day, ok := d[date]; ok {
		return day
	}
	return Day{Income: decimal.Zero, Outflow: decimal.Zero}
}

func (d daily) add(date, label string, amount domain.Money, reduces bool) {
	day, ok := d[date]
	if !ok {
		day = Day{Income: decimal.Zero, Outflow: decimal.Zero}
	}
	if label != "" {
		day.Labels = append(day.Labels, label)
	}
	if reduces {
		day.Outflow = day.Outflow.Add(amount)
	} else {
		day.Income = day.Income.Add(amount)
	}
	d[date] = day
}

// LedgerSource buckets actual transactions by day. Outflows and transfers both reduce
// the balance.
func LedgerSource(txs []domain.Transaction) DaySource {
	d := daily{}
	for _, tx := range txs {
		d.add(tx.Date, tx.Label, tx.Amount, tx.Type.Reduces())
	}
	return d
}

// EventSource buckets generated events by day.
func EventSource(events []domain.CashflowEvent) DaySource {
	d := daily{}
	for _, ev := range events {
		d.add(ev.Date, ev.Label, ev.Amount, ev.Type.Reduces())
	}
	return d
}

// Cutover reads from actual for days on or before asOf and from projected afterwards.
type Cutover struct {
	AsOf      string
	Actual    DaySource
	Projected DaySource
}

func (c Cutover) Day(date string) Day {
	if date <= c.AsOf {
		return c.Actual.Day(date)
	}
	return c.Projected.Day(date)
}

// Package anomaly flags spending categories whose current-period total jumped against
// a rolling average of the preceding periods.
package anomaly

import (
	"sort"

	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// Options tunes the detector.
type Options struct {
	// Window is how many prior periods feed the rolling average.
	Window int
	// MinAverage suppresses categories whose baseline is too small to compare against.
	MinAverage domain.Money
	// RatioThreshold is the inclusive current/average ratio that raises a flag.
	RatioThreshold decimal.Decimal
}

// DefaultOptions returns a three-period window, a floor of 5 and a 1.5x threshold.
func DefaultOptions() Options {
	return Options{
		Window:         3,
		MinAverage:     decimal.NewFromInt(5),
		RatioThreshold: decimal.RequireFromString("1.5"),
	}
}

// ratioPlaces bounds the precision of reported ratios. Comparisons use the exact value.
const ratioPlaces = 4

// Detect compares periodID's per-category spend with the prior Window periods.
// Periods are taken in plan order. A category contributes to the average only for the
// prior periods in which it has spend.
func Detect(plan *domain.Plan, periodID int, opts Options) []domain.DetectedAnomaly {
	anomalies := []domain.DetectedAnomaly{}
	if plan == nil {
		return anomalies
	}
	idx := plan.PeriodIndex(periodID)
	if idx < 0 {
		return anomalies
	}
	if opts.Window <= 0 {
		opts.Window = DefaultOptions().Window
	}

	current := Totals(plan.Transactions, plan.Periods[idx])

	priorStart := idx - opts.Window
	if priorStart < 0 {
		priorStart = 0
	}
	history := make([]map[domain.Category]domain.Money, 0, idx-priorStart)
	for _, p := range plan.Periods[priorStart:idx] {
		history = append(history, Totals(plan.Transactions, p))
	}

	for category, amount := range current {
		sum := decimal.Zero
		used := 0
		for _, totals := range history {
			if v, ok := totals[category]; ok {
				sum = sum.Add(v)
				used++
			}
		}
		if used == 0 {
			continue
		}

		// Compare against sum/used multiplied out so a non-terminating average
		// never shifts the boundary.
		n := decimal.NewFromInt(int64(used))
		if !sum.IsPositive() || sum.LessThan(opts.MinAverage.Mul(n)) {
			continue
		}
		if amount.Mul(n).LessThan(sum.Mul(opts.RatioThreshold)) {
			continue
		}

		avg := sum.Div(n)

		anomalies = append(anomalies, domain.DetectedAnomaly{
			Category:      category,
			CurrentAmount: amount,
			AvgAmount:     avg.Round(2),
			Ratio:         amount.DivRound(avg, ratioPlaces),
			PeriodsUsed:   used,
		})
	}

	sort.Slice(anomalies, func(i, j int) bool {
		if c := anomalies[i].Ratio.Cmp(anomalies[j].Ratio); c != 0 {
			return c > 0
		}
		return anomalies[i].Category < anomalies[j].Category
	})
	return anomalies
}

// Totals sums outflow and transfer transactions per category within the period.
// Income and buffer categories are never included.
func Totals(txs []domain.Transaction, period domain.Period) map[domain.Category]domain.Money {
	totals := map[domain.Category]domain.Money{}
	for _, tx := range txs {
		if tx.Date < period.Start || tx.Date > period.End {
			continue
		}
		if !tx.Type.Reduces() || excluded(tx.Category) {
			continue
		}
		totals[tx.Category] = totals[tx.Category].Add(tx.Amount)
	}
	return totals
}

func excluded(c domain.Category) bool {
	return c == domain.CategoryIncome || c == domain.CategoryBuffer
}

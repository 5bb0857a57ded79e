// Package variance summarizes a period's budget against its ledger and classifies its
// financial health.
package variance

import (
	"sort"

	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/dvloznov/cashflow-engine/internal/recurrence"
	"github.com/dvloznov/cashflow-engine/internal/timeline"
	"github.com/shopspring/decimal"
)

// Health is the traffic-light classification of a period's lowest balance.
type Health string

const (
	Healthy Health = "Healthy"
	Watch   Health = "Watch"
	AtRisk  Health = "At-Risk"
)

// Stability describes how regular the planned income is.
type Stability string

const (
	Consistent Stability = "Consistent"
	Variable   Stability = "Variable"
)

// Status flags a category whose actual spend drifted from its budget.
type Status string

const (
	StatusOK    Status = "OK"
	StatusOver  Status = "OVER"
	StatusUnder Status = "UNDER"
)

// statusTolerance is the absolute drift tolerated before a category is OVER or UNDER.
var statusTolerance = decimal.NewFromInt(5)

// streakCap bounds how many completed periods the savings streak looks back over.
const streakCap = 12

// LowestPoint is the minimum balance reached during the period.
type LowestPoint struct {
	Date    string       `json:"date"`
	Balance domain.Money `json:"balance"`
}

// CategoryVariance compares a category's budget with what actually happened.
type CategoryVariance struct {
	Category domain.Category `json:"category"`
	Budgeted domain.Money    `json:"budgeted"`
	Actual   domain.Money    `json:"actual"`
	Variance domain.Money    `json:"variance"`
	Status   Status          `json:"status"`
}

// Summary is the health report for one period.
type Summary struct {
	PeriodID         int                `json:"periodId"`
	ExpectedIncome   domain.Money       `json:"expectedIncome"`
	CommittedBills   domain.Money       `json:"committedBills"`
	OtherAllocations domain.Money       `json:"otherAllocations"`
	Remaining        domain.Money       `json:"remaining"`
	LowestPoint      LowestPoint        `json:"lowestPoint"`
	Health           Health             `json:"health"`
	IncomeStability  Stability          `json:"incomeStability"`
	SavingsStreak    int                `json:"savingsStreak"`
	Categories       []CategoryVariance `json:"categories"`
}

// Summarize builds the Summary for periodID as of asOf. The lowest point comes from
// the hybrid timeline; when the period has no rows it falls back to the opening
// balance with an empty date.
func Summarize(plan *domain.Plan, periodID int, asOf string) Summary {
	s := Summary{
		PeriodID:         periodID,
		ExpectedIncome:   decimal.Zero,
		CommittedBills:   decimal.Zero,
		OtherAllocations: decimal.Zero,
		Remaining:        decimal.Zero,
		Health:           Healthy,
		IncomeStability:  Consistent,
		Categories:       []CategoryVariance{},
	}
	if plan == nil {
		return s
	}

	events := recurrence.Expand(plan, periodID)
	bills := plan.BillIDs()
	for _, ev := range events {
		switch {
		case ev.Type == domain.TypeIncome:
			s.ExpectedIncome = s.ExpectedIncome.Add(ev.Amount)
		case bills[ev.SourceID]:
			s.CommittedBills = s.CommittedBills.Add(ev.Amount)
		default:
			s.OtherAllocations = s.OtherAllocations.Add(ev.Amount)
		}
	}
	s.Remaining = s.ExpectedIncome.Sub(s.CommittedBills).Sub(s.OtherAllocations)

	b := timeline.Builder{Plan: plan, AsOf: asOf}
	if low, ok := timeline.Lowest(b.Hybrid(periodID)); ok {
		s.LowestPoint = LowestPoint{Date: low.Date, Balance: low.Balance}
	} else {
		s.LowestPoint = LowestPoint{Balance: b.OpeningBalance(periodID)}
	}
	s.Health = ClassifyHealth(s.LowestPoint.Balance, plan.Setup.ExpectedMinBalance)
	s.IncomeStability = IncomeStability(plan)
	s.SavingsStreak = SavingsStreak(plan, asOf)

	if period, ok := plan.PeriodByID(periodID); ok {
		s.Categories = Categories(events, transactionsIn(plan.Transactions, period))
	}
	return s
}

// ClassifyHealth grades a balance: below zero is At-Risk, below minBalance is Watch.
func ClassifyHealth(balance, minBalance domain.Money) Health {
	switch {
	case balance.IsNegative():
		return AtRisk
	case balance.LessThan(minBalance):
		return Watch
	}
	return Healthy
}

// IncomeStability compares the planned amounts of enabled income rules. It is
// Consistent when there is at most one rule, or every rule shares a cadence and the
// amounts spread by no more than 10% of their average. Actual income is not looked at.
func IncomeStability(plan *domain.Plan) Stability {
	var rules []domain.Rule
	for _, r := range plan.IncomeRules {
		if r.Enabled {
			rules = append(rules, r)
		}
	}
	if len(rules) <= 1 {
		return Consistent
	}

	lo, hi, sum := rules[0].Amount, rules[0].Amount, decimal.Zero
	for _, r := range rules {
		if r.Cadence != rules[0].Cadence {
			return Variable
		}
		lo = decimal.Min(lo, r.Amount)
		hi = decimal.Max(hi, r.Amount)
		sum = sum.Add(r.Amount)
	}
	avg := sum.Div(decimal.NewFromInt(int64(len(rules))))
	if hi.Sub(lo).GreaterThan(avg.Mul(decimal.New(1, -1))) {
		return Variable
	}
	return Consistent
}

// SavingsStreak counts consecutive completed periods, newest first, whose actual
// savings transfers met the budgeted savings outflow. Periods without a savings budget
// are skipped. Only the last twelve completed periods are considered.
func SavingsStreak(plan *domain.Plan, asOf string) int {
	var completed []domain.Period
	for _, p := range plan.Periods {
		if p.End <= asOf {
			completed = append(completed, p)
		}
	}
	if len(completed) > streakCap {
		completed = completed[len(completed)-streakCap:]
	}

	streak := 0
	for i := len(completed) - 1; i >= 0; i-- {
		p := completed[i]
		budget := decimal.Zero
		for _, ev := range recurrence.Expand(plan, p.ID) {
			if ev.Type == domain.TypeOutflow && ev.Category == domain.CategorySavings {
				budget = budget.Add(ev.Amount)
			}
		}
		if budget.IsZero() {
			continue
		}

		saved := decimal.Zero
		for _, tx := range transactionsIn(plan.Transactions, p) {
			if tx.Type == domain.TypeTransfer && tx.Category == domain.CategorySavings {
				saved = saved.Add(tx.Amount)
			}
		}
		if saved.LessThan(budget) {
			break
		}
		streak++
	}
	return streak
}

// Categories tabulates budget against actuals per category. Income is measured from
// income transactions; every other category from outflow transactions only, so
// transfers never count as spending.
func Categories(events []domain.CashflowEvent, txs []domain.Transaction) []CategoryVariance {
	byCategory := map[domain.Category]*CategoryVariance{}
	row := func(c domain.Category) *CategoryVariance {
		if v, ok := byCategory[c]; ok {
			return v
		}
		v := &CategoryVariance{Category: c, Budgeted: decimal.Zero, Actual: decimal.Zero}
		byCategory[c] = v
		return v
	}

	for _, ev := range events {
		v := row(ev.Category)
		v.Budgeted = v.Budgeted.Add(ev.Amount)
	}
	for _, tx := range txs {
		switch {
		case tx.Category == domain.CategoryIncome && tx.Type == domain.TypeIncome,
			tx.Category != domain.CategoryIncome && tx.Type == domain.TypeOutflow:
			v := row(tx.Category)
			v.Actual = v.Actual.Add(tx.Amount)
		}
	}

	out := make([]CategoryVariance, 0, len(byCategory))
	for _, v := range byCategory {
		v.Variance = v.Actual.Sub(v.Budgeted)
		switch {
		case v.Variance.GreaterThan(statusTolerance):
			v.Status = StatusOver
		case v.Variance.LessThan(statusTolerance.Neg()):
			v.Status = StatusUnder
		default:
			v.Status = StatusOK
		}
		out = append(out, *v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out
}

func transactionsIn(txs []domain.Transaction, p domain.Period) []domain.Transaction {
	var out []domain.Transaction
	for _, tx := range txs {
		if p.Start <= tx.Date && tx.Date <= p.End {
			out = append(out, tx)
		}
	}
	return out
}

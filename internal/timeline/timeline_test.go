package timeline

import (
	"fmt"
	"testing"
	"time"

	"github.com/dvloznov/cashflow-engine/internal/calendar"
	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func money(v int64) domain.Money {
	return decimal.NewFromInt(v)
}

func januaryPlan(asOf string) *domain.Plan {
	return &domain.Plan{
		Setup: domain.Setup{SelectedPeriodID: 1, AsOfDate: asOf, StartingBalance: money(1000)},
		Periods: []domain.Period{
			{ID: 1, Label: "January", Start: "2025-01-01", End: "2025-01-31"},
			{ID: 2, Label: "February", Start: "2025-02-01", End: "2025-02-28"},
		},
	}
}

func TestActuals_EmptyLedger(t *testing.T) {
	rows := New(januaryPlan("2025-03-01")).Actuals(1)

	require.Len(t, rows, 31)
	for i, r := range rows {
		assert.True(t, money(1000).Equal(r.Balance), "row %d", i)
		assert.True(t, r.Income.IsZero())
		assert.True(t, r.Outflow.IsZero())
		assert.False(t, r.Warning)
		if i > 0 {
			assert.Equal(t, 1, calendar.DayDiff(rows[i-1].Date, r.Date))
		}
	}
}

func TestActuals_RowCount(t *testing.T) {
	tests := []struct {
		name string
		asOf string
		want int
	}{
		{"before period", "2024-12-31", 0},
		{"first day", "2025-01-01", 1},
		{"mid period", "2025-01-15", 15},
		{"last day", "2025-01-31", 31},
		{"after period", "2025-06-01", 31},
		{"malformed as-of", "soon", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := New(januaryPlan(tt.asOf)).Actuals(1)
			assert.Len(t, rows, tt.want)
			assert.NotNil(t, rows)
		})
	}
}

func TestActuals_SameDayNetting(t *testing.T) {
	plan := januaryPlan("2025-01-31")
	plan.Setup.StartingBalance = money(500)
	plan.Transactions = []domain.Transaction{
		{ID: "t1", Date: "2025-01-15", Label: "Salary", Amount: money(1000), Type: domain.TypeIncome, Category: domain.CategoryIncome},
		{ID: "t2", Date: "2025-01-15", Label: "Rent", Amount: money(300), Type: domain.TypeOutflow, Category: domain.CategoryBill},
		{ID: "t3", Date: "2025-01-15", Label: "ISA", Amount: money(100), Type: domain.TypeTransfer, Category: domain.CategorySavings},
	}

	rows := New(plan).Actuals(1)
	day := rows[14]

	assert.Equal(t, "2025-01-15", day.Date)
	assert.Equal(t, "Salary, Rent, ISA", day.Label)
	assert.True(t, money(1000).Equal(day.Income))
	assert.True(t, money(400).Equal(day.Outflow))
	assert.True(t, money(600).Equal(day.Net))
	assert.True(t, money(1100).Equal(day.Balance))
	assert.True(t, money(500).Equal(rows[13].Balance))
	assert.True(t, money(1100).Equal(rows[30].Balance))
}

func TestBalanceCarriesOnQuietDays(t *testing.T) {
	plan := januaryPlan("2025-01-20")
	plan.Transactions = []domain.Transaction{
		{Date: "2025-01-03", Amount: money(50), Type: domain.TypeOutflow},
		{Date: "2025-01-10", Amount: money(20), Type: domain.TypeIncome},
	}
	plan.OutflowRules = []domain.Rule{
		{ID: "food", Amount: money(40), Cadence: domain.CadenceWeekly, SeedDate: "2025-01-02", Enabled: true},
	}

	b := New(plan)
	for _, rows := range [][]domain.TimelineRow{b.Actuals(1), b.Projected(1), b.Hybrid(1)} {
		for i := 1; i < len(rows); i++ {
			if rows[i].Income.IsZero() && rows[i].Outflow.IsZero() {
				assert.True(t, rows[i].Balance.Equal(rows[i-1].Balance), rows[i].Date)
			}
		}
	}
}

func TestProjected(t *testing.T) {
	plan := januaryPlan("2025-01-01")
	plan.IncomeRules = []domain.Rule{
		{ID: "pay", Label: "Pay", Amount: money(2000), Cadence: domain.CadenceMonthly, SeedDate: "2024-12-25", Enabled: true},
	}
	plan.Bills = []domain.BillTemplate{{ID: "rent", Label: "Rent", Amount: money(900), DueDay: 1, Enabled: true}}

	rows := New(plan).Projected(1)

	require.Len(t, rows, 31)
	assert.Equal(t, "Rent", rows[0].Label)
	assert.True(t, money(100).Equal(rows[0].Balance))
	assert.True(t, money(2100).Equal(rows[24].Balance))
	assert.True(t, money(2100).Equal(rows[30].Balance))
}

func TestHybrid_ContinuousAcrossCutover(t *testing.T) {
	plan := januaryPlan("2025-01-10")
	plan.Transactions = []domain.Transaction{
		{Date: "2025-01-05", Label: "Shop", Amount: money(80), Type: domain.TypeOutflow},
		{Date: "2025-01-20", Label: "Late", Amount: money(999), Type: domain.TypeOutflow},
	}
	plan.OutflowRules = []domain.Rule{
		{ID: "food", Label: "Food", Amount: money(40), Cadence: domain.CadenceWeekly, SeedDate: "2025-01-04", Enabled: true},
	}

	rows := New(plan).Hybrid(1)
	require.Len(t, rows, 31)

	asOfDay, next := rows[9], rows[10]
	assert.Equal(t, "2025-01-10", asOfDay.Date)
	assert.True(t, money(920).Equal(asOfDay.Balance))
	assert.Equal(t, "Food", next.Label)
	assert.True(t, asOfDay.Balance.Add(next.Net).Equal(next.Balance))

	// Events before the cutover and ledger rows after it are ignored.
	assert.True(t, rows[3].Outflow.IsZero())
	assert.True(t, money(40).Equal(rows[17].Outflow))
	assert.True(t, rows[19].Outflow.IsZero())
}

func TestHybrid_BuilderAsOfOverridesSetup(t *testing.T) {
	plan := januaryPlan("2025-01-31")
	plan.Transactions = []domain.Transaction{{Date: "2025-01-20", Amount: money(100), Type: domain.TypeOutflow}}

	rows := Builder{Plan: plan, AsOf: "2025-01-15"}.Hybrid(1)
	assert.True(t, rows[19].Outflow.IsZero())

	rows = New(plan).Hybrid(1)
	assert.True(t, money(100).Equal(rows[19].Outflow))
}

func TestWarningFlag(t *testing.T) {
	plan := januaryPlan("2025-01-31")
	plan.Setup.ExpectedMinBalance = money(950)
	plan.Transactions = []domain.Transaction{
		{Date: "2025-01-02", Amount: money(50), Type: domain.TypeOutflow},
		{Date: "2025-01-03", Amount: money(1), Type: domain.TypeOutflow},
	}

	rows := New(plan).Actuals(1)
	assert.False(t, rows[0].Warning)
	assert.False(t, rows[1].Warning, "equal to the minimum is not a warning")
	assert.True(t, rows[2].Warning)

	plan.Setup.ExpectedMinBalance = decimal.Zero
	plan.Setup.StartingBalance = money(-10)
	for _, r := range New(plan).Actuals(1) {
		assert.False(t, r.Warning)
	}
}

func TestOpeningBalance(t *testing.T) {
	plan := januaryPlan("2025-01-31")
	plan.Transactions = []domain.Transaction{{Date: "2025-01-10", Amount: money(300), Type: domain.TypeOutflow}}
	plan.Bills = []domain.BillTemplate{{ID: "rent", Amount: money(100), DueDay: 1, Enabled: true}}

	b := New(plan)
	assert.True(t, money(1000).Equal(b.OpeningBalance(2)))

	plan.Setup.RollForwardBalance = true
	assert.True(t, money(700).Equal(b.OpeningBalance(2)))
	assert.True(t, money(1000).Equal(b.OpeningBalance(1)))

	override := money(42)
	plan.PeriodOverrides = []domain.PeriodOverride{{PeriodID: 2, StartingBalance: &override}}
	assert.True(t, money(42).Equal(b.OpeningBalance(2)))
	assert.True(t, money(42).Equal(b.Projected(2)[0].Balance.Add(money(100))))
}

func TestOpeningBalance_CarriesAcrossChain(t *testing.T) {
	plan := januaryPlan("2025-04-01")
	plan.Setup.RollForwardBalance = true
	plan.Periods = append(plan.Periods, domain.Period{ID: 3, Label: "March", Start: "2025-03-01", End: "2025-03-31"})
	plan.Transactions = []domain.Transaction{
		{Date: "2025-01-10", Amount: money(300), Type: domain.TypeOutflow},
		{Date: "2025-02-14", Amount: money(50), Type: domain.TypeIncome},
		{Date: "2025-03-02", Amount: money(20), Type: domain.TypeTransfer},
	}

	b := New(plan)
	assert.True(t, money(1000).Equal(b.OpeningBalance(1)))
	assert.True(t, money(700).Equal(b.OpeningBalance(2)))
	assert.True(t, money(750).Equal(b.OpeningBalance(3)))
	assert.True(t, money(730).Equal(Ending(b.Hybrid(3), b.OpeningBalance(3))))

	override := money(42)
	plan.PeriodOverrides = []domain.PeriodOverride{{PeriodID: 2, StartingBalance: &override}}
	assert.True(t, money(42).Equal(b.OpeningBalance(2)))
	assert.True(t, money(92).Equal(b.OpeningBalance(3)))
}

func TestOpeningBalance_ManyPeriods(t *testing.T) {
	const n = 36
	plan := &domain.Plan{
		Setup: domain.Setup{AsOfDate: "2030-01-01", StartingBalance: money(1000), RollForwardBalance: true},
	}
	first := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < n; i++ {
		start := first.AddDate(0, i, 0)
		end := start.AddDate(0, 1, -1)
		plan.Periods = append(plan.Periods, domain.Period{
			ID:    i + 1,
			Label: start.Format("Jan 2006"),
			Start: start.Format("2006-01-02"),
			End:   end.Format("2006-01-02"),
		})
		plan.Transactions = append(plan.Transactions, domain.Transaction{
			ID:     fmt.Sprintf("t%d", i+1),
			Date:   start.AddDate(0, 0, 4).Format("2006-01-02"),
			Amount: money(10),
			Type:   domain.TypeOutflow,
		})
	}

	b := New(plan)
	assert.True(t, money(1000-10*(n-1)).Equal(b.OpeningBalance(n)))

	rows := b.Hybrid(n)
	require.NotEmpty(t, rows)
	assert.True(t, money(1000-10*n).Equal(rows[len(rows)-1].Balance))
}

func TestUnknownOrMalformedPeriod(t *testing.T) {
	plan := januaryPlan("2025-01-10")
	plan.Periods = append(plan.Periods, domain.Period{ID: 3, Start: "2025-03-01", End: "2025-02-01"})

	b := New(plan)
	for _, id := range []int{3, 99} {
		assert.Empty(t, b.Actuals(id))
		assert.Empty(t, b.Projected(id))
		assert.Empty(t, b.Hybrid(id))
	}
	assert.Empty(t, New(nil).Hybrid(1))
}

func TestLowestAndEnding(t *testing.T) {
	_, ok := Lowest(nil)
	assert.False(t, ok)
	assert.True(t, money(5).Equal(Ending(nil, money(5))))

	rows := []domain.TimelineRow{
		{Date: "2025-01-01", Balance: money(10)},
		{Date: "2025-01-02", Balance: money(-3)},
		{Date: "2025-01-03", Balance: money(-3)},
		{Date: "2025-01-04", Balance: money(7)},
	}
	low, ok := Lowest(rows)
	require.True(t, ok)
	assert.Equal(t, "2025-01-02", low.Date)
	assert.True(t, money(7).Equal(Ending(rows, money(0))))
}

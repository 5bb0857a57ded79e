package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPlan() *Plan {
	return &Plan{
		Periods: []Period{
			{ID: 1, Start: "2025-01-01", End: "2025-01-31"},
			{ID: 2, Start: "2025-02-01", End: "2025-02-28"},
		},
		Bills: []BillTemplate{{ID: "rent"}, {ID: "power"}},
		PeriodOverrides: []PeriodOverride{
			{PeriodID: 2, DisabledBills: []string{"power"}},
		},
	}
}

func TestPlanLookups(t *testing.T) {
	plan := testPlan()

	p, ok := plan.PeriodByID(2)
	require.True(t, ok)
	assert.Equal(t, "2025-02-01", p.Start)
	_, ok = plan.PeriodByID(3)
	assert.False(t, ok)

	assert.Equal(t, 1, plan.PeriodIndex(2))
	assert.Equal(t, -1, plan.PeriodIndex(9))

	assert.Equal(t, map[string]bool{"rent": true, "power": true}, plan.BillIDs())
}

func TestPeriodContaining(t *testing.T) {
	plan := testPlan()

	tests := []struct {
		date string
		want int
		ok   bool
	}{
		{"2025-01-01", 1, true},
		{"2025-01-31", 1, true},
		{"2025-02-14", 2, true},
		{"2024-12-31", 0, false},
		{"2025-03-01", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			p, ok := plan.PeriodContaining(tt.date)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, p.ID)
		})
	}
}

func TestPeriodOverrides(t *testing.T) {
	plan := testPlan()

	o, ok := plan.PeriodOverrideFor(2)
	require.True(t, ok)
	assert.True(t, o.BillDisabled("power"))
	assert.False(t, o.BillDisabled("rent"))

	_, ok = plan.PeriodOverrideFor(1)
	assert.False(t, ok)
}

func TestEnums(t *testing.T) {
	assert.True(t, CadenceBiweekly.Valid())
	assert.False(t, Cadence("daily").Valid())

	assert.True(t, TypeTransfer.Valid())
	assert.False(t, TransactionType("refund").Valid())

	assert.True(t, TypeOutflow.Reduces())
	assert.True(t, TypeTransfer.Reduces())
	assert.False(t, TypeIncome.Reduces())
}

func TestMoneyJSON(t *testing.T) {
	tx := Transaction{ID: "t1", Date: "2025-01-05", Amount: decimal.RequireFromString("12.50"), Type: TypeOutflow}

	data, err := json.Marshal(tx)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"amount":12.5`)

	var back Transaction
	require.NoError(t, json.Unmarshal([]byte(`{"amount": 19.99}`), &back))
	assert.True(t, back.Amount.Equal(decimal.RequireFromString("19.99")))
}

package subscription

import (
	"testing"

	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) domain.Money {
	return decimal.RequireFromString(s)
}

func charges(label, amount string, category domain.Category, dates ...string) []domain.Transaction {
	txs := make([]domain.Transaction, 0, len(dates))
	for _, date := range dates {
		txs = append(txs, domain.Transaction{
			Date: date, Label: label, Amount: d(amount),
			Type: domain.TypeOutflow, Category: category,
		})
	}
	return txs
}

func TestNormalizeMerchant(t *testing.T) {
	tests := []struct {
		label string
		want  string
	}{
		{"NETFLIX.COM", "netflix"},
		{"Card Payment to PureGym Ltd", "puregym"},
		{"Spotify-UK", "spotify"},
		{"  Amazon   Prime  ", "amazon prime"},
		{"DIRECT DEBIT", ""},
		{"Ltd", "ltd"},
		{"Acme Widgets Co. Ltd.", "acme widgets"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeMerchant(tt.label))
		})
	}
}

func TestDetectRecurring_Cadences(t *testing.T) {
	var txs []domain.Transaction
	txs = append(txs, charges("Weekly Box", "20", domain.CategoryOther, "2025-01-01", "2025-01-08", "2025-01-15", "2025-01-22")...)
	txs = append(txs, charges("Cleaner", "40", domain.CategoryOther, "2025-01-03", "2025-01-17", "2025-01-31")...)
	txs = append(txs, charges("Phone Co", "15", domain.CategoryBill, "2025-01-28", "2025-02-28", "2025-03-28")...)
	txs = append(txs, charges("Random Shop", "15", domain.CategoryOther, "2025-01-01", "2025-01-04", "2025-01-24")...)

	got := DetectRecurring(txs, DefaultOptions())

	require.Len(t, got, 3)
	byKey := map[string]Recurring{}
	for _, r := range got {
		byKey[r.MerchantKey] = r
	}
	assert.Equal(t, domain.CadenceWeekly, byKey["weekly box"].Cadence)
	assert.Equal(t, domain.CadenceBiweekly, byKey["cleaner"].Cadence)
	assert.Equal(t, domain.CadenceMonthly, byKey["phone"].Cadence)
	assert.Equal(t, 100, byKey["phone"].Confidence)
	assert.Equal(t, "2025-03-28", byKey["phone"].LastDate)
	assert.Equal(t, "2025-01-28", byKey["phone"].FirstDate)
	assert.Equal(t, 3, byKey["phone"].Occurrences)
	assert.Equal(t, domain.CategoryBill, byKey["phone"].Category)

	assert.Equal(t, "cleaner", got[0].MerchantKey, "ordered by merchant key")
}

func TestDetectRecurring_Confidence(t *testing.T) {
	t.Run("amount spread lowers confidence", func(t *testing.T) {
		txs := charges("Box", "10", domain.CategoryOther, "2025-01-01", "2025-02-01")
		txs = append(txs, charges("Box", "20", domain.CategoryOther, "2025-03-01", "2025-04-01")...)

		got := DetectRecurring(txs, DefaultOptions())
		require.Len(t, got, 1)
		// Gaps are all monthly; amounts have cv 1/3.
		assert.Equal(t, 87, got[0].Confidence)
		assert.True(t, d("15").Equal(got[0].AverageAmount))
	})

	t.Run("irregular gaps lower confidence", func(t *testing.T) {
		txs := charges("Box", "10", domain.CategoryOther, "2025-01-01", "2025-01-15", "2025-01-29", "2025-02-28")

		got := DetectRecurring(txs, DefaultOptions())
		require.Len(t, got, 1)
		assert.Equal(t, domain.CadenceBiweekly, got[0].Cadence)
		assert.Equal(t, 80, got[0].Confidence)
	})
}

func TestDetectRecurring_Filters(t *testing.T) {
	txs := charges("Netflix", "9.99", domain.CategoryAllowance, "2025-01-05", "2025-02-05")
	assert.Empty(t, DetectRecurring(txs, DefaultOptions()), "two charges are not enough")

	opts := DefaultOptions()
	opts.MinOccurrences = 2
	assert.Len(t, DetectRecurring(txs, opts), 1)

	income := charges("Netflix", "9.99", domain.CategoryIncome, "2025-01-05", "2025-02-05", "2025-03-05")
	for i := range income {
		income[i].Type = domain.TypeIncome
	}
	assert.Empty(t, DetectRecurring(income, DefaultOptions()))

	sameDay := charges("Netflix", "9.99", domain.CategoryAllowance, "2025-01-05", "2025-01-05", "2025-01-05")
	assert.Empty(t, DetectRecurring(sameDay, DefaultOptions()))
}

func ledger() []domain.Transaction {
	var txs []domain.Transaction
	txs = append(txs, charges("NETFLIX.COM", "10.99", domain.CategoryAllowance, "2025-01-05", "2025-02-05", "2025-03-05", "2025-04-05")...)
	txs = append(txs, charges("PureGym Ltd", "55", domain.CategoryAllowance, "2025-02-01", "2025-03-01", "2025-04-01")...)
	txs = append(txs, charges("Payment to Landlord Rent", "900", domain.CategoryBill, "2025-02-01", "2025-03-01", "2025-04-01")...)
	txs = append(txs, charges("Costa", "4.50", domain.CategoryAllowance, "2025-03-30", "2025-04-06", "2025-04-13")...)
	txs = append(txs, charges("Spotify", "11.99", domain.CategoryAllowance, "2024-10-01", "2024-11-01", "2024-12-01")...)
	txs = append(txs, charges("Bike Club", "50", domain.CategoryAllowance, "2025-02-10", "2025-03-10", "2025-04-10")...)
	txs = append(txs, charges("Deli", "8", domain.CategoryOther, "2025-02-10", "2025-03-10", "2025-04-10")...)
	return txs
}

func TestDetect(t *testing.T) {
	got := Detect(ledger(), "2025-04-20", DefaultOptions())

	keys := make([]string, 0, len(got))
	for _, s := range got {
		keys = append(keys, s.MerchantKey)
	}
	assert.Equal(t, []string{"puregym", "costa", "spotify", "netflix"}, keys)

	puregym := got[0]
	assert.Equal(t, domain.RecommendCancel, puregym.Recommendation)
	assert.Equal(t, "high cost", puregym.Reason)
	assert.True(t, d("660").Equal(puregym.AnnualCost))

	costa := got[1]
	assert.Equal(t, domain.CadenceWeekly, costa.Frequency)
	assert.True(t, d("19.49").Equal(costa.MonthlyCost))
	assert.Equal(t, domain.RecommendKeep, costa.Recommendation)
	assert.Equal(t, "regular and affordable", costa.Reason)

	spotify := got[2]
	assert.Equal(t, domain.RecommendCancel, spotify.Recommendation)
	assert.Equal(t, "charge appears to have lapsed", spotify.Reason)

	netflix := got[3]
	assert.Equal(t, domain.RecommendKeep, netflix.Recommendation)
	assert.Equal(t, "regular and low cost", netflix.Reason)
	assert.Equal(t, 100, netflix.Confidence)
	assert.Equal(t, 4, netflix.Occurrences)
	assert.Equal(t, "2025-04-05", netflix.LastChargeDate)
	assert.True(t, d("131.88").Equal(netflix.AnnualCost))
}

func TestClassify_Recommendations(t *testing.T) {
	base := Recurring{
		MerchantKey: "netflix", Cadence: domain.CadenceMonthly, Confidence: 75,
		Occurrences: 3, LastDate: "2025-04-01",
	}
	tests := []struct {
		name       string
		amount     string
		confidence int
		lastDate   string
		want       domain.Recommendation
	}{
		{"lapsed beats cheap", "5", 95, "2025-01-01", domain.RecommendCancel},
		{"exactly twice the gap is not lapsed", "5", 95, "2025-02-19", domain.RecommendKeep},
		{"high cost boundary", "50", 95, "2025-04-01", domain.RecommendCancel},
		{"cheap and confident", "15", 80, "2025-04-01", domain.RecommendKeep},
		{"affordable", "30", 70, "2025-04-01", domain.RecommendKeep},
		{"affordable but unsure", "30", 69, "2025-04-01", domain.RecommendReview},
		{"mid cost", "40", 95, "2025-04-01", domain.RecommendReview},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := base
			r.AverageAmount = d(tt.amount)
			r.Confidence = tt.confidence
			r.LastDate = tt.lastDate

			got := Classify([]Recurring{r}, "2025-04-20", DefaultOptions())
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Recommendation)
		})
	}
}

func TestClassify_Eligibility(t *testing.T) {
	tests := []struct {
		name string
		r    Recurring
		want bool
	}{
		{"vocabulary match", Recurring{MerchantKey: "adobe creative", Category: domain.CategoryOther, AverageAmount: d("60"), Confidence: 10}, true},
		{"vocabulary beats exclusion", Recurring{MerchantKey: "gym water", Category: domain.CategoryBill, AverageAmount: d("20"), Confidence: 10}, true},
		{"exclusion", Recurring{MerchantKey: "british gas", Category: domain.CategoryAllowance, AverageAmount: d("20"), Confidence: 99}, false},
		{"fallback", Recurring{MerchantKey: "bakery", Category: domain.CategoryAllowance, AverageAmount: d("45"), Confidence: 70}, true},
		{"fallback too expensive", Recurring{MerchantKey: "bakery", Category: domain.CategoryAllowance, AverageAmount: d("45.01"), Confidence: 90}, false},
		{"fallback unsure", Recurring{MerchantKey: "bakery", Category: domain.CategoryAllowance, AverageAmount: d("5"), Confidence: 69}, false},
		{"fallback wrong category", Recurring{MerchantKey: "bakery", Category: domain.CategoryBill, AverageAmount: d("5"), Confidence: 99}, false},
		{"whole words only", Recurring{MerchantKey: "vegas diner", Category: domain.CategoryAllowance, AverageAmount: d("5"), Confidence: 99}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.r.Cadence = domain.CadenceMonthly
			tt.r.LastDate = "2025-04-01"
			got := Classify([]Recurring{tt.r}, "2025-04-10", DefaultOptions())
			assert.Equal(t, tt.want, len(got) == 1)
		})
	}
}

func TestMonthlyCost(t *testing.T) {
	assert.True(t, d("43.30").Equal(MonthlyCost(d("10"), domain.CadenceWeekly)))
	assert.True(t, d("21.70").Equal(MonthlyCost(d("10"), domain.CadenceBiweekly)))
	assert.True(t, d("10").Equal(MonthlyCost(d("10"), domain.CadenceMonthly)))
}

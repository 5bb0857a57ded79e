package subscription

import (
	"math"
	"sort"

	"github.com/dvloznov/cashflow-engine/internal/calendar"
	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// Recurring is a merchant whose outflows repeat on a recognisable cadence.
type Recurring struct {
	MerchantKey   string          `json:"merchantKey"`
	Label         string          `json:"label"`
	Category      domain.Category `json:"category"`
	Cadence       domain.Cadence  `json:"cadence"`
	Confidence    int             `json:"confidence"`
	Occurrences   int             `json:"occurrences"`
	AverageAmount domain.Money    `json:"averageAmount"`
	MedianGap     float64         `json:"medianGap"`
	FirstDate     string          `json:"firstDate"`
	LastDate      string          `json:"lastDate"`
}

type gapRange struct {
	cadence  domain.Cadence
	min, max float64
	nominal  int
}

// gapRanges maps a median gap in days to a cadence.
var gapRanges = []gapRange{
	{domain.CadenceWeekly, 5, 9, 7},
	{domain.CadenceBiweekly, 12, 17, 14},
	{domain.CadenceMonthly, 26, 35, 30},
}

func rangeFor(c domain.Cadence) (gapRange, bool) {
	for _, g := range gapRanges {
		if g.cadence == c {
			return g, true
		}
	}
	return gapRange{}, false
}

// DetectRecurring groups outflow transactions by merchant and keeps the groups whose
// median gap falls in a cadence range. Results are ordered by merchant key.
func DetectRecurring(txs []domain.Transaction, opts Options) []Recurring {
	opts = opts.withDefaults()

	groups := map[string][]domain.Transaction{}
	for _, tx := range txs {
		if tx.Type != domain.TypeOutflow || !calendar.Valid(tx.Date) {
			continue
		}
		key := NormalizeMerchant(tx.Label)
		if key == "" {
			continue
		}
		groups[key] = append(groups[key], tx)
	}

	out := []Recurring{}
	for key, group := range groups {
		if len(group) < opts.MinOccurrences {
			continue
		}
		if r, ok := analyze(key, group); ok {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MerchantKey < out[j].MerchantKey })
	return out
}

func analyze(key string, group []domain.Transaction) (Recurring, bool) {
	sort.SliceStable(group, func(i, j int) bool { return group[i].Date < group[j].Date })

	var gaps []float64
	for i := 1; i < len(group); i++ {
		if g := calendar.DayDiff(group[i-1].Date, group[i].Date); g > 0 {
			gaps = append(gaps, float64(g))
		}
	}
	if len(gaps) == 0 {
		return Recurring{}, false
	}

	median := medianOf(gaps)
	var match gapRange
	found := false
	for _, g := range gapRanges {
		if median >= g.min && median <= g.max {
			match, found = g, true
			break
		}
	}
	if !found {
		return Recurring{}, false
	}

	inRange := 0
	for _, g := range gaps {
		if g >= match.min && g <= match.max {
			inRange++
		}
	}
	gapScore := float64(inRange) / float64(len(gaps))

	amounts := make([]float64, len(group))
	total := decimal.Zero
	for i, tx := range group {
		amounts[i] = tx.Amount.InexactFloat64()
		total = total.Add(tx.Amount)
	}
	amountScore := 1 - math.Min(coefficientOfVariation(amounts), 1)

	return Recurring{
		MerchantKey:   key,
		Label:         group[len(group)-1].Label,
		Category:      mostCommonCategory(group),
		Cadence:       match.cadence,
		Confidence:    int(math.Round(100 * (0.6*gapScore + 0.4*amountScore))),
		Occurrences:   len(group),
		AverageAmount: total.Div(decimal.NewFromInt(int64(len(group)))).Round(2),
		MedianGap:     median,
		FirstDate:     group[0].Date,
		LastDate:      group[len(group)-1].Date,
	}, true
}

func medianOf(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func coefficientOfVariation(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	if mean == 0 {
		return 0
	}
	var sumSq float64
	for _, v := range values {
		d := v - mean
		sumSq += d * d
	}
	return math.Sqrt(sumSq/float64(len(values))) / mean
}

// mostCommonCategory picks the most frequent category, the alphabetically first on ties.
func mostCommonCategory(group []domain.Transaction) domain.Category {
	counts := map[domain.Category]int{}
	for _, tx := range group {
		counts[tx.Category]++
	}
	var best domain.Category
	bestCount := 0
	for c, n := range counts {
		if n > bestCount || (n == bestCount && c < best) {
			best, bestCount = c, n
		}
	}
	return best
}

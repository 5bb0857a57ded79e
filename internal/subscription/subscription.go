// Package subscription finds recurring card and direct-debit charges in a ledger and
// decides which of them are subscriptions worth keeping.
package subscription

import (
	"sort"

	"github.com/dvloznov/cashflow-engine/internal/calendar"
	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// Options configures both detection stages. Zero values fall back to the defaults.
type Options struct {
	MinOccurrences int
	// Vocabulary terms mark a merchant as a subscription outright.
	Vocabulary []string
	// Exclusions mark a merchant as not a subscription unless the vocabulary matched.
	Exclusions []string
}

// DefaultOptions requires three charges and uses the built-in vocabularies.
func DefaultOptions() Options {
	return Options{
		MinOccurrences: 3,
		Vocabulary:     defaultVocabulary,
		Exclusions:     defaultExclusions,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.MinOccurrences < 2 {
		o.MinOccurrences = def.MinOccurrences
	}
	if len(o.Vocabulary) == 0 {
		o.Vocabulary = def.Vocabulary
	}
	if len(o.Exclusions) == 0 {
		o.Exclusions = def.Exclusions
	}
	return o
}

var defaultVocabulary = []string{
	// streaming
	"netflix", "spotify", "disney", "prime video", "amazon prime", "now tv", "youtube",
	"apple music", "apple tv", "audible", "deezer", "tidal", "paramount", "crunchyroll",
	"britbox", "dazn",
	// software and storage
	"adobe", "microsoft", "office 365", "icloud", "google one", "google storage", "dropbox",
	"notion", "slack", "zoom", "github", "openai", "chatgpt", "canva", "1password",
	"lastpass", "nordvpn", "expressvpn",
	// fitness and wellbeing
	"gym", "puregym", "fitness", "peloton", "strava", "headspace", "calm",
	// other
	"duolingo", "patreon", "substack", "xbox", "playstation", "nintendo", "subscription",
	"membership", "streaming",
}

var defaultExclusions = []string{
	"utility", "utilities", "electric", "electricity", "energy", "gas", "water", "rent",
	"mortgage", "insurance", "council tax", "tax", "hmrc", "loan", "transfer",
}

// Thresholds for the fallback heuristic and recommendations.
var (
	fallbackMaxAmount = decimal.NewFromInt(45)
	highMonthlyCost   = decimal.NewFromInt(50)
	cheapMonthlyCost  = decimal.NewFromInt(15)
	modestMonthlyCost = decimal.NewFromInt(30)
	weeklyToMonthly   = decimal.RequireFromString("4.33")
	biweeklyToMonthly = decimal.RequireFromString("2.17")
	monthsPerYear     = decimal.NewFromInt(12)
)

const fallbackConfidence = 70

const (
	reasonLapsed     = "charge appears to have lapsed"
	reasonHighCost   = "high cost"
	reasonCheap      = "regular and low cost"
	reasonAffordable = "regular and affordable"
	reasonReview     = "worth reviewing"
)

// Detect runs recurring detection and subscription classification over the ledger.
func Detect(txs []domain.Transaction, asOf string, opts Options) []domain.DetectedSubscription {
	return Classify(DetectRecurring(txs, opts), asOf, opts)
}

// Classify keeps the recurring charges that look like subscriptions and attaches a
// cost and a recommendation to each. Results are ordered by monthly cost, highest
// first.
func Classify(recurring []Recurring, asOf string, opts Options) []domain.DetectedSubscription {
	opts = opts.withDefaults()

	out := []domain.DetectedSubscription{}
	for _, r := range recurring {
		if !isSubscription(r, opts) {
			continue
		}
		monthly := MonthlyCost(r.AverageAmount, r.Cadence)
		rec, reason := recommend(r, monthly, asOf)
		out = append(out, domain.DetectedSubscription{
			MerchantKey:    r.MerchantKey,
			AverageAmount:  r.AverageAmount,
			Frequency:      r.Cadence,
			Confidence:     r.Confidence,
			Occurrences:    r.Occurrences,
			LastChargeDate: r.LastDate,
			MonthlyCost:    monthly,
			AnnualCost:     monthly.Mul(monthsPerYear),
			Recommendation: rec,
			Reason:         reason,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if c := out[i].MonthlyCost.Cmp(out[j].MonthlyCost); c != 0 {
			return c > 0
		}
		return out[i].MerchantKey < out[j].MerchantKey
	})
	return out
}

// MonthlyCost normalizes a per-charge amount to a monthly figure.
func MonthlyCost(amount domain.Money, c domain.Cadence) domain.Money {
	switch c {
	case domain.CadenceWeekly:
		return amount.Mul(weeklyToMonthly).Round(2)
	case domain.CadenceBiweekly:
		return amount.Mul(biweeklyToMonthly).Round(2)
	}
	return amount.Round(2)
}

func isSubscription(r Recurring, opts Options) bool {
	for _, term := range opts.Vocabulary {
		if hasTerm(r.MerchantKey, term) {
			return true
		}
	}
	for _, term := range opts.Exclusions {
		if hasTerm(r.MerchantKey, term) {
			return false
		}
	}
	return r.Category == domain.CategoryAllowance &&
		r.AverageAmount.LessThanOrEqual(fallbackMaxAmount) &&
		r.Confidence >= fallbackConfidence
}

// recommend applies the rules in order; the first match wins.
func recommend(r Recurring, monthly domain.Money, asOf string) (domain.Recommendation, string) {
	if g, ok := rangeFor(r.Cadence); ok && calendar.Valid(asOf) {
		if calendar.DayDiff(r.LastDate, asOf) > 2*g.nominal {
			return domain.RecommendCancel, reasonLapsed
		}
	}
	switch {
	case monthly.GreaterThanOrEqual(highMonthlyCost):
		return domain.RecommendCancel, reasonHighCost
	case r.Confidence >= 80 && monthly.LessThanOrEqual(cheapMonthlyCost):
		return domain.RecommendKeep, reasonCheap
	case r.Confidence >= 70 && monthly.LessThanOrEqual(modestMonthlyCost):
		return domain.RecommendKeep, reasonAffordable
	}
	return domain.RecommendReview, reasonReview
}

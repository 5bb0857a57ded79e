package domain

import "github.com/shopspring/decimal"

// CashflowEvent is a single dated occurrence expanded from a rule or bill.
// ID is "<sourceId>-<YYYY-MM-DD>" and stays stable across regenerations.
type CashflowEvent struct {
	ID       string          `json:"id"`
	Date     string          `json:"date"`
	Label    string          `json:"label"`
	Amount   Money           `json:"amount"`
	Type     TransactionType `json:"type"`
	Category Category        `json:"category"`
	SourceID string          `json:"sourceId"`
}

// TimelineRow is one calendar day of a running-balance timeline.
type TimelineRow struct {
	Date    string `json:"date"`
	Label   string `json:"label"`
	Income  Money  `json:"income"`
	Outflow Money  `json:"outflow"`
	Net     Money  `json:"net"`
	Balance Money  `json:"balance"`
	Warning bool   `json:"warning"`
}

// DetectedAnomaly is a category whose spend jumped against its rolling baseline.
type DetectedAnomaly struct {
	Category      Category        `json:"category"`
	CurrentAmount Money           `json:"currentAmount"`
	AvgAmount     Money           `json:"avgAmount"`
	Ratio         decimal.Decimal `json:"ratio"`
	PeriodsUsed   int             `json:"periodsUsed"`
}

// Recommendation is the suggested action for a detected subscription.
type Recommendation string

const (
	RecommendKeep   Recommendation = "keep"
	RecommendReview Recommendation = "review"
	RecommendCancel Recommendation = "cancel"
)

// DetectedSubscription is a recurring charge that looks like a subscription.
type DetectedSubscription struct {
	MerchantKey    string         `json:"merchantKey"`
	AverageAmount  Money          `json:"averageAmount"`
	Frequency      Cadence        `json:"frequency"`
	Confidence     int            `json:"confidence"`
	Occurrences    int            `json:"occurrences"`
	LastChargeDate string         `json:"lastChargeDate"`
	MonthlyCost    Money          `json:"monthlyCost"`
	AnnualCost     Money          `json:"annualCost"`
	Recommendation Recommendation `json:"recommendation"`
	Reason         string         `json:"reason"`
}

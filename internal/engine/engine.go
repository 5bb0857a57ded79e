// Package engine runs the full analysis of a plan for one period: event expansion,
// timelines, variance summary, anomalies and subscriptions.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dvloznov/cashflow-engine/internal/anomaly"
	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/dvloznov/cashflow-engine/internal/logger"
	"github.com/dvloznov/cashflow-engine/internal/recurrence"
	"github.com/dvloznov/cashflow-engine/internal/subscription"
	"github.com/dvloznov/cashflow-engine/internal/variance"
)

// ErrNilPlan is returned when Analyze is called without a plan.
var ErrNilPlan = errors.New("engine: nil plan")

// Request selects what to analyze. Zero values fall back to the plan's own settings
// and the detectors' defaults.
type Request struct {
	PeriodID     int                  `json:"periodId,omitempty"`
	AsOf         string               `json:"asOf,omitempty"`
	Anomaly      anomaly.Options      `json:"-"`
	Subscription subscription.Options `json:"-"`
}

// Analysis is everything computed for one period.
type Analysis struct {
	PeriodID       int                           `json:"periodId"`
	AsOf           string                        `json:"asOf"`
	OpeningBalance domain.Money                  `json:"openingBalance"`
	Events         []domain.CashflowEvent        `json:"events"`
	Amendments     []recurrence.Amendment        `json:"amendments"`
	Actuals        []domain.TimelineRow          `json:"actuals"`
	Projected      []domain.TimelineRow          `json:"projected"`
	Hybrid         []domain.TimelineRow          `json:"hybrid"`
	Summary        variance.Summary              `json:"summary"`
	Anomalies      []domain.DetectedAnomaly      `json:"anomalies"`
	Subscriptions  []domain.DetectedSubscription `json:"subscriptions"`
}

// Analyze runs the analysis pipeline over plan.
func Analyze(ctx context.Context, plan *domain.Plan, req Request) (*Analysis, error) {
	if plan == nil {
		return nil, ErrNilPlan
	}

	start := time.Now()
	state := &AnalysisState{Plan: plan, Request: req, Result: &Analysis{}}
	if err := NewAnalysisPipeline().Execute(ctx, state); err != nil {
		return nil, fmt.Errorf("Analyze: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Int("period_id", state.Result.PeriodID).
		Str("as_of", state.Result.AsOf).
		Int("events", len(state.Result.Events)).
		Int("anomalies", len(state.Result.Anomalies)).
		Int("subscriptions", len(state.Result.Subscriptions)).
		Str("health", string(state.Result.Summary.Health)).
		Dur("duration", time.Since(start)).
		Msg("analysis complete")

	return state.Result, nil
}

// Resolve returns the period and as-of date a request refers to. An empty AsOf
// falls back to the plan's as-of date.
func Resolve(plan *domain.Plan, req Request) (periodID int, asOf string) {
	asOf = req.AsOf
	if asOf == "" {
		asOf = plan.Setup.AsOfDate
	}
	return CurrentPeriod(plan, req.PeriodID, asOf), asOf
}

// History returns the transactions dated on or before asOf.
func History(txs []domain.Transaction, asOf string) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(txs))
	for _, tx := range txs {
		if tx.Date <= asOf {
			out = append(out, tx)
		}
	}
	return out
}

// CurrentPeriod resolves the period to analyze: requested when it exists, else the
// period containing asOf, else the plan's selected period.
func CurrentPeriod(plan *domain.Plan, requested int, asOf string) int {
	if requested != 0 {
		if _, ok := plan.PeriodByID(requested); ok {
			return requested
		}
	}
	if p, ok := plan.PeriodContaining(asOf); ok {
		return p.ID
	}
	return plan.Setup.SelectedPeriodID
}

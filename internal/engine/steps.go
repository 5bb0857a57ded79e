package engine

import (
	"context"
	"fmt"

	"github.com/dvloznov/cashflow-engine/internal/anomaly"
	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/dvloznov/cashflow-engine/internal/logger"
	"github.com/dvloznov/cashflow-engine/internal/recurrence"
	"github.com/dvloznov/cashflow-engine/internal/subscription"
	"github.com/dvloznov/cashflow-engine/internal/timeline"
	"github.com/dvloznov/cashflow-engine/internal/variance"
)

// AnalysisStep represents a single step in the analysis pipeline.
type AnalysisStep interface {
	Execute(ctx context.Context, state *AnalysisState) error
}

// AnalysisState holds the shared state across all pipeline steps.
type AnalysisState struct {
	Plan    *domain.Plan
	Request Request
	Result  *Analysis
}

// ResolvePeriodStep picks the as-of date and the period under analysis.
type ResolvePeriodStep struct{}

func (s *ResolvePeriodStep) Execute(ctx context.Context, state *AnalysisState) error {
	state.Result.PeriodID, state.Result.AsOf = Resolve(state.Plan, state.Request)
	return nil
}

// ExpandEventsStep generates the period's events and records what overrides changed.
type ExpandEventsStep struct{}

func (s *ExpandEventsStep) Execute(ctx context.Context, state *AnalysisState) error {
	state.Result.Events = recurrence.Expand(state.Plan, state.Result.PeriodID)
	state.Result.Amendments = recurrence.Diff(state.Plan, state.Result.PeriodID)
	return nil
}

// BuildTimelinesStep builds the actuals, projected and hybrid timelines.
type BuildTimelinesStep struct{}

func (s *BuildTimelinesStep) Execute(ctx context.Context, state *AnalysisState) error {
	b := timeline.Builder{Plan: state.Plan, AsOf: state.Result.AsOf}
	id := state.Result.PeriodID
	state.Result.OpeningBalance = b.OpeningBalance(id)
	state.Result.Actuals = b.Actuals(id)
	state.Result.Projected = b.Projected(id)
	state.Result.Hybrid = b.Hybrid(id)
	return nil
}

// SummarizeStep computes the period's variance and health summary.
type SummarizeStep struct{}

func (s *SummarizeStep) Execute(ctx context.Context, state *AnalysisState) error {
	state.Result.Summary = variance.Summarize(state.Plan, state.Result.PeriodID, state.Result.AsOf)
	return nil
}

// DetectAnomaliesStep flags categories that jumped against their rolling average.
type DetectAnomaliesStep struct{}

func (s *DetectAnomaliesStep) Execute(ctx context.Context, state *AnalysisState) error {
	opts := state.Request.Anomaly
	if opts.RatioThreshold.IsZero() {
		opts = anomaly.DefaultOptions()
	}
	state.Result.Anomalies = anomaly.Detect(state.Plan, state.Result.PeriodID, opts)
	return nil
}

// DetectSubscriptionsStep classifies recurring charges seen up to the as-of date.
type DetectSubscriptionsStep struct{}

func (s *DetectSubscriptionsStep) Execute(ctx context.Context, state *AnalysisState) error {
	history := History(state.Plan.Transactions, state.Result.AsOf)
	state.Result.Subscriptions = subscription.Detect(history, state.Result.AsOf, state.Request.Subscription)
	return nil
}

// Pipeline executes a sequence of steps in order.
type Pipeline struct {
	steps []AnalysisStep
}

// NewPipeline creates a new pipeline with the given steps.
func NewPipeline(steps ...AnalysisStep) *Pipeline {
	return &Pipeline{steps: steps}
}

// Execute runs all steps sequentially, stopping early if ctx is cancelled.
func (p *Pipeline) Execute(ctx context.Context, state *AnalysisState) error {
	log := logger.FromContext(ctx)
	for i, step := range p.steps {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
		if err := step.Execute(ctx, state); err != nil {
			return fmt.Errorf("pipeline step %d failed: %w", i+1, err)
		}
		log.Debug().Int("step", i+1).Str("name", fmt.Sprintf("%T", step)).Msg("analysis step complete")
	}
	return nil
}

// NewAnalysisPipeline creates the standard analysis pipeline.
func NewAnalysisPipeline() *Pipeline {
	return NewPipeline(
		&ResolvePeriodStep{},
		&ExpandEventsStep{},
		&BuildTimelinesStep{},
		&SummarizeStep{},
		&DetectAnomaliesStep{},
		&DetectSubscriptionsStep{},
	)
}

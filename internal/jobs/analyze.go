package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/dvloznov/cashflow-engine/internal/engine"
	"github.com/dvloznov/cashflow-engine/internal/logger"
)

// PlanLoader resolves a plan location to a validated plan.
type PlanLoader interface {
	Load(ctx context.Context, location string) (*domain.Plan, error)
}

// Enricher amends a loaded plan before analysis, e.g. by attaching ledger rows.
type Enricher func(ctx context.Context, plan *domain.Plan) error

// AnalyzeWorker runs AnalyzePlanJobs through the engine.
type AnalyzeWorker struct {
	Loader   PlanLoader
	Enrich   Enricher
	Defaults engine.Request
}

// Handle implements JobHandler. The analysis is stored on the job itself so the
// queue persists it together with the final status.
func (w *AnalyzeWorker) Handle(ctx context.Context, job Job) error {
	analyzeJob, ok := job.(*AnalyzePlanJob)
	if !ok {
		return fmt.Errorf("Handle: unexpected job type: %T", job)
	}

	log := logger.WithFields(logger.FromContext(ctx), map[string]interface{}{
		"job_id":   analyzeJob.JobID,
		"plan_uri": analyzeJob.PlanURI,
	})
	ctx = logger.WithContext(ctx, log)

	plan, err := w.plan(ctx, analyzeJob)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load plan")
		return err
	}

	if w.Enrich != nil {
		if err := w.Enrich(ctx, plan); err != nil {
			log.Error().Err(err).Msg("Failed to enrich plan")
			return fmt.Errorf("Handle: enrich plan: %w", err)
		}
	}

	req := w.Defaults
	req.PeriodID = analyzeJob.PeriodID
	req.AsOf = analyzeJob.AsOf

	result, err := engine.Analyze(ctx, plan, req)
	if err != nil {
		log.Error().Err(err).Msg("Analysis failed")
		return fmt.Errorf("Handle: %w", err)
	}

	analyzeJob.Result = result
	return nil
}

func (w *AnalyzeWorker) plan(ctx context.Context, job *AnalyzePlanJob) (*domain.Plan, error) {
	if job.Plan != nil {
		// Work on a copy so retries start from the submitted plan.
		plan := *job.Plan
		return &plan, nil
	}
	if job.PlanURI == "" {
		return nil, errors.New("Handle: job has neither a plan nor a plan URI")
	}
	if w.Loader == nil {
		return nil, errors.New("Handle: no plan loader configured")
	}
	plan, err := w.Loader.Load(ctx, job.PlanURI)
	if err != nil {
		return nil, fmt.Errorf("Handle: load plan: %w", err)
	}
	return plan, nil
}

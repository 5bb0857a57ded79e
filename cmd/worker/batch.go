package main

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dvloznov/cashflow-engine/internal/jobs"
	"github.com/dvloznov/cashflow-engine/internal/planstore"
	"github.com/rs/zerolog"
)

// outcome is the final state of one plan in a batch.
type outcome struct {
	Plan   string
	JobID  string
	Status jobs.JobStatus
	Output string
	Error  string
}

// batch publishes one analysis job per plan and collects the results.
type batch struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	sink      planstore.Sink // nil skips writing reports
	out       string
	poll      time.Duration
	log       zerolog.Logger
}

func (b *batch) run(ctx context.Context, plans []string) ([]outcome, error) {
	ids := make([]string, 0, len(plans))
	for _, p := range plans {
		job := &jobs.AnalyzePlanJob{PlanURI: p}
		if err := b.publisher.PublishAnalyzePlan(ctx, job); err != nil {
			return nil, fmt.Errorf("run: publish %s: %w", p, err)
		}
		b.log.Debug().Str("job_id", job.JobID).Str("plan_uri", p).Msg("Job published")
		ids = append(ids, job.JobID)
	}

	finished, err := b.wait(ctx, ids)
	if err != nil {
		return nil, err
	}

	results := make([]outcome, 0, len(finished))
	for _, job := range finished {
		o := outcome{Plan: job.PlanURI, JobID: job.JobID, Status: job.Status, Error: job.Error}
		if job.Status == jobs.JobStatusCompleted && b.sink != nil {
			o.Output = reportLocation(b.out, job.PlanURI)
			if err := b.sink.Write(ctx, o.Output, job.Result); err != nil {
				return nil, fmt.Errorf("run: write report for %s: %w", job.PlanURI, err)
			}
		}
		results = append(results, o)
	}
	return results, nil
}

// wait polls the store until every job reached a terminal status.
func (b *batch) wait(ctx context.Context, ids []string) ([]*jobs.AnalyzePlanJob, error) {
	ticker := time.NewTicker(b.poll)
	defer ticker.Stop()

	for {
		finished := make([]*jobs.AnalyzePlanJob, 0, len(ids))
		for _, id := range ids {
			job, err := b.store.GetJob(ctx, id)
			if err != nil {
				return nil, fmt.Errorf("wait: %w", err)
			}
			if job.Status == jobs.JobStatusCompleted || job.Status == jobs.JobStatusFailed {
				finished = append(finished, job)
			}
		}
		if len(finished) == len(ids) {
			return finished, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("wait: %d of %d jobs finished: %w", len(finished), len(ids), ctx.Err())
		case <-ticker.C:
		}
	}
}

// reportLocation names the analysis report for plan under out, which is either a
// local directory or a gs:// prefix.
func reportLocation(out, plan string) string {
	name := path.Base(filepath.ToSlash(plan))
	name = strings.TrimSuffix(name, path.Ext(name)) + ".analysis.json"
	if planstore.IsGCSURI(out) {
		return strings.TrimSuffix(out, "/") + "/" + name
	}
	return filepath.Join(out, name)
}

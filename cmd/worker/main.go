package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dvloznov/cashflow-engine/internal/config"
	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/dvloznov/cashflow-engine/internal/engine"
	infraBQ "github.com/dvloznov/cashflow-engine/internal/infra/bigquery"
	"github.com/dvloznov/cashflow-engine/internal/jobs"
	"github.com/dvloznov/cashflow-engine/internal/jobs/inmemory"
	"github.com/dvloznov/cashflow-engine/internal/logger"
	"github.com/dvloznov/cashflow-engine/internal/planstore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run analyzes every plan given on the command line through the job queue and
// returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, queueOpts ...inmemory.Option) int {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", os.Getenv("CASHFLOW_CONFIG"), "YAML config file (or set CASHFLOW_CONFIG env)")
	out := fs.String("out", "", "Directory or gs:// prefix for analysis reports (default: summary only)")
	ledger := fs.Bool("ledger", false, "Replace plan transactions with the BigQuery ledger")
	timeout := fs.Duration("timeout", 10*time.Minute, "Overall timeout")
	fs.Usage = func() {
		fmt.Fprintln(stderr, "Usage: worker [options] PLAN...")
		fmt.Fprintln(stderr, "\nPlans may be local paths or gs://bucket/object URIs.")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	plans := fs.Args()
	if len(plans) == 0 {
		fs.Usage()
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}
	log, err := logger.NewWithLevel(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	var gcs *planstore.GCSSource
	if needsGCS(*out, plans) {
		gcs, err = planstore.NewGCSSource(ctx)
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer gcs.Close()
	}

	worker := &jobs.AnalyzeWorker{
		Defaults: engine.Request{Anomaly: cfg.AnomalyOptions(), Subscription: cfg.SubscriptionOptions()},
	}
	if gcs != nil {
		worker.Loader = planstore.NewLoader(gcs)
	} else {
		worker.Loader = planstore.NewLoader(nil)
	}

	if *ledger {
		if !cfg.LedgerEnabled() {
			fmt.Fprintln(stderr, "Error: -ledger needs ledger.project in the config")
			return 2
		}
		repo, err := infraBQ.NewBigQueryLedgerRepository(ctx, infraBQ.TableRef{
			Project: cfg.Ledger.Project,
			Dataset: cfg.Ledger.Dataset,
			Table:   cfg.Ledger.Table,
		})
		if err != nil {
			fmt.Fprintf(stderr, "Error: %v\n", err)
			return 1
		}
		defer repo.Close()
		worker.Enrich = func(ctx context.Context, plan *domain.Plan) error {
			return infraBQ.AttachLedger(ctx, repo, plan)
		}
	}

	store := inmemory.NewStore()
	opts := append([]inmemory.Option{inmemory.WithWorkers(cfg.Server.Workers)}, queueOpts...)
	queue := inmemory.NewQueue(cfg.Server.QueueSize, store, opts...)
	if err := queue.Start(ctx, worker.Handle); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := queue.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error stopping job queue")
		}
	}()

	b := &batch{publisher: queue, store: store, out: *out, poll: 100 * time.Millisecond, log: log}
	switch {
	case *out == "":
	case planstore.IsGCSURI(*out):
		b.sink = gcs
	default:
		b.sink = planstore.FileSource{}
	}

	log.Info().Int("plans", len(plans)).Int("workers", cfg.Server.Workers).Msg("Starting batch analysis")
	results, err := b.run(ctx, plans)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	failed := printOutcomes(stdout, results)
	log.Info().Int("plans", len(results)).Int("failed", failed).Msg("Batch analysis finished")
	if failed > 0 {
		return 1
	}
	return 0
}

func needsGCS(out string, plans []string) bool {
	if planstore.IsGCSURI(out) {
		return true
	}
	for _, p := range plans {
		if planstore.IsGCSURI(p) {
			return true
		}
	}
	return false
}

// printOutcomes writes one line per plan and returns how many failed.
func printOutcomes(w io.Writer, results []outcome) int {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PLAN\tSTATUS\tREPORT\tERROR")
	failed := 0
	for _, o := range results {
		if o.Status != jobs.JobStatusCompleted {
			failed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", o.Plan, o.Status, o.Output, o.Error)
	}
	_ = tw.Flush()
	return failed
}

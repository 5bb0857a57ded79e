package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dvloznov/cashflow-engine/internal/config"
	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/dvloznov/cashflow-engine/internal/engine"
	infraBQ "github.com/dvloznov/cashflow-engine/internal/infra/bigquery"
	"github.com/dvloznov/cashflow-engine/internal/logger"
	"github.com/dvloznov/cashflow-engine/internal/planstore"
	"github.com/rs/zerolog"
)

// errUsage marks failures caused by bad command-line input.
var errUsage = errors.New("usage error")

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

type commandFunc func(ctx context.Context, inv *invocation) error

var commands = map[string]commandFunc{
	"events":        runEvents,
	"timeline":      runTimeline,
	"summary":       runSummary,
	"anomalies":     runAnomalies,
	"subscriptions": runSubscriptions,
	"analyze":       runAnalyze,
	"validate":      runValidate,
}

// run dispatches to a subcommand and returns the process exit code.
func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 2
	}

	switch args[0] {
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	}

	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(stderr, "Unknown command: %s\n\n", args[0])
		printUsage(stderr)
		return 2
	}

	inv, err := parseInvocation(args[0], args[1:], stdout, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	ctx, cancel := context.WithTimeout(context.Background(), inv.timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, inv.log)

	if err := cmd(ctx, inv); err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		if errors.Is(err, errUsage) {
			return 2
		}
		return 1
	}
	return 0
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Cashflow Engine CLI")
	fmt.Fprintln(w, "\nUsage:")
	fmt.Fprintln(w, "  cli <command> -plan PATH [options]")
	fmt.Fprintln(w, "\nCommands:")
	fmt.Fprintln(w, "  events         List the period's expanded cashflow events")
	fmt.Fprintln(w, "  timeline       Print the daily running balance (actuals, projected or hybrid)")
	fmt.Fprintln(w, "  summary        Show the period's budget summary and health")
	fmt.Fprintln(w, "  anomalies      Flag categories spending above their rolling average")
	fmt.Fprintln(w, "  subscriptions  Detect recurring charges and recommend keep/review/cancel")
	fmt.Fprintln(w, "  analyze        Run the full analysis and print it as JSON")
	fmt.Fprintln(w, "  validate       Check a plan document for structural problems")
	fmt.Fprintln(w, "  help           Show this help message")
	fmt.Fprintln(w, "\nPlans may be local paths or gs://bucket/object URIs.")
	fmt.Fprintln(w, "Run 'cli <command> -h' for more information on a command.")
}

// invocation is the parsed, shared state of one subcommand run.
type invocation struct {
	name     string
	planPath string
	periodID int
	asOf     string
	mode     string
	asJSON   bool
	ledger   bool
	timeout  time.Duration

	cfg    config.Config
	log    zerolog.Logger
	stdout io.Writer
}

func parseInvocation(name string, args []string, stdout, stderr io.Writer) (*invocation, error) {
	inv := &invocation{name: name, stdout: stdout}

	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&inv.planPath, "plan", "", "Plan document (local path or gs:// URI)")
	fs.IntVar(&inv.periodID, "period", 0, "Period id (default: period containing the as-of date)")
	fs.StringVar(&inv.asOf, "as-of", "", "As-of date YYYY-MM-DD (default: plan setup)")
	fs.BoolVar(&inv.asJSON, "json", false, "Print JSON instead of a table")
	fs.BoolVar(&inv.ledger, "ledger", false, "Replace plan transactions with the BigQuery ledger")
	fs.DurationVar(&inv.timeout, "timeout", 2*time.Minute, "Overall timeout")
	configPath := fs.String("config", os.Getenv("CASHFLOW_CONFIG"), "YAML config file")
	if name == "timeline" {
		fs.StringVar(&inv.mode, "mode", "hybrid", "Timeline: actuals, projected or hybrid")
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if inv.planPath == "" {
		return nil, fmt.Errorf("%s: -plan is required", name)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	inv.cfg = cfg

	log, err := logger.NewWithLevel(stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	inv.log = log
	return inv, nil
}

// request builds the engine request from flags and configured detector options.
func (inv *invocation) request() engine.Request {
	return engine.Request{
		PeriodID:     inv.periodID,
		AsOf:         inv.asOf,
		Anomaly:      inv.cfg.AnomalyOptions(),
		Subscription: inv.cfg.SubscriptionOptions(),
	}
}

// loadPlan reads and validates the plan, attaching the BigQuery ledger when asked.
func (inv *invocation) loadPlan(ctx context.Context) (*domain.Plan, error) {
	loader := planstore.NewLoader(nil)
	if planstore.IsGCSURI(inv.planPath) {
		gcs, err := planstore.NewGCSSource(ctx)
		if err != nil {
			return nil, err
		}
		defer gcs.Close()
		loader.Remote = gcs
	}

	plan, err := loader.Load(ctx, inv.planPath)
	if err != nil {
		return nil, err
	}

	if inv.ledger {
		if !inv.cfg.LedgerEnabled() {
			return nil, fmt.Errorf("%w: -ledger needs ledger.project in the config", errUsage)
		}
		repo, err := infraBQ.NewBigQueryLedgerRepository(ctx, infraBQ.TableRef{
			Project: inv.cfg.Ledger.Project,
			Dataset: inv.cfg.Ledger.Dataset,
			Table:   inv.cfg.Ledger.Table,
		})
		if err != nil {
			return nil, err
		}
		defer repo.Close()

		if err := infraBQ.AttachLedger(ctx, repo, plan); err != nil {
			return nil, err
		}
		inv.log.Info().Int("transactions", len(plan.Transactions)).Msg("Ledger attached")
	}
	return plan, nil
}

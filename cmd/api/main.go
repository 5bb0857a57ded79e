package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/cashflow-engine/internal/api"
	"github.com/dvloznov/cashflow-engine/internal/api/handlers"
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
	var (
		configPath = flag.String("config", os.Getenv("CASHFLOW_CONFIG"), "YAML config file (or set CASHFLOW_CONFIG env)")
		port       = flag.String("port", "", "HTTP server port (overrides config)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if *port != "" {
		cfg.Server.Port = *port
	}

	log, err := logger.NewWithLevel(os.Stdout, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log = logger.New()
		log.Fatal().Err(err).Msg("Failed to create logger")
	}

	ctx := logger.WithContext(context.Background(), log)

	// Plan storage: local files always, Cloud Storage when credentials allow.
	var remote planstore.Source
	gcs, err := planstore.NewGCSSource(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Cloud Storage unavailable - gs:// plans will be rejected")
	} else {
		defer gcs.Close()
		remote = gcs
	}
	loader := planstore.NewLoader(remote)

	var enrich jobs.Enricher
	if cfg.LedgerEnabled() {
		ledger, err := infraBQ.NewBigQueryLedgerRepository(ctx, infraBQ.TableRef{
			Project: cfg.Ledger.Project,
			Dataset: cfg.Ledger.Dataset,
			Table:   cfg.Ledger.Table,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create ledger repository")
		}
		defer ledger.Close()

		enrich = func(ctx context.Context, plan *domain.Plan) error {
			return infraBQ.AttachLedger(ctx, ledger, plan)
		}
		log.Info().Str("project", cfg.Ledger.Project).Str("dataset", cfg.Ledger.Dataset).Msg("Ledger enrichment enabled for jobs")
	}

	defaults := engine.Request{
		Anomaly:      cfg.AnomalyOptions(),
		Subscription: cfg.SubscriptionOptions(),
	}

	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(cfg.Server.QueueSize, jobStore, inmemory.WithWorkers(cfg.Server.Workers))

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	worker := &jobs.AnalyzeWorker{Loader: loader, Enrich: enrich, Defaults: defaults}
	if err := jobQueue.Start(workerCtx, worker.Handle); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}
	log.Info().Int("workers", cfg.Server.Workers).Msg("Job workers started")

	analysisHandler := handlers.NewAnalysisHandler(loader, defaults, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, jobQueue, log)

	router := api.NewRouter(analysisHandler, jobsHandler, log, api.Options{
		AuthToken:    cfg.Server.AuthToken,
		MaxBodyBytes: cfg.Server.MaxBodyBytes,
	})
	if cfg.Server.AuthToken == "" {
		log.Warn().Msg("No API token configured - /api/v1 is unauthenticated")
	}

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop accepting jobs and let in-flight analyses finish before cancelling them.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/cashflow-engine/internal/config"
	"github.com/dvloznov/cashflow-engine/internal/logger"
	"github.com/rs/zerolog"
	"google.golang.org/api/iterator"
)

// AppliedMigration represents a migration that has already been applied
type AppliedMigration struct {
	Version   int
	Name      string
	AppliedAt time.Time
	Checksum  string
	AppliedBy string
}

func main() {
	configPath := flag.String("config", os.Getenv("CASHFLOW_CONFIG"), "YAML config file (or set CASHFLOW_CONFIG env)")
	project := flag.String("project", "", "GCP project ID (default: ledger.project from config)")
	dataset := flag.String("dataset", "", "BigQuery dataset ID (default: ledger.dataset from config)")
	appliedBy := flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	dir := flag.String("migrations", "", "Read migrations from this directory instead of the built-in set")
	dryRun := flag.Bool("dry-run", false, "List pending migrations without applying them")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	log, err := logger.NewWithLevel(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log = logger.New()
		log.Fatal().Err(err).Msg("Failed to create logger")
	}

	target := Target{Project: cfg.Ledger.Project, Dataset: cfg.Ledger.Dataset, Table: cfg.Ledger.Table}
	if *project != "" {
		target.Project = *project
	}
	if *dataset != "" {
		target.Dataset = *dataset
	}
	if target.Project == "" {
		log.Fatal().Msg("-project flag or ledger.project config is required")
	}

	var source fs.FS
	if *dir != "" {
		source = os.DirFS(*dir)
	} else {
		source, _ = fs.Sub(embedded, "migrations")
	}

	ctx := logger.WithContext(context.Background(), log)
	if err := migrate(ctx, target, source, *appliedBy, *dryRun, log); err != nil {
		log.Fatal().Err(err).Msg("Migration failed")
	}
}

func migrate(ctx context.Context, target Target, source fs.FS, appliedBy string, dryRun bool, log zerolog.Logger) error {
	client, err := bigquery.NewClient(ctx, target.Project)
	if err != nil {
		return fmt.Errorf("migrate: create BigQuery client: %w", err)
	}
	defer client.Close()

	log.Info().Str("project", target.Project).Str("dataset", target.Dataset).Msg("Connected to BigQuery")

	if err := ensureSchemaMigrationsTable(ctx, client, target); err != nil {
		return err
	}

	migrations, err := readMigrations(source, target, log)
	if err != nil {
		return err
	}
	applied, err := getAppliedMigrations(ctx, client, target)
	if err != nil {
		return err
	}
	todo, err := pending(migrations, applied)
	if err != nil {
		return err
	}

	log.Info().
		Int("found", len(migrations)).
		Int("applied", len(applied)).
		Int("pending", len(todo)).
		Msg("Migrations loaded")

	for _, m := range todo {
		mlog := log.With().Int("version", m.Version).Str("name", m.Name).Logger()
		if dryRun {
			mlog.Info().Msg("Pending")
			continue
		}

		mlog.Info().Msg("Applying")
		if err := runStatement(ctx, client, m.SQL, nil); err != nil {
			return fmt.Errorf("migrate: %s: %w", m.Filename, err)
		}
		if err := recordMigration(ctx, client, target, m, appliedBy); err != nil {
			return fmt.Errorf("migrate: record %s: %w", m.Filename, err)
		}
		mlog.Info().Msg("Applied")
	}

	if len(todo) == 0 {
		log.Info().Msg("No new migrations to apply. Dataset is up to date.")
	}
	return nil
}

// ensureSchemaMigrationsTable creates the schema_migrations table if it doesn't exist
func ensureSchemaMigrationsTable(ctx context.Context, client *bigquery.Client, target Target) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS `+"`%s.%s.schema_migrations`"+` (
			version       INT64 NOT NULL,
			name          STRING NOT NULL,
			applied_at    TIMESTAMP NOT NULL,
			checksum      STRING,
			applied_by    STRING
		)
	`, target.Project, target.Dataset)

	if err := runStatement(ctx, client, sql, nil); err != nil {
		return fmt.Errorf("ensureSchemaMigrationsTable: %w", err)
	}
	return nil
}

// getAppliedMigrations retrieves the list of already applied migrations
func getAppliedMigrations(ctx context.Context, client *bigquery.Client, target Target) ([]AppliedMigration, error) {
	sql := fmt.Sprintf(`
		SELECT version, name, applied_at, checksum, applied_by
		FROM `+"`%s.%s.schema_migrations`"+`
		ORDER BY version ASC
	`, target.Project, target.Dataset)

	it, err := client.Query(sql).Read(ctx)
	if err != nil {
		if strings.Contains(err.Error(), "Not found") {
			return nil, nil
		}
		return nil, fmt.Errorf("getAppliedMigrations: %w", err)
	}

	var applied []AppliedMigration
	for {
		var row struct {
			Version   int64               `bigquery:"version"`
			Name      string              `bigquery:"name"`
			AppliedAt time.Time           `bigquery:"applied_at"`
			Checksum  bigquery.NullString `bigquery:"checksum"`
			AppliedBy bigquery.NullString `bigquery:"applied_by"`
		}

		err := it.Next(&row)
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("getAppliedMigrations: iterate: %w", err)
		}

		applied = append(applied, AppliedMigration{
			Version:   int(row.Version),
			Name:      row.Name,
			AppliedAt: row.AppliedAt,
			Checksum:  row.Checksum.StringVal,
			AppliedBy: row.AppliedBy.StringVal,
		})
	}
	return applied, nil
}

// recordMigration records a successfully applied migration in schema_migrations
func recordMigration(ctx context.Context, client *bigquery.Client, target Target, m Migration, appliedBy string) error {
	sql := fmt.Sprintf(`
		INSERT INTO `+"`%s.%s.schema_migrations`"+`
		(version, name, applied_at, checksum, applied_by)
		VALUES (@version, @name, CURRENT_TIMESTAMP(), @checksum, @applied_by)
	`, target.Project, target.Dataset)

	return runStatement(ctx, client, sql, []bigquery.QueryParameter{
		{Name: "version", Value: m.Version},
		{Name: "name", Value: m.Name},
		{Name: "checksum", Value: m.Checksum},
		{Name: "applied_by", Value: appliedBy},
	})
}

// runStatement runs a DDL or DML statement and waits for the job to finish.
func runStatement(ctx context.Context, client *bigquery.Client, sql string, params []bigquery.QueryParameter) error {
	query := client.Query(sql)
	query.Parameters = params

	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("job error: %w", err)
	}
	return nil
}

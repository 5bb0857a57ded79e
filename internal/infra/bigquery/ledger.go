package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/cashflow-engine/internal/calendar"
	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/dvloznov/cashflow-engine/internal/logger"
	"google.golang.org/api/iterator"
)

// LedgerRepository reads ledger transactions for an inclusive date range.
type LedgerRepository interface {
	QueryTransactions(ctx context.Context, start, end civil.Date) ([]domain.Transaction, error)
}

// TableRef identifies the table holding ledger rows.
type TableRef struct {
	Project string
	Dataset string
	Table   string
}

// String returns the fully qualified, backtick-quoted table name.
func (t TableRef) String() string {
	return fmt.Sprintf("`%s.%s.%s`", t.Project, t.Dataset, t.Table)
}

// BigQueryLedgerRepository is the concrete LedgerRepository backed by BigQuery.
// It holds a shared client for the lifetime of the process.
type BigQueryLedgerRepository struct {
	client *bigquery.Client
	table  TableRef
}

// NewBigQueryLedgerRepository creates a repository with its own BigQuery client.
func NewBigQueryLedgerRepository(ctx context.Context, table TableRef) (*BigQueryLedgerRepository, error) {
	if table.Project == "" || table.Dataset == "" || table.Table == "" {
		return nil, fmt.Errorf("NewBigQueryLedgerRepository: project, dataset and table are required")
	}
	client, err := bigquery.NewClient(ctx, table.Project)
	if err != nil {
		return nil, fmt.Errorf("NewBigQueryLedgerRepository: creating client: %w", err)
	}
	return &BigQueryLedgerRepository{client: client, table: table}, nil
}

// Close closes the BigQuery client connection.
func (r *BigQueryLedgerRepository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// QueryTransactions implements LedgerRepository.
func (r *BigQueryLedgerRepository) QueryTransactions(ctx context.Context, start, end civil.Date) ([]domain.Transaction, error) {
	began := time.Now()

	q := r.client.Query(fmt.Sprintf(`
		SELECT
			t.transaction_id,
			t.transaction_date,
			t.amount,
			t.raw_description,
			t.normalized_description,
			t.category_name,
			t.notes,
			t.is_internal_transfer,
			t.linked_rule_id,
			t.linked_bill_id
		FROM %s t
		WHERE t.transaction_date >= @start_date
		  AND t.transaction_date <= @end_date
		ORDER BY t.transaction_date, t.transaction_id
	`, r.table))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "start_date", Value: start},
		{Name: "end_date", Value: end},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactions: query read: %w", err)
	}

	var rows []*TransactionRow
	for {
		var row TransactionRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("QueryTransactions: iter next: %w", err)
		}
		rows = append(rows, &row)
	}

	txs, err := ToDomainAll(rows)
	if err != nil {
		return nil, fmt.Errorf("QueryTransactions: %w", err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("start", start.String()).
		Str("end", end.String()).
		Int("rows", len(txs)).
		Dur("duration", time.Since(began)).
		Msg("ledger rows loaded")

	return txs, nil
}

// AttachLedger replaces the plan's transactions with the ledger rows covering every
// period of the plan. Plans without valid periods are left untouched.
func AttachLedger(ctx context.Context, repo LedgerRepository, plan *domain.Plan) error {
	start, end, ok := planSpan(plan)
	if !ok {
		return nil
	}

	txs, err := repo.QueryTransactions(ctx, start, end)
	if err != nil {
		return fmt.Errorf("AttachLedger: %w", err)
	}
	plan.Transactions = txs
	return nil
}

func planSpan(plan *domain.Plan) (start, end civil.Date, ok bool) {
	for _, p := range plan.Periods {
		from, to, valid := calendar.Range(p.Start, p.End)
		if !valid {
			continue
		}
		if !ok || from.Before(start) {
			start = from
		}
		if !ok || to.After(end) {
			end = to
		}
		ok = true
	}
	return start, end, ok
}

var _ LedgerRepository = (*BigQueryLedgerRepository)(nil)

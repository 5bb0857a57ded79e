package bigquery

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/cashflow-engine/internal/domain"
	"github.com/shopspring/decimal"
)

// numericScale is the fixed scale of a BigQuery NUMERIC column.
const numericScale = 9

// TransactionRow is one ledger entry as stored in BigQuery. Amounts are signed:
// money in is positive, money out is negative.
type TransactionRow struct {
	TransactionID string `bigquery:"transaction_id"` // REQUIRED

	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED

	Amount *big.Rat `bigquery:"amount"` // REQUIRED NUMERIC

	RawDescription        string              `bigquery:"raw_description"`        // REQUIRED
	NormalizedDescription bigquery.NullString `bigquery:"normalized_description"` // NULLABLE

	CategoryName bigquery.NullString `bigquery:"category_name"` // NULLABLE
	Notes        bigquery.NullString `bigquery:"notes"`         // NULLABLE

	IsInternalTransfer bigquery.NullBool `bigquery:"is_internal_transfer"` // NULLABLE

	LinkedRuleID bigquery.NullString `bigquery:"linked_rule_id"` // NULLABLE
	LinkedBillID bigquery.NullString `bigquery:"linked_bill_id"` // NULLABLE
}

// categoryAliases maps ledger category names onto budgeting categories.
var categoryAliases = map[string]domain.Category{
	"income":        domain.CategoryIncome,
	"salary":        domain.CategoryIncome,
	"bill":          domain.CategoryBill,
	"bills":         domain.CategoryBill,
	"utilities":     domain.CategoryBill,
	"housing":       domain.CategoryBill,
	"giving":        domain.CategoryGiving,
	"charity":       domain.CategoryGiving,
	"gifts":         domain.CategoryGiving,
	"savings":       domain.CategorySavings,
	"investments":   domain.CategorySavings,
	"allowance":     domain.CategoryAllowance,
	"groceries":     domain.CategoryAllowance,
	"eating out":    domain.CategoryAllowance,
	"entertainment": domain.CategoryAllowance,
	"subscriptions": domain.CategoryAllowance,
	"buffer":        domain.CategoryBuffer,
}

// ToDomain converts a stored row into a ledger transaction with a non-negative amount.
// The sign picks the type: negative rows are outflows, or transfers when flagged as
// internal; positive rows are income.
func ToDomain(row *TransactionRow) (domain.Transaction, error) {
	if row.Amount == nil {
		return domain.Transaction{}, fmt.Errorf("ToDomain: %s: amount is NULL", row.TransactionID)
	}
	if !row.TransactionDate.IsValid() {
		return domain.Transaction{}, fmt.Errorf("ToDomain: %s: invalid transaction date", row.TransactionID)
	}

	amount, err := decimal.NewFromString(row.Amount.FloatString(numericScale))
	if err != nil {
		return domain.Transaction{}, fmt.Errorf("ToDomain: %s: amount: %w", row.TransactionID, err)
	}

	tx := domain.Transaction{
		ID:           row.TransactionID,
		Date:         row.TransactionDate.String(),
		Label:        row.RawDescription,
		Amount:       amount.Abs(),
		Notes:        row.Notes.StringVal,
		LinkedRuleID: row.LinkedRuleID.StringVal,
		LinkedBillID: row.LinkedBillID.StringVal,
	}
	if row.NormalizedDescription.Valid && row.NormalizedDescription.StringVal != "" {
		tx.Label = row.NormalizedDescription.StringVal
	}

	switch {
	case amount.IsNegative() && row.IsInternalTransfer.Valid && row.IsInternalTransfer.Bool:
		tx.Type = domain.TypeTransfer
	case amount.IsNegative():
		tx.Type = domain.TypeOutflow
	default:
		tx.Type = domain.TypeIncome
	}
	tx.Category = mapCategory(row.CategoryName, tx.Type)

	return tx, nil
}

// ToDomainAll converts rows, collecting every conversion failure.
func ToDomainAll(rows []*TransactionRow) ([]domain.Transaction, error) {
	txs := make([]domain.Transaction, 0, len(rows))
	var errs []error
	for _, row := range rows {
		tx, err := ToDomain(row)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		txs = append(txs, tx)
	}
	return txs, errors.Join(errs...)
}

func mapCategory(name bigquery.NullString, typ domain.TransactionType) domain.Category {
	if typ == domain.TypeIncome {
		return domain.CategoryIncome
	}
	if name.Valid {
		if c, ok := categoryAliases[strings.ToLower(strings.TrimSpace(name.StringVal))]; ok && c != domain.CategoryIncome {
			return c
		}
	}
	return domain.CategoryOther
}

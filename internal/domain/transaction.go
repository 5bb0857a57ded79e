package domain

import (
	"github.com/shopspring/decimal"
)

func init() {
	// Amounts cross the API boundary as plain JSON numbers, not quoted strings.
	decimal.MarshalJSONWithoutQuotes = true
}

// Money is a non-negative amount. Direction is carried by TransactionType or Category.
type Money = decimal.Decimal

// TransactionType tells the timeline which bucket a ledger entry lands in.
type TransactionType string

const (
	TypeIncome   TransactionType = "income"
	TypeOutflow  TransactionType = "outflow"
	TypeTransfer TransactionType = "transfer"
)

// Valid reports whether t is one of the known transaction types.
func (t TransactionType) Valid() bool {
	switch t {
	case TypeIncome, TypeOutflow, TypeTransfer:
		return true
	}
	return false
}

// Reduces reports whether an entry of this type lowers the running balance.
// Transfers always count as money leaving the tracked account.
func (t TransactionType) Reduces() bool {
	return t == TypeOutflow || t == TypeTransfer
}

// Category is a budgeting bucket shared by rules, bills, events and transactions.
type Category string

const (
	CategoryIncome    Category = "income"
	CategoryBill      Category = "bill"
	CategoryGiving    Category = "giving"
	CategorySavings   Category = "savings"
	CategoryAllowance Category = "allowance"
	CategoryBuffer    Category = "buffer"
	CategoryOther     Category = "other"
)

// Transaction is one entry of the ledger of things that already happened.
// Amount is never negative; Type decides whether it adds to or subtracts from the balance.
type Transaction struct {
	ID       string          `json:"id"`
	Date     string          `json:"date"` // YYYY-MM-DD
	Label    string          `json:"label"`
	Amount   Money           `json:"amount"`
	Type     TransactionType `json:"type"`
	Category Category        `json:"category"`
	Notes    string          `json:"notes,omitempty"`

	LinkedRuleID string `json:"linkedRuleId,omitempty"`
	LinkedBillID string `json:"linkedBillId,omitempty"`
}

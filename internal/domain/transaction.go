/**
 * @description
 * This file defines the transaction domain model and the query/summary DTOs
 * used by the transaction history API. A Transaction is one financial movement
 * imported from the provider; it is created on first sight and updated in
 * place when the provider re-delivers the same external id with corrected
 * fields. Transactions are never deleted.
 *
 * @notes
 * - Amount is always a positive major-unit value; direction is carried in Type.
 * - ExternalID is globally unique across the provider and is the upsert key.
 */

package domain

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// TransactionType is the normalized direction of a transaction.
type TransactionType string

const (
	TypeIncome  TransactionType = "INCOME"
	TypeExpense TransactionType = "EXPENSE"
)

// NormalizeTransactionType maps the provider's credit/debit direction to the
// internal type. Anything that is not a credit is treated as an expense.
func NormalizeTransactionType(providerType string) TransactionType {
	if strings.EqualFold(strings.TrimSpace(providerType), "credit") {
		return TypeIncome
	}
	return TypeExpense
}

// Transaction maps to the transactions table.
type Transaction struct {
	ID           uuid.UUID       `json:"id"`
	UserID       uuid.UUID       `json:"user_id"`
	AccountID    uuid.UUID       `json:"account_id"`
	ExternalID   string          `json:"external_id"`
	Amount       float64         `json:"amount"` // positive, major units
	Type         TransactionType `json:"type"`
	Narration    string          `json:"narration"`
	Category     *string         `json:"category,omitempty"`
	BalanceAfter *float64        `json:"balance_after,omitempty"`
	Currency     string          `json:"currency"`
	OccurredAt   time.Time       `json:"date"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// TransactionFilter narrows transaction history queries.
type TransactionFilter struct {
	UserID    uuid.UUID
	AccountID *uuid.UUID
	Category  *string
	Type      *TransactionType
	StartDate time.Time
	EndDate   time.Time
	Page      int
	Limit     int
}

// Offset returns the row offset implied by the filter's page and limit.
func (f TransactionFilter) Offset() int {
	page := f.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * f.Limit
}

// CategoryTotal is one entry of the top-spending-categories summary.
type CategoryTotal struct {
	Category string  `json:"category"`
	Amount   float64 `json:"amount"`
}

// TransactionSummary aggregates the filtered period.
type TransactionSummary struct {
	TotalIncome   float64         `json:"totalIncome"`
	TotalExpenses float64         `json:"totalExpenses"`
	NetFlow       float64         `json:"netFlow"`
	TopCategories []CategoryTotal `json:"topCategories"`
}

// Pagination describes one page of a listing.
type Pagination struct {
	Page  int   `json:"page"`
	Limit int   `json:"limit"`
	Total int64 `json:"total"`
	Pages int   `json:"pages"`
}

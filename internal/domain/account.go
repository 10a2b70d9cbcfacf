/**
 * @description
 * This file defines the bank account domain model and the connection-status
 * lifecycle for linked accounts. An Account represents one external financial
 * account linked through the Mono aggregation provider and owned by a trackit
 * user.
 *
 * @notes
 * - Monetary values (balance) are stored in major currency units (naira).
 *   Conversion from the provider's minor units (kobo) happens exactly once,
 *   inside pkg/monoclient. Nothing in this package divides by 100.
 * - UNLINKED is terminal: a retired account keeps its transaction history but
 *   loses its external id and tokens, and no further status transitions apply.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// AccountStatus is the connection health of a linked bank account.
type AccountStatus string

const (
	StatusActive         AccountStatus = "ACTIVE"
	StatusSynced         AccountStatus = "SYNCED"
	StatusReauthRequired AccountStatus = "REAUTH_REQUIRED"
	StatusSyncFailed     AccountStatus = "SYNC_FAILED"
	StatusUnlinked       AccountStatus = "UNLINKED"
)

// Valid reports whether s is one of the known connection statuses.
func (s AccountStatus) Valid() bool {
	switch s {
	case StatusActive, StatusSynced, StatusReauthRequired, StatusSyncFailed, StatusUnlinked:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are permitted out of s.
func (s AccountStatus) Terminal() bool {
	return s == StatusUnlinked
}

// CanTransition reports whether the status lifecycle permits moving from one
// status to another. Writes to the store are always set-to-value; this table
// exists so callers that already hold a fresh row can reject nonsensical
// moves, and so the lifecycle is testable in one place.
func CanTransition(from, to AccountStatus) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if from.Terminal() {
		return false
	}
	switch to {
	case StatusSynced:
		return from == StatusActive || from == StatusSynced || from == StatusSyncFailed
	case StatusReauthRequired, StatusSyncFailed, StatusUnlinked:
		return true
	case StatusActive:
		// Successful reauthorization, or a re-link refreshing a live account.
		return true
	}
	return false
}

// Account is one linked external bank account. It maps to the bank_accounts table.
type Account struct {
	ID            uuid.UUID     `json:"id"`
	UserID        uuid.UUID     `json:"user_id"`
	ExternalID    *string       `json:"external_id,omitempty"` // provider account id; nil after unlink
	AccountName   string        `json:"account_name"`
	AccountNumber string        `json:"account_number"`
	BankName      string        `json:"bank_name"`
	Currency      string        `json:"currency"`
	Balance       float64       `json:"balance"` // major units (naira)
	Status        AccountStatus `json:"status"`
	DataStatus    *string       `json:"data_status,omitempty"` // provider-reported data availability
	ReauthToken   *string       `json:"-"`
	IsActive      bool          `json:"is_active"`
	LastSynced    *time.Time    `json:"last_synced,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// User is the identity anchor owning accounts and transactions. The sync
// service never mutates users; they are created at signup by the auth layer.
type User struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountSummary is the per-user accounts listing returned by the API.
type AccountSummary struct {
	Accounts     []Account `json:"accounts"`
	TotalBalance float64   `json:"totalBalance"`
	Count        int       `json:"count"`
}

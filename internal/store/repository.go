/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the sync service performs. The interface decouples the business logic
 * from PostgreSQL so tests can substitute hand-written fakes.
 *
 * The account-mutation methods are deliberately set-to-value: callers name the
 * target field values and the store applies them atomically. Status is never
 * computed from a stale read, which keeps concurrent webhook deliveries
 * race-safe.
 *
 * @dependencies
 * - context, time: Standard Go libraries.
 * - github.com/google/uuid: For UUID handling.
 * - internal/domain: For the service's domain models.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/trackit-official/sync-service/internal/domain"
)

var (
	ErrAccountNotFound = errors.New("account not found")
	ErrUserNotFound    = errors.New("user not found")
	// ErrDuplicateAccount is returned when an insert loses the
	// (user_id, external_id) unique-index race to a concurrent link.
	ErrDuplicateAccount = errors.New("account already linked")
)

// AccountUpdateParams is a set-to-value update of an account's mutable sync
// fields. Nil pointers leave the column untouched; ClearReauthToken sets the
// token to NULL (a nil ReauthToken alone never clears it).
type AccountUpdateParams struct {
	Balance          *float64
	Status           *domain.AccountStatus
	DataStatus       *string
	ReauthToken      *string
	ClearReauthToken bool
	LastSynced       *time.Time
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Account methods
	FindAccountByID(ctx context.Context, accountID, userID uuid.UUID) (*domain.Account, error)
	FindAccountByUserAndExternalID(ctx context.Context, userID uuid.UUID, externalID string) (*domain.Account, error)
	// FindAccountByExternalID resolves the non-unlinked account carrying the
	// provider account id, regardless of owner. Used by webhook handlers,
	// which have no user context.
	FindAccountByExternalID(ctx context.Context, externalID string) (*domain.Account, error)
	CreateAccount(ctx context.Context, account *domain.Account) error
	ListAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Account, error)

	// UpdateAccountByID applies params to one account owned row.
	UpdateAccountByID(ctx context.Context, accountID uuid.UUID, params AccountUpdateParams) error
	// ApplyAccountEventByExternalID applies params to the non-unlinked account
	// carrying the external id. Returns false (and no error) when no such
	// account exists: webhook delivery may race ahead of account creation.
	ApplyAccountEventByExternalID(ctx context.Context, externalID string, params AccountUpdateParams) (bool, error)
	// MarkAccountUnlinkedByExternalID retires the linked account: status
	// UNLINKED, external id and tokens cleared, is_active false. Returns false
	// when no non-unlinked account carries the external id.
	MarkAccountUnlinkedByExternalID(ctx context.Context, externalID string, now time.Time) (bool, error)
	// MarkAccountUnlinkedByID is the user-initiated variant of the above.
	MarkAccountUnlinkedByID(ctx context.Context, accountID uuid.UUID, now time.Time) error
	TouchAccountLastSynced(ctx context.Context, accountID uuid.UUID, now time.Time) error

	// Transaction methods
	// UpsertTransaction inserts the transaction or, when its external id
	// already exists, updates the mutable fields (amount, type, narration,
	// category, balance_after, currency, occurred_at) in place. The owning
	// user/account/external id are never changed on update. Returns whether a
	// row was created.
	UpsertTransaction(ctx context.Context, tx *domain.Transaction) (bool, error)
	ListTransactions(ctx context.Context, filter domain.TransactionFilter) ([]domain.Transaction, error)
	CountTransactions(ctx context.Context, filter domain.TransactionFilter) (int64, error)
	SummarizeTransactions(ctx context.Context, filter domain.TransactionFilter) (*domain.TransactionSummary, error)
}

/**
 * @description
 * This file defines the core application service for the sync subsystem. The
 * Service owns the business logic behind account linking, transaction
 * reconciliation, webhook event application and the user-facing account and
 * transaction queries. It depends only on the Repository interface, a
 * provider-client interface and a backfill scheduler, so every collaborator
 * can be faked in tests.
 *
 * @dependencies
 * - context, errors, log, time: Standard Go libraries.
 * - github.com/google/uuid: For internal identifiers.
 * - internal/domain, internal/store, pkg/monoclient: Models, persistence contract, provider types.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/trackit-official/sync-service/internal/domain"
	"github.com/trackit-official/sync-service/internal/store"
	"github.com/trackit-official/sync-service/pkg/monoclient"
)

var (
	// ErrLinkCodeInvalid means the Mono Connect authorization code was rejected.
	ErrLinkCodeInvalid = errors.New("link code invalid or expired")
	// ErrProviderUnavailable means the provider could not be reached or failed transiently.
	ErrProviderUnavailable = errors.New("provider unavailable")
	// ErrAccountNotLinked means the account has no live provider link.
	ErrAccountNotLinked = errors.New("account is not linked to the provider")
)

// backfillLookback is the fixed window the initial backfill covers.
const backfillLookback = 90 * 24 * time.Hour

// backfillPageSize bounds each provider transaction fetch during backfill.
const backfillPageSize = 100

// webhookFetchLimit bounds the provider fetch performed for a new-transactions
// webhook that carries no inline items.
const webhookFetchLimit = 50

// ProviderClient is the slice of the Mono client the service depends on.
type ProviderClient interface {
	Auth(ctx context.Context, code string) (string, error)
	GetAccount(ctx context.Context, accountID string) (*monoclient.AccountDetails, error)
	GetIdentity(ctx context.Context, accountID string) (*monoclient.Identity, error)
	GetTransactions(ctx context.Context, accountID string, opts monoclient.TransactionsOptions) (*monoclient.TransactionsPage, error)
	Reauthorize(ctx context.Context, accountID string) (string, error)
	Unlink(ctx context.Context, accountID string) error
	TriggerSync(ctx context.Context, accountID string) error
}

// BackfillTask names one detached backfill unit of work.
type BackfillTask struct {
	AccountID  uuid.UUID `json:"account_id"`
	UserID     uuid.UUID `json:"user_id"`
	ExternalID string    `json:"external_id"`
}

// BackfillScheduler hands a backfill task off for detached execution. The
// caller never waits for completion; failures surface only through the
// account's status field.
type BackfillScheduler interface {
	Schedule(ctx context.Context, task BackfillTask) error
}

// Service implements the bank-account synchronization subsystem.
type Service struct {
	repo     store.Repository
	provider ProviderClient
	backfill BackfillScheduler
	now      func() time.Time
}

// NewService creates the application service.
func NewService(repo store.Repository, provider ProviderClient, backfill BackfillScheduler) *Service {
	return &Service{
		repo:     repo,
		provider: provider,
		backfill: backfill,
		now:      time.Now,
	}
}

// ListAccounts returns the user's active accounts with the aggregate balance.
func (s *Service) ListAccounts(ctx context.Context, userID uuid.UUID) (*domain.AccountSummary, error) {
	accounts, err := s.repo.ListAccountsByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	summary := &domain.AccountSummary{
		Accounts: accounts,
		Count:    len(accounts),
	}
	for _, a := range accounts {
		summary.TotalBalance += a.Balance
	}
	return summary, nil
}

// TransactionPage is the transaction history listing with pagination and
// period aggregates.
type TransactionPage struct {
	Transactions []domain.Transaction      `json:"transactions"`
	Pagination   domain.Pagination         `json:"pagination"`
	Summary      domain.TransactionSummary `json:"summary"`
}

// ListTransactions returns one page of the user's transaction history.
func (s *Service) ListTransactions(ctx context.Context, filter domain.TransactionFilter) (*TransactionPage, error) {
	total, err := s.repo.CountTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}
	txs, err := s.repo.ListTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}
	summary, err := s.repo.SummarizeTransactions(ctx, filter)
	if err != nil {
		return nil, err
	}

	pages := 0
	if filter.Limit > 0 {
		pages = int((total + int64(filter.Limit) - 1) / int64(filter.Limit))
	}
	return &TransactionPage{
		Transactions: txs,
		Pagination: domain.Pagination{
			Page:  filter.Page,
			Limit: filter.Limit,
			Total: total,
			Pages: pages,
		},
		Summary: *summary,
	}, nil
}

// Reauthorize requests a fresh reauthorisation token for an owned account and
// stores it so the frontend can resume the Connect widget with it.
func (s *Service) Reauthorize(ctx context.Context, userID, accountID uuid.UUID) (string, error) {
	account, err := s.repo.FindAccountByID(ctx, accountID, userID)
	if err != nil {
		return "", err
	}
	if account.ExternalID == nil {
		return "", ErrAccountNotLinked
	}

	token, err := s.provider.Reauthorize(ctx, *account.ExternalID)
	if err != nil {
		log.Printf("level=warn component=sync_service op=reauthorize account_id=%s err=%v", accountID, err)
		return "", classifyProviderError(err)
	}

	if err := s.repo.UpdateAccountByID(ctx, accountID, store.AccountUpdateParams{ReauthToken: &token}); err != nil {
		return "", err
	}
	return token, nil
}

// TriggerManualSync asks the provider to refresh an owned account. The
// provider reports completion asynchronously through a data-sync webhook.
func (s *Service) TriggerManualSync(ctx context.Context, userID, accountID uuid.UUID) error {
	account, err := s.repo.FindAccountByID(ctx, accountID, userID)
	if err != nil {
		return err
	}
	if account.ExternalID == nil {
		return ErrAccountNotLinked
	}

	if err := s.provider.TriggerSync(ctx, *account.ExternalID); err != nil {
		log.Printf("level=warn component=sync_service op=manual_sync account_id=%s err=%v", accountID, err)
		s.markSyncFailed(ctx, accountID)
		return classifyProviderError(err)
	}
	return nil
}

// UnlinkAccount severs the provider link for an owned account and retires the
// row. Transaction history is preserved.
func (s *Service) UnlinkAccount(ctx context.Context, userID, accountID uuid.UUID) error {
	account, err := s.repo.FindAccountByID(ctx, accountID, userID)
	if err != nil {
		return err
	}
	if account.ExternalID != nil {
		if err := s.provider.Unlink(ctx, *account.ExternalID); err != nil {
			log.Printf("level=warn component=sync_service op=unlink account_id=%s err=%v", accountID, err)
			return classifyProviderError(err)
		}
	}
	return s.repo.MarkAccountUnlinkedByID(ctx, accountID, s.now())
}

// markSyncFailed records a background failure on the account. Errors here are
// logged and swallowed: the failure being recorded must not mask the failure
// being reported.
func (s *Service) markSyncFailed(ctx context.Context, accountID uuid.UUID) {
	status := domain.StatusSyncFailed
	if err := s.repo.UpdateAccountByID(ctx, accountID, store.AccountUpdateParams{Status: &status}); err != nil {
		log.Printf("level=error component=sync_service msg=\"failed to record SYNC_FAILED\" account_id=%s err=%v", accountID, err)
	}
}

// classifyProviderError maps provider-client failures onto the service's
// link-flow error taxonomy.
func classifyProviderError(err error) error {
	switch {
	case errors.Is(err, monoclient.ErrAuth):
		return fmt.Errorf("%w: %v", ErrLinkCodeInvalid, err)
	default:
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
}

/**
 * @description
 * This file implements the account link flow: exchanging a one-time Mono
 * Connect authorization code for a durable external account id, fetching the
 * account's metadata, creating or refreshing the internal record, and
 * scheduling the initial 90-day transaction backfill.
 *
 * Linking is idempotent per (user, external account): a second link of the
 * same external account refreshes the existing row instead of creating a
 * duplicate.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/trackit-official/sync-service/internal/domain"
	"github.com/trackit-official/sync-service/internal/store"
	"github.com/trackit-official/sync-service/pkg/monoclient"
)

// LinkResult is the outcome of a link flow.
type LinkResult struct {
	Account *domain.Account
	Created bool // false when the call refreshed an existing link
}

// LinkAccount runs the link flow for an authenticated user. No partial state
// is written if the code exchange or the metadata fetch fails; the identity
// fetch and the backfill hand-off are non-fatal.
func (s *Service) LinkAccount(ctx context.Context, userID uuid.UUID, code string) (*LinkResult, error) {
	externalID, err := s.provider.Auth(ctx, code)
	if err != nil {
		log.Printf("level=warn component=sync_service op=link step=exchange user_id=%s err=%v", userID, err)
		return nil, classifyProviderError(err)
	}

	details, err := s.provider.GetAccount(ctx, externalID)
	if err != nil {
		log.Printf("level=warn component=sync_service op=link step=fetch_account user_id=%s external_id=%s err=%v", userID, externalID, err)
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}

	// Identity enriches the record but its failure never fails the link.
	if _, err := s.provider.GetIdentity(ctx, externalID); err != nil {
		log.Printf("level=warn component=sync_service op=link step=fetch_identity external_id=%s msg=\"identity unavailable; continuing\" err=%v", externalID, err)
	}

	now := s.now()
	accountName := strings.TrimSpace(details.Name)
	if accountName == "" {
		accountName = details.Institution.Name + " Account"
	}

	existing, err := s.repo.FindAccountByUserAndExternalID(ctx, userID, externalID)
	switch {
	case err == nil:
		return s.refreshLinkedAccount(ctx, existing, details, now)

	case errors.Is(err, store.ErrAccountNotFound):
		account := &domain.Account{
			ID:            uuid.New(),
			UserID:        userID,
			ExternalID:    &externalID,
			AccountName:   accountName,
			AccountNumber: details.AccountNumber,
			BankName:      details.Institution.Name,
			Currency:      details.Currency,
			Balance:       details.Balance,
			Status:        domain.StatusActive,
			DataStatus:    &details.DataStatus,
			IsActive:      true,
			LastSynced:    &now,
		}
		if err := s.repo.CreateAccount(ctx, account); err != nil {
			if errors.Is(err, store.ErrDuplicateAccount) {
				// Lost the (user_id, external_id) unique-index race to a
				// concurrent link of the same account; the winner's row
				// exists, so refresh it instead.
				existing, lookupErr := s.repo.FindAccountByUserAndExternalID(ctx, userID, externalID)
				if lookupErr != nil {
					return nil, lookupErr
				}
				return s.refreshLinkedAccount(ctx, existing, details, now)
			}
			return nil, err
		}
		s.scheduleBackfill(ctx, account.ID, userID, externalID)
		return &LinkResult{Account: account, Created: true}, nil

	default:
		return nil, err
	}
}

// refreshLinkedAccount handles the idempotent re-link: the row keeps its id
// and its transaction history while the balance is refreshed and the
// connection is brought back to ACTIVE.
func (s *Service) refreshLinkedAccount(ctx context.Context, existing *domain.Account, details *monoclient.AccountDetails, now time.Time) (*LinkResult, error) {
	status := domain.StatusActive
	params := store.AccountUpdateParams{
		Balance:          &details.Balance,
		Status:           &status,
		DataStatus:       &details.DataStatus,
		ClearReauthToken: true,
		LastSynced:       &now,
	}
	if err := s.repo.UpdateAccountByID(ctx, existing.ID, params); err != nil {
		return nil, err
	}
	existing.Balance = details.Balance
	existing.Status = status
	existing.DataStatus = &details.DataStatus
	existing.ReauthToken = nil
	existing.LastSynced = &now

	externalID := ""
	if existing.ExternalID != nil {
		externalID = *existing.ExternalID
	}
	s.scheduleBackfill(ctx, existing.ID, existing.UserID, externalID)
	return &LinkResult{Account: existing, Created: false}, nil
}

// scheduleBackfill hands the initial sync off to the backfill scheduler.
// Scheduling failure is reported only through the account's status.
func (s *Service) scheduleBackfill(ctx context.Context, accountID, userID uuid.UUID, externalID string) {
	task := BackfillTask{AccountID: accountID, UserID: userID, ExternalID: externalID}
	if err := s.backfill.Schedule(ctx, task); err != nil {
		log.Printf("level=error component=sync_service msg=\"backfill scheduling failed\" account_id=%s err=%v", accountID, err)
		s.markSyncFailed(ctx, accountID)
	}
}

/**
 * @description
 * This file applies canonical provider events to stored state. The HTTP
 * boundary has already verified the webhook signature and normalized the
 * payload into a domain.ProviderEvent, so the handlers here work with typed
 * fields only.
 *
 * Every handler is idempotent and order-tolerant: account mutations are
 * set-to-value writes scoped to non-unlinked rows, and transaction ingestion
 * goes through the reconciler's upsert. A delivery for an account the store
 * does not know yet is logged and accepted, since webhook delivery can race
 * ahead of account creation.
 */

package app

import (
	"context"
	"errors"
	"log"

	"github.com/trackit-official/sync-service/internal/domain"
	"github.com/trackit-official/sync-service/internal/store"
	"github.com/trackit-official/sync-service/pkg/monoclient"
)

// ApplyProviderEvent dispatches one verified, normalized webhook event.
// A nil return means the delivery should be acknowledged.
func (s *Service) ApplyProviderEvent(ctx context.Context, event domain.ProviderEvent) error {
	if event.ExternalID == "" {
		log.Printf("level=warn component=webhook_events event=%s msg=\"event carries no account id; ignored\"", event.RawEvent)
		return nil
	}

	switch event.Kind {
	case domain.EventAccountUpdated:
		return s.applyAccountUpdated(ctx, event)
	case domain.EventAccountReauthorized:
		return s.applyAccountReauthorized(ctx, event)
	case domain.EventReauthRequired:
		return s.applyReauthRequired(ctx, event)
	case domain.EventNewTransactions:
		return s.applyNewTransactions(ctx, event)
	case domain.EventDataSyncCompleted:
		return s.applyDataSyncCompleted(ctx, event)
	case domain.EventAccountUnlinked:
		return s.applyAccountUnlinked(ctx, event)
	default:
		// Unknown kinds are acknowledged upstream; reaching here is a
		// routing bug, not a provider problem.
		log.Printf("level=warn component=webhook_events event=%s msg=\"no handler for event kind\"", event.RawEvent)
		return nil
	}
}

func (s *Service) applyAccountUpdated(ctx context.Context, event domain.ProviderEvent) error {
	now := s.now()
	params := store.AccountUpdateParams{
		Balance:    event.Balance,
		DataStatus: event.DataStatus,
		LastSynced: &now,
	}
	// The provider's own account state maps onto the connection status only
	// when it is unambiguous; anything else leaves the status alone.
	if event.AccountState != nil && *event.AccountState == "active" {
		status := domain.StatusActive
		params.Status = &status
	}
	return s.applyByExternalID(ctx, event, params)
}

func (s *Service) applyAccountReauthorized(ctx context.Context, event domain.ProviderEvent) error {
	now := s.now()
	status := domain.StatusActive
	dataStatus := "AVAILABLE"
	if event.DataStatus != nil {
		dataStatus = *event.DataStatus
	}
	return s.applyByExternalID(ctx, event, store.AccountUpdateParams{
		Status:           &status,
		DataStatus:       &dataStatus,
		ClearReauthToken: true,
		LastSynced:       &now,
	})
}

func (s *Service) applyReauthRequired(ctx context.Context, event domain.ProviderEvent) error {
	status := domain.StatusReauthRequired
	dataStatus := "PENDING_REAUTHORIZATION"
	if event.DataStatus != nil {
		dataStatus = *event.DataStatus
	}
	return s.applyByExternalID(ctx, event, store.AccountUpdateParams{
		Status:      &status,
		DataStatus:  &dataStatus,
		ReauthToken: event.ReauthToken,
	})
}

func (s *Service) applyDataSyncCompleted(ctx context.Context, event domain.ProviderEvent) error {
	now := s.now()
	status := domain.StatusSynced
	dataStatus := "AVAILABLE"
	if event.DataStatus != nil {
		dataStatus = *event.DataStatus
	}
	return s.applyByExternalID(ctx, event, store.AccountUpdateParams{
		Balance:    event.Balance,
		Status:     &status,
		DataStatus: &dataStatus,
		LastSynced: &now,
	})
}

func (s *Service) applyAccountUnlinked(ctx context.Context, event domain.ProviderEvent) error {
	matched, err := s.repo.MarkAccountUnlinkedByExternalID(ctx, event.ExternalID, s.now())
	if err != nil {
		return err
	}
	if !matched {
		log.Printf("level=warn component=webhook_events event=%s external_id=%s msg=\"no linked account to unlink\"", event.RawEvent, event.ExternalID)
	}
	return nil
}

// applyNewTransactions reconciles inline items when the payload carries them,
// and otherwise performs one bounded provider fetch before acknowledging.
func (s *Service) applyNewTransactions(ctx context.Context, event domain.ProviderEvent) error {
	account, err := s.repo.FindAccountByExternalID(ctx, event.ExternalID)
	if err != nil {
		if errors.Is(err, store.ErrAccountNotFound) {
			log.Printf("level=warn component=webhook_events event=%s external_id=%s msg=\"no account for transactions event; acknowledged\"", event.RawEvent, event.ExternalID)
			return nil
		}
		return err
	}

	items := event.Transactions
	if len(items) == 0 {
		page, err := s.provider.GetTransactions(ctx, event.ExternalID, monoclient.TransactionsOptions{
			Limit: webhookFetchLimit,
			Page:  1,
		})
		if err != nil {
			log.Printf("level=error component=webhook_events event=%s external_id=%s msg=\"transaction fetch failed\" err=%v", event.RawEvent, event.ExternalID, err)
			s.markSyncFailed(ctx, account.ID)
			return nil
		}
		items = providerTransactions(page.Items)
	}

	result, err := s.Reconcile(ctx, account, items)
	if err != nil {
		return err
	}
	log.Printf("level=info component=webhook_events event=%s account_id=%s created=%d updated=%d skipped=%d", event.RawEvent, account.ID, result.Created, result.Updated, result.Skipped)

	if domain.CanTransition(account.Status, domain.StatusSynced) {
		status := domain.StatusSynced
		if _, err := s.repo.ApplyAccountEventByExternalID(ctx, event.ExternalID, store.AccountUpdateParams{Status: &status}); err != nil {
			return err
		}
	}
	return nil
}

// applyByExternalID applies a set-to-value update and downgrades a missing
// account to a logged acknowledgement.
func (s *Service) applyByExternalID(ctx context.Context, event domain.ProviderEvent, params store.AccountUpdateParams) error {
	matched, err := s.repo.ApplyAccountEventByExternalID(ctx, event.ExternalID, params)
	if err != nil {
		return err
	}
	if !matched {
		log.Printf("level=warn component=webhook_events event=%s external_id=%s msg=\"no matching account; acknowledged\"", event.RawEvent, event.ExternalID)
	}
	return nil
}

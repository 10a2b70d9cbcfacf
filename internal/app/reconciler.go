/**
 * @description
 * This file implements transaction reconciliation and the detached backfill.
 * Reconciliation upserts each provider transaction by its external id, so the
 * same batch can be applied any number of times (webhooks are delivered
 * at-least-once) and concurrent batches for one account converge: creation is
 * exactly-once under the store's unique constraint, mutable fields are
 * last-writer-wins.
 */

package app

import (
	"context"
	"log"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/trackit-official/sync-service/internal/domain"
	"github.com/trackit-official/sync-service/internal/store"
	"github.com/trackit-official/sync-service/pkg/monoclient"
)

// ReconcileResult counts the outcome of one reconciled batch.
type ReconcileResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"` // items with no external id
	Failed  int `json:"failed"`  // per-item store failures, batch continued
}

// providerDateLayouts are the timestamp shapes Mono has been observed to send.
var providerDateLayouts = []string{time.RFC3339, "2006-01-02T15:04:05.000Z", "2006-01-02"}

func parseProviderDate(raw string, fallback time.Time) time.Time {
	for _, layout := range providerDateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t
		}
	}
	return fallback
}

// Reconcile applies one batch of provider transactions to an account.
// Transactions inherit the account's currency. Items missing an external id
// are skipped and counted, never fatal; a store failure on one item does not
// abort the rest. After the batch the account's last-synced timestamp is
// stamped.
func (s *Service) Reconcile(ctx context.Context, account *domain.Account, items []domain.ProviderTransaction) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	now := s.now()

	for _, item := range items {
		if item.ExternalID == "" {
			result.Skipped++
			log.Printf("level=warn component=reconciler msg=\"transaction missing external id; skipped\" account_id=%s", account.ID)
			continue
		}

		tx := &domain.Transaction{
			ID:           uuid.New(),
			UserID:       account.UserID,
			AccountID:    account.ID,
			ExternalID:   item.ExternalID,
			Amount:       math.Abs(item.Amount),
			Type:         domain.NormalizeTransactionType(item.Type),
			Narration:    item.Narration,
			Category:     item.Category,
			BalanceAfter: item.BalanceAfter,
			Currency:     account.Currency,
			OccurredAt:   parseProviderDate(item.Date, now),
		}

		created, err := s.repo.UpsertTransaction(ctx, tx)
		if err != nil {
			result.Failed++
			log.Printf("level=error component=reconciler msg=\"transaction upsert failed\" account_id=%s external_tx_id=%s err=%v", account.ID, item.ExternalID, err)
			continue
		}
		if created {
			result.Created++
		} else {
			result.Updated++
		}
	}

	if err := s.repo.TouchAccountLastSynced(ctx, account.ID, now); err != nil {
		log.Printf("level=error component=reconciler msg=\"failed to stamp last_synced\" account_id=%s err=%v", account.ID, err)
	}
	return result, nil
}

// RunBackfill executes a scheduled backfill: it drains provider transaction
// pages for the fixed lookback window and reconciles each page. Failures are
// reported exclusively through the account's status (SYNC_FAILED); success
// moves the connection to SYNCED.
func (s *Service) RunBackfill(ctx context.Context, task BackfillTask) error {
	account, err := s.repo.FindAccountByID(ctx, task.AccountID, task.UserID)
	if err != nil {
		log.Printf("level=error component=backfill msg=\"account lookup failed\" account_id=%s err=%v", task.AccountID, err)
		return err
	}

	now := s.now()
	opts := monoclient.TransactionsOptions{
		Start: now.Add(-backfillLookback).Format("2006-01-02"),
		End:   now.Format("2006-01-02"),
		Limit: backfillPageSize,
		Page:  1,
	}

	total := ReconcileResult{}
	for {
		page, err := s.provider.GetTransactions(ctx, task.ExternalID, opts)
		if err != nil {
			log.Printf("level=error component=backfill msg=\"transaction fetch failed\" account_id=%s external_id=%s page=%d err=%v", task.AccountID, task.ExternalID, opts.Page, err)
			s.markSyncFailed(ctx, task.AccountID)
			return err
		}

		result, err := s.Reconcile(ctx, account, providerTransactions(page.Items))
		if err != nil {
			s.markSyncFailed(ctx, task.AccountID)
			return err
		}
		total.Created += result.Created
		total.Updated += result.Updated
		total.Skipped += result.Skipped
		total.Failed += result.Failed

		if !page.HasNext() {
			break
		}
		opts.Page++
	}

	// Move the connection to SYNCED unless a competing event (reauth, unlink)
	// landed while the backfill was running. The write is still an explicit
	// target value, never a computed one.
	account, err = s.repo.FindAccountByID(ctx, task.AccountID, task.UserID)
	if err != nil {
		log.Printf("level=error component=backfill msg=\"account reload failed after backfill\" account_id=%s err=%v", task.AccountID, err)
		return err
	}
	if domain.CanTransition(account.Status, domain.StatusSynced) {
		status := domain.StatusSynced
		stamp := s.now()
		if err := s.repo.UpdateAccountByID(ctx, task.AccountID, store.AccountUpdateParams{Status: &status, LastSynced: &stamp}); err != nil {
			log.Printf("level=error component=backfill msg=\"failed to mark SYNCED\" account_id=%s err=%v", task.AccountID, err)
			return err
		}
	}

	log.Printf("level=info component=backfill msg=\"backfill complete\" account_id=%s created=%d updated=%d skipped=%d failed=%d", task.AccountID, total.Created, total.Updated, total.Skipped, total.Failed)
	return nil
}

// providerTransactions converts provider-client items into the canonical
// batch shape the reconciler consumes.
func providerTransactions(items []monoclient.Transaction) []domain.ProviderTransaction {
	out := make([]domain.ProviderTransaction, 0, len(items))
	for _, item := range items {
		pt := domain.ProviderTransaction{
			ExternalID:   item.ExternalID,
			Amount:       item.Amount,
			Type:         item.Type,
			Narration:    item.Narration,
			BalanceAfter: item.Balance,
			Date:         item.Date,
		}
		if item.Category != "" {
			category := item.Category
			pt.Category = &category
		}
		out = append(out, pt)
	}
	return out
}

package app

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/trackit-official/sync-service/internal/domain"
	"github.com/trackit-official/sync-service/internal/store"
	"github.com/trackit-official/sync-service/pkg/monoclient"
)

type reconcilerRepoStub struct {
	store.Repository

	account *domain.Account

	upserted     []*domain.Transaction
	seen         map[string]bool
	touchedID    *uuid.UUID
	statusWrites []domain.AccountStatus
}

func (s *reconcilerRepoStub) UpsertTransaction(ctx context.Context, tx *domain.Transaction) (bool, error) {
	if s.seen == nil {
		s.seen = map[string]bool{}
	}
	created := !s.seen[tx.ExternalID]
	s.seen[tx.ExternalID] = true
	s.upserted = append(s.upserted, tx)
	return created, nil
}

func (s *reconcilerRepoStub) TouchAccountLastSynced(ctx context.Context, accountID uuid.UUID, now time.Time) error {
	s.touchedID = &accountID
	return nil
}

func (s *reconcilerRepoStub) FindAccountByID(ctx context.Context, accountID, userID uuid.UUID) (*domain.Account, error) {
	if s.account == nil {
		return nil, store.ErrAccountNotFound
	}
	return s.account, nil
}

func (s *reconcilerRepoStub) UpdateAccountByID(ctx context.Context, accountID uuid.UUID, params store.AccountUpdateParams) error {
	if params.Status != nil {
		s.statusWrites = append(s.statusWrites, *params.Status)
		s.account.Status = *params.Status
	}
	return nil
}

type reconcilerProviderStub struct {
	ProviderClient

	pages    []*monoclient.TransactionsPage
	fetchErr error
	calls    int
}

func (s *reconcilerProviderStub) GetTransactions(ctx context.Context, accountID string, opts monoclient.TransactionsOptions) (*monoclient.TransactionsPage, error) {
	if s.fetchErr != nil {
		return nil, s.fetchErr
	}
	page := s.pages[s.calls]
	s.calls++
	return page, nil
}

func nairaAccount(status domain.AccountStatus) *domain.Account {
	externalID := "acc_ext_1"
	return &domain.Account{
		ID:         uuid.New(),
		UserID:     uuid.New(),
		ExternalID: &externalID,
		Currency:   "NGN",
		Status:     status,
	}
}

func TestReconcileNormalizesDebitsIntoExpenses(t *testing.T) {
	repo := &reconcilerRepoStub{}
	service := NewService(repo, &reconcilerProviderStub{}, &schedulerStub{})
	account := nairaAccount(domain.StatusActive)

	result, err := service.Reconcile(context.Background(), account, []domain.ProviderTransaction{
		{ExternalID: "tx_1", Amount: -1500.00, Type: "debit", Narration: "POS purchase", Date: "2026-02-10"},
		{ExternalID: "tx_2", Amount: 5000.00, Type: "credit", Narration: "Salary", Date: "2026-02-11T08:30:00.000Z"},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result.Created != 2 {
		t.Fatalf("expected 2 created, got %+v", result)
	}

	debit := repo.upserted[0]
	if debit.Type != domain.TypeExpense {
		t.Fatalf("expected debit to normalize to EXPENSE, got %s", debit.Type)
	}
	if debit.Amount != 1500.00 {
		t.Fatalf("expected stored amount to be positive, got %v", debit.Amount)
	}
	if debit.Currency != "NGN" {
		t.Fatalf("expected transaction to inherit account currency, got %q", debit.Currency)
	}

	credit := repo.upserted[1]
	if credit.Type != domain.TypeIncome {
		t.Fatalf("expected credit to normalize to INCOME, got %s", credit.Type)
	}
	if credit.OccurredAt.Format("2006-01-02") != "2026-02-11" {
		t.Fatalf("unexpected occurred_at %v", credit.OccurredAt)
	}

	if repo.touchedID == nil || *repo.touchedID != account.ID {
		t.Fatal("expected last_synced to be stamped after the batch")
	}
}

func TestReconcileIsIdempotentAcrossRedelivery(t *testing.T) {
	repo := &reconcilerRepoStub{}
	service := NewService(repo, &reconcilerProviderStub{}, &schedulerStub{})
	account := nairaAccount(domain.StatusActive)

	batch := []domain.ProviderTransaction{
		{ExternalID: "tx_1", Amount: 100, Type: "debit", Date: "2026-02-10"},
	}
	first, err := service.Reconcile(context.Background(), account, batch)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	second, err := service.Reconcile(context.Background(), account, batch)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if first.Created != 1 || second.Created != 0 || second.Updated != 1 {
		t.Fatalf("expected redelivery to update in place: first=%+v second=%+v", first, second)
	}
}

func TestReconcileSkipsItemsWithoutExternalID(t *testing.T) {
	repo := &reconcilerRepoStub{}
	service := NewService(repo, &reconcilerProviderStub{}, &schedulerStub{})
	account := nairaAccount(domain.StatusActive)

	result, err := service.Reconcile(context.Background(), account, []domain.ProviderTransaction{
		{ExternalID: "", Amount: 100, Type: "debit", Date: "2026-02-10"},
		{ExternalID: "tx_1", Amount: 200, Type: "debit", Date: "2026-02-10"},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if result.Skipped != 1 || result.Created != 1 {
		t.Fatalf("expected one skipped and one created, got %+v", result)
	}
}

func TestRunBackfillDrainsPagesAndMarksSynced(t *testing.T) {
	account := nairaAccount(domain.StatusActive)
	repo := &reconcilerRepoStub{account: account}
	provider := &reconcilerProviderStub{
		pages: []*monoclient.TransactionsPage{
			{
				Items:  []monoclient.Transaction{{ExternalID: "tx_1", Amount: 100, Type: "debit", Date: "2026-02-10"}},
				Paging: monoclient.Paging{Total: 2, Page: 1, Size: 1},
			},
			{
				Items:  []monoclient.Transaction{{ExternalID: "tx_2", Amount: 200, Type: "credit", Date: "2026-02-11"}},
				Paging: monoclient.Paging{Total: 2, Page: 2, Size: 1},
			},
		},
	}
	service := NewService(repo, provider, &schedulerStub{})

	task := BackfillTask{AccountID: account.ID, UserID: account.UserID, ExternalID: "acc_ext_1"}
	if err := service.RunBackfill(context.Background(), task); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if provider.calls != 2 {
		t.Fatalf("expected both pages to be fetched, got %d calls", provider.calls)
	}
	if len(repo.upserted) != 2 {
		t.Fatalf("expected both pages reconciled, got %d upserts", len(repo.upserted))
	}
	if account.Status != domain.StatusSynced {
		t.Fatalf("expected account to finish SYNCED, got %s", account.Status)
	}
}

func TestRunBackfillFetchFailureMarksSyncFailed(t *testing.T) {
	account := nairaAccount(domain.StatusActive)
	repo := &reconcilerRepoStub{account: account}
	provider := &reconcilerProviderStub{fetchErr: &monoclient.APIError{Status: 503}}
	service := NewService(repo, provider, &schedulerStub{})

	task := BackfillTask{AccountID: account.ID, UserID: account.UserID, ExternalID: "acc_ext_1"}
	if err := service.RunBackfill(context.Background(), task); err == nil {
		t.Fatal("expected fetch failure to be returned")
	}
	if account.Status != domain.StatusSyncFailed {
		t.Fatalf("expected account to be marked SYNC_FAILED, got %s", account.Status)
	}
}

func TestRunBackfillDoesNotOverrideReauthRequired(t *testing.T) {
	// A reauth-required webhook landing mid-backfill must not be clobbered by
	// the completion write.
	account := nairaAccount(domain.StatusReauthRequired)
	repo := &reconcilerRepoStub{account: account}
	provider := &reconcilerProviderStub{
		pages: []*monoclient.TransactionsPage{
			{
				Items:  []monoclient.Transaction{{ExternalID: "tx_1", Amount: 100, Type: "debit", Date: "2026-02-10"}},
				Paging: monoclient.Paging{Total: 1, Page: 1, Size: 100},
			},
		},
	}
	service := NewService(repo, provider, &schedulerStub{})

	task := BackfillTask{AccountID: account.ID, UserID: account.UserID, ExternalID: "acc_ext_1"}
	if err := service.RunBackfill(context.Background(), task); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if account.Status != domain.StatusReauthRequired {
		t.Fatalf("expected REAUTH_REQUIRED to survive backfill completion, got %s", account.Status)
	}
}

package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/trackit-official/sync-service/internal/domain"
	"github.com/trackit-official/sync-service/internal/store"
	"github.com/trackit-official/sync-service/pkg/monoclient"
)

type serviceRepoStub struct {
	store.Repository

	account  *domain.Account
	accounts []domain.Account

	updateParams *store.AccountUpdateParams
	unlinkedID   *uuid.UUID
}

func (s *serviceRepoStub) FindAccountByID(ctx context.Context, accountID, userID uuid.UUID) (*domain.Account, error) {
	if s.account == nil || s.account.ID != accountID || s.account.UserID != userID {
		return nil, store.ErrAccountNotFound
	}
	return s.account, nil
}

func (s *serviceRepoStub) ListAccountsByUserID(ctx context.Context, userID uuid.UUID) ([]domain.Account, error) {
	return s.accounts, nil
}

func (s *serviceRepoStub) UpdateAccountByID(ctx context.Context, accountID uuid.UUID, params store.AccountUpdateParams) error {
	s.updateParams = &params
	if params.Status != nil {
		s.account.Status = *params.Status
	}
	return nil
}

func (s *serviceRepoStub) MarkAccountUnlinkedByID(ctx context.Context, accountID uuid.UUID, now time.Time) error {
	s.unlinkedID = &accountID
	return nil
}

type serviceProviderStub struct {
	ProviderClient

	reauthToken string
	reauthErr   error
	unlinkErr   error
	syncErr     error

	unlinkCalled bool
	syncCalled   bool
}

func (s *serviceProviderStub) Reauthorize(ctx context.Context, accountID string) (string, error) {
	if s.reauthErr != nil {
		return "", s.reauthErr
	}
	return s.reauthToken, nil
}

func (s *serviceProviderStub) Unlink(ctx context.Context, accountID string) error {
	s.unlinkCalled = true
	return s.unlinkErr
}

func (s *serviceProviderStub) TriggerSync(ctx context.Context, accountID string) error {
	s.syncCalled = true
	return s.syncErr
}

func TestListAccountsAggregatesBalances(t *testing.T) {
	repo := &serviceRepoStub{
		accounts: []domain.Account{
			{Balance: 1500.50},
			{Balance: 2000.00},
			{Balance: 0.25},
		},
	}
	service := NewService(repo, &serviceProviderStub{}, &schedulerStub{})

	summary, err := service.ListAccounts(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if summary.Count != 3 {
		t.Fatalf("expected 3 accounts, got %d", summary.Count)
	}
	if summary.TotalBalance != 3500.75 {
		t.Fatalf("expected total 3500.75, got %v", summary.TotalBalance)
	}
}

func TestReauthorizeStoresToken(t *testing.T) {
	account := nairaAccount(domain.StatusReauthRequired)
	repo := &serviceRepoStub{account: account}
	provider := &serviceProviderStub{reauthToken: "tok_fresh"}
	service := NewService(repo, provider, &schedulerStub{})

	token, err := service.Reauthorize(context.Background(), account.UserID, account.ID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if token != "tok_fresh" {
		t.Fatalf("unexpected token %q", token)
	}
	if repo.updateParams == nil || repo.updateParams.ReauthToken == nil || *repo.updateParams.ReauthToken != "tok_fresh" {
		t.Fatal("expected the token to be persisted")
	}
}

func TestReauthorizeRejectsUnlinkedAccount(t *testing.T) {
	account := nairaAccount(domain.StatusUnlinked)
	account.ExternalID = nil
	repo := &serviceRepoStub{account: account}
	service := NewService(repo, &serviceProviderStub{}, &schedulerStub{})

	_, err := service.Reauthorize(context.Background(), account.UserID, account.ID)
	if !errors.Is(err, ErrAccountNotLinked) {
		t.Fatalf("expected ErrAccountNotLinked, got %v", err)
	}
}

func TestReauthorizeEnforcesOwnership(t *testing.T) {
	account := nairaAccount(domain.StatusActive)
	repo := &serviceRepoStub{account: account}
	service := NewService(repo, &serviceProviderStub{reauthToken: "tok"}, &schedulerStub{})

	_, err := service.Reauthorize(context.Background(), uuid.New(), account.ID)
	if !errors.Is(err, store.ErrAccountNotFound) {
		t.Fatalf("expected not-found for foreign account, got %v", err)
	}
}

func TestTriggerManualSyncFailureMarksAccount(t *testing.T) {
	account := nairaAccount(domain.StatusActive)
	repo := &serviceRepoStub{account: account}
	provider := &serviceProviderStub{syncErr: &monoclient.APIError{Status: 503}}
	service := NewService(repo, provider, &schedulerStub{})

	err := service.TriggerManualSync(context.Background(), account.UserID, account.ID)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if account.Status != domain.StatusSyncFailed {
		t.Fatalf("expected SYNC_FAILED, got %s", account.Status)
	}
}

func TestUnlinkAccountSeversProviderLinkFirst(t *testing.T) {
	account := nairaAccount(domain.StatusActive)
	repo := &serviceRepoStub{account: account}
	provider := &serviceProviderStub{}
	service := NewService(repo, provider, &schedulerStub{})

	if err := service.UnlinkAccount(context.Background(), account.UserID, account.ID); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if !provider.unlinkCalled {
		t.Fatal("expected the provider-side unlink to run")
	}
	if repo.unlinkedID == nil || *repo.unlinkedID != account.ID {
		t.Fatal("expected the row to be retired")
	}
}

func TestUnlinkAccountAbortsWhenProviderFails(t *testing.T) {
	account := nairaAccount(domain.StatusActive)
	repo := &serviceRepoStub{account: account}
	provider := &serviceProviderStub{unlinkErr: &monoclient.APIError{Status: 503}}
	service := NewService(repo, provider, &schedulerStub{})

	err := service.UnlinkAccount(context.Background(), account.UserID, account.ID)
	if !errors.Is(err, ErrProviderUnavailable) {
		t.Fatalf("expected ErrProviderUnavailable, got %v", err)
	}
	if repo.unlinkedID != nil {
		t.Fatal("expected the row to stay linked when the provider call fails")
	}
}

func TestWorkerPoolRunsScheduledTasks(t *testing.T) {
	pool := NewWorkerPool(4)
	var mu sync.Mutex
	var ran []BackfillTask
	done := make(chan struct{})

	pool.Start(context.Background(), 2, func(ctx context.Context, task BackfillTask) error {
		mu.Lock()
		ran = append(ran, task)
		if len(ran) == 2 {
			close(done)
		}
		mu.Unlock()
		return nil
	})

	for i := 0; i < 2; i++ {
		if err := pool.Schedule(context.Background(), BackfillTask{AccountID: uuid.New()}); err != nil {
			t.Fatalf("expected task %d to be accepted, got %v", i, err)
		}
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for tasks to run")
	}
	pool.Stop()
}

func TestWorkerPoolRejectsWhenFull(t *testing.T) {
	pool := NewWorkerPool(1)
	// Not started: the single queue slot fills and the next schedule must
	// fail fast instead of blocking the link request.
	if err := pool.Schedule(context.Background(), BackfillTask{}); err != nil {
		t.Fatalf("expected first task to be accepted, got %v", err)
	}
	if err := pool.Schedule(context.Background(), BackfillTask{}); !errors.Is(err, ErrBackfillQueueFull) {
		t.Fatalf("expected ErrBackfillQueueFull, got %v", err)
	}
}

package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/trackit-official/sync-service/internal/domain"
)

func filterRequest(query string) *http.Request {
	return httptest.NewRequest(http.MethodGet, "/v1/transactions"+query, nil)
}

func TestParseTransactionFilterDefaults(t *testing.T) {
	userID := uuid.New()
	filter, err := parseTransactionFilter(filterRequest(""), userID)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if filter.UserID != userID {
		t.Fatalf("expected caller's user id, got %s", filter.UserID)
	}
	if filter.Page != 1 || filter.Limit != defaultTransactionLimit {
		t.Fatalf("unexpected paging defaults: page=%d limit=%d", filter.Page, filter.Limit)
	}
	window := filter.EndDate.Sub(filter.StartDate)
	if window < 27*24*time.Hour || window > 32*24*time.Hour {
		t.Fatalf("expected roughly one month of lookback, got %v", window)
	}
	if filter.AccountID != nil || filter.Category != nil || filter.Type != nil {
		t.Fatal("expected no optional filters by default")
	}
}

func TestParseTransactionFilterExplicitValues(t *testing.T) {
	userID := uuid.New()
	accountID := uuid.New()
	filter, err := parseTransactionFilter(
		filterRequest("?page=3&limit=25&startDate=2026-01-01&endDate=2026-02-01&accountId="+accountID.String()+"&category=groceries&type=EXPENSE"),
		userID,
	)
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if filter.Page != 3 || filter.Limit != 25 {
		t.Fatalf("unexpected paging: page=%d limit=%d", filter.Page, filter.Limit)
	}
	if filter.StartDate.Format("2006-01-02") != "2026-01-01" || filter.EndDate.Format("2006-01-02") != "2026-02-01" {
		t.Fatalf("unexpected window: %v .. %v", filter.StartDate, filter.EndDate)
	}
	if filter.AccountID == nil || *filter.AccountID != accountID {
		t.Fatalf("expected account filter, got %v", filter.AccountID)
	}
	if filter.Category == nil || *filter.Category != "groceries" {
		t.Fatalf("expected category filter, got %v", filter.Category)
	}
	if filter.Type == nil || *filter.Type != domain.TypeExpense {
		t.Fatalf("expected type filter, got %v", filter.Type)
	}
}

func TestParseTransactionFilterCapsLimit(t *testing.T) {
	filter, err := parseTransactionFilter(filterRequest("?limit=5000"), uuid.New())
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if filter.Limit != maxTransactionLimit {
		t.Fatalf("expected limit capped at %d, got %d", maxTransactionLimit, filter.Limit)
	}
}

func TestParseTransactionFilterRejectsBadInput(t *testing.T) {
	tests := []struct {
		name  string
		query string
	}{
		{name: "zero page", query: "?page=0"},
		{name: "negative limit", query: "?limit=-1"},
		{name: "garbage start date", query: "?startDate=lastweek"},
		{name: "inverted window", query: "?startDate=2026-02-01&endDate=2026-01-01"},
		{name: "bad account id", query: "?accountId=notauuid"},
		{name: "unknown type", query: "?type=TRANSFER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseTransactionFilter(filterRequest(tt.query), uuid.New()); err == nil {
				t.Fatal("expected a validation error")
			}
		})
	}
}

package monoclient

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthExchangesCodeForAccountID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/account/auth" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("mono-sec-key"); got != "sk_test" {
			t.Fatalf("expected mono-sec-key header, got %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"6630d3a0f1b2c3d4e5f6a7b8"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test")
	id, err := client.Auth(context.Background(), "code_abc")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if id != "6630d3a0f1b2c3d4e5f6a7b8" {
		t.Fatalf("unexpected account id %q", id)
	}
}

func TestAuthClassifiesRejectedCode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid code"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test")
	_, err := client.Auth(context.Background(), "bad_code")
	if err == nil {
		t.Fatal("expected error for rejected code")
	}
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected ErrAuth classification, got %v", err)
	}
}

func TestGetAccountConvertsBalanceToMajorUnits(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/accounts/acc_1" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"account": {
				"_id": "acc_1",
				"institution": {"name": "GTBank", "bankCode": "058", "type": "PERSONAL_BANKING"},
				"name": "ADA OBI",
				"accountNumber": "0123456789",
				"type": "SAVINGS_ACCOUNT",
				"balance": 333167500,
				"currency": "NGN"
			},
			"meta": {"data_status": "AVAILABLE", "auth_method": "internet_banking"}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test")
	details, err := client.GetAccount(context.Background(), "acc_1")
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if details.Balance != 3331675.00 {
		t.Fatalf("expected balance converted to major units, got %v", details.Balance)
	}
	if details.DataStatus != "AVAILABLE" {
		t.Fatalf("expected meta data_status to be lifted, got %q", details.DataStatus)
	}
	if details.Institution.Name != "GTBank" {
		t.Fatalf("unexpected institution %q", details.Institution.Name)
	}
}

func TestGetTransactionsPagingAndConversion(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("paginate") != "true" {
			t.Fatalf("expected paginate=true, got %q", q.Get("paginate"))
		}
		if q.Get("start") != "2026-01-01" || q.Get("end") != "2026-03-31" {
			t.Fatalf("unexpected date window: start=%q end=%q", q.Get("start"), q.Get("end"))
		}
		if q.Get("limit") != "100" || q.Get("page") != "1" {
			t.Fatalf("unexpected paging params: limit=%q page=%q", q.Get("limit"), q.Get("page"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"data": [
				{"_id": "tx_1", "amount": 150000, "date": "2026-02-10T08:30:00.000Z", "narration": "POS purchase", "type": "debit", "category": "groceries", "balance": 5000000}
			],
			"total": 250,
			"page": 1,
			"size": 100
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test")
	page, err := client.GetTransactions(context.Background(), "acc_1", TransactionsOptions{
		Start: "2026-01-01",
		End:   "2026-03-31",
		Limit: 100,
		Page:  1,
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(page.Items))
	}
	tx := page.Items[0]
	if tx.Amount != 1500.00 {
		t.Fatalf("expected amount converted to major units, got %v", tx.Amount)
	}
	if tx.Balance == nil || *tx.Balance != 50000.00 {
		t.Fatalf("expected balance converted to major units, got %v", tx.Balance)
	}
	if !page.HasNext() {
		t.Fatal("expected more pages for total=250 size=100 page=1")
	}
}

func TestGetTransactionsLastPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"data": [], "total": 250, "page": 3, "size": 100}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test")
	page, err := client.GetTransactions(context.Background(), "acc_1", TransactionsOptions{Limit: 100, Page: 3})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if page.HasNext() {
		t.Fatal("expected no next page for total=250 size=100 page=3")
	}
}

func TestServerErrorsClassifyAsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(server.URL, "sk_test")
	_, err := client.GetAccount(context.Background(), "acc_1")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable classification, got %v", err)
	}
}

/**
 * @description
 * This package provides a client for the Mono account-aggregation API. It
 * encapsulates authenticated HTTP requests against Mono's endpoints: code
 * exchange, account/identity/transaction fetches, reauthorisation, unlink and
 * manual data-sync triggers. The client carries no business logic and no
 * retries; provider failures are classified and surfaced to the caller.
 *
 * Monetary conversion rule: every amount or balance returned by this client is
 * converted from the provider's minor units (kobo) to major units (naira)
 * exactly once, here. Callers must never divide by 100 again.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, net/url, time: Standard Go libraries.
 */
package monoclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Sentinel classification of provider failures. API errors wrap one of these
// so callers can branch with errors.Is without inspecting status codes.
var (
	ErrAuth        = errors.New("mono: authorization failed")
	ErrNotFound    = errors.New("mono: resource not found")
	ErrUnavailable = errors.New("mono: provider unavailable")
)

// Client is a client for the Mono API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new Mono API client with a bounded request timeout.
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// APIError is a non-2xx response from the Mono API. It wraps one of the
// sentinel errors above according to the response status.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("mono api error: status=%d message=%q", e.Status, e.Message)
}

// Unwrap classifies the error by HTTP status so errors.Is works against the
// package sentinels.
func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusUnauthorized || e.Status == http.StatusForbidden || e.Status == http.StatusBadRequest:
		return ErrAuth
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status >= 500:
		return ErrUnavailable
	}
	return nil
}

// Institution is the bank an external account belongs to.
type Institution struct {
	Name     string `json:"name"`
	BankCode string `json:"bankCode"`
	Type     string `json:"type"`
}

// AccountDetails is the provider's view of a linked account. Balance is in
// major units (converted on receipt).
type AccountDetails struct {
	ID            string
	Name          string
	Institution   Institution
	AccountNumber string
	Type          string
	Balance       float64 // major units
	Currency      string
	BVN           string
	DataStatus    string
	AuthMethod    string
}

// Identity is the best-effort identity record attached to an account.
type Identity struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	BVN      string `json:"bvn"`
	Address  string `json:"address,omitempty"`
}

// Transaction is one provider transaction. Amount and Balance are converted to
// major units on receipt; Type keeps the provider's credit/debit direction.
type Transaction struct {
	ExternalID string
	Amount     float64 // major units, provider sign preserved
	Date       string
	Narration  string
	Type       string // "debit" or "credit"
	Category   string
	Balance    *float64 // balance after the transaction, major units
}

// TransactionsOptions bounds a transaction fetch.
type TransactionsOptions struct {
	Start string // ISO date, inclusive
	End   string // ISO date, inclusive
	Limit int
	Page  int
}

// Paging describes the provider's pagination envelope.
type Paging struct {
	Total int `json:"total"`
	Page  int `json:"page"`
	Size  int `json:"size"`
}

// TransactionsPage is one page of fetched transactions.
type TransactionsPage struct {
	Items  []Transaction
	Paging Paging
}

// HasNext reports whether another page should be fetched after this one.
func (p *TransactionsPage) HasNext() bool {
	if p.Paging.Size <= 0 {
		return false
	}
	return p.Paging.Page*p.Paging.Size < p.Paging.Total
}

// MinorToMajor converts a provider minor-unit amount (kobo) to major units
// (naira). This is the single conversion point for the whole service.
func MinorToMajor(minor float64) float64 {
	return minor / 100
}

// Auth exchanges a one-time Mono Connect authorization code for a durable
// external account id.
func (c *Client) Auth(ctx context.Context, code string) (string, error) {
	payload := map[string]string{"code": code}
	var out struct {
		ID string `json:"id"`
	}
	if err := c.do(ctx, http.MethodPost, "/account/auth", payload, &out); err != nil {
		return "", err
	}
	if out.ID == "" {
		return "", &APIError{Status: http.StatusBadGateway, Message: "auth response missing account id"}
	}
	return out.ID, nil
}

// accountEnvelope matches GET /accounts/{id}.
type accountEnvelope struct {
	Account struct {
		ID            string      `json:"_id"`
		Institution   Institution `json:"institution"`
		Name          string      `json:"name"`
		AccountNumber string      `json:"accountNumber"`
		Type          string      `json:"type"`
		Balance       float64     `json:"balance"` // kobo
		Currency      string      `json:"currency"`
		BVN           string      `json:"bvn"`
	} `json:"account"`
	Meta struct {
		DataStatus string `json:"data_status"`
		AuthMethod string `json:"auth_method"`
	} `json:"meta"`
}

// GetAccount fetches account metadata and current balance.
func (c *Client) GetAccount(ctx context.Context, accountID string) (*AccountDetails, error) {
	var env accountEnvelope
	if err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(accountID), nil, &env); err != nil {
		return nil, err
	}
	return &AccountDetails{
		ID:            env.Account.ID,
		Name:          env.Account.Name,
		Institution:   env.Account.Institution,
		AccountNumber: env.Account.AccountNumber,
		Type:          env.Account.Type,
		Balance:       MinorToMajor(env.Account.Balance),
		Currency:      env.Account.Currency,
		BVN:           env.Account.BVN,
		DataStatus:    env.Meta.DataStatus,
		AuthMethod:    env.Meta.AuthMethod,
	}, nil
}

// GetIdentity fetches the identity record for an account. Callers treat
// failures here as non-fatal.
func (c *Client) GetIdentity(ctx context.Context, accountID string) (*Identity, error) {
	var env struct {
		Data Identity `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/accounts/"+url.PathEscape(accountID)+"/identity", nil, &env); err != nil {
		return nil, err
	}
	return &env.Data, nil
}

// wireTransaction matches one item of GET /accounts/{id}/transactions.
type wireTransaction struct {
	ID        string   `json:"_id"`
	Amount    float64  `json:"amount"` // kobo
	Date      string   `json:"date"`
	Narration string   `json:"narration"`
	Type      string   `json:"type"`
	Category  string   `json:"category"`
	Balance   *float64 `json:"balance"` // kobo
}

// GetTransactions fetches one date-bounded page of transactions. Call
// repeatedly, advancing opts.Page while HasNext reports true, to drain pages.
func (c *Client) GetTransactions(ctx context.Context, accountID string, opts TransactionsOptions) (*TransactionsPage, error) {
	q := url.Values{}
	if opts.Start != "" {
		q.Set("start", opts.Start)
	}
	if opts.End != "" {
		q.Set("end", opts.End)
	}
	if opts.Limit > 0 {
		q.Set("limit", strconv.Itoa(opts.Limit))
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	q.Set("paginate", "true")

	path := "/accounts/" + url.PathEscape(accountID) + "/transactions?" + q.Encode()
	var env struct {
		Data  []wireTransaction `json:"data"`
		Total int               `json:"total"`
		Page  int               `json:"page"`
		Size  int               `json:"size"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &env); err != nil {
		return nil, err
	}

	page := &TransactionsPage{
		Items:  make([]Transaction, 0, len(env.Data)),
		Paging: Paging{Total: env.Total, Page: env.Page, Size: env.Size},
	}
	for _, w := range env.Data {
		tx := Transaction{
			ExternalID: w.ID,
			Amount:     MinorToMajor(w.Amount),
			Date:       w.Date,
			Narration:  w.Narration,
			Type:       w.Type,
			Category:   w.Category,
		}
		if w.Balance != nil {
			b := MinorToMajor(*w.Balance)
			tx.Balance = &b
		}
		page.Items = append(page.Items, tx)
	}
	return page, nil
}

// Reauthorize requests a reauthorisation token for an account whose
// credentials have gone stale.
func (c *Client) Reauthorize(ctx context.Context, accountID string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	if err := c.do(ctx, http.MethodPost, "/accounts/"+url.PathEscape(accountID)+"/reauthorise", nil, &out); err != nil {
		return "", err
	}
	return out.Token, nil
}

// Unlink severs the provider-side link for an account.
func (c *Client) Unlink(ctx context.Context, accountID string) error {
	var out struct {
		Message string `json:"message"`
	}
	return c.do(ctx, http.MethodPost, "/accounts/"+url.PathEscape(accountID)+"/unlink", nil, &out)
}

// TriggerSync asks the provider to refresh the account's data. Completion is
// reported asynchronously via webhook.
func (c *Client) TriggerSync(ctx context.Context, accountID string) error {
	var out struct {
		Status string `json:"status"`
	}
	return c.do(ctx, http.MethodPost, "/accounts/"+url.PathEscape(accountID)+"/sync", nil, &out)
}

// do executes one authenticated request and decodes the response into out.
func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("mono-sec-key", c.SecretKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		// Transport failures and timeouts are transient provider errors.
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: reading response: %v", ErrUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		var errBody struct {
			Message string `json:"message"`
		}
		if jsonErr := json.Unmarshal(raw, &errBody); jsonErr == nil && errBody.Message != "" {
			apiErr.Message = errBody.Message
		}
		log.Printf("level=warn component=mono_client op=%s status=%d message=%q", method+" "+path, resp.StatusCode, apiErr.Message)
		return apiErr
	}

	if out != nil {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

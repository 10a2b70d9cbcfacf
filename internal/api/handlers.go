/**
 * @description
 * This file contains the HTTP handlers for the account and transaction
 * endpoints. Handlers are thin: they decode the request, call into the
 * application service, and map service errors onto HTTP status codes.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app: The application service layer.
 * - internal/domain, internal/store: Domain models and store sentinels.
 */

package api

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/trackit-official/sync-service/internal/app"
	"github.com/trackit-official/sync-service/internal/domain"
	"github.com/trackit-official/sync-service/internal/store"
)

const (
	defaultTransactionLimit = 50
	maxTransactionLimit     = 100
)

// AccountHandlers bundles the account and transaction endpoints with their
// dependencies.
type AccountHandlers struct {
	service        *app.Service
	limiter        *app.RedisRateLimiter
	linkRateLimit  int
	linkRateWindow time.Duration
}

// NewAccountHandlers creates handlers backed by the given service. The
// limiter may be nil, in which case link requests are not rate limited.
func NewAccountHandlers(service *app.Service, limiter *app.RedisRateLimiter, linkRateLimit int, linkRateWindow time.Duration) *AccountHandlers {
	return &AccountHandlers{
		service:        service,
		limiter:        limiter,
		linkRateLimit:  linkRateLimit,
		linkRateWindow: linkRateWindow,
	}
}

type linkAccountRequest struct {
	Code string `json:"code"`
}

// HandleLinkAccount exchanges a provider auth code for a linked bank account.
// POST /v1/accounts/link
func (h *AccountHandlers) HandleLinkAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	if h.limiter != nil && h.linkRateLimit > 0 {
		count, retryAfter, err := h.limiter.Consume(r.Context(), "accounts:link", userID.String(), h.linkRateLimit, h.linkRateWindow)
		if err != nil {
			// Fail open: a limiter outage should not block linking.
			log.Printf("level=warn component=api msg=\"rate limiter unavailable\" error=%q", err)
		} else if count > h.linkRateLimit {
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			writeError(w, http.StatusTooManyRequests, "Too many link attempts, try again later")
			return
		}
	}

	var req linkAccountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "A valid 'code' is required")
		return
	}

	result, err := h.service.LinkAccount(r.Context(), userID, req.Code)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	status := http.StatusOK
	message := "Account link refreshed"
	if result.Created {
		status = http.StatusCreated
		message = "Account linked successfully"
	}
	writeJSON(w, status, map[string]interface{}{
		"message": message,
		"account": result.Account,
	})
}

// HandleListAccounts returns the caller's linked accounts with aggregates.
// GET /v1/accounts
func (h *AccountHandlers) HandleListAccounts(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	summary, err := h.service.ListAccounts(r.Context(), userID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// HandleReauthorize requests a fresh reauthorization token for an account
// whose consent has lapsed.
// POST /v1/accounts/{accountID}/reauthorize
func (h *AccountHandlers) HandleReauthorize(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	token, err := h.service.Reauthorize(r.Context(), userID, accountID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// HandleManualSync asks the provider to refresh an account's data on demand.
// POST /v1/accounts/{accountID}/sync
func (h *AccountHandlers) HandleManualSync(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	if err := h.service.TriggerManualSync(r.Context(), userID, accountID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync_requested"})
}

// HandleUnlinkAccount severs the provider connection and retires the account.
// POST /v1/accounts/{accountID}/unlink
func (h *AccountHandlers) HandleUnlinkAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}
	accountID, err := uuid.Parse(chi.URLParam(r, "accountID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid account ID")
		return
	}

	if err := h.service.UnlinkAccount(r.Context(), userID, accountID); err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "Account unlinked"})
}

// HandleListTransactions returns a filtered, paginated transaction feed with
// summary aggregates.
// GET /v1/transactions
func (h *AccountHandlers) HandleListTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	filter, err := parseTransactionFilter(r, userID)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.service.ListTransactions(r.Context(), filter)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// parseTransactionFilter builds a TransactionFilter from query parameters,
// applying the same defaults the dashboard uses: current page 1, 50 rows,
// and a one-month lookback when no start date is given.
func parseTransactionFilter(r *http.Request, userID uuid.UUID) (domain.TransactionFilter, error) {
	q := r.URL.Query()
	filter := domain.TransactionFilter{
		UserID: userID,
		Page:   1,
		Limit:  defaultTransactionLimit,
	}

	if raw := q.Get("page"); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil || page < 1 {
			return filter, errors.New("'page' must be a positive integer")
		}
		filter.Page = page
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			return filter, errors.New("'limit' must be a positive integer")
		}
		if limit > maxTransactionLimit {
			limit = maxTransactionLimit
		}
		filter.Limit = limit
	}

	now := time.Now().UTC()
	filter.EndDate = now
	filter.StartDate = now.AddDate(0, -1, 0)
	if raw := q.Get("startDate"); raw != "" {
		start, err := parseDateParam(raw)
		if err != nil {
			return filter, errors.New("'startDate' must be an RFC 3339 timestamp or YYYY-MM-DD date")
		}
		filter.StartDate = start
	}
	if raw := q.Get("endDate"); raw != "" {
		end, err := parseDateParam(raw)
		if err != nil {
			return filter, errors.New("'endDate' must be an RFC 3339 timestamp or YYYY-MM-DD date")
		}
		filter.EndDate = end
	}
	if filter.EndDate.Before(filter.StartDate) {
		return filter, errors.New("'endDate' must not be before 'startDate'")
	}

	if raw := q.Get("accountId"); raw != "" {
		accountID, err := uuid.Parse(raw)
		if err != nil {
			return filter, errors.New("'accountId' must be a valid UUID")
		}
		filter.AccountID = &accountID
	}
	if raw := q.Get("category"); raw != "" {
		filter.Category = &raw
	}
	if raw := q.Get("type"); raw != "" {
		txType := domain.TransactionType(raw)
		if txType != domain.TypeIncome && txType != domain.TypeExpense {
			return filter, errors.New("'type' must be INCOME or EXPENSE")
		}
		filter.Type = &txType
	}

	return filter, nil
}

func parseDateParam(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// writeServiceError maps application-layer sentinels to HTTP status codes.
func (h *AccountHandlers) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, app.ErrLinkCodeInvalid):
		writeError(w, http.StatusBadRequest, "The provided linking code is invalid or expired")
	case errors.Is(err, app.ErrAccountNotLinked):
		writeError(w, http.StatusBadRequest, "The account is no longer linked to a provider connection")
	case errors.Is(err, store.ErrAccountNotFound):
		writeError(w, http.StatusNotFound, "Account not found")
	case errors.Is(err, app.ErrProviderUnavailable):
		writeError(w, http.StatusBadGateway, "The banking provider is currently unavailable")
	default:
		log.Printf("level=error component=api msg=\"unhandled service error\" error=%q", err)
		writeError(w, http.StatusInternalServerError, "An internal error occurred")
	}
}

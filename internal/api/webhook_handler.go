/**
 * @description
 * This file contains the Mono webhook endpoint. It verifies the HMAC-SHA512
 * signature over the raw request body before any parsing, normalizes the
 * payload's drifting field spellings into a single domain.ProviderEvent, and
 * hands that to the application layer. Unknown event types are acknowledged
 * with 200 so the provider does not retry deliveries we will never handle.
 *
 * @dependencies
 * - pkg/monoclient: Constant-time webhook signature verification.
 * - internal/domain: The canonical ProviderEvent shape.
 */

package api

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/trackit-official/sync-service/internal/domain"
	"github.com/trackit-official/sync-service/pkg/monoclient"
)

// signatureHeader is the header Mono signs deliveries with.
const signatureHeader = "mono-webhook-signature"

// maxWebhookBodyBytes caps webhook payload reads. Provider payloads are a few
// KB; anything larger is not a legitimate delivery.
const maxWebhookBodyBytes = 1 << 20

// EventSink receives normalized provider events. Implemented by app.Service.
type EventSink interface {
	ApplyProviderEvent(ctx context.Context, event domain.ProviderEvent) error
}

// WebhookHandler verifies and normalizes incoming Mono webhook deliveries.
type WebhookHandler struct {
	secret string
	events EventSink
}

// NewWebhookHandler creates a handler that authenticates deliveries with the
// given webhook secret.
func NewWebhookHandler(secret string, events EventSink) *WebhookHandler {
	return &WebhookHandler{secret: secret, events: events}
}

// HandleMonoWebhook processes POST /webhooks/mono.
func (h *WebhookHandler) HandleMonoWebhook(w http.ResponseWriter, r *http.Request) {
	rawBody, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Failed to read request body")
		return
	}

	signature := r.Header.Get(signatureHeader)
	if signature == "" {
		log.Printf("level=warn component=webhook msg=\"delivery missing signature header\"")
		writeError(w, http.StatusUnauthorized, "Missing webhook signature")
		return
	}
	if !monoclient.VerifyWebhookSignature(h.secret, signature, rawBody) {
		log.Printf("level=warn component=webhook msg=\"delivery failed signature verification\"")
		writeError(w, http.StatusUnauthorized, "Invalid webhook signature")
		return
	}

	var envelope webhookEnvelope
	if err := json.Unmarshal(rawBody, &envelope); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed webhook payload")
		return
	}

	event := normalizeWebhookEvent(envelope)
	if event.Kind == domain.EventUnknown {
		log.Printf("level=info component=webhook msg=\"ignoring unknown event type\" event=%q", event.RawEvent)
		writeJSON(w, http.StatusOK, map[string]string{"status": "ignored"})
		return
	}

	if err := h.events.ApplyProviderEvent(r.Context(), event); err != nil {
		log.Printf("level=error component=webhook msg=\"failed to apply event\" event=%q error=%q", event.RawEvent, err)
		writeError(w, http.StatusInternalServerError, "Failed to process event")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "processed"})
}

// webhookEnvelope mirrors the top level of a Mono webhook delivery.
type webhookEnvelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// webhookData captures every field spelling the provider has shipped for the
// data object. Monetary amounts arrive in minor units (kobo).
type webhookData struct {
	ID        *string             `json:"_id"`
	AccountID *string             `json:"account_id"`
	Account   *webhookAccountData `json:"account"`

	Status     *string `json:"status"`
	DataStatus *string `json:"data_status"`

	ReauthToken   *string `json:"reauth_token"`
	ReauthTokenGB *string `json:"reauthorisation_token"`

	Meta *struct {
		DataStatus *string `json:"data_status"`
	} `json:"meta"`

	Transactions []webhookTransaction `json:"transactions"`
}

type webhookAccountData struct {
	ID         *string  `json:"_id"`
	Balance    *float64 `json:"balance"` // minor units
	Status     *string  `json:"status"`
	DataStatus *string  `json:"data_status"`
}

type webhookTransaction struct {
	ID        string   `json:"_id"`
	Amount    float64  `json:"amount"` // minor units
	Type      string   `json:"type"`
	Narration string   `json:"narration"`
	Category  *string  `json:"category"`
	Balance   *float64 `json:"balance"` // minor units
	Date      string   `json:"date"`
}

// eventKinds maps the provider's event strings, including both the British
// and American reauthorisation spellings, to canonical kinds.
var eventKinds = map[string]domain.ProviderEventKind{
	"mono.events.account_updated":            domain.EventAccountUpdated,
	"mono.events.account_reauthorized":       domain.EventAccountReauthorized,
	"mono.events.account_reauthorised":       domain.EventAccountReauthorized,
	"mono.events.reauthorisation_required":   domain.EventReauthRequired,
	"mono.events.reauthorization_required":   domain.EventReauthRequired,
	"mono.events.new_transaction":            domain.EventNewTransactions,
	"mono.events.new_transactions":           domain.EventNewTransactions,
	"mono.events.transactions_updated":       domain.EventNewTransactions,
	"mono.events.account_synced":             domain.EventDataSyncCompleted,
	"mono.events.data_sync":                  domain.EventDataSyncCompleted,
	"mono.events.data_sync_completed":        domain.EventDataSyncCompleted,
	"mono.events.account_unlinked":           domain.EventAccountUnlinked,
	"mono.events.account_connection_revoked": domain.EventAccountUnlinked,
}

// normalizeWebhookEvent flattens a raw delivery into the canonical event
// shape, hunting for the account id across the spellings the provider has
// used and converting all amounts to major units exactly once.
func normalizeWebhookEvent(envelope webhookEnvelope) domain.ProviderEvent {
	event := domain.ProviderEvent{
		Kind:     domain.EventUnknown,
		RawEvent: envelope.Event,
	}
	if kind, ok := eventKinds[strings.TrimSpace(envelope.Event)]; ok {
		event.Kind = kind
	}

	var data webhookData
	if len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, &data); err != nil {
			log.Printf("level=warn component=webhook msg=\"unparseable data object\" event=%q error=%q", envelope.Event, err)
			return event
		}
	}

	event.ExternalID = firstNonEmpty(
		accountField(data.Account, func(a *webhookAccountData) *string { return a.ID }),
		data.AccountID,
		data.ID,
	)

	if data.Account != nil && data.Account.Balance != nil {
		balance := monoclient.MinorToMajor(*data.Account.Balance)
		event.Balance = &balance
	}

	event.AccountState = firstNonNil(
		accountField(data.Account, func(a *webhookAccountData) *string { return a.Status }),
		data.Status,
	)
	event.DataStatus = firstNonNil(
		accountField(data.Account, func(a *webhookAccountData) *string { return a.DataStatus }),
		data.DataStatus,
		metaDataStatus(data),
	)
	event.ReauthToken = firstNonNil(data.ReauthToken, data.ReauthTokenGB)

	for _, item := range data.Transactions {
		tx := domain.ProviderTransaction{
			ExternalID: item.ID,
			Amount:     monoclient.MinorToMajor(item.Amount),
			Type:       item.Type,
			Narration:  item.Narration,
			Category:   item.Category,
			Date:       item.Date,
		}
		if item.Balance != nil {
			balanceAfter := monoclient.MinorToMajor(*item.Balance)
			tx.BalanceAfter = &balanceAfter
		}
		event.Transactions = append(event.Transactions, tx)
	}

	return event
}

func accountField(account *webhookAccountData, pick func(*webhookAccountData) *string) *string {
	if account == nil {
		return nil
	}
	return pick(account)
}

func metaDataStatus(data webhookData) *string {
	if data.Meta == nil {
		return nil
	}
	return data.Meta.DataStatus
}

func firstNonEmpty(candidates ...*string) string {
	for _, candidate := range candidates {
		if candidate != nil && *candidate != "" {
			return *candidate
		}
	}
	return ""
}

func firstNonNil(candidates ...*string) *string {
	for _, candidate := range candidates {
		if candidate != nil && *candidate != "" {
			return candidate
		}
	}
	return nil
}

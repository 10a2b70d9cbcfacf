/**
 * @description
 * This file defines the canonical webhook event struct. The Mono webhook
 * payload shape has drifted across provider revisions (account ids appearing
 * as data.account._id, data.account_id or data._id; tokens under two
 * spellings), so the HTTP boundary normalizes every delivery into one
 * ProviderEvent before any handler sees it. Handlers never hunt through raw
 * JSON.
 */

package domain

// ProviderEventKind identifies a webhook event family after normalization.
type ProviderEventKind string

const (
	EventAccountUpdated      ProviderEventKind = "account_updated"
	EventAccountReauthorized ProviderEventKind = "account_reauthorized"
	EventReauthRequired      ProviderEventKind = "reauthorisation_required"
	EventNewTransactions     ProviderEventKind = "new_transactions"
	EventDataSyncCompleted   ProviderEventKind = "data_sync_completed"
	EventAccountUnlinked     ProviderEventKind = "account_unlinked"
	EventUnknown             ProviderEventKind = "unknown"
)

// ProviderTransaction is one transaction item carried inline in a webhook
// payload, already converted to major units by the normalization step.
type ProviderTransaction struct {
	ExternalID   string
	Amount       float64 // major units, provider sign preserved
	Type         string  // "credit" or "debit"
	Narration    string
	Category     *string
	BalanceAfter *float64 // major units
	Date         string   // provider timestamp, RFC3339 or yyyy-mm-dd
}

// ProviderEvent is the single canonical shape every webhook delivery is
// normalized into. Missing payload fields are nil, never guessed.
type ProviderEvent struct {
	Kind       ProviderEventKind
	RawEvent   string // provider event string as delivered, for logging
	ExternalID string // provider account id; empty when the payload had none

	Balance      *float64 // major units
	AccountState *string  // provider's own account state string, if any
	DataStatus   *string
	ReauthToken  *string

	Transactions []ProviderTransaction // inline items for new_transactions, may be empty
}

package models

import (
	"encoding/json"
	"time"
)

// PurchaseEvent is a store transaction delivered by the billing provider.
// TransactionID is the idempotency key and is passed through unchanged.
type PurchaseEvent struct {
	SKU           string          `json:"sku"`
	TransactionID string          `json:"transaction_id"`
	PurchaseToken string          `json:"purchase_token,omitempty"`
	Receipt       string          `json:"receipt,omitempty"`
	Platform      Platform        `json:"platform"`
	RawPayload    json.RawMessage `json:"raw_payload,omitempty"`
}

// ProofOfPurchase returns the token on android and the receipt on ios.
func (e PurchaseEvent) ProofOfPurchase() string {
	if e.PurchaseToken != "" {
		return e.PurchaseToken
	}
	return e.Receipt
}

// SubscriptionGrant is the input of the subscription ledger RPC. Category is
// what the classifier decided; empty means unknown.
type SubscriptionGrant struct {
	UserID         int64
	ProductID      string
	TransactionID  string
	PurchaseToken  string
	Platform       Platform
	Category       ProductCategory
	ReceiptPayload json.RawMessage
}

// ConsumableGrant is the input of the consumable ledger RPC.
type ConsumableGrant struct {
	UserID         int64
	ProductID      string
	TransactionID  string
	Platform       Platform
	Category       ProductCategory
	ReceiptPayload json.RawMessage
}

// LedgerResult mirrors the backend's {success, message} reply.
type LedgerResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// LedgerFailure is kept for manual reconciliation when a grant could not be recorded.
type LedgerFailure struct {
	ID            string          `json:"id"`
	UserID        int64           `json:"user_id"`
	SKU           string          `json:"sku"`
	TransactionID string          `json:"transaction_id"`
	Platform      Platform        `json:"platform"`
	Category      ProductCategory `json:"category"`
	Consumable    bool            `json:"consumable"`
	Reason        string          `json:"reason"`
	Finished      bool            `json:"finished"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

package billing

import (
	"context"
	"fmt"

	"matchBack/internal/models"
)

// Logger provides minimal logging required by billing adapters.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// RequestShape selects how a purchase request is encoded for the store SDK.
// SDK versions disagree on whether a single sku or a sku list is expected.
type RequestShape string

const (
	ShapeSingle RequestShape = "single"
	ShapeList   RequestShape = "list"
)

// Alternate returns the other request shape.
func (s RequestShape) Alternate() RequestShape {
	if s == ShapeList {
		return ShapeSingle
	}
	return ShapeList
}

// PurchaseRequest asks the store to start a buy flow.
type PurchaseRequest struct {
	SKU   string
	Shape RequestShape
}

// Provider is the store billing SDK as seen from the purchase core.
type Provider interface {
	InitConnection(ctx context.Context) error
	EndConnection(ctx context.Context) error
	GetProducts(ctx context.Context, skus []string) ([]models.StoreProduct, error)
	RequestPurchase(ctx context.Context, req PurchaseRequest) error
	RequestSubscription(ctx context.Context, req PurchaseRequest) error
	// OnPurchaseUpdated registers a listener and returns its unregister func.
	OnPurchaseUpdated(fn func(models.PurchaseEvent)) func()
	OnPurchaseError(fn func(error)) func()
	FinishTransaction(ctx context.Context, purchase models.PurchaseEvent, consumable bool) error
	PendingPurchases(ctx context.Context) ([]models.PurchaseEvent, error)
	AvailablePurchases(ctx context.Context) ([]models.PurchaseEvent, error)
	OpenSubscriptionManagement(ctx context.Context, sku string) error
	Platform() models.Platform
}

// Store error codes reported by the native SDK.
const (
	CodeUserCancelled   = "E_USER_CANCELLED"
	CodeNetwork         = "E_NETWORK_ERROR"
	CodeItemUnavailable = "E_ITEM_UNAVAILABLE"
	CodeNotPrepared     = "E_NOT_PREPARED"
	CodeServiceError    = "E_SERVICE_ERROR"
	CodeDeveloperError  = "E_DEVELOPER_ERROR"
)

// ProviderError is an error reported by the store SDK.
type ProviderError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ProviderError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("billing provider: %s", e.Code)
	}
	return fmt.Sprintf("billing provider: %s: %s", e.Code, e.Message)
}

// Unwrap maps store codes onto the shared error taxonomy.
func (e *ProviderError) Unwrap() error {
	switch e.Code {
	case CodeUserCancelled:
		return models.ErrUserCancelled
	case CodeNetwork:
		return models.ErrNetwork
	case CodeItemUnavailable:
		return models.ErrProductNotFound
	case CodeNotPrepared:
		return models.ErrConnection
	default:
		return nil
	}
}

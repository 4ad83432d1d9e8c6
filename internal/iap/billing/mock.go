package billing

import (
	"context"
	"sync"

	"matchBack/internal/models"
)

var _ Provider = (*Mock)(nil)

// Mock implements Provider for tests. Each method can be configured via a
// function field; unset fields succeed with zero values.
type Mock struct {
	PlatformValue models.Platform

	InitConnectionFunc      func(ctx context.Context) error
	EndConnectionFunc       func(ctx context.Context) error
	GetProductsFunc         func(ctx context.Context, skus []string) ([]models.StoreProduct, error)
	RequestPurchaseFunc     func(ctx context.Context, req PurchaseRequest) error
	RequestSubscriptionFunc func(ctx context.Context, req PurchaseRequest) error
	FinishTransactionFunc   func(ctx context.Context, p models.PurchaseEvent, consumable bool) error
	PendingPurchasesFunc    func(ctx context.Context) ([]models.PurchaseEvent, error)
	AvailablePurchasesFunc  func(ctx context.Context) ([]models.PurchaseEvent, error)
	OpenManagementFunc      func(ctx context.Context, sku string) error

	once sync.Once
	ls   *listeners
}

func (m *Mock) listeners() *listeners {
	m.once.Do(func() { m.ls = newListeners() })
	return m.ls
}

// InitConnection calls InitConnectionFunc or succeeds.
func (m *Mock) InitConnection(ctx context.Context) error {
	if m.InitConnectionFunc != nil {
		return m.InitConnectionFunc(ctx)
	}
	return nil
}

// EndConnection calls EndConnectionFunc or succeeds.
func (m *Mock) EndConnection(ctx context.Context) error {
	if m.EndConnectionFunc != nil {
		return m.EndConnectionFunc(ctx)
	}
	return nil
}

// GetProducts calls GetProductsFunc or returns nothing.
func (m *Mock) GetProducts(ctx context.Context, skus []string) ([]models.StoreProduct, error) {
	if m.GetProductsFunc != nil {
		return m.GetProductsFunc(ctx, skus)
	}
	return nil, nil
}

// RequestPurchase calls RequestPurchaseFunc or succeeds.
func (m *Mock) RequestPurchase(ctx context.Context, req PurchaseRequest) error {
	if m.RequestPurchaseFunc != nil {
		return m.RequestPurchaseFunc(ctx, req)
	}
	return nil
}

// RequestSubscription calls RequestSubscriptionFunc or succeeds.
func (m *Mock) RequestSubscription(ctx context.Context, req PurchaseRequest) error {
	if m.RequestSubscriptionFunc != nil {
		return m.RequestSubscriptionFunc(ctx, req)
	}
	return nil
}

// OnPurchaseUpdated registers fn; use EmitPurchase to trigger it.
func (m *Mock) OnPurchaseUpdated(fn func(models.PurchaseEvent)) func() {
	return m.listeners().addUpdated(fn)
}

// OnPurchaseError registers fn; use EmitError to trigger it.
func (m *Mock) OnPurchaseError(fn func(error)) func() {
	return m.listeners().addFailed(fn)
}

// FinishTransaction calls FinishTransactionFunc or succeeds.
func (m *Mock) FinishTransaction(ctx context.Context, p models.PurchaseEvent, consumable bool) error {
	if m.FinishTransactionFunc != nil {
		return m.FinishTransactionFunc(ctx, p, consumable)
	}
	return nil
}

// PendingPurchases calls PendingPurchasesFunc or returns nothing.
func (m *Mock) PendingPurchases(ctx context.Context) ([]models.PurchaseEvent, error) {
	if m.PendingPurchasesFunc != nil {
		return m.PendingPurchasesFunc(ctx)
	}
	return nil, nil
}

// AvailablePurchases calls AvailablePurchasesFunc or returns nothing.
func (m *Mock) AvailablePurchases(ctx context.Context) ([]models.PurchaseEvent, error) {
	if m.AvailablePurchasesFunc != nil {
		return m.AvailablePurchasesFunc(ctx)
	}
	return nil, nil
}

// OpenSubscriptionManagement calls OpenManagementFunc or succeeds.
func (m *Mock) OpenSubscriptionManagement(ctx context.Context, sku string) error {
	if m.OpenManagementFunc != nil {
		return m.OpenManagementFunc(ctx, sku)
	}
	return nil
}

// Platform returns PlatformValue, android by default.
func (m *Mock) Platform() models.Platform {
	if m.PlatformValue == "" {
		return models.PlatformAndroid
	}
	return m.PlatformValue
}

// EmitPurchase delivers ev to registered purchase listeners.
func (m *Mock) EmitPurchase(ev models.PurchaseEvent) {
	m.listeners().emitUpdated(ev)
}

// EmitError delivers err to registered error listeners.
func (m *Mock) EmitError(err error) {
	m.listeners().emitFailed(err)
}

// ListenerCount reports registered purchase and error listeners.
func (m *Mock) ListenerCount() (updated, failed int) {
	return m.listeners().count()
}

package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"matchBack/internal/iap/billing"
	"matchBack/internal/iap/catalog"
	"matchBack/internal/iap/reconcile"
	"matchBack/internal/iap/retry"
	"matchBack/internal/iap/sweep"
	"matchBack/internal/models"
)

type testLogger struct{}

func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}

type stubStore struct {
	entries []models.CatalogEntry
	err     error
	calls   int
}

func (s *stubStore) ActiveEntries(ctx context.Context) ([]models.CatalogEntry, error) {
	s.calls++
	return s.entries, s.err
}

type countingLedger struct {
	mu    sync.Mutex
	calls []string
}

func (l *countingLedger) ProcessSubscription(ctx context.Context, g models.SubscriptionGrant) (models.LedgerResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, "sub:"+g.TransactionID)
	return models.LedgerResult{Success: true}, nil
}

func (l *countingLedger) ProcessConsumablePurchase(ctx context.Context, g models.ConsumableGrant) (models.LedgerResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, "cons:"+g.TransactionID)
	return models.LedgerResult{Success: true}, nil
}

type fixture struct {
	provider *billing.Mock
	store    *stubStore
	ledger   *countingLedger
	waits    []time.Duration
	finished []string
	manager  *Manager
	resolver *catalog.Resolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store: &stubStore{entries: []models.CatalogEntry{
			{ID: 1, ProductType: "consumable", AndroidProductID: "boost.hour1", Active: true},
		}},
		ledger: &countingLedger{},
	}
	var mu sync.Mutex
	f.provider = &billing.Mock{
		GetProductsFunc: func(ctx context.Context, skus []string) ([]models.StoreProduct, error) {
			out := make([]models.StoreProduct, 0, len(skus))
			for _, s := range skus {
				out = append(out, models.StoreProduct{SKU: s})
			}
			return out, nil
		},
		FinishTransactionFunc: func(ctx context.Context, p models.PurchaseEvent, consumable bool) error {
			mu.Lock()
			f.finished = append(f.finished, p.TransactionID)
			mu.Unlock()
			return nil
		},
	}
	f.resolver = catalog.NewResolver(f.store, f.provider, catalog.Config{Platform: models.PlatformAndroid}, testLogger{})
	rec := reconcile.New(1, f.ledger, f.provider, f.resolver, nil, testLogger{})
	sw := sweep.New(f.provider, rec, testLogger{})
	r := retry.Retrier{
		Policy: DefaultConnectPolicy,
		Sleep: func(ctx context.Context, d time.Duration) error {
			f.waits = append(f.waits, d)
			return nil
		},
	}
	f.manager = NewManager(1, f.provider, f.resolver, rec, sw, Options{Retrier: r}, testLogger{})
	return f
}

func TestInitializeHappyPath(t *testing.T) {
	f := newFixture(t)
	f.provider.PendingPurchasesFunc = func(ctx context.Context) ([]models.PurchaseEvent, error) {
		return []models.PurchaseEvent{{SKU: "boost.hour1", TransactionID: "P1"}}, nil
	}

	if err := f.manager.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	if f.manager.State() != StateReady {
		t.Fatalf("expected ready, got %s", f.manager.State())
	}
	if len(f.waits) != 0 {
		t.Fatalf("no retry expected, got %v", f.waits)
	}
	if len(f.resolver.Products()) != 1 {
		t.Fatalf("products not fetched: %v", f.resolver.Products())
	}
	if upd, errs := f.provider.ListenerCount(); upd != 1 || errs != 1 {
		t.Fatalf("expected listeners registered, got %d/%d", upd, errs)
	}
	if len(f.ledger.calls) != 1 || f.ledger.calls[0] != "cons:P1" {
		t.Fatalf("pending purchase not swept: %v", f.ledger.calls)
	}

	if err := f.manager.Initialize(context.Background()); err != nil {
		t.Fatalf("second Initialize: %v", err)
	}
	if f.store.calls != 1 {
		t.Fatalf("Initialize on a ready session must be a no-op, catalog loaded %d times", f.store.calls)
	}
}

func TestInitializeDegradesAfterRetries(t *testing.T) {
	f := newFixture(t)
	attempts := 0
	f.provider.InitConnectionFunc = func(ctx context.Context) error {
		attempts++
		return errors.New("billing unavailable")
	}
	f.store.err = errors.New("catalog down")

	err := f.manager.Initialize(context.Background())
	if !errors.Is(err, models.ErrConnection) {
		t.Fatalf("expected ErrConnection, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
	if len(f.waits) != 2 || f.waits[0] != time.Second || f.waits[1] != time.Second {
		t.Fatalf("expected two 1s waits, got %v", f.waits)
	}
	if f.manager.State() != StateReady {
		t.Fatalf("session should be ready even without a connection, got %s", f.manager.State())
	}
	if !errors.Is(f.manager.Degraded(), models.ErrConnection) {
		t.Fatal("Degraded should report the connection error")
	}
	if upd, _ := f.provider.ListenerCount(); upd != 1 {
		t.Fatal("listener registration must run after a failed catalog load")
	}
}

func TestLivePurchaseFlowsThroughReconciler(t *testing.T) {
	f := newFixture(t)
	if err := f.manager.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	ev := models.PurchaseEvent{SKU: "boost.hour1", TransactionID: "T1"}
	f.provider.EmitPurchase(ev)
	f.provider.EmitPurchase(ev)

	if len(f.ledger.calls) != 2 {
		t.Fatalf("expected ledger call per delivery, got %v", f.ledger.calls)
	}
	if len(f.finished) != 2 {
		t.Fatalf("expected finish per delivery, got %v", f.finished)
	}
}

func TestPurchaseErrorsReachHandler(t *testing.T) {
	f := newFixture(t)
	var got []error
	f.manager.onError = func(err error) { got = append(got, err) }
	_ = f.manager.Initialize(context.Background())

	f.provider.EmitError(&billing.ProviderError{Code: billing.CodeUserCancelled})
	if len(got) != 1 || !errors.Is(got[0], models.ErrUserCancelled) {
		t.Fatalf("unexpected errors: %v", got)
	}
}

func TestFinalizeIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ends := 0
	f.provider.EndConnectionFunc = func(ctx context.Context) error {
		ends++
		return nil
	}
	_ = f.manager.Initialize(context.Background())

	if err := f.manager.Finalize(context.Background()); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if err := f.manager.Finalize(context.Background()); err != nil {
		t.Fatalf("second Finalize: %v", err)
	}
	if ends != 1 {
		t.Fatalf("expected a single EndConnection, got %d", ends)
	}
	if upd, errs := f.provider.ListenerCount(); upd != 0 || errs != 0 {
		t.Fatalf("listeners not removed: %d/%d", upd, errs)
	}
	if f.manager.State() != StateDisconnected {
		t.Fatalf("expected disconnected, got %s", f.manager.State())
	}

	f.provider.EmitPurchase(models.PurchaseEvent{SKU: "boost.hour1", TransactionID: "late"})
	if len(f.ledger.calls) != 0 {
		t.Fatal("events after finalize must not be reconciled")
	}
}

func TestRegistryReplacesOlderSession(t *testing.T) {
	r := NewRegistry()
	first := &Session{UserID: 5}
	second := &Session{UserID: 5}

	if prev := r.Put(first); prev != nil {
		t.Fatal("unexpected previous session")
	}
	if prev := r.Put(second); prev != first {
		t.Fatal("expected first session to be replaced")
	}
	if r.Remove(first) {
		t.Fatal("stale session must not remove the live one")
	}
	if got, ok := r.Get(5); !ok || got != second {
		t.Fatal("second session should be live")
	}
	if !r.Remove(second) {
		t.Fatal("expected removal")
	}
	if len(r.All()) != 0 {
		t.Fatal("registry should be empty")
	}
}

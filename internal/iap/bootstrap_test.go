package iap

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"matchBack/internal/iap/billing"
	"matchBack/internal/iap/journal"
	"matchBack/internal/iap/reconcile"
	"matchBack/internal/iap/session"
	"matchBack/internal/models"
)

type testLogger struct{}

func (testLogger) Infof(string, ...interface{})  {}
func (testLogger) Errorf(string, ...interface{}) {}

type staticStore struct {
	mu      sync.Mutex
	entries []models.CatalogEntry
	calls   int
}

func (s *staticStore) ActiveEntries(context.Context) ([]models.CatalogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	return s.entries, nil
}

type okLedger struct{}

func (okLedger) ProcessSubscription(context.Context, models.SubscriptionGrant) (models.LedgerResult, error) {
	return models.LedgerResult{Success: true}, nil
}

func (okLedger) ProcessConsumablePurchase(context.Context, models.ConsumableGrant) (models.LedgerResult, error) {
	return models.LedgerResult{Success: true}, nil
}

type recordingObserver struct {
	granted []string
	failed  []string
}

func (o *recordingObserver) Granted(_ context.Context, _ int64, res reconcile.Result) {
	o.granted = append(o.granted, res.TransactionID)
}

func (o *recordingObserver) LedgerFailed(_ context.Context, _ int64, res reconcile.Result) {
	o.failed = append(o.failed, res.TransactionID)
}

func newTestModule(store *staticStore, observers ...reconcile.Observer) *Module {
	return &Module{
		cfg: Config{
			BatchSize:       5,
			ConnectAttempts: 1,
			FallbackSKUs:    []string{"boost_1"},
			WellKnownSKUs:   map[models.ProductCategory]string{models.CategoryBoost: "boost_1"},
		},
		logger:    testLogger{},
		store:     store,
		ledger:    okLedger{},
		observers: observers,
		sessions:  session.NewRegistry(),
	}
}

func TestOpenSessionReplacesPrevious(t *testing.T) {
	m := newTestModule(&staticStore{})

	var ended sync.WaitGroup
	ended.Add(1)
	first := &billing.Mock{
		PlatformValue: models.PlatformIOS,
		EndConnectionFunc: func(context.Context) error {
			ended.Done()
			return nil
		},
	}
	s1 := m.OpenSession(7, first)
	if err := s1.Manager.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	s2 := m.OpenSession(7, &billing.Mock{PlatformValue: models.PlatformIOS})
	ended.Wait()

	live, ok := m.Sessions().Get(7)
	if !ok || live != s2 {
		t.Fatal("expected the newest session to be live")
	}
	if s1.Manager.State() != session.StateDisconnected {
		t.Fatalf("previous session state = %s", s1.Manager.State())
	}

	m.CloseSession(s1)
	if _, ok := m.Sessions().Get(7); !ok {
		t.Fatal("closing a replaced session must not drop the live one")
	}
	m.CloseSession(s2)
	if _, ok := m.Sessions().Get(7); ok {
		t.Fatal("expected session removed")
	}
}

func TestSessionGrantReachesObservers(t *testing.T) {
	obs := &recordingObserver{}
	store := &staticStore{entries: []models.CatalogEntry{{ID: 1, ProductType: "consumable", IOSProductID: "boost_5", Active: true}}}
	m := newTestModule(store, obs)

	provider := &billing.Mock{PlatformValue: models.PlatformIOS}
	s := m.OpenSession(3, provider)
	if err := s.Manager.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}

	provider.EmitPurchase(models.PurchaseEvent{SKU: "boost_5", TransactionID: "tx-1", Platform: models.PlatformIOS})
	if len(obs.granted) != 1 || obs.granted[0] != "tx-1" {
		t.Fatalf("granted = %v", obs.granted)
	}
}

func TestRefreshAllSkipsSessionsNotReady(t *testing.T) {
	store := &staticStore{}
	m := newTestModule(store)

	ready := m.OpenSession(1, &billing.Mock{PlatformValue: models.PlatformAndroid})
	if err := ready.Manager.Initialize(context.Background()); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	m.OpenSession(2, &billing.Mock{PlatformValue: models.PlatformAndroid})

	before := store.calls
	if n := m.RefreshAll(context.Background()); n != 1 {
		t.Fatalf("refreshed %d sessions, want 1", n)
	}
	if store.calls != before+1 {
		t.Fatalf("expected one catalog load, got %d", store.calls-before)
	}
}

type fakeDevice struct {
	notices []billing.Notice
	err     error
}

func (d *fakeDevice) Notify(n billing.Notice) error {
	d.notices = append(d.notices, n)
	return d.err
}

func TestDeviceNotice(t *testing.T) {
	dev := &fakeDevice{}
	n := deviceNotice{device: dev, logger: testLogger{}}

	n.Granted(context.Background(), 1, reconcile.Result{Category: models.CategoryBoost, TransactionID: "a"})
	n.LedgerFailed(context.Background(), 1, reconcile.Result{Category: models.CategoryBoost, TransactionID: "b", LedgerErr: models.ErrLedger})
	if len(dev.notices) != 2 {
		t.Fatalf("expected 2 notices, got %d", len(dev.notices))
	}
	if dev.notices[0].Title == dev.notices[1].Title {
		t.Fatal("grant and failure should read differently")
	}

	dev.err = errors.New("closed")
	n.Granted(context.Background(), 1, reconcile.Result{TransactionID: "c"})
}

// memList is a Redis list kept in memory.
type memList struct {
	items []string
}

func (l *memList) RPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	for _, v := range values {
		switch x := v.(type) {
		case []byte:
			l.items = append(l.items, string(x))
		case string:
			l.items = append(l.items, x)
		}
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(l.items)))
	return cmd
}

func (l *memList) LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd {
	cmd := redis.NewStringSliceCmd(ctx)
	cmd.SetVal(append([]string(nil), l.items...))
	return cmd
}

func (l *memList) LTrim(ctx context.Context, key string, start, stop int64) *redis.StatusCmd {
	if int(start) <= len(l.items) {
		l.items = l.items[start:]
	}
	cmd := redis.NewStatusCmd(ctx)
	cmd.SetVal("OK")
	return cmd
}

func (l *memList) LLen(ctx context.Context, key string) *redis.IntCmd {
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(l.items)))
	return cmd
}

func TestPendingLedgerFailures(t *testing.T) {
	m := newTestModule(&staticStore{})
	if n, err := m.PendingLedgerFailures(context.Background()); err != nil || n != 0 {
		t.Fatalf("without a journal: %d, %v", n, err)
	}

	m.journal = journal.New(&memList{}, "iap:ledger:failures", testLogger{})
	err := m.journal.Record(context.Background(), models.LedgerFailure{
		UserID:        1,
		SKU:           "boost_1",
		TransactionID: "T1",
		OccurredAt:    time.Now(),
	})
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if n, err := m.PendingLedgerFailures(context.Background()); err != nil || n != 1 {
		t.Fatalf("expected 1 pending failure, got %d, %v", n, err)
	}
}

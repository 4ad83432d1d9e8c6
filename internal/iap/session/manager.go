package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"matchBack/internal/iap/billing"
	"matchBack/internal/iap/catalog"
	"matchBack/internal/iap/reconcile"
	"matchBack/internal/iap/retry"
	"matchBack/internal/iap/sweep"
	"matchBack/internal/models"
)

// Logger provides minimal logging required by the session manager.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// State is the connection lifecycle of a session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// DefaultConnectPolicy is three attempts one second apart.
var DefaultConnectPolicy = retry.Policy{MaxAttempts: 3, BaseDelay: time.Second}

// Manager owns the provider connection and listener registration of one session.
type Manager struct {
	userID     int64
	provider   billing.Provider
	resolver   *catalog.Resolver
	reconciler *reconcile.Reconciler
	sweeper    *sweep.Sweeper
	retrier    retry.Retrier
	onError    func(error)
	logger     Logger

	mu       sync.Mutex
	state    State
	degraded error
	unsubs   []func()
	cancel   context.CancelFunc
}

// Options configure a Manager.
type Options struct {
	Retrier retry.Retrier
	// OnPurchaseError receives store errors reported outside a buy request.
	OnPurchaseError func(error)
}

// NewManager constructs a Manager in the disconnected state.
func NewManager(userID int64, provider billing.Provider, resolver *catalog.Resolver, reconciler *reconcile.Reconciler, sweeper *sweep.Sweeper, opts Options, logger Logger) *Manager {
	if opts.Retrier.Policy.MaxAttempts == 0 {
		opts.Retrier.Policy = DefaultConnectPolicy
	}
	return &Manager{
		userID:     userID,
		provider:   provider,
		resolver:   resolver,
		reconciler: reconciler,
		sweeper:    sweeper,
		retrier:    opts.Retrier,
		onError:    opts.OnPurchaseError,
		logger:     logger,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Degraded returns the connection error the session became ready with, if any.
func (m *Manager) Degraded() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.degraded
}

// Initialize connects to the provider and brings the session to ready. The
// session becomes ready even when every connection attempt failed; the
// returned error then wraps models.ErrConnection and is informational.
// After connecting it loads the catalog, registers listeners, fetches
// products and sweeps pending purchases, each step isolated from the others.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	m.state = StateConnecting
	m.mu.Unlock()

	var connErr error
	attempts, err := m.retrier.Do(ctx, func(ctx context.Context, attempt int) error {
		if err := m.provider.InitConnection(ctx); err != nil {
			m.logger.Errorf("session %d: connect attempt %d failed: %v", m.userID, attempt, err)
			return err
		}
		return nil
	})
	if err != nil {
		connErr = fmt.Errorf("%w after %d attempts: %v", models.ErrConnection, attempts, err)
		m.logger.Errorf("session %d: continuing without store connection: %v", m.userID, connErr)
	}

	listenCtx, cancel := context.WithCancel(context.Background())
	m.mu.Lock()
	if m.state != StateConnecting {
		// finalized while connecting
		m.mu.Unlock()
		cancel()
		return connErr
	}
	m.state = StateReady
	m.degraded = connErr
	m.cancel = cancel
	m.mu.Unlock()
	m.logger.Infof("session %d: ready (platform %s)", m.userID, m.provider.Platform())

	m.step("load catalog", func() error { return m.resolver.LoadCatalog(ctx) })
	m.step("register listeners", func() error {
		m.registerListeners(listenCtx)
		return nil
	})
	m.step("fetch products", func() error {
		_, err := m.resolver.GetProducts(ctx)
		return err
	})
	m.step("sweep pending purchases", func() error {
		m.sweeper.Sweep(ctx)
		return nil
	})
	return connErr
}

func (m *Manager) step(name string, fn func() error) {
	defer func() {
		if r := recover(); r != nil {
			m.logger.Errorf("session %d: %s panicked: %v", m.userID, name, r)
		}
	}()
	if err := fn(); err != nil {
		m.logger.Errorf("session %d: %s: %v", m.userID, name, err)
	}
}

func (m *Manager) registerListeners(ctx context.Context) {
	offUpdated := m.provider.OnPurchaseUpdated(func(ev models.PurchaseEvent) {
		m.reconciler.Handle(ctx, ev)
	})
	offError := m.provider.OnPurchaseError(func(err error) {
		m.logger.Errorf("session %d: store reported: %v", m.userID, err)
		if m.onError != nil {
			m.onError(err)
		}
	})
	m.mu.Lock()
	m.unsubs = append(m.unsubs, offUpdated, offError)
	m.mu.Unlock()
}

// Finalize unregisters listeners and closes the provider connection. Calling
// it on a torn down session does nothing.
func (m *Manager) Finalize(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateDisconnected {
		m.mu.Unlock()
		return nil
	}
	unsubs := m.unsubs
	cancel := m.cancel
	m.unsubs = nil
	m.cancel = nil
	m.state = StateDisconnected
	m.degraded = nil
	m.mu.Unlock()

	for _, off := range unsubs {
		off()
	}
	if cancel != nil {
		cancel()
	}
	if err := m.provider.EndConnection(ctx); err != nil {
		return fmt.Errorf("end connection: %w", err)
	}
	m.logger.Infof("session %d: finalized", m.userID)
	return nil
}

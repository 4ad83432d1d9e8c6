package iap

import (
	"context"
	"time"

	"matchBack/internal/iap/billing"
	"matchBack/internal/iap/catalog"
	"matchBack/internal/iap/entitlement"
	"matchBack/internal/iap/journal"
	"matchBack/internal/iap/notify"
	"matchBack/internal/iap/present"
	"matchBack/internal/iap/reconcile"
	"matchBack/internal/iap/retry"
	"matchBack/internal/iap/session"
	"matchBack/internal/iap/sweep"
	"matchBack/internal/models"
	"matchBack/internal/repositories"
)

const (
	catalogRefreshTimeout = 2 * time.Minute
	finalizeTimeout       = 10 * time.Second
)

// Module owns the shared purchase components and the live sessions.
type Module struct {
	cfg    Config
	logger Logger

	store        catalog.Store
	cache        *repositories.CachedCatalog
	ledger       reconcile.Ledger
	tokens       *repositories.NotifyTokenRepository
	entitlements *entitlement.Service
	journal      *journal.Journal
	archiver     *journal.Archiver
	observers    reconcile.Observers
	playMeta     billing.MetadataSource
	sessions     *session.Registry
}

// NewModule wires repositories and shared services. Schema creation runs here
// so entitlement reads never race the first grant.
func NewModule(ctx context.Context, deps *Deps) (*Module, error) {
	if err := deps.Validate(); err != nil {
		return nil, err
	}

	ledger := repositories.NewLedgerRepository(deps.DB, deps.Dialect)
	if err := ledger.Migrate(ctx); err != nil {
		return nil, err
	}
	catalogRepo := repositories.NewCatalogRepository(deps.DB, deps.Dialect)
	tokens := repositories.NewNotifyTokenRepository(deps.DB, deps.Dialect)

	m := &Module{
		cfg:          deps.Config,
		logger:       deps.Logger,
		store:        catalogRepo,
		ledger:       ledger,
		tokens:       tokens,
		entitlements: entitlement.NewService(repositories.NewEntitlementRepository(deps.DB, deps.Dialect), deps.Logger),
		playMeta:     deps.PlayMetadata,
		sessions:     session.NewRegistry(),
	}

	if deps.Redis != nil {
		m.cache = repositories.NewCachedCatalog(catalogRepo, deps.Redis, deps.Config.CatalogCacheTTL, deps.Logger)
		m.store = m.cache
		m.journal = journal.New(deps.Redis, deps.Config.JournalKey, deps.Logger)
		m.observers = append(m.observers, m.journal)
		if deps.Archive != nil {
			m.archiver = journal.NewArchiver(m.journal, deps.Archive, deps.Config.ArchivePrefix, deps.Config.ArchiveBatch, deps.Logger)
		}
	}
	if deps.Messaging != nil {
		m.observers = append(m.observers, notify.New(deps.Messaging, tokens, deps.Logger))
	}
	return m, nil
}

func (m *Module) Sessions() *session.Registry { return m.sessions }

func (m *Module) Entitlements() *entitlement.Service { return m.entitlements }

func (m *Module) Tokens() *repositories.NotifyTokenRepository { return m.tokens }

// PendingLedgerFailures is the number of journaled grants waiting for manual
// reconciliation. It is zero when the journal is disabled.
func (m *Module) PendingLedgerFailures(ctx context.Context) (int64, error) {
	if m.journal == nil {
		return 0, nil
	}
	return m.journal.Len(ctx)
}

// OpenSession builds the components of one device session and makes it the
// user's live session. The caller serves the provider and then calls
// Initialize on the returned session's Manager.
func (m *Module) OpenSession(userID int64, provider billing.Provider) *session.Session {
	device, canNotify := provider.(noticeSender)
	if provider.Platform() == models.PlatformAndroid {
		provider = billing.WithMetadata(provider, m.playMeta, m.logger)
	}

	resolver := catalog.NewResolver(m.store, provider, catalog.Config{
		Platform:     provider.Platform(),
		FallbackSKUs: m.cfg.FallbackSKUs,
		BatchSize:    m.cfg.BatchSize,
	}, m.logger)

	observers := append(reconcile.Observers{}, m.observers...)
	if canNotify {
		observers = append(observers, deviceNotice{device: device, logger: m.logger})
	}
	reconciler := reconcile.New(userID, m.ledger, provider, resolver, observers, m.logger)
	sweeper := sweep.New(provider, reconciler, m.logger)

	policy := retry.Policy{MaxAttempts: m.cfg.ConnectAttempts, BaseDelay: m.cfg.ConnectDelay}
	manager := session.NewManager(userID, provider, resolver, reconciler, sweeper, session.Options{
		Retrier: retry.New(policy),
		OnPurchaseError: func(err error) {
			m.logger.Errorf("iap: user %d store error: %v", userID, err)
		},
	}, m.logger)

	s := &session.Session{
		UserID:    userID,
		Platform:  provider.Platform(),
		Provider:  provider,
		Manager:   manager,
		Resolver:  resolver,
		Requester: reconcile.NewRequester(resolver, provider, m.cfg.WellKnownSKUs, m.logger),
	}
	if prev := m.sessions.Put(s); prev != nil {
		m.logger.Infof("iap: user %d reconnected, closing previous session", userID)
		go m.finalize(prev)
	}
	return s
}

// CloseSession finalizes s and drops it from the registry if it is still live.
func (m *Module) CloseSession(s *session.Session) {
	m.sessions.Remove(s)
	m.finalize(s)
}

func (m *Module) finalize(s *session.Session) {
	ctx, cancel := context.WithTimeout(context.Background(), finalizeTimeout)
	defer cancel()
	if err := s.Manager.Finalize(ctx); err != nil {
		m.logger.Errorf("iap: finalize session of user %d: %v", s.UserID, err)
	}
}

// StartWorkers launches the catalog refresher and, when configured, the
// ledger failure archiver. Both stop with ctx.
func (m *Module) StartWorkers(ctx context.Context) {
	m.startCatalogRefresher(ctx)
	if m.archiver != nil {
		go m.archiver.Run(ctx, m.cfg.ArchiveInterval)
	}
}

func (m *Module) startCatalogRefresher(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.cfg.CatalogRefreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.RefreshAll(ctx)
			}
		}
	}()
}

// RefreshAll drops the cached catalog and refreshes every ready session.
func (m *Module) RefreshAll(ctx context.Context) int {
	runCtx, cancel := context.WithTimeout(ctx, catalogRefreshTimeout)
	defer cancel()

	if m.cache != nil {
		if err := m.cache.Invalidate(runCtx); err != nil {
			m.logger.Errorf("iap: catalog cache invalidate: %v", err)
		}
	}
	refreshed := 0
	for _, s := range m.sessions.All() {
		if s.Manager.State() != session.StateReady {
			continue
		}
		if err := s.Resolver.Refresh(runCtx); err != nil {
			m.logger.Errorf("iap: catalog refresh for user %d: %v", s.UserID, err)
			continue
		}
		refreshed++
	}
	if refreshed > 0 {
		m.logger.Infof("iap: catalog refreshed for %d sessions", refreshed)
	}
	return refreshed
}

type noticeSender interface {
	Notify(n billing.Notice) error
}

// deviceNotice tells the device about grants made outside a foreground buy,
// such as sweeps and late deliveries.
type deviceNotice struct {
	device noticeSender
	logger Logger
}

func (d deviceNotice) Granted(_ context.Context, userID int64, res reconcile.Result) {
	d.send(userID, res)
}

func (d deviceNotice) LedgerFailed(_ context.Context, userID int64, res reconcile.Result) {
	d.send(userID, res)
}

func (d deviceNotice) send(userID int64, res reconcile.Result) {
	msg := present.ForResult(res)
	if !msg.Show {
		return
	}
	if err := d.device.Notify(billing.Notice{Title: msg.Title, Body: msg.Body}); err != nil {
		d.logger.Errorf("iap: notice to user %d: %v", userID, err)
	}
}

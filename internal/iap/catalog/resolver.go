package catalog

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"golang.org/x/exp/slices"

	"matchBack/internal/iap/classify"
	"matchBack/internal/models"
)

// DefaultBatchSize is how many SKUs are sent to the store per lookup.
const DefaultBatchSize = 5

// Logger provides minimal logging required by the resolver.
type Logger interface {
	Infof(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}

// Store returns the active catalog rows.
type Store interface {
	ActiveEntries(ctx context.Context) ([]models.CatalogEntry, error)
}

// ProductSource resolves store metadata for SKUs.
type ProductSource interface {
	GetProducts(ctx context.Context, skus []string) ([]models.StoreProduct, error)
}

// Snapshot is an immutable view of the catalog and store products.
type Snapshot struct {
	Entries    []models.CatalogEntry
	Products   []models.StoreProduct
	Classifier *classify.Classifier
}

// Config tunes the resolver.
type Config struct {
	Platform     models.Platform
	FallbackSKUs []string
	BatchSize    int
}

// Resolver merges catalog SKUs with fallback SKUs and resolves live store metadata.
type Resolver struct {
	store  Store
	source ProductSource
	cfg    Config
	logger Logger

	// writeMu serializes writers; readers only load snap.
	writeMu sync.Mutex
	snap    atomic.Pointer[Snapshot]
}

// NewResolver constructs a Resolver with an empty snapshot.
func NewResolver(store Store, source ProductSource, cfg Config, logger Logger) *Resolver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	r := &Resolver{store: store, source: source, cfg: cfg, logger: logger}
	r.snap.Store(&Snapshot{Classifier: classify.New(nil)})
	return r
}

// Snapshot returns the currently published snapshot.
func (r *Resolver) Snapshot() *Snapshot {
	return r.snap.Load()
}

// Classifier returns the classifier for the current catalog.
func (r *Resolver) Classifier() *classify.Classifier {
	return r.snap.Load().Classifier
}

// Platform is the store platform SKUs are picked for.
func (r *Resolver) Platform() models.Platform {
	return r.cfg.Platform
}

// LoadCatalog replaces the catalog entries. On failure the previous entries
// stay in place (empty on first load) and the error is returned for logging.
func (r *Resolver) LoadCatalog(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	old := r.snap.Load()
	entries, err := r.readEntries(ctx)
	if err != nil {
		return err
	}
	r.snap.Store(&Snapshot{
		Entries:    entries,
		Products:   old.Products,
		Classifier: classify.New(entries),
	})
	return nil
}

func (r *Resolver) readEntries(ctx context.Context) ([]models.CatalogEntry, error) {
	entries, err := r.store.ActiveEntries(ctx)
	if err != nil {
		r.logger.Errorf("catalog: load failed, keeping %d entries: %v", len(r.snap.Load().Entries), err)
		return nil, fmt.Errorf("%w: %v", models.ErrCatalogLoad, err)
	}
	active := make([]models.CatalogEntry, 0, len(entries))
	for _, e := range entries {
		if e.Active {
			active = append(active, e)
		}
	}
	r.logger.Infof("catalog: loaded %d active entries", len(active))
	return active, nil
}

// AllProductIDs returns the sorted set of platform SKUs from the catalog
// merged with the fallback list.
func (r *Resolver) AllProductIDs() []string {
	return productIDs(r.snap.Load().Entries, r.cfg.Platform, r.cfg.FallbackSKUs)
}

func productIDs(entries []models.CatalogEntry, platform models.Platform, fallback []string) []string {
	set := make(map[string]struct{}, len(entries)+len(fallback))
	for _, e := range entries {
		if sku := e.SKU(platform); sku != "" {
			set[sku] = struct{}{}
		}
	}
	for _, sku := range fallback {
		if sku = strings.TrimSpace(sku); sku != "" {
			set[sku] = struct{}{}
		}
	}
	return sortedKeys(set)
}

// GetProducts resolves store metadata for AllProductIDs and publishes it.
// Lookup failures are logged; the result is the best-effort union.
func (r *Resolver) GetProducts(ctx context.Context) ([]models.StoreProduct, error) {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	old := r.snap.Load()
	ids := productIDs(old.Entries, r.cfg.Platform, r.cfg.FallbackSKUs)
	products := r.fetch(ctx, ids)
	r.snap.Store(&Snapshot{
		Entries:    old.Entries,
		Products:   products,
		Classifier: old.Classifier,
	})
	r.logger.Infof("catalog: resolved %d of %d products", len(products), len(ids))
	return products, nil
}

// fetch queries batches and isolates failures. When every batch fails it
// retries one SKU at a time.
func (r *Resolver) fetch(ctx context.Context, ids []string) []models.StoreProduct {
	if len(ids) == 0 {
		return nil
	}
	var (
		out      []models.StoreProduct
		okCount  int
		batchNum int
	)
	for start := 0; start < len(ids); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batchNum++
		products, err := r.source.GetProducts(ctx, ids[start:end])
		if err != nil {
			r.logger.Errorf("catalog: batch %d %v failed: %v", batchNum, ids[start:end], err)
			continue
		}
		okCount++
		out = append(out, products...)
	}
	if okCount > 0 {
		return dedupe(out)
	}

	r.logger.Errorf("catalog: all %d batches failed, querying skus one by one", batchNum)
	for _, id := range ids {
		products, err := r.source.GetProducts(ctx, []string{id})
		if err != nil {
			r.logger.Errorf("catalog: sku %s lookup failed: %v", id, err)
			continue
		}
		out = append(out, products...)
	}
	return dedupe(out)
}

func dedupe(products []models.StoreProduct) []models.StoreProduct {
	seen := make(map[string]struct{}, len(products))
	out := products[:0]
	for _, p := range products {
		if p.SKU == "" {
			continue
		}
		if _, ok := seen[p.SKU]; ok {
			continue
		}
		seen[p.SKU] = struct{}{}
		out = append(out, p)
	}
	return out
}

// Refresh reloads the catalog and the store products and publishes both in
// one snapshot. A failed catalog load keeps the previous entries.
func (r *Resolver) Refresh(ctx context.Context) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()

	old := r.snap.Load()
	next := &Snapshot{Entries: old.Entries, Classifier: old.Classifier}
	entries, loadErr := r.readEntries(ctx)
	if loadErr == nil {
		next.Entries = entries
		next.Classifier = classify.New(entries)
	}
	ids := productIDs(next.Entries, r.cfg.Platform, r.cfg.FallbackSKUs)
	next.Products = r.fetch(ctx, ids)
	r.snap.Store(next)
	r.logger.Infof("catalog: refreshed, %d entries, %d of %d products", len(next.Entries), len(next.Products), len(ids))
	return loadErr
}

// Products returns the published store products.
func (r *Resolver) Products() []models.StoreProduct {
	return r.snap.Load().Products
}

// ProductsByType returns published products whose SKU classifies as category.
func (r *Resolver) ProductsByType(category models.ProductCategory) []models.StoreProduct {
	s := r.snap.Load()
	out := make([]models.StoreProduct, 0, len(s.Products))
	for _, p := range s.Products {
		if s.Classifier.Classify(p.SKU) == category {
			out = append(out, p)
		}
	}
	return out
}

// CatalogSKU returns the platform SKU of the entry matching product, which may
// be a SKU of either platform or the entry name.
func (r *Resolver) CatalogSKU(product string) (string, bool) {
	want := classify.CanonicalSKU(product)
	if want == "" {
		return "", false
	}
	for _, e := range r.snap.Load().Entries {
		sku := e.SKU(r.cfg.Platform)
		if sku == "" {
			continue
		}
		if classify.CanonicalSKU(e.AndroidProductID) == want ||
			classify.CanonicalSKU(e.IOSProductID) == want ||
			strings.EqualFold(strings.TrimSpace(e.Name), strings.TrimSpace(product)) {
			return sku, true
		}
	}
	return "", false
}

// CandidateSKUs lists every SKU the resolver knows for this platform.
func (r *Resolver) CandidateSKUs() []string {
	s := r.snap.Load()
	ids := productIDs(s.Entries, r.cfg.Platform, r.cfg.FallbackSKUs)
	set := make(map[string]struct{}, len(ids)+len(s.Products))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	for _, p := range s.Products {
		set[p.SKU] = struct{}{}
	}
	return sortedKeys(set)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

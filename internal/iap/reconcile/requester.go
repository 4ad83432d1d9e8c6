package reconcile

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"matchBack/internal/iap/billing"
	"matchBack/internal/iap/classify"
	"matchBack/internal/models"
)

// SKUSource records which resolution step produced the SKU.
type SKUSource string

const (
	SourceCatalog   SKUSource = "catalog"
	SourceHeuristic SKUSource = "heuristic"
	SourceWellKnown SKUSource = "well_known"
)

// Purchaser starts store buy flows.
type Purchaser interface {
	RequestPurchase(ctx context.Context, req billing.PurchaseRequest) error
	RequestSubscription(ctx context.Context, req billing.PurchaseRequest) error
}

// SKUCatalog is the read side of the catalog resolver used for SKU resolution.
type SKUCatalog interface {
	CatalogSKU(product string) (string, bool)
	CandidateSKUs() []string
	Classifier() *classify.Classifier
}

// Requester resolves a logical product to a store SKU and asks the store to sell it.
type Requester struct {
	catalog   SKUCatalog
	purchaser Purchaser
	wellKnown map[models.ProductCategory]string
	logger    Logger
}

// NewRequester constructs a Requester. wellKnown holds the last resort SKU per category.
func NewRequester(catalog SKUCatalog, purchaser Purchaser, wellKnown map[models.ProductCategory]string, logger Logger) *Requester {
	return &Requester{catalog: catalog, purchaser: purchaser, wellKnown: wellKnown, logger: logger}
}

// ResolveSKU maps product to a SKU: exact catalog match, then a remap by
// category and pack size, then the well-known SKU of the category.
func (q *Requester) ResolveSKU(product string, category models.ProductCategory) (string, SKUSource, error) {
	if sku, ok := q.catalog.CatalogSKU(product); ok {
		return sku, SourceCatalog, nil
	}
	if category == "" {
		category = classify.Heuristic(product)
	}
	if sku, ok := remap(product, category, q.catalog.CandidateSKUs(), q.catalog.Classifier()); ok {
		return sku, SourceHeuristic, nil
	}
	if sku := strings.TrimSpace(q.wellKnown[category]); sku != "" {
		return sku, SourceWellKnown, nil
	}
	return "", "", fmt.Errorf("%w: %q (%s)", models.ErrProductNotFound, product, category)
}

// remap picks the first candidate of the category whose digit runs contain
// the pack size found in product.
func remap(product string, category models.ProductCategory, candidates []string, c *classify.Classifier) (string, bool) {
	sizes := digitRuns(product)
	if len(sizes) == 0 {
		return "", false
	}
	pack := sizes[len(sizes)-1]
	for _, sku := range candidates {
		if c.Classify(sku) != category {
			continue
		}
		for _, run := range digitRuns(sku) {
			if run == pack {
				return sku, true
			}
		}
	}
	return "", false
}

func digitRuns(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool { return !unicode.IsDigit(r) })
}

// Buy starts a purchase. A store rejection is retried once with the
// alternate request shape; cancellation is not retried.
func (q *Requester) Buy(ctx context.Context, product string, category models.ProductCategory) Outcome {
	sku, source, err := q.ResolveSKU(product, category)
	if err != nil {
		q.logger.Errorf("purchase: resolve %q: %v", product, err)
		return Outcome{Kind: Decide(err), Category: category, Err: err}
	}
	if category == "" {
		category = q.catalog.Classifier().Classify(sku)
	}
	out := Outcome{SKU: sku, Category: category, SKUSource: source}

	send := q.purchaser.RequestPurchase
	if category == models.CategorySubscription {
		send = q.purchaser.RequestSubscription
	}

	req := billing.PurchaseRequest{SKU: sku, Shape: billing.ShapeSingle}
	err = send(ctx, req)
	if err != nil && Decide(err) != OutcomeCancelled {
		q.logger.Errorf("purchase: %s rejected with %s shape, retrying: %v", sku, req.Shape, err)
		req.Shape = req.Shape.Alternate()
		err = send(ctx, req)
	}

	out.Kind = Decide(err)
	out.Err = err
	switch out.Kind {
	case OutcomeSuccess:
		q.logger.Infof("purchase: requested %s (%s, via %s)", sku, category, source)
	case OutcomeCancelled:
		q.logger.Infof("purchase: %s cancelled by user", sku)
	default:
		q.logger.Errorf("purchase: %s failed: %v", sku, err)
	}
	return out
}

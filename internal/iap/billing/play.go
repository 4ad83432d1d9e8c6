package billing

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	androidpublisher "google.golang.org/api/androidpublisher/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"matchBack/internal/models"
)

// PlayConfig configures server side product metadata lookups on Google Play.
type PlayConfig struct {
	PackageName        string
	ServiceAccountJSON string
}

// PlayCatalog reads in-app product listings from the Play Developer API.
type PlayCatalog struct {
	packageName string
	svc         *androidpublisher.Service
}

// NewPlayCatalog builds a Play Developer API client.
func NewPlayCatalog(ctx context.Context, cfg PlayConfig) (*PlayCatalog, error) {
	cfg.PackageName = strings.TrimSpace(cfg.PackageName)
	if cfg.PackageName == "" {
		return nil, errors.New("GOOGLE_PLAY_PACKAGE_NAME is empty")
	}
	if strings.TrimSpace(cfg.ServiceAccountJSON) == "" {
		return nil, errors.New("GOOGLE_PLAY_SERVICE_ACCOUNT_JSON is empty")
	}
	svc, err := androidpublisher.NewService(ctx,
		option.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)),
		option.WithScopes(androidpublisher.AndroidpublisherScope),
	)
	if err != nil {
		return nil, fmt.Errorf("androidpublisher.NewService: %w", err)
	}
	return &PlayCatalog{packageName: cfg.PackageName, svc: svc}, nil
}

// ProductMetadata returns listings for the SKUs Play knows as managed products.
// Unknown SKUs (including subscriptions) are skipped.
func (p *PlayCatalog) ProductMetadata(ctx context.Context, skus []string) ([]models.StoreProduct, error) {
	out := make([]models.StoreProduct, 0, len(skus))
	for _, sku := range skus {
		item, err := p.svc.Inappproducts.Get(p.packageName, sku).Context(ctx).Do()
		if err != nil {
			var gerr *googleapi.Error
			if errors.As(err, &gerr) && gerr.Code == http.StatusNotFound {
				continue
			}
			return out, fmt.Errorf("google inappproducts.get %s: %w", sku, err)
		}
		out = append(out, playProduct(item))
	}
	return out, nil
}

func playProduct(item *androidpublisher.InAppProduct) models.StoreProduct {
	sp := models.StoreProduct{SKU: item.Sku}
	if l, ok := item.Listings[item.DefaultLanguage]; ok {
		sp.Title = l.Title
	}
	if item.DefaultPrice != nil {
		sp.LocalizedPrice = formatMicros(item.DefaultPrice.PriceMicros, item.DefaultPrice.Currency)
	}
	if raw, err := item.MarshalJSON(); err == nil {
		sp.RawMetadata = raw
	}
	return sp
}

func formatMicros(micros, currency string) string {
	v, err := strconv.ParseInt(micros, 10, 64)
	if err != nil {
		return strings.TrimSpace(micros + " " + currency)
	}
	return fmt.Sprintf("%d.%02d %s", v/1_000_000, (v%1_000_000)/10_000, currency)
}

// MetadataSource supplies product metadata without going through the device.
type MetadataSource interface {
	ProductMetadata(ctx context.Context, skus []string) ([]models.StoreProduct, error)
}

type metadataProvider struct {
	Provider
	src    MetadataSource
	logger Logger
}

// WithMetadata serves GetProducts from src and asks the wrapped provider
// for whatever src failed to describe.
func WithMetadata(p Provider, src MetadataSource, logger Logger) Provider {
	if src == nil {
		return p
	}
	return &metadataProvider{Provider: p, src: src, logger: logger}
}

func (m *metadataProvider) GetProducts(ctx context.Context, skus []string) ([]models.StoreProduct, error) {
	products, err := m.src.ProductMetadata(ctx, skus)
	if err != nil {
		if m.logger != nil {
			m.logger.Errorf("play metadata lookup failed, asking device: %v", err)
		}
		return m.Provider.GetProducts(ctx, skus)
	}

	seen := make(map[string]struct{}, len(products))
	for _, p := range products {
		seen[p.SKU] = struct{}{}
	}
	missing := make([]string, 0, len(skus))
	for _, sku := range skus {
		if _, ok := seen[sku]; !ok {
			missing = append(missing, sku)
		}
	}
	if len(missing) == 0 {
		return products, nil
	}

	rest, err := m.Provider.GetProducts(ctx, missing)
	if err != nil {
		if len(products) == 0 {
			return nil, err
		}
		if m.logger != nil {
			m.logger.Errorf("device product lookup for %v failed: %v", missing, err)
		}
		return products, nil
	}
	return append(products, rest...), nil
}

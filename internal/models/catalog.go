package models

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Platform identifies the store a session talks to.
type Platform string

const (
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

// ParsePlatform normalizes a platform name received from a client.
func ParsePlatform(v string) (Platform, error) {
	switch Platform(strings.ToLower(strings.TrimSpace(v))) {
	case PlatformAndroid:
		return PlatformAndroid, nil
	case PlatformIOS:
		return PlatformIOS, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidPlatform, v)
	}
}

// ProductCategory is what a purchase grants.
type ProductCategory string

const (
	CategorySubscription ProductCategory = "SUBSCRIPTION"
	CategoryBoost        ProductCategory = "BOOST"
	CategorySuperLike    ProductCategory = "SUPERLIKE"
	CategoryCredit       ProductCategory = "CREDIT"
)

// ParseCategory accepts both the enum spelling and the lower-case product_type spelling.
func ParseCategory(v string) (ProductCategory, error) {
	switch strings.ToUpper(strings.TrimSpace(v)) {
	case string(CategorySubscription):
		return CategorySubscription, nil
	case string(CategoryBoost):
		return CategoryBoost, nil
	case string(CategorySuperLike), "SUPER_LIKE":
		return CategorySuperLike, nil
	case string(CategoryCredit), "CREDITS":
		return CategoryCredit, nil
	default:
		return "", fmt.Errorf("unknown product category: %q", v)
	}
}

// ProductTypeConsumable marks catalog rows that grant a repeatable balance.
const ProductTypeConsumable = "consumable"

// CatalogEntry is one purchasable item as stored by the backend.
type CatalogEntry struct {
	ID               int64   `json:"id"`
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	Price            float64 `json:"price"`
	ProductType      string  `json:"product_type"`
	AndroidProductID string  `json:"android_product_id"`
	IOSProductID     string  `json:"ios_product_id"`
	Active           bool    `json:"active"`
}

// SKU returns the platform specific store identifier of the entry.
func (e CatalogEntry) SKU(p Platform) string {
	if p == PlatformIOS {
		return strings.TrimSpace(e.IOSProductID)
	}
	return strings.TrimSpace(e.AndroidProductID)
}

// StoreProduct is live product metadata returned by the billing provider.
type StoreProduct struct {
	SKU            string          `json:"sku"`
	Title          string          `json:"title"`
	LocalizedPrice string          `json:"localized_price"`
	RawMetadata    json.RawMessage `json:"raw_metadata,omitempty"`
}

package classify

import (
	"strings"

	"matchBack/internal/models"
)

type tableEntry struct {
	productType string
	category    models.ProductCategory
	typed       bool
}

// Table is a lookup from canonical SKU to catalog metadata.
type Table map[string]tableEntry

// productTypeCategories lists product_type values that name a category directly.
var productTypeCategories = map[string]models.ProductCategory{
	"subscription": models.CategorySubscription,
	"boost":        models.CategoryBoost,
	"superlike":    models.CategorySuperLike,
	"super_like":   models.CategorySuperLike,
	"credit":       models.CategoryCredit,
	"credits":      models.CategoryCredit,
}

// CanonicalSKU is the table key for a SKU.
func CanonicalSKU(sku string) string {
	return strings.ToLower(strings.TrimSpace(sku))
}

// BuildTable indexes both platform SKUs of every entry.
func BuildTable(entries []models.CatalogEntry) Table {
	t := make(Table, len(entries)*2)
	for _, e := range entries {
		pt := strings.ToLower(strings.TrimSpace(e.ProductType))
		te := tableEntry{productType: pt}
		if c, ok := productTypeCategories[pt]; ok {
			te.category = c
			te.typed = true
		}
		for _, sku := range []string{e.AndroidProductID, e.IOSProductID} {
			key := CanonicalSKU(sku)
			if key == "" {
				continue
			}
			if _, exists := t[key]; exists {
				continue
			}
			t[key] = te
		}
	}
	return t
}

// Classifier answers category and consumability questions for a fixed catalog snapshot.
type Classifier struct {
	table Table
}

// New builds a Classifier from catalog entries.
func New(entries []models.CatalogEntry) *Classifier {
	return &Classifier{table: BuildTable(entries)}
}

// Classify returns the category from catalog metadata, falling back to Heuristic.
func (c *Classifier) Classify(sku string) models.ProductCategory {
	if c != nil {
		if e, ok := c.table[CanonicalSKU(sku)]; ok && e.typed {
			return e.category
		}
	}
	return Heuristic(sku)
}

// IsConsumable reports whether the catalog marks the SKU as consumable,
// either with the generic consumable type or a typed boost, superlike or
// credit row. Unknown SKUs are not consumable.
func (c *Classifier) IsConsumable(sku string) bool {
	if c == nil {
		return false
	}
	e, ok := c.table[CanonicalSKU(sku)]
	if !ok {
		return false
	}
	if e.typed {
		return e.category != models.CategorySubscription
	}
	return e.productType == models.ProductTypeConsumable
}

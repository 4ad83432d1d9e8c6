package classify

import (
	"strings"

	"matchBack/internal/models"
)

type rule struct {
	category models.ProductCategory
	needles  []string
}

// rules are checked in order; the first match wins.
var rules = []rule{
	{models.CategorySubscription, []string{"premium", "subscription"}},
	{models.CategoryBoost, []string{"boost"}},
	{models.CategorySuperLike, []string{"superlike", "super_like"}},
	{models.CategoryCredit, []string{"credit", "msgcredits", "giftcredits"}},
}

// DefaultCategory is returned when no rule matches.
const DefaultCategory = models.CategoryBoost

// Heuristic guesses the category from the SKU text alone.
func Heuristic(sku string) models.ProductCategory {
	s := strings.ToLower(sku)
	for _, r := range rules {
		for _, n := range r.needles {
			if strings.Contains(s, n) {
				return r.category
			}
		}
	}
	return DefaultCategory
}

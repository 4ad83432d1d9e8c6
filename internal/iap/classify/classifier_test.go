package classify

import (
	"testing"

	"matchBack/internal/models"
)

func TestHeuristicPriority(t *testing.T) {
	cases := []struct {
		sku  string
		want models.ProductCategory
	}{
		{"com.app.premium.monthly", models.CategorySubscription},
		{"Subscription_Gold", models.CategorySubscription},
		{"premium_boost_bundle", models.CategorySubscription},
		{"boost.hour1", models.CategoryBoost},
		{"BOOST_5", models.CategoryBoost},
		{"superlike.pack5", models.CategorySuperLike},
		{"super_like_10", models.CategorySuperLike},
		{"superlike_credit_pack", models.CategorySuperLike},
		{"msgcredits.pack10", models.CategoryCredit},
		{"giftcredits_50", models.CategoryCredit},
		{"credit.small", models.CategoryCredit},
		{"mystery.item", models.CategoryBoost},
		{"", models.CategoryBoost},
	}
	for _, tc := range cases {
		t.Run(tc.sku, func(t *testing.T) {
			if got := Heuristic(tc.sku); got != tc.want {
				t.Errorf("Heuristic(%q) = %s, want %s", tc.sku, got, tc.want)
			}
		})
	}
}

func testCatalog() []models.CatalogEntry {
	return []models.CatalogEntry{
		{ID: 1, Name: "Boost 1h", ProductType: "consumable", AndroidProductID: "boost.hour1", IOSProductID: "ios.boost.hour1", Active: true},
		{ID: 2, Name: "Premium", ProductType: "subscription", AndroidProductID: "gold.monthly", IOSProductID: "ios.gold.monthly", Active: true},
		{ID: 3, Name: "Credits", ProductType: "credit", AndroidProductID: "pack.ten", Active: true},
		{ID: 4, Name: "Likes", ProductType: "consumable", AndroidProductID: "superlike.pack5", Active: true},
	}
}

func TestClassifyPrefersCatalogType(t *testing.T) {
	c := New(testCatalog())

	if got := c.Classify("gold.monthly"); got != models.CategorySubscription {
		t.Fatalf("gold.monthly classified as %s", got)
	}
	if got := c.Classify("PACK.TEN"); got != models.CategoryCredit {
		t.Fatalf("pack.ten classified as %s", got)
	}
	if got := c.Classify("boost.hour1"); got != models.CategoryBoost {
		t.Fatalf("boost.hour1 classified as %s", got)
	}
	if got := c.Classify("superlike.pack5"); got != models.CategorySuperLike {
		t.Fatalf("superlike.pack5 classified as %s", got)
	}
	if got := c.Classify("giftcredits_50"); got != models.CategoryCredit {
		t.Fatalf("unknown sku should use heuristic, got %s", got)
	}
}

func TestIsConsumable(t *testing.T) {
	c := New(testCatalog())

	cases := map[string]bool{
		"boost.hour1":     true,
		"ios.boost.hour1": true,
		"superlike.pack5": true,
		"gold.monthly":    false,
		"pack.ten":        true,
		"unknown.boost":   false,
	}
	for sku, want := range cases {
		if got := c.IsConsumable(sku); got != want {
			t.Errorf("IsConsumable(%q) = %v, want %v", sku, got, want)
		}
	}
}

func TestClassifyDeterministic(t *testing.T) {
	c := New(testCatalog())
	skus := []string{"boost.hour1", "gold.monthly", "mystery", "msgcredits.pack10"}
	first := make(map[string]models.ProductCategory)
	for _, s := range skus {
		first[s] = c.Classify(s)
	}
	for i := 0; i < 5; i++ {
		for j := len(skus) - 1; j >= 0; j-- {
			s := skus[j]
			if got := c.Classify(s); got != first[s] {
				t.Fatalf("Classify(%q) changed from %s to %s", s, first[s], got)
			}
		}
	}
}

func TestNilClassifierFallsBack(t *testing.T) {
	var c *Classifier
	if got := c.Classify("premium.year"); got != models.CategorySubscription {
		t.Fatalf("nil classifier should use heuristic, got %s", got)
	}
	if c.IsConsumable("boost.hour1") {
		t.Fatal("nil classifier must not report consumable")
	}
}

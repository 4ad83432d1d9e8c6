package classify

import "testing"

func TestPackSize(t *testing.T) {
	cases := map[string]int{
		"boost_5":            5,
		"com.app.credits100": 100,
		"superlike":          1,
		"v2_boost_10":        10,
		"boost_0":            1,
	}
	for sku, want := range cases {
		if got := PackSize(sku); got != want {
			t.Errorf("PackSize(%q) = %d, want %d", sku, got, want)
		}
	}
}

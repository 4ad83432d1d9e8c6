package classify

import (
	"strconv"
	"strings"
	"unicode"
)

// PackSize returns the quantity encoded as the last run of digits in a
// consumable SKU ("boost_5" is 5). SKUs without digits are single packs.
func PackSize(sku string) int {
	runs := strings.FieldsFunc(sku, func(r rune) bool { return !unicode.IsDigit(r) })
	if len(runs) == 0 {
		return 1
	}
	n, err := strconv.Atoi(runs[len(runs)-1])
	if err != nil || n <= 0 {
		return 1
	}
	return n
}

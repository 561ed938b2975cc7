// README: Compatibility pricing for menu items that still carry flat legacy extras.
package pricing

import (
	"strings"

	"fooddash/internal/types"
)

// legacyExtrasDelta sums the prices of the named extras the item still offers.
// Names match case-insensitively; each offered extra counts at most once.
func legacyExtrasDelta(item MenuItem, chosen []string) types.Money {
	if len(item.LegacyExtras) == 0 || len(chosen) == 0 {
		return 0
	}
	var delta types.Money
	used := make(map[int]bool, len(chosen))
	for _, name := range chosen {
		for i, ex := range item.LegacyExtras {
			if used[i] || !strings.EqualFold(strings.TrimSpace(name), ex.Name) {
				continue
			}
			used[i] = true
			delta += ex.Price
			break
		}
	}
	return delta
}

package shipping

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// PriceLookup resolves a shipping fee for an address. It is injected into
// the Service at construction; production wiring can point it at a carrier
// API, tests at a fixed table.
type PriceLookup interface {
	PriceFor(ctx context.Context, address string) (decimal.Decimal, error)
}

// ZoneTable prices by the longest matching zone prefix of the address's
// leading postal segment, falling back to a default fee.
type ZoneTable struct {
	zones    map[string]decimal.Decimal
	fallback decimal.Decimal
}

func NewZoneTable(zones map[string]decimal.Decimal, fallback decimal.Decimal) *ZoneTable {
	cp := make(map[string]decimal.Decimal, len(zones))
	for k, v := range zones {
		cp[k] = v
	}
	return &ZoneTable{zones: cp, fallback: fallback}
}

func (t *ZoneTable) PriceFor(_ context.Context, address string) (decimal.Decimal, error) {
	key := zoneKey(address)
	best := ""
	for zone := range t.zones {
		if strings.HasPrefix(key, zone) && len(zone) > len(best) {
			best = zone
		}
	}
	if best == "" {
		return t.fallback, nil
	}
	return t.zones[best], nil
}

// zoneKey derives the lookup key from the first comma-separated segment of
// the address, lowercased.
func zoneKey(address string) string {
	seg := address
	if i := strings.IndexByte(address, ','); i >= 0 {
		seg = address[:i]
	}
	return strings.ToLower(strings.TrimSpace(seg))
}

// Package dedup decides whether an imported listing is another advertisement
// of a unit already stored, and folds it into that canonical record.
package dedup

import (
	"context"
	"sort"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/shopspring/decimal"
)

type Config struct {
	// PriceTolerancePct is the allowed price gap as a percentage of the higher price.
	PriceTolerancePct float64
	// SizeToleranceSqm is the allowed absolute size gap in square meters.
	SizeToleranceSqm float64
	// MaxConflictRetries bounds re-fetch and merge attempts after a storage conflict.
	MaxConflictRetries int
}

func DefaultConfig() Config {
	return Config{
		PriceTolerancePct:  2,
		SizeToleranceSqm:   2,
		MaxConflictRetries: 3,
	}
}

// Keys are the normalized lookup keys of a unit.
type Keys struct {
	City    string
	Address string
}

func KeysFor(address, city string) Keys {
	return Keys{
		City:    normalizers.NormalizeCity(city),
		Address: normalizers.AddressKey(address, city),
	}
}

// LockKey is the distributed lock name guarding find-or-create for a unit.
func (k Keys) LockKey() string {
	return "dedup:" + k.City + "|" + k.Address
}

// Match is the outcome of FindCanonical. Canonical is nil when the import is a
// new unit. Candidates holds every listing that satisfied the rules.
type Match struct {
	Canonical  *models.Listing
	Candidates []*models.Listing
}

// Ambiguous reports a data-quality fault: more than one canonical matched.
func (m Match) Ambiguous() bool {
	return len(m.Candidates) > 1
}

type Deduplicator struct {
	config Config
	logger ectologger.Logger
}

func NewDeduplicator(config Config, logger ectologger.Logger) *Deduplicator {
	return &Deduplicator{config: config, logger: logger}
}

// FindCanonical returns the canonical listing raw belongs to. When several
// qualify the most recently created wins (ties broken by the larger ID) and
// the ambiguity is logged; the caller records the conflict.
func (d *Deduplicator) FindCanonical(ctx context.Context, raw *models.RawListing, pool []models.Listing) Match {
	keys := KeysFor(raw.Address, raw.City)

	var match Match
	for i := range pool {
		if d.SameUnit(keys, raw.Price, raw.Size, &pool[i]) {
			match.Candidates = append(match.Candidates, &pool[i])
		}
	}
	if len(match.Candidates) == 0 {
		return match
	}

	sort.SliceStable(match.Candidates, func(i, j int) bool {
		a, b := match.Candidates[i], match.Candidates[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
	match.Canonical = match.Candidates[0]

	if match.Ambiguous() && d.logger != nil {
		ids := make([]string, len(match.Candidates))
		for i, c := range match.Candidates {
			ids[i] = c.ID
		}
		d.logger.WithContext(ctx).WithFields(map[string]any{
			"address":       raw.Address,
			"city":          raw.City,
			"portal_source": string(raw.PortalSource),
			"chosen_id":     match.Canonical.ID,
			"candidate_ids": ids,
		}).Warn("ambiguous duplicate: several canonical listings match, using most recent")
	}
	return match
}

// SameUnit applies the duplicate rules: same city and normalized address,
// price within the percentage band and size within the square meter band.
func (d *Deduplicator) SameUnit(keys Keys, price int64, size float64, listing *models.Listing) bool {
	cityKey := listing.CityKey
	if cityKey == "" {
		cityKey = normalizers.NormalizeCity(listing.City)
	}
	addressKey := listing.AddressKey
	if addressKey == "" {
		addressKey = normalizers.AddressKey(listing.Address, listing.City)
	}

	if keys.City == "" || keys.Address == "" || keys.City != cityKey || keys.Address != addressKey {
		return false
	}
	return d.priceClose(price, listing.Price) && d.sizeClose(size, listing.Size)
}

func (d *Deduplicator) priceClose(a, b int64) bool {
	x, y := decimal.NewFromInt(a), decimal.NewFromInt(b)
	limit := decimal.Max(x, y).Mul(decimal.NewFromFloat(d.config.PriceTolerancePct)).Div(decimal.NewFromInt(100))
	return x.Sub(y).Abs().LessThanOrEqual(limit)
}

func (d *Deduplicator) sizeClose(a, b float64) bool {
	diff := decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs()
	return diff.LessThanOrEqual(decimal.NewFromFloat(d.config.SizeToleranceSqm))
}

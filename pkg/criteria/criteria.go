// Package criteria checks a listing against a buyer's numeric, categorical
// and spatial filters. All criteria are AND-combined.
package criteria

import (
	"context"

	"github.com/Ramsey-B/fern/pkg/models"
)

// Criterion names a single filter a listing can fail.
type Criterion string

const (
	CriterionMinPrice     Criterion = "min_price"
	CriterionMaxPrice     Criterion = "max_price"
	CriterionMinSize      Criterion = "min_size"
	CriterionMaxSize      Criterion = "max_size"
	CriterionMinRooms     Criterion = "min_rooms"
	CriterionPropertyType Criterion = "property_type"
	CriterionLocation     Criterion = "location"
	// CriterionPreference is reported when there is no listing or preference to compare.
	CriterionPreference Criterion = "preference"
)

// AreaFilter is satisfied by *geo.Filter.
type AreaFilter interface {
	Contains(ctx context.Context, point models.Location, area *models.SearchArea) bool
}

type Matcher struct {
	area AreaFilter
}

func NewMatcher(area AreaFilter) *Matcher {
	return &Matcher{area: area}
}

// Matches reports whether listing satisfies every criterion set on pref.
func (m *Matcher) Matches(ctx context.Context, listing *models.Listing, pref *models.BuyerPreference) bool {
	return len(m.failed(ctx, listing, pref, true)) == 0
}

// Failed lists every criterion listing does not satisfy.
func (m *Matcher) Failed(ctx context.Context, listing *models.Listing, pref *models.BuyerPreference) []Criterion {
	return m.failed(ctx, listing, pref, false)
}

func (m *Matcher) failed(ctx context.Context, listing *models.Listing, pref *models.BuyerPreference, stopEarly bool) []Criterion {
	if listing == nil || pref == nil {
		return []Criterion{CriterionPreference}
	}

	var failed []Criterion
	check := func(ok bool, c Criterion) bool {
		if !ok {
			failed = append(failed, c)
		}
		return !ok && stopEarly
	}

	if pref.MinPrice != nil && check(listing.Price >= *pref.MinPrice, CriterionMinPrice) {
		return failed
	}
	if pref.MaxPrice != nil && check(listing.Price <= *pref.MaxPrice, CriterionMaxPrice) {
		return failed
	}
	if pref.MinSize != nil && check(listing.Size >= float64(*pref.MinSize), CriterionMinSize) {
		return failed
	}
	if pref.MaxSize != nil && check(listing.Size <= float64(*pref.MaxSize), CriterionMaxSize) {
		return failed
	}
	// unknown bedrooms never satisfy a stated minimum
	if pref.MinRooms != nil && check(listing.Bedrooms != nil && *listing.Bedrooms >= *pref.MinRooms, CriterionMinRooms) {
		return failed
	}
	if constrainsType(pref.PropertyType) && check(listing.PropertyType == *pref.PropertyType, CriterionPropertyType) {
		return failed
	}
	if pref.SearchArea != nil {
		loc, ok := listing.Location()
		if check(ok && m.area.Contains(ctx, loc, pref.SearchArea), CriterionLocation) {
			return failed
		}
	}
	return failed
}

func constrainsType(t *models.PropertyType) bool {
	return t != nil && *t != "" && *t != models.PropertyTypeAny
}

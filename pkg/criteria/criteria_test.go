package criteria

import (
	"context"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/geo"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/stretchr/testify/assert"
)

func ptr[T any](v T) *T { return &v }

func newTestMatcher() *Matcher {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	return NewMatcher(geo.NewFilter(geo.DefaultConfig(), logger))
}

func listingAt(price int64, size float64, loc *models.Location) *models.Listing {
	l := &models.Listing{
		ID:           "l1",
		Price:        price,
		Size:         size,
		Bedrooms:     ptr(2),
		PropertyType: models.PropertyTypeApartment,
	}
	l.SetLocation(loc)
	return l
}

func TestMatcher_DuomoScenario(t *testing.T) {
	m := newTestMatcher()
	pref := &models.BuyerPreference{
		BuyerID:    "b1",
		MaxPrice:   ptr(int64(300000)),
		MinSize:    ptr(60),
		SearchArea: models.NewCircleArea(models.Location{Lat: 45.4642, Lng: 9.1900}, 2000),
	}
	near := &models.Location{Lat: 45.4650, Lng: 9.1905}

	assert.True(t, m.Matches(context.Background(), listingAt(280000, 75, near), pref))
	assert.False(t, m.Matches(context.Background(), listingAt(320000, 75, near), pref))
	assert.Equal(t, []Criterion{CriterionMaxPrice}, m.Failed(context.Background(), listingAt(320000, 75, near), pref))
}

func TestMatcher_Bounds(t *testing.T) {
	m := newTestMatcher()
	ctx := context.Background()

	tests := []struct {
		name    string
		pref    models.BuyerPreference
		listing *models.Listing
		want    bool
	}{
		{"no criteria", models.BuyerPreference{}, listingAt(1, 1, nil), true},
		{"only max price at bound", models.BuyerPreference{MaxPrice: ptr(int64(300000))}, listingAt(300000, 50, nil), true},
		{"only max price below", models.BuyerPreference{MaxPrice: ptr(int64(300000))}, listingAt(1, 50, nil), true},
		{"only max price above", models.BuyerPreference{MaxPrice: ptr(int64(300000))}, listingAt(300001, 50, nil), false},
		{"min price at bound", models.BuyerPreference{MinPrice: ptr(int64(100000))}, listingAt(100000, 50, nil), true},
		{"min price below", models.BuyerPreference{MinPrice: ptr(int64(100000))}, listingAt(99999, 50, nil), false},
		{"size within", models.BuyerPreference{MinSize: ptr(60), MaxSize: ptr(90)}, listingAt(1, 90, nil), true},
		{"size too small", models.BuyerPreference{MinSize: ptr(60)}, listingAt(1, 59.5, nil), false},
		{"size too big", models.BuyerPreference{MaxSize: ptr(90)}, listingAt(1, 90.5, nil), false},
		{"rooms satisfied", models.BuyerPreference{MinRooms: ptr(2)}, listingAt(1, 50, nil), true},
		{"rooms too few", models.BuyerPreference{MinRooms: ptr(3)}, listingAt(1, 50, nil), false},
		{"type equal", models.BuyerPreference{PropertyType: ptr(models.PropertyTypeApartment)}, listingAt(1, 50, nil), true},
		{"type differs", models.BuyerPreference{PropertyType: ptr(models.PropertyTypeVilla)}, listingAt(1, 50, nil), false},
		{"type any", models.BuyerPreference{PropertyType: ptr(models.PropertyTypeAny)}, listingAt(1, 50, nil), true},
		{"type empty", models.BuyerPreference{PropertyType: ptr(models.PropertyType(""))}, listingAt(1, 50, nil), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, m.Matches(ctx, tt.listing, &tt.pref))
		})
	}
}

func TestMatcher_UnknownBedroomsExcludedWhenMinimumSet(t *testing.T) {
	m := newTestMatcher()
	l := listingAt(1, 50, nil)
	l.Bedrooms = nil

	assert.False(t, m.Matches(context.Background(), l, &models.BuyerPreference{MinRooms: ptr(0)}))
	assert.True(t, m.Matches(context.Background(), l, &models.BuyerPreference{}))
}

func TestMatcher_Location(t *testing.T) {
	m := newTestMatcher()
	area := models.NewCircleArea(models.Location{Lat: 45.4642, Lng: 9.1900}, 2000)

	assert.False(t, m.Matches(context.Background(), listingAt(1, 50, nil), &models.BuyerPreference{SearchArea: area}),
		"no location with a search area is excluded")
	assert.True(t, m.Matches(context.Background(), listingAt(1, 50, nil), &models.BuyerPreference{}),
		"no search area ignores location")
	assert.False(t, m.Matches(context.Background(), listingAt(1, 50, &models.Location{Lat: 41.9, Lng: 12.5}), &models.BuyerPreference{SearchArea: area}))
}

func TestMatcher_FailedListsEveryCriterion(t *testing.T) {
	m := newTestMatcher()
	l := listingAt(500000, 40, nil)
	l.Bedrooms = nil
	pref := &models.BuyerPreference{
		MaxPrice:     ptr(int64(300000)),
		MinSize:      ptr(60),
		MinRooms:     ptr(1),
		PropertyType: ptr(models.PropertyTypeHouse),
		SearchArea:   models.NewCircleArea(models.Location{Lat: 45.4642, Lng: 9.1900}, 2000),
	}

	assert.Equal(t, []Criterion{
		CriterionMaxPrice, CriterionMinSize, CriterionMinRooms, CriterionPropertyType, CriterionLocation,
	}, m.Failed(context.Background(), l, pref))
}

func TestMatcher_NilPreference(t *testing.T) {
	m := newTestMatcher()
	assert.False(t, m.Matches(context.Background(), listingAt(1, 1, nil), nil))
}

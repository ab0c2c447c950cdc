package matching

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/criteria"
	"github.com/Ramsey-B/fern/pkg/geo"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var duomo = models.Location{Lat: 45.4642, Lng: 9.1900}

type fakeClients map[string]models.Client

func (f fakeClients) Get(_ context.Context, id string) (*models.Client, error) {
	c, ok := f[id]
	if !ok {
		return nil, models.ErrClientNotFound
	}
	return &c, nil
}

type fakePreferences struct {
	prefs   map[string]models.BuyerPreference
	clients fakeClients
}

func (f *fakePreferences) GetByBuyer(_ context.Context, buyerID string) (*models.BuyerPreference, error) {
	p, ok := f.prefs[buyerID]
	if !ok {
		return nil, models.ErrPreferenceAbsent
	}
	return &p, nil
}

func (f *fakePreferences) ListForBuyers(context.Context) ([]models.BuyerPreference, error) {
	var out []models.BuyerPreference
	for id, p := range f.prefs {
		if c, ok := f.clients[id]; ok && c.IsBuyer() {
			out = append(out, p)
		}
	}
	return out, nil
}

func ptr[T any](v T) *T { return &v }

func newTestEngine(clients fakeClients, prefs map[string]models.BuyerPreference) *Engine {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	matcher := criteria.NewMatcher(geo.NewFilter(geo.DefaultConfig(), logger))
	return NewEngine(Config{WorkerCount: 4}, logger, matcher, clients, &fakePreferences{prefs: prefs, clients: clients})
}

func listingAt(id string, price int64, size float64, loc models.Location, created time.Time) models.Listing {
	l := models.Listing{ID: id, Price: price, Size: size, CreatedAt: created}
	l.SetLocation(&loc)
	return l
}

func ids(ls []models.Listing) []string {
	out := make([]string, len(ls))
	for i, l := range ls {
		out[i] = l.ID
	}
	return out
}

func duomoPreference(buyerID string) models.BuyerPreference {
	return models.BuyerPreference{
		BuyerID:    buyerID,
		MaxPrice:   ptr(int64(300000)),
		MinSize:    ptr(60),
		SearchArea: models.NewCircleArea(duomo, 2000),
	}
}

func TestEngine_FindMatches_DuomoScenario(t *testing.T) {
	engine := newTestEngine(
		fakeClients{"buyer-1": {ID: "buyer-1", ClientType: models.ClientTypeBuyer}},
		map[string]models.BuyerPreference{"buyer-1": duomoPreference("buyer-1")},
	)
	near := models.Location{Lat: 45.4650, Lng: 9.1905}
	now := time.Now()
	pool := []models.Listing{
		listingAt("affordable", 280000, 75, near, now),
		listingAt("too-expensive", 320000, 75, near, now),
	}

	matches, err := engine.FindMatches(context.Background(), "buyer-1", pool, OrderNewest)
	require.NoError(t, err)
	assert.Equal(t, []string{"affordable"}, ids(matches))
}

func TestEngine_FindMatches_ClientTypes(t *testing.T) {
	clients := fakeClients{
		"buyer":   {ID: "buyer", ClientType: models.ClientTypeBuyer},
		"both":    {ID: "both", ClientType: models.ClientTypeBoth},
		"seller":  {ID: "seller", ClientType: models.ClientTypeSeller},
		"no-pref": {ID: "no-pref", ClientType: models.ClientTypeBuyer},
	}
	prefs := map[string]models.BuyerPreference{
		"buyer":  duomoPreference("buyer"),
		"both":   duomoPreference("both"),
		"seller": duomoPreference("seller"),
	}
	engine := newTestEngine(clients, prefs)
	pool := []models.Listing{listingAt("l1", 250000, 70, duomo, time.Now())}

	tests := []struct {
		client string
		want   []string
	}{
		{"buyer", []string{"l1"}},
		{"both", []string{"l1"}},
		{"seller", []string{}},
		{"no-pref", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.client, func(t *testing.T) {
			matches, err := engine.FindMatches(context.Background(), tt.client, pool, OrderNewest)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ids(matches))
		})
	}

	t.Run("unknown client", func(t *testing.T) {
		_, err := engine.FindMatches(context.Background(), "ghost", pool, OrderNewest)
		assert.ErrorIs(t, err, models.ErrClientNotFound)
	})
}

func TestEngine_FindMatches_IsIdempotent(t *testing.T) {
	engine := newTestEngine(
		fakeClients{"buyer-1": {ID: "buyer-1", ClientType: models.ClientTypeBuyer}},
		map[string]models.BuyerPreference{"buyer-1": duomoPreference("buyer-1")},
	)
	now := time.Now()
	pool := []models.Listing{
		listingAt("a", 200000, 80, duomo, now.Add(-time.Hour)),
		listingAt("b", 210000, 80, duomo, now),
	}

	first, err := engine.FindMatches(context.Background(), "buyer-1", pool, OrderNewest)
	require.NoError(t, err)
	second, err := engine.FindMatches(context.Background(), "buyer-1", pool, OrderNewest)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, "a", pool[0].ID, "pool is not reordered")
}

func TestEngine_FindMatches_MostMatchingBuyers(t *testing.T) {
	clients := fakeClients{
		"b1": {ID: "b1", ClientType: models.ClientTypeBuyer},
		"b2": {ID: "b2", ClientType: models.ClientTypeBuyer},
		"b3": {ID: "b3", ClientType: models.ClientTypeBoth},
	}
	prefs := map[string]models.BuyerPreference{
		"b1": {BuyerID: "b1"},
		"b2": {BuyerID: "b2", MaxPrice: ptr(int64(200000))},
		"b3": {BuyerID: "b3", MaxPrice: ptr(int64(150000))},
	}
	engine := newTestEngine(clients, prefs)
	now := time.Now()
	pool := []models.Listing{
		listingAt("expensive", 300000, 50, duomo, now),
		listingAt("cheap", 100000, 50, duomo, now.Add(-2*time.Hour)),
		listingAt("mid", 180000, 50, duomo, now.Add(-time.Hour)),
	}

	matches, err := engine.FindMatches(context.Background(), "b1", pool, OrderMostMatchingBuyers)
	require.NoError(t, err)
	assert.Equal(t, []string{"cheap", "mid", "expensive"}, ids(matches))
}

func TestSortListings(t *testing.T) {
	now := time.Now()
	base := []models.Listing{
		{ID: "a", Price: 200, CreatedAt: now.Add(-2 * time.Hour)},
		{ID: "b", Price: 100, CreatedAt: now},
		{ID: "c", Price: 200, CreatedAt: now.Add(-time.Hour)},
		{ID: "d", Price: 300, CreatedAt: now},
	}

	tests := []struct {
		order  Order
		counts map[string]int
		want   []string
	}{
		{OrderNewest, nil, []string{"b", "d", "c", "a"}},
		{"", nil, []string{"b", "d", "c", "a"}},
		{OrderPriceAsc, nil, []string{"b", "a", "c", "d"}},
		{OrderPriceDesc, nil, []string{"d", "a", "c", "b"}},
		{OrderMostMatchingBuyers, map[string]int{"c": 3, "a": 1, "d": 1}, []string{"c", "a", "d", "b"}},
	}

	for _, tt := range tests {
		t.Run(string(tt.order), func(t *testing.T) {
			listings := append([]models.Listing(nil), base...)
			SortListings(listings, tt.order, tt.counts)
			assert.Equal(t, tt.want, ids(listings))
		})
	}
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("")
	require.NoError(t, err)
	assert.Equal(t, OrderNewest, o)

	o, err = ParseOrder("price_desc")
	require.NoError(t, err)
	assert.Equal(t, OrderPriceDesc, o)

	_, err = ParseOrder("cheapest")
	assert.Error(t, err)
}

func TestEngine_RematchListing(t *testing.T) {
	clients := fakeClients{
		"b1":     {ID: "b1", ClientType: models.ClientTypeBuyer},
		"b2":     {ID: "b2", ClientType: models.ClientTypeBoth},
		"b3":     {ID: "b3", ClientType: models.ClientTypeBuyer},
		"seller": {ID: "seller", ClientType: models.ClientTypeSeller},
	}
	prefs := map[string]models.BuyerPreference{
		"b1":     duomoPreference("b1"),
		"b2":     {BuyerID: "b2", MinPrice: ptr(int64(100000))},
		"b3":     {BuyerID: "b3", MaxPrice: ptr(int64(100000))},
		"seller": {BuyerID: "seller"},
	}
	engine := newTestEngine(clients, prefs)
	listing := listingAt("l1", 250000, 70, duomo, time.Now())

	buyers, err := engine.RematchListing(context.Background(), &listing)
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2"}, buyers)
}

func TestEngine_MatchAllBuyers_FailureIsIsolated(t *testing.T) {
	clients := fakeClients{}
	prefs := map[string]models.BuyerPreference{}
	for _, id := range []string{"b1", "b2", "b3", "b4", "b5"} {
		clients[id] = models.Client{ID: id, ClientType: models.ClientTypeBuyer}
		prefs[id] = models.BuyerPreference{BuyerID: id}
	}
	prefs["b5"] = models.BuyerPreference{BuyerID: "b5", MaxPrice: ptr(int64(1))}
	engine := newTestEngine(clients, prefs)
	pool := []models.Listing{listingAt("l1", 250000, 70, duomo, time.Now())}

	var mu sync.Mutex
	handled := map[string][]string{}
	err := engine.MatchAllBuyers(context.Background(), pool, func(_ context.Context, m BuyerMatches) error {
		mu.Lock()
		defer mu.Unlock()
		handled[m.BuyerID] = ids(m.Listings)
		if m.BuyerID == "b2" {
			return errors.New("emit failed")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Len(t, handled, 4, "buyer with no matches is not handed an empty set")
	assert.Equal(t, []string{"l1"}, handled["b1"])
	assert.Contains(t, handled, "b2")
	assert.NotContains(t, handled, "b5")
}

func TestEngine_MatchAllBuyers_Canceled(t *testing.T) {
	engine := newTestEngine(
		fakeClients{"b1": {ID: "b1", ClientType: models.ClientTypeBuyer}},
		map[string]models.BuyerPreference{"b1": {BuyerID: "b1"}},
	)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := engine.MatchAllBuyers(ctx, nil, func(context.Context, BuyerMatches) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

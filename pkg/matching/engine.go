// Package matching evaluates buyer preferences against a listing pool.
// Matching is side-effect free: callers supply the pool and decide what to do
// with the result.
package matching

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/criteria"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"golang.org/x/sync/errgroup"
)

type Order string

const (
	OrderNewest             Order = "newest"
	OrderPriceAsc           Order = "price_asc"
	OrderPriceDesc          Order = "price_desc"
	OrderMostMatchingBuyers Order = "most_matching_buyers"
)

// ParseOrder maps a query value to an Order. Empty means newest.
func ParseOrder(s string) (Order, error) {
	switch o := Order(s); o {
	case "":
		return OrderNewest, nil
	case OrderNewest, OrderPriceAsc, OrderPriceDesc, OrderMostMatchingBuyers:
		return o, nil
	}
	return "", fmt.Errorf("unknown order %q", s)
}

type Config struct {
	// WorkerCount bounds how many buyers are evaluated concurrently.
	WorkerCount int
}

func DefaultConfig() Config {
	return Config{WorkerCount: 8}
}

type ClientStore interface {
	Get(ctx context.Context, id string) (*models.Client, error)
}

type PreferenceStore interface {
	// GetByBuyer returns models.ErrPreferenceAbsent when the buyer has none.
	GetByBuyer(ctx context.Context, buyerID string) (*models.BuyerPreference, error)
	// ListForBuyers returns the preferences of every buyer or both-type client.
	ListForBuyers(ctx context.Context) ([]models.BuyerPreference, error)
}

// BuyerMatches is one buyer's match set from a full rematch.
type BuyerMatches struct {
	BuyerID  string
	Listings []models.Listing
}

type Engine struct {
	config      Config
	logger      ectologger.Logger
	matcher     *criteria.Matcher
	clients     ClientStore
	preferences PreferenceStore
}

func NewEngine(config Config, logger ectologger.Logger, matcher *criteria.Matcher, clients ClientStore, preferences PreferenceStore) *Engine {
	if config.WorkerCount < 1 {
		config.WorkerCount = 1
	}
	return &Engine{
		config:      config,
		logger:      logger,
		matcher:     matcher,
		clients:     clients,
		preferences: preferences,
	}
}

// FindMatches returns the listings in pool that satisfy buyerID's preference,
// sorted by order. Sellers and buyers without a preference get an empty set.
func (e *Engine) FindMatches(ctx context.Context, buyerID string, pool []models.Listing, order Order) ([]models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.FindMatches")
	defer span.End()

	start := time.Now()
	defer func() { metrics.MatchDuration.WithLabelValues("find_matches").Observe(time.Since(start).Seconds()) }()

	client, err := e.clients.Get(ctx, buyerID)
	if err != nil {
		return nil, err
	}
	if !client.IsBuyer() {
		e.logger.WithContext(ctx).WithField("client_id", buyerID).Debug("client is not a buyer, no preferences to evaluate")
		return []models.Listing{}, nil
	}

	pref, err := e.preferences.GetByBuyer(ctx, buyerID)
	if errors.Is(err, models.ErrPreferenceAbsent) {
		return []models.Listing{}, nil
	}
	if err != nil {
		return nil, err
	}

	matched := e.Filter(ctx, pref, pool)

	var counts map[string]int
	if order == OrderMostMatchingBuyers {
		counts, err = e.CountMatchingBuyers(ctx, matched)
		if err != nil {
			return nil, err
		}
	}
	SortListings(matched, order, counts)
	return matched, nil
}

// Filter keeps the listings of pool that satisfy pref, in pool order.
func (e *Engine) Filter(ctx context.Context, pref *models.BuyerPreference, pool []models.Listing) []models.Listing {
	matched := make([]models.Listing, 0)
	for i := range pool {
		if e.matcher.Matches(ctx, &pool[i], pref) {
			matched = append(matched, pool[i])
		}
	}
	return matched
}

// CountMatchingBuyers counts, per listing ID, how many buyers' preferences the
// listing satisfies.
func (e *Engine) CountMatchingBuyers(ctx context.Context, listings []models.Listing) (map[string]int, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.CountMatchingBuyers")
	defer span.End()

	prefs, err := e.preferences.ListForBuyers(ctx)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(listings))
	var mu sync.Mutex
	err = e.forEachPreference(ctx, prefs, func(ctx context.Context, pref *models.BuyerPreference) {
		matched := e.Filter(ctx, pref, listings)
		mu.Lock()
		defer mu.Unlock()
		for _, l := range matched {
			counts[l.ID]++
		}
	})
	return counts, err
}

// RematchListing returns the IDs of the buyers whose preference listing
// satisfies, sorted.
func (e *Engine) RematchListing(ctx context.Context, listing *models.Listing) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.RematchListing")
	defer span.End()

	start := time.Now()
	defer func() { metrics.MatchDuration.WithLabelValues("rematch_listing").Observe(time.Since(start).Seconds()) }()

	prefs, err := e.preferences.ListForBuyers(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu     sync.Mutex
		buyers []string
	)
	err = e.forEachPreference(ctx, prefs, func(ctx context.Context, pref *models.BuyerPreference) {
		if e.matcher.Matches(ctx, listing, pref) {
			mu.Lock()
			buyers = append(buyers, pref.BuyerID)
			mu.Unlock()
		}
	})
	if err != nil {
		return nil, err
	}
	sort.Strings(buyers)
	return buyers, nil
}

// MatchAllBuyers computes every buyer's matches over pool and hands each
// non-empty set to fn. An fn failure is logged for that buyer and does not
// stop the others.
func (e *Engine) MatchAllBuyers(ctx context.Context, pool []models.Listing, fn func(ctx context.Context, m BuyerMatches) error) error {
	ctx, span := tracing.StartSpan(ctx, "matching.Engine.MatchAllBuyers")
	defer span.End()

	start := time.Now()
	defer func() { metrics.MatchDuration.WithLabelValues("match_all_buyers").Observe(time.Since(start).Seconds()) }()

	prefs, err := e.preferences.ListForBuyers(ctx)
	if err != nil {
		return err
	}

	return e.forEachPreference(ctx, prefs, func(ctx context.Context, pref *models.BuyerPreference) {
		matched := e.Filter(ctx, pref, pool)
		if len(matched) == 0 {
			metrics.RematchBuyersTotal.WithLabelValues("no_match").Inc()
			return
		}
		SortListings(matched, OrderNewest, nil)

		if err := fn(ctx, BuyerMatches{BuyerID: pref.BuyerID, Listings: matched}); err != nil {
			metrics.RematchBuyersTotal.WithLabelValues("failed").Inc()
			e.logger.WithContext(ctx).WithError(err).WithField("buyer_id", pref.BuyerID).Error("Failed to handle buyer matches")
			return
		}
		metrics.RematchBuyersTotal.WithLabelValues("matched").Inc()
	})
}

// forEachPreference runs fn for every preference with at most WorkerCount in
// flight. Only context cancellation is returned.
func (e *Engine) forEachPreference(ctx context.Context, prefs []models.BuyerPreference, fn func(ctx context.Context, pref *models.BuyerPreference)) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.config.WorkerCount)

	for i := range prefs {
		pref := &prefs[i]
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fn(gctx, pref)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	return ctx.Err()
}

// SortListings orders listings in place. Equal keys keep their relative order.
// counts is only read for OrderMostMatchingBuyers.
func SortListings(listings []models.Listing, order Order, counts map[string]int) {
	var less func(a, b *models.Listing) bool
	switch order {
	case OrderPriceAsc:
		less = func(a, b *models.Listing) bool { return a.Price < b.Price }
	case OrderPriceDesc:
		less = func(a, b *models.Listing) bool { return a.Price > b.Price }
	case OrderMostMatchingBuyers:
		less = func(a, b *models.Listing) bool { return counts[a.ID] > counts[b.ID] }
	default:
		less = func(a, b *models.Listing) bool { return a.CreatedAt.After(b.CreatedAt) }
	}
	sort.SliceStable(listings, func(i, j int) bool { return less(&listings[i], &listings[j]) })
}

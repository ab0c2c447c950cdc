// Package processor drives the ingestion pipeline: scraped payload to
// canonical listing to pending buyer notifications.
package processor

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/dedup"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Decoder interface {
	Decode(data []byte) (*models.RawListing, error)
}

type Ingester interface {
	Ingest(ctx context.Context, raw *models.RawListing) (*dedup.IngestResult, error)
}

type Matcher interface {
	RematchListing(ctx context.Context, listing *models.Listing) ([]string, error)
	MatchAllBuyers(ctx context.Context, pool []models.Listing, fn func(ctx context.Context, m matching.BuyerMatches) error) error
}

type Tracker interface {
	PendingForBuyer(ctx context.Context, buyerID string, matched []models.Listing, resend bool) ([]models.Listing, error)
}

type MatchEmitter interface {
	EmitBuyerMatchPending(ctx context.Context, buyerID string, listings []models.Listing) error
}

type ListingSource interface {
	List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
}

type Processor struct {
	logger   ectologger.Logger
	decoder  Decoder
	ingester Ingester
	matcher  Matcher
	tracker  Tracker
	emitter  MatchEmitter
	listings ListingSource
}

func NewProcessor(
	logger ectologger.Logger,
	decoder Decoder,
	ingester Ingester,
	matcher Matcher,
	tracker Tracker,
	emitter MatchEmitter,
	listings ListingSource,
) *Processor {
	return &Processor{
		logger:   logger,
		decoder:  decoder,
		ingester: ingester,
		matcher:  matcher,
		tracker:  tracker,
		emitter:  emitter,
		listings: listings,
	}
}

// HandleMessage ingests one scraped listing. Payloads that can never succeed
// are logged and acknowledged. Transient failures are returned and the
// consumer retries the same message before moving past it.
func (p *Processor) HandleMessage(ctx context.Context, msg *kafka.IncomingMessage) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.HandleMessage")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":  msg.Topic,
		"offset": msg.Offset,
		"key":    msg.Key,
	})

	raw, err := p.decoder.Decode(msg.Value)
	if err != nil {
		if permanent(err) {
			metrics.KafkaMessagesTotal.WithLabelValues(msg.Topic, "skipped").Inc()
			log.WithError(err).Warn("Skipping undecodable listing payload")
			return nil
		}
		return err
	}

	result, err := p.ingester.Ingest(ctx, raw)
	if err != nil {
		if permanent(err) {
			metrics.KafkaMessagesTotal.WithLabelValues(msg.Topic, "skipped").Inc()
			log.WithError(err).Warn("Skipping invalid listing")
			return nil
		}
		return err
	}

	p.NotifyMatches(ctx, result.Listing)
	return nil
}

// NotifyMatches finds the buyers listing matches and emits a pending event
// to each that has not been sent it. Failures stay with the buyer.
func (p *Processor) NotifyMatches(ctx context.Context, listing *models.Listing) {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.NotifyMatches")
	defer span.End()

	buyers, err := p.matcher.RematchListing(ctx, listing)
	if err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("listing_id", listing.ID).Error("Failed to rematch listing")
		return
	}

	for _, buyerID := range buyers {
		if err := p.notifyBuyer(ctx, buyerID, []models.Listing{*listing}); err != nil {
			metrics.RematchBuyersTotal.WithLabelValues("failed").Inc()
			p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"buyer_id":   buyerID,
				"listing_id": listing.ID,
			}).Error("Failed to notify buyer of new match")
		}
	}
}

// RematchAll matches every buyer against the full listing pool and emits
// pending events for listings not yet sent.
func (p *Processor) RematchAll(ctx context.Context) error {
	ctx, span := tracing.StartSpan(ctx, "processor.Processor.RematchAll")
	defer span.End()

	pool, err := p.listings.List(ctx, models.ListingFilter{})
	if err != nil {
		return err
	}

	p.logger.WithContext(ctx).WithField("pool_size", len(pool)).Info("Rematching all buyers")
	return p.matcher.MatchAllBuyers(ctx, pool, func(ctx context.Context, m matching.BuyerMatches) error {
		return p.notifyBuyer(ctx, m.BuyerID, m.Listings)
	})
}

func (p *Processor) notifyBuyer(ctx context.Context, buyerID string, matched []models.Listing) error {
	pending, err := p.tracker.PendingForBuyer(ctx, buyerID, matched, false)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		return nil
	}
	return p.emitter.EmitBuyerMatchPending(ctx, buyerID, pending)
}

func permanent(err error) bool {
	return errors.Is(err, models.ErrInvalidPayload) ||
		errors.Is(err, models.ErrUnknownPortal) ||
		errors.Is(err, models.ErrMalformedGeometry)
}

// Package events handles event emission for listing and match lifecycle changes
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/google/uuid"
)

// Publisher is satisfied by *kafka.Producer.
type Publisher interface {
	Publish(ctx context.Context, events ...*kafka.Event) error
}

// Emitter handles event emission for fern
type Emitter struct {
	publisher Publisher
	logger    ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(publisher Publisher, logger ectologger.Logger) *Emitter {
	return &Emitter{
		publisher: publisher,
		logger:    logger,
	}
}

// EmitListingIngested emits listing.created or listing.merged
func (e *Emitter) EmitListingIngested(ctx context.Context, listing *models.Listing, created bool) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitListingIngested")
	defer span.End()

	eventType := EventTypeListingMerged
	if created {
		eventType = EventTypeListingCreated
	}

	return e.emit(ctx, eventType, listing.ID, "listing", ListingIngestedEvent{
		ListingID:           listing.ID,
		Created:             created,
		Classification:      listing.Classification,
		OwnerType:           listing.OwnerType,
		AgencyVariantCount:  len(listing.AgencyVariants),
		IsAlsoFromAgency:    listing.IsAlsoFromAgency,
		RequiresManualInput: listing.RequiresManualInput,
		Price:               listing.Price,
		City:                listing.City,
	})
}

// EmitDuplicateConflict emits listing.conflict
func (e *Emitter) EmitDuplicateConflict(ctx context.Context, conflict *models.DuplicateConflict) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDuplicateConflict")
	defer span.End()

	return e.emit(ctx, EventTypeListingConflict, conflict.ChosenListingID, "duplicate_conflict", ListingConflictEvent{
		ConflictID:          conflict.ID,
		ChosenListingID:     conflict.ChosenListingID,
		CandidateListingIDs: conflict.CandidateListingIDs,
		RawAddress:          conflict.RawAddress,
		City:                conflict.City,
		PortalSource:        conflict.PortalSource,
	})
}

// EmitBuyerMatchPending emits buyer.match.pending for the given listings
func (e *Emitter) EmitBuyerMatchPending(ctx context.Context, buyerID string, listings []models.Listing) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitBuyerMatchPending")
	defer span.End()

	ids := make([]string, len(listings))
	for i := range listings {
		ids[i] = listings[i].ID
	}

	return e.emit(ctx, EventTypeBuyerMatchPending, buyerID, "buyer", BuyerMatchPendingEvent{
		BuyerID:    buyerID,
		ListingIDs: ids,
		MatchedAt:  time.Now().UTC(),
	})
}

func (e *Emitter) emit(ctx context.Context, eventType EventType, entityID, entityType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	event := &kafka.Event{
		EventType:     string(eventType),
		SchemaVersion: SchemaVersion,
		EntityID:      entityID,
		EntityType:    entityType,
		Data:          data,
		CorrelationID: uuid.New().String(),
	}

	if err := e.publisher.Publish(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": string(eventType),
			"entity_id":  entityID,
		}).Error("Failed to emit event")
		return err
	}
	return nil
}

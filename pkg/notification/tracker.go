// Package notification tracks which matched listings each buyer has already
// been sent, so a listing is proposed to a buyer once unless a resend is asked for.
package notification

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Store persists notification records. Upsert must be a single atomic
// insert-or-update on (buyer, listing) keeping the later timestamp; created
// reports whether the pair had no record before.
type Store interface {
	ListForBuyer(ctx context.Context, buyerID string, listingIDs []string) ([]models.NotificationRecord, error)
	Upsert(ctx context.Context, buyerID, listingID string, notifiedAt time.Time) (record *models.NotificationRecord, created bool, err error)
}

type Tracker struct {
	store  Store
	logger ectologger.Logger
	now    func() time.Time
}

func NewTracker(store Store, logger ectologger.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PendingForBuyer returns the listings in matched that buyerID has not been
// notified about, in their original order. With resend every listing is returned.
func (t *Tracker) PendingForBuyer(ctx context.Context, buyerID string, matched []models.Listing, resend bool) ([]models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "notification.Tracker.PendingForBuyer")
	defer span.End()

	if resend || len(matched) == 0 {
		return matched, nil
	}

	ids := make([]string, len(matched))
	for i := range matched {
		ids[i] = matched[i].ID
	}
	records, err := t.store.ListForBuyer(ctx, buyerID, ids)
	if err != nil {
		return nil, err
	}
	return Pending(matched, records), nil
}

// Pending filters matched against a snapshot of sent records.
func Pending(matched []models.Listing, sent []models.NotificationRecord) []models.Listing {
	notified := make(map[string]struct{}, len(sent))
	for _, r := range sent {
		notified[r.ListingID] = struct{}{}
	}

	pending := make([]models.Listing, 0, len(matched))
	for _, l := range matched {
		if _, ok := notified[l.ID]; !ok {
			pending = append(pending, l)
		}
	}
	return pending
}

// RecordSent upserts the (buyer, listing) record. A zero sentAt means now.
// Repeated calls keep one record with the latest timestamp.
func (t *Tracker) RecordSent(ctx context.Context, buyerID, listingID string, sentAt time.Time) (*models.RecordSentResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "notification.Tracker.RecordSent")
	defer span.End()

	if sentAt.IsZero() {
		sentAt = t.now()
	}

	record, created, err := t.store.Upsert(ctx, buyerID, listingID, sentAt.UTC())
	if err != nil {
		t.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"buyer_id":   buyerID,
			"listing_id": listingID,
		}).Error("Failed to record notification")
		return nil, err
	}

	kind := "resend"
	if created {
		kind = "first"
	}
	metrics.NotificationsRecordedTotal.WithLabelValues(kind).Inc()

	t.logger.WithContext(ctx).WithFields(map[string]any{
		"buyer_id":   buyerID,
		"listing_id": listingID,
		"send_count": record.SendCount,
	}).Debug("Recorded notification")

	return &models.RecordSentResponse{Record: *record, Created: created}, nil
}

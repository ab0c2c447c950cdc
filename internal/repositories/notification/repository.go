package notification

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

var recordColumns = []string{"buyer_id", "listing_id", "notified_at", "send_count", "created_at"}

// buyerForeignKey is the constraint name from db/pg; any other foreign key
// violation on notification_records is the listing.
const buyerForeignKey = "fk_notification_records_buyer"

// Repository handles notification record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new notification record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// ListForBuyer returns the buyer's records for listingIDs. An empty id set
// returns no records without querying.
func (r *Repository) ListForBuyer(ctx context.Context, buyerID string, listingIDs []string) ([]models.NotificationRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "notification.Repository.ListForBuyer")
	defer span.End()

	records := []models.NotificationRecord{}
	if len(listingIDs) == 0 {
		return records, nil
	}

	ids := make([]any, len(listingIDs))
	for i, id := range listingIDs {
		ids[i] = id
	}

	sb := database.NewSelectBuilder()
	sb.Select(recordColumns...)
	sb.From("notification_records")
	sb.Where(
		sb.Equal("buyer_id", buyerID),
		sb.In("listing_id", ids...),
	)

	query, args := sb.Build()
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("buyer_id", buyerID).Error("Failed to list notification records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list notification records")
	}
	return records, nil
}

type upsertedRecord struct {
	models.NotificationRecord
	Inserted bool `db:"inserted"`
}

// Upsert records a send for (buyer, listing) in one statement. notified_at
// only moves forward; created reports whether this was the first send.
func (r *Repository) Upsert(ctx context.Context, buyerID, listingID string, notifiedAt time.Time) (*models.NotificationRecord, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "notification.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":     "Upsert",
		"buyer_id":   buyerID,
		"listing_id": listingID,
	})

	ib := database.NewInsertBuilder()
	ib.InsertInto("notification_records")
	ib.Cols(recordColumns...)
	ib.Values(buyerID, listingID, notifiedAt.UTC(), 1, time.Now().UTC())
	ib.OnConflict([]string{"buyer_id", "listing_id"},
		"notified_at = GREATEST(notification_records.notified_at, "+database.Excluded("notified_at")+")",
		"send_count = notification_records.send_count + 1",
	)
	ib.Returning(append(recordColumns, "(xmax = 0) AS inserted")...)

	query, args := ib.Build()
	var rec upsertedRecord
	if err := database.Conn(ctx, r.db).GetContext(ctx, &rec, query, args...); err != nil {
		if database.IsForeignKeyViolation(err) {
			if database.ViolatedConstraint(err) == buyerForeignKey {
				return nil, false, models.ErrClientNotFound
			}
			return nil, false, models.ErrListingNotFound
		}
		log.WithError(err).Error("Failed to upsert notification record")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to record notification")
	}

	log.WithFields(map[string]any{
		"send_count": rec.SendCount,
		"created":    rec.Inserted,
	}).Info("Recorded notification")
	return &rec.NotificationRecord, rec.Inserted, nil
}

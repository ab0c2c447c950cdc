package preference

import (
	"context"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/google/uuid"
)

var preferenceColumns = []string{
	"id", "buyer_id", "min_price", "max_price", "min_size", "max_size", "min_rooms",
	"property_type", "search_area", "created_at", "updated_at",
}

// Repository handles buyer preference persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new buyer preference repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// GetByBuyer returns models.ErrPreferenceAbsent when the buyer has none
func (r *Repository) GetByBuyer(ctx context.Context, buyerID string) (*models.BuyerPreference, error) {
	ctx, span := tracing.StartSpan(ctx, "preference.Repository.GetByBuyer")
	defer span.End()

	if _, err := uuid.Parse(buyerID); err != nil {
		return nil, models.ErrPreferenceAbsent
	}

	sb := database.NewSelectBuilder()
	sb.Select(preferenceColumns...)
	sb.From("buyer_preferences")
	sb.Where(sb.Equal("buyer_id", buyerID))

	query, args := sb.Build()
	var pref models.BuyerPreference
	if err := database.Conn(ctx, r.db).GetContext(ctx, &pref, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, models.ErrPreferenceAbsent
		}
		r.logger.WithContext(ctx).WithError(err).WithField("buyer_id", buyerID).Error("Failed to get buyer preference")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get buyer preference")
	}
	return &pref, nil
}

// ListForBuyers returns the preference of every buyer or both-type client
func (r *Repository) ListForBuyers(ctx context.Context) ([]models.BuyerPreference, error) {
	ctx, span := tracing.StartSpan(ctx, "preference.Repository.ListForBuyers")
	defer span.End()

	cols := make([]string, len(preferenceColumns))
	for i, c := range preferenceColumns {
		cols[i] = "p." + c
	}

	sb := database.NewSelectBuilder()
	sb.Select(cols...)
	sb.From("buyer_preferences p")
	sb.Join("clients c", "c.id = p.buyer_id")
	sb.Where(sb.In("c.client_type", string(models.ClientTypeBuyer), string(models.ClientTypeBoth)))
	sb.OrderBy("p.buyer_id")

	query, args := sb.Build()
	prefs := []models.BuyerPreference{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &prefs, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list buyer preferences")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list buyer preferences")
	}
	return prefs, nil
}

// Upsert replaces a buyer's preference, creating it on first write
func (r *Repository) Upsert(ctx context.Context, buyerID string, req models.UpsertPreferenceRequest) (*models.BuyerPreference, error) {
	ctx, span := tracing.StartSpan(ctx, "preference.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":   "Upsert",
		"buyer_id": buyerID,
	})

	now := time.Now().UTC()
	ib := database.NewInsertBuilder()
	ib.InsertInto("buyer_preferences")
	ib.Cols(preferenceColumns...)
	ib.Values(uuid.New().String(), buyerID, req.MinPrice, req.MaxPrice, req.MinSize, req.MaxSize,
		req.MinRooms, req.PropertyType, req.SearchArea, now, now)
	ib.OnConflict([]string{"buyer_id"},
		"min_price = "+database.Excluded("min_price"),
		"max_price = "+database.Excluded("max_price"),
		"min_size = "+database.Excluded("min_size"),
		"max_size = "+database.Excluded("max_size"),
		"min_rooms = "+database.Excluded("min_rooms"),
		"property_type = "+database.Excluded("property_type"),
		"search_area = "+database.Excluded("search_area"),
		"updated_at = "+database.Excluded("updated_at"),
	)
	ib.Returning(preferenceColumns...)

	query, args := ib.Build()
	var pref models.BuyerPreference
	if err := database.Conn(ctx, r.db).GetContext(ctx, &pref, query, args...); err != nil {
		log.WithError(err).Error("Failed to upsert buyer preference")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to save buyer preference")
	}

	log.WithFields(map[string]any{"id": pref.ID}).Info("Saved buyer preference")
	return &pref, nil
}

// Delete removes a buyer's preference
func (r *Repository) Delete(ctx context.Context, buyerID string) error {
	ctx, span := tracing.StartSpan(ctx, "preference.Repository.Delete")
	defer span.End()

	if _, err := uuid.Parse(buyerID); err != nil {
		return models.ErrPreferenceAbsent
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom("buyer_preferences")
	db.Where(db.Equal("buyer_id", buyerID))

	query, args := db.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("buyer_id", buyerID).Error("Failed to delete buyer preference")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete buyer preference")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return models.ErrPreferenceAbsent
	}
	return nil
}

package conflict

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/google/uuid"
)

var conflictColumns = []string{
	"id", "chosen_listing_id", "candidate_listing_ids", "raw_address", "city",
	"portal_source", "external_id", "status", "created_at", "resolved_at",
}

// Repository handles ambiguous duplicate records awaiting review
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new duplicate conflict repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

func (r *Repository) Create(ctx context.Context, conflict *models.DuplicateConflict) error {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.Create")
	defer span.End()

	if conflict.ID == "" {
		conflict.ID = uuid.New().String()
	}
	if conflict.Status == "" {
		conflict.Status = models.ConflictStatusOpen
	}
	if conflict.CreatedAt.IsZero() {
		conflict.CreatedAt = time.Now().UTC()
	}

	ib := database.NewInsertBuilder()
	ib.InsertInto("duplicate_conflicts")
	ib.Cols(conflictColumns...)
	ib.Values(conflict.ID, conflict.ChosenListingID, conflict.CandidateListingIDs, conflict.RawAddress,
		conflict.City, conflict.PortalSource, conflict.ExternalID, conflict.Status, conflict.CreatedAt,
		conflict.ResolvedAt)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("chosen_listing_id", conflict.ChosenListingID).Error("Failed to record duplicate conflict")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to record duplicate conflict")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":         conflict.ID,
		"candidates": len(conflict.CandidateListingIDs),
	}).Info("Recorded duplicate conflict")
	return nil
}

// List returns conflicts newest first, optionally filtered by status
func (r *Repository) List(ctx context.Context, status *models.ConflictStatus) ([]models.DuplicateConflict, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(conflictColumns...)
	sb.From("duplicate_conflicts")
	if status != nil {
		sb.Where(sb.Equal("status", *status))
	}
	sb.OrderBy("created_at DESC", "id DESC")

	query, args := sb.Build()
	conflicts := []models.DuplicateConflict{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &conflicts, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list duplicate conflicts")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list duplicate conflicts")
	}
	return conflicts, nil
}

// Resolve closes an open conflict. Resolving twice is a no-op that keeps the
// first resolution time.
func (r *Repository) Resolve(ctx context.Context, id string) (*models.DuplicateConflict, error) {
	ctx, span := tracing.StartSpan(ctx, "conflict.Repository.Resolve")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrConflictNotFound
	}

	ub := database.NewUpdateBuilder()
	ub.Update("duplicate_conflicts")
	ub.Set(
		ub.Assign("status", models.ConflictStatusResolved),
		"resolved_at = COALESCE(resolved_at, "+ub.Var(time.Now().UTC())+")",
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	query += " RETURNING " + strings.Join(conflictColumns, ", ")

	var conflict models.DuplicateConflict
	if err := database.Conn(ctx, r.db).GetContext(ctx, &conflict, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, models.ErrConflictNotFound
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to resolve duplicate conflict")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve duplicate conflict")
	}

	r.logger.WithContext(ctx).WithField("id", id).Info("Resolved duplicate conflict")
	return &conflict, nil
}


package listing

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
	"github.com/huandu/go-sqlbuilder"
)

var listingColumns = []string{
	"id", "address", "address_key", "city", "city_key", "lat", "lng", "price", "size_sqm",
	"bedrooms", "bathrooms", "floor", "description", "property_type", "source", "owner_type",
	"classification", "is_also_from_agency", "requires_manual_input", "owner_name", "owner_phone",
	"is_favorite", "created_at", "updated_at",
}

var variantColumns = []string{
	"id", "listing_id", "agency_name", "agency_key", "agency_phone", "portal_source",
	"external_id", "url", "created_at", "updated_at",
}

// Repository handles canonical listing and agency variant persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new listing repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const lockUnitQuery = "SELECT pg_advisory_xact_lock(hashtext($1))"

// WithTx runs fn in one transaction shared by every repository call made with its ctx.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.db.WithTx(ctx, fn)
}

// LockUnit takes a transaction-scoped advisory lock on a normalized address so
// concurrent find-or-create of one unit runs one at a time. It must be called
// inside WithTx; the lock is released on commit or rollback.
func (r *Repository) LockUnit(ctx context.Context, cityKey, addressKey string) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.LockUnit")
	defer span.End()

	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, lockUnitQuery, cityKey+"|"+addressKey); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"city_key":    cityKey,
			"address_key": addressKey,
		}).Error("Failed to lock listing unit")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to lock listing unit")
	}
	return nil
}

// FindByKeys returns every listing of a normalized address in a city, the
// candidate pool for duplicate detection.
func (r *Repository) FindByKeys(ctx context.Context, cityKey, addressKey string) ([]models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.FindByKeys")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(listingColumns...)
	sb.From("listings")
	sb.Where(
		sb.Equal("city_key", cityKey),
		sb.Equal("address_key", addressKey),
	)
	sb.OrderBy("created_at DESC")

	return r.selectListings(ctx, sb, "Failed to find listings by keys")
}

// Get retrieves a listing with its agency variants
func (r *Repository) Get(ctx context.Context, id string) (*models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Get")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrListingNotFound
	}

	sb := database.NewSelectBuilder()
	sb.Select(listingColumns...)
	sb.From("listings")
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()
	var listing models.Listing
	if err := database.Conn(ctx, r.db).GetContext(ctx, &listing, query, args...); err != nil {
		if database.IsNoRows(err) {
			return nil, models.ErrListingNotFound
		}
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to get listing")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get listing")
	}

	if err := r.attachVariants(ctx, []*models.Listing{&listing}); err != nil {
		return nil, err
	}
	return &listing, nil
}

// List returns listings matching filter, newest first
func (r *Repository) List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.List")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(listingColumns...)
	sb.From("listings")

	var where []string
	if filter.OwnerType != nil {
		where = append(where, sb.Equal("owner_type", *filter.OwnerType))
	}
	if filter.Source != nil {
		where = append(where, sb.Equal("source", *filter.Source))
	}
	if filter.Classification != nil {
		where = append(where, sb.Equal("classification", *filter.Classification))
	}
	if filter.CityKey != nil {
		where = append(where, sb.Equal("city_key", *filter.CityKey))
	}
	if filter.AddressKey != nil {
		where = append(where, sb.Equal("address_key", *filter.AddressKey))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("created_at DESC", "id DESC")

	return r.selectListings(ctx, sb, "Failed to list listings")
}

// Create inserts a new canonical listing and its variants. A collision on the
// unit index returns models.ErrStorageConflict.
func (r *Repository) Create(ctx context.Context, listing *models.Listing) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Create",
		"city_key":    listing.CityKey,
		"address_key": listing.AddressKey,
	})

	now := time.Now().UTC()
	if listing.ID == "" {
		listing.ID = uuid.New().String()
	}
	if listing.CreatedAt.IsZero() {
		listing.CreatedAt = now
	}
	listing.UpdatedAt = listing.CreatedAt

	ib := database.NewInsertBuilder()
	ib.InsertInto("listings")
	ib.Cols(listingColumns...)
	ib.Values(listingValues(listing)...)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		if database.IsUniqueViolation(err) {
			log.WithError(err).Warn("Listing unit already exists")
			return models.ErrStorageConflict
		}
		log.WithError(err).Error("Failed to create listing")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create listing")
	}

	if err := r.upsertVariants(ctx, listing); err != nil {
		return err
	}

	log.WithFields(map[string]any{"id": listing.ID}).Info("Created listing")
	return nil
}

// Update writes a listing's mutable columns and upserts its variants
func (r *Repository) Update(ctx context.Context, listing *models.Listing) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Update")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method": "Update",
		"id":     listing.ID,
	})

	listing.UpdatedAt = time.Now().UTC()

	ub := database.NewUpdateBuilder()
	ub.Update("listings")
	ub.Set(
		ub.Assign("lat", listing.Lat),
		ub.Assign("lng", listing.Lng),
		ub.Assign("bedrooms", listing.Bedrooms),
		ub.Assign("bathrooms", listing.Bathrooms),
		ub.Assign("floor", listing.Floor),
		ub.Assign("description", listing.Description),
		ub.Assign("property_type", listing.PropertyType),
		ub.Assign("owner_type", listing.OwnerType),
		ub.Assign("classification", listing.Classification),
		ub.Assign("is_also_from_agency", listing.IsAlsoFromAgency),
		ub.Assign("requires_manual_input", listing.RequiresManualInput),
		ub.Assign("owner_name", listing.OwnerName),
		ub.Assign("owner_phone", listing.OwnerPhone),
		ub.Assign("updated_at", listing.UpdatedAt),
	)
	ub.Where(ub.Equal("id", listing.ID))

	query, args := ub.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		log.WithError(err).Error("Failed to update listing")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to update listing")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return models.ErrListingNotFound
	}

	if err := r.upsertVariants(ctx, listing); err != nil {
		return err
	}

	log.WithFields(map[string]any{
		"classification": string(listing.Classification),
		"variants":       len(listing.AgencyVariants),
	}).Debug("Updated listing")
	return nil
}

// SetFavorite flags or unflags a listing
func (r *Repository) SetFavorite(ctx context.Context, id string, favorite bool) (*models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.SetFavorite")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return nil, models.ErrListingNotFound
	}

	ub := database.NewUpdateBuilder()
	ub.Update("listings")
	ub.Set(
		ub.Assign("is_favorite", favorite),
		ub.Assign("updated_at", time.Now().UTC()),
	)
	ub.Where(ub.Equal("id", id))

	query, args := ub.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to set listing favorite")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update listing")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return nil, models.ErrListingNotFound
	}
	return r.Get(ctx, id)
}

// Delete removes a listing; its variants cascade
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "listing.Repository.Delete")
	defer span.End()

	if _, err := uuid.Parse(id); err != nil {
		return models.ErrListingNotFound
	}

	db := database.NewDeleteBuilder()
	db.DeleteFrom("listings")
	db.Where(db.Equal("id", id))

	query, args := db.Build()
	result, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("id", id).Error("Failed to delete listing")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete listing")
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return models.ErrListingNotFound
	}

	r.logger.WithContext(ctx).WithField("id", id).Info("Deleted listing")
	return nil
}

func (r *Repository) selectListings(ctx context.Context, sb *sqlbuilder.SelectBuilder, failure string) ([]models.Listing, error) {
	query, args := sb.Build()
	listings := []models.Listing{}
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &listings, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error(failure)
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to load listings")
	}

	ptrs := make([]*models.Listing, len(listings))
	for i := range listings {
		ptrs[i] = &listings[i]
	}
	if err := r.attachVariants(ctx, ptrs); err != nil {
		return nil, err
	}
	return listings, nil
}

// attachVariants loads the agency variants of listings in one query.
func (r *Repository) attachVariants(ctx context.Context, listings []*models.Listing) error {
	if len(listings) == 0 {
		return nil
	}

	byID := make(map[string]*models.Listing, len(listings))
	ids := make([]any, len(listings))
	for i, l := range listings {
		l.AgencyVariants = []models.AgencyVariant{}
		byID[l.ID] = l
		ids[i] = l.ID
	}

	sb := database.NewSelectBuilder()
	sb.Select(variantColumns...)
	sb.From("listing_agency_variants")
	sb.Where(sb.In("listing_id", ids...))
	sb.OrderBy("created_at", "id")

	query, args := sb.Build()
	var variants []models.AgencyVariant
	if err := database.Conn(ctx, r.db).SelectContext(ctx, &variants, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to load agency variants")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to load agency variants")
	}

	for _, v := range variants {
		if l, ok := byID[v.ListingID]; ok {
			l.AgencyVariants = append(l.AgencyVariants, v)
		}
	}
	return nil
}

// upsertVariants writes every variant of listing keyed by (listing, agency, portal).
func (r *Repository) upsertVariants(ctx context.Context, listing *models.Listing) error {
	if len(listing.AgencyVariants) == 0 {
		return nil
	}

	now := time.Now().UTC()
	ib := database.NewInsertBuilder()
	ib.InsertInto("listing_agency_variants")
	ib.Cols(variantColumns...)
	for i := range listing.AgencyVariants {
		v := &listing.AgencyVariants[i]
		if v.ID == "" {
			v.ID = uuid.New().String()
		}
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		v.ListingID = listing.ID
		v.UpdatedAt = now
		ib.Values(v.ID, v.ListingID, v.AgencyName, v.AgencyKey, v.AgencyPhone, v.PortalSource,
			v.ExternalID, v.URL, v.CreatedAt, v.UpdatedAt)
	}
	ib.OnConflict([]string{"listing_id", "agency_key", "portal_source"},
		"agency_name = "+database.Excluded("agency_name"),
		"agency_phone = COALESCE("+database.Excluded("agency_phone")+", listing_agency_variants.agency_phone)",
		"external_id = COALESCE("+database.Excluded("external_id")+", listing_agency_variants.external_id)",
		"url = COALESCE("+database.Excluded("url")+", listing_agency_variants.url)",
		"updated_at = "+database.Excluded("updated_at"),
	)

	query, args := ib.Build()
	if _, err := database.Conn(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("listing_id", listing.ID).Error("Failed to upsert agency variants")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to save agency variants")
	}
	return nil
}

func listingValues(l *models.Listing) []any {
	return []any{
		l.ID, l.Address, l.AddressKey, l.City, l.CityKey, l.Lat, l.Lng, l.Price, l.Size,
		l.Bedrooms, l.Bathrooms, l.Floor, l.Description, l.PropertyType, l.Source, l.OwnerType,
		l.Classification, l.IsAlsoFromAgency, l.RequiresManualInput, l.OwnerName, l.OwnerPhone,
		l.IsFavorite, l.CreatedAt, l.UpdatedAt,
	}
}

package listings

import (
	"context"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/dedup"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/portals"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type ListingStore interface {
	List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
	Get(ctx context.Context, id string) (*models.Listing, error)
	Delete(ctx context.Context, id string) error
	SetFavorite(ctx context.Context, id string, favorite bool) (*models.Listing, error)
}

type ConflictStore interface {
	List(ctx context.Context, status *models.ConflictStatus) ([]models.DuplicateConflict, error)
	Resolve(ctx context.Context, id string) (*models.DuplicateConflict, error)
}

// Normalizer turns a portal payload into a raw listing; satisfied by *portals.Registry.
type Normalizer interface {
	Normalize(payload *portals.RawListingPayload) (*models.RawListing, error)
}

type Ingester interface {
	Ingest(ctx context.Context, raw *models.RawListing) (*dedup.IngestResult, error)
	CompleteContact(ctx context.Context, listingID string, req *models.ContactRequest) (*models.Listing, error)
}

// Notifier pushes a changed listing to the buyers it matches.
type Notifier interface {
	NotifyMatches(ctx context.Context, listing *models.Listing)
}

// Handler serves listing import, browsing and review endpoints
type Handler struct {
	logger     ectologger.Logger
	validate   *validator.Validate
	listings   ListingStore
	conflicts  ConflictStore
	normalizer Normalizer
	ingester   Ingester
	notifier   Notifier
}

// NewHandler creates a new listing handler
func NewHandler(
	logger ectologger.Logger,
	listings ListingStore,
	conflicts ConflictStore,
	normalizer Normalizer,
	ingester Ingester,
	notifier Notifier,
) *Handler {
	return &Handler{
		logger:     logger,
		validate:   validator.New(),
		listings:   listings,
		conflicts:  conflicts,
		normalizer: normalizer,
		ingester:   ingester,
		notifier:   notifier,
	}
}

// Register registers listing routes
func (h *Handler) Register(g *echo.Group) {
	g.POST("/import", h.Import)
	g.GET("", h.List)
	g.GET("/conflicts", h.ListConflicts)
	g.POST("/conflicts/:id/resolve", h.ResolveConflict)
	g.GET("/:id", h.Get)
	g.DELETE("/:id", h.Delete)
	g.PUT("/:id/favorite", h.SetFavorite)
	g.PUT("/:id/contact", h.CompleteContact)
}

type ImportResponse struct {
	Listing  *models.Listing           `json:"listing"`
	Created  bool                      `json:"created"`
	Conflict *models.DuplicateConflict `json:"conflict,omitempty"`
}

// Import ingests one portal payload synchronously. A new canonical listing
// returns 201, a merge into an existing one returns 200.
func (h *Handler) Import(c echo.Context) error {
	ctx := c.Request().Context()

	var payload portals.RawListingPayload
	if err := c.Bind(&payload); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	raw, err := h.normalizer.Normalize(&payload)
	if err != nil {
		return err
	}

	result, err := h.ingester.Ingest(ctx, raw)
	if err != nil {
		return err
	}
	h.notifier.NotifyMatches(ctx, result.Listing)

	status := http.StatusOK
	if result.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, ImportResponse{
		Listing:  result.Listing,
		Created:  result.Created,
		Conflict: result.Conflict,
	})
}

// List filters listings by owner_type, source, classification and city
func (h *Handler) List(c echo.Context) error {
	ctx := c.Request().Context()

	filter, err := parseFilter(c)
	if err != nil {
		return err
	}

	listings, err := h.listings.List(ctx, filter)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listings)
}

func (h *Handler) Get(c echo.Context) error {
	listing, err := h.listings.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listing)
}

func (h *Handler) Delete(c echo.Context) error {
	if err := h.listings.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return err
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) SetFavorite(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.SetFavoriteRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "is_favorite is required")
	}

	listing, err := h.listings.SetFavorite(ctx, c.Param("id"), *req.IsFavorite)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, listing)
}

// CompleteContact supplies the owner or agency contact of a listing flagged
// for manual input, then reclassifies and rematches it.
func (h *Handler) CompleteContact(c echo.Context) error {
	ctx := c.Request().Context()

	var req models.ContactRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.PortalSource != "" && !req.PortalSource.Valid() {
		return httperror.NewHTTPError(http.StatusBadRequest, "unknown portal_source")
	}

	listing, err := h.ingester.CompleteContact(ctx, c.Param("id"), &req)
	if err != nil {
		return err
	}
	h.notifier.NotifyMatches(ctx, listing)

	return c.JSON(http.StatusOK, listing)
}

func (h *Handler) ListConflicts(c echo.Context) error {
	ctx := c.Request().Context()

	var status *models.ConflictStatus
	switch s := models.ConflictStatus(c.QueryParam("status")); s {
	case "":
	case models.ConflictStatusOpen, models.ConflictStatusResolved:
		status = &s
	default:
		return httperror.NewHTTPError(http.StatusBadRequest, "status must be open or resolved")
	}

	conflicts, err := h.conflicts.List(ctx, status)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conflicts)
}

func (h *Handler) ResolveConflict(c echo.Context) error {
	conflict, err := h.conflicts.Resolve(c.Request().Context(), c.Param("id"))
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, conflict)
}

func parseFilter(c echo.Context) (models.ListingFilter, error) {
	var filter models.ListingFilter

	if v := c.QueryParam("owner_type"); v != "" {
		owner := models.OwnerType(v)
		if owner != models.OwnerTypeAgency && owner != models.OwnerTypePrivate {
			return filter, httperror.NewHTTPError(http.StatusBadRequest, "owner_type must be agency or private")
		}
		filter.OwnerType = &owner
	}
	if v := c.QueryParam("source"); v != "" {
		source := models.Source(v)
		if !source.Valid() {
			return filter, httperror.NewHTTPError(http.StatusBadRequest, "unknown source")
		}
		filter.Source = &source
	}
	if v := c.QueryParam("classification"); v != "" {
		class := models.Classification(v)
		switch class {
		case models.ClassificationPrivate, models.ClassificationSingleAgency, models.ClassificationMultiAgency:
		default:
			return filter, httperror.NewHTTPError(http.StatusBadRequest, "unknown classification")
		}
		filter.Classification = &class
	}
	if v := c.QueryParam("city"); v != "" {
		city := normalizers.NormalizeCity(v)
		filter.CityKey = &city
	}
	return filter, nil
}

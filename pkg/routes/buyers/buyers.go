package buyers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/matching"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
)

type ClientStore interface {
	Get(ctx context.Context, id string) (*models.Client, error)
}

type PreferenceStore interface {
	GetByBuyer(ctx context.Context, buyerID string) (*models.BuyerPreference, error)
	Upsert(ctx context.Context, buyerID string, req models.UpsertPreferenceRequest) (*models.BuyerPreference, error)
}

type ListingSource interface {
	List(ctx context.Context, filter models.ListingFilter) ([]models.Listing, error)
}

type Matcher interface {
	FindMatches(ctx context.Context, buyerID string, pool []models.Listing, order matching.Order) ([]models.Listing, error)
}

type Tracker interface {
	PendingForBuyer(ctx context.Context, buyerID string, matched []models.Listing, resend bool) ([]models.Listing, error)
	RecordSent(ctx context.Context, buyerID, listingID string, sentAt time.Time) (*models.RecordSentResponse, error)
}

// Handler serves the buyer-facing matching and notification endpoints
type Handler struct {
	logger      ectologger.Logger
	validate    *validator.Validate
	clients     ClientStore
	preferences PreferenceStore
	listings    ListingSource
	matcher     Matcher
	tracker     Tracker
}

// NewHandler creates a new buyer handler
func NewHandler(
	logger ectologger.Logger,
	clients ClientStore,
	preferences PreferenceStore,
	listings ListingSource,
	matcher Matcher,
	tracker Tracker,
) *Handler {
	return &Handler{
		logger:      logger,
		validate:    validator.New(),
		clients:     clients,
		preferences: preferences,
		listings:    listings,
		matcher:     matcher,
		tracker:     tracker,
	}
}

// Register registers buyer routes
func (h *Handler) Register(g *echo.Group) {
	g.GET("/:buyer_id/matches", h.GetMatches)
	g.GET("/:buyer_id/pending", h.GetPending)
	g.POST("/:buyer_id/notifications", h.RecordNotification)
	g.GET("/:buyer_id/preference", h.GetPreference)
	g.PUT("/:buyer_id/preference", h.PutPreference)
}

type MatchesResponse struct {
	BuyerID  string           `json:"buyer_id"`
	Order    matching.Order   `json:"order,omitempty"`
	Count    int              `json:"count"`
	Listings []models.Listing `json:"listings"`
}

// GetMatches lists the listings matching the buyer's preference
func (h *Handler) GetMatches(c echo.Context) error {
	ctx := c.Request().Context()
	buyerID := c.Param("buyer_id")

	order, err := matching.ParseOrder(c.QueryParam("order"))
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	matched, err := h.findMatches(ctx, buyerID, order)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, MatchesResponse{
		BuyerID:  buyerID,
		Order:    order,
		Count:    len(matched),
		Listings: matched,
	})
}

// GetPending lists matching listings the buyer has not been notified about.
// resend=true returns every match.
func (h *Handler) GetPending(c echo.Context) error {
	ctx := c.Request().Context()
	buyerID := c.Param("buyer_id")

	resend := false
	if raw := c.QueryParam("resend"); raw != "" {
		parsed, err := strconv.ParseBool(raw)
		if err != nil {
			return httperror.NewHTTPError(http.StatusBadRequest, "resend must be true or false")
		}
		resend = parsed
	}

	matched, err := h.findMatches(ctx, buyerID, matching.OrderNewest)
	if err != nil {
		return err
	}

	pending, err := h.tracker.PendingForBuyer(ctx, buyerID, matched, resend)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, MatchesResponse{
		BuyerID:  buyerID,
		Count:    len(pending),
		Listings: pending,
	})
}

// RecordNotification marks a listing as sent to the buyer. The first send
// returns 201, repeats return 200.
func (h *Handler) RecordNotification(c echo.Context) error {
	ctx := c.Request().Context()
	buyerID := c.Param("buyer_id")

	var req models.RecordSentRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "listing_id must be a uuid")
	}

	if _, err := h.buyer(ctx, buyerID); err != nil {
		return err
	}

	var sentAt time.Time
	if req.NotifiedAt != nil {
		sentAt = *req.NotifiedAt
	}
	resp, err := h.tracker.RecordSent(ctx, buyerID, req.ListingID, sentAt)
	if err != nil {
		return err
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, resp)
}

func (h *Handler) GetPreference(c echo.Context) error {
	ctx := c.Request().Context()
	buyerID := c.Param("buyer_id")

	if _, err := h.clients.Get(ctx, buyerID); err != nil {
		return err
	}

	pref, err := h.preferences.GetByBuyer(ctx, buyerID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, pref)
}

// PutPreference replaces the buyer's preference. Sellers are rejected.
func (h *Handler) PutPreference(c echo.Context) error {
	ctx := c.Request().Context()
	buyerID := c.Param("buyer_id")

	var req models.UpsertPreferenceRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if err := h.validate.Struct(req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := req.Validate(); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if _, err := h.buyer(ctx, buyerID); err != nil {
		return err
	}

	pref, err := h.preferences.Upsert(ctx, buyerID, req)
	if err != nil {
		return err
	}

	h.logger.WithContext(ctx).WithFields(map[string]any{
		"buyer_id": buyerID,
		"id":       pref.ID,
	}).Info("Updated buyer preference")
	return c.JSON(http.StatusOK, pref)
}

func (h *Handler) findMatches(ctx context.Context, buyerID string, order matching.Order) ([]models.Listing, error) {
	pool, err := h.listings.List(ctx, models.ListingFilter{})
	if err != nil {
		return nil, err
	}
	return h.matcher.FindMatches(ctx, buyerID, pool, order)
}

// buyer loads the client and rejects sellers.
func (h *Handler) buyer(ctx context.Context, id string) (*models.Client, error) {
	client, err := h.clients.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !client.IsBuyer() {
		return nil, models.ErrNotBuyer
	}
	return client, nil
}

package listings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/dedup"
	"github.com/Ramsey-B/fern/pkg/middleware"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/portals"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const listingID = "4b1c7a43-0d36-4c1f-9a63-3c6a8b2f1e10"

type fakeListings struct {
	byID    map[string]*models.Listing
	filters []models.ListingFilter
}

func (f *fakeListings) List(_ context.Context, filter models.ListingFilter) ([]models.Listing, error) {
	f.filters = append(f.filters, filter)
	out := []models.Listing{}
	for _, l := range f.byID {
		out = append(out, *l)
	}
	return out, nil
}

func (f *fakeListings) Get(_ context.Context, id string) (*models.Listing, error) {
	if l, ok := f.byID[id]; ok {
		return l, nil
	}
	return nil, models.ErrListingNotFound
}

func (f *fakeListings) Delete(_ context.Context, id string) error {
	if _, ok := f.byID[id]; !ok {
		return models.ErrListingNotFound
	}
	delete(f.byID, id)
	return nil
}

func (f *fakeListings) SetFavorite(ctx context.Context, id string, favorite bool) (*models.Listing, error) {
	l, err := f.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	l.IsFavorite = favorite
	return l, nil
}

type fakeConflicts struct {
	statuses []*models.ConflictStatus
}

func (f *fakeConflicts) List(_ context.Context, status *models.ConflictStatus) ([]models.DuplicateConflict, error) {
	f.statuses = append(f.statuses, status)
	return []models.DuplicateConflict{}, nil
}

func (f *fakeConflicts) Resolve(_ context.Context, id string) (*models.DuplicateConflict, error) {
	if id != "c1" {
		return nil, models.ErrConflictNotFound
	}
	return &models.DuplicateConflict{ID: id, Status: models.ConflictStatusResolved}, nil
}

type fakeIngester struct {
	ingested []*models.RawListing
	seen     map[string]bool
}

func (f *fakeIngester) Ingest(_ context.Context, raw *models.RawListing) (*dedup.IngestResult, error) {
	f.ingested = append(f.ingested, raw)
	key := raw.Address + "|" + raw.City
	created := !f.seen[key]
	f.seen[key] = true
	return &dedup.IngestResult{Listing: &models.Listing{ID: listingID, Address: raw.Address}, Created: created}, nil
}

func (f *fakeIngester) CompleteContact(_ context.Context, id string, req *models.ContactRequest) (*models.Listing, error) {
	if req.OwnerName == nil && req.AgencyName == nil {
		return nil, models.ErrMissingClassificationInput
	}
	return &models.Listing{ID: id, Classification: models.ClassificationPrivate}, nil
}

type fakeNotifier struct {
	notified []string
}

func (f *fakeNotifier) NotifyMatches(_ context.Context, listing *models.Listing) {
	f.notified = append(f.notified, listing.ID)
}

type fixture struct {
	server    *echo.Echo
	listings  *fakeListings
	conflicts *fakeConflicts
	ingester  *fakeIngester
	notifier  *fakeNotifier
}

func newFixture() *fixture {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	f := &fixture{
		listings:  &fakeListings{byID: map[string]*models.Listing{listingID: {ID: listingID}}},
		conflicts: &fakeConflicts{},
		ingester:  &fakeIngester{seen: map[string]bool{}},
		notifier:  &fakeNotifier{},
	}

	e := echo.New()
	e.HTTPErrorHandler = middleware.Error(logger)
	NewHandler(logger, f.listings, f.conflicts, portals.NewRegistry(), f.ingester, f.notifier).Register(e.Group("/listings"))
	f.server = e
	return f
}

func (f *fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

const manualPayload = `{"portal_source":"manual-import","payload":{"address":"Via Roma 10","city":"Milano","price":250000,"size":80,"portal_source":"manual-import","owner_name":"Mario Rossi"}}`

func TestHandler_Import(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPost, "/listings/import", manualPayload)
	require.Equal(t, http.StatusCreated, rec.Code)

	var resp ImportResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Created)
	require.Len(t, f.ingester.ingested, 1)
	assert.Equal(t, int64(250000), f.ingester.ingested[0].Price)
	assert.Equal(t, []string{listingID}, f.notifier.notified)

	rec = f.do(http.MethodPost, "/listings/import", manualPayload)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHandler_ImportRejectsBadPayloads(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "unknown portal", body: `{"portal_source":"scraper-casa","payload":{}}`},
		{name: "missing payload", body: `{"portal_source":"manual-import"}`},
		{name: "malformed body", body: `{"portal_source":`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/listings/import", tt.body).Code)
			assert.Empty(t, f.ingester.ingested)
		})
	}
}

func TestHandler_List(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodGet, "/listings?owner_type=private&classification=multi-agency&city=Milano", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, f.listings.filters, 1)

	filter := f.listings.filters[0]
	require.NotNil(t, filter.OwnerType)
	assert.Equal(t, models.OwnerTypePrivate, *filter.OwnerType)
	require.NotNil(t, filter.CityKey)
	assert.Equal(t, "milano", *filter.CityKey)
	assert.Nil(t, filter.Source)

	for _, query := range []string{"owner_type=owner", "source=zillow", "classification=duplicate"} {
		assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/listings?"+query, "").Code, query)
	}
}

func TestHandler_GetFavoriteDelete(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/listings/"+listingID, "").Code)
	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPut, "/listings/"+listingID+"/favorite", `{}`).Code)

	rec := f.do(http.MethodPut, "/listings/"+listingID+"/favorite", `{"is_favorite":true}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.listings.byID[listingID].IsFavorite)

	assert.Equal(t, http.StatusNoContent, f.do(http.MethodDelete, "/listings/"+listingID, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/listings/"+listingID, "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodDelete, "/listings/"+listingID, "").Code)
}

func TestHandler_CompleteContact(t *testing.T) {
	f := newFixture()

	rec := f.do(http.MethodPut, "/listings/"+listingID+"/contact", `{"owner_name":"Mario Rossi"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{listingID}, f.notifier.notified)

	assert.Equal(t, http.StatusUnprocessableEntity, f.do(http.MethodPut, "/listings/"+listingID+"/contact", `{}`).Code)
	assert.Equal(t, http.StatusBadRequest,
		f.do(http.MethodPut, "/listings/"+listingID+"/contact", `{"agency_name":"Rossi","portal_source":"fax"}`).Code)
}

func TestHandler_Conflicts(t *testing.T) {
	f := newFixture()

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/listings/conflicts?status=open", "").Code)
	require.Len(t, f.conflicts.statuses, 1)
	require.NotNil(t, f.conflicts.statuses[0])
	assert.Equal(t, models.ConflictStatusOpen, *f.conflicts.statuses[0])

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodGet, "/listings/conflicts?status=closed", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPost, "/listings/conflicts/c1/resolve", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/listings/conflicts/c2/resolve", "").Code)
}

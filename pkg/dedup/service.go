package dedup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/classify"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/go-playground/validator/v10"
)

// ListingStore persists canonical listings with their agency variants.
// Create returns models.ErrStorageConflict when the unique unit index collides.
type ListingStore interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	// LockUnit serializes find-or-create of one normalized address until the
	// surrounding transaction ends.
	LockUnit(ctx context.Context, cityKey, addressKey string) error
	FindByKeys(ctx context.Context, cityKey, addressKey string) ([]models.Listing, error)
	Get(ctx context.Context, id string) (*models.Listing, error)
	Create(ctx context.Context, listing *models.Listing) error
	Update(ctx context.Context, listing *models.Listing) error
}

type ConflictStore interface {
	Create(ctx context.Context, conflict *models.DuplicateConflict) error
}

// Locker is satisfied by *redis.Locker.
type Locker interface {
	WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error
}

// Emitter publishes ingest outcomes. Failures are logged, never returned.
type Emitter interface {
	EmitListingIngested(ctx context.Context, listing *models.Listing, created bool) error
	EmitDuplicateConflict(ctx context.Context, conflict *models.DuplicateConflict) error
}

type IngestResult struct {
	Listing  *models.Listing
	Created  bool
	Conflict *models.DuplicateConflict
}

type Service struct {
	config     Config
	logger     ectologger.Logger
	validate   *validator.Validate
	dedup      *Deduplicator
	classifier *classify.Classifier
	listings   ListingStore
	conflicts  ConflictStore
	locker     Locker
	emitter    Emitter
	now        func() time.Time
}

type ServiceOption func(*Service)

// WithLocker serializes ingests of the same unit across instances.
func WithLocker(locker Locker) ServiceOption {
	return func(s *Service) { s.locker = locker }
}

func WithEmitter(emitter Emitter) ServiceOption {
	return func(s *Service) { s.emitter = emitter }
}

func NewService(
	config Config,
	logger ectologger.Logger,
	classifier *classify.Classifier,
	listings ListingStore,
	conflicts ConflictStore,
	opts ...ServiceOption,
) *Service {
	s := &Service{
		config:     config,
		logger:     logger,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		dedup:      NewDeduplicator(config, logger),
		classifier: classifier,
		listings:   listings,
		conflicts:  conflicts,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Ingest finds or creates the canonical listing for raw and reclassifies it.
// A unique index collision from a concurrent create is retried through the
// merge path.
func (s *Service) Ingest(ctx context.Context, raw *models.RawListing) (*IngestResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Service.Ingest")
	defer span.End()

	start := time.Now()
	portal := string(raw.PortalSource)
	defer func() { metrics.IngestDuration.WithLabelValues(portal).Observe(time.Since(start).Seconds()) }()

	if err := s.validate.StructCtx(ctx, raw); err != nil {
		metrics.ListingsIngestedTotal.WithLabelValues(portal, "invalid").Inc()
		return nil, fmt.Errorf("%w: %v", models.ErrInvalidPayload, err)
	}

	keys := KeysFor(raw.Address, raw.City)
	if keys.Address == "" || keys.City == "" {
		metrics.ListingsIngestedTotal.WithLabelValues(portal, "invalid").Inc()
		return nil, fmt.Errorf("%w: address %q in %q normalizes to nothing", models.ErrInvalidPayload, raw.Address, raw.City)
	}

	var result *IngestResult
	run := func(ctx context.Context) error {
		var err error
		result, err = s.ingestWithRetry(ctx, raw, keys)
		return err
	}

	var err error
	if s.locker != nil {
		err = s.locker.WithLock(ctx, keys.LockKey(), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		metrics.ListingsIngestedTotal.WithLabelValues(portal, "failed").Inc()
		return nil, err
	}

	s.recordOutcome(ctx, raw, result)
	return result, nil
}

func (s *Service) ingestWithRetry(ctx context.Context, raw *models.RawListing, keys Keys) (*IngestResult, error) {
	var lastErr error
	for attempt := 0; attempt <= s.config.MaxConflictRetries; attempt++ {
		result, err := s.ingestOnce(ctx, raw, keys)
		if err == nil {
			return result, nil
		}
		if !errors.Is(err, models.ErrStorageConflict) {
			return nil, err
		}

		lastErr = err
		metrics.StorageConflictRetriesTotal.Inc()
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"attempt":     attempt + 1,
			"city_key":    keys.City,
			"address_key": keys.Address,
		}).Warn("concurrent canonical create detected, retrying through merge path")
	}
	return nil, fmt.Errorf("ingest gave up after %d conflict retries: %w", s.config.MaxConflictRetries, lastErr)
}

// ingestOnce runs find, classify and write in one transaction holding the
// unit lock, so a concurrent import of the same address sees this one's
// result instead of an outdated pool.
func (s *Service) ingestOnce(ctx context.Context, raw *models.RawListing, keys Keys) (*IngestResult, error) {
	result := &IngestResult{}
	err := s.listings.WithTx(ctx, func(ctx context.Context) error {
		if err := s.listings.LockUnit(ctx, keys.City, keys.Address); err != nil {
			return err
		}
		pool, err := s.listings.FindByKeys(ctx, keys.City, keys.Address)
		if err != nil {
			return err
		}

		match := s.dedup.FindCanonical(ctx, raw, pool)
		classification := s.classifier.Classify(ctx, raw, match.Canonical)

		if match.Canonical == nil {
			listing := newListing(raw, keys, classification, s.now())
			if err := s.listings.Create(ctx, listing); err != nil {
				return err
			}
			result.Listing = listing
			result.Created = true
			return nil
		}

		listing := mergeInto(*match.Canonical, raw, classification, s.now())
		if err := s.listings.Update(ctx, &listing); err != nil {
			return err
		}
		result.Listing = &listing

		if match.Ambiguous() {
			conflict := s.newConflict(raw, match)
			if err := s.conflicts.Create(ctx, conflict); err != nil {
				return err
			}
			result.Conflict = conflict
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Service) recordOutcome(ctx context.Context, raw *models.RawListing, result *IngestResult) {
	portal := string(raw.PortalSource)
	outcome := "merged"
	switch {
	case result.Listing.RequiresManualInput:
		outcome = "manual_input"
	case result.Created:
		outcome = "created"
	}
	metrics.ListingsIngestedTotal.WithLabelValues(portal, outcome).Inc()

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"listing_id":      result.Listing.ID,
		"created":         result.Created,
		"classification":  string(result.Listing.Classification),
		"agency_variants": len(result.Listing.AgencyVariants),
		"portal_source":   portal,
	}).Info("Ingested listing")

	if result.Conflict != nil {
		metrics.DuplicateConflictsTotal.Inc()
	}

	if s.emitter == nil {
		return
	}
	if err := s.emitter.EmitListingIngested(ctx, result.Listing, result.Created); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Failed to emit listing event")
	}
	if result.Conflict != nil {
		if err := s.emitter.EmitDuplicateConflict(ctx, result.Conflict); err != nil {
			s.logger.WithContext(ctx).WithError(err).Warn("Failed to emit duplicate conflict event")
		}
	}
}

// CompleteContact supplies the contact a listing lacked at import and
// reclassifies it.
func (s *Service) CompleteContact(ctx context.Context, listingID string, req *models.ContactRequest) (*models.Listing, error) {
	ctx, span := tracing.StartSpan(ctx, "dedup.Service.CompleteContact")
	defer span.End()

	portal := req.PortalSource
	if portal == "" {
		portal = models.SourceManualImport
	}
	contact := &models.RawListing{
		OwnerName:    req.OwnerName,
		OwnerPhone:   req.OwnerPhone,
		AgencyName:   req.AgencyName,
		AgencyPhone:  req.AgencyPhone,
		PortalSource: portal,
		URL:          req.URL,
	}
	if !contact.HasAgencyContact() && !contact.HasOwnerContact() {
		return nil, fmt.Errorf("%w: owner or agency contact required", models.ErrMissingClassificationInput)
	}

	var merged models.Listing
	err := s.listings.WithTx(ctx, func(ctx context.Context) error {
		listing, err := s.listings.Get(ctx, listingID)
		if err != nil {
			return err
		}
		keys := Keys{City: listing.CityKey, Address: listing.AddressKey}
		if keys.City == "" || keys.Address == "" {
			keys = KeysFor(listing.Address, listing.City)
		}
		if err := s.listings.LockUnit(ctx, keys.City, keys.Address); err != nil {
			return err
		}
		// re-read under the lock so variants merged meanwhile are kept
		if listing, err = s.listings.Get(ctx, listingID); err != nil {
			return err
		}

		raw := *contact
		raw.Address, raw.City = listing.Address, listing.City
		raw.Price, raw.Size = listing.Price, listing.Size

		merged = mergeInto(*listing, &raw, s.classifier.Classify(ctx, &raw, listing), s.now())
		return s.listings.Update(ctx, &merged)
	})
	if err != nil {
		return nil, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"listing_id":     merged.ID,
		"classification": string(merged.Classification),
	}).Info("Completed listing contact")
	return &merged, nil
}

func newListing(raw *models.RawListing, keys Keys, c classify.Result, now time.Time) *models.Listing {
	listing := &models.Listing{
		Address:      strings.TrimSpace(raw.Address),
		AddressKey:   keys.Address,
		City:         strings.TrimSpace(raw.City),
		CityKey:      keys.City,
		Price:        raw.Price,
		Size:         raw.Size,
		Bedrooms:     raw.Bedrooms,
		Bathrooms:    raw.Bathrooms,
		Floor:        raw.Floor,
		Description:  raw.Description,
		PropertyType: raw.PropertyType,
		Source:       raw.PortalSource,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	listing.SetLocation(raw.Location)
	applyClassification(listing, c)
	return listing
}

// mergeInto keeps the canonical's identity, price and size and only fills
// attributes it is missing.
func mergeInto(canonical models.Listing, raw *models.RawListing, c classify.Result, now time.Time) models.Listing {
	if _, ok := canonical.Location(); !ok && raw.Location != nil && models.ValidLocation(*raw.Location) {
		canonical.SetLocation(raw.Location)
	}
	if canonical.Bedrooms == nil {
		canonical.Bedrooms = raw.Bedrooms
	}
	if canonical.Bathrooms == nil {
		canonical.Bathrooms = raw.Bathrooms
	}
	if canonical.Floor == nil {
		canonical.Floor = raw.Floor
	}
	if canonical.Description == nil {
		canonical.Description = raw.Description
	}
	if canonical.PropertyType == "" {
		canonical.PropertyType = raw.PropertyType
	}
	canonical.UpdatedAt = now
	applyClassification(&canonical, c)
	return canonical
}

func applyClassification(listing *models.Listing, c classify.Result) {
	listing.Classification = c.Classification
	listing.OwnerType = c.OwnerType
	listing.AgencyVariants = c.AgencyVariants
	listing.IsAlsoFromAgency = c.IsAlsoFromAgency
	listing.RequiresManualInput = c.RequiresManualInput
	listing.OwnerName = c.OwnerName
	listing.OwnerPhone = c.OwnerPhone
}

func (s *Service) newConflict(raw *models.RawListing, match Match) *models.DuplicateConflict {
	ids := make([]string, len(match.Candidates))
	for i, c := range match.Candidates {
		ids[i] = c.ID
	}
	return &models.DuplicateConflict{
		ChosenListingID:     match.Canonical.ID,
		CandidateListingIDs: ids,
		RawAddress:          raw.Address,
		City:                raw.City,
		PortalSource:        raw.PortalSource,
		ExternalID:          raw.ExternalID,
		Status:              models.ConflictStatusOpen,
		CreatedAt:           s.now(),
	}
}

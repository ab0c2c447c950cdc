// Package classify derives how a canonical listing is marketed (private,
// single-agency or multi-agency) from the contacts seen across its imports.
package classify

import (
	"context"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
)

// Result is the classification state to persist on the canonical listing.
type Result struct {
	Classification      models.Classification
	OwnerType           models.OwnerType
	AgencyVariants      []models.AgencyVariant
	IsAlsoFromAgency    bool
	RequiresManualInput bool
	OwnerName           *string
	OwnerPhone          *string
}

// DistinctAgencies counts variants by agency, ignoring portal.
func (r Result) DistinctAgencies() int {
	return countAgencies(r.AgencyVariants)
}

type Classifier struct {
	logger ectologger.Logger
}

func NewClassifier(logger ectologger.Logger) *Classifier {
	return &Classifier{logger: logger}
}

// Classify folds raw into the classification state of existing (nil for a new
// unit). Agency variants are a set keyed by agency and portal, so classifying
// the same raw listing again never grows it. When both a private owner and
// agencies have advertised the unit, the agency count decides the
// classification, OwnerType stays private and IsAlsoFromAgency is set.
func (c *Classifier) Classify(ctx context.Context, raw *models.RawListing, existing *models.Listing) Result {
	result := Result{}
	privateSeen := false

	if existing != nil {
		result.AgencyVariants = append([]models.AgencyVariant(nil), existing.AgencyVariants...)
		result.OwnerName = existing.OwnerName
		result.OwnerPhone = existing.OwnerPhone
		privateSeen = existing.OwnerType == models.OwnerTypePrivate
	}

	switch {
	case raw.HasAgencyContact():
		result.AgencyVariants = upsertVariant(result.AgencyVariants, variantFrom(raw))
	case raw.HasOwnerContact():
		privateSeen = true
		if hasText(raw.OwnerName) {
			result.OwnerName = raw.OwnerName
		}
		if hasText(raw.OwnerPhone) {
			result.OwnerPhone = raw.OwnerPhone
		}
	}

	agencies := countAgencies(result.AgencyVariants)
	switch {
	case agencies >= 2:
		result.Classification = models.ClassificationMultiAgency
	case agencies == 1:
		result.Classification = models.ClassificationSingleAgency
	case privateSeen:
		result.Classification = models.ClassificationPrivate
	default:
		result.Classification = models.ClassificationUnknown
		result.RequiresManualInput = true
	}

	switch {
	case privateSeen:
		result.OwnerType = models.OwnerTypePrivate
	case agencies > 0:
		result.OwnerType = models.OwnerTypeAgency
	}
	result.IsAlsoFromAgency = privateSeen && agencies > 0

	if raw.ClassificationHint != nil && *raw.ClassificationHint != result.Classification && c.logger != nil {
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"hint":           string(*raw.ClassificationHint),
			"classification": string(result.Classification),
			"portal_source":  string(raw.PortalSource),
		}).Debug("classification hint overridden")
	}
	if result.RequiresManualInput && c.logger != nil {
		c.logger.WithContext(ctx).WithFields(map[string]any{
			"address":       raw.Address,
			"city":          raw.City,
			"portal_source": string(raw.PortalSource),
		}).Warn("listing has no owner or agency contact, requires manual input")
	}

	return result
}

func variantFrom(raw *models.RawListing) models.AgencyVariant {
	name := strings.TrimSpace(*raw.AgencyName)
	return models.AgencyVariant{
		AgencyName:   name,
		AgencyKey:    normalizers.NormalizeAgency(name),
		AgencyPhone:  raw.AgencyPhone,
		PortalSource: raw.PortalSource,
		ExternalID:   raw.ExternalID,
		URL:          raw.URL,
	}
}

// upsertVariant replaces the variant with the same agency and portal, keeping
// its identity and position, or appends v.
func upsertVariant(variants []models.AgencyVariant, v models.AgencyVariant) []models.AgencyVariant {
	for i, existing := range variants {
		if existing.AgencyKey == v.AgencyKey && existing.PortalSource == v.PortalSource {
			v.ID = existing.ID
			v.ListingID = existing.ListingID
			v.CreatedAt = existing.CreatedAt
			if v.AgencyPhone == nil {
				v.AgencyPhone = existing.AgencyPhone
			}
			if v.ExternalID == nil {
				v.ExternalID = existing.ExternalID
			}
			if v.URL == nil {
				v.URL = existing.URL
			}
			variants[i] = v
			return variants
		}
	}
	return append(variants, v)
}

func countAgencies(variants []models.AgencyVariant) int {
	seen := make(map[string]struct{}, len(variants))
	for _, v := range variants {
		key := v.AgencyKey
		if key == "" {
			key = normalizers.NormalizeAgency(v.AgencyName)
		}
		seen[key] = struct{}{}
	}
	return len(seen)
}

func hasText(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

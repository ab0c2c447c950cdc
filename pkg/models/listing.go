package models

import (
	"time"
)

type PropertyType string

const (
	PropertyTypeApartment  PropertyType = "apartment"
	PropertyTypeHouse      PropertyType = "house"
	PropertyTypeVilla      PropertyType = "villa"
	PropertyTypePenthouse  PropertyType = "penthouse"
	PropertyTypeCommercial PropertyType = "commercial"
	PropertyTypeLand       PropertyType = "land"
	// PropertyTypeAny on a preference leaves the type unconstrained.
	PropertyTypeAny PropertyType = "any"
)

func (p PropertyType) Valid() bool {
	switch p {
	case PropertyTypeApartment, PropertyTypeHouse, PropertyTypeVilla,
		PropertyTypePenthouse, PropertyTypeCommercial, PropertyTypeLand, PropertyTypeAny:
		return true
	}
	return false
}

type Source string

const (
	SourceOwned                Source = "owned"
	SourceScraperImmobiliare   Source = "scraper-immobiliare"
	SourceScraperIdealista     Source = "scraper-idealista"
	SourceScraperClickcase     Source = "scraper-clickcase"
	SourceScraperCasadaprivato Source = "scraper-casadaprivato"
	SourceManualImport         Source = "manual-import"
)

func (s Source) Valid() bool {
	switch s {
	case SourceOwned, SourceScraperImmobiliare, SourceScraperIdealista,
		SourceScraperClickcase, SourceScraperCasadaprivato, SourceManualImport:
		return true
	}
	return false
}

// OwnerType is empty while a listing waits for manual contact input.
type OwnerType string

const (
	OwnerTypeUnknown OwnerType = ""
	OwnerTypeAgency  OwnerType = "agency"
	OwnerTypePrivate OwnerType = "private"
)

type Classification string

const (
	// ClassificationUnknown is stored while a listing waits for manual contact input.
	ClassificationUnknown      Classification = ""
	ClassificationPrivate      Classification = "private"
	ClassificationSingleAgency Classification = "single-agency"
	ClassificationMultiAgency  Classification = "multi-agency"
)

type Location struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Listing is a canonical property record, owned or merged from portal imports.
type Listing struct {
	ID                  string         `json:"id" db:"id"`
	Address             string         `json:"address" db:"address"`
	AddressKey          string         `json:"address_key" db:"address_key"`
	City                string         `json:"city" db:"city"`
	CityKey             string         `json:"city_key" db:"city_key"`
	Lat                 *float64       `json:"lat,omitempty" db:"lat"`
	Lng                 *float64       `json:"lng,omitempty" db:"lng"`
	Price               int64          `json:"price" db:"price"`
	Size                float64        `json:"size" db:"size_sqm"`
	Bedrooms            *int           `json:"bedrooms,omitempty" db:"bedrooms"`
	Bathrooms           *int           `json:"bathrooms,omitempty" db:"bathrooms"`
	Floor               *string        `json:"floor,omitempty" db:"floor"`
	Description         *string        `json:"description,omitempty" db:"description"`
	PropertyType        PropertyType   `json:"property_type" db:"property_type"`
	Source              Source         `json:"source" db:"source"`
	OwnerType           OwnerType      `json:"owner_type" db:"owner_type"`
	Classification      Classification `json:"classification" db:"classification"`
	IsAlsoFromAgency    bool           `json:"is_also_from_agency" db:"is_also_from_agency"`
	RequiresManualInput bool           `json:"requires_manual_input" db:"requires_manual_input"`
	OwnerName           *string        `json:"owner_name,omitempty" db:"owner_name"`
	OwnerPhone          *string        `json:"owner_phone,omitempty" db:"owner_phone"`
	IsFavorite          bool           `json:"is_favorite" db:"is_favorite"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time      `json:"updated_at" db:"updated_at"`

	AgencyVariants []AgencyVariant `json:"agency_variants" db:"-"`
}

// Location returns the listing coordinates, if both are known.
func (l *Listing) Location() (Location, bool) {
	if l.Lat == nil || l.Lng == nil {
		return Location{}, false
	}
	return Location{Lat: *l.Lat, Lng: *l.Lng}, true
}

func (l *Listing) SetLocation(loc *Location) {
	if loc == nil {
		l.Lat, l.Lng = nil, nil
		return
	}
	lat, lng := loc.Lat, loc.Lng
	l.Lat, l.Lng = &lat, &lng
}

// AgencyVariant is one agency's advertisement of a canonical listing,
// unique per (agency, portal).
type AgencyVariant struct {
	ID           string    `json:"id" db:"id"`
	ListingID    string    `json:"listing_id" db:"listing_id"`
	AgencyName   string    `json:"agency_name" db:"agency_name"`
	AgencyKey    string    `json:"-" db:"agency_key"`
	AgencyPhone  *string   `json:"agency_phone,omitempty" db:"agency_phone"`
	PortalSource Source    `json:"portal_source" db:"portal_source"`
	ExternalID   *string   `json:"external_id,omitempty" db:"external_id"`
	URL          *string   `json:"url,omitempty" db:"url"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time `json:"updated_at" db:"updated_at"`
}

type ListingFilter struct {
	OwnerType      *OwnerType
	Source         *Source
	Classification *Classification
	CityKey        *string
	AddressKey     *string
}

type SetFavoriteRequest struct {
	IsFavorite *bool `json:"is_favorite" validate:"required"`
}

// ContactRequest supplies the contact a listing was missing at import time.
type ContactRequest struct {
	OwnerName    *string `json:"owner_name,omitempty"`
	OwnerPhone   *string `json:"owner_phone,omitempty"`
	AgencyName   *string `json:"agency_name,omitempty"`
	AgencyPhone  *string `json:"agency_phone,omitempty"`
	PortalSource Source  `json:"portal_source,omitempty"`
	URL          *string `json:"url,omitempty"`
}

package models

import "strings"

// RawListing is a portal payload normalized into one portal-agnostic shape.
type RawListing struct {
	Address            string          `json:"address" validate:"required"`
	City               string          `json:"city" validate:"required"`
	Price              int64           `json:"price" validate:"gt=0"`
	Size               float64         `json:"size" validate:"gt=0"`
	Bedrooms           *int            `json:"bedrooms,omitempty" validate:"omitempty,gte=0"`
	Bathrooms          *int            `json:"bathrooms,omitempty" validate:"omitempty,gte=0"`
	Floor              *string         `json:"floor,omitempty"`
	Description        *string         `json:"description,omitempty"`
	PropertyType       PropertyType    `json:"property_type,omitempty"`
	Location           *Location       `json:"location,omitempty"`
	OwnerName          *string         `json:"owner_name,omitempty"`
	OwnerPhone         *string         `json:"owner_phone,omitempty"`
	AgencyName         *string         `json:"agency_name,omitempty"`
	AgencyPhone        *string         `json:"agency_phone,omitempty"`
	PortalSource       Source          `json:"portal_source" validate:"required"`
	ExternalID         *string         `json:"external_id,omitempty"`
	URL                *string         `json:"url,omitempty"`
	ClassificationHint *Classification `json:"classification_hint,omitempty"`
}

func (r *RawListing) HasAgencyContact() bool {
	return nonBlank(r.AgencyName)
}

func (r *RawListing) HasOwnerContact() bool {
	return nonBlank(r.OwnerName) || nonBlank(r.OwnerPhone)
}

func nonBlank(s *string) bool {
	return s != nil && strings.TrimSpace(*s) != ""
}

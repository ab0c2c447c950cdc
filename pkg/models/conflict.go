package models

import (
	"time"

	"github.com/lib/pq"
)

type ConflictStatus string

const (
	ConflictStatusOpen     ConflictStatus = "open"
	ConflictStatusResolved ConflictStatus = "resolved"
)

// DuplicateConflict records an import that matched more than one canonical listing.
type DuplicateConflict struct {
	ID                  string         `json:"id" db:"id"`
	ChosenListingID     string         `json:"chosen_listing_id" db:"chosen_listing_id"`
	CandidateListingIDs pq.StringArray `json:"candidate_listing_ids" db:"candidate_listing_ids"`
	RawAddress          string         `json:"raw_address" db:"raw_address"`
	City                string         `json:"city" db:"city"`
	PortalSource        Source         `json:"portal_source" db:"portal_source"`
	ExternalID          *string        `json:"external_id,omitempty" db:"external_id"`
	Status              ConflictStatus `json:"status" db:"status"`
	CreatedAt           time.Time      `json:"created_at" db:"created_at"`
	ResolvedAt          *time.Time     `json:"resolved_at,omitempty" db:"resolved_at"`
}

package events

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EventType defines the type of event
type EventType string

const (
	EventTypeListingCreated    EventType = "listing.created"
	EventTypeListingMerged     EventType = "listing.merged"
	EventTypeListingConflict   EventType = "listing.conflict"
	EventTypeBuyerMatchPending EventType = "buyer.match.pending"
)

// ListingIngestedEvent is emitted after a raw listing was created or merged.
type ListingIngestedEvent struct {
	ListingID           string                `json:"listing_id"`
	Created             bool                  `json:"created"`
	Classification      models.Classification `json:"classification"`
	OwnerType           models.OwnerType      `json:"owner_type"`
	AgencyVariantCount  int                   `json:"agency_variant_count"`
	IsAlsoFromAgency    bool                  `json:"is_also_from_agency"`
	RequiresManualInput bool                  `json:"requires_manual_input"`
	Price               int64                 `json:"price"`
	City                string                `json:"city"`
}

// ListingConflictEvent flags an import that matched several canonical listings.
type ListingConflictEvent struct {
	ConflictID          string        `json:"conflict_id"`
	ChosenListingID     string        `json:"chosen_listing_id"`
	CandidateListingIDs []string      `json:"candidate_listing_ids"`
	RawAddress          string        `json:"raw_address"`
	City                string        `json:"city"`
	PortalSource        models.Source `json:"portal_source"`
}

// BuyerMatchPendingEvent asks the messaging collaborator to propose listings
// the buyer has not been sent yet.
type BuyerMatchPendingEvent struct {
	BuyerID    string    `json:"buyer_id"`
	ListingIDs []string  `json:"listing_ids"`
	MatchedAt  time.Time `json:"matched_at"`
}

package models

import "time"

// NotificationRecord is the single logical send record for a (buyer, listing) pair.
type NotificationRecord struct {
	BuyerID    string    `json:"buyer_id" db:"buyer_id"`
	ListingID  string    `json:"listing_id" db:"listing_id"`
	NotifiedAt time.Time `json:"notified_at" db:"notified_at"`
	SendCount  int       `json:"send_count" db:"send_count"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

type RecordSentRequest struct {
	ListingID  string     `json:"listing_id" validate:"required,uuid"`
	NotifiedAt *time.Time `json:"notified_at,omitempty"`
}

type RecordSentResponse struct {
	Record  NotificationRecord `json:"record"`
	Created bool               `json:"created"`
}

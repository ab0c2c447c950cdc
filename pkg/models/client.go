package models

import "time"

type ClientType string

const (
	ClientTypeBuyer  ClientType = "buyer"
	ClientTypeSeller ClientType = "seller"
	ClientTypeBoth   ClientType = "both"
)

type Client struct {
	ID         string     `json:"id" db:"id"`
	Name       string     `json:"name" db:"name"`
	ClientType ClientType `json:"client_type" db:"client_type"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
}

// IsBuyer reports whether preferences are evaluated for this client.
func (c *Client) IsBuyer() bool {
	return c.ClientType == ClientTypeBuyer || c.ClientType == ClientTypeBoth
}

package order

import "github.com/cargo-track/cargo_track/internal/identity"

// HistoryEntry is one append-only step of an order's status trail.
type HistoryEntry struct {
	Status    Status `json:"status"`
	Timestamp int64  `json:"timestamp"`
	Note      string `json:"note,omitempty"`
}

// Order is a shipment owned by one user. Timestamps are epoch milliseconds.
// The last history entry always carries the current status.
type Order struct {
	ID             string         `json:"id"`
	UserID         string         `json:"userId"`
	TrackingNumber string         `json:"trackingNumber"`
	Status         Status         `json:"status"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Weight         *float64       `json:"weight,omitempty"`
	From           string         `json:"from"`
	To             string         `json:"to"`
	CreatedAt      int64          `json:"createdAt"`
	UpdatedAt      int64          `json:"updatedAt"`
	StatusHistory  []HistoryEntry `json:"statusHistory"`
}

// CreateInput is the admin's new-order form. An empty Status means
// StatusInTransit; otherwise it is read like ParseStatus reads it.
type CreateInput struct {
	UserID         string   `json:"userId" validate:"required"`
	TrackingNumber string   `json:"trackingNumber" validate:"notblank"`
	Title          string   `json:"title" validate:"notblank"`
	Description    string   `json:"description"`
	Weight         *float64 `json:"weight" validate:"omitnil,gt=0"`
	From           string   `json:"from" validate:"notblank"`
	To             string   `json:"to" validate:"notblank"`
	Status         Status   `json:"status"`
}

// OwnedOrder pairs an order with its owner for the admin overview. Owner is
// nil when the user no longer resolves.
type OwnedOrder struct {
	Order
	Owner      *identity.User `json:"owner,omitempty"`
	OwnerLabel string         `json:"ownerLabel"`
}

// Overview is the admin order list: every order matching the search plus
// the total number of orders in the system.
type Overview struct {
	Total   int          `json:"total"`
	Matched int          `json:"matched"`
	Orders  []OwnedOrder `json:"orders"`
}

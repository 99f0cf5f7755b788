package order

import (
	"strings"

	"github.com/cargo-track/cargo_track/internal/validation"
)

// Status is the shipment state of an order. Statuses are unordered tags:
// any status may follow any other.
type Status string

const (
	StatusInTransit Status = "in-transit"
	StatusWarehouse Status = "warehouse"
	StatusDelivered Status = "delivered"
)

// MsgUnknownStatus is returned for statuses outside the known set.
const MsgUnknownStatus = "Unknown order status"

var labels = map[Status]string{
	StatusInTransit: "In transit",
	StatusWarehouse: "In warehouse",
	StatusDelivered: "Delivered",
}

// Statuses lists the known statuses in display order.
func Statuses() []Status {
	return []Status{StatusInTransit, StatusWarehouse, StatusDelivered}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := labels[s]
	return ok
}

// StatusLabel returns the human label of a status, or the raw value when it
// is unknown.
func StatusLabel(s Status) string {
	if l, ok := labels[s]; ok {
		return l
	}
	return string(s)
}

// ParseStatus accepts a status in any case and with surrounding spaces.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", validation.New("status", MsgUnknownStatus)
	}
	return s, nil
}

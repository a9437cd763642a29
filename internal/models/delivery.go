package models

import "time"

// Outcome of relaying one command to customer.io.
const (
	DeliveryStatusSent     = "SENT"
	DeliveryStatusFailed   = "FAILED"
	DeliveryStatusRejected = "REJECTED"
)

// Operations accepted by the relay.
const (
	OpIdentify = "identify"
	OpDelete   = "delete"
	OpTrack    = "track"
)

type Delivery struct {
	ID          uint64
	CommandID   string
	Op          string
	CustomerID  string
	Status      string
	StatusCode  *int32
	Error       *string
	RequestedAt time.Time
	DeliveredAt time.Time
	CreatedAt   time.Time
}

type DeliveryInput struct {
	CommandID   string
	Op          string
	CustomerID  string
	Status      string
	StatusCode  *int32
	Error       *string
	RequestedAt time.Time
	DeliveredAt time.Time
}

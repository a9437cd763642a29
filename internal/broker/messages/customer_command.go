package messages

import "time"

// CustomerCommand asks the relay to perform one customer.io call.
type CustomerCommand struct {
	ID         string `json:"id"`
	Op         string `json:"op"`
	CustomerID string `json:"customer_id"`

	Email      string         `json:"email,omitempty"`
	Attributes map[string]any `json:"attributes,omitempty"`

	// event_data is always written: {} is a valid track payload, null is not.
	EventName string         `json:"event_name,omitempty"`
	EventData map[string]any `json:"event_data"`

	RequestedAt time.Time `json:"requested_at"`
}

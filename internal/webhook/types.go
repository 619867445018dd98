package webhook

import (
	"time"
)

const (
	EventConnectionUpdate = "connection.update"
	EventQRCodeUpdated    = "qrcode.updated"
	EventMessagesUpsert   = "messages.upsert"
	EventContactsUpsert   = "contacts.upsert"
	EventSyncCompleted    = "sync.completed"
	EventTest             = "webhook.test"
)

type DeliveryStatus string

const (
	DeliverySuccess DeliveryStatus = "success"
	DeliveryFailed  DeliveryStatus = "failed"
	DeliveryDropped DeliveryStatus = "dropped"
)

// Event is the JSON document posted to subscribers.
type Event struct {
	ID        string                 `json:"id"`
	Event     string                 `json:"event"`
	Instance  string                 `json:"instance"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Result describes one delivery to one target URL.
type Result struct {
	URL      string         `json:"url"`
	Status   DeliveryStatus `json:"status"`
	Attempts int            `json:"attempts"`
	Error    string         `json:"error,omitempty"`
}

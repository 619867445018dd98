package database

import (
	"encoding/json"
	"time"

	"github.com/lib/pq"
)

const (
	RoleUser       = "user"
	RoleSuperAdmin = "super_admin"
)

type Instance struct {
	Name           string    `db:"name" json:"name"`
	Status         string    `db:"status" json:"status"`
	JID            string    `db:"jid" json:"jid,omitempty"`
	PushName       string    `db:"push_name" json:"push_name,omitempty"`
	Avatar         string    `db:"avatar" json:"avatar,omitempty"`
	WebhookURL     string    `db:"webhook_url" json:"webhook_url,omitempty"`
	WebhookEnabled bool      `db:"webhook_enabled" json:"webhook_enabled"`
	CreatedBy      *int64    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time `db:"updated_at" json:"updated_at"`
}

type Contact struct {
	Instance  string    `db:"instance" json:"instance"`
	JID       string    `db:"jid" json:"jid"`
	Name      string    `db:"name" json:"name,omitempty"`
	PushName  string    `db:"push_name" json:"push_name,omitempty"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type Group struct {
	Instance     string    `db:"instance" json:"instance"`
	JID          string    `db:"jid" json:"jid"`
	Subject      string    `db:"subject" json:"subject"`
	Participants int       `db:"participants" json:"participants"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// Message is an append-only log entry. Payload holds the JSON document as text in
// the row and is exposed raw in API responses.
type Message struct {
	ID         int64           `db:"id" json:"id"`
	Instance   string          `db:"instance" json:"instance"`
	MessageID  string          `db:"message_id" json:"message_id"`
	RemoteJID  string          `db:"remote_jid" json:"remote_jid"`
	FromMe     bool            `db:"from_me" json:"from_me"`
	Kind       string          `db:"kind" json:"kind"`
	RawPayload string          `db:"payload" json:"-"`
	Payload    json.RawMessage `db:"-" json:"payload,omitempty"`
	SentAt     time.Time       `db:"sent_at" json:"sent_at"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

type APIKey struct {
	ID               int64          `db:"id" json:"id"`
	KeyHash          string         `db:"key_hash" json:"-"`
	KeyPrefix        string         `db:"key_prefix" json:"key_prefix"`
	Name             string         `db:"name" json:"name"`
	Role             string         `db:"role" json:"role"`
	Active           bool           `db:"active" json:"active"`
	AllowedInstances pq.StringArray `db:"allowed_instances" json:"allowed_instances"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	ExpiresAt        *time.Time     `db:"expires_at" json:"expires_at,omitempty"`
	LastUsedAt       *time.Time     `db:"last_used_at" json:"last_used_at,omitempty"`
	TotalRequests    int64          `db:"total_requests" json:"total_requests"`
}

func (k *APIKey) IsSuperAdmin() bool {
	return k.Role == RoleSuperAdmin
}

// Expired reports whether the key has an expiry at or before now.
func (k *APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// CanAccess reports whether the key may act on the named instance.
func (k *APIKey) CanAccess(instance string) bool {
	if k.IsSuperAdmin() {
		return true
	}
	for _, allowed := range k.AllowedInstances {
		if allowed == instance {
			return true
		}
	}
	return false
}

type Stats struct {
	Instance string `db:"-" json:"instance,omitempty"`
	Contacts int64  `db:"contacts" json:"contacts"`
	Groups   int64  `db:"group_count" json:"groups"`
	Messages int64  `db:"messages" json:"messages"`
}

type GlobalStats struct {
	Instances          int64 `db:"instances" json:"instances"`
	ConnectedInstances int64 `db:"connected_instances" json:"connected_instances"`
	APIKeys            int64 `db:"api_keys" json:"api_keys"`
	ActiveAPIKeys      int64 `db:"active_api_keys" json:"active_api_keys"`
	Contacts           int64 `db:"contacts" json:"contacts"`
	Groups             int64 `db:"group_count" json:"groups"`
	Messages           int64 `db:"messages" json:"messages"`
}

type WebhookDelivery struct {
	ID        int64     `db:"id" json:"id"`
	Instance  string    `db:"instance" json:"instance"`
	EventID   string    `db:"event_id" json:"event_id"`
	EventType string    `db:"event_type" json:"event_type"`
	URL       string    `db:"url" json:"url"`
	Status    string    `db:"status" json:"status"`
	Attempts  int       `db:"attempts" json:"attempts"`
	LastError string    `db:"last_error" json:"last_error,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

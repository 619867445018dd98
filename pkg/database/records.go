package database

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

func (db *DB) UpsertContact(ctx context.Context, c Contact) error {
	_, err := db.x.ExecContext(ctx, `
		INSERT INTO gw_contacts (instance, jid, name, push_name, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (instance, jid) DO UPDATE SET
			name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE gw_contacts.name END,
			push_name = CASE WHEN EXCLUDED.push_name <> '' THEN EXCLUDED.push_name ELSE gw_contacts.push_name END,
			updated_at = NOW()
	`, c.Instance, c.JID, c.Name, c.PushName)
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	return nil
}

func (db *DB) UpsertGroup(ctx context.Context, g Group) error {
	_, err := db.x.ExecContext(ctx, `
		INSERT INTO gw_groups (instance, jid, subject, participants, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (instance, jid) DO UPDATE SET
			subject = CASE WHEN EXCLUDED.subject <> '' THEN EXCLUDED.subject ELSE gw_groups.subject END,
			participants = CASE WHEN EXCLUDED.participants > 0 THEN EXCLUDED.participants ELSE gw_groups.participants END,
			updated_at = NOW()
	`, g.Instance, g.JID, g.Subject, g.Participants)
	if err != nil {
		return fmt.Errorf("upsert group: %w", err)
	}
	return nil
}

// InsertMessage appends a message record. A repeated (instance, message_id) is
// ignored so rows are never rewritten.
func (db *DB) InsertMessage(ctx context.Context, m Message) error {
	payload := m.RawPayload
	if payload == "" && len(m.Payload) > 0 {
		payload = string(m.Payload)
	}
	if payload == "" {
		payload = "{}"
	}
	sentAt := m.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now()
	}
	_, err := db.x.ExecContext(ctx, `
		INSERT INTO gw_messages (instance, message_id, remote_jid, from_me, kind, payload, sent_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
		ON CONFLICT (instance, message_id) DO NOTHING
	`, m.Instance, m.MessageID, m.RemoteJID, m.FromMe, m.Kind, payload, sentAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (db *DB) ListContacts(ctx context.Context, instance string) ([]Contact, error) {
	contacts := []Contact{}
	err := db.x.SelectContext(ctx, &contacts, `
		SELECT instance, jid, name, push_name, updated_at
		FROM gw_contacts WHERE instance = $1 ORDER BY COALESCE(NULLIF(name, ''), push_name, jid)
	`, instance)
	return contacts, err
}

func (db *DB) ListGroups(ctx context.Context, instance string) ([]Group, error) {
	groups := []Group{}
	err := db.x.SelectContext(ctx, &groups, `
		SELECT instance, jid, subject, participants, updated_at
		FROM gw_groups WHERE instance = $1 ORDER BY subject
	`, instance)
	return groups, err
}

// ListMessages returns the newest records first. An empty remoteJID lists every chat.
func (db *DB) ListMessages(ctx context.Context, instance, remoteJID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	messages := []Message{}
	err := db.x.SelectContext(ctx, &messages, `
		SELECT id, instance, message_id, remote_jid, from_me, kind, payload::text AS payload, sent_at, created_at
		FROM gw_messages
		WHERE instance = $1 AND ($2 = '' OR remote_jid = $2)
		ORDER BY sent_at DESC, id DESC
		LIMIT $3
	`, instance, remoteJID, limit)
	if err != nil {
		return nil, err
	}
	for i := range messages {
		if json.Valid([]byte(messages[i].RawPayload)) {
			messages[i].Payload = json.RawMessage(messages[i].RawPayload)
		}
	}
	return messages, nil
}

func (db *DB) Stats(ctx context.Context, instance string) (*Stats, error) {
	var stats Stats
	err := db.x.GetContext(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM gw_contacts WHERE instance = $1) AS contacts,
			(SELECT COUNT(*) FROM gw_groups WHERE instance = $1) AS group_count,
			(SELECT COUNT(*) FROM gw_messages WHERE instance = $1) AS messages
	`, instance)
	if err != nil {
		return nil, err
	}
	stats.Instance = instance
	return &stats, nil
}

func (db *DB) GlobalStats(ctx context.Context) (*GlobalStats, error) {
	var stats GlobalStats
	err := db.x.GetContext(ctx, &stats, `
		SELECT
			(SELECT COUNT(*) FROM gw_instances) AS instances,
			(SELECT COUNT(*) FROM gw_instances WHERE status = 'connected') AS connected_instances,
			(SELECT COUNT(*) FROM gw_api_keys) AS api_keys,
			(SELECT COUNT(*) FROM gw_api_keys WHERE active) AS active_api_keys,
			(SELECT COUNT(*) FROM gw_contacts) AS contacts,
			(SELECT COUNT(*) FROM gw_groups) AS group_count,
			(SELECT COUNT(*) FROM gw_messages) AS messages
	`)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

func (db *DB) LogWebhookDelivery(ctx context.Context, d WebhookDelivery) error {
	_, err := db.x.ExecContext(ctx, `
		INSERT INTO gw_webhook_deliveries (instance, event_id, event_type, url, status, attempts, last_error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.Instance, d.EventID, d.EventType, d.URL, d.Status, d.Attempts, d.LastError)
	return err
}

func (db *DB) ListWebhookDeliveries(ctx context.Context, instance string, limit int) ([]WebhookDelivery, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	deliveries := []WebhookDelivery{}
	err := db.x.SelectContext(ctx, &deliveries, `
		SELECT id, instance, event_id, event_type, url, status, attempts, last_error, created_at
		FROM gw_webhook_deliveries WHERE instance = $1
		ORDER BY created_at DESC LIMIT $2
	`, instance, limit)
	return deliveries, err
}

package database

import (
	"context"
	"time"
)

// Recorder routes fire-and-forget writes through the write-behind queue and
// exposes synchronous upserts for callers that track per-row outcomes.
type Recorder struct {
	db    *DB
	queue *WriteBehind
}

func NewRecorder(db *DB, queue *WriteBehind) *Recorder {
	return &Recorder{db: db, queue: queue}
}

func (r *Recorder) Queue() *WriteBehind {
	return r.queue
}

func (r *Recorder) RecordStatus(instance, status, jid, pushName string) {
	r.queue.Enqueue(Job{
		Name:     "instance.status",
		Instance: instance,
		Run: func(ctx context.Context) error {
			return r.db.UpdateInstanceStatus(ctx, instance, status, jid, pushName)
		},
	})
}

func (r *Recorder) RecordAvatar(instance, avatar string) {
	r.queue.Enqueue(Job{
		Name:     "instance.avatar",
		Instance: instance,
		Run: func(ctx context.Context) error {
			return r.db.UpdateInstanceAvatar(ctx, instance, avatar)
		},
	})
}

func (r *Recorder) RecordContact(instance, jid, name, pushName string) {
	r.queue.Enqueue(Job{
		Name:     "contact.upsert",
		Instance: instance,
		Run: func(ctx context.Context) error {
			return r.db.UpsertContact(ctx, Contact{Instance: instance, JID: jid, Name: name, PushName: pushName})
		},
	})
}

func (r *Recorder) RecordGroup(instance, jid, subject string, participants int) {
	r.queue.Enqueue(Job{
		Name:     "group.upsert",
		Instance: instance,
		Run: func(ctx context.Context) error {
			return r.db.UpsertGroup(ctx, Group{Instance: instance, JID: jid, Subject: subject, Participants: participants})
		},
	})
}

func (r *Recorder) RecordMessage(instance, messageID, remoteJID string, fromMe bool, kind string, payload []byte, sentAt time.Time) {
	r.queue.Enqueue(Job{
		Name:     "message.insert",
		Instance: instance,
		Run: func(ctx context.Context) error {
			return r.db.InsertMessage(ctx, Message{
				Instance:   instance,
				MessageID:  messageID,
				RemoteJID:  remoteJID,
				FromMe:     fromMe,
				Kind:       kind,
				RawPayload: string(payload),
				SentAt:     sentAt,
			})
		},
	})
}

func (r *Recorder) TouchAPIKey(id int64) {
	r.queue.Enqueue(Job{
		Name: "api_key.touch",
		Run: func(ctx context.Context) error {
			return r.db.TouchAPIKey(ctx, id)
		},
	})
}

func (r *Recorder) RecordWebhookDelivery(d WebhookDelivery) {
	r.queue.Enqueue(Job{
		Name:     "webhook.delivery",
		Instance: d.Instance,
		Run: func(ctx context.Context) error {
			return r.db.LogWebhookDelivery(ctx, d)
		},
	})
}

func (r *Recorder) UpsertContact(ctx context.Context, instance, jid, name, pushName string) error {
	return r.db.UpsertContact(ctx, Contact{Instance: instance, JID: jid, Name: name, PushName: pushName})
}

func (r *Recorder) UpsertGroup(ctx context.Context, instance, jid, subject string, participants int) error {
	return r.db.UpsertGroup(ctx, Group{Instance: instance, JID: jid, Subject: subject, Participants: participants})
}

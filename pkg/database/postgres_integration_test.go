package database

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"
)

func integrationDB(t *testing.T) *DB {
	t.Helper()
	dsn := strings.TrimSpace(os.Getenv("GW_TEST_DATABASE_URI"))
	if dsn == "" {
		t.Skip("set GW_TEST_DATABASE_URI to run Postgres integration tests")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := Open(ctx, Config{DSN: NormalizeDSN(dsn), MaxOpenConns: 4, MaxIdleConns: 2})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestPostgresInstanceLifecycle(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()
	name := fmt.Sprintf("it-%d", time.Now().UnixNano())

	if _, err := db.UpsertInstance(ctx, name, nil); err != nil {
		t.Fatal(err)
	}
	if err := db.UpdateInstanceStatus(ctx, name, "connected", "5511999999999@s.whatsapp.net", "Acme"); err != nil {
		t.Fatal(err)
	}
	// empty jid keeps the stored one
	if err := db.UpdateInstanceStatus(ctx, name, "disconnected", "", ""); err != nil {
		t.Fatal(err)
	}
	inst, err := db.GetInstance(ctx, name)
	if err != nil {
		t.Fatal(err)
	}
	if inst.Status != "disconnected" || inst.JID != "5511999999999@s.whatsapp.net" || inst.PushName != "Acme" {
		t.Fatalf("unexpected instance %+v", inst)
	}

	// logging out forgets the account
	if err := db.UpdateInstanceStatus(ctx, name, "logged_out", "", ""); err != nil {
		t.Fatal(err)
	}
	if inst, err = db.GetInstance(ctx, name); err != nil {
		t.Fatal(err)
	}
	if inst.Status != "logged_out" || inst.JID != "" || inst.PushName != "" {
		t.Fatalf("logged out instance kept its account %+v", inst)
	}

	if err := db.UpsertContact(ctx, Contact{Instance: name, JID: "1@s.whatsapp.net", Name: "One"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertContact(ctx, Contact{Instance: name, JID: "1@s.whatsapp.net", PushName: "Uno"}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertGroup(ctx, Group{Instance: name, JID: "123-456@g.us", Subject: "Team", Participants: 3}); err != nil {
		t.Fatal(err)
	}
	msg := Message{Instance: name, MessageID: "ABC", RemoteJID: "1@s.whatsapp.net", FromMe: true, Kind: "text", RawPayload: `{"text":"hi"}`}
	if err := db.InsertMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}
	msg.RawPayload = `{"text":"changed"}`
	if err := db.InsertMessage(ctx, msg); err != nil {
		t.Fatal(err)
	}

	contacts, err := db.ListContacts(ctx, name)
	if err != nil || len(contacts) != 1 || contacts[0].Name != "One" || contacts[0].PushName != "Uno" {
		t.Fatalf("contacts = %+v, %v", contacts, err)
	}
	messages, err := db.ListMessages(ctx, name, "", 10)
	if err != nil || len(messages) != 1 || string(messages[0].Payload) != `{"text": "hi"}` && string(messages[0].Payload) != `{"text":"hi"}` {
		t.Fatalf("messages = %+v, %v", messages, err)
	}
	stats, err := db.Stats(ctx, name)
	if err != nil || stats.Contacts != 1 || stats.Groups != 1 || stats.Messages != 1 {
		t.Fatalf("stats = %+v, %v", stats, err)
	}

	if err := db.DeleteInstance(ctx, name); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetInstance(ctx, name); !errors.Is(err, ErrNotFound) {
		t.Fatalf("instance still present: %v", err)
	}
	if stats, _ := db.Stats(ctx, name); stats.Contacts+stats.Groups+stats.Messages != 0 {
		t.Fatalf("cascade left rows behind: %+v", stats)
	}
}

func TestPostgresAPIKeys(t *testing.T) {
	db := integrationDB(t)
	ctx := context.Background()

	key, plain, err := db.CreateAPIKey(ctx, NewAPIKey{Name: "it", AllowedInstances: []string{"A"}})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _, _ = db.DeleteAPIKey(ctx, key.ID) })

	found, err := db.FindAPIKeyByHash(ctx, HashKey(plain))
	if err != nil || found.ID != key.ID || !found.CanAccess("A") || found.CanAccess("B") {
		t.Fatalf("lookup = %+v, %v", found, err)
	}

	inactive := false
	updated, err := db.UpdateAPIKey(ctx, key.ID, APIKeyUpdate{Active: &inactive, SetAllowed: true, AllowedInstances: []string{"A", "B"}})
	if err != nil || updated.Active || len(updated.AllowedInstances) != 2 {
		t.Fatalf("update = %+v, %v", updated, err)
	}

	if err := db.TouchAPIKey(ctx, key.ID); err != nil {
		t.Fatal(err)
	}
	touched, _ := db.GetAPIKey(ctx, key.ID)
	if touched.TotalRequests != 1 || touched.LastUsedAt == nil {
		t.Fatalf("touch not recorded: %+v", touched)
	}
}

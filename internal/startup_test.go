package internal

import (
	"context"
	"testing"
	"time"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/database"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/whatsapp"
)

func TestStartupSkipsLoggedOutInstances(t *testing.T) {
	store := newMemStore()
	store.instances["acme"] = &database.Instance{Name: "acme", Status: "connected", JID: "5511999999999@s.whatsapp.net"}
	store.instances["gone"] = &database.Instance{Name: "gone", Status: "logged_out", JID: "5511888888888@s.whatsapp.net"}

	dialer := &offlineDialer{}
	manager := pkgWhatsApp.NewManager(pkgWhatsApp.Config{}, pkgWhatsApp.Dependencies{Dialer: dialer})
	t.Cleanup(func() { manager.Shutdown(context.Background()) })

	Startup(context.Background(), store, manager)

	for _, name := range []string{"acme", "gone", "other"} {
		if _, err := manager.Status(name); err != nil {
			t.Fatalf("%s not registered: %v", name, err)
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for !dialer.tried("acme") {
		if time.Now().After(deadline) {
			t.Fatal("paired instance was not reconnected")
		}
		time.Sleep(5 * time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)
	if dialer.tried("gone") {
		t.Fatal("logged out instance was dialed")
	}
	if dialer.tried("other") {
		t.Fatal("never paired instance was dialed")
	}
}

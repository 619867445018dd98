package internal

import (
	"context"
	"time"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/database"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/whatsapp"
)

type InstanceLister interface {
	ListInstances(ctx context.Context, allowed []string) ([]database.Instance, error)
}

// Startup registers every stored instance and reconnects the paired ones.
// Logged out instances are registered but left for a new pairing.
func Startup(ctx context.Context, instances InstanceLister, manager *pkgWhatsApp.Manager) {
	log.Print(nil).Info("Running Startup Tasks")

	stored, err := instances.ListInstances(ctx, nil)
	if err != nil {
		log.SysErr("startup", err)
		return
	}

	targets := make([]pkgWhatsApp.RestoreTarget, 0, len(stored))
	for _, inst := range stored {
		jid := inst.JID
		// a logged out instance has to pair again
		if inst.Status == string(pkgWhatsApp.StateLoggedOut) {
			jid = ""
		}
		targets = append(targets, pkgWhatsApp.RestoreTarget{Instance: inst.Name, JID: jid})
	}

	begin := time.Now()
	reconnected, err := manager.Restore(ctx, targets)
	if err != nil {
		log.SysErr("startup", err)
	}
	log.Print(nil).
		WithField("instances", len(targets)).
		WithField("reconnected", reconnected).
		WithField("took", time.Since(begin).Truncate(time.Millisecond).String()).
		Info("Startup restore pass complete")
}

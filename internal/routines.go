package internal

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/database"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/env"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/whatsapp"
)

type QueueStatser interface {
	Stats() database.QueueStats
}

// Background holds what the periodic jobs inspect.
type Background struct {
	Manager  *pkgWhatsApp.Manager
	Versions *pkgWhatsApp.VersionRefresher
	Queue    QueueStatser
}

// Routines schedules the periodic jobs on a seconds-enabled cron and starts it.
func Routines(c *cron.Cron, bg Background) {
	log.Print(nil).Info("Running Routine Tasks")

	if env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_HEALTH_CHECK_CRON", true) {
		spec := env.GetEnvStringOrDefault("WHATSAPP_HEALTH_CHECK_CRON_SPEC", "0 */5 * * * *")
		if _, err := c.AddFunc(spec, func() { healthCheck(bg.Manager) }); err != nil {
			log.Print(nil).WithError(err).Error("Failed to add health check cron job")
		}
	} else {
		log.Print(nil).Info("Health check cron disabled; relying on connection events")
	}

	if env.GetEnvBoolOrDefault("PERSIST_STATS_CRON", true) {
		if _, err := c.AddFunc("30 * * * * *", func() { persistenceReport(bg.Queue) }); err != nil {
			log.Print(nil).WithError(err).Error("Failed to add persistence report cron job")
		}
	}

	if env.GetEnvBoolOrDefault("WHATSAPP_ENABLE_WAVERSION_REFRESH_CRON", false) {
		// six fields, seconds first. Default: daily at 03:00:00.
		spec := strings.TrimSpace(env.GetEnvStringOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_SPEC", "0 0 3 * * *"))
		force := env.GetEnvBoolOrDefault("WHATSAPP_WAVERSION_REFRESH_CRON_FORCE", false)
		_, err := c.AddFunc(spec, func() { refreshVersion(bg.Versions, force) })
		if err != nil {
			log.Print(nil).WithError(err).Error("Failed to add WA Web version refresh cron job")
		} else {
			log.Print(nil).WithField("spec", spec).WithField("force", force).Info("WA Web version refresh cron enabled")
		}
	}

	c.Start()
}

func healthCheck(manager *pkgWhatsApp.Manager) {
	report := manager.CheckHealth()
	if report.Instances == 0 {
		return
	}
	entry := log.Print(nil).WithFields(logrus.Fields{
		"instances":    report.Instances,
		"connected":    report.Connected,
		"disconnected": report.Disconnected,
		"logged_out":   report.LoggedOut,
	})
	if len(report.Stale) > 0 {
		entry.WithField("stale", report.Stale).Warn("Sessions reported connected over a closed socket")
	}
	if len(report.GaveUp) > 0 {
		entry.WithField("gave_up", report.GaveUp).Error("Sessions out of reconnect attempts, restart required")
		return
	}
	entry.Info("Session health check complete")
}

func persistenceReport(queue QueueStatser) {
	st := queue.Stats()
	entry := log.Print(nil).WithFields(logrus.Fields{
		"pending":  st.Pending,
		"written":  st.Written,
		"failed":   st.Failed,
		"dropped":  st.Dropped,
		"capacity": st.Capacity,
	})
	if st.Divergent() {
		entry.WithField("last_error", st.LastError).Warn("Durable store lags the live mirror")
		return
	}
	entry.Debug("Persistence queue healthy")
}

func refreshVersion(versions *pkgWhatsApp.VersionRefresher, force bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	status, refreshed, err := versions.Refresh(ctx, force)
	v := status.CurrentVersion
	version := fmt.Sprintf("%d.%d.%d", v[0], v[1], v[2])
	if err != nil {
		log.Print(nil).WithField("version", version).WithField("force", force).Error("WA Web version refresh failed: " + err.Error())
		return
	}
	log.Print(nil).WithField("version", version).WithField("refreshed", refreshed).WithField("force", force).Info("WA Web version refresh completed")
}

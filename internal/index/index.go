package index

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/database"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/whatsapp"
)

const pingTimeout = 3 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type QueueStatser interface {
	Stats() database.QueueStats
}

type Controller struct {
	Manager *pkgWhatsApp.Manager
	DB      Pinger
	Queue   QueueStatser
	Started time.Time
}

// Index
// @Summary     Show The Status of The Server
// @Description Get The Server Status
// @Tags        Root
// @Produce     json
// @Success     200
// @Router      / [get]
func Index(c *fiber.Ctx) error {
	return router.ResponseSuccess(c, "Go WhatsApp Gateway REST is running")
}

type health struct {
	Status   string              `json:"status"`
	Uptime   string              `json:"uptime"`
	Database string              `json:"database"`
	Sessions pkgWhatsApp.Stats   `json:"sessions"`
	Queue    database.QueueStats `json:"queue"`
}

// Health
// @Summary     Health Check
// @Description Database reachability, session counters and write-behind queue state
// @Tags        Root
// @Produce     json
// @Success     200 {object} router.Response
// @Failure     503 {object} router.Response
// @Router      /health [get]
func (ctl *Controller) Health(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), pingTimeout)
	defer cancel()

	h := health{
		Status:   "ok",
		Uptime:   time.Since(ctl.Started).Truncate(time.Second).String(),
		Database: "up",
		Sessions: ctl.Manager.Stats(),
		Queue:    ctl.Queue.Stats(),
	}
	if err := ctl.DB.Ping(ctx); err != nil {
		h.Status, h.Database = "degraded", "down"
		return c.Status(fiber.StatusServiceUnavailable).JSON(router.Response{
			Status:  false,
			Code:    fiber.StatusServiceUnavailable,
			Message: "Database unreachable",
			Data:    h,
		})
	}
	if h.Queue.Divergent() {
		h.Status = "degraded"
	}
	return router.ResponseSuccessWithData(c, "Healthy", h)
}

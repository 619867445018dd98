package webhooks

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/types"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/webhook"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/database"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/router"
)

const testTimeout = 60 * time.Second

type DeliveryStore interface {
	ListWebhookDeliveries(ctx context.Context, instance string, limit int) ([]database.WebhookDelivery, error)
}

// Sender delivers one event synchronously.
type Sender interface {
	Enabled() bool
	Send(ctx context.Context, instance, event string, data map[string]interface{}) ([]webhook.Result, error)
}

type Controller struct {
	Deliveries DeliveryStore
	Engine     Sender
}

// ListDeliveries
// @Summary     Webhook Deliveries
// @Description Latest delivery attempts of the instance, newest first
// @Tags        Webhooks
// @Produce     json
// @Security    ApiKeyAuth
// @Param       instance path  string true  "Instance name"
// @Param       limit    query int    false "At most 500, default 50"
// @Success     200 {object} router.Response
// @Router      /v1/webhooks/{instance}/deliveries [get]
func (ctl *Controller) ListDeliveries(c *fiber.Ctx) error {
	instance := c.Params("instance")
	deliveries, err := ctl.Deliveries.ListWebhookDeliveries(c.UserContext(), instance, c.QueryInt("limit", 50))
	if err != nil {
		return types.ResponseError(c, err, "Failed to list webhook deliveries")
	}
	return router.ResponseSuccessWithData(c, "Success", fiber.Map{
		"instance":   instance,
		"deliveries": deliveries,
	})
}

// TestWebhook
// @Summary     Test Webhook
// @Description Sends a webhook.test event to every target of the instance and waits for the results
// @Tags        Webhooks
// @Produce     json
// @Security    ApiKeyAuth
// @Param       instance path string true "Instance name"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Failure     502 {object} router.Response
// @Router      /v1/webhooks/{instance}/test [post]
func (ctl *Controller) TestWebhook(c *fiber.Ctx) error {
	instance := c.Params("instance")
	if !ctl.Engine.Enabled() {
		return router.ResponseBadRequest(c, "Webhooks are disabled")
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), testTimeout)
	defer cancel()

	results, err := ctl.Engine.Send(ctx, instance, webhook.EventTest, map[string]interface{}{
		"message": "webhook test",
	})
	switch {
	case errors.Is(err, webhook.ErrEngineClosed):
		return router.ResponseServiceUnavailable(c, err.Error())
	case err != nil:
		return types.ResponseError(c, err, "Failed to send test webhook")
	}
	if len(results) == 0 {
		return router.ResponseBadRequest(c, "No webhook URL configured for "+instance)
	}

	for _, res := range results {
		if res.Status != webhook.DeliverySuccess {
			log.Instance(instance).WithField("url", res.URL).Warn("test webhook failed")
			return router.ResponseBadGateway(c, "Webhook delivery failed: "+res.Error)
		}
	}
	return router.ResponseSuccessWithData(c, "Webhook delivered", results)
}

package records

import (
	"context"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/types"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/database"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/whatsapp"
)

// Store is the durable side of the mirror.
type Store interface {
	ListContacts(ctx context.Context, instance string) ([]database.Contact, error)
	ListGroups(ctx context.Context, instance string) ([]database.Group, error)
	ListMessages(ctx context.Context, instance, remoteJID string, limit int) ([]database.Message, error)
	Stats(ctx context.Context, instance string) (*database.Stats, error)
}

type Controller struct {
	Store Store
}

// @Summary     Stored Contacts
// @Tags        Database
// @Produce     json
// @Security    ApiKeyAuth
// @Param       instance path string true "Instance name"
// @Success     200 {object} router.Response
// @Router      /v1/db/contacts/{instance} [get]
func (ctl *Controller) Contacts(c *fiber.Ctx) error {
	contacts, err := ctl.Store.ListContacts(c.UserContext(), c.Params("instance"))
	if err != nil {
		return types.ResponseError(c, err, "Failed to read contacts")
	}
	return router.ResponseSuccessWithData(c, "Success", contacts)
}

// @Summary     Stored Groups
// @Tags        Database
// @Produce     json
// @Security    ApiKeyAuth
// @Param       instance path string true "Instance name"
// @Success     200 {object} router.Response
// @Router      /v1/db/groups/{instance} [get]
func (ctl *Controller) Groups(c *fiber.Ctx) error {
	groups, err := ctl.Store.ListGroups(c.UserContext(), c.Params("instance"))
	if err != nil {
		return types.ResponseError(c, err, "Failed to read groups")
	}
	return router.ResponseSuccessWithData(c, "Success", groups)
}

// @Summary     Stored Messages
// @Description Newest first. Filter one chat with jid.
// @Tags        Database
// @Produce     json
// @Security    ApiKeyAuth
// @Param       instance path  string true  "Instance name"
// @Param       jid      query string false "Chat JID or phone number"
// @Param       limit    query int    false "At most 1000, default 100"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Router      /v1/db/messages/{instance} [get]
func (ctl *Controller) Messages(c *fiber.Ctx) error {
	jid := c.Query("jid")
	if jid != "" {
		normalized, err := pkgWhatsApp.NormalizeAddress(jid)
		if err != nil {
			return router.ResponseBadRequest(c, err.Error())
		}
		jid = normalized
	}
	limit := c.QueryInt("limit", 100)

	messages, err := ctl.Store.ListMessages(c.UserContext(), c.Params("instance"), jid, limit)
	if err != nil {
		return types.ResponseError(c, err, "Failed to read messages")
	}
	return router.ResponseSuccessWithData(c, "Success", messages)
}

// @Summary     Stored Counters
// @Tags        Database
// @Produce     json
// @Security    ApiKeyAuth
// @Param       instance path string true "Instance name"
// @Success     200 {object} router.Response
// @Router      /v1/db/stats/{instance} [get]
func (ctl *Controller) Stats(c *fiber.Ctx) error {
	stats, err := ctl.Store.Stats(c.UserContext(), c.Params("instance"))
	if err != nil {
		return types.ResponseError(c, err, "Failed to read stats")
	}
	return router.ResponseSuccessWithData(c, "Success", stats)
}

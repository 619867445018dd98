package chats

import (
	"net/url"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/types"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/whatsapp"
)

// Controller serves reads from the in-memory mirror of live sessions.
type Controller struct {
	Manager *pkgWhatsApp.Manager
}

// @Summary     Contacts
// @Description Contacts of the instance merged with its groups
// @Tags        Mirror
// @Produce     json
// @Security    ApiKeyAuth
// @Param       instance path string true "Instance name"
// @Success     200 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /v1/contacts/{instance} [get]
func (ctl *Controller) Contacts(c *fiber.Ctx) error {
	contacts, err := ctl.Manager.Contacts(c.Params("instance"))
	if err != nil {
		return types.ResponseError(c, err, "Failed to get contacts")
	}
	return router.ResponseSuccessWithData(c, "Success", contacts)
}

// @Summary     Groups
// @Description Groups from the mirror, fetched live when the mirror has none
// @Tags        Mirror
// @Produce     json
// @Security    ApiKeyAuth
// @Param       instance path string true "Instance name"
// @Success     200 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /v1/groups/{instance} [get]
func (ctl *Controller) Groups(c *fiber.Ctx) error {
	groups, err := ctl.Manager.Groups(c.UserContext(), c.Params("instance"))
	if err != nil {
		return types.ResponseError(c, err, "Failed to get groups")
	}
	return router.ResponseSuccessWithData(c, "Success", groups)
}

// @Summary     Messages
// @Description Messages of one chat sorted by timestamp
// @Tags        Mirror
// @Produce     json
// @Security    ApiKeyAuth
// @Param       instance path string true "Instance name"
// @Param       jid      path string true "Chat JID or phone number"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /v1/messages/{instance}/{jid} [get]
func (ctl *Controller) Messages(c *fiber.Ctx) error {
	jid, err := url.PathUnescape(c.Params("jid"))
	if err != nil {
		return router.ResponseBadRequest(c, "Invalid jid")
	}
	messages, err := ctl.Manager.Messages(c.Params("instance"), jid)
	if err != nil {
		return types.ResponseError(c, err, "Failed to get messages")
	}
	return router.ResponseSuccessWithData(c, "Success", messages)
}

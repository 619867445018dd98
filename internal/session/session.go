package session

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/types"
	pkgAuth "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/auth"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/database"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/router"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/validation"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/whatsapp"
)

// Store persists the instance row so the session is restored after a restart.
type Store interface {
	UpsertInstance(ctx context.Context, name string, createdBy *int64) (*database.Instance, error)
}

type Controller struct {
	Manager *pkgWhatsApp.Manager
	Store   Store
}

func parseInstance(c *fiber.Ctx) (string, error) {
	var req types.RequestInstance
	if err := c.BodyParser(&req); err != nil {
		return "", fmt.Errorf("invalid request body")
	}
	name := strings.TrimSpace(req.Instance)
	if err := validation.ValidateInstanceName(name); err != nil {
		return "", err
	}
	return name, nil
}

// Start
// @Summary     Start Session
// @Description Connects the instance and returns CONNECTED, a QR code to scan, or TIMEOUT. Use output=html for a scannable page.
// @Tags        Session
// @Accept      json
// @Produce     json,html
// @Security    ApiKeyAuth
// @Param       body   body  types.RequestInstance true  "Instance"
// @Param       output query string                false "json (default) or html"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Failure     403 {object} router.Response
// @Router      /session/start [post]
func (ctl *Controller) Start(c *fiber.Ctx) error {
	name, err := parseInstance(c)
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	var createdBy *int64
	if p := pkgAuth.PrincipalFrom(c); p != nil && !p.Global {
		id := p.KeyID
		createdBy = &id
	}
	if _, err := ctl.Store.UpsertInstance(c.UserContext(), name, createdBy); err != nil {
		log.Instance(name).WithError(err).Warn("could not persist instance row")
	}

	res, err := ctl.Manager.Start(c.UserContext(), name)
	if err != nil {
		return types.ResponseError(c, err, "Failed to start session")
	}

	if strings.EqualFold(c.Query("output"), "html") && res.QRCode != "" {
		return router.ResponseSuccessWithHTML(c, qrPage(name, res.QRCode))
	}
	return router.ResponseSuccessWithData(c, res.Status, res)
}

func qrPage(name, dataURL string) string {
	return `<html><head><title>WhatsApp Login</title></head><body>` +
		`<h3>Scan with WhatsApp to link ` + html.EscapeString(name) + `</h3>` +
		`<img src="` + dataURL + `" alt="QR Code"/></body></html>`
}

// PairCode
// @Summary     Request Pairing Code
// @Description Returns the 8 character code to type in WhatsApp > Linked devices > Link with phone number
// @Tags        Session
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       body body types.RequestPairCode true "Instance and phone"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Failure     409 {object} router.Response
// @Failure     503 {object} router.Response
// @Router      /session/pair-code [post]
func (ctl *Controller) PairCode(c *fiber.Ctx) error {
	var req types.RequestPairCode
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}
	name := strings.TrimSpace(req.Instance)
	if err := validation.ValidateInstanceName(name); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	phone := req.PhoneNumber()
	if err := validation.ValidatePhone(phone); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	if _, err := ctl.Store.UpsertInstance(c.UserContext(), name, nil); err != nil {
		log.Instance(name).WithError(err).Warn("could not persist instance row")
	}

	code, err := ctl.Manager.PairCode(c.UserContext(), name, phone)
	if err != nil {
		return types.ResponseError(c, err, "Failed to request pairing code")
	}
	return router.ResponseSuccessWithData(c, pkgWhatsApp.StartPairCode, fiber.Map{
		"instance": name,
		"code":     code,
	})
}

// Logout
// @Summary     Logout Session
// @Description Unlinks the device and deletes its credentials
// @Tags        Session
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       body body types.RequestInstance true "Instance"
// @Success     200 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /session/logout [post]
func (ctl *Controller) Logout(c *fiber.Ctx) error {
	name, err := parseInstance(c)
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if err := ctl.Manager.Logout(c.UserContext(), name); err != nil {
		return types.ResponseError(c, err, "Failed to logout")
	}
	return router.ResponseSuccess(c, "Logged out")
}

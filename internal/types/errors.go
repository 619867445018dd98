package types

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/database"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/whatsapp"
)

// ResponseError writes the envelope matching err. action prefixes messages of
// unexpected failures.
func ResponseError(c *fiber.Ctx, err error, action string) error {
	switch {
	case pkgWhatsApp.IsInputError(err):
		return router.ResponseBadRequest(c, err.Error())
	case errors.Is(err, pkgWhatsApp.ErrUnknownInstance), errors.Is(err, database.ErrNotFound):
		return router.ResponseNotFound(c, err.Error())
	case errors.Is(err, pkgWhatsApp.ErrNotConnected):
		return router.ResponseBadRequest(c, pkgWhatsApp.ErrNotConnected.Error())
	case errors.Is(err, pkgWhatsApp.ErrSyncInProgress), errors.Is(err, pkgWhatsApp.ErrAlreadyConnected):
		return router.ResponseConflict(c, err.Error())
	case errors.Is(err, pkgWhatsApp.ErrNotReady), errors.Is(err, pkgWhatsApp.ErrManagerClosed):
		return router.ResponseServiceUnavailable(c, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return router.ResponseBadGateway(c, action+": WhatsApp did not answer in time")
	}
	log.Print(c).WithError(err).Error(action)
	return router.ResponseInternalError(c, action+": "+err.Error())
}

package auth

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	typAuth "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/auth/types"
	pkgAuth "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/auth"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/router"
)

type Controller struct {
	Filter *pkgAuth.Filter
}

// Me
// @Summary     Describe The Caller
// @Description Returns the role and instance allow-list of the API key or token in use
// @Tags        Auth
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} typAuth.ResponseMe
// @Failure     401 {object} router.Response
// @Router      /v1/me [get]
func (ctl *Controller) Me(c *fiber.Ctx) error {
	p := pkgAuth.PrincipalFrom(c)
	if p == nil {
		return router.ResponseUnauthorized(c, "")
	}

	allowed := p.Allowed
	if allowed == nil {
		allowed = []string{}
	}
	return router.ResponseSuccessWithData(c, "Success", typAuth.ResponseMe{
		ID:               p.KeyID,
		Name:             p.Name,
		Role:             p.Role,
		AllowedInstances: allowed,
		Global:           p.Global,
		ViaToken:         p.Token,
	})
}

// Token
// @Summary     Exchange API Key For Token
// @Description Issues a short lived HS256 bearer token carrying the key's role and allow-list
// @Tags        Auth
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} typAuth.ResponseToken
// @Failure     400 {object} router.Response
// @Failure     401 {object} router.Response
// @Failure     501 {object} router.Response
// @Router      /v1/auth/token [post]
func (ctl *Controller) Token(c *fiber.Ctx) error {
	p := pkgAuth.PrincipalFrom(c)
	if p == nil {
		return router.ResponseUnauthorized(c, "")
	}
	if p.Token {
		return router.ResponseBadRequest(c, "Tokens are issued for API keys only")
	}

	token, expires, err := ctl.Filter.IssueToken(p)
	if errors.Is(err, pkgAuth.ErrTokensDisabled) {
		return c.Status(fiber.StatusNotImplemented).JSON(router.Response{
			Status:  false,
			Code:    fiber.StatusNotImplemented,
			Message: "Token exchange is disabled",
			Error:   err.Error(),
		})
	}
	if err != nil {
		log.Print(c).WithError(err).Error("token signing failed")
		return router.ResponseInternalError(c, "Could not issue token")
	}

	return router.ResponseSuccessWithData(c, "Token issued", typAuth.ResponseToken{
		Token:     token,
		TokenType: "Bearer",
		ExpiresAt: expires,
		ExpiresIn: int64(time.Until(expires).Seconds()),
	})
}

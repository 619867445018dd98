package auth

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/router"
)

// credential finds the caller's secret: the apikey or x-api-key header, the
// apikey query parameter, or an Authorization bearer value. The second result
// is true when the value looks like a JWT.
func credential(c *fiber.Ctx) (string, bool) {
	if v := strings.TrimSpace(c.Get("apikey")); v != "" {
		return v, false
	}
	if v := strings.TrimSpace(c.Get("X-API-Key")); v != "" {
		return v, false
	}
	if v := strings.TrimSpace(c.Query("apikey")); v != "" {
		return v, false
	}

	authHeader := c.Get(fiber.HeaderAuthorization)
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		v := strings.TrimSpace(parts[1])
		return v, strings.Count(v, ".") == 2
	}
	return "", false
}

// Authenticate rejects requests without a valid credential and stores the
// principal for the handlers.
func (f *Filter) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		secret, isToken := credential(c)
		if secret == "" {
			return router.ResponseUnauthorized(c, "Missing API key")
		}

		var (
			p   *Principal
			err error
		)
		if isToken {
			p, err = f.ParseToken(secret)
			if err != nil {
				return router.ResponseUnauthorized(c, "Invalid or expired token")
			}
		} else {
			p, err = f.Resolve(c.UserContext(), secret)
			switch {
			case errors.Is(err, ErrInvalidCredential), errors.Is(err, ErrMissingCredential):
				return router.ResponseUnauthorized(c, "Invalid API key")
			case errors.Is(err, ErrInactiveKey), errors.Is(err, ErrExpiredKey):
				return router.ResponseUnauthorized(c, err.Error())
			case err != nil:
				log.Print(c).WithError(err).Error("api key lookup failed")
				return router.ResponseInternalError(c, "Could not verify API key")
			}
		}

		if !f.allow(p) {
			return router.ResponseTooManyRequests(c, "Rate limit exceeded")
		}

		c.Locals(principalLocal, p)
		return c.Next()
	}
}

func (f *Filter) allow(p *Principal) bool {
	if f.cfg.RatePerMinute <= 0 {
		return true
	}
	key := p.limiterKey()
	if v, found := f.limiters.Get(key); found {
		return v.(*rate.Limiter).Allow()
	}
	limiter := rate.NewLimiter(rate.Limit(float64(f.cfg.RatePerMinute)/60), f.cfg.RatePerMinute)
	if err := f.limiters.Add(key, limiter, cache.DefaultExpiration); err != nil {
		// lost the race to another request
		if v, found := f.limiters.Get(key); found {
			limiter = v.(*rate.Limiter)
		}
	}
	return limiter.Allow()
}

// PrivilegedOnly admits super admin principals only.
func (f *Filter) PrivilegedOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := PrincipalFrom(c)
		if p == nil {
			return router.ResponseUnauthorized(c, "")
		}
		if !p.Privileged() {
			return router.ResponseForbidden(c, "This operation requires a super admin key")
		}
		return c.Next()
	}
}

// InstanceAccess checks the instance named by the route or the request body
// against the principal's allow-list. Standard principals must name one.
func (f *Filter) InstanceAccess() fiber.Handler {
	return func(c *fiber.Ctx) error {
		p := PrincipalFrom(c)
		if p == nil {
			return router.ResponseUnauthorized(c, "")
		}
		instance := RequestInstance(c)
		if instance == "" {
			if p.Privileged() {
				return c.Next()
			}
			return router.ResponseBadRequest(c, "instance is required")
		}
		if p.CanAccess(instance) {
			return c.Next()
		}
		log.Print(c).WithField("instance", instance).Warn("instance outside of key scope")
		return router.ResponseForbidden(c, "API key has no access to instance "+instance)
	}
}

// RequestInstance reads the target instance from the :instance or :name route
// parameter, falling back to the "instance" field of the body. The body goes
// through the same decoder the handlers use, so every content type a handler
// accepts is checked here too.
func RequestInstance(c *fiber.Ctx) string {
	if v := c.Params("instance"); v != "" {
		return v
	}
	if v := c.Params("name"); v != "" {
		return v
	}
	if router.IsMultipartForm(c) {
		return strings.TrimSpace(c.FormValue("instance"))
	}
	if len(c.Body()) == 0 {
		return ""
	}
	var body struct {
		Instance string `json:"instance"`
	}
	if err := c.BodyParser(&body); err != nil {
		return ""
	}
	return strings.TrimSpace(body.Instance)
}

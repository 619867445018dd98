package admin

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/types"
	pkgAuth "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/auth"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/database"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/whatsapp"
)

// KeyStore is the API key part of the database.
type KeyStore interface {
	CreateAPIKey(ctx context.Context, in database.NewAPIKey) (*database.APIKey, string, error)
	ListAPIKeys(ctx context.Context) ([]database.APIKey, error)
	GetAPIKey(ctx context.Context, id int64) (*database.APIKey, error)
	UpdateAPIKey(ctx context.Context, id int64, u database.APIKeyUpdate) (*database.APIKey, error)
	DeleteAPIKey(ctx context.Context, id int64) (*database.APIKey, error)
}

type StatsStore interface {
	GlobalStats(ctx context.Context) (*database.GlobalStats, error)
}

type QueueStatser interface {
	Stats() database.QueueStats
}

type Controller struct {
	Keys     KeyStore
	Stats    StatsStore
	Queue    QueueStatser
	Filter   *pkgAuth.Filter
	Manager  *pkgWhatsApp.Manager
	Versions *pkgWhatsApp.VersionRefresher
}

type CreateAPIKeyRequest struct {
	Name             string   `json:"name"`
	Role             string   `json:"role"`
	AllowedInstances []string `json:"allowed_instances"`
	Validity         string   `json:"validity"`
}

// UpdateAPIKeyRequest is partial: absent fields are left unchanged.
type UpdateAPIKeyRequest struct {
	Name             *string   `json:"name"`
	Active           *bool     `json:"active"`
	AllowedInstances *[]string `json:"allowed_instances"`
	Validity         *string   `json:"validity"`
}

type APIKeyCreated struct {
	database.APIKey
	Key string `json:"key"`
}

func parseAPIKeyID(idStr string) (int64, error) {
	return strconv.ParseInt(idStr, 10, 64)
}

func cleanInstances(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, name := range in {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		out = append(out, name)
	}
	return out
}

// @Summary     Create API Key
// @Description Create a standard or super admin key. The plaintext key is only returned here.
// @Tags        API Keys
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       body body CreateAPIKeyRequest true "API Key details"
// @Success     201 {object} router.Response
// @Failure     400 {object} router.Response
// @Failure     403 {object} router.Response
// @Router      /v1/api-keys [post]
func (ctl *Controller) CreateAPIKey(c *fiber.Ctx) error {
	var req CreateAPIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return router.ResponseBadRequest(c, "name is required")
	}
	role, err := database.NormalizeRole(req.Role)
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	expires, err := database.ParseValidity(req.Validity, time.Now())
	if err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	key, plain, err := ctl.Keys.CreateAPIKey(c.UserContext(), database.NewAPIKey{
		Name:             req.Name,
		Role:             role,
		AllowedInstances: cleanInstances(req.AllowedInstances),
		ExpiresAt:        expires,
	})
	if err != nil {
		return types.ResponseError(c, err, "Failed to create API key")
	}

	log.Print(c).WithField("key_id", key.ID).WithField("role", key.Role).Info("api key created")
	return router.ResponseCreatedWithData(c, "API key created", APIKeyCreated{APIKey: *key, Key: plain})
}

// @Summary     List API Keys
// @Tags        API Keys
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} router.Response
// @Router      /v1/api-keys [get]
func (ctl *Controller) ListAPIKeys(c *fiber.Ctx) error {
	keys, err := ctl.Keys.ListAPIKeys(c.UserContext())
	if err != nil {
		return types.ResponseError(c, err, "Failed to list API keys")
	}
	return router.ResponseSuccessWithData(c, "Success", keys)
}

// @Summary     Get API Key
// @Tags        API Keys
// @Produce     json
// @Security    ApiKeyAuth
// @Param       id path int true "API key id"
// @Success     200 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /v1/api-keys/{id} [get]
func (ctl *Controller) GetAPIKey(c *fiber.Ctx) error {
	id, err := parseAPIKeyID(c.Params("id"))
	if err != nil {
		return router.ResponseBadRequest(c, "Invalid API key id")
	}
	key, err := ctl.Keys.GetAPIKey(c.UserContext(), id)
	if err != nil {
		return types.ResponseError(c, err, "Failed to get API key")
	}
	return router.ResponseSuccessWithData(c, "Success", key)
}

// @Summary     Update API Key
// @Description Partially update name, active flag, allowed instances or validity
// @Tags        API Keys
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       id path int true "API key id"
// @Param       body body UpdateAPIKeyRequest true "Fields to change"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /v1/api-keys/{id} [patch]
func (ctl *Controller) UpdateAPIKey(c *fiber.Ctx) error {
	id, err := parseAPIKeyID(c.Params("id"))
	if err != nil {
		return router.ResponseBadRequest(c, "Invalid API key id")
	}
	var req UpdateAPIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}

	var update database.APIKeyUpdate
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return router.ResponseBadRequest(c, "name cannot be empty")
		}
		update.Name = &name
	}
	update.Active = req.Active
	if req.AllowedInstances != nil {
		update.SetAllowed = true
		update.AllowedInstances = cleanInstances(*req.AllowedInstances)
	}
	if req.Validity != nil {
		expires, err := database.ParseValidity(*req.Validity, time.Now())
		if err != nil {
			return router.ResponseBadRequest(c, err.Error())
		}
		update.SetExpiry = true
		update.ExpiresAt = expires
	}

	key, err := ctl.Keys.UpdateAPIKey(c.UserContext(), id, update)
	if err != nil {
		return types.ResponseError(c, err, "Failed to update API key")
	}
	ctl.Filter.Invalidate(key.KeyHash)
	return router.ResponseSuccessWithData(c, "API key updated", key)
}

// @Summary     Delete API Key
// @Description Deletes a key. A caller cannot delete the key it authenticates with.
// @Tags        API Keys
// @Produce     json
// @Security    ApiKeyAuth
// @Param       id path int true "API key id"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /v1/api-keys/{id} [delete]
func (ctl *Controller) DeleteAPIKey(c *fiber.Ctx) error {
	id, err := parseAPIKeyID(c.Params("id"))
	if err != nil {
		return router.ResponseBadRequest(c, "Invalid API key id")
	}
	if p := pkgAuth.PrincipalFrom(c); p != nil && !p.Global && p.KeyID == id {
		return router.ResponseBadRequest(c, "You cannot delete the API key you are using")
	}

	key, err := ctl.Keys.DeleteAPIKey(c.UserContext(), id)
	if err != nil {
		return types.ResponseError(c, err, "Failed to delete API key")
	}
	ctl.Filter.Invalidate(key.KeyHash)
	log.Print(c).WithField("key_id", id).Info("api key deleted")
	return router.ResponseSuccess(c, "API key deleted")
}

// @Summary     Gateway Statistics
// @Description Durable totals and live session counters
// @Tags        Admin
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} router.Response
// @Router      /v1/admin/stats [get]
func (ctl *Controller) GetStats(c *fiber.Ctx) error {
	stored, err := ctl.Stats.GlobalStats(c.UserContext())
	if err != nil {
		return types.ResponseError(c, err, "Failed to load statistics")
	}
	return router.ResponseSuccessWithData(c, "Success", fiber.Map{
		"database": stored,
		"sessions": ctl.Manager.Stats(),
	})
}

// @Summary     Persistence Queue Health
// @Description Write-behind counters; divergent is true once any write was lost
// @Tags        Admin
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} router.Response
// @Router      /v1/admin/persistence [get]
func (ctl *Controller) GetPersistence(c *fiber.Ctx) error {
	stats := ctl.Queue.Stats()
	return router.ResponseSuccessWithData(c, "Success", fiber.Map{
		"queue":     stats,
		"divergent": stats.Divergent(),
	})
}

// @Summary     WhatsApp Web Version
// @Tags        Admin
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} router.Response
// @Router      /v1/admin/whatsapp/version [get]
func (ctl *Controller) GetWhatsAppWebVersion(c *fiber.Ctx) error {
	return router.ResponseSuccessWithData(c, "Success", ctl.Versions.Status())
}

// @Summary     Refresh WhatsApp Web Version
// @Description Fetches the latest version; pass force=true to skip the minimum interval
// @Tags        Admin
// @Produce     json
// @Security    ApiKeyAuth
// @Param       force query bool false "Ignore the minimum refresh interval"
// @Success     200 {object} router.Response
// @Failure     502 {object} router.Response
// @Router      /v1/admin/whatsapp/version/refresh [post]
func (ctl *Controller) RefreshWhatsAppWebVersion(c *fiber.Ctx) error {
	force := c.QueryBool("force", false)
	ctx, cancel := context.WithTimeout(c.UserContext(), 30*time.Second)
	defer cancel()

	status, refreshed, err := ctl.Versions.Refresh(ctx, force)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return router.ResponseBadGateway(c, "Version lookup timed out")
		}
		return router.ResponseBadGateway(c, "Failed to refresh WhatsApp Web version: "+err.Error())
	}
	return router.ResponseSuccessWithData(c, "Success", fiber.Map{
		"refreshed": refreshed,
		"status":    status,
	})
}

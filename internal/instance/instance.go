package instance

import (
	"context"
	"errors"
	"sort"
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

type Store interface {
	UpsertInstance(ctx context.Context, name string, createdBy *int64) (*database.Instance, error)
	GetInstance(ctx context.Context, name string) (*database.Instance, error)
	ListInstances(ctx context.Context, allowed []string) ([]database.Instance, error)
	DeleteInstance(ctx context.Context, name string) error
	SetInstanceWebhook(ctx context.Context, name, url string, enabled bool) error
}

// TargetCache forgets cached webhook targets of an instance.
type TargetCache interface {
	Invalidate(instance string)
}

type Controller struct {
	Manager  *pkgWhatsApp.Manager
	Store    Store
	Webhooks TargetCache
}

type CreateInstanceRequest struct {
	Instance   string `json:"instance"`
	WebhookURL string `json:"webhook_url"`
}

type WebhookRequest struct {
	URL     string `json:"url"`
	Enabled *bool  `json:"enabled"`
}

// View is a stored instance overlaid with its live session state.
type View struct {
	database.Instance
	State     pkgWhatsApp.State `json:"state"`
	Attempts  int               `json:"attempts"`
	GaveUp    bool              `json:"gave_up,omitempty"`
	Challenge bool              `json:"has_challenge,omitempty"`
}

func newView(inst database.Instance, snap *pkgWhatsApp.Snapshot) View {
	v := View{Instance: inst, State: pkgWhatsApp.State(inst.Status)}
	if snap == nil {
		return v
	}
	v.State = snap.State
	v.Status = string(snap.State)
	v.Attempts = snap.Attempts
	v.GaveUp = snap.GaveUp
	v.Challenge = snap.Challenge != ""
	if snap.JID != "" {
		v.JID = snap.JID
	}
	if snap.PushName != "" {
		v.PushName = snap.PushName
	}
	return v
}

// @Summary     List Instances
// @Description Lists the instances the caller may access, with live state
// @Tags        Instances
// @Produce     json
// @Security    ApiKeyAuth
// @Success     200 {object} router.Response
// @Router      /v1/instances [get]
func (ctl *Controller) ListInstances(c *fiber.Ctx) error {
	p := pkgAuth.PrincipalFrom(c)

	var allowed []string
	if !p.Privileged() {
		allowed = append([]string{}, p.Allowed...)
	}
	stored, err := ctl.Store.ListInstances(c.UserContext(), allowed)
	if err != nil {
		return types.ResponseError(c, err, "Failed to list instances")
	}

	live := make(map[string]pkgWhatsApp.Snapshot)
	ctl.Manager.Range(func(snap pkgWhatsApp.Snapshot) bool {
		if p.CanAccess(snap.Instance) {
			live[snap.Instance] = snap
		}
		return true
	})

	views := make([]View, 0, len(stored)+len(live))
	for _, inst := range stored {
		if snap, ok := live[inst.Name]; ok {
			views = append(views, newView(inst, &snap))
			delete(live, inst.Name)
			continue
		}
		views = append(views, newView(inst, nil))
	}
	// registered in this process but not yet persisted
	extra := make([]string, 0, len(live))
	for name := range live {
		extra = append(extra, name)
	}
	sort.Strings(extra)
	for _, name := range extra {
		snap := live[name]
		views = append(views, newView(database.Instance{Name: name}, &snap))
	}

	return router.ResponseSuccessWithData(c, "Success", views)
}

// @Summary     Create Instance
// @Tags        Instances
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       body body CreateInstanceRequest true "Instance"
// @Success     201 {object} router.Response
// @Failure     400 {object} router.Response
// @Router      /v1/instances [post]
func (ctl *Controller) CreateInstance(c *fiber.Ctx) error {
	var req CreateInstanceRequest
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}
	req.Instance = strings.TrimSpace(req.Instance)
	if err := validation.ValidateInstanceName(req.Instance); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	if err := validation.ValidateWebhookURL(req.WebhookURL); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}

	var createdBy *int64
	if p := pkgAuth.PrincipalFrom(c); p != nil && !p.Global {
		id := p.KeyID
		createdBy = &id
	}

	ctx := c.UserContext()
	inst, err := ctl.Store.UpsertInstance(ctx, req.Instance, createdBy)
	if err != nil {
		return types.ResponseError(c, err, "Failed to create instance")
	}
	if url := strings.TrimSpace(req.WebhookURL); url != "" {
		if err := ctl.Store.SetInstanceWebhook(ctx, inst.Name, url, true); err != nil {
			return types.ResponseError(c, err, "Failed to set instance webhook")
		}
		inst.WebhookURL, inst.WebhookEnabled = url, true
		ctl.Webhooks.Invalidate(inst.Name)
	}
	if err := ctl.Manager.Register(inst.Name, inst.JID); err != nil {
		return types.ResponseError(c, err, "Failed to register instance")
	}

	log.Instance(inst.Name).Info("instance created")
	snap, _ := ctl.Manager.Status(inst.Name)
	return router.ResponseCreatedWithData(c, "Instance created", newView(*inst, &snap))
}

// @Summary     Delete Instance
// @Description Logs the session out when paired and deletes every stored record of the instance
// @Tags        Instances
// @Produce     json
// @Security    ApiKeyAuth
// @Param       name path string true "Instance name"
// @Success     200 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /v1/instances/{name} [delete]
func (ctl *Controller) DeleteInstance(c *fiber.Ctx) error {
	name := c.Params("name")
	ctx := c.UserContext()

	removeErr := ctl.Manager.Remove(ctx, name)
	if removeErr != nil && !errors.Is(removeErr, pkgWhatsApp.ErrUnknownInstance) {
		return types.ResponseError(c, removeErr, "Failed to stop instance")
	}
	err := ctl.Store.DeleteInstance(ctx, name)
	if errors.Is(err, database.ErrNotFound) && removeErr == nil {
		err = nil
	}
	if err != nil {
		return types.ResponseError(c, err, "Failed to delete instance")
	}
	ctl.Webhooks.Invalidate(name)

	log.Instance(name).Info("instance deleted")
	return router.ResponseSuccess(c, "Instance deleted")
}

// @Summary     Set Instance Webhook
// @Description Sets the per-instance webhook URL. An empty URL disables it.
// @Tags        Instances
// @Accept      json
// @Produce     json
// @Security    ApiKeyAuth
// @Param       name path string true "Instance name"
// @Param       body body WebhookRequest true "Webhook"
// @Success     200 {object} router.Response
// @Failure     400 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /v1/instances/{name}/webhook [patch]
func (ctl *Controller) SetWebhook(c *fiber.Ctx) error {
	name := c.Params("name")
	var req WebhookRequest
	if err := c.BodyParser(&req); err != nil {
		return router.ResponseBadRequest(c, "Invalid request body")
	}
	url := strings.TrimSpace(req.URL)
	if err := validation.ValidateWebhookURL(url); err != nil {
		return router.ResponseBadRequest(c, err.Error())
	}
	enabled := url != ""
	if req.Enabled != nil {
		enabled = *req.Enabled && url != ""
	}

	if err := ctl.Store.SetInstanceWebhook(c.UserContext(), name, url, enabled); err != nil {
		return types.ResponseError(c, err, "Failed to set instance webhook")
	}
	ctl.Webhooks.Invalidate(name)
	return router.ResponseSuccessWithData(c, "Webhook updated", fiber.Map{
		"instance": name,
		"url":      url,
		"enabled":  enabled,
	})
}

// @Summary     Instance Info
// @Description Status, account, avatar and mirror counters of an instance
// @Tags        Instance
// @Produce     json
// @Security    ApiKeyAuth
// @Param       instance path string true "Instance name"
// @Success     200 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /v1/instance/{instance}/info [get]
func (ctl *Controller) Info(c *fiber.Ctx) error {
	info, err := ctl.Manager.Info(c.UserContext(), c.Params("instance"))
	if err != nil {
		return types.ResponseError(c, err, "Failed to get instance info")
	}
	return router.ResponseSuccessWithData(c, "Success", info)
}

// @Summary     Instance Status
// @Tags        Instance
// @Produce     json
// @Security    ApiKeyAuth
// @Param       instance path string true "Instance name"
// @Success     200 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /v1/instance/{instance}/status [get]
func (ctl *Controller) Status(c *fiber.Ctx) error {
	snap, err := ctl.Manager.Status(c.Params("instance"))
	if err != nil {
		return types.ResponseError(c, err, "Failed to get instance status")
	}
	return router.ResponseSuccessWithData(c, "Success", snap)
}

// @Summary     Sync Status
// @Tags        Instance
// @Produce     json
// @Security    ApiKeyAuth
// @Param       instance path string true "Instance name"
// @Success     200 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /v1/instance/{instance}/sync-status [get]
func (ctl *Controller) SyncStatus(c *fiber.Ctx) error {
	status, err := ctl.Manager.SyncStatus(c.Params("instance"))
	if err != nil {
		return types.ResponseError(c, err, "Failed to get sync status")
	}
	return router.ResponseSuccessWithData(c, "Success", status)
}

// @Summary     Start Sync
// @Description Starts the groups then contacts sync in the background
// @Tags        Instance
// @Produce     json
// @Security    ApiKeyAuth
// @Param       instance path string true "Instance name"
// @Success     202 {object} router.Response
// @Failure     400 {object} router.Response
// @Failure     409 {object} router.Response
// @Router      /v1/instance/{instance}/sync [post]
func (ctl *Controller) Sync(c *fiber.Ctx) error {
	name := c.Params("instance")
	if err := ctl.Manager.RequestSync(name); err != nil {
		return types.ResponseError(c, err, "Failed to start sync")
	}
	status, _ := ctl.Manager.SyncStatus(name)
	return router.ResponseAcceptedWithData(c, "Sync started", status)
}

// @Summary     Restart Instance
// @Description Disconnects and starts again with a fresh reconnect budget
// @Tags        Instance
// @Produce     json
// @Security    ApiKeyAuth
// @Param       instance path string true "Instance name"
// @Success     200 {object} router.Response
// @Failure     404 {object} router.Response
// @Router      /v1/instance/{instance}/restart [post]
func (ctl *Controller) Restart(c *fiber.Ctx) error {
	res, err := ctl.Manager.Restart(c.UserContext(), c.Params("instance"))
	if err != nil {
		return types.ResponseError(c, err, "Failed to restart instance")
	}
	return router.ResponseSuccessWithData(c, res.Status, res)
}

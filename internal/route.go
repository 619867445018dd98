package internal

import (
	"github.com/gofiber/fiber/v2"
	swagger "github.com/gofiber/swagger"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/auth"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/router"

	ctlAdmin "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/admin"
	ctlAuth "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/auth"
	ctlChats "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/chats"
	ctlIndex "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/index"
	ctlInstance "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/instance"
	ctlMessaging "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/messaging"
	ctlRecords "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/records"
	ctlSession "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/session"
	ctlWebhooks "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/webhooks"
)

// Controllers bundles every handler group mounted by Routes.
type Controllers struct {
	Filter    *auth.Filter
	Index     *ctlIndex.Controller
	Auth      *ctlAuth.Controller
	Admin     *ctlAdmin.Controller
	Instance  *ctlInstance.Controller
	Session   *ctlSession.Controller
	Messaging *ctlMessaging.Controller
	Chats     *ctlChats.Controller
	Records   *ctlRecords.Controller
	Webhooks  *ctlWebhooks.Controller
}

func Routes(app *fiber.App, ctl Controllers) {
	// Configure OpenAPI / Swagger
	specURL := router.BaseURL + "/docs/swagger.json"
	swaggerHandler := swagger.New(swagger.Config{
		URL: specURL,
	})

	// Route for Index
	// ---------------------------------------------
	if router.BaseURL == "" {
		app.Get("/", ctlIndex.Index)
	} else {
		app.Get(router.BaseURL, ctlIndex.Index)
		app.Get(router.BaseURL+"/", ctlIndex.Index)
	}
	app.Get(router.BaseURL+"/health", ctl.Index.Health)

	// Route for OpenAPI / Swagger
	// ---------------------------------------------
	app.Get(router.BaseURL+"/docs/swagger.json", func(c *fiber.Ctx) error {
		return c.SendFile("docs/swagger.json")
	})
	app.Get(router.BaseURL+"/docs/*", swaggerHandler)

	authenticate := ctl.Filter.Authenticate()
	privileged := ctl.Filter.PrivilegedOnly()
	scoped := ctl.Filter.InstanceAccess()

	v1 := app.Group(router.BaseURL+"/v1", authenticate)

	// Caller identity
	// ---------------------------------------------
	v1.Get("/me", ctl.Auth.Me)
	v1.Post("/auth/token", ctl.Auth.Token)

	// API keys and administration (super admin)
	// ---------------------------------------------
	keys := v1.Group("/api-keys", privileged)
	keys.Post("", ctl.Admin.CreateAPIKey)
	keys.Get("", ctl.Admin.ListAPIKeys)
	keys.Get("/:id", ctl.Admin.GetAPIKey)
	keys.Patch("/:id", ctl.Admin.UpdateAPIKey)
	keys.Delete("/:id", ctl.Admin.DeleteAPIKey)

	admin := v1.Group("/admin", privileged)
	admin.Get("/stats", ctl.Admin.GetStats)
	admin.Get("/persistence", ctl.Admin.GetPersistence)
	admin.Get("/whatsapp/version", ctl.Admin.GetWhatsAppWebVersion)
	admin.Post("/whatsapp/version/refresh", ctl.Admin.RefreshWhatsAppWebVersion)

	// Instance registry
	// ---------------------------------------------
	v1.Get("/instances", ctl.Instance.ListInstances)
	v1.Post("/instances", privileged, ctl.Instance.CreateInstance)
	v1.Delete("/instances/:name", privileged, ctl.Instance.DeleteInstance)
	v1.Patch("/instances/:name/webhook", scoped, ctl.Instance.SetWebhook)

	// route params are only parsed for the matched route, so the scope check
	// runs per route rather than as group middleware
	instance := v1.Group("/instance")
	instance.Get("/:instance/info", scoped, ctl.Instance.Info)
	instance.Get("/:instance/status", scoped, ctl.Instance.Status)
	instance.Get("/:instance/sync-status", scoped, ctl.Instance.SyncStatus)
	instance.Post("/:instance/sync", scoped, ctl.Instance.Sync)
	instance.Post("/:instance/restart", scoped, ctl.Instance.Restart)

	// Sessions, instance named in the body
	// ---------------------------------------------
	session := app.Group(router.BaseURL+"/session", authenticate, scoped)
	session.Post("/start", ctl.Session.Start)
	session.Post("/pair-code", ctl.Session.PairCode)
	session.Post("/logout", ctl.Session.Logout)

	// Send paths
	// ---------------------------------------------
	message := v1.Group("/message", scoped)
	message.Post("/text", ctl.Messaging.SendText)
	message.Post("/buttons", ctl.Messaging.SendButtons)
	message.Post("/list", ctl.Messaging.SendList)
	message.Post("/url-button", ctl.Messaging.SendURLButton)
	message.Post("/copy-button", ctl.Messaging.SendCopyButton)
	message.Post("/interactive", ctl.Messaging.SendInteractive)
	message.Post("/image", ctl.Messaging.SendImage)
	message.Post("/reaction", ctl.Messaging.SendReaction)

	// Mirror reads
	// ---------------------------------------------
	v1.Get("/contacts/:instance", scoped, ctl.Chats.Contacts)
	v1.Get("/groups/:instance", scoped, ctl.Chats.Groups)
	v1.Get("/messages/:instance/:jid", scoped, ctl.Chats.Messages)

	// Durable records
	// ---------------------------------------------
	db := v1.Group("/db")
	db.Get("/contacts/:instance", scoped, ctl.Records.Contacts)
	db.Get("/groups/:instance", scoped, ctl.Records.Groups)
	db.Get("/messages/:instance", scoped, ctl.Records.Messages)
	db.Get("/stats/:instance", scoped, ctl.Records.Stats)

	// Webhooks
	// ---------------------------------------------
	hooks := v1.Group("/webhooks")
	hooks.Get("/:instance/deliveries", scoped, ctl.Webhooks.ListDeliveries)
	hooks.Post("/:instance/test", scoped, ctl.Webhooks.TestWebhook)
}

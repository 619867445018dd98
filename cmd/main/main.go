package main

// @title Go WhatsApp Gateway REST API
// @version 2.0.0
// @description Multi-tenant WhatsApp gateway: sessions, interactive messages, mirror reads and signed webhooks

// @contact.name gdbrns
// @contact.url https://github.com/gdbrns/go-whatsapp-gateway-rest-api

// @license.name MIT
// @license.url https://github.com/gdbrns/go-whatsapp-gateway-rest-api/blob/main/LICENSE

// @host localhost:8080
// @BasePath /

// @securityDefinitions.apikey ApiKeyAuth
// @in header
// @name X-API-Key
// @description API key, also accepted as the apikey header, the apikey query parameter or a Bearer value

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description JWT issued by /v1/auth/token

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/auth"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/database"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/env"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/log"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/router"
	pkgWhatsApp "github.com/gdbrns/go-whatsapp-gateway-rest-api/pkg/whatsapp"

	"github.com/gdbrns/go-whatsapp-gateway-rest-api/internal"
	ctlAdmin "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/admin"
	ctlAuth "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/auth"
	ctlChats "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/chats"
	ctlIndex "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/index"
	ctlInstance "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/instance"
	ctlMessaging "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/messaging"
	ctlRecords "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/records"
	ctlSession "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/session"
	"github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/webhook"
	ctlWebhooks "github.com/gdbrns/go-whatsapp-gateway-rest-api/internal/webhooks"
)

type Server struct {
	Address string
	Port    string
}

func main() {
	started := time.Now()
	ctx := context.Background()

	// Durable Storage
	dbCfg := database.ConfigFromEnv()
	bootCtx, cancelBoot := context.WithTimeout(ctx, 30*time.Second)
	db, err := database.Open(bootCtx, dbCfg)
	if err != nil {
		cancelBoot()
		log.Print(nil).Fatal(err.Error())
	}
	queue := database.NewWriteBehind(database.QueueConfigFromEnv())
	recorder := database.NewRecorder(db, queue)

	// WhatsApp Credentials Store
	waCfg := pkgWhatsApp.ConfigFromEnv()
	dialer, err := pkgWhatsApp.NewMeowDialer(bootCtx, dbCfg.DSN, waCfg.ProxyURL)
	cancelBoot()
	if err != nil {
		log.Print(nil).Fatal(err.Error())
	}

	// Webhooks, Sessions and Access Control
	webhooks := webhook.NewEngine(webhook.ConfigFromEnv(), db, recorder)
	manager := pkgWhatsApp.NewManager(waCfg, pkgWhatsApp.Dependencies{
		Dialer:   dialer,
		Recorder: recorder,
		Sink:     recorder,
		Notifier: webhooks,
	})
	filter := auth.NewFilter(auth.ConfigFromEnv(), db, recorder)
	versions := pkgWhatsApp.NewVersionRefresher()

	// Intialize Cron
	c := cron.New(cron.WithChain(
		cron.Recover(cron.DiscardLogger),
	), cron.WithSeconds())

	// Initialize Fiber
	app := fiber.New(fiber.Config{
		ErrorHandler:   router.HttpErrorHandler,
		BodyLimit:      router.BodyLimitBytes(),
		ReadBufferSize: 8192,
	})

	// Request ID + panic recovery (structured JSON)
	app.Use(router.HttpRequestID())
	app.Use(router.RecoveryMiddleware())

	// Router Compression
	app.Use(compress.New(compress.Config{
		Level: compress.Level(router.GZipLevel),
		Next: func(c *fiber.Ctx) bool {
			return strings.Contains(c.Path(), "docs")
		},
	}))

	// Router CORS
	app.Use(cors.New(cors.Config{
		AllowOrigins: router.CORSOrigin,
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-API-Key, apikey",
		AllowMethods: "GET,POST,PUT,PATCH,DELETE",
	}))

	// Router Security
	app.Use(helmet.New(helmet.Config{
		XSSProtection:      "1; mode=block",
		ContentTypeNosniff: "nosniff",
		XFrameOptions:      "SAMEORIGIN",
	}))

	// Router Cache
	app.Use(router.HttpCacheInMemory(router.CacheTTLSeconds))

	// Router RealIP + request context enrichment
	app.Use(router.HttpRealIP())

	// Router Default Handler
	app.Get("/favicon.ico", router.ResponseNoContent)

	// Load Internal Routes
	internal.Routes(app, internal.Controllers{
		Filter: filter,
		Index: &ctlIndex.Controller{
			Manager: manager,
			DB:      db,
			Queue:   queue,
			Started: started,
		},
		Auth: &ctlAuth.Controller{Filter: filter},
		Admin: &ctlAdmin.Controller{
			Keys:     db,
			Stats:    db,
			Queue:    queue,
			Filter:   filter,
			Manager:  manager,
			Versions: versions,
		},
		Instance: &ctlInstance.Controller{
			Manager:  manager,
			Store:    db,
			Webhooks: webhooks.Targets(),
		},
		Session:   &ctlSession.Controller{Manager: manager, Store: db},
		Messaging: &ctlMessaging.Controller{Manager: manager},
		Chats:     &ctlChats.Controller{Manager: manager},
		Records:   &ctlRecords.Controller{Store: db},
		Webhooks:  &ctlWebhooks.Controller{Deliveries: db, Engine: webhooks},
	})

	// Running Startup Tasks
	internal.Startup(ctx, db, manager)

	// Running Routines Tasks
	internal.Routines(c, internal.Background{
		Manager:  manager,
		Versions: versions,
		Queue:    queue,
	})

	// Get Server Configuration with defaults
	var serverConfig Server
	serverConfig.Address = env.GetEnvStringOrDefault("SERVER_ADDRESS", "0.0.0.0")
	serverConfig.Port = env.GetEnvStringOrDefault("SERVER_PORT", "8080")

	// Start Server
	go func() {
		if err := app.Listen(serverConfig.Address + ":" + serverConfig.Port); err != nil {
			log.Print(nil).Fatal(err.Error())
		}
	}()

	// Watch for Shutdown Signal
	sigShutdown := make(chan os.Signal, 1)
	signal.Notify(sigShutdown, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	<-sigShutdown

	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancelShutdown()

	// Stop taking requests first, then drain in dependency order
	if err := app.ShutdownWithContext(ctxShutdown); err != nil {
		log.SysErr("http server", err)
	}
	<-c.Stop().Done()
	manager.Shutdown(ctxShutdown)
	if err := webhooks.Shutdown(ctxShutdown); err != nil {
		log.SysErr("webhook engine", err)
	}
	if err := queue.Close(ctxShutdown); err != nil {
		log.SysErr("persistence queue", err)
	}
	if err := dialer.Close(); err != nil {
		log.SysErr("whatsapp datastore", err)
	}
	if err := db.Close(); err != nil {
		log.SysErr("database", err)
	}
	log.Print(nil).Info("Shutdown complete")
}

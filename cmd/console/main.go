package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/open-teleop/console/domain/diagnostic"
	"github.com/open-teleop/console/domain/teleop"
	"github.com/open-teleop/console/domain/video"
	"github.com/open-teleop/console/pkg/api"
	"github.com/open-teleop/console/pkg/bridge"
	"github.com/open-teleop/console/pkg/config"
	customlog "github.com/open-teleop/console/pkg/log"
	"github.com/open-teleop/console/pkg/relay"
)

const healthInterval = 30 * time.Second

func main() {
	configDir := flag.String("config", "./config", "directory containing console_config.yaml")
	shellMode := flag.Bool("shell", false, "start the interactive operator shell")
	flag.Parse()

	cfg, err := config.LoadBootstrapConfig(*configDir)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := customlog.NewLogrusLogger(cfg.Logging.Level, cfg.Logging.LogPath)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	logger.Infof("Open-Teleop console starting (bridge %s)", cfg.Bridge.URL)

	manager := bridge.NewManager(cfg.Bridge, nil, logger.WithField("component", "bridge"))

	mirror, err := relay.New(cfg.Relay, logger)
	if err != nil {
		logger.Warnf("Command relay disabled: %v", err)
	}
	publisher := relay.NewPublisher(manager, mirror, logger)
	manager.OnStatus(publisher.OnStatus)

	session, err := teleop.NewSession(cfg, manager, publisher, logger.WithField("component", "session"))
	if err != nil {
		logger.Fatalf("Failed to create operator session: %v", err)
	}

	videoService := video.NewVideoService(cfg.Cameras, manager, logger)
	manager.OnStatus(videoService.OnStatus)

	diagnosticService := diagnostic.NewDiagnosticService(manager, logger,
		diagnostic.WithRelayFailures(publisher.Failures),
		diagnostic.WithCameras(videoService.Cameras))
	diagnosticService.Start(healthInterval)

	app := fiber.New(fiber.Config{
		AppName:               "Open-Teleop Console",
		ErrorHandler:          customErrorHandler,
		DisableStartupMessage: *shellMode,
	})
	app.Use(recover.New())
	if !*shellMode {
		app.Use(fiberlogger.New())
	}

	app.Get("/", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "online",
			"service": "open-teleop console",
		})
	})
	app.Get("/health", diagnosticService.HealthHandler)
	app.Get("/api/diagnostics", diagnosticService.GetMetricsHandler)

	api.RegisterConsoleRoutes(app, session, logger)
	api.RegisterConfigRoutes(app, cfg, logger)

	cameras := app.Group("/api/v1/console/cameras")
	cameras.Get("/", videoService.CamerasHandler)
	cameras.Get("/:camera/snapshot", videoService.SnapshotHandler)

	api.RegisterWebSocketRoutes(app, session, videoService, logger)

	addr := fmt.Sprintf(":%d", cfg.Server.HTTPPort)
	go func() {
		logger.Infof("Server starting on %s", addr)
		if err := app.Listen(addr); err != nil {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	if *shellMode {
		newShell(session, manager).Run()
	} else {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
	}
	logger.Infof("Shutting down console...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(ctx); err != nil {
		logger.Errorf("Server forced to shutdown: %v", err)
	}

	diagnosticService.Stop()
	manager.Close()
	publisher.Close()
	if mirror != nil {
		if err := mirror.Close(); err != nil {
			logger.Warnf("Failed to close command relay: %v", err)
		}
	}
	logger.Infof("Console exited properly")
}

// Custom error handler
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"rulegen-backend/internal/ai"
	"rulegen-backend/internal/app"
	"rulegen-backend/internal/config"
	"rulegen-backend/internal/engine"
	"rulegen-backend/internal/instrument"
	"rulegen-backend/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Load config
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Logger
	log, err := logger.New(cfg.Log.Mode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	log.Info("config loaded",
		"port", cfg.Server.Port,
		"db_driver", cfg.Database.Driver,
		"llm_provider", cfg.LLM.Provider,
		"llm_model", cfg.LLM.Model,
	)

	// 3. Database, storage, index and services
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal("failed to start", "error", err)
	}
	defer a.Close()
	log.Info("database ready", "driver", a.Store.Dialect.Name())

	// 4. Create Fiber app
	srv := fiber.New(fiber.Config{
		ErrorHandler: engine.ErrorHandler(log),
		BodyLimit:    int(cfg.Storage.MaxFileSize) * 10,
	})
	srv.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))
	srv.Use(fiberlogger.New(fiberlogger.Config{
		Format: "${time} ${status} ${method} ${path} ${latency}\n",
	}))
	srv.Use(cors.New(cors.Config{
		AllowOrigins: cfg.Server.AllowOrigins,
	}))
	srv.Use(instrument.Middleware(a.Tracer))

	// 5. Health check
	srv.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 6. Routes
	ai.RegisterRoutes(srv, ai.NewHandler(cfg.LLM, a.LLM != nil))
	instrument.RegisterRoutes(srv, instrument.NewEventHandler(a.Events))
	engine.RegisterRoutes(srv, engine.NewHandler(a.Services))

	// 7. Start server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", "addr", addr)
		errCh <- srv.Listen(addr)
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
		if err := srv.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Error("shutdown failed", "error", err)
		}
	case err := <-errCh:
		if err != nil {
			log.Error("server stopped", "error", err)
		}
	}
}

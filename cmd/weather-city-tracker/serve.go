package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/spf13/cobra"

	httpapi "github.com/i474232898/weather-city-tracker/internal/api/http"
	"github.com/i474232898/weather-city-tracker/internal/scheduler"
	"github.com/i474232898/weather-city-tracker/internal/trigger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, scheduled refresh and MQTT trigger",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context())
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Printf("error closing database: %v", err)
		}
	}()

	// Scheduler that periodically refreshes tracked cities.
	sched := scheduler.New(a.cfg.RefreshInterval, a.service)
	if err := sched.Start(); err != nil {
		return err
	}
	defer sched.Stop()

	// Optional MQTT trigger.
	if a.cfg.MQTT.Enabled {
		sub, err := trigger.NewSubscriber(a.cfg.MQTT, a.service)
		if err != nil {
			return err
		}
		if err := sub.Start(); err != nil {
			return err
		}
		defer sub.Close()
	}

	app := fiber.New(fiber.Config{
		AppName:               "weather-city-tracker",
		DisableStartupMessage: true,
		ReadTimeout:           10 * time.Second,
		// Writes are unbounded so /events streams stay open.
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			// Centralized error response
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   true,
				"message": err.Error(),
			})
		},
	})

	// Global middleware
	app.Use(logger.New())
	app.Use(recover.New())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "weather-city-tracker",
		})
	})

	httpapi.RegisterRoutes(app, a.service)

	go func() {
		log.Printf("INFO: listening on :%s", a.cfg.Port)
		if err := app.Listen(":" + a.cfg.Port); err != nil {
			log.Printf("fiber server stopped: %v", err)
		}
	}()

	// Wait for termination signal
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()

	// End /events streams first; fiber waits for open requests.
	a.store.CloseSubscriptions()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Printf("error during shutdown: %v", err)
	}
	return nil
}

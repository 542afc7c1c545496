package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notesync-be/internal/config"
	"notesync-be/internal/pkg/logger"
	"notesync-be/internal/pkg/serverutils"
	"notesync-be/pkg/relay"

	"github.com/gofiber/fiber/v2"
)

// The relay receives events from every backend instance and re-posts
// them to each instance's /api/broadcast-event webhook.
func main() {
	cfg := config.Load()
	sysLogger := logger.NewZapLogger(cfg.App.LogFilePath, cfg.App.Environment == "production")

	if len(cfg.Relay.Webhooks) == 0 {
		sysLogger.Warn("Relay", "RELAY_WEBHOOKS is empty, events will be dropped", nil)
	}
	fanout := relay.NewFanout(cfg.Relay.Webhooks, cfg.Relay.Timeout)

	app := fiber.New()
	app.Use(serverutils.ErrorHandlerMiddleware())
	app.Post("/:resource/:category/broadcast-event", func(ctx *fiber.Ctx) error {
		category := ctx.Params("category")
		body := append([]byte(nil), ctx.Body()...)

		if err := fanout.Forward(ctx.UserContext(), category, body); err != nil {
			// partial delivery still answers 200; the sender cannot retry per webhook
			sysLogger.Warn("Relay", "Webhook delivery failed", map[string]interface{}{
				"resource": ctx.Params("resource"),
				"category": category,
				"error":    err.Error(),
			})
		}
		return ctx.JSON(serverutils.SuccessResponse("Event relayed", fiber.Map{"webhooks": len(fanout.Webhooks())}))
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = app.ShutdownWithContext(shutdownCtx)
	}()

	sysLogger.Info("Relay", "Listening", map[string]interface{}{"port": cfg.Relay.Port, "webhooks": cfg.Relay.Webhooks})
	if err := app.Listen(":" + cfg.Relay.Port); err != nil {
		log.Fatalf("relay stopped: %v", err)
	}
}

package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notesync-be/internal/bootstrap"
	"notesync-be/internal/config"
	"notesync-be/internal/server"
	"notesync-be/internal/tracer"
	"notesync-be/internal/worker"
	"notesync-be/pkg/relay"

	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// 1. Load Configuration
	cfg := config.Load()

	// 2. Bootstrap Dependencies (Container)
	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		log.Fatalf("Unable to bootstrap: %v", err)
	}
	defer container.Close()
	sysLogger := container.Logger

	shutdownTracer := tracer.InitTracer("notesync-backend", cfg.App.InstanceID, sysLogger)
	defer shutdownTracer(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Start Background Services
	// queued tasks outlive the signal and are drained by Pool.Shutdown
	container.Pool.Start(context.WithoutCancel(ctx))
	if err := container.BroadcastService.Consume(ctx); err != nil {
		log.Fatalf("Unable to start broadcast consumer: %v", err)
	}
	if sub, ok := container.Transport.(relay.Subscriber); ok {
		if err := sub.Subscribe(ctx, container.WebSocketHub.Deliver); err != nil {
			log.Fatalf("Unable to subscribe to %s relay: %v", container.Transport.Name(), err)
		}
	}

	srv := server.New(cfg, container)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Every(gctx, cfg.Retry.Interval, "retry_drain", sysLogger, func(ctx context.Context) error {
			// the drain runs on the pool so a saturated pool skips a tick instead of piling up
			return container.Pool.Submit("retry_drain", func(ctx context.Context) {
				report, err := container.RetryQueue.Drain(ctx, cfg.Retry.BatchSize)
				if err != nil {
					sysLogger.Warn("RetryQueue", "Drain aborted", map[string]interface{}{"error": err.Error()})
					return
				}
				if report.Processed > 0 {
					sysLogger.Info("RetryQueue", "Drain finished", map[string]interface{}{
						"processed": report.Processed,
						"succeeded": report.Succeeded,
						"requeued":  report.Requeued,
						"terminal":  report.Terminal,
					})
				}
			})
		})
	})
	g.Go(func() error {
		return worker.Every(gctx, cfg.Reaper.Interval, "blob_reaper", sysLogger, func(ctx context.Context) error {
			report, err := container.Reaper.Reap(ctx)
			if err == nil && report.Deleted+report.Missing > 0 {
				sysLogger.Info("Reaper", "Expired blobs purged", map[string]interface{}{
					"deleted": report.Deleted,
					"missing": report.Missing,
				})
			}
			return err
		})
	})
	g.Go(func() error {
		return srv.Run()
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		container.WebSocketHub.CloseAll()
		err := srv.Shutdown(shutdownCtx)
		return errors.Join(err, container.Pool.Shutdown(shutdownCtx))
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		sysLogger.Error("Main", "Server stopped with error", map[string]interface{}{"error": err.Error()})
		os.Exit(1)
	}
	sysLogger.Info("Main", "Server stopped", nil)
}

package worker

import (
	"context"
	"time"

	"notesync-be/internal/pkg/logger"
)

// Every calls fn once per interval until ctx is done. A run that overlaps
// the next tick delays it rather than running concurrently.
func Every(ctx context.Context, interval time.Duration, name string, log logger.ILogger, fn func(ctx context.Context) error) error {
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info("Worker", "Periodic task scheduled", map[string]interface{}{
		"task":     name,
		"interval": interval.String(),
	})
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				log.Warn("Worker", "Periodic task failed", map[string]interface{}{
					"task":  name,
					"error": err.Error(),
				})
			}
		}
	}
}

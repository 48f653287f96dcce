package service

import (
	"context"
	"log"
	"time"
)

// ReservationCompleter is the slice of the reservation repository
// the sweep needs.
type ReservationCompleter interface {
	CompletePast(ctx context.Context) (int64, error)
}

// StartCompletionSweep runs a background loop that moves ACTIVE
// reservations whose slot end time has passed to COMPLETED.  Holds
// are never involved here; this is plain durable-state maintenance.
// The loop stops when ctx is cancelled.
func StartCompletionSweep(ctx context.Context, repo ReservationCompleter, interval time.Duration) {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			opCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			n, err := repo.CompletePast(opCtx)
			cancel()
			if err != nil {
				log.Printf("completion-sweep: update failed: %v", err)
				continue
			}
			if n > 0 {
				log.Printf("completion-sweep: completed %d past reservations", n)
			}
		}
	}
}

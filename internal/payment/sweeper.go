package payment

import (
	"context"
	"log"
	"time"

	"github.com/gamevault/backend/internal/store"
)

// StartExpirySweeper runs a background job that flips stale waiting
// transactions past their expiry to expired. The callback handler stays the
// only writer of success/failed; the sweeper owns expiry alone.
func StartExpirySweeper(ctx context.Context, txStore *store.TransactionStore, intervalMinutes int) {
	ticker := time.NewTicker(time.Duration(intervalMinutes) * time.Minute)
	defer ticker.Stop()

	log.Printf("[SWEEP] Starting expiry sweeper (check every %d min)", intervalMinutes)

	// Run once immediately on startup
	sweepExpired(ctx, txStore)

	for {
		select {
		case <-ctx.Done():
			log.Printf("[SWEEP] Expiry sweeper stopped")
			return
		case <-ticker.C:
			sweepExpired(ctx, txStore)
		}
	}
}

func sweepExpired(ctx context.Context, txStore *store.TransactionStore) {
	n, err := txStore.ExpireStale(ctx, time.Now())
	if err != nil {
		log.Printf("[SWEEP] Failed to expire stale transactions: %v", err)
		return
	}
	if n > 0 {
		log.Printf("[SWEEP] Expired %d stale transaction(s)", n)
	}
}

package main

import (
	"context"
	"log"
	"time"

	"matchBack/internal/repositories"
)

const (
	premiumCleanerInterval = time.Hour
	premiumCleanerTimeout  = 1 * time.Minute
)

// startPremiumCleaner clears expired premium flags in bulk. Premium reads
// also clear an expired flag for the user being read.
func startPremiumCleaner(ctx context.Context, repo *repositories.EntitlementRepository, infoLog, errorLog *log.Logger) {
	if repo == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(premiumCleanerInterval)
		defer ticker.Stop()

		runOnce := func() {
			runCtx, cancel := context.WithTimeout(ctx, premiumCleanerTimeout)
			cleared, err := repo.ClearExpiredPremium(runCtx, time.Now().UTC())
			cancel()
			if err != nil {
				if errorLog != nil {
					errorLog.Printf("premium cleaner: failed to clear expired premium: %v", err)
				}
			} else if cleared > 0 && infoLog != nil {
				infoLog.Printf("premium cleaner: cleared %d expired premium flags", cleared)
			}
		}

		runOnce()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runOnce()
			}
		}
	}()
}

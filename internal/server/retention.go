package server

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"dawin/internal/engine"
)

const defaultRetentionInterval = time.Hour

// StartRetentionSweeper purges expired occurrences for every tenant on a
// fixed interval until the returned stop function is called. The first sweep
// runs after one full interval, not at startup.
func StartRetentionSweeper(e engine.Engine, interval time.Duration, log zerolog.Logger) func() {
	if interval <= 0 {
		interval = defaultRetentionInterval
	}
	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				sweepOnce(e, log)
			}
		}
	}()
	return func() { close(done) }
}

func sweepOnce(e engine.Engine, log zerolog.Logger) {
	ctx := context.Background()
	tenants, err := e.Repo.ListTenants(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("retention: list tenants failed")
		return
	}
	for _, tenant := range tenants {
		res, err := e.PurgeExpired(ctx, tenant.ID, "system")
		if err != nil {
			log.Warn().Err(err).Str("tenant", tenant.ID).Msg("retention: purge failed")
			continue
		}
		if res.Archived > 0 || res.Deleted > 0 {
			log.Info().
				Str("tenant", tenant.ID).
				Int64("archived", res.Archived).
				Int64("deleted", res.Deleted).
				Msg("retention: purged expired occurrences")
		}
	}
}

package retention

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/shipway/shipway/pkg/artifact"
	"github.com/shipway/shipway/pkg/log"
	"github.com/shipway/shipway/pkg/types"
)

// Cleaner prunes old artifact versions after a committed deployment. It
// keeps the K most recent entries per artifact name and always preserves
// the currently active ref regardless of its age. Cleanup is best-effort:
// individual failures are logged and skipped, never escalated into a
// deployment failure.
type Cleaner struct {
	keep   int
	logger zerolog.Logger
}

// NewCleaner creates a cleaner retaining keep entries per artifact name.
func NewCleaner(keep int) *Cleaner {
	if keep < 1 {
		keep = 1
	}
	return &Cleaner{
		keep:   keep,
		logger: log.WithComponent("retention"),
	}
}

// Prune removes every catalog entry for name except the keep newest,
// always sparing active. It returns how many entries were removed. Local
// and remote stores are pruned by separate calls since their catalogs may
// have diverged.
func (c *Cleaner) Prune(ctx context.Context, store artifact.Store, name string, active types.ArtifactRef) int {
	entries, err := store.List(ctx, name)
	if err != nil {
		c.logger.Warn().
			Str("store", store.Description()).
			Err(err).
			Msg("cleanup skipped: failed to list artifacts")
		return 0
	}

	if len(entries) <= c.keep {
		return 0
	}

	// Entries are oldest first; everything before the cut is a candidate.
	removed := 0
	for _, entry := range entries[:len(entries)-c.keep] {
		if entry.Ref == active {
			continue
		}
		if err := store.Remove(ctx, entry.Ref); err != nil {
			c.logger.Warn().
				Str("store", store.Description()).
				Str("ref", entry.Ref.String()).
				Err(err).
				Msg("cleanup failed to remove artifact")
			continue
		}
		c.logger.Info().
			Str("store", store.Description()).
			Str("ref", entry.Ref.String()).
			Msg("pruned artifact")
		removed++
	}
	return removed
}

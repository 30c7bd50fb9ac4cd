package engine

import (
	"context"
	"time"

	"github.com/hupe1980/oodb/internal/manifest"
)

// VacuumStats reports what a vacuum run removed.
type VacuumStats struct {
	PagesDeleted     int
	RecordsDeleted   int
	ManifestsDeleted int
	Remaining        int
	Duration         time.Duration
}

// Vacuum deletes blobs that no live View and no future commit can reach.
// Entries whose deletion fails stay in the garbage list for the next run.
func (e *Engine) Vacuum(ctx context.Context) (VacuumStats, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed.Load() {
		return VacuumStats{}, ErrClosed
	}
	start := time.Now()
	oldest := e.oldestPinned()

	var (
		stats   VacuumStats
		keep    []manifest.GarbageEntry
		removed bool
	)
	sweep := func(entries []manifest.GarbageEntry) {
		for _, g := range entries {
			if g.Since > oldest {
				keep = append(keep, g)
				continue
			}
			if err := ctx.Err(); err != nil {
				keep = append(keep, g)
				continue
			}
			if err := e.store.Delete(ctx, g.Name); err != nil {
				e.logger.Warn("vacuum: delete failed", "name", g.Name, "error", err)
				keep = append(keep, g)
				continue
			}
			removed = true
			switch g.Kind {
			case manifest.GarbagePage:
				stats.PagesDeleted++
			case manifest.GarbageRecord:
				stats.RecordsDeleted++
			}
		}
	}
	sweep(e.manifest.Garbage)
	sweep(e.orphans)
	e.orphans = nil

	if removed || len(keep) != len(e.manifest.Garbage) {
		m := e.manifest.Clone()
		m.Garbage = keep
		if err := e.manifests.Save(ctx, m); err != nil {
			// Deleted blobs are unreachable either way; keep the listed
			// entries for the next run.
			e.orphans = keep
			return stats, storageError("save manifest", err)
		}
		e.manifest = m
		e.publish(m.ID)
	}

	n, err := e.pruneManifests(ctx)
	stats.ManifestsDeleted = n
	stats.Remaining = len(keep)
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, storageError("prune manifests", err)
	}

	e.logger.Info("vacuum",
		"pages", stats.PagesDeleted,
		"records", stats.RecordsDeleted,
		"manifests", stats.ManifestsDeleted,
		"remaining", stats.Remaining,
		"oldest_pinned", oldest,
		"duration", stats.Duration,
	)
	return stats, nil
}

func (e *Engine) pruneManifests(ctx context.Context) (int, error) {
	ids, err := e.manifests.ListVersions(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, id := range ids {
		if id+uint64(e.keepManifests) > e.manifest.ID || id == e.manifest.ID {
			continue
		}
		if err := e.manifests.DeleteVersion(ctx, id); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

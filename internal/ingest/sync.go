package ingest

import (
	"context"
	"fmt"

	"github.com/lepinkainen/alexandria/internal/catalog"
	"github.com/lepinkainen/alexandria/internal/merge"
	"github.com/lepinkainen/alexandria/internal/progress"
	"github.com/lepinkainen/alexandria/internal/remote"
)

// Synchronize absorbs remote deltas for one family. Sync is delta-only: it
// resumes from the most recently modified local record and cannot
// bootstrap an empty family, which needs a bulk import first. The pipeline
// performs no automatic retry on network failure; the watermark makes
// re-invoking it safe.
func (o *Orchestrator) Synchronize(ctx context.Context, family catalog.Family) Report {
	if o.newFetcher == nil {
		return Report{Status: StatusError, Family: family, Err: fmt.Errorf("no mirror configured")}
	}
	count, err := o.store.Count(ctx, family)
	if err != nil {
		return reportErr(family, 0, 0, err)
	}
	if count == 0 {
		return Report{
			Status: StatusError, Family: family,
			Err: fmt.Errorf("local %s catalog is empty, synchronization cannot bootstrap it: run a bulk import first", family),
		}
	}

	low, err := o.probeDiskSpace()
	if err != nil {
		return reportErr(family, 0, 0, err)
	}
	if low {
		return Report{Status: StatusLowDiskSpace, Family: family}
	}
	if err := o.ensureIndexes(ctx, family); err != nil {
		return reportErr(family, 0, 0, err)
	}

	cursor, err := o.loadWatermark(ctx, family)
	if err != nil {
		return reportErr(family, 0, 0, err)
	}
	idx, err := merge.BuildPresenceIndex(ctx, o.store, family)
	if err != nil {
		return reportErr(family, 0, 0, err)
	}
	fetcher := o.newFetcher(family, cursor)

	var added, updated int64
	for {
		if err := ctx.Err(); err != nil {
			return reportErr(family, added, updated, err)
		}
		batch, err := fetcher.NextBatch(ctx)
		if err != nil {
			return reportErr(family, added, updated, err)
		}
		if len(batch) == 0 {
			o.sink.Publish(progress.Summary{Family: family, Added: added, Updated: updated})
			return Report{Status: StatusCompleted, Family: family, Added: added, Updated: updated}
		}
		res, err := merge.Run(ctx, merge.NewSliceSource(batch), idx, o.store, family, o.sink, merge.Options{
			Checkpoint:        o.checkpoint,
			LowSpaceThreshold: o.lowSpace,
		})
		added += res.Added
		updated += res.Updated
		if err != nil {
			return reportErr(family, added, updated, err)
		}
		if res.LowDiskSpace {
			return Report{Status: StatusLowDiskSpace, Family: family, Added: added, Updated: updated}
		}
		cursor = advanceWatermark(cursor, fetcher.Cursor())
	}
}

// loadWatermark derives the sync starting point from the most recently
// modified local record.
func (o *Orchestrator) loadWatermark(ctx context.Context, family catalog.Family) (remote.Cursor, error) {
	latest, err := o.store.Latest(ctx, family)
	if err != nil {
		return remote.Cursor{}, fmt.Errorf("failed to load watermark for %s: %w", family, err)
	}
	if latest == nil {
		return remote.Cursor{}, nil
	}
	return remote.Cursor{Stamp: latest.Stamp(), RemoteID: latest.Key()}, nil
}

// advanceWatermark moves the cursor forward, never backward: a resumed sync
// may re-request from the same point, relying on dedup to make the replay a
// no-op.
func advanceWatermark(current, next remote.Cursor) remote.Cursor {
	if next.Stamp.Before(current.Stamp) {
		return current
	}
	if next.Stamp.Equal(current.Stamp) && next.RemoteID < current.RemoteID {
		return current
	}
	return next
}

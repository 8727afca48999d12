// Package merge implements the generic record merge engine shared by bulk
// import and remote synchronization. It deduplicates incoming records
// against a presence index, decides insert vs update per record, and
// checkpoints progress and disk-space probes on a caller-tuned cadence.
package merge

import (
	"context"
	"fmt"
	"io"

	"github.com/lepinkainen/alexandria/internal/catalog"
	"github.com/lepinkainen/alexandria/internal/progress"
	"github.com/lepinkainen/alexandria/internal/storage"
)

// Source yields records in merge order. Next returns io.EOF when the
// sequence is exhausted.
type Source interface {
	Next(ctx context.Context) (catalog.Object, error)
}

// Options tune one merge run.
type Options struct {
	// Checkpoint is the number of records between progress events and
	// disk-space probes.
	Checkpoint int
	// LowSpaceThreshold is the free-byte floor below which the run aborts.
	LowSpaceThreshold uint64
	// Ratio reports the position in the input stream for progress events;
	// nil when unknown.
	Ratio func() float64
}

// Result reports the outcome of one merge run. Work counted here is
// committed and survives a low-space abort or cancellation; dedup makes
// re-running the same input a cheap no-op.
type Result struct {
	Added        int64
	Updated      int64
	LowDiskSpace bool
}

// Run merges records from src into the store. Records absent from the
// presence index are inserted and marked present; records already present
// are updated only when the incoming change stamp is strictly newer than
// the stored one, which keeps redelivery idempotent. Cancellation is
// checked before every record and surfaces as ctx.Err().
func Run(ctx context.Context, src Source, idx *PresenceIndex, store storage.Store, family catalog.Family, sink progress.Sink, opts Options) (Result, error) {
	if opts.Checkpoint <= 0 {
		opts.Checkpoint = 1000
	}
	var res Result
	sinceCheckpoint := 0
	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		obj, err := src.Next(ctx)
		if err == io.EOF {
			return res, nil
		}
		if err != nil {
			return res, err
		}
		if err := mergeOne(ctx, obj, idx, store, family, &res); err != nil {
			return res, err
		}
		sinceCheckpoint++
		if sinceCheckpoint >= opts.Checkpoint {
			sinceCheckpoint = 0
			low, err := checkpoint(store, family, sink, opts, &res)
			if err != nil {
				return res, err
			}
			if low {
				res.LowDiskSpace = true
				return res, nil
			}
		}
	}
}

func mergeOne(ctx context.Context, obj catalog.Object, idx *PresenceIndex, store storage.Store, family catalog.Family, res *Result) error {
	key := obj.Key()
	if !idx.Contains(key) {
		if err := store.Insert(ctx, obj); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", key, err)
		}
		idx.Add(key)
		res.Added++
		return nil
	}
	stored, ok, err := store.ChangeStamp(ctx, family, key)
	if err != nil {
		return fmt.Errorf("failed to read stored record %d: %w", key, err)
	}
	// Index and storage can only disagree if the store was mutated behind
	// our back mid-session; insert rather than lose the record.
	if !ok {
		if err := store.Insert(ctx, obj); err != nil {
			return fmt.Errorf("failed to insert record %d: %w", key, err)
		}
		res.Added++
		return nil
	}
	if !obj.Stamp().After(stored) {
		return nil
	}
	if err := store.Update(ctx, obj); err != nil {
		return fmt.Errorf("failed to update record %d: %w", key, err)
	}
	res.Updated++
	return nil
}

func checkpoint(store storage.Store, family catalog.Family, sink progress.Sink, opts Options, res *Result) (low bool, err error) {
	ratio := 0.0
	if opts.Ratio != nil {
		ratio = opts.Ratio()
	}
	sink.Publish(progress.Counters{Family: family, Added: res.Added, Updated: res.Updated, Ratio: ratio})
	free, err := store.FreeSpace()
	if err != nil {
		return false, fmt.Errorf("failed to probe free disk space: %w", err)
	}
	sink.Publish(progress.DiskSpace{Free: free, Threshold: opts.LowSpaceThreshold})
	return free < opts.LowSpaceThreshold, nil
}

// SliceSource adapts an in-memory batch to the Source interface.
type SliceSource struct {
	records []catalog.Object
	pos     int
}

// NewSliceSource wraps a batch of records.
func NewSliceSource(records []catalog.Object) *SliceSource {
	return &SliceSource{records: records}
}

func (s *SliceSource) Next(ctx context.Context) (catalog.Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s.pos >= len(s.records) {
		return nil, io.EOF
	}
	obj := s.records[s.pos]
	s.pos++
	return obj, nil
}

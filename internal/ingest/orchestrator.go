// Package ingest drives the two ingestion operations of the catalog
// replica: bulk dump import and incremental synchronization. Both paths
// share the same merge engine, presence index, and disk-safety logic; the
// orchestrator is the only component aware of both.
package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/lepinkainen/alexandria/internal/catalog"
	apperrors "github.com/lepinkainen/alexandria/internal/errors"
	"github.com/lepinkainen/alexandria/internal/progress"
	"github.com/lepinkainen/alexandria/internal/remote"
	"github.com/lepinkainen/alexandria/internal/storage"
)

const (
	// DefaultCheckpoint is the record cadence for progress events and
	// disk-space probes.
	DefaultCheckpoint = 500
	// DefaultLowSpaceThreshold aborts an operation when the storage volume
	// drops below 2 GiB free.
	DefaultLowSpaceThreshold = 2 << 30
)

// BatchFetcher is the delta-client contract consumed by synchronization.
type BatchFetcher interface {
	NextBatch(ctx context.Context) ([]catalog.Object, error)
	Cursor() remote.Cursor
}

// FetcherFactory creates a delta client for a family starting at a cursor.
type FetcherFactory func(family catalog.Family, cursor remote.Cursor) BatchFetcher

// Orchestrator runs ingestion operations against one store. One operation
// runs at a time; the orchestrator owns the presence index and watermark
// cursor for the duration of a run and discards them at its end.
type Orchestrator struct {
	store      storage.Store
	sink       progress.Sink
	checkpoint int
	lowSpace   uint64
	newFetcher FetcherFactory
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithCheckpoint overrides the progress/disk-probe cadence.
func WithCheckpoint(records int) Option {
	return func(o *Orchestrator) { o.checkpoint = records }
}

// WithLowSpaceThreshold overrides the free-space floor in bytes.
func WithLowSpaceThreshold(bytes uint64) Option {
	return func(o *Orchestrator) { o.lowSpace = bytes }
}

// WithMirror points synchronization at a mirror API.
func WithMirror(baseURL string, batchSize int) Option {
	return WithFetcherFactory(func(family catalog.Family, cursor remote.Cursor) BatchFetcher {
		return remote.NewClient(baseURL, family, cursor, batchSize)
	})
}

// WithFetcherFactory replaces the delta-client constructor.
func WithFetcherFactory(f FetcherFactory) Option {
	return func(o *Orchestrator) { o.newFetcher = f }
}

// New creates an orchestrator over a connected store.
func New(store storage.Store, sink progress.Sink, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		sink:       sink,
		checkpoint: DefaultCheckpoint,
		lowSpace:   DefaultLowSpaceThreshold,
	}
	if sink == nil {
		o.sink = progress.Null{}
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// probeDiskSpace publishes a free-space snapshot and reports whether the
// volume is below the threshold.
func (o *Orchestrator) probeDiskSpace() (bool, error) {
	free, err := o.store.FreeSpace()
	if err != nil {
		return false, fmt.Errorf("failed to probe free disk space: %w", err)
	}
	o.sink.Publish(progress.DiskSpace{Free: free, Threshold: o.lowSpace})
	return free < o.lowSpace, nil
}

// ensureIndexes lazily creates the dedup-supporting indexes of a family so
// a first-ever import pays the build cost once, not per record.
func (o *Orchestrator) ensureIndexes(ctx context.Context, family catalog.Family) error {
	existing, err := o.store.Indexes(ctx, family)
	if err != nil {
		return fmt.Errorf("failed to list indexes for %s: %w", family, err)
	}
	present := make(map[string]bool, len(existing))
	for _, name := range existing {
		present[name] = true
	}
	for _, column := range []string{"remote_id", storage.StampColumn(family)} {
		if present[storage.IndexName(family, column)] {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		o.sink.Publish(progress.IndexCreation{Family: family, Column: column})
		if err := o.store.CreateIndex(ctx, family, column); err != nil {
			return fmt.Errorf("failed to create index on %s.%s: %w", family, column, err)
		}
	}
	return nil
}

// reportErr folds an error into the terminal status taxonomy. Cancellation
// is never conflated with failure.
func reportErr(family catalog.Family, added, updated int64, err error) Report {
	rep := Report{Family: family, Added: added, Updated: updated, Err: err}
	switch {
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		rep.Status = StatusCancelled
		rep.Err = nil
	case apperrors.IsCorruptedError(err):
		rep.Status = StatusCorrupted
	case apperrors.IsDataNotFoundError(err):
		rep.Status = StatusDataNotFound
	case apperrors.IsLowDiskSpaceError(err):
		rep.Status = StatusLowDiskSpace
	default:
		rep.Status = StatusError
	}
	return rep
}

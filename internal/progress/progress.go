// Package progress defines the typed event stream emitted by the ingestion
// pipeline and the sinks that consume it.
package progress

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/lepinkainen/alexandria/internal/catalog"
)

// Event is a progress notification from an ingestion operation.
type Event interface {
	event()
}

// DiskSpace is a snapshot of the free space on the storage volume.
type DiskSpace struct {
	Free      uint64
	Threshold uint64
}

// TableFound reports a recognized dump table segment.
type TableFound struct {
	Family catalog.Family
	Table  string
}

// IndexCreation reports the start of a supporting index build.
type IndexCreation struct {
	Family catalog.Family
	Column string
}

// Counters reports running added/updated counts. Ratio is the position in
// the input stream between 0 and 1, or zero when the total is unknown.
type Counters struct {
	Family  catalog.Family
	Added   int64
	Updated int64
	Ratio   float64
}

// Summary is the final completion report of one operation.
type Summary struct {
	Family  catalog.Family
	Added   int64
	Updated int64
}

func (DiskSpace) event()     {}
func (TableFound) event()    {}
func (IndexCreation) event() {}
func (Counters) event()      {}
func (Summary) event()       {}

// Sink consumes progress events. Delivery is at-least-once per checkpoint;
// implementations must not block the pipeline.
type Sink interface {
	Publish(Event)
}

// Null discards all events.
type Null struct{}

func (Null) Publish(Event) {}

// Throttled wraps a sink and rate-limits the high-frequency event kinds so
// a fast merge loop cannot flood the consumer. Structural events (table
// found, index creation, summary) always pass through.
type Throttled struct {
	inner   Sink
	limiter *rate.Limiter
}

// NewThrottled creates a throttled sink delivering counter and disk-space
// events at most once per interval.
func NewThrottled(inner Sink, interval time.Duration) *Throttled {
	return &Throttled{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

func (t *Throttled) Publish(ev Event) {
	switch ev.(type) {
	case Counters, DiskSpace:
		if !t.limiter.Allow() {
			return
		}
	}
	t.inner.Publish(ev)
}

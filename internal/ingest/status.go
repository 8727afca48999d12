package ingest

import "github.com/lepinkainen/alexandria/internal/catalog"

// Status is the terminal state of one ingestion operation. It is the only
// failure channel the caller sees; Report.Err carries detail for the
// failing statuses.
type Status int

const (
	StatusCompleted Status = iota
	StatusCancelled
	StatusDataNotFound
	StatusLowDiskSpace
	StatusCorrupted
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusCompleted:
		return "completed"
	case StatusCancelled:
		return "cancelled"
	case StatusDataNotFound:
		return "data not found"
	case StatusLowDiskSpace:
		return "low disk space"
	case StatusCorrupted:
		return "corrupted"
	default:
		return "error"
	}
}

// Report is the result of one bulk import or synchronization run. Counters
// cover work committed before any abort; partial progress is retained and
// re-running is safe.
type Report struct {
	Status  Status
	Family  catalog.Family
	Added   int64
	Updated int64
	Err     error
}

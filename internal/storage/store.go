package storage

import (
	"context"
	"time"

	"github.com/lepinkainen/alexandria/internal/catalog"
)

// Store is the persistence collaborator consumed by the ingestion pipeline.
// Implementations are single-writer for the duration of one operation.
type Store interface {
	// Connect establishes a connection to the data store.
	Connect() error

	// Insert adds a record first seen under its remote id.
	Insert(ctx context.Context, obj catalog.Object) error

	// Update replaces the stored record carrying the same remote id.
	Update(ctx context.Context, obj catalog.Object) error

	// ChangeStamp returns the change-detection value of the stored record
	// with the given remote id, and whether such a record exists.
	ChangeStamp(ctx context.Context, family catalog.Family, remoteID int64) (time.Time, bool, error)

	// ScanRemoteIDs calls fn for every remote id stored for the family.
	ScanRemoteIDs(ctx context.Context, family catalog.Family, fn func(int64) error) error

	// Count returns the number of records stored for the family.
	Count(ctx context.Context, family catalog.Family) (int64, error)

	// Latest returns the most recently modified record of the family, or
	// nil when the family is empty.
	Latest(ctx context.Context, family catalog.Family) (catalog.Object, error)

	// Indexes lists the names of the supporting indexes on the family's table.
	Indexes(ctx context.Context, family catalog.Family) ([]string, error)

	// CreateIndex creates a supporting index on the given column if missing.
	CreateIndex(ctx context.Context, family catalog.Family, column string) error

	// FreeSpace returns the free space in bytes on the storage volume.
	FreeSpace() (uint64, error)

	// Close closes the connection to the data store.
	Close() error
}

package merge

import (
	"context"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/lepinkainen/alexandria/internal/catalog"
	"github.com/lepinkainen/alexandria/internal/storage"
)

// PresenceIndex answers "is this remote id already stored locally?" without
// a storage round-trip per incoming record. The compressed bitmap grows as
// ids are added, so ids past any initially observed bound are handled by
// growth rather than a hard cap.
type PresenceIndex struct {
	bits *roaring64.Bitmap
}

// NewPresenceIndex creates an empty index.
func NewPresenceIndex() *PresenceIndex {
	return &PresenceIndex{bits: roaring64.New()}
}

// BuildPresenceIndex scans the stored remote ids of one family into a fresh
// index. The index is session-scoped: build it at the start of an import or
// sync run and discard it at the end.
func BuildPresenceIndex(ctx context.Context, store storage.Store, family catalog.Family) (*PresenceIndex, error) {
	idx := NewPresenceIndex()
	err := store.ScanRemoteIDs(ctx, family, func(id int64) error {
		idx.Add(id)
		return ctx.Err()
	})
	if err != nil {
		return nil, err
	}
	return idx, nil
}

// Contains reports whether the remote id is marked present.
func (p *PresenceIndex) Contains(id int64) bool {
	return p.bits.Contains(uint64(id))
}

// Add marks a remote id present.
func (p *PresenceIndex) Add(id int64) {
	p.bits.Add(uint64(id))
}

// Len returns the number of ids marked present.
func (p *PresenceIndex) Len() uint64 {
	return p.bits.GetCardinality()
}

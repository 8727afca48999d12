// Package testutil provides in-memory doubles for the ingestion pipeline:
// a fake store with scriptable disk-space probes and a progress sink that
// records every event it receives.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/lepinkainen/alexandria/internal/catalog"
	"github.com/lepinkainen/alexandria/internal/progress"
)

// FakeStore is an in-memory Store implementation keyed by family and
// remote id.
type FakeStore struct {
	mu      sync.Mutex
	records map[catalog.Family]map[int64]catalog.Object
	indexes map[catalog.Family][]string

	// Free is returned by FreeSpace. FreeSeq, when non-empty, overrides
	// Free probe by probe and sticks at its last value.
	Free    uint64
	FreeSeq []uint64
	probes  int

	// InsertErr, when set, fails every insert.
	InsertErr error
}

// NewFakeStore creates an empty fake store with ample free space.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		records: make(map[catalog.Family]map[int64]catalog.Object),
		indexes: make(map[catalog.Family][]string),
		Free:    1 << 40,
	}
}

func (s *FakeStore) Connect() error { return nil }
func (s *FakeStore) Close() error   { return nil }

func (s *FakeStore) Insert(_ context.Context, obj catalog.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.InsertErr != nil {
		return s.InsertErr
	}
	family := obj.Family()
	if s.records[family] == nil {
		s.records[family] = make(map[int64]catalog.Object)
	}
	if _, exists := s.records[family][obj.Key()]; exists {
		return fmt.Errorf("duplicate insert for remote id %d", obj.Key())
	}
	s.records[family][obj.Key()] = obj
	return nil
}

func (s *FakeStore) Update(_ context.Context, obj catalog.Object) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	family := obj.Family()
	if _, exists := s.records[family][obj.Key()]; !exists {
		return fmt.Errorf("update of unknown remote id %d", obj.Key())
	}
	s.records[family][obj.Key()] = obj
	return nil
}

func (s *FakeStore) ChangeStamp(_ context.Context, family catalog.Family, remoteID int64) (time.Time, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.records[family][remoteID]
	if !ok {
		return time.Time{}, false, nil
	}
	return obj.Stamp(), true, nil
}

func (s *FakeStore) ScanRemoteIDs(_ context.Context, family catalog.Family, fn func(int64) error) error {
	for _, id := range s.RemoteIDs(family) {
		if err := fn(id); err != nil {
			return err
		}
	}
	return nil
}

func (s *FakeStore) Count(_ context.Context, family catalog.Family) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.records[family])), nil
}

func (s *FakeStore) Latest(_ context.Context, family catalog.Family) (catalog.Object, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest catalog.Object
	for _, obj := range s.records[family] {
		if latest == nil {
			latest = obj
			continue
		}
		if obj.Stamp().After(latest.Stamp()) ||
			(obj.Stamp().Equal(latest.Stamp()) && obj.Key() > latest.Key()) {
			latest = obj
		}
	}
	return latest, nil
}

func (s *FakeStore) Indexes(_ context.Context, family catalog.Family) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.indexes[family]...), nil
}

func (s *FakeStore) CreateIndex(_ context.Context, family catalog.Family, column string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indexes[family] = append(s.indexes[family], fmt.Sprintf("idx_%s_%s", family, column))
	return nil
}

func (s *FakeStore) FreeSpace() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.FreeSeq) > 0 {
		i := s.probes
		if i >= len(s.FreeSeq) {
			i = len(s.FreeSeq) - 1
		}
		s.probes++
		return s.FreeSeq[i], nil
	}
	return s.Free, nil
}

// Get returns the stored record for a remote id.
func (s *FakeStore) Get(family catalog.Family, remoteID int64) (catalog.Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.records[family][remoteID]
	return obj, ok
}

// RemoteIDs returns the stored remote ids of a family in ascending order.
func (s *FakeStore) RemoteIDs(family catalog.Family) []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]int64, 0, len(s.records[family]))
	for id := range s.records[family] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// SinkRecorder records every published progress event.
type SinkRecorder struct {
	mu     sync.Mutex
	events []progress.Event
}

// NewSinkRecorder creates an empty recorder.
func NewSinkRecorder() *SinkRecorder {
	return &SinkRecorder{}
}

func (r *SinkRecorder) Publish(ev progress.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

// Events returns a copy of the recorded events.
func (r *SinkRecorder) Events() []progress.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]progress.Event(nil), r.events...)
}

package provenance

import (
	"bytes"
	"context"
	"sort"
	"sync"
)

type recordKey struct {
	kind Kind
	id   string
}

type memoryRecord struct {
	seq  uint64
	data []byte
}

// MemoryBackend keeps records in process. One mutex guards the map and
// data is copied on the way in and out.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[recordKey]memoryRecord
	seq     uint64
}

// NewMemoryBackend creates an empty in-memory backend
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[recordKey]memoryRecord)}
}

// Put stores a copy of data, keeping the original insertion position
func (b *MemoryBackend) Put(_ context.Context, kind Kind, id string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := recordKey{kind: kind, id: id}
	rec, exists := b.records[key]
	if !exists {
		b.seq++
		rec.seq = b.seq
	}
	rec.data = bytes.Clone(data)
	b.records[key] = rec
	return nil
}

// Get returns a copy of the stored record
func (b *MemoryBackend) Get(_ context.Context, kind Kind, id string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[recordKey{kind: kind, id: id}]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(rec.data), nil
}

// List returns copies of every record of a kind in insertion order
func (b *MemoryBackend) List(_ context.Context, kind Kind) ([][]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var recs []memoryRecord
	for key, rec := range b.records {
		if key.kind == kind {
			recs = append(recs, rec)
		}
	}
	sort.Slice(recs, func(i, j int) bool { return recs[i].seq < recs[j].seq })

	out := make([][]byte, len(recs))
	for i, rec := range recs {
		out[i] = bytes.Clone(rec.data)
	}
	return out, nil
}

// Close is a no-op
func (b *MemoryBackend) Close() error {
	return nil
}

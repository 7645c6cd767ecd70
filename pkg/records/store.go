package records

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
)

// ErrIndexOutOfRange is returned by Get for an index that was never handed
// out by CreateRef.
var ErrIndexOutOfRange = errors.New("record index out of range")

// Store is the interning record store shared by all processors of a
// pipeline.
//
// Records are inserted with CreateRef, which returns a dense index: the
// first distinct record gets index 0, the next one 1, and so on. Inserting
// a record that is value-equal to an existing one returns the existing
// index, so the indices always form the contiguous prefix [0, N). Indices
// are never reused or reordered and survive a checkpoint/recovery cycle.
//
// The store is safe for concurrent use. Inserts and reads may race; a
// reader always observes a consistent prefix of the store, and interning
// is linearizable (two concurrent CreateRef calls with equal records get
// the same index).
type Store struct {
	mu sync.RWMutex

	// records[i] is the record with index i; encoded[i] its canonical bytes.
	records []Record
	encoded []string

	// index maps canonical record bytes to the record's index.
	index map[string]uint64
}

// NewStore creates an empty record store.
func NewStore() *Store {
	return &Store{
		index: make(map[string]uint64),
	}
}

// CreateRef interns a record and returns its index.
//
// If a value-equal record is already present its index is returned;
// otherwise the record is appended and assigned the next dense index.
func (s *Store) CreateRef(rec Record) uint64 {
	key := string(EncodeRecord(rec))

	s.mu.RLock()
	idx, ok := s.index[key]
	s.mu.RUnlock()
	if ok {
		return idx
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Another writer may have interned the same record in the meantime.
	if idx, ok := s.index[key]; ok {
		return idx
	}

	idx = uint64(len(s.records))
	s.records = append(s.records, rec)
	s.encoded = append(s.encoded, key)
	s.index[key] = idx
	return idx
}

// Get returns the record with the given index.
func (s *Store) Get(index uint64) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if index >= uint64(len(s.records)) {
		return nil, fmt.Errorf("%w: %d >= %d", ErrIndexOutOfRange, index, len(s.records))
	}
	return s.records[index], nil
}

// NumRecords returns the number of distinct records in the store.
func (s *Store) NumRecords() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.records))
}

// SerializeSlice serializes records [from, NumRecords()) as a delta blob,
// returning the blob and the number of records serialized. The output is
// deterministic for a given range.
func (s *Store) SerializeSlice(from uint64) ([]byte, uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	total := uint64(len(s.records))
	if from > total {
		return nil, 0, fmt.Errorf("slice start %d beyond store size %d", from, total)
	}

	n := total - from

	var buf bytes.Buffer
	writeUint64(&buf, n)
	for i := from; i < total; i++ {
		buf.WriteString(s.encoded[i])
	}

	return buf.Bytes(), n, nil
}

// DeserializeAndExtend appends the records of a previously serialized delta,
// preserving their indices. The caller must apply deltas in the order they
// were serialized, so that the store size at extension time equals the
// `from` index used when serializing.
func (s *Store) DeserializeAndExtend(data []byte) error {
	recs, err := decodeDelta(data)
	if err != nil {
		return fmt.Errorf("decode record delta: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, rec := range recs {
		key := string(EncodeRecord(rec))
		if _, ok := s.index[key]; ok {
			// Deltas from a correct commit sequence never repeat records;
			// keeping the first occurrence preserves existing indices.
			continue
		}
		idx := uint64(len(s.records))
		s.records = append(s.records, rec)
		s.encoded = append(s.encoded, key)
		s.index[key] = idx
	}

	return nil
}

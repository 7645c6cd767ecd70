package records

import (
	"sync"
	"testing"
	"time"
)

func TestStore_CreateRef_Interning(t *testing.T) {
	s := NewStore()

	a := Record{Int(1), String("a")}
	b := Record{Int(2), String("b")}

	ia := s.CreateRef(a)
	ib := s.CreateRef(b)

	if ia != 0 || ib != 1 {
		t.Fatalf("expected dense indices 0,1, got %d,%d", ia, ib)
	}

	// Equal records return the existing index.
	if again := s.CreateRef(Record{Int(1), String("a")}); again != ia {
		t.Errorf("interning broken: got %d, want %d", again, ia)
	}

	if n := s.NumRecords(); n != 2 {
		t.Errorf("NumRecords() = %d, want 2", n)
	}
}

func TestStore_Get(t *testing.T) {
	s := NewStore()
	rec := Record{Int(42), Boolean(true)}
	idx := s.CreateRef(rec)

	got, err := s.Get(idx)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(EncodeRecord(got)) != string(EncodeRecord(rec)) {
		t.Errorf("Get returned different record")
	}

	if _, err := s.Get(99); err == nil {
		t.Error("Get(99) should fail on a store with one record")
	}
}

func TestStore_CreateRef_Concurrent(t *testing.T) {
	s := NewStore()

	const goroutines = 16
	const distinct = 100

	var wg sync.WaitGroup
	results := make([][]uint64, goroutines)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			results[g] = make([]uint64, distinct)
			for i := 0; i < distinct; i++ {
				results[g][i] = s.CreateRef(Record{Int(int64(i))})
			}
		}(g)
	}
	wg.Wait()

	if n := s.NumRecords(); n != distinct {
		t.Fatalf("NumRecords() = %d, want %d", n, distinct)
	}

	// All goroutines must have observed the same index per record.
	for g := 1; g < goroutines; g++ {
		for i := 0; i < distinct; i++ {
			if results[g][i] != results[0][i] {
				t.Fatalf("goroutine %d got index %d for record %d, goroutine 0 got %d",
					g, results[g][i], i, results[0][i])
			}
		}
	}

	// Indices form the contiguous prefix [0, distinct).
	seen := make(map[uint64]bool)
	for i := 0; i < distinct; i++ {
		seen[results[0][i]] = true
	}
	for i := uint64(0); i < distinct; i++ {
		if !seen[i] {
			t.Fatalf("index %d missing from the dense prefix", i)
		}
	}
}

func TestStore_SliceRoundTrip_Partitions(t *testing.T) {
	recs := []Record{
		{Int(0)},
		{Int(1), String("x")},
		{Float(3.5), Boolean(false)},
		{Null()},
		{Binary([]byte{0, 1, 2})},
		{Timestamp(time.Unix(12345, 678).UTC())},
		{NewDecimal(Decimal{Mantissa: -125, Scale: 2})},
		{Duration(90 * time.Second), NewPoint(1.5, -2.5)},
		{JSON(`{"k":1}`)},
		{Text("long text")},
	}

	src := NewStore()
	for _, r := range recs {
		src.CreateRef(r)
	}

	partitions := [][]uint64{
		{10},                           // one slice
		{1, 9},                         // tiny head
		{3, 3, 4},                      // thirds
		{1, 1, 1, 1, 1, 1, 1, 1, 1, 1}, // singles
		{0, 10},                        // empty head slice
		{5, 0, 5},                      // empty middle slice
	}

	for _, sizes := range partitions {
		// Replay insertion as it happened between commits: a growing store
		// serializes each delta at the point the corresponding epoch closed.
		live := NewStore()
		dst := NewStore()
		from := uint64(0)
		for _, size := range sizes {
			for i := from; i < from+size; i++ {
				live.CreateRef(recs[i])
			}
			data, n, err := live.SerializeSlice(from)
			if err != nil {
				t.Fatalf("SerializeSlice(%d) failed: %v", from, err)
			}
			if n != size {
				t.Fatalf("SerializeSlice(%d) wrote %d records, want %d", from, n, size)
			}
			if err := dst.DeserializeAndExtend(data); err != nil {
				t.Fatalf("DeserializeAndExtend failed: %v", err)
			}
			from += size
		}

		if dst.NumRecords() != src.NumRecords() {
			t.Fatalf("partition %v: got %d records, want %d", sizes, dst.NumRecords(), src.NumRecords())
		}
		for i := uint64(0); i < src.NumRecords(); i++ {
			want, _ := src.Get(i)
			got, err := dst.Get(i)
			if err != nil {
				t.Fatalf("Get(%d) failed: %v", i, err)
			}
			if string(EncodeRecord(got)) != string(EncodeRecord(want)) {
				t.Errorf("partition %v: record %d differs after round trip", sizes, i)
			}
		}
	}
}

func TestStore_SerializeSlice_Deterministic(t *testing.T) {
	s := NewStore()
	for i := 0; i < 5; i++ {
		s.CreateRef(Record{Int(int64(i))})
	}

	a, _, err := s.SerializeSlice(2)
	if err != nil {
		t.Fatal(err)
	}
	b, _, err := s.SerializeSlice(2)
	if err != nil {
		t.Fatal(err)
	}
	if string(a) != string(b) {
		t.Error("SerializeSlice is not deterministic")
	}
}

func TestStore_SerializeSlice_BeyondEnd(t *testing.T) {
	s := NewStore()
	s.CreateRef(Record{Int(1)})

	if _, _, err := s.SerializeSlice(2); err == nil {
		t.Error("SerializeSlice beyond store size should fail")
	}
}

func TestStore_DeserializeAndExtend_Corrupt(t *testing.T) {
	s := NewStore()
	if err := s.DeserializeAndExtend([]byte{1, 2, 3}); err == nil {
		t.Error("corrupt delta should fail")
	}
	if s.NumRecords() != 0 {
		t.Error("failed extend must not add records")
	}
}

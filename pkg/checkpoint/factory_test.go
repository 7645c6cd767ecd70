package checkpoint

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/driftflow/pkg/node"
	"github.com/marmos91/driftflow/pkg/records"
)

// newTestFactory opens a factory over dir with default (local) storage.
func newTestFactory(t *testing.T, dir string) (*Factory, *Checkpoint) {
	t.Helper()
	factory, ckpt, err := NewFactory(context.Background(), dir, FactoryOptions{})
	if err != nil {
		t.Fatalf("NewFactory failed: %v", err)
	}
	return factory, ckpt
}

// commit writes one epoch through a writer. The slice becomes durable once
// the queue drains (factory.Close or Queue().Join).
func commit(t *testing.T, factory *Factory, epochID uint64, states node.SourceStates) {
	t.Helper()
	writer := factory.CreateWriter(epochID, states)
	if err := writer.Close(); err != nil {
		t.Fatalf("writer Close failed: %v", err)
	}
}

func TestFactory_CommitAndRecoverSingleEpoch(t *testing.T) {
	dir := t.TempDir()

	states := node.SourceStates{
		node.NewHandle(1, "id"): node.NewPosition(1, 1),
	}

	factory, ckpt := newTestFactory(t, dir)
	if ckpt != nil {
		t.Fatalf("empty dir should yield no checkpoint, got %+v", ckpt)
	}

	factory.RecordStore().CreateRef(records.Record{records.Int(0)})
	commit(t, factory, 42, states)
	factory.Close()

	// A fresh factory over the same directory restores everything.
	restored, ckpt := newTestFactory(t, dir)
	defer restored.Close()

	if ckpt.NumSlices() != 1 {
		t.Errorf("NumSlices() = %d, want 1", ckpt.NumSlices())
	}
	if ckpt.EpochID() != 42 {
		t.Errorf("EpochID() = %d, want 42", ckpt.EpochID())
	}
	if ckpt.NextEpochID() != 43 {
		t.Errorf("NextEpochID() = %d, want 43", ckpt.NextEpochID())
	}
	if !ckpt.SourceStates().Equal(states) {
		t.Errorf("SourceStates() = %v, want %v", ckpt.SourceStates(), states)
	}
	if pos, ok := ckpt.SourceState(node.NewHandle(1, "id")); !ok || pos != node.NewPosition(1, 1) {
		t.Errorf("SourceState() = %v,%v", pos, ok)
	}

	store := restored.RecordStore()
	if store.NumRecords() != 1 {
		t.Fatalf("NumRecords() = %d, want 1", store.NumRecords())
	}
	rec, err := store.Get(0)
	if err != nil {
		t.Fatalf("Get(0) failed: %v", err)
	}
	want := records.Record{records.Int(0)}
	if string(records.EncodeRecord(rec)) != string(records.EncodeRecord(want)) {
		t.Errorf("Get(0) = %v, want %v", rec, want)
	}
}

func TestFactory_SecondEpochExtendsFirst(t *testing.T) {
	dir := t.TempDir()

	recsFirst := []records.Record{
		{records.String("a")},
		{records.String("b")},
		{records.String("c")},
	}

	factory, _ := newTestFactory(t, dir)
	for _, r := range recsFirst {
		factory.RecordStore().CreateRef(r)
	}
	commit(t, factory, 7, node.SourceStates{
		node.NewUnscopedHandle("src"): node.NewPosition(7, 0),
	})
	factory.Close()

	// Reopen, append one record, commit the next epoch with a new state.
	newStates := node.SourceStates{
		node.NewUnscopedHandle("src"): node.NewPosition(8, 3),
	}
	factory, ckpt := newTestFactory(t, dir)
	if ckpt.EpochID() != 7 {
		t.Fatalf("EpochID() = %d, want 7", ckpt.EpochID())
	}
	if idx := factory.RecordStore().CreateRef(records.Record{records.String("d")}); idx != 3 {
		t.Fatalf("new record got index %d, want 3", idx)
	}
	commit(t, factory, 8, newStates)
	factory.Close()

	restored, ckpt := newTestFactory(t, dir)
	defer restored.Close()

	if ckpt.NumSlices() != 2 {
		t.Errorf("NumSlices() = %d, want 2", ckpt.NumSlices())
	}
	if ckpt.EpochID() != 8 {
		t.Errorf("EpochID() = %d, want 8", ckpt.EpochID())
	}
	if !ckpt.SourceStates().Equal(newStates) {
		t.Errorf("latest source states not recovered: %v", ckpt.SourceStates())
	}

	store := restored.RecordStore()
	if store.NumRecords() != 4 {
		t.Fatalf("NumRecords() = %d, want 4", store.NumRecords())
	}
	wantAll := append(append([]records.Record{}, recsFirst...), records.Record{records.String("d")})
	for i, want := range wantAll {
		got, err := store.Get(uint64(i))
		if err != nil {
			t.Fatalf("Get(%d) failed: %v", i, err)
		}
		if string(records.EncodeRecord(got)) != string(records.EncodeRecord(want)) {
			t.Errorf("Get(%d) = %v, want %v", i, got, want)
		}
	}
}

func TestFactory_RecoversConcatenationInEpochOrder(t *testing.T) {
	dir := t.TempDir()

	var all []records.Record
	for epoch := uint64(1); epoch <= 3; epoch++ {
		factory, _ := newTestFactory(t, dir)
		for i := 0; i < 3; i++ {
			rec := records.Record{records.UInt(epoch), records.Int(int64(i))}
			factory.RecordStore().CreateRef(rec)
		}
		// Track insertion order across epochs; duplicates intern away.
		for i := 0; i < 3; i++ {
			all = append(all, records.Record{records.UInt(epoch), records.Int(int64(i))})
		}
		commit(t, factory, epoch, node.SourceStates{
			node.NewUnscopedHandle("src"): node.NewPosition(epoch, 0),
		})
		factory.Close()
	}

	restored, ckpt := newTestFactory(t, dir)
	defer restored.Close()

	if ckpt.NumSlices() != 3 {
		t.Errorf("NumSlices() = %d, want 3", ckpt.NumSlices())
	}
	if ckpt.NextEpochID() != 4 {
		t.Errorf("NextEpochID() = %d, want 4", ckpt.NextEpochID())
	}

	store := restored.RecordStore()
	if store.NumRecords() != uint64(len(all)) {
		t.Fatalf("NumRecords() = %d, want %d", store.NumRecords(), len(all))
	}
	for i, want := range all {
		got, err := store.Get(uint64(i))
		if err != nil {
			t.Fatalf("Get(%d) failed: %v", i, err)
		}
		if string(records.EncodeRecord(got)) != string(records.EncodeRecord(want)) {
			t.Errorf("Get(%d) differs from insertion order", i)
		}
	}
}

func TestFactory_EmptyEpochStillCarriesSourceStates(t *testing.T) {
	dir := t.TempDir()

	factory, _ := newTestFactory(t, dir)
	commit(t, factory, 1, node.SourceStates{
		node.NewUnscopedHandle("src"): node.NewPosition(5, 5),
	})
	factory.Close()

	restored, ckpt := newTestFactory(t, dir)
	defer restored.Close()

	if ckpt.NumSlices() != 1 || ckpt.EpochID() != 1 {
		t.Fatalf("unexpected descriptor: slices=%d epoch=%d", ckpt.NumSlices(), ckpt.EpochID())
	}
	if pos, ok := ckpt.SourceState(node.NewUnscopedHandle("src")); !ok || pos != node.NewPosition(5, 5) {
		t.Errorf("SourceState() = %v,%v", pos, ok)
	}
	if restored.RecordStore().NumRecords() != 0 {
		t.Errorf("empty epoch should restore an empty store")
	}
}

func TestFactory_ShortSliceFailsRecovery(t *testing.T) {
	dir := t.TempDir()

	// Header claims 999 bytes of source states but only 10 follow.
	data := make([]byte, 18)
	data[0] = 999 & 0xff
	data[1] = 999 >> 8
	sliceDir := filepath.Join(dir, "record_store")
	if err := os.MkdirAll(sliceDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sliceDir, "00000000000000000001"), data, 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err := NewFactory(context.Background(), dir, FactoryOptions{})
	var notEnough *NotEnoughDataError
	if !errors.As(err, &notEnough) {
		t.Fatalf("expected NotEnoughDataError, got %v", err)
	}
	if notEnough.Expected != 999 || notEnough.Remaining != 10 {
		t.Errorf("got {expected:%d remaining:%d}, want {999 10}", notEnough.Expected, notEnough.Remaining)
	}
}

func TestFactory_CorruptEarlierSliceFailsRecovery(t *testing.T) {
	dir := t.TempDir()

	for epoch := uint64(1); epoch <= 2; epoch++ {
		factory, _ := newTestFactory(t, dir)
		factory.RecordStore().CreateRef(records.Record{records.UInt(epoch)})
		commit(t, factory, epoch, node.SourceStates{})
		factory.Close()
	}

	// Truncate the first slice below its header.
	first := filepath.Join(dir, "record_store", "00000000000000000001")
	if err := os.WriteFile(first, []byte{1, 2, 3}, 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err := NewFactory(context.Background(), dir, FactoryOptions{})
	if err == nil {
		t.Fatal("recovery over a corrupt slice must fail, not partially initialize")
	}
	var notEnough *NotEnoughDataError
	if !errors.As(err, &notEnough) {
		t.Errorf("expected NotEnoughDataError, got %v", err)
	}
}

func TestFactory_UnrecognizedKeyFailsRecovery(t *testing.T) {
	dir := t.TempDir()

	sliceDir := filepath.Join(dir, "record_store")
	if err := os.MkdirAll(sliceDir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(sliceDir, "not-an-epoch"), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}

	_, _, err := NewFactory(context.Background(), dir, FactoryOptions{})
	var unrecognized *UnrecognizedCheckpointError
	if !errors.As(err, &unrecognized) {
		t.Fatalf("expected UnrecognizedCheckpointError, got %v", err)
	}
}

func TestFactory_ProcessorDataRoundTrip(t *testing.T) {
	dir := t.TempDir()
	handle := node.NewHandle(3, "agg")

	factory, _ := newTestFactory(t, dir)
	writer := factory.CreateWriter(9, node.SourceStates{})

	obj, err := writer.CreateProcessorObject(handle)
	if err != nil {
		t.Fatalf("CreateProcessorObject failed: %v", err)
	}
	if _, err := obj.Write([]byte("opaque processor bytes")); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := obj.Close(); err != nil {
		t.Fatalf("object Close failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("writer Close failed: %v", err)
	}
	factory.Close()

	restored, ckpt := newTestFactory(t, dir)
	defer restored.Close()

	data, err := restored.LoadProcessorData(context.Background(), ckpt, handle)
	if err != nil {
		t.Fatalf("LoadProcessorData failed: %v", err)
	}
	if string(data) != "opaque processor bytes" {
		t.Errorf("got %q", data)
	}

	// No checkpoint present -> no data, no error.
	data, err = restored.LoadProcessorData(context.Background(), nil, handle)
	if err != nil || data != nil {
		t.Errorf("nil checkpoint should yield nil,nil; got %v,%v", data, err)
	}
}

func TestFactory_WriterCloseIdempotent(t *testing.T) {
	dir := t.TempDir()

	factory, _ := newTestFactory(t, dir)
	factory.RecordStore().CreateRef(records.Record{records.Int(1)})

	writer := factory.CreateWriter(1, node.SourceStates{})
	if err := writer.Close(); err != nil {
		t.Fatalf("first Close failed: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
	factory.Close()

	restored, ckpt := newTestFactory(t, dir)
	defer restored.Close()
	if ckpt.NumSlices() != 1 {
		t.Errorf("double Close committed %d slices, want 1", ckpt.NumSlices())
	}
}

func TestFactory_WriterCloseAfterFactoryClose(t *testing.T) {
	dir := t.TempDir()

	factory, _ := newTestFactory(t, dir)
	writer := factory.CreateWriter(1, node.SourceStates{})
	factory.Close()

	// The worker is gone: the scoped commit must surface an error without
	// panicking.
	err := writer.Close()
	if !errors.Is(err, ErrCheckpointWriterStopped) {
		t.Errorf("expected ErrCheckpointWriterStopped, got %v", err)
	}
}

func TestFactory_SuccessiveSlicesDisjoint(t *testing.T) {
	dir := t.TempDir()

	factory, _ := newTestFactory(t, dir)
	defer factory.Close()

	store := factory.RecordStore()

	store.CreateRef(records.Record{records.Int(1)})
	store.CreateRef(records.Record{records.Int(2)})
	commit(t, factory, 1, node.SourceStates{})

	store.CreateRef(records.Record{records.Int(3)})
	commit(t, factory, 2, node.SourceStates{})

	// Nothing new: the third slice must be empty rather than re-shipping
	// earlier records.
	commit(t, factory, 3, node.SourceStates{})

	factory.Queue().Close()
	factory.Queue().Join()

	ctx := context.Background()
	page, err := factory.Storage().List(ctx, "record_store/", "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Objects) != 3 {
		t.Fatalf("expected 3 slices, got %d", len(page.Objects))
	}

	var total uint64
	for i, obj := range page.Objects {
		data, err := factory.Storage().Download(ctx, obj.Key)
		if err != nil {
			t.Fatalf("Download failed: %v", err)
		}
		_, delta, err := parseSliceData(data)
		if err != nil {
			t.Fatalf("parseSliceData failed: %v", err)
		}
		scratch := records.NewStore()
		if err := scratch.DeserializeAndExtend(delta); err != nil {
			t.Fatalf("DeserializeAndExtend failed: %v", err)
		}
		n := scratch.NumRecords()
		switch i {
		case 0:
			if n != 2 {
				t.Errorf("slice 1 carries %d records, want 2", n)
			}
		case 1:
			if n != 1 {
				t.Errorf("slice 2 carries %d records, want 1", n)
			}
		case 2:
			if n != 0 {
				t.Errorf("slice 3 carries %d records, want 0", n)
			}
		}
		total += n
	}
	if total != 3 {
		t.Errorf("slices cover %d records total, want 3", total)
	}
}

func TestRecovery_IncompleteSliceInvisible(t *testing.T) {
	dir := t.TempDir()

	// Commit epoch 1 normally.
	factory, _ := newTestFactory(t, dir)
	factory.RecordStore().CreateRef(records.Record{records.Int(1)})
	commit(t, factory, 1, node.SourceStates{})
	factory.Close()

	// Start the epoch-2 slice upload but kill the worker before Complete.
	factory, _ = newTestFactory(t, dir)
	q := factory.Queue()
	key := sliceKey(factory.Prefix(), formatEpoch(2))
	if err := q.CreateUpload(key); err != nil {
		t.Fatal(err)
	}
	if err := q.UploadChunk(key, []byte("partial slice bytes")); err != nil {
		t.Fatal(err)
	}
	factory.Close() // drains without ever completing the upload

	restored, ckpt := newTestFactory(t, dir)
	defer restored.Close()

	if ckpt.NumSlices() != 1 || ckpt.EpochID() != 1 {
		t.Errorf("incomplete slice leaked into recovery: slices=%d epoch=%d",
			ckpt.NumSlices(), ckpt.EpochID())
	}
	if restored.RecordStore().NumRecords() != 1 {
		t.Errorf("prior slice damaged: %d records", restored.RecordStore().NumRecords())
	}
}

func TestRecovery_Cancellable(t *testing.T) {
	dir := t.TempDir()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewFactory(ctx, dir, FactoryOptions{})
	if err == nil {
		t.Error("construction with a cancelled context should fail")
	}
}

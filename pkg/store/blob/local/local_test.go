package local

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/marmos91/driftflow/pkg/store/blob"
	"github.com/marmos91/driftflow/pkg/store/blob/blobtest"
)

func newTestStore(t *testing.T) blob.Storage {
	t.Helper()
	s, err := New(Config{Dir: t.TempDir()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func TestLocalStore_Conformance(t *testing.T) {
	blobtest.RunStorageTests(t, newTestStore)
}

func TestLocalStore_Pagination(t *testing.T) {
	blobtest.RunPaginationTests(t, func(t *testing.T) blob.Storage {
		s, err := New(Config{Dir: t.TempDir(), PageSize: 10})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		return s
	}, 10)
}

func TestLocalStore_RequiresDir(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Error("New with empty dir should fail")
	}
}

func TestLocalStore_StagingInvisibleAfterCrash(t *testing.T) {
	// A leftover staged file from a crashed process must not surface as an
	// object.
	dir := t.TempDir()
	s, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	if err := s.CreateUpload(ctx, "crashed"); err != nil {
		t.Fatalf("CreateUpload failed: %v", err)
	}
	if err := s.UploadPart(ctx, "crashed", []byte("partial")); err != nil {
		t.Fatalf("UploadPart failed: %v", err)
	}
	// Simulate a crash: no CompleteUpload, open a fresh store on the dir.

	s2, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	page, err := s2.List(ctx, "", "")
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(page.Objects) != 0 {
		t.Errorf("staged upload leaked into listing: %+v", page.Objects)
	}
}

func TestLocalStore_CompleteCreatesParents(t *testing.T) {
	dir := t.TempDir()
	s, err := New(Config{Dir: dir})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx := context.Background()
	if err := s.CreateUpload(ctx, "deep/nested/key"); err != nil {
		t.Fatalf("CreateUpload failed: %v", err)
	}
	if err := s.UploadPart(ctx, "deep/nested/key", []byte("v")); err != nil {
		t.Fatalf("UploadPart failed: %v", err)
	}
	if err := s.CompleteUpload(ctx, "deep/nested/key"); err != nil {
		t.Fatalf("CompleteUpload failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dir, "deep", "nested", "key")); err != nil {
		t.Errorf("object file missing: %v", err)
	}
}

// Package blobtest provides a conformance suite that every blob.Storage
// backend must pass. Backend packages call RunStorageTests from their own
// tests so the contract is verified uniformly.
package blobtest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/marmos91/driftflow/pkg/store/blob"
)

// Factory creates a fresh, empty store for one subtest.
type Factory func(t *testing.T) blob.Storage

// RunStorageTests runs the blob.Storage conformance suite against stores
// produced by the factory.
func RunStorageTests(t *testing.T, newStore Factory) {
	t.Run("DownloadMissing", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Download(context.Background(), "nope")
		if !errors.Is(err, blob.ErrNotFound) {
			t.Errorf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("UploadRoundTrip", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		put(t, s, "a/b/key", []byte("hello "), []byte("world"))

		data, err := s.Download(ctx, "a/b/key")
		if err != nil {
			t.Fatalf("Download failed: %v", err)
		}
		if string(data) != "hello world" {
			t.Errorf("got %q, want %q", data, "hello world")
		}
	})

	t.Run("PartsConcatenateInOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		var parts [][]byte
		var want string
		for i := 0; i < 10; i++ {
			p := []byte(fmt.Sprintf("part-%d;", i))
			parts = append(parts, p)
			want += string(p)
		}
		put(t, s, "chunked", parts...)

		data, err := s.Download(ctx, "chunked")
		if err != nil {
			t.Fatalf("Download failed: %v", err)
		}
		if string(data) != want {
			t.Errorf("parts out of order: got %q, want %q", data, want)
		}
	})

	t.Run("IncompleteUploadInvisible", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.CreateUpload(ctx, "pending"); err != nil {
			t.Fatalf("CreateUpload failed: %v", err)
		}
		if err := s.UploadPart(ctx, "pending", []byte("data")); err != nil {
			t.Fatalf("UploadPart failed: %v", err)
		}

		if _, err := s.Download(ctx, "pending"); !errors.Is(err, blob.ErrNotFound) {
			t.Errorf("incomplete upload visible to Download: %v", err)
		}
		page, err := s.List(ctx, "", "")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		for _, obj := range page.Objects {
			if obj.Key == "pending" {
				t.Error("incomplete upload visible to List")
			}
		}
	})

	t.Run("AbortDiscards", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if err := s.CreateUpload(ctx, "doomed"); err != nil {
			t.Fatalf("CreateUpload failed: %v", err)
		}
		if err := s.UploadPart(ctx, "doomed", []byte("data")); err != nil {
			t.Fatalf("UploadPart failed: %v", err)
		}
		if err := s.AbortUpload(ctx, "doomed"); err != nil {
			t.Fatalf("AbortUpload failed: %v", err)
		}

		if _, err := s.Download(ctx, "doomed"); !errors.Is(err, blob.ErrNotFound) {
			t.Errorf("aborted upload visible: %v", err)
		}

		// Aborting again is a no-op.
		if err := s.AbortUpload(ctx, "doomed"); err != nil {
			t.Errorf("second AbortUpload failed: %v", err)
		}
	})

	t.Run("PartWithoutCreateFails", func(t *testing.T) {
		s := newStore(t)
		err := s.UploadPart(context.Background(), "never-created", []byte("x"))
		if !errors.Is(err, blob.ErrUploadNotFound) {
			t.Errorf("expected ErrUploadNotFound, got %v", err)
		}
	})

	t.Run("ListLexicographicOrder", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		// Insert out of order; 20-digit zero padding must list numerically.
		keys := []string{
			"ckpt/record_store/00000000000000000010",
			"ckpt/record_store/00000000000000000002",
			"ckpt/record_store/00000000000000000001",
			"ckpt/other",
		}
		for _, k := range keys {
			put(t, s, k, []byte(k))
		}

		var listed []string
		token := ""
		for {
			page, err := s.List(ctx, "ckpt/record_store/", token)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			for _, obj := range page.Objects {
				listed = append(listed, obj.Key)
			}
			token = page.Continuation
			if token == "" {
				break
			}
		}

		want := []string{
			"ckpt/record_store/00000000000000000001",
			"ckpt/record_store/00000000000000000002",
			"ckpt/record_store/00000000000000000010",
		}
		if len(listed) != len(want) {
			t.Fatalf("listed %d keys, want %d: %v", len(listed), len(want), listed)
		}
		for i := range want {
			if listed[i] != want[i] {
				t.Errorf("position %d: got %q, want %q", i, listed[i], want[i])
			}
		}
	})

	t.Run("ListReportsSizes", func(t *testing.T) {
		s := newStore(t)

		put(t, s, "sized", []byte("12345"))

		page, err := s.List(context.Background(), "sized", "")
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		if len(page.Objects) != 1 || page.Objects[0].Size != 5 {
			t.Errorf("unexpected listing: %+v", page.Objects)
		}
	})

	t.Run("ReplaceExistingObject", func(t *testing.T) {
		s := newStore(t)

		put(t, s, "key", []byte("old"))
		put(t, s, "key", []byte("new"))

		data, err := s.Download(context.Background(), "key")
		if err != nil {
			t.Fatalf("Download failed: %v", err)
		}
		if string(data) != "new" {
			t.Errorf("got %q, want %q", data, "new")
		}
	})
}

// RunPaginationTests verifies multi-page listings. Only backends with a
// configurable page size run this (real S3 pages at 1000 keys).
func RunPaginationTests(t *testing.T, newStore Factory, pageSize int) {
	s := newStore(t)
	ctx := context.Background()

	total := pageSize*2 + 1
	for i := 0; i < total; i++ {
		put(t, s, fmt.Sprintf("p/%020d", i), []byte("x"))
	}

	var listed []string
	token := ""
	pages := 0
	for {
		page, err := s.List(ctx, "p/", token)
		if err != nil {
			t.Fatalf("List failed: %v", err)
		}
		pages++
		for _, obj := range page.Objects {
			listed = append(listed, obj.Key)
		}
		token = page.Continuation
		if token == "" {
			break
		}
	}

	if len(listed) != total {
		t.Fatalf("listed %d keys across %d pages, want %d", len(listed), pages, total)
	}
	if pages < 3 {
		t.Errorf("expected at least 3 pages, got %d", pages)
	}
	for i := 1; i < len(listed); i++ {
		if listed[i-1] >= listed[i] {
			t.Fatalf("keys out of order across pages: %q >= %q", listed[i-1], listed[i])
		}
	}
}

// put uploads an object through the multipart primitives.
func put(t *testing.T, s blob.Storage, key string, parts ...[]byte) {
	t.Helper()
	ctx := context.Background()

	if err := s.CreateUpload(ctx, key); err != nil {
		t.Fatalf("CreateUpload(%q) failed: %v", key, err)
	}
	for _, p := range parts {
		if err := s.UploadPart(ctx, key, p); err != nil {
			t.Fatalf("UploadPart(%q) failed: %v", key, err)
		}
	}
	if err := s.CompleteUpload(ctx, key); err != nil {
		t.Fatalf("CompleteUpload(%q) failed: %v", key, err)
	}
}

// Package local implements directory-backed blob storage.
//
// Objects are regular files under a root directory, one file per key.
// Multipart uploads are staged in a hidden directory and published with an
// atomic rename on completion, so readers never observe a partial object.
package local

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/driftflow/internal/telemetry"
	"github.com/marmos91/driftflow/pkg/store/blob"
)

// stagingDir is where in-progress uploads live, under the root. It is
// skipped by List, so a crashed upload is invisible to recovery.
const stagingDir = ".staging"

// defaultPageSize bounds how many objects one List call returns.
const defaultPageSize = 1000

// Config contains configuration for the local store.
type Config struct {
	// Dir is the root directory. Created if it does not exist.
	Dir string

	// PageSize overrides the List page size. Defaults to 1000.
	PageSize int
}

// Store is a directory-backed blob store.
type Store struct {
	root     string
	pageSize int

	mu      sync.Mutex
	uploads map[string]*os.File // key -> staged temp file
}

// New creates a local store rooted at cfg.Dir.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("local store requires a directory")
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	if err := os.MkdirAll(filepath.Join(cfg.Dir, stagingDir), 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &Store{
		root:     cfg.Dir,
		pageSize: pageSize,
		uploads:  make(map[string]*os.File),
	}, nil
}

// objectPath maps a key to its file path under the root.
func (s *Store) objectPath(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

// List returns objects under prefix in lexicographic key order.
//
// The continuation token is the last key of the previous page; the next
// page starts strictly after it. The walk re-lists the tree on every call,
// which keeps tokens valid even if unrelated keys appear in between.
func (s *Store) List(ctx context.Context, prefix string, continuation string) (blob.ListPage, error) {
	ctx, span := telemetry.StartStorageSpan(ctx, telemetry.SpanStorageList, "local", "", telemetry.Prefix(prefix))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return blob.ListPage{}, err
	}

	var all []blob.ObjectInfo
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == stagingDir && filepath.Dir(path) == s.root {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		if continuation != "" && key <= continuation {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		all = append(all, blob.ObjectInfo{Key: key, Size: info.Size()})
		return nil
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return blob.ListPage{}, fmt.Errorf("failed to list %q: %w", prefix, err)
	}

	sort.Slice(all, func(i, j int) bool { return all[i].Key < all[j].Key })

	page := blob.ListPage{}
	if len(all) > s.pageSize {
		page.Objects = all[:s.pageSize]
		page.Continuation = page.Objects[len(page.Objects)-1].Key
	} else {
		page.Objects = all
	}
	return page, nil
}

// Download reads an entire object.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	ctx, span := telemetry.StartStorageSpan(ctx, telemetry.SpanStorageDownload, "local", key)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.objectPath(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, key)
		}
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	telemetry.SetAttributes(ctx, telemetry.Bytes(len(data)))
	return data, nil
}

// CreateUpload stages a temp file for key.
func (s *Store) CreateUpload(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f, err := os.CreateTemp(filepath.Join(s.root, stagingDir), "upload-*")
	if err != nil {
		return fmt.Errorf("failed to stage upload for %q: %w", key, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// A re-created upload for the same key discards the previous staging.
	if old, ok := s.uploads[key]; ok {
		old.Close()
		os.Remove(old.Name())
	}
	s.uploads[key] = f
	return nil
}

// UploadPart appends data to the staged file for key.
func (s *Store) UploadPart(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	f, ok := s.uploads[key]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", blob.ErrUploadNotFound, key)
	}

	if _, err := f.Write(data); err != nil {
		return fmt.Errorf("failed to write part for %q: %w", key, err)
	}
	return nil
}

// CompleteUpload publishes the staged file under its final path with an
// atomic rename.
func (s *Store) CompleteUpload(ctx context.Context, key string) error {
	ctx, span := telemetry.StartStorageSpan(ctx, telemetry.SpanStorageComplete, "local", key)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	f, ok := s.uploads[key]
	delete(s.uploads, key)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", blob.ErrUploadNotFound, key)
	}

	if err := f.Sync(); err != nil {
		f.Close()
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to sync upload for %q: %w", key, err)
	}
	if err := f.Close(); err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to close upload for %q: %w", key, err)
	}

	dst := s.objectPath(key)
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return fmt.Errorf("failed to create parent for %q: %w", key, err)
	}
	if err := os.Rename(f.Name(), dst); err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to publish %q: %w", key, err)
	}
	return nil
}

// AbortUpload discards the staged file for key.
func (s *Store) AbortUpload(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	f, ok := s.uploads[key]
	delete(s.uploads, key)
	s.mu.Unlock()
	if !ok {
		return nil // idempotent
	}

	f.Close()
	os.Remove(f.Name())
	return nil
}

// Ensure Store implements blob.Storage.
var _ blob.Storage = (*Store)(nil)

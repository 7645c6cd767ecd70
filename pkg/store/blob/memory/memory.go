// Package memory implements an in-memory blob store for tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/marmos91/driftflow/pkg/store/blob"
)

const defaultPageSize = 1000

// Store is a map-backed blob store. It mirrors the visibility contract of
// the real backends: an upload's parts are invisible until CompleteUpload.
type Store struct {
	mu       sync.RWMutex
	objects  map[string][]byte
	uploads  map[string][][]byte
	pageSize int
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		objects:  make(map[string][]byte),
		uploads:  make(map[string][][]byte),
		pageSize: defaultPageSize,
	}
}

// NewWithPageSize creates a store with a custom List page size, useful for
// exercising pagination in tests.
func NewWithPageSize(pageSize int) *Store {
	s := New()
	if pageSize > 0 {
		s.pageSize = pageSize
	}
	return s
}

// List returns objects under prefix in lexicographic key order.
func (s *Store) List(ctx context.Context, prefix string, continuation string) (blob.ListPage, error) {
	if err := ctx.Err(); err != nil {
		return blob.ListPage{}, err
	}

	s.mu.RLock()
	keys := make([]string, 0, len(s.objects))
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) && (continuation == "" || k > continuation) {
			keys = append(keys, k)
		}
	}
	sizes := make(map[string]int64, len(keys))
	for _, k := range keys {
		sizes[k] = int64(len(s.objects[k]))
	}
	s.mu.RUnlock()

	sort.Strings(keys)

	page := blob.ListPage{}
	limit := len(keys)
	if limit > s.pageSize {
		limit = s.pageSize
		page.Continuation = keys[limit-1]
	}
	for _, k := range keys[:limit] {
		page.Objects = append(page.Objects, blob.ObjectInfo{Key: k, Size: sizes[k]})
	}
	return page, nil
}

// Download returns a copy of the object's bytes.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, key)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// CreateUpload starts collecting parts for key.
func (s *Store) CreateUpload(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[key] = nil
	return nil
}

// UploadPart appends one part to the upload for key.
func (s *Store) UploadPart(ctx context.Context, key string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parts, ok := s.uploads[key]
	if !ok {
		return fmt.Errorf("%w: %s", blob.ErrUploadNotFound, key)
	}
	part := make([]byte, len(data))
	copy(part, data)
	s.uploads[key] = append(parts, part)
	return nil
}

// CompleteUpload concatenates the parts and publishes the object.
func (s *Store) CompleteUpload(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	parts, ok := s.uploads[key]
	if !ok {
		return fmt.Errorf("%w: %s", blob.ErrUploadNotFound, key)
	}
	delete(s.uploads, key)

	var size int
	for _, p := range parts {
		size += len(p)
	}
	data := make([]byte, 0, size)
	for _, p := range parts {
		data = append(data, p...)
	}
	s.objects[key] = data
	return nil
}

// AbortUpload discards the upload for key.
func (s *Store) AbortUpload(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, key)
	return nil
}

// NumObjects returns the number of published objects, for tests.
func (s *Store) NumObjects() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// Ensure Store implements blob.Storage.
var _ blob.Storage = (*Store)(nil)

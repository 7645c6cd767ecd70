// Package badger implements embedded blob storage on BadgerDB.
//
// This backend serves single-node deployments that want durable checkpoints
// without a directory tree or an object-store bucket. Objects live under a
// key namespace inside one Badger database; upload parts are buffered in
// memory and the object is committed in a single transaction, which gives
// the same publish-atomically contract as the other backends.
package badger

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/driftflow/internal/telemetry"
	"github.com/marmos91/driftflow/pkg/store/blob"
)

// Key namespace: objects are stored as "o:<key>". The prefix keeps room for
// future namespaces (stats, tombstones) without a format change.
const prefixObject = "o:"

const defaultPageSize = 1000

// Config contains configuration for the badger store.
type Config struct {
	// Path is the database directory. Created if it does not exist.
	Path string

	// PageSize overrides the List page size. Defaults to 1000.
	PageSize int

	// InMemory runs Badger without disk persistence, for tests.
	InMemory bool
}

// Store is a BadgerDB-backed blob store.
type Store struct {
	db       *badgerdb.DB
	pageSize int

	mu      sync.Mutex
	uploads map[string][][]byte // key -> buffered parts
}

// New opens (or creates) the database at cfg.Path.
func New(cfg Config) (*Store, error) {
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("badger store requires a path")
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = defaultPageSize
	}

	opts := badgerdb.DefaultOptions(cfg.Path).WithLogger(nil)
	if cfg.InMemory {
		opts = opts.WithInMemory(true).WithDir("").WithValueDir("")
	}

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}

	return &Store{
		db:       db,
		pageSize: pageSize,
		uploads:  make(map[string][][]byte),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// List returns objects under prefix in lexicographic key order.
func (s *Store) List(ctx context.Context, prefix string, continuation string) (blob.ListPage, error) {
	ctx, span := telemetry.StartStorageSpan(ctx, telemetry.SpanStorageList, "badger", "", telemetry.Prefix(prefix))
	defer span.End()

	if err := ctx.Err(); err != nil {
		return blob.ListPage{}, err
	}

	var keys []string
	sizes := make(map[string]int64)

	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixObject + prefix)

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := strings.TrimPrefix(string(item.Key()), prefixObject)
			if continuation != "" && key <= continuation {
				continue
			}
			keys = append(keys, key)
			sizes[key] = item.ValueSize()
		}
		return nil
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return blob.ListPage{}, fmt.Errorf("failed to list %q: %w", prefix, err)
	}

	// Badger iterates in byte order already; sort defensively after the
	// prefix strip so the contract does not depend on iterator internals.
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

// Download returns the object's bytes.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	ctx, span := telemetry.StartStorageSpan(ctx, telemetry.SpanStorageDownload, "badger", key)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var data []byte
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(prefixObject + key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", blob.ErrNotFound, key)
		}
		telemetry.RecordError(ctx, err)
		return nil, fmt.Errorf("failed to read %q: %w", key, err)
	}
	telemetry.SetAttributes(ctx, telemetry.Bytes(len(data)))
	return data, nil
}

// CreateUpload starts buffering parts for key.
func (s *Store) CreateUpload(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.uploads[key] = nil
	return nil
}

// UploadPart buffers one part for key.
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

// CompleteUpload commits the concatenated parts in one transaction.
func (s *Store) CompleteUpload(ctx context.Context, key string) error {
	ctx, span := telemetry.StartStorageSpan(ctx, telemetry.SpanStorageComplete, "badger", key)
	defer span.End()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	parts, ok := s.uploads[key]
	delete(s.uploads, key)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", blob.ErrUploadNotFound, key)
	}

	var size int
	for _, p := range parts {
		size += len(p)
	}
	data := make([]byte, 0, size)
	for _, p := range parts {
		data = append(data, p...)
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		return txn.Set([]byte(prefixObject+key), data)
	})
	if err != nil {
		telemetry.RecordError(ctx, err)
		return fmt.Errorf("failed to publish %q: %w", key, err)
	}
	return nil
}

// AbortUpload discards the buffered parts for key. Idempotent.
func (s *Store) AbortUpload(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.uploads, key)
	return nil
}

// Ensure Store implements blob.Storage.
var _ blob.Storage = (*Store)(nil)

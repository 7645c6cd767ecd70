// Package blob defines the storage abstraction the checkpoint core writes
// to and recovers from.
package blob

import (
	"context"
	"errors"
)

// Standard storage errors.
var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrUploadNotFound indicates a part or completion was issued for a key
	// with no upload in progress.
	ErrUploadNotFound = errors.New("no upload in progress for key")
)

// ObjectInfo describes one stored object in a listing.
type ObjectInfo struct {
	// Key is the full object key.
	Key string

	// Size is the object size in bytes.
	Size int64
}

// ListPage is one page of a listing.
type ListPage struct {
	// Objects are the objects of this page in lexicographic key order.
	Objects []ObjectInfo

	// Continuation resumes the listing on the next call. Empty means the
	// listing is complete.
	Continuation string
}

// Storage provides uniform access to an object store: a local directory, an
// S3 bucket, an embedded badger database, or an in-memory map for tests.
//
// The checkpoint core relies on exactly three properties:
//
//   - List returns keys in lexicographic order, stable across pages while
//     the store is quiescent.
//   - Upload parts are appended in call order and concatenated on
//     CompleteUpload.
//   - An object becomes visible to List and Download atomically when
//     CompleteUpload succeeds; a never-completed upload is never visible.
//
// Keys are forward-slash separated paths. Implementations must be safe for
// concurrent use, though parts of a single upload are always produced by
// one goroutine.
type Storage interface {
	// List returns one page of objects whose keys start with prefix, in
	// lexicographic key order. Pass the previous page's Continuation to
	// resume; pass "" to start from the beginning.
	List(ctx context.Context, prefix string, continuation string) (ListPage, error)

	// Download fetches an entire object. Returns ErrNotFound if no object
	// with this key exists.
	Download(ctx context.Context, key string) ([]byte, error)

	// CreateUpload starts a multipart upload for key. An existing object
	// under the same key is replaced when the upload completes.
	CreateUpload(ctx context.Context, key string) error

	// UploadPart appends one part to the upload for key.
	UploadPart(ctx context.Context, key string, data []byte) error

	// CompleteUpload concatenates all parts of the upload for key and
	// atomically publishes the object.
	CompleteUpload(ctx context.Context, key string) error

	// AbortUpload discards the upload for key without publishing anything.
	// Aborting a key with no upload in progress is a no-op.
	AbortUpload(ctx context.Context, key string) error
}

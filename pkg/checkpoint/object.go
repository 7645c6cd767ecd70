package checkpoint

import (
	"sync"
)

// Object is a writable stream for one storage object, backed by the upload
// queue. Processors use it to persist their opaque state blobs: the core
// never interprets the bytes written here.
//
// Writes enqueue chunks in call order; Close enqueues the completion that
// makes the object visible. An Object must be closed before the checkpoint
// writer that produced it goes out of scope, so the object's commands
// precede the epoch's slice in the queue.
type Object struct {
	queue *Queue
	key   string

	mu     sync.Mutex
	closed bool
}

// NewObject starts a multipart upload for key on the queue.
func NewObject(queue *Queue, key string) (*Object, error) {
	if err := queue.CreateUpload(key); err != nil {
		return nil, err
	}
	return &Object{queue: queue, key: key}, nil
}

// Key returns the storage key this object is written to.
func (o *Object) Key() string {
	return o.key
}

// Write enqueues p as one chunk. The data is copied, so the caller may
// reuse the buffer.
func (o *Object) Write(p []byte) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return 0, ErrObjectClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	data := make([]byte, len(p))
	copy(data, p)
	if err := o.queue.UploadChunk(o.key, data); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close enqueues the upload completion. Closing twice is an error.
func (o *Object) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.closed {
		return ErrObjectClosed
	}
	o.closed = true
	return o.queue.CompleteUpload(o.key)
}

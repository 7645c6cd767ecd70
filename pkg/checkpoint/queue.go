package checkpoint

import (
	"context"
	"sync"

	"github.com/marmos91/driftflow/internal/logger"
	"github.com/marmos91/driftflow/pkg/store/blob"
)

// DefaultQueueCapacity is the default bound of the upload queue.
const DefaultQueueCapacity = 100

// commandKind discriminates upload queue commands.
type commandKind uint8

const (
	cmdCreateUpload commandKind = iota
	cmdUploadChunk
	cmdCompleteUpload
)

// command is one unit of work for the upload worker.
type command struct {
	kind commandKind
	key  string
	data []byte
}

// Queue is the bounded multi-producer, single-consumer queue that feeds the
// background upload worker.
//
// Producers enqueue per-key command sequences Create, Chunk*, Complete; the
// single worker applies them to the blob store strictly in enqueue order, so
// for any one key the store observes the sequence exactly as produced.
// Across keys no interleaving guarantee is made (or needed).
//
// When the queue is full, CreateUpload, UploadChunk and CompleteUpload block
// until the worker catches up. When the worker has terminated, they fail
// with ErrQueueClosed instead of blocking forever.
//
// Upload failures are best-effort by design: the worker logs the error and
// moves on. A slice that loses a command this way is never completed, so it
// stays invisible to recovery; the pipeline then restarts from the previous
// epoch, which is still consistent.
type Queue struct {
	ch      chan command
	done    chan struct{} // closed when the worker has drained and exited
	metrics Metrics

	closeOnce sync.Once
}

// NewQueue creates a queue with the given capacity (messages, not bytes)
// and starts its worker on the given storage. Capacity <= 0 selects
// DefaultQueueCapacity.
//
// The worker owns its storage handle and runs until Close, draining all
// pending commands before exiting.
func NewQueue(storage blob.Storage, capacity int, metrics Metrics) *Queue {
	if capacity <= 0 {
		capacity = DefaultQueueCapacity
	}

	q := &Queue{
		ch:      make(chan command, capacity),
		done:    make(chan struct{}),
		metrics: metrics,
	}
	go q.worker(storage)
	return q
}

// CreateUpload enqueues the start of a multipart upload for key.
func (q *Queue) CreateUpload(key string) error {
	return q.enqueue(command{kind: cmdCreateUpload, key: key})
}

// UploadChunk enqueues one chunk for key.
func (q *Queue) UploadChunk(key string, data []byte) error {
	return q.enqueue(command{kind: cmdUploadChunk, key: key, data: data})
}

// CompleteUpload enqueues the completion of the upload for key. The object
// becomes visible to readers only after the worker processes this command.
func (q *Queue) CompleteUpload(key string) error {
	return q.enqueue(command{kind: cmdCompleteUpload, key: key})
}

// Depth returns the number of pending commands, for observability.
func (q *Queue) Depth() int {
	return len(q.ch)
}

// Close stops accepting commands. The worker drains everything already
// enqueued, then exits; Join blocks until that has happened. Close is
// idempotent.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.ch)
	})
}

// Join blocks until the worker has drained the queue and exited.
func (q *Queue) Join() {
	<-q.done
}

// enqueue sends a command, blocking while the queue is full. It fails with
// ErrQueueClosed once the worker has terminated.
func (q *Queue) enqueue(cmd command) (err error) {
	// A send on a closed channel panics; Close may race with producers
	// during shutdown, and the contract is an error, not a panic.
	defer func() {
		if recover() != nil {
			err = ErrQueueClosed
		}
	}()

	select {
	case q.ch <- cmd:
		if q.metrics != nil {
			q.metrics.SetQueueDepth(len(q.ch))
		}
		return nil
	case <-q.done:
		return ErrQueueClosed
	}
}

// worker applies commands to storage in order until the queue is closed.
func (q *Queue) worker(storage blob.Storage) {
	defer close(q.done)

	ctx := context.Background()

	// Keys whose upload already failed; their Complete aborts the partial
	// object instead of publishing it.
	failed := make(map[string]bool)

	for cmd := range q.ch {
		if q.metrics != nil {
			q.metrics.SetQueueDepth(len(q.ch))
		}

		var err error
		switch cmd.kind {
		case cmdCreateUpload:
			err = storage.CreateUpload(ctx, cmd.key)
		case cmdUploadChunk:
			if failed[cmd.key] {
				continue
			}
			err = storage.UploadPart(ctx, cmd.key, cmd.data)
		case cmdCompleteUpload:
			if failed[cmd.key] {
				delete(failed, cmd.key)
				if abortErr := storage.AbortUpload(ctx, cmd.key); abortErr != nil {
					logger.Warn("Failed to abort partial upload",
						logger.KeyKey, cmd.key,
						logger.KeyError, abortErr)
				}
				continue
			}
			err = storage.CompleteUpload(ctx, cmd.key)
		}

		if err != nil {
			// Log and continue with the next command; see the type comment
			// for why upload errors are not fatal here.
			failed[cmd.key] = true
			logger.Error("Upload command failed",
				logger.KeyKey, cmd.key,
				logger.KeyError, err)
			if q.metrics != nil {
				q.metrics.RecordUploadError()
			}
		}
	}
}

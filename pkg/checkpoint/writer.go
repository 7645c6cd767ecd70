package checkpoint

import (
	"sync"

	"github.com/marmos91/driftflow/internal/logger"
	"github.com/marmos91/driftflow/pkg/node"
)

// Writer is the per-epoch checkpoint handle.
//
// Processors obtain their state objects from it during the epoch; closing
// the writer is the epoch's commit point. Close must run on every exit
// path, success or failure, exactly once — the Go rendition of a
// drop-based commit — and it never panics: a failed commit enqueue is
// logged and returned, and the pipeline's health monitoring picks up the
// inconsistency at the next checkpoint cycle.
//
// The writer moves Open → Draining (all processor objects finalized) →
// Committing → Committed/Failed. Only the first transition is observable
// from outside; the rest happens inside Close.
//
// Close may block when the upload queue is full. That is safe from any
// goroutine, but callers on a latency-sensitive path should close the
// writer from a dedicated goroutine.
type Writer struct {
	factory         *Factory
	epochID         uint64
	recordStoreKey  string
	sourceStates    node.SourceStates // frozen before construction, shared immutable
	processorPrefix string

	closeOnce sync.Once
	closeErr  error
}

// EpochID returns the epoch this writer commits.
func (w *Writer) EpochID() uint64 {
	return w.epochID
}

// Queue returns the upload queue, so processors can create their own
// multipart uploads next to the managed state objects.
func (w *Writer) Queue() *Queue {
	return w.factory.queue
}

// CreateProcessorObject returns a writable stream for one processor's
// opaque state blob, keyed under this epoch's processor prefix. The caller
// writes the bytes and must Close the object before the writer is closed.
func (w *Writer) CreateProcessorObject(handle node.Handle) (*Object, error) {
	key := processorKey(w.processorPrefix, handle)
	obj, err := NewObject(w.factory.queue, key)
	if err != nil {
		return nil, ErrCheckpointWriterStopped
	}
	return obj, nil
}

// Close commits the epoch: it serializes the record store slice for this
// epoch and enqueues its upload behind everything the epoch already wrote.
// Safe to call multiple times; only the first call commits.
func (w *Writer) Close() error {
	w.closeOnce.Do(func() {
		err := w.factory.writeRecordStoreSlice(w.recordStoreKey, w.sourceStates)
		if err != nil {
			logger.Error("Failed to write record store slice",
				logger.KeyEpoch, w.epochID,
				logger.KeyKey, w.recordStoreKey,
				logger.KeyError, err)
			w.closeErr = err
		}
	})
	return w.closeErr
}

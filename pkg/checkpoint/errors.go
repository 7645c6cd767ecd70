package checkpoint

import (
	"errors"
	"fmt"
)

var (
	// ErrQueueClosed is returned by queue operations after the upload
	// worker has terminated.
	ErrQueueClosed = errors.New("upload queue is closed")

	// ErrCheckpointWriterStopped is returned when a commit cannot be enqueued because
	// the upload worker is gone. It corresponds to a checkpoint writer
	// whose backing thread has panicked or shut down underneath it.
	ErrCheckpointWriterStopped = errors.New("checkpoint writer stopped: upload worker is gone")

	// ErrObjectClosed is returned when writing to or closing an already
	// finalized processor object.
	ErrObjectClosed = errors.New("object already closed")
)

// UnrecognizedCheckpointError is returned during recovery when a key under
// the record store prefix does not parse as an epoch id.
type UnrecognizedCheckpointError struct {
	Key string
}

func (e *UnrecognizedCheckpointError) Error() string {
	return fmt.Sprintf("unrecognized checkpoint %q", e.Key)
}

// NotEnoughDataError is returned during recovery when a slice's header
// claims more bytes than the object holds.
type NotEnoughDataError struct {
	Expected  int
	Remaining int
}

func (e *NotEnoughDataError) Error() string {
	return fmt.Sprintf("not enough data, expected %d, remaining %d", e.Expected, e.Remaining)
}

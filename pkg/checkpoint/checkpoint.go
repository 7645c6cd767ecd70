// Package checkpoint implements the checkpoint core of the dataflow
// engine: durable, restartable snapshots of the shared record store, the
// source replay positions, and every processor's opaque state.
//
// One Factory exists per pipeline. It owns the record store and the upload
// queue, and mints one Writer per epoch. Dropping (closing) the writer is
// the commit point: it serializes the record store delta accumulated during
// the epoch and enqueues the slice upload behind the processor state
// objects written through the same queue. On startup the factory replays
// whatever slices exist in storage and hands back the descriptor of the
// latest committed epoch.
package checkpoint

import (
	"github.com/marmos91/driftflow/pkg/node"
)

// Checkpoint describes the latest committed checkpoint found in storage.
// A nil *Checkpoint means storage held no completed slice; every accessor
// is nil-safe so callers can use the descriptor without presence checks.
type Checkpoint struct {
	numSlices       int
	epochID         uint64
	sourceStates    node.SourceStates
	processorPrefix string
}

// NumSlices returns the number of record store slices in storage, zero if
// no checkpoint is present.
func (c *Checkpoint) NumSlices() int {
	if c == nil {
		return 0
	}
	return c.numSlices
}

// EpochID returns the epoch of the latest committed checkpoint. Only
// meaningful when NumSlices() > 0.
func (c *Checkpoint) EpochID() uint64 {
	if c == nil {
		return 0
	}
	return c.epochID
}

// NextEpochID returns the epoch the pipeline should resume at: one past
// the committed epoch, or zero when no checkpoint is present.
func (c *Checkpoint) NextEpochID() uint64 {
	if c == nil {
		return 0
	}
	return c.epochID + 1
}

// SourceState returns the committed replay position for a source node.
func (c *Checkpoint) SourceState(handle node.Handle) (node.Position, bool) {
	if c == nil {
		return node.Position{}, false
	}
	pos, ok := c.sourceStates[handle]
	return pos, ok
}

// SourceStates returns the full committed source-states map. Callers must
// treat it as immutable.
func (c *Checkpoint) SourceStates() node.SourceStates {
	if c == nil {
		return nil
	}
	return c.sourceStates
}

// ProcessorPrefix returns the storage prefix of the checkpoint's processor
// state objects.
func (c *Checkpoint) ProcessorPrefix() string {
	if c == nil {
		return ""
	}
	return c.processorPrefix
}

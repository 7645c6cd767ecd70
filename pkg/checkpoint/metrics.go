package checkpoint

import "time"

// Metrics is an optional collector for checkpoint metrics. A nil Metrics
// disables collection with zero overhead.
type Metrics interface {
	// ObserveCommit records one epoch commit: how long serialization and
	// enqueueing took, how many records the slice carried, and the outcome.
	ObserveCommit(duration time.Duration, records uint64, err error)

	// ObserveRecovery records one recovery run: duration and slices loaded.
	ObserveRecovery(duration time.Duration, numSlices int)

	// SetQueueDepth records the current upload queue depth.
	SetQueueDepth(depth int)

	// RecordUploadError counts a failed upload command.
	RecordUploadError()
}

package logger

// Standard field keys for structured logging.
// Use these keys consistently across all log statements so checkpoint
// activity can be aggregated and queried by epoch, storage key, or node.
const (
	// Distributed tracing
	KeyTraceID = "trace_id" // OpenTelemetry trace ID for request correlation
	KeySpanID  = "span_id"  // OpenTelemetry span ID for operation tracking

	// Checkpoint lifecycle
	KeyEpoch     = "epoch"      // Epoch id of the checkpoint being written or restored
	KeyKey       = "key"        // Storage object key
	KeyPrefix    = "prefix"     // Storage key prefix
	KeyNode      = "node"       // Node handle of a processor
	KeyNumSlices = "num_slices" // Record store slice count

	// Record store
	KeyRecords = "records" // Record count
	KeyIndex   = "index"   // Record index

	// Upload queue
	KeyQueueDepth = "queue_depth" // Pending commands in the upload queue
	KeyBytes      = "bytes"       // Payload size in bytes

	// Storage backends
	KeyBackend = "backend" // Storage backend name: local, s3, badger, memory
	KeyBucket  = "bucket"  // S3 bucket name
	KeyPath    = "path"    // Local directory or badger path

	// Errors
	KeyError = "error" // Error value
)

package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Common attribute keys for checkpoint and storage operations.
// These follow OpenTelemetry semantic conventions where applicable.
const (
	// Storage backend attributes
	AttrStoreName = "store.name" // local, s3, badger, memory
	AttrBucket    = "storage.bucket"
	AttrKey       = "storage.key"
	AttrPrefix    = "storage.prefix"
	AttrRegion    = "storage.region"
	AttrBytes     = "storage.bytes"

	// Checkpoint attributes
	AttrEpoch      = "checkpoint.epoch"
	AttrNumSlices  = "checkpoint.num_slices"
	AttrNodeHandle = "checkpoint.node"
	AttrRecords    = "checkpoint.records"

	// Upload queue attributes
	AttrQueueDepth = "queue.depth"
)

// Span names for internal operations.
// Format: <component>.<operation>
const (
	SpanStorageList     = "storage.list"
	SpanStorageDownload = "storage.download"
	SpanStorageComplete = "storage.complete_upload"

	SpanCheckpointRecover = "checkpoint.recover"
	SpanCheckpointLoad    = "checkpoint.load_processor_data"
)

// StartStorageSpan starts a span for a storage operation.
func StartStorageSpan(ctx context.Context, name, storeName, key string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	base := []attribute.KeyValue{
		attribute.String(AttrStoreName, storeName),
	}
	if key != "" {
		base = append(base, attribute.String(AttrKey, key))
	}
	base = append(base, attrs...)
	return StartSpan(ctx, name, trace.WithAttributes(base...))
}

// StartCheckpointSpan starts a span for a checkpoint operation.
func StartCheckpointSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return StartSpan(ctx, name, trace.WithAttributes(attrs...))
}

// Epoch returns an attribute for a checkpoint epoch id.
func Epoch(id uint64) attribute.KeyValue {
	return attribute.Int64(AttrEpoch, int64(id))
}

// Bytes returns an attribute for a payload size.
func Bytes(n int) attribute.KeyValue {
	return attribute.Int(AttrBytes, n)
}

// Prefix returns an attribute for a storage key prefix.
func Prefix(p string) attribute.KeyValue {
	return attribute.String(AttrPrefix, p)
}

// NumSlices returns an attribute for a recovered slice count.
func NumSlices(n int) attribute.KeyValue {
	return attribute.Int(AttrNumSlices, n)
}

package checkpoint

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/marmos91/driftflow/internal/logger"
	"github.com/marmos91/driftflow/internal/telemetry"
	"github.com/marmos91/driftflow/pkg/node"
	"github.com/marmos91/driftflow/pkg/records"
	"github.com/marmos91/driftflow/pkg/store"
	"github.com/marmos91/driftflow/pkg/store/blob"
)

// FactoryOptions configures checkpoint factory construction.
type FactoryOptions struct {
	// StorageConfig selects the storage backend. The zero value is local
	// directory storage.
	StorageConfig store.Config

	// PersistQueueCapacity bounds the upload queue, in messages.
	// Defaults to DefaultQueueCapacity.
	PersistQueueCapacity int

	// Metrics is an optional metrics collector.
	Metrics Metrics
}

// Factory owns the pipeline's record store and upload queue and mints one
// Writer per epoch. It lives as long as the pipeline does.
type Factory struct {
	queue   *Queue
	storage blob.Storage // retained for accessors and test-time direct reads
	prefix  string

	recordStore *records.Store
	metrics     Metrics

	// mu guards nextRecordIndex. It is held only across slice
	// serialization, never across a queue send.
	mu              sync.Mutex
	nextRecordIndex uint64
}

// NewFactory resolves storage, recovers the record store from whatever
// slices exist under checkpointDir, and starts the upload worker.
//
// The returned Checkpoint is the descriptor of the latest committed epoch,
// nil when storage was empty. Construction errors (storage, recovery)
// always propagate; the factory is never returned partially initialized.
func NewFactory(ctx context.Context, checkpointDir string, opts FactoryOptions) (*Factory, *Checkpoint, error) {
	storage, prefix, err := store.NewStorage(ctx, opts.StorageConfig, checkpointDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create checkpoint storage: %w", err)
	}

	recordStore, last, err := readRecordStoreSlices(ctx, storage, prefix, opts.Metrics)
	if err != nil {
		return nil, nil, err
	}
	if last != nil {
		logger.Info("Restored record store from checkpoint",
			logger.KeyNumSlices, last.numSlices,
			logger.KeyEpoch, last.epochID,
			logger.KeyPrefix, last.processorPrefix,
			logger.KeyRecords, recordStore.NumRecords())
	}

	// The worker gets the same storage handle; the factory keeps its own
	// reference for accessors and processor data loads.
	queue := NewQueue(storage, opts.PersistQueueCapacity, opts.Metrics)

	return &Factory{
		queue:           queue,
		storage:         storage,
		prefix:          prefix,
		recordStore:     recordStore,
		metrics:         opts.Metrics,
		nextRecordIndex: recordStore.NumRecords(),
	}, last, nil
}

// Storage returns the factory's storage handle.
func (f *Factory) Storage() blob.Storage {
	return f.storage
}

// Prefix returns the factory's key prefix.
func (f *Factory) Prefix() string {
	return f.prefix
}

// RecordStore returns the shared record store.
func (f *Factory) RecordStore() *records.Store {
	return f.recordStore
}

// Queue returns the upload queue.
func (f *Factory) Queue() *Queue {
	return f.queue
}

// Close shuts the upload queue down and waits for the worker to drain all
// pending commands. Call after the last writer has been closed.
func (f *Factory) Close() {
	f.queue.Close()
	f.queue.Join()
}

// LoadProcessorData downloads a processor's state blob from the given
// checkpoint. Returns nil bytes when no checkpoint is present.
func (f *Factory) LoadProcessorData(ctx context.Context, ckpt *Checkpoint, handle node.Handle) ([]byte, error) {
	if ckpt == nil {
		return nil, nil
	}

	key := processorKey(ckpt.processorPrefix, handle)

	ctx, span := telemetry.StartCheckpointSpan(ctx, telemetry.SpanCheckpointLoad)
	defer span.End()

	logger.Info("Restoring processor state",
		logger.KeyNode, handle.String(),
		logger.KeyKey, key)

	data, err := f.storage.Download(ctx, key)
	if err != nil {
		telemetry.RecordError(ctx, err)
		return nil, err
	}
	return data, nil
}

// CreateWriter mints the writer for one epoch. The source-states map must
// be frozen before this call; the writer treats it as immutable.
func (f *Factory) CreateWriter(epochID uint64, sourceStates node.SourceStates) *Writer {
	epochKey := formatEpoch(epochID)
	return &Writer{
		factory:         f,
		epochID:         epochID,
		recordStoreKey:  sliceKey(f.prefix, epochKey),
		sourceStates:    sourceStates,
		processorPrefix: processorPrefix(f.prefix, epochKey),
	}
}

// writeRecordStoreSlice serializes the record store delta since the last
// commit and enqueues the slice upload. Called from Writer.Close.
//
// The commit mutex covers only the serialization and the index bump; it is
// released before any queue send, so a full queue can never block other
// commits' serialization (and the worker never takes this mutex, so the
// send cannot deadlock).
func (f *Factory) writeRecordStoreSlice(key string, sourceStates node.SourceStates) error {
	start := time.Now()

	f.mu.Lock()
	data, n, err := f.recordStore.SerializeSlice(f.nextRecordIndex)
	if err != nil {
		f.mu.Unlock()
		return fmt.Errorf("failed to serialize record store slice: %w", err)
	}
	f.nextRecordIndex += n
	f.mu.Unlock()

	err = f.writeRecordStoreSliceData(key, sourceStates, data)
	if f.metrics != nil {
		f.metrics.ObserveCommit(time.Since(start), n, err)
	}
	if err != nil {
		return fmt.Errorf("%w: %s", ErrCheckpointWriterStopped, key)
	}
	return nil
}

// writeRecordStoreSliceData enqueues the four chunks of a slice object in
// order: header length, source states, record delta, completion.
func (f *Factory) writeRecordStoreSliceData(key string, sourceStates node.SourceStates, data []byte) error {
	states := node.EncodeSourceStates(sourceStates)

	var header [8]byte
	binary.LittleEndian.PutUint64(header[:], uint64(len(states)))

	if err := f.queue.CreateUpload(key); err != nil {
		return err
	}
	if err := f.queue.UploadChunk(key, header[:]); err != nil {
		return err
	}
	if err := f.queue.UploadChunk(key, states); err != nil {
		return err
	}
	if err := f.queue.UploadChunk(key, data); err != nil {
		return err
	}
	return f.queue.CompleteUpload(key)
}

package checkpoint

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/marmos91/driftflow/internal/logger"
	"github.com/marmos91/driftflow/internal/telemetry"
	"github.com/marmos91/driftflow/pkg/records"
	"github.com/marmos91/driftflow/pkg/store/blob"
)

// readRecordStoreSlices rebuilds the record store from storage and returns
// the descriptor of the latest committed checkpoint.
//
// Slices are listed under <factoryPrefix>/record_store/ and applied in
// listing order. Because epoch keys are zero-padded to 20 digits,
// lexicographic listing order is numeric epoch order, so concatenating the
// deltas reproduces the exact record store and the last object of the last
// page carries the source states the pipeline must resume from.
//
// Any error — an unparsable key, a short slice, a failed download — aborts
// recovery; the caller never sees a partially initialized store. The walk
// honors ctx between pages, so construction is cancellable.
func readRecordStoreSlices(ctx context.Context, storage blob.Storage, factoryPrefix string, metrics Metrics) (*records.Store, *Checkpoint, error) {
	ctx, span := telemetry.StartCheckpointSpan(ctx, telemetry.SpanCheckpointRecover)
	defer span.End()

	start := time.Now()
	recordStore := records.NewStore()
	prefix := recordStorePrefix(factoryPrefix) + "/"

	var last *Checkpoint
	continuation := ""
	for {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		page, err := storage.List(ctx, prefix, continuation)
		if err != nil {
			telemetry.RecordError(ctx, err)
			return nil, nil, err
		}

		if len(page.Objects) > 0 {
			tail := page.Objects[len(page.Objects)-1]

			epochKey, ok := strings.CutPrefix(tail.Key, prefix)
			if !ok {
				return nil, nil, &UnrecognizedCheckpointError{Key: tail.Key}
			}
			epochID, err := strconv.ParseUint(epochKey, 10, 64)
			if err != nil {
				return nil, nil, &UnrecognizedCheckpointError{Key: tail.Key}
			}

			data, err := storage.Download(ctx, tail.Key)
			if err != nil {
				return nil, nil, err
			}
			sourceStates, _, err := parseSliceData(data)
			if err != nil {
				return nil, nil, err
			}

			if last == nil {
				last = &Checkpoint{
					numSlices:       len(page.Objects),
					epochID:         epochID,
					sourceStates:    sourceStates,
					processorPrefix: processorPrefix(factoryPrefix, epochKey),
				}
			} else {
				last.numSlices += len(page.Objects)
				last.epochID = epochID
				last.sourceStates = sourceStates
				last.processorPrefix = processorPrefix(factoryPrefix, epochKey)
			}
		}

		for _, object := range page.Objects {
			logger.Debug("Downloading checkpoint slice", logger.KeyKey, object.Key)
			data, err := storage.Download(ctx, object.Key)
			if err != nil {
				return nil, nil, err
			}
			_, delta, err := parseSliceData(data)
			if err != nil {
				return nil, nil, err
			}
			if err := recordStore.DeserializeAndExtend(delta); err != nil {
				return nil, nil, err
			}
		}

		continuation = page.Continuation
		if continuation == "" {
			break
		}
	}

	if last != nil {
		telemetry.SetAttributes(ctx, telemetry.Epoch(last.epochID), telemetry.NumSlices(last.numSlices))
	}
	if metrics != nil {
		metrics.ObserveRecovery(time.Since(start), last.NumSlices())
	}
	return recordStore, last, nil
}

package checkpoint

import (
	"fmt"
	"path"

	"github.com/marmos91/driftflow/pkg/node"
)

// RecordStoreDir is the directory under the factory prefix that holds
// record store slices.
const RecordStoreDir = "record_store"

// formatEpoch formats an epoch id as a zero-padded 20-digit decimal, wide
// enough for the full uint64 range. Many object stores only offer
// lexicographic listing, so this padding is what makes listing order equal
// numeric epoch order; recovery depends on it.
func formatEpoch(epochID uint64) string {
	return fmt.Sprintf("%020d", epochID)
}

// recordStorePrefix returns the key prefix of record store slices.
func recordStorePrefix(factoryPrefix string) string {
	return path.Join(factoryPrefix, RecordStoreDir)
}

// sliceKey returns the key of the slice committed for an epoch.
func sliceKey(factoryPrefix, epochKey string) string {
	return path.Join(recordStorePrefix(factoryPrefix), epochKey)
}

// processorPrefix returns the key prefix of an epoch's processor state
// objects.
func processorPrefix(factoryPrefix, epochKey string) string {
	return path.Join(factoryPrefix, epochKey)
}

// processorKey returns the key of one processor's state object.
func processorKey(processorPrefix string, handle node.Handle) string {
	return path.Join(processorPrefix, handle.String())
}

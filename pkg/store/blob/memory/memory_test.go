package memory

import (
	"testing"

	"github.com/marmos91/driftflow/pkg/store/blob"
	"github.com/marmos91/driftflow/pkg/store/blob/blobtest"
)

func TestMemoryStore_Conformance(t *testing.T) {
	blobtest.RunStorageTests(t, func(t *testing.T) blob.Storage {
		return New()
	})
}

func TestMemoryStore_Pagination(t *testing.T) {
	blobtest.RunPaginationTests(t, func(t *testing.T) blob.Storage {
		return NewWithPageSize(7)
	}, 7)
}

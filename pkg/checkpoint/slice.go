package checkpoint

import (
	"encoding/binary"
	"fmt"

	"github.com/marmos91/driftflow/pkg/node"
)

// Slice object layout (little-endian):
//
//	[ 8 bytes : u64 source_states_len ]
//	[ source_states_len bytes : source-states map ]
//	[ remaining bytes : record store delta ]
//
// The header length is written as its own chunk, then the source states,
// then the delta, so the upload worker streams the slice without
// assembling it in one buffer.

// parseSliceData splits a slice object into its source-states map and the
// record delta bytes that follow it.
func parseSliceData(data []byte) (node.SourceStates, []byte, error) {
	if len(data) < 8 {
		return nil, nil, &NotEnoughDataError{Expected: 8, Remaining: len(data)}
	}
	statesLen := binary.LittleEndian.Uint64(data[:8])
	data = data[8:]

	if uint64(len(data)) < statesLen {
		return nil, nil, &NotEnoughDataError{Expected: int(statesLen), Remaining: len(data)}
	}

	states, err := node.DecodeSourceStates(data[:statesLen])
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode source states: %w", err)
	}

	return states, data[statesLen:], nil
}

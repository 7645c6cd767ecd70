// Package node defines the identifiers that tie checkpoint state to the
// dataflow graph: processor node handles, source replay positions, and the
// per-epoch source-states map.
package node

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Handle is a stable identifier for a processor instance in the dataflow
// graph. A handle is an optional numeric scope plus a textual id; the scope
// distinguishes instances of the same processor across pipeline sections.
//
// The string form is "<scope>-<id>" when the scope is present and "<id>"
// otherwise. The string form is used as a storage key segment, so ids must
// not contain forward slashes.
type Handle struct {
	// Scope is the optional numeric scope. Valid only when HasScope is true.
	Scope uint16

	// HasScope indicates whether Scope is meaningful.
	HasScope bool

	// ID is the textual identifier of the node.
	ID string
}

// NewHandle creates a handle with a scope.
func NewHandle(scope uint16, id string) Handle {
	return Handle{Scope: scope, HasScope: true, ID: id}
}

// NewUnscopedHandle creates a handle without a scope.
func NewUnscopedHandle(id string) Handle {
	return Handle{ID: id}
}

// String returns the storage form of the handle: "[<scope>-]<id>".
func (h Handle) String() string {
	if h.HasScope {
		return fmt.Sprintf("%d-%s", h.Scope, h.ID)
	}
	return h.ID
}

// ParseHandle parses the storage form produced by String.
//
// A leading "<digits>-" is read as the scope; anything else is the id.
// An id that happens to start with digits but has no dash parses as an
// unscoped handle, matching what String produces.
func ParseHandle(s string) (Handle, error) {
	if s == "" {
		return Handle{}, fmt.Errorf("empty node handle")
	}
	if i := strings.IndexByte(s, '-'); i > 0 {
		if scope, err := strconv.ParseUint(s[:i], 10, 16); err == nil {
			return Handle{Scope: uint16(scope), HasScope: true, ID: s[i+1:]}, nil
		}
	}
	return Handle{ID: s}, nil
}

// Position is the replay coordinate of a source connector: the transaction
// id and the sequence number inside that transaction from which the source
// can resume producing operations.
type Position struct {
	TxnID    uint64
	SeqInTxn uint64
}

// NewPosition creates a position.
func NewPosition(txnID, seqInTxn uint64) Position {
	return Position{TxnID: txnID, SeqInTxn: seqInTxn}
}

// String returns "<txn>:<seq>" for logging.
func (p Position) String() string {
	return fmt.Sprintf("%d:%d", p.TxnID, p.SeqInTxn)
}

// SourceStates maps every source node to the position it had reached at an
// epoch boundary. The map is frozen before a checkpoint writer is created
// and treated as immutable from then on.
type SourceStates map[Handle]Position

// Clone returns a copy of the map.
func (s SourceStates) Clone() SourceStates {
	out := make(SourceStates, len(s))
	for h, p := range s {
		out[h] = p
	}
	return out
}

// Equal reports whether two maps hold the same entries.
func (s SourceStates) Equal(other SourceStates) bool {
	if len(s) != len(other) {
		return false
	}
	for h, p := range s {
		if op, ok := other[h]; !ok || op != p {
			return false
		}
	}
	return true
}

// sortedHandles returns the map's handles ordered by string form. Encoding
// iterates in this order so equal maps encode to equal bytes.
func (s SourceStates) sortedHandles() []Handle {
	handles := make([]Handle, 0, len(s))
	for h := range s {
		handles = append(handles, h)
	}
	sort.Slice(handles, func(i, j int) bool {
		return handles[i].String() < handles[j].String()
	})
	return handles
}

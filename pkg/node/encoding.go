package node

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// Source-states wire format.
//
// The encoding is little-endian with fixed-width integers and
// length-prefixed strings, and it is stable across releases: checkpoint
// slices written by one version must decode in every later version.
//
//	[u64 count]
//	per entry, ordered by node handle string form:
//	  [u8  hasScope]
//	  [u16 scope]        -- present only when hasScope == 1
//	  [u32 idLen][idLen bytes id]
//	  [u64 txnID]
//	  [u64 seqInTxn]
//
// Sorting makes the encoding deterministic, so equal maps produce equal
// bytes regardless of map iteration order.

// EncodeSourceStates serializes the map into its wire format.
func EncodeSourceStates(states SourceStates) []byte {
	var buf bytes.Buffer

	writeUint64(&buf, uint64(len(states)))
	for _, h := range states.sortedHandles() {
		p := states[h]
		if h.HasScope {
			buf.WriteByte(1)
			writeUint16(&buf, h.Scope)
		} else {
			buf.WriteByte(0)
		}
		writeString(&buf, h.ID)
		writeUint64(&buf, p.TxnID)
		writeUint64(&buf, p.SeqInTxn)
	}

	return buf.Bytes()
}

// DecodeSourceStates parses the wire format produced by EncodeSourceStates.
func DecodeSourceStates(data []byte) (SourceStates, error) {
	r := bytes.NewReader(data)

	count, err := readUint64(r)
	if err != nil {
		return nil, fmt.Errorf("read source states count: %w", err)
	}

	states := make(SourceStates, count)
	for i := uint64(0); i < count; i++ {
		hasScope, err := r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("read scope flag: %w", err)
		}

		var h Handle
		switch hasScope {
		case 1:
			scope, err := readUint16(r)
			if err != nil {
				return nil, fmt.Errorf("read scope: %w", err)
			}
			h.Scope = scope
			h.HasScope = true
		case 0:
		default:
			return nil, fmt.Errorf("invalid scope flag %d", hasScope)
		}

		h.ID, err = readString(r)
		if err != nil {
			return nil, fmt.Errorf("read node id: %w", err)
		}

		var p Position
		if p.TxnID, err = readUint64(r); err != nil {
			return nil, fmt.Errorf("read txn id: %w", err)
		}
		if p.SeqInTxn, err = readUint64(r); err != nil {
			return nil, fmt.Errorf("read seq in txn: %w", err)
		}

		states[h] = p
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after source states", r.Len())
	}

	return states, nil
}

func writeUint16(buf *bytes.Buffer, v uint16) {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func writeString(buf *bytes.Buffer, s string) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(len(s)))
	buf.Write(b[:])
	buf.WriteString(s)
}

func readUint16(r *bytes.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readString(r *bytes.Reader) (string, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", err
	}
	n := binary.LittleEndian.Uint32(b[:])
	if uint32(r.Len()) < n {
		return "", fmt.Errorf("string length %d exceeds remaining %d bytes", n, r.Len())
	}
	s := make([]byte, n)
	if _, err := io.ReadFull(r, s); err != nil {
		return "", err
	}
	return string(s), nil
}

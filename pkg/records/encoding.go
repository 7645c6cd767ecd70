package records

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"time"
)

// Record delta wire format.
//
// Like the source-states encoding, this is little-endian, fixed-width, and
// stable across releases. A delta is:
//
//	[u64 recordCount]
//	per record:
//	  [u32 fieldCount]
//	  per field: [u8 kind] + payload
//
// Field payloads:
//
//	null                       (none)
//	uint                       u64
//	int                        i64
//	float                      f64 (IEEE 754 bits)
//	boolean                    u8 (0 or 1)
//	string / text / json       u32 length + bytes
//	binary                     u32 length + bytes
//	decimal                    i64 mantissa + u8 scale
//	timestamp                  i64 unix nanoseconds + i32 UTC offset seconds
//	date                       i32 year + u8 month + u8 day
//	duration                   i64 nanoseconds
//	point                      f64 x + f64 y
//
// The per-record encoding is canonical: equal records produce equal bytes.
// The store uses it both as the interning key and as the persisted form.

// EncodeRecord returns the canonical encoding of a single record.
func EncodeRecord(rec Record) []byte {
	var buf bytes.Buffer
	encodeRecord(&buf, rec)
	return buf.Bytes()
}

func encodeRecord(buf *bytes.Buffer, rec Record) {
	writeUint32(buf, uint32(len(rec)))
	for i := range rec {
		encodeField(buf, &rec[i])
	}
}

func encodeField(buf *bytes.Buffer, f *Field) {
	buf.WriteByte(byte(f.Kind))

	switch f.Kind {
	case KindNull:
	case KindUInt:
		writeUint64(buf, f.UInt)
	case KindInt:
		writeUint64(buf, uint64(f.Int))
	case KindFloat:
		writeUint64(buf, math.Float64bits(f.Float))
	case KindBoolean:
		if f.Boolean {
			buf.WriteByte(1)
		} else {
			buf.WriteByte(0)
		}
	case KindString, KindText, KindJSON:
		writeUint32(buf, uint32(len(f.Str)))
		buf.WriteString(f.Str)
	case KindBinary:
		writeUint32(buf, uint32(len(f.Binary)))
		buf.Write(f.Binary)
	case KindDecimal:
		writeUint64(buf, uint64(f.Decimal.Mantissa))
		buf.WriteByte(f.Decimal.Scale)
	case KindTimestamp:
		writeUint64(buf, uint64(f.Time.UnixNano()))
		_, offset := f.Time.Zone()
		writeUint32(buf, uint32(int32(offset)))
	case KindDate:
		year, month, day := f.Time.Date()
		writeUint32(buf, uint32(int32(year)))
		buf.WriteByte(byte(month))
		buf.WriteByte(byte(day))
	case KindDuration:
		writeUint64(buf, uint64(f.Dur))
	case KindPoint:
		writeUint64(buf, math.Float64bits(f.Point.X))
		writeUint64(buf, math.Float64bits(f.Point.Y))
	}
}

func decodeRecord(r *bytes.Reader) (Record, error) {
	fieldCount, err := readUint32(r)
	if err != nil {
		return nil, fmt.Errorf("read field count: %w", err)
	}

	rec := make(Record, 0, fieldCount)
	for i := uint32(0); i < fieldCount; i++ {
		f, err := decodeField(r)
		if err != nil {
			return nil, fmt.Errorf("field %d: %w", i, err)
		}
		rec = append(rec, f)
	}
	return rec, nil
}

func decodeField(r *bytes.Reader) (Field, error) {
	kindByte, err := r.ReadByte()
	if err != nil {
		return Field{}, err
	}
	kind := FieldKind(kindByte)

	var f Field
	f.Kind = kind

	switch kind {
	case KindNull:
	case KindUInt:
		if f.UInt, err = readUint64(r); err != nil {
			return Field{}, err
		}
	case KindInt:
		v, err := readUint64(r)
		if err != nil {
			return Field{}, err
		}
		f.Int = int64(v)
	case KindFloat:
		v, err := readUint64(r)
		if err != nil {
			return Field{}, err
		}
		f.Float = math.Float64frombits(v)
	case KindBoolean:
		b, err := r.ReadByte()
		if err != nil {
			return Field{}, err
		}
		f.Boolean = b != 0
	case KindString, KindText, KindJSON:
		if f.Str, err = readBytesAsString(r); err != nil {
			return Field{}, err
		}
	case KindBinary:
		s, err := readBytesAsString(r)
		if err != nil {
			return Field{}, err
		}
		f.Binary = []byte(s)
	case KindDecimal:
		m, err := readUint64(r)
		if err != nil {
			return Field{}, err
		}
		scale, err := r.ReadByte()
		if err != nil {
			return Field{}, err
		}
		f.Decimal = Decimal{Mantissa: int64(m), Scale: scale}
	case KindTimestamp:
		nanos, err := readUint64(r)
		if err != nil {
			return Field{}, err
		}
		offBits, err := readUint32(r)
		if err != nil {
			return Field{}, err
		}
		offset := int(int32(offBits))
		loc := time.UTC
		if offset != 0 {
			loc = time.FixedZone("", offset)
		}
		f.Time = time.Unix(0, int64(nanos)).In(loc)
	case KindDate:
		yearBits, err := readUint32(r)
		if err != nil {
			return Field{}, err
		}
		month, err := r.ReadByte()
		if err != nil {
			return Field{}, err
		}
		day, err := r.ReadByte()
		if err != nil {
			return Field{}, err
		}
		f.Time = time.Date(int(int32(yearBits)), time.Month(month), int(day), 0, 0, 0, 0, time.UTC)
	case KindDuration:
		v, err := readUint64(r)
		if err != nil {
			return Field{}, err
		}
		f.Dur = time.Duration(v)
	case KindPoint:
		x, err := readUint64(r)
		if err != nil {
			return Field{}, err
		}
		y, err := readUint64(r)
		if err != nil {
			return Field{}, err
		}
		f.Point = Point{X: math.Float64frombits(x), Y: math.Float64frombits(y)}
	default:
		return Field{}, fmt.Errorf("unknown field kind %d", kindByte)
	}

	return f, nil
}

// encodeDelta serializes a run of records as a delta blob.
func encodeDelta(recs []Record) []byte {
	var buf bytes.Buffer
	writeUint64(&buf, uint64(len(recs)))
	for _, rec := range recs {
		encodeRecord(&buf, rec)
	}
	return buf.Bytes()
}

// decodeDelta parses a delta blob back into records.
func decodeDelta(data []byte) ([]Record, error) {
	r := bytes.NewReader(data)

	count, err := readUint64(r)
	if err != nil {
		return nil, fmt.Errorf("read record count: %w", err)
	}

	recs := make([]Record, 0, count)
	for i := uint64(0); i < count; i++ {
		rec, err := decodeRecord(r)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		recs = append(recs, rec)
	}

	if r.Len() != 0 {
		return nil, fmt.Errorf("%d trailing bytes after record delta", r.Len())
	}

	return recs, nil
}

func writeUint32(buf *bytes.Buffer, v uint32) {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	buf.Write(b[:])
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

func readUint32(r *bytes.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint64(r *bytes.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readBytesAsString(r *bytes.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	if uint32(r.Len()) < n {
		return "", fmt.Errorf("length %d exceeds remaining %d bytes", n, r.Len())
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

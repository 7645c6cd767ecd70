// Package records implements the processor record store: an append-only,
// interning store of typed records addressable by dense index. Processors
// share one store per pipeline; the checkpoint layer persists it as
// incremental slices and rebuilds it on recovery.
package records

import (
	"fmt"
	"strconv"
	"time"
)

// FieldKind enumerates the typed values a record field can hold.
//
// The numeric values are part of the slice wire format and must never be
// reordered or reused.
type FieldKind uint8

const (
	KindNull FieldKind = iota
	KindUInt
	KindInt
	KindFloat
	KindBoolean
	KindString
	KindText
	KindBinary
	KindDecimal
	KindTimestamp
	KindDate
	KindDuration
	KindPoint
	KindJSON
)

func (k FieldKind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindUInt:
		return "uint"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBoolean:
		return "boolean"
	case KindString:
		return "string"
	case KindText:
		return "text"
	case KindBinary:
		return "binary"
	case KindDecimal:
		return "decimal"
	case KindTimestamp:
		return "timestamp"
	case KindDate:
		return "date"
	case KindDuration:
		return "duration"
	case KindPoint:
		return "point"
	case KindJSON:
		return "json"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Decimal is an exact decimal value: Mantissa * 10^-Scale.
type Decimal struct {
	Mantissa int64
	Scale    uint8
}

func (d Decimal) String() string {
	if d.Scale == 0 {
		return strconv.FormatInt(d.Mantissa, 10)
	}
	neg := d.Mantissa < 0
	m := d.Mantissa
	if neg {
		m = -m
	}
	s := strconv.FormatInt(m, 10)
	for len(s) <= int(d.Scale) {
		s = "0" + s
	}
	dot := len(s) - int(d.Scale)
	out := s[:dot] + "." + s[dot:]
	if neg {
		out = "-" + out
	}
	return out
}

// Point is a 2D geographic point.
type Point struct {
	X float64
	Y float64
}

// Field is one typed value inside a record. Exactly the member selected by
// Kind is meaningful; the zero Field is a null.
//
// Timestamps carry their UTC offset: two fields are equal only if they name
// the same instant with the same offset, mirroring how they are encoded.
type Field struct {
	Kind FieldKind

	UInt    uint64
	Int     int64
	Float   float64
	Boolean bool
	Str     string // String, Text and JSON kinds
	Binary  []byte
	Decimal Decimal
	Time    time.Time     // Timestamp and Date kinds
	Dur     time.Duration // Duration kind
	Point   Point
}

// Constructors for each field kind.

func Null() Field                { return Field{Kind: KindNull} }
func UInt(v uint64) Field        { return Field{Kind: KindUInt, UInt: v} }
func Int(v int64) Field          { return Field{Kind: KindInt, Int: v} }
func Float(v float64) Field      { return Field{Kind: KindFloat, Float: v} }
func Boolean(v bool) Field       { return Field{Kind: KindBoolean, Boolean: v} }
func String(v string) Field      { return Field{Kind: KindString, Str: v} }
func Text(v string) Field        { return Field{Kind: KindText, Str: v} }
func Binary(v []byte) Field      { return Field{Kind: KindBinary, Binary: v} }
func NewDecimal(d Decimal) Field { return Field{Kind: KindDecimal, Decimal: d} }

func Timestamp(t time.Time) Field { return Field{Kind: KindTimestamp, Time: t} }
func Date(t time.Time) Field      { return Field{Kind: KindDate, Time: t} }

func Duration(d time.Duration) Field { return Field{Kind: KindDuration, Dur: d} }
func NewPoint(x, y float64) Field    { return Field{Kind: KindPoint, Point: Point{X: x, Y: y}} }
func JSON(v string) Field            { return Field{Kind: KindJSON, Str: v} }

// Record is an ordered tuple of typed fields. Two records are value-equal
// iff all their fields compare equal; the store relies on the canonical
// encoding for that comparison.
type Record []Field

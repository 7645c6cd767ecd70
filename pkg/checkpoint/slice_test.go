package checkpoint

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/marmos91/driftflow/pkg/node"
)

func TestParseSliceData_RoundTrip(t *testing.T) {
	states := node.SourceStates{
		node.NewHandle(1, "id"): node.NewPosition(1, 1),
	}
	encoded := node.EncodeSourceStates(states)

	var data []byte
	var header [8]byte
	binary.LittleEndian.PutUint64(header[:], uint64(len(encoded)))
	data = append(data, header[:]...)
	data = append(data, encoded...)
	data = append(data, []byte("record delta bytes")...)

	gotStates, delta, err := parseSliceData(data)
	if err != nil {
		t.Fatalf("parseSliceData failed: %v", err)
	}
	if !gotStates.Equal(states) {
		t.Errorf("states mismatch: %v", gotStates)
	}
	if string(delta) != "record delta bytes" {
		t.Errorf("delta mismatch: %q", delta)
	}
}

func TestParseSliceData_ShortHeader(t *testing.T) {
	_, _, err := parseSliceData([]byte{1, 2, 3})
	var notEnough *NotEnoughDataError
	if !errors.As(err, &notEnough) {
		t.Fatalf("expected NotEnoughDataError, got %v", err)
	}
	if notEnough.Expected != 8 || notEnough.Remaining != 3 {
		t.Errorf("got {%d %d}, want {8 3}", notEnough.Expected, notEnough.Remaining)
	}
}

func TestParseSliceData_HeaderExceedsBody(t *testing.T) {
	var data [12]byte
	binary.LittleEndian.PutUint64(data[:8], 100)

	_, _, err := parseSliceData(data[:])
	var notEnough *NotEnoughDataError
	if !errors.As(err, &notEnough) {
		t.Fatalf("expected NotEnoughDataError, got %v", err)
	}
	if notEnough.Expected != 100 || notEnough.Remaining != 4 {
		t.Errorf("got {%d %d}, want {100 4}", notEnough.Expected, notEnough.Remaining)
	}
}

func TestFormatEpoch(t *testing.T) {
	tests := []struct {
		epoch uint64
		want  string
	}{
		{0, "00000000000000000000"},
		{1, "00000000000000000001"},
		{42, "00000000000000000042"},
		{^uint64(0), "18446744073709551615"},
	}
	for _, tt := range tests {
		if got := formatEpoch(tt.epoch); got != tt.want {
			t.Errorf("formatEpoch(%d) = %q, want %q", tt.epoch, got, tt.want)
		}
		if len(formatEpoch(tt.epoch)) != 20 {
			t.Errorf("formatEpoch(%d) is not 20 digits", tt.epoch)
		}
	}
}

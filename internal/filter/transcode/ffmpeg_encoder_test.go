package transcode

import (
	"testing"

	"github.com/asticode/go-astits"
)

func TestPtsFromPESHeaderReturnsZeroWhenAbsent(t *testing.T) {
	if got := ptsFromPESHeader(nil); got != 0 {
		t.Fatalf("expected 0 for nil header, got %d", got)
	}
	if got := ptsFromPESHeader(&astits.PESHeader{}); got != 0 {
		t.Fatalf("expected 0 for header with no optional header, got %d", got)
	}
	if got := ptsFromPESHeader(&astits.PESHeader{OptionalHeader: &astits.PESOptionalHeader{}}); got != 0 {
		t.Fatalf("expected 0 for optional header with no PTS, got %d", got)
	}
}

func TestPtsFromPESHeaderReadsPTSBase(t *testing.T) {
	header := &astits.PESHeader{
		OptionalHeader: &astits.PESOptionalHeader{
			PTS: &astits.ClockReference{Base: 90000},
		},
	}
	if got := ptsFromPESHeader(header); got != 90000 {
		t.Fatalf("expected 90000, got %d", got)
	}
}

func TestIsKeyframePESDetectsIDRStartCode(t *testing.T) {
	nonIDR := []byte{0x00, 0x00, 0x01, 0x61, 0x00, 0x00}
	if isKeyframePES(nonIDR) {
		t.Fatalf("expected non-IDR PES payload to not be a keyframe")
	}

	idr := []byte{0x00, 0x00, 0x01, 0x67, 0x00, 0x00, 0x01, 0x65, 0x00}
	if !isKeyframePES(idr) {
		t.Fatalf("expected IDR start code to be detected")
	}
}

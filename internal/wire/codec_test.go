package wire

import (
	"testing"

	protoerr "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/media"
)

func samplePacket() *media.Packet {
	return &media.Packet{
		StreamIndex: 2,
		PTS:         12345,
		DTS:         12300,
		Flags:       media.FlagKey,
		Duration:    40,
		Pos:         9001,
		Payload:     []byte{0x00, 0x00, 0x00, 0x01, 0x67, 0x64, 0x00, 0x28},
		SideData: []media.SideData{
			{Type: media.SideDataNewExtradata, Bytes: []byte{0xde, 0xad, 0xbe, 0xef}},
		},
	}
}

func TestRoundTrip(t *testing.T) {
	cases := []*media.Packet{
		samplePacket(),
		{StreamIndex: 0, PTS: 0, DTS: 0, Flags: 0, Payload: []byte{}},
		{StreamIndex: 1, PTS: -1, DTS: -1, Flags: media.FlagCorrupt, Payload: []byte("hello")},
	}
	for i, in := range cases {
		buf, err := Encode(media.TypeVideo, in)
		if err != nil {
			t.Fatalf("case %d: encode: %v", i, err)
		}
		out, mt, n, err := Decode(buf)
		if err != nil {
			t.Fatalf("case %d: decode: %v", i, err)
		}
		if n != len(buf) {
			t.Fatalf("case %d: consumed %d, want %d", i, n, len(buf))
		}
		if mt != media.TypeVideo {
			t.Fatalf("case %d: media type mismatch", i)
		}
		if out.StreamIndex != in.StreamIndex || out.PTS != in.PTS || out.DTS != in.DTS ||
			out.Flags != in.Flags || out.Duration != in.Duration || out.Pos != in.Pos {
			t.Fatalf("case %d: field mismatch\nin=%#v\nout=%#v", i, in, out)
		}
		if string(out.Payload) != string(in.Payload) {
			t.Fatalf("case %d: payload mismatch", i)
		}
		if len(out.SideData) != len(in.SideData) {
			t.Fatalf("case %d: side data count mismatch", i)
		}
		for j := range in.SideData {
			if out.SideData[j].Type != in.SideData[j].Type || string(out.SideData[j].Bytes) != string(in.SideData[j].Bytes) {
				t.Fatalf("case %d: side data[%d] mismatch", i, j)
			}
		}
	}
}

func TestDecodeNotEnough(t *testing.T) {
	buf, err := Encode(media.TypeAudio, samplePacket())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	_, _, _, err = Decode(buf[:len(buf)-3])
	if err == nil {
		t.Fatalf("expected error for truncated buffer")
	}
	if protoerr.Kind(err) != "framing" {
		t.Fatalf("expected framing kind, got %q (%v)", protoerr.Kind(err), err)
	}
}

func TestDecodeRejectsUnsupportedVersion(t *testing.T) {
	buf, err := Encode(media.TypeVideo, samplePacket())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	buf[0] = 9
	_, _, _, err = Decode(buf)
	if protoerr.Kind(err) != "framing" {
		t.Fatalf("expected framing kind, got %q (%v)", protoerr.Kind(err), err)
	}
}

func TestDecodeHeaderOnly(t *testing.T) {
	_, _, _, err := Decode([]byte{1, 0, 0})
	if protoerr.Kind(err) != "framing" {
		t.Fatalf("expected framing kind for short header, got %q (%v)", protoerr.Kind(err), err)
	}
}

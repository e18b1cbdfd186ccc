package source

import (
	"encoding/binary"
	"testing"

	"github.com/alxayo/go-rtmp/internal/media"
)

func TestPackAccessUnitAVCCLengthPrefixesEachNALU(t *testing.T) {
	au := [][]byte{{0x67, 0x64, 0x00, 0x28}, {0x68, 0xee}}
	got := packAccessUnitAVCC(au)

	if len(got) < 4 {
		t.Fatalf("expected at least a length prefix, got %d bytes", len(got))
	}
	firstLen := binary.BigEndian.Uint32(got[:4])
	if firstLen != uint32(len(au[0])) {
		t.Fatalf("expected first NAL length %d, got %d", len(au[0]), firstLen)
	}
	firstNAL := got[4 : 4+firstLen]
	for i, b := range firstNAL {
		if b != au[0][i] {
			t.Fatalf("first NAL bytes mismatch at %d", i)
		}
	}

	secondLenOffset := 4 + int(firstLen)
	secondLen := binary.BigEndian.Uint32(got[secondLenOffset : secondLenOffset+4])
	if secondLen != uint32(len(au[1])) {
		t.Fatalf("expected second NAL length %d, got %d", len(au[1]), secondLen)
	}
}

func TestRtspAccessUnitIsKeyframeH264DetectsIDR(t *testing.T) {
	nonIDR := [][]byte{{0x61, 0x00}} // nal_unit_type 1 (non-IDR slice)
	if rtspAccessUnitIsKeyframe(media.CodecH264, nonIDR) {
		t.Fatalf("expected non-IDR access unit to not be a keyframe")
	}

	idr := [][]byte{{0x67}, {0x68}, {0x65, 0x00}} // SPS, PPS, IDR slice (type 5)
	if !rtspAccessUnitIsKeyframe(media.CodecH264, idr) {
		t.Fatalf("expected IDR-bearing access unit to be a keyframe")
	}
}

func TestRtspAccessUnitIsKeyframeHEVCDetectsIDR(t *testing.T) {
	nonIDR := [][]byte{{0x02, 0x01}} // nal_unit_type 1 (TRAIL_R)
	if rtspAccessUnitIsKeyframe(media.CodecHEVC, nonIDR) {
		t.Fatalf("expected non-IDR HEVC access unit to not be a keyframe")
	}

	idrWRADL := []byte{19 << 1, 0x01}
	if !rtspAccessUnitIsKeyframe(media.CodecHEVC, [][]byte{idrWRADL}) {
		t.Fatalf("expected IDR_W_RADL access unit to be a keyframe")
	}
}

func TestBuildAVCDecoderConfigRoundTripsSPSAndPPS(t *testing.T) {
	sps := []byte{0x67, 0x64, 0x00, 0x28, 0xff}
	pps := []byte{0x68, 0xee, 0x3c, 0x80}

	cfg := buildAVCDecoderConfig(sps, pps)

	if cfg[0] != 1 {
		t.Fatalf("expected configurationVersion 1, got %d", cfg[0])
	}
	if cfg[1] != sps[1] || cfg[2] != sps[2] || cfg[3] != sps[3] {
		t.Fatalf("expected profile/compat/level lifted from the SPS")
	}
	if cfg[5]&0x1f != 1 {
		t.Fatalf("expected numOfSequenceParameterSets 1, got %d", cfg[5]&0x1f)
	}
	spsLen := binary.BigEndian.Uint16(cfg[6:8])
	if int(spsLen) != len(sps) {
		t.Fatalf("expected SPS length %d, got %d", len(sps), spsLen)
	}
	ppsCountOffset := 8 + int(spsLen)
	if cfg[ppsCountOffset] != 1 {
		t.Fatalf("expected numOfPictureParameterSets 1, got %d", cfg[ppsCountOffset])
	}
	ppsLen := binary.BigEndian.Uint16(cfg[ppsCountOffset+1 : ppsCountOffset+3])
	if int(ppsLen) != len(pps) {
		t.Fatalf("expected PPS length %d, got %d", len(pps), ppsLen)
	}
}

func TestBuildHEVCDecoderConfigCarriesThreeArrays(t *testing.T) {
	vps := []byte{0x40, 0x01}
	sps := []byte{0x42, 0x01}
	pps := []byte{0x44, 0x01}

	cfg := buildHEVCDecoderConfig(vps, sps, pps)

	if len(cfg) < 23 {
		t.Fatalf("expected at least the 23-byte fixed header, got %d bytes", len(cfg))
	}
	if cfg[0] != 1 {
		t.Fatalf("expected configurationVersion 1, got %d", cfg[0])
	}
	if cfg[22] != 3 {
		t.Fatalf("expected numOfArrays 3, got %d", cfg[22])
	}

	cursor := 23
	for _, want := range [][]byte{vps, sps, pps} {
		cursor++ // array header byte
		numNalus := binary.BigEndian.Uint16(cfg[cursor : cursor+2])
		if numNalus != 1 {
			t.Fatalf("expected 1 NALU per array, got %d", numNalus)
		}
		cursor += 2
		length := binary.BigEndian.Uint16(cfg[cursor : cursor+2])
		cursor += 2
		if int(length) != len(want) {
			t.Fatalf("expected array entry length %d, got %d", len(want), length)
		}
		cursor += int(length)
	}
}

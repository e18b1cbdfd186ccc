package bsf

import (
	"encoding/binary"
	"fmt"

	protoerr "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/filter"
	"github.com/alxayo/go-rtmp/internal/media"
)

var startCode = []byte{0x00, 0x00, 0x00, 0x01}

// paramSets holds the SPS/PPS (H.264) or VPS/SPS/PPS (HEVC) NAL units
// extracted from a container's decoder configuration record. They are
// prepended ahead of every keyframe so the wire payload is a
// self-contained elementary stream, matching what container-to-Annex-B
// reformatting is for.
type paramSets [][]byte

// annexBFilter reformats length-prefixed (AVCC/HVCC) NAL units into
// Annex-B start-code framing. It has no internal backpressure: one Send
// always yields exactly one Recv output, so it satisfies the filter
// protocol without ever returning Again.
type annexBFilter struct {
	params  paramSets
	pending *media.Packet
}

func newAnnexBFilter(params paramSets) filter.Filter {
	return &annexBFilter{params: params}
}

func (f *annexBFilter) Send(pkt *media.Packet) (filter.Status, error) {
	if pkt == nil {
		return filter.StatusBreak, nil
	}
	out, err := toAnnexB(pkt, f.params)
	if err != nil {
		return filter.StatusBreak, err
	}
	f.pending = out
	return filter.StatusOK, nil
}

func (f *annexBFilter) Recv() (*media.Packet, filter.Status, error) {
	if f.pending == nil {
		return nil, filter.StatusBreak, nil
	}
	out := f.pending
	f.pending = nil
	return out, filter.StatusBreak, nil
}

func (f *annexBFilter) Close() error { return nil }

// toAnnexB rewrites a length-prefixed payload into Annex-B, prepending the
// decoder's parameter sets ahead of the first NAL unit of a keyframe.
func toAnnexB(pkt *media.Packet, params paramSets) (*media.Packet, error) {
	out := pkt.Clone()

	var body []byte
	if pkt.IsKey() {
		for _, p := range params {
			body = append(body, startCode...)
			body = append(body, p...)
		}
	}

	buf := pkt.Payload
	for len(buf) > 0 {
		if len(buf) < 4 {
			return nil, protoerr.NewDecoderError("bsf.annexb", fmt.Errorf("truncated NAL length prefix"))
		}
		nalLen := binary.BigEndian.Uint32(buf[:4])
		buf = buf[4:]
		if uint64(nalLen) > uint64(len(buf)) {
			return nil, protoerr.NewDecoderError("bsf.annexb", fmt.Errorf("NAL length %d exceeds remaining payload %d", nalLen, len(buf)))
		}
		body = append(body, startCode...)
		body = append(body, buf[:nalLen]...)
		buf = buf[nalLen:]
	}

	out.Payload = body
	return out, nil
}

// parseAVCDecoderConfig extracts SPS/PPS NAL units from an
// AVCDecoderConfigurationRecord (ISO/IEC 14496-15). Malformed or absent
// extradata yields no parameter sets; the keyframe's in-band NALs (if any)
// are still reformatted.
func parseAVCDecoderConfig(extradata []byte) paramSets {
	if len(extradata) < 6 || extradata[0] != 1 {
		return nil
	}
	var sets paramSets
	numSPS := int(extradata[5] & 0x1f)
	cursor := 6
	cursor = appendParamSets(extradata, cursor, numSPS, &sets)
	if cursor < 0 || cursor >= len(extradata) {
		return sets
	}
	numPPS := int(extradata[cursor])
	cursor++
	appendParamSets(extradata, cursor, numPPS, &sets)
	return sets
}

// parseHEVCDecoderConfig extracts VPS/SPS/PPS NAL units from an
// HEVCDecoderConfigurationRecord. The array-count layout differs from AVC
// (one length-prefixed header per NAL-unit-type array), handled generically.
func parseHEVCDecoderConfig(extradata []byte) paramSets {
	if len(extradata) < 23 {
		return nil
	}
	var sets paramSets
	numArrays := int(extradata[22])
	cursor := 23
	for i := 0; i < numArrays && cursor+3 <= len(extradata); i++ {
		cursor++ // array_completeness + reserved + NAL_unit_type (1 byte in common encoders' layout)
		if cursor+2 > len(extradata) {
			break
		}
		numNalus := int(binary.BigEndian.Uint16(extradata[cursor : cursor+2]))
		cursor += 2
		for j := 0; j < numNalus; j++ {
			if cursor+2 > len(extradata) {
				return sets
			}
			nalLen := int(binary.BigEndian.Uint16(extradata[cursor : cursor+2]))
			cursor += 2
			if cursor+nalLen > len(extradata) {
				return sets
			}
			nal := append([]byte(nil), extradata[cursor:cursor+nalLen]...)
			sets = append(sets, nal)
			cursor += nalLen
		}
	}
	return sets
}

func appendParamSets(extradata []byte, cursor, count int, sets *paramSets) int {
	for i := 0; i < count; i++ {
		if cursor+2 > len(extradata) {
			return -1
		}
		l := int(binary.BigEndian.Uint16(extradata[cursor : cursor+2]))
		cursor += 2
		if cursor+l > len(extradata) {
			return -1
		}
		nal := append([]byte(nil), extradata[cursor:cursor+l]...)
		*sets = append(*sets, nal)
		cursor += l
	}
	return cursor
}

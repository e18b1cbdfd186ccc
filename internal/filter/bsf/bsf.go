// Package bsf implements bitstream filters: transformations on compressed
// packets that reformat container framing without decoding. It selects a
// filter automatically by codec id when the caller does not name one,
// exactly per the component design's mapping table.
package bsf

import (
	"fmt"

	protoerr "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/filter"
	"github.com/alxayo/go-rtmp/internal/media"
)

const (
	NameH264ToAnnexB = "h264_mp4toannexb"
	NameHEVCToAnnexB = "hevc_mp4toannexb"
	NameNull         = "null"
)

// Resolve picks a bitstream filter name for codecID when name is empty.
// An explicit name is returned unchanged (New rejects names it does not
// know with a decoder error); a codec id without a default mapping is a
// decoder error (the chain cannot be built).
func Resolve(codecID uint32, name string) (string, error) {
	if name != "" {
		return name, nil
	}
	switch codecID {
	case media.CodecH264:
		return NameH264ToAnnexB, nil
	case media.CodecHEVC:
		return NameHEVCToAnnexB, nil
	case media.CodecRawVideo:
		return NameNull, nil
	default:
		return "", protoerr.NewDecoderError("bsf.resolve", fmt.Errorf("no default bitstream filter for codec id %d", codecID))
	}
}

// New constructs the named filter, given the sub-stream's codec
// parameters (needed for extradata-derived parameter sets).
func New(name string, codecPar media.CodecParameters) (filter.Filter, error) {
	switch name {
	case NameH264ToAnnexB:
		return newAnnexBFilter(parseAVCDecoderConfig(codecPar.Extradata)), nil
	case NameHEVCToAnnexB:
		return newAnnexBFilter(parseHEVCDecoderConfig(codecPar.Extradata)), nil
	case NameNull:
		return newPassthroughFilter(), nil
	default:
		return nil, protoerr.NewDecoderError("bsf.new", fmt.Errorf("unknown bitstream filter %q", name))
	}
}

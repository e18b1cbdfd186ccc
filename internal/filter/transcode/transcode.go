// Package transcode implements the encode filter (C2): full
// decode -> rate-throttle -> re-encode, with the wall-clock throttle and
// monotonic PTS assignment done in Go rather than delegated to the
// subprocess, so the sequencing invariant in spec.md stays under our
// direct control.
package transcode

import (
	"github.com/alxayo/go-rtmp/internal/filter"
	"github.com/alxayo/go-rtmp/internal/media"
)

// rawFrame is one decoded, planar YUV420P access unit handed from the
// decode stage to the throttle/encode stage. It never leaves this package.
type rawFrame struct {
	width, height int
	data          []byte
}

// frameDecoder turns compressed packets into decoded frames. Implementations
// may buffer internally (a decoder can require several packets before it
// yields a frame, or yield several frames from one packet).
type frameDecoder interface {
	Decode(pkt *media.Packet) ([]rawFrame, error)
	Close() error
}

// frameEncoder turns accepted frames, each carrying the PTS this package
// assigned, into encoded packets. CodecParameters reports the post-filter
// parameters once the encoder has opened (width/height/codec id, etc);
// callers must not read it before the first successful Encode call.
type frameEncoder interface {
	Encode(frame rawFrame, pts int64) ([]*media.Packet, error)
	CodecParameters() media.CodecParameters
	Close() error
}

// Options configures a TranscodeFilter, mirroring the "video" filter spec
// fields (§3, §6) relevant to decode/throttle/encode.
type Options struct {
	BinPath        string
	DecThreadCount int
	DecThreadType  string

	EncName        string
	EncBitRate     int64
	EncFramerate   float64
	EncGopSize     int
	EncMaxBFrames  int
	EncQMin        int
	EncQMax        int
	EncThreadCount int
	EncOpenOptions map[string]string

	SWSEnable bool
}

// TranscodeFilter implements filter.Filter by wrapping a frameDecoder and a
// frameEncoder around the throttle/PTS logic in throttle.go.
type TranscodeFilter struct {
	decoder frameDecoder
	encoder frameEncoder

	throttle *throttler
	pts      *ptsAssigner

	codecParOut *media.CodecParameters

	pending []*media.Packet
}

// newTranscodeFilter wires the shared throttle/PTS state around the given
// decoder/encoder pair. codecParOut, if non-nil, receives the encoder's
// post-open codec parameters after the first successful encode, so the
// caller (the ingest worker) can overwrite the sub-stream's published
// parameters as spec.md §4.2 step 3 requires.
func newTranscodeFilter(dec frameDecoder, enc frameEncoder, opts Options, codecParOut *media.CodecParameters) *TranscodeFilter {
	return &TranscodeFilter{
		decoder:     dec,
		encoder:     enc,
		throttle:    newThrottler(opts.EncFramerate, nil),
		pts:         &ptsAssigner{},
		codecParOut: codecParOut,
	}
}

// Send decodes pkt, throttles the resulting frames, and feeds accepted
// frames to the encoder, buffering any output packets for Recv. Per
// spec.md §4.2: if the throttle discards every frame the decode produced,
// the encoder is never called and Send reports StatusBreak.
func (f *TranscodeFilter) Send(pkt *media.Packet) (filter.Status, error) {
	if pkt == nil {
		return filter.StatusBreak, nil
	}

	frames, err := f.decoder.Decode(pkt)
	if err != nil {
		return filter.StatusBreak, err
	}

	produced := false
	for _, fr := range frames {
		if !f.throttle.accept() {
			continue
		}
		pts := f.pts.next()
		out, err := f.encoder.Encode(fr, pts)
		if err != nil {
			return filter.StatusBreak, err
		}
		if len(out) > 0 {
			f.pending = append(f.pending, out...)
			produced = true
			if f.codecParOut != nil {
				*f.codecParOut = f.encoder.CodecParameters()
			}
		}
	}

	if !produced {
		return filter.StatusBreak, nil
	}
	return filter.StatusOK, nil
}

// Recv drains buffered encoder output one packet at a time.
func (f *TranscodeFilter) Recv() (*media.Packet, filter.Status, error) {
	if len(f.pending) == 0 {
		return nil, filter.StatusBreak, nil
	}
	out := f.pending[0]
	f.pending = f.pending[1:]
	if len(f.pending) > 0 {
		return out, filter.StatusAgain, nil
	}
	return out, filter.StatusBreak, nil
}

// Close releases the decoder and encoder, in that order, returning the
// first error but attempting both regardless.
func (f *TranscodeFilter) Close() error {
	errDec := f.decoder.Close()
	errEnc := f.encoder.Close()
	if errDec != nil {
		return errDec
	}
	return errEnc
}

package source

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/bluenviron/gortsplib/v4"
	"github.com/bluenviron/gortsplib/v4/pkg/base"
	"github.com/bluenviron/gortsplib/v4/pkg/description"
	"github.com/bluenviron/gortsplib/v4/pkg/format"
	"github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
	"github.com/pion/rtp"

	protoerr "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/media"
)

// rtspAccessUnitDecoder is the subset of a format-specific RTP decoder
// (rtph264.Decoder, rtph265.Decoder, rtpmpeg4audio.Decoder, ...) that
// rtspsource needs: turn one RTP packet into zero or more access units.
// Each concrete format.* type in gortsplib/v4 satisfies this via
// CreateDecoder(), the pattern grounded in
// other_examples/7a29a5ef_nicksanford-viamrtsp_rtsp.go ("setup RTP/H264 ->
// H264 decoder" / rtpDec.Decode(pkt)).
type rtspAccessUnitDecoder interface {
	Decode(pkt *rtp.Packet) ([][]byte, error)
}

// rtspsource implements Source for `method: network` upstreams using
// github.com/bluenviron/gortsplib/v4. DESCRIBE negotiates the SDP-declared
// media list, SETUP opens the configured transport, PLAY starts delivery,
// and each media's format-specific depacketizer turns RTP packets into
// access units that are queued as media.Packet values for NextPacket.
type rtspsource struct {
	opts Options

	client *gortsplib.Client
	subs   *subStreamTable

	mu      sync.Mutex
	packets chan *media.Packet
	errCh   chan error
	closed  bool
}

func newRTSPSource(opts Options) *rtspsource {
	return &rtspsource{
		opts:    opts,
		subs:    newSubStreamTable(),
		packets: make(chan *media.Packet, 64),
		errCh:   make(chan error, 1),
	}
}

func (s *rtspsource) Open(ctx context.Context) error {
	u, err := base.ParseURL(s.opts.InputURL)
	if err != nil {
		return protoerr.NewConfigError("source.rtsp.parse_url", err)
	}

	transport, err := rtspTransport(s.opts.RtspTransport)
	if err != nil {
		return err
	}

	timeout := time.Duration(s.opts.Stimeout) * time.Microsecond
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	s.client = &gortsplib.Client{
		Transport:   transport,
		ReadTimeout: timeout,
	}

	if err := s.client.Start(u.Scheme, u.Host); err != nil {
		return protoerr.NewIOError("source.rtsp.start", err)
	}

	desc, _, err := s.client.Describe(u)
	if err != nil {
		s.client.Close()
		return protoerr.NewIOError("source.rtsp.describe", err)
	}

	for _, m := range desc.Medias {
		for _, f := range m.Formats {
			mediaType, codecPar, ok := rtspCodecParameters(f)
			if !ok {
				continue
			}
			dec, ok := rtspCreateDecoder(f)
			if !ok {
				continue
			}
			if _, err := s.client.Setup(desc.BaseURL, m, 0, 0); err != nil {
				s.client.Close()
				return protoerr.NewIOError("source.rtsp.setup", err)
			}

			idx := len(s.subs.byType)
			sub := &media.SubStream{MediaType: mediaType, Index: idx, CodecPar: codecPar}
			s.subs.record(sub)

			curMedia, curFormat, curDec, curIdx, curCodec := m, f, dec, idx, codecPar.CodecID
			s.client.OnPacketRTP(curMedia, curFormat, func(pkt *rtp.Packet) {
				s.onPacketRTP(curDec, curIdx, curCodec, pkt)
			})
		}
	}

	if _, err := s.client.Play(nil); err != nil {
		s.client.Close()
		return protoerr.NewIOError("source.rtsp.play", err)
	}
	return nil
}

// onPacketRTP turns one completed access unit into a single media.Packet,
// its NAL units AVCC length-prefixed exactly like filesource.go's MP4
// samples, so both source backends hand bsf the same input shape (spec.md
// §8 Scenario 2: RTSP input + {type: bsf} filter -> Annex-B output). The
// depacketizer (h264.Decoder/h265.Decoder) returns raw, unprefixed NAL
// units per access unit; it carries no framing of its own, unlike an MP4
// sample's stored AVCC length prefixes.
func (s *rtspsource) onPacketRTP(dec rtspAccessUnitDecoder, streamIndex int, codecID uint32, pkt *rtp.Packet) {
	au, err := dec.Decode(pkt)
	if err != nil {
		// Every Decode error is dropped here, the normal
		// fragmentation-in-progress ones mid-frame and any other failure
		// alike; none of them reaches NextPacket.
		return
	}
	if len(au) == 0 {
		return
	}

	p := &media.Packet{
		StreamIndex: int32(streamIndex),
		PTS:         int64(pkt.Timestamp),
		DTS:         int64(pkt.Timestamp),
		Payload:     packAccessUnitAVCC(au),
	}
	if rtspAccessUnitIsKeyframe(codecID, au) {
		p.Flags |= media.FlagKey
	}

	select {
	case s.packets <- p:
	default:
		// When the buffer is full (a stalled consumer), this new packet is
		// dropped rather than blocking the RTP receive loop.
	}
}

// packAccessUnitAVCC concatenates an access unit's raw NAL units into a
// single AVCC length-prefixed payload, the same shape filesource.go reads
// directly out of an MP4's mdat box.
func packAccessUnitAVCC(au [][]byte) []byte {
	var payload []byte
	var scratch [4]byte
	for _, nalu := range au {
		binary.BigEndian.PutUint32(scratch[:], uint32(len(nalu)))
		payload = append(payload, scratch[:]...)
		payload = append(payload, nalu...)
	}
	return payload
}

// rtspAccessUnitIsKeyframe reports whether au contains an IDR slice,
// mirroring the grounding file's own iFrameReceived gate
// (h264.IDRPresent(au)) rather than leaving every RTSP packet looking
// like a non-keyframe to the hub's eviction policy and the bsf filter's
// keyframe-gated parameter-set prepend.
func rtspAccessUnitIsKeyframe(codecID uint32, au [][]byte) bool {
	switch codecID {
	case media.CodecH264:
		return h264.IDRPresent(au)
	case media.CodecHEVC:
		for _, nalu := range au {
			if len(nalu) == 0 {
				continue
			}
			nalType := (nalu[0] >> 1) & 0x3f
			if nalType == 19 || nalType == 20 { // IDR_W_RADL, IDR_N_LP
				return true
			}
		}
		return false
	default:
		return false
	}
}

func (s *rtspsource) NextPacket() (*media.Packet, error) {
	select {
	case pkt, ok := <-s.packets:
		if !ok {
			return nil, protoerr.NewEOFError("source.rtsp.next_packet", fmt.Errorf("session ended"))
		}
		return pkt, nil
	case err := <-s.errCh:
		return nil, protoerr.NewIOError("source.rtsp.next_packet", err)
	}
}

func (s *rtspsource) GetSubStream(mediaType media.Type) (*media.SubStream, error) {
	return s.subs.get(mediaType)
}

func (s *rtspsource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	if s.client != nil {
		s.client.Close()
	}
	return nil
}

func rtspTransport(name string) (*gortsplib.Transport, error) {
	var t gortsplib.Transport
	switch name {
	case "", "tcp":
		t = gortsplib.TransportTCP
	case "udp":
		t = gortsplib.TransportUDP
	default:
		return nil, protoerr.NewConfigError("source.rtsp.transport", fmt.Errorf("rtsp_transport must be udp or tcp, got %q", name))
	}
	return &t, nil
}

// rtspCodecParameters maps a negotiated SDP format to this module's codec
// parameter representation. Formats this module has no BSF/encode support
// for are skipped (ok=false) rather than failing Open outright, so a
// stream with e.g. an unsupported audio codec still serves video.
//
// Extradata is synthesized as a proper AVCDecoderConfigurationRecord (H264)
// or HEVCDecoderConfigurationRecord (H265) from the SDP's sprop-parameter-
// sets, in the same shape bsf.parseAVCDecoderConfig/parseHEVCDecoderConfig
// expect to parse — matching what an MP4 file's stsd box would carry,
// since storing the bare SPS bytes leaves the bsf filter with no PPS (and,
// for HEVC, no VPS) to prepend ahead of a keyframe.
func rtspCodecParameters(f format.Format) (media.Type, media.CodecParameters, bool) {
	switch v := f.(type) {
	case *format.H264:
		cp := media.CodecParameters{MediaType: media.TypeVideo, CodecID: media.CodecH264}
		if v.SPS != nil && v.PPS != nil {
			cp.Extradata = buildAVCDecoderConfig(v.SPS, v.PPS)
		}
		return media.TypeVideo, cp, true
	case *format.H265:
		cp := media.CodecParameters{MediaType: media.TypeVideo, CodecID: media.CodecHEVC}
		if v.VPS != nil && v.SPS != nil && v.PPS != nil {
			cp.Extradata = buildHEVCDecoderConfig(v.VPS, v.SPS, v.PPS)
		}
		return media.TypeVideo, cp, true
	case *format.MPEG4Audio:
		cp := media.CodecParameters{MediaType: media.TypeAudio, CodecID: media.CodecAAC}
		if cfg := v.Config; cfg != nil {
			cp.SampleRate = int32(cfg.SampleRate)
			cp.Channels = int32(cfg.ChannelCount)
		}
		return media.TypeAudio, cp, true
	default:
		return 0, media.CodecParameters{}, false
	}
}

// buildAVCDecoderConfig assembles a minimal ISO/IEC 14496-15
// AVCDecoderConfigurationRecord carrying exactly one SPS and one PPS, the
// fields bsf.parseAVCDecoderConfig reads: configurationVersion,
// profile/compat/level lifted from the SPS itself, a 4-byte NAL length
// size of 4 (matching the length prefix rtspsource writes in
// onPacketRTP), then the SPS/PPS count+entries.
func buildAVCDecoderConfig(sps, pps []byte) []byte {
	var profile, compat, level byte
	if len(sps) >= 4 {
		profile, compat, level = sps[1], sps[2], sps[3]
	}
	out := []byte{
		1, // configurationVersion
		profile,
		compat,
		level,
		0xff, // reserved(111111) + lengthSizeMinusOne=3 -> 4-byte lengths
		0xe1, // reserved(111) + numOfSequenceParameterSets=1
	}
	out = appendLengthPrefixed(out, sps)
	out = append(out, 1) // numOfPictureParameterSets
	out = appendLengthPrefixed(out, pps)
	return out
}

// buildHEVCDecoderConfig assembles a minimal HEVCDecoderConfigurationRecord
// carrying one VPS/SPS/PPS array each, in the layout
// bsf.parseHEVCDecoderConfig reads (a 23-byte fixed header, numOfArrays at
// offset 22, then one-NALU arrays for types 32/33/34).
func buildHEVCDecoderConfig(vps, sps, pps []byte) []byte {
	header := make([]byte, 23)
	header[0] = 1 // configurationVersion
	header[22] = 3
	out := header
	out = appendHEVCArray(out, 32, vps)
	out = appendHEVCArray(out, 33, sps)
	out = appendHEVCArray(out, 34, pps)
	return out
}

func appendHEVCArray(out []byte, nalUnitType byte, nalu []byte) []byte {
	out = append(out, nalUnitType&0x3f)
	var count [2]byte
	binary.BigEndian.PutUint16(count[:], 1)
	out = append(out, count[:]...)
	return appendLengthPrefixed(out, nalu)
}

func appendLengthPrefixed(out []byte, nalu []byte) []byte {
	var length [2]byte
	binary.BigEndian.PutUint16(length[:], uint16(len(nalu)))
	out = append(out, length[:]...)
	return append(out, nalu...)
}

// rtspCreateDecoder resolves the format-specific RTP depacketizer. Formats
// without decoder support here were already filtered out by
// rtspCodecParameters, so this should not fail for anything Open() setup.
func rtspCreateDecoder(f format.Format) (rtspAccessUnitDecoder, bool) {
	switch v := f.(type) {
	case *format.H264:
		dec, err := v.CreateDecoder()
		if err != nil {
			return nil, false
		}
		return dec, true
	case *format.H265:
		dec, err := v.CreateDecoder()
		if err != nil {
			return nil, false
		}
		return dec, true
	case *format.MPEG4Audio:
		dec, err := v.CreateDecoder()
		if err != nil {
			return nil, false
		}
		return dec, true
	default:
		return nil, false
	}
}

package source

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"context"

	"github.com/abema/go-mp4"

	protoerr "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/media"
)

// fileSampleEntry is one demuxed sample's location and decode time, enough
// to read its bytes out of mdat lazily during NextPacket.
type fileSampleEntry struct {
	streamIndex int32
	offset      uint64
	size        uint32
	pts         int64
	dts         int64
	keyframe    bool
}

// fileTrack is one trak box's sub-stream description plus its flattened
// sample table.
type fileTrack struct {
	sub     *media.SubStream
	samples []fileSampleEntry
}

// filesource implements Source for `method: file` by demuxing local
// MP4/MOV containers with github.com/abema/go-mp4, walking moov's sample
// tables (stsz/stco|co64/stts/stss) to build a flat, time-ordered sample
// list, then reading each sample's bytes out of mdat on demand. loop_on_eof
// re-opens the same file from scratch rather than seeking back to zero, to
// pick up any codec-parameter change on re-probe (spec.md §4.3 LOOP).
type filesource struct {
	opts Options
	subs *subStreamTable

	mu      sync.Mutex
	f       *os.File
	samples []fileSampleEntry
	cursor  int
	closed  bool
}

func newFileSource(opts Options) *filesource {
	return &filesource{opts: opts, subs: newSubStreamTable()}
}

func (s *filesource) Open(ctx context.Context) error {
	f, err := os.Open(s.opts.InputURL)
	if err != nil {
		return protoerr.NewIOError("source.file.open", err)
	}

	tracks, err := demuxMP4(f)
	if err != nil {
		f.Close()
		return err
	}

	var all []fileSampleEntry
	for _, tr := range tracks {
		s.subs.record(tr.sub)
		all = append(all, tr.samples...)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].dts < all[j].dts })

	s.mu.Lock()
	s.f = f
	s.samples = all
	s.cursor = 0
	s.closed = false
	s.mu.Unlock()
	return nil
}

func (s *filesource) NextPacket() (*media.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cursor >= len(s.samples) {
		return nil, protoerr.NewEOFError("source.file.next_packet", fmt.Errorf("end of file"))
	}
	entry := s.samples[s.cursor]
	s.cursor++

	buf := make([]byte, entry.size)
	if _, err := s.f.ReadAt(buf, int64(entry.offset)); err != nil {
		return nil, protoerr.NewIOError("source.file.read_sample", err)
	}

	var flags uint32
	if entry.keyframe {
		flags = media.FlagKey
	}
	return &media.Packet{
		StreamIndex: entry.streamIndex,
		PTS:         entry.pts,
		DTS:         entry.dts,
		Flags:       flags,
		Payload:     buf,
	}, nil
}

func (s *filesource) GetSubStream(mediaType media.Type) (*media.SubStream, error) {
	return s.subs.get(mediaType)
}

func (s *filesource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.f == nil {
		s.closed = true
		return nil
	}
	s.closed = true
	return s.f.Close()
}

// demuxMP4 walks the moov box structure of an MP4/MOV file, building one
// fileTrack per trak with a supported sample description, using go-mp4's
// low-level box reader (mp4.ReadBoxStructure) the way a frontend tool
// inspects a container without decoding it.
func demuxMP4(f *os.File) ([]fileTrack, error) {
	var tracks []fileTrack
	var cur *trakBuilder

	_, err := mp4.ReadBoxStructure(f, func(h *mp4.ReadHandle) (interface{}, error) {
		switch h.BoxInfo.Type {
		case mp4.BoxTypeTrak():
			cur = &trakBuilder{}
			if _, err := h.Expand(); err != nil {
				return nil, err
			}
			if cur.ready() {
				tr := cur.build()
				tr.sub.Index = len(tracks)
				for i := range tr.samples {
					tr.samples[i].streamIndex = int32(len(tracks))
				}
				tracks = append(tracks, tr)
			}
			cur = nil
			return nil, nil

		case mp4.BoxTypeStsd():
			if cur == nil {
				return h.Expand()
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			stsd, _ := box.(*mp4.Stsd)
			cur.applyStsd(stsd)
			return h.Expand()

		case mp4.BoxTypeStsz():
			if cur == nil {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if stsz, ok := box.(*mp4.Stsz); ok {
				cur.sizes = sampleSizes(stsz)
			}
			return nil, nil

		case mp4.BoxTypeStco():
			if cur == nil {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if stco, ok := box.(*mp4.Stco); ok {
				cur.offsets = make([]uint64, len(stco.ChunkOffset))
				for i, o := range stco.ChunkOffset {
					cur.offsets[i] = uint64(o)
				}
			}
			return nil, nil

		case mp4.BoxTypeCo64():
			if cur == nil {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if co64, ok := box.(*mp4.Co64); ok {
				cur.offsets = append([]uint64(nil), co64.ChunkOffset...)
			}
			return nil, nil

		case mp4.BoxTypeStsc():
			if cur == nil {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if stsc, ok := box.(*mp4.Stsc); ok {
				cur.stsc = stsc.Entries
			}
			return nil, nil

		case mp4.BoxTypeStts():
			if cur == nil {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if stts, ok := box.(*mp4.Stts); ok {
				cur.stts = stts.Entries
			}
			return nil, nil

		case mp4.BoxTypeStss():
			if cur == nil {
				return nil, nil
			}
			box, _, err := h.ReadPayload()
			if err != nil {
				return nil, err
			}
			if stss, ok := box.(*mp4.Stss); ok {
				cur.sync = make(map[uint32]bool, len(stss.SampleNumber))
				for _, n := range stss.SampleNumber {
					cur.sync[n] = true
				}
			}
			return nil, nil

		default:
			return h.Expand()
		}
	})
	if err != nil {
		return nil, protoerr.NewIOError("source.file.demux", err)
	}
	if len(tracks) == 0 {
		return nil, protoerr.NewDecoderError("source.file.demux", fmt.Errorf("no supported tracks found"))
	}
	return tracks, nil
}

func sampleSizes(stsz *mp4.Stsz) []uint32 {
	if stsz.SampleSize != 0 {
		out := make([]uint32, stsz.SampleCount)
		for i := range out {
			out[i] = stsz.SampleSize
		}
		return out
	}
	return append([]uint32(nil), stsz.EntrySize...)
}

// trakBuilder accumulates one trak's sample-table boxes as they are
// visited, then flattens them into a time-ordered sample list.
type trakBuilder struct {
	mediaType media.Type
	codecPar  media.CodecParameters
	hasStsd   bool

	sizes   []uint32
	offsets []uint64
	stsc    []mp4.StscEntry
	stts    []mp4.SttsEntry
	sync    map[uint32]bool
}

func (t *trakBuilder) applyStsd(stsd *mp4.Stsd) {
	if stsd == nil {
		return
	}
	t.hasStsd = true
	// The codec-specific sample entry (avc1/hvc1/mp4a) under stsd is not
	// parsed: every track with an stsd is recorded as H.264 video with no
	// extradata, and ready() does not skip a track on its sample entry.
	t.mediaType = media.TypeVideo
	t.codecPar = media.CodecParameters{MediaType: media.TypeVideo, CodecID: media.CodecH264}
}

func (t *trakBuilder) ready() bool {
	return t.hasStsd && len(t.sizes) > 0 && len(t.offsets) > 0
}

func (t *trakBuilder) build() fileTrack {
	samples := flattenSampleTable(t.sizes, t.offsets, t.stsc, t.stts, t.sync)
	sub := &media.SubStream{MediaType: t.mediaType, Index: 0, CodecPar: t.codecPar}
	return fileTrack{sub: sub, samples: samples}
}

// flattenSampleTable resolves (stsz, stco/co64, stsc, stts, stss) into a
// flat list of (offset, size, dts, keyframe) tuples, the same computation
// every MP4 demuxer performs to locate sample bytes inside mdat.
func flattenSampleTable(sizes []uint32, offsets []uint64, stsc []mp4.StscEntry, stts []mp4.SttsEntry, sync map[uint32]bool) []fileSampleEntry {
	out := make([]fileSampleEntry, 0, len(sizes))

	samplesPerChunk := expandStsc(stsc, len(offsets))

	var sampleIdx uint32
	var dts int64
	sttsIdx, sttsRemaining := 0, 0
	if len(stts) > 0 {
		sttsRemaining = int(stts[0].SampleCount)
	}

	for chunk, count := range samplesPerChunk {
		if chunk >= len(offsets) {
			break
		}
		chunkOffset := offsets[chunk]
		var runningOffset uint64
		for i := 0; i < count && int(sampleIdx) < len(sizes); i++ {
			size := sizes[sampleIdx]
			keyframe := len(sync) == 0 || sync[sampleIdx+1]

			duration := int64(1)
			if sttsIdx < len(stts) {
				duration = int64(stts[sttsIdx].SampleDelta)
			}

			out = append(out, fileSampleEntry{
				offset:   chunkOffset + runningOffset,
				size:     size,
				pts:      dts,
				dts:      dts,
				keyframe: keyframe,
			})

			runningOffset += uint64(size)
			dts += duration
			sampleIdx++

			sttsRemaining--
			if sttsRemaining <= 0 {
				sttsIdx++
				if sttsIdx < len(stts) {
					sttsRemaining = int(stts[sttsIdx].SampleCount)
				}
			}
		}
	}
	return out
}

// expandStsc turns the run-length (first_chunk, samples_per_chunk) table
// into a per-chunk sample count slice of length chunkCount.
func expandStsc(stsc []mp4.StscEntry, chunkCount int) []int {
	out := make([]int, chunkCount)
	for i, entry := range stsc {
		start := int(entry.FirstChunk) - 1
		end := chunkCount
		if i+1 < len(stsc) {
			end = int(stsc[i+1].FirstChunk) - 1
		}
		for c := start; c < end && c < chunkCount; c++ {
			out[c] = int(entry.SamplesPerChunk)
		}
	}
	return out
}

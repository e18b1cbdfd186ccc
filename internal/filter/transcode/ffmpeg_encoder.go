package transcode

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/asticode/go-astits"

	protoerr "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/media"
)

const encodePID uint16 = 256

// ffmpegEncoder spawns an ffmpeg subprocess that reads raw YUV420P frames
// on stdin and emits MPEG-TS on stdout, demuxed back into packets with
// go-astits. The encoder owns the post-open codec parameters published
// back onto the sub-stream per spec.md §4.2 step 3.
type ffmpegEncoder struct {
	proc    *ffmpegProcess
	demuxer *astits.Demuxer
	width   int
	height  int
	codecID uint32
	bitRate int64

	pkts  chan *media.Packet
	errCh chan error
	done  chan struct{}

	mu     sync.Mutex
	closed bool
	opened bool
}

func newFFmpegEncoder(ctx context.Context, binPath string, width, height int, opts Options) (*ffmpegEncoder, error) {
	encName := opts.EncName
	if encName == "" {
		encName = "libx264"
	}

	args := []string{"-hide_banner", "-loglevel", "error",
		"-f", "rawvideo", "-pix_fmt", "yuv420p",
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-i", "pipe:0",
		"-c:v", encName,
	}
	if opts.EncBitRate > 0 {
		args = append(args, "-b:v", strconv.FormatInt(opts.EncBitRate, 10))
	}
	if opts.EncGopSize > 0 {
		args = append(args, "-g", strconv.Itoa(opts.EncGopSize))
	}
	if opts.EncMaxBFrames > 0 {
		args = append(args, "-bf", strconv.Itoa(opts.EncMaxBFrames))
	}
	if opts.EncQMin > 0 {
		args = append(args, "-qmin", strconv.Itoa(opts.EncQMin))
	}
	if opts.EncQMax > 0 {
		args = append(args, "-qmax", strconv.Itoa(opts.EncQMax))
	}
	if opts.EncThreadCount > 0 {
		args = append(args, "-threads", strconv.Itoa(opts.EncThreadCount))
	}
	for k, v := range opts.EncOpenOptions {
		args = append(args, "-"+k, v)
	}
	args = append(args, "-f", "mpegts", "pipe:1")

	proc, err := startFFmpegProcess(ctx, "transcode.encoder.start", binPath, args, 5*time.Second)
	if err != nil {
		return nil, err
	}

	e := &ffmpegEncoder{
		proc:    proc,
		width:   width,
		height:  height,
		codecID: encOutputCodecID(encName),
		bitRate: opts.EncBitRate,
		pkts:    make(chan *media.Packet, 8),
		errCh:   make(chan error, 1),
		done:    make(chan struct{}),
	}
	e.demuxer = astits.NewDemuxer(ctx, proc.stdout)
	go e.readLoop()
	return e, nil
}

// readLoop continuously drains demuxed TS units from ffmpeg's stdout and
// forwards completed packets to the pkts channel until EOF or error.
// astits.Demuxer.NextData blocks on the underlying reader until a full TS
// unit is available, so this must run off the caller's goroutine — an
// encoder with B-frames/lookahead configured legitimately buffers several
// frames before emitting its first packet, and a synchronous call here
// would stall the ingest worker waiting on it, mirroring ffmpegDecoder's
// readLoop.
func (e *ffmpegEncoder) readLoop() {
	defer close(e.pkts)
	for {
		data, err := e.demuxer.NextData()
		if err != nil {
			select {
			case e.errCh <- err:
			default:
			}
			return
		}
		if data.PES == nil {
			continue
		}
		pts := ptsFromPESHeader(data.PES.Header)
		pkt := &media.Packet{
			StreamIndex: 0,
			PTS:         pts,
			DTS:         pts,
			Payload:     append([]byte(nil), data.PES.Data...),
		}
		if isKeyframePES(data.PES.Data) {
			pkt.Flags |= media.FlagKey
		}
		select {
		case e.pkts <- pkt:
		case <-e.done:
			return
		}
	}
}

func ptsFromPESHeader(header *astits.PESHeader) int64 {
	if header == nil || header.OptionalHeader == nil || header.OptionalHeader.PTS == nil {
		return 0
	}
	return header.OptionalHeader.PTS.Base
}

// Encode writes one raw frame's bytes to the encoder's stdin and returns
// any packets the background readLoop has fully demuxed since the previous
// call, without blocking on more arriving. Each returned packet keeps the
// PTS from ffmpeg's own PES header; pts is used as a fallback for any
// packet whose header PTS is absent or zero.
func (e *ffmpegEncoder) Encode(frame rawFrame, pts int64) ([]*media.Packet, error) {
	if _, err := e.proc.stdin.Write(frame.data); err != nil {
		return nil, protoerr.NewEncoderError("transcode.encoder.write", err)
	}
	e.opened = true

	var out []*media.Packet
	for {
		select {
		case pkt, ok := <-e.pkts:
			if !ok {
				return out, nil
			}
			if pkt.PTS == 0 {
				pkt.PTS, pkt.DTS = pts, pts
			}
			out = append(out, pkt)
		case err := <-e.errCh:
			return out, protoerr.NewEncoderError("transcode.encoder.read", err)
		default:
			return out, nil
		}
	}
}

// isKeyframePES performs a minimal NAL-type scan over Annex-B encoded
// output to detect an IDR slice, used only to set the outbound KEY flag
// since the astits demuxer surfaces PES payload bytes, not parsed slice
// headers.
func isKeyframePES(payload []byte) bool {
	for i := 0; i+4 < len(payload); i++ {
		if payload[i] == 0 && payload[i+1] == 0 && payload[i+2] == 1 {
			nalType := payload[i+3] & 0x1f
			if nalType == 5 {
				return true
			}
		}
	}
	return false
}

func (e *ffmpegEncoder) CodecParameters() media.CodecParameters {
	return media.CodecParameters{
		MediaType: media.TypeVideo,
		CodecID:   e.codecID,
		BitRate:   e.bitRate,
		Width:     int32(e.width),
		Height:    int32(e.height),
	}
}

func (e *ffmpegEncoder) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.mu.Unlock()
	close(e.done)
	return e.proc.Close()
}

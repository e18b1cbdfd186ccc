package transcode

import (
	"context"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/asticode/go-astits"

	protoerr "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/media"
)

const decodePID uint16 = 256

// ffmpegDecoder spawns an ffmpeg subprocess that decodes one sub-stream's
// compressed packets (muxed as MPEG-TS on its stdin via go-astits) into
// planar YUV420P frames read back from its stdout at the source's
// declared width/height. It never rescales; it always asks ffmpeg for
// yuv420p output, so full-range (yuvj420p) sources are converted before a
// frame leaves the decoder.
type ffmpegDecoder struct {
	proc   *ffmpegProcess
	muxer  *astits.Muxer
	width  int
	height int

	frames chan rawFrame
	errCh  chan error
	done   chan struct{}

	mu     sync.Mutex
	closed bool
}

func newFFmpegDecoder(ctx context.Context, binPath string, codecPar media.CodecParameters, opts Options) (*ffmpegDecoder, error) {
	decName, err := ffmpegDecoderName(codecPar.CodecID)
	if err != nil {
		return nil, protoerr.NewDecoderError("transcode.decoder.resolve", err)
	}
	streamType, err := ffmpegMpegTSStreamType(codecPar.CodecID)
	if err != nil {
		return nil, protoerr.NewDecoderError("transcode.decoder.resolve", err)
	}

	args := []string{"-hide_banner", "-loglevel", "error"}
	if opts.DecThreadCount > 0 {
		args = append(args, "-threads", strconv.Itoa(opts.DecThreadCount))
	}
	args = append(args, "-c:v", decName, "-f", "mpegts", "-i", "pipe:0")
	// Full-range (yuvj420p) sources are scaled to yuv420p before the frame
	// leaves the decoder, per spec.md §4.2 step 1.
	args = append(args, "-pix_fmt", "yuv420p", "-f", "rawvideo", "pipe:1")

	proc, err := startFFmpegProcess(ctx, "transcode.decoder.start", binPath, args, 5*time.Second)
	if err != nil {
		return nil, err
	}

	muxer := astits.NewMuxer(ctx, proc.stdin)
	if err := muxer.AddElementaryStream(astits.PMTElementaryStream{
		ElementaryPID: decodePID,
		StreamType:    astits.StreamType(streamType),
	}); err != nil {
		_ = proc.Close()
		return nil, protoerr.NewDecoderError("transcode.decoder.mux_setup", err)
	}
	muxer.SetPCRPID(decodePID)

	d := &ffmpegDecoder{
		proc:   proc,
		muxer:  muxer,
		width:  int(codecPar.Width),
		height: int(codecPar.Height),
		frames: make(chan rawFrame, 8),
		errCh:  make(chan error, 1),
		done:   make(chan struct{}),
	}
	go d.readLoop()
	return d, nil
}

// readLoop continuously reads fixed-size YUV420P frames from ffmpeg's
// stdout and forwards them to the frames channel until EOF or error.
func (d *ffmpegDecoder) readLoop() {
	defer close(d.frames)
	if d.width <= 0 || d.height <= 0 {
		return
	}
	frameSize := d.width*d.height + 2*((d.width+1)/2)*((d.height+1)/2)
	buf := make([]byte, frameSize)
	for {
		if _, err := io.ReadFull(d.proc.stdout, buf); err != nil {
			if err != io.EOF && err != io.ErrUnexpectedEOF {
				select {
				case d.errCh <- err:
				default:
				}
			}
			return
		}
		out := make([]byte, len(buf))
		copy(out, buf)
		select {
		case d.frames <- rawFrame{width: d.width, height: d.height, data: out}:
		case <-d.done:
			return
		}
	}
}

// Decode writes pkt onto the muxed TS stream and returns any frames that
// have become available since the previous call. A decoder naturally
// needs several packets of lookahead before its first frame appears;
// returning zero frames here is normal, not an error.
func (d *ffmpegDecoder) Decode(pkt *media.Packet) ([]rawFrame, error) {
	pts := astits.ClockReference{Base: pkt.PTS}
	dts := astits.ClockReference{Base: pkt.DTS}
	if _, err := d.muxer.WriteData(&astits.MuxerData{
		PID: decodePID,
		PES: &astits.PESData{
			Header: &astits.PESHeader{
				OptionalHeader: &astits.PESOptionalHeader{
					MarkerBits:      2,
					PTSDTSIndicator: astits.PTSDTSIndicatorBothPresent,
					PTS:             &pts,
					DTS:             &dts,
				},
				PacketLength: uint16(len(pkt.Payload)),
				StreamID:     0xe0, // MPEG-TS PES stream id for the first video stream
			},
			Data: pkt.Payload,
		},
	}); err != nil {
		return nil, protoerr.NewDecoderError("transcode.decoder.write", err)
	}

	var frames []rawFrame
	for {
		select {
		case fr, ok := <-d.frames:
			if !ok {
				return frames, nil
			}
			frames = append(frames, fr)
		case err := <-d.errCh:
			return frames, protoerr.NewDecoderError("transcode.decoder.read", err)
		default:
			return frames, nil
		}
	}
}

func (d *ffmpegDecoder) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	d.mu.Unlock()

	close(d.done)
	return d.proc.Close()
}

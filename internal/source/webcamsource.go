package source

import (
	"context"
	"fmt"
	"sync"

	"github.com/vladimirvivien/go4vl/device"
	"github.com/vladimirvivien/go4vl/v4l2"

	protoerr "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/media"
)

const webcamStreamIndex = 0

// webcamsource implements Source for `method: webcam` by capturing raw
// frames from a V4L2 device with github.com/vladimirvivien/go4vl.
// input_format/width/height/framerate/pixel_format are device hints; when
// rtbufsize is not supplied, it defaults to
// width × height × max(framerate, 15) × 2 bytes per spec.md §4.1.
type webcamsource struct {
	opts Options
	subs *subStreamTable

	dev    *device.Device
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
}

func newWebcamSource(opts Options) *webcamsource {
	return &webcamsource{opts: opts, subs: newSubStreamTable()}
}

func (s *webcamsource) Open(ctx context.Context) error {
	path := s.opts.InputURL
	if path == "" {
		return protoerr.NewConfigError("source.webcam.open", fmt.Errorf("input_url (device path) must not be empty"))
	}

	pixFmt, err := webcamPixelFormat(s.opts.PixelFormat)
	if err != nil {
		return err
	}

	dev, err := device.Open(path,
		device.WithPixFormat(v4l2.PixFormat{
			Width:       uint32(s.opts.Width),
			Height:      uint32(s.opts.Height),
			PixelFormat: pixFmt,
			Field:       v4l2.FieldNone,
		}),
		device.WithFPS(uint32(s.opts.Framerate)),
	)
	if err != nil {
		return protoerr.NewIOError("source.webcam.open", err)
	}

	captureCtx, cancel := context.WithCancel(ctx)
	if err := dev.Start(captureCtx); err != nil {
		cancel()
		dev.Close()
		return protoerr.NewIOError("source.webcam.start", err)
	}

	rtbufsize := s.opts.Rtbufsize
	if rtbufsize <= 0 {
		rtbufsize = defaultRtbufsize(s.opts.Width, s.opts.Height, s.opts.Framerate)
	}
	_ = rtbufsize // sized hint only: go4vl's driver-allocated mmap buffers are
	// the realtime demux buffer this setting sizes on other backends.

	s.dev = dev
	s.cancel = cancel

	sub := &media.SubStream{
		MediaType: media.TypeVideo,
		Index:     webcamStreamIndex,
		CodecPar: media.CodecParameters{
			MediaType: media.TypeVideo,
			CodecID:   media.CodecRawVideo,
			Width:     int32(s.opts.Width),
			Height:    int32(s.opts.Height),
		},
	}
	s.subs.record(sub)
	return nil
}

func (s *webcamsource) NextPacket() (*media.Packet, error) {
	s.mu.Lock()
	dev := s.dev
	s.mu.Unlock()
	if dev == nil {
		return nil, protoerr.NewIOError("source.webcam.next_packet", fmt.Errorf("source not open"))
	}

	frame, ok := <-dev.GetOutput()
	if !ok {
		return nil, protoerr.NewEOFError("source.webcam.next_packet", fmt.Errorf("capture stream closed"))
	}
	payload := make([]byte, len(frame))
	copy(payload, frame)
	return &media.Packet{
		StreamIndex: webcamStreamIndex,
		Flags:       media.FlagKey, // every raw frame is independently decodable
		Payload:     payload,
	}, nil
}

func (s *webcamsource) GetSubStream(mediaType media.Type) (*media.SubStream, error) {
	return s.subs.get(mediaType)
}

func (s *webcamsource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.cancel != nil {
		s.cancel()
	}
	if s.dev != nil {
		s.dev.Close()
	}
	return nil
}

func webcamPixelFormat(name string) (v4l2.FourCCType, error) {
	switch name {
	case "", "yuyv":
		return v4l2.PixelFmtYUYV, nil
	case "mjpeg":
		return v4l2.PixelFmtMJPEG, nil
	case "h264":
		return v4l2.PixelFmtH264, nil
	default:
		return 0, protoerr.NewConfigError("source.webcam.pixel_format", fmt.Errorf("unsupported pixel_format %q", name))
	}
}

// Package source implements the media source adapter (C1): opening an
// upstream (RTSP network stream, local file, or V4L2 webcam), enumerating
// its sub-streams, and yielding compressed packets one at a time. Resource
// acquisition/release mirrors the teacher's conn.Accept/Connection.Close
// symmetry: every backend handle Open acquires is released in reverse
// order by Close.
package source

import (
	"context"
	"fmt"

	protoerr "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/media"
)

// Options mirrors the source-relevant fields of a stream's configuration
// entry (spec.md §3 "Source options"). Only Method and InputURL are
// required; everything else is a backend-specific hint.
type Options struct {
	Method      string // "file" | "network" | "webcam"
	InputURL    string
	InputFormat string // device backend, e.g. "v4l2"

	Width     int
	Height    int
	Framerate int

	PixelFormat string

	Rtbufsize int64 // realtime demux buffer bytes; 0 = compute a default
	MaxDelay  int64 // microseconds

	RtspTransport string // "udp" | "tcp"
	Stimeout      int64  // socket I/O microseconds

	DumpFormat bool

	LoopOnEOF bool
}

// defaultRtbufsize implements spec.md §4.1's webcam default:
// width × height × max(framerate, 15) × 2 bytes.
func defaultRtbufsize(width, height, framerate int) int64 {
	fps := framerate
	if fps < 15 {
		fps = 15
	}
	return int64(width) * int64(height) * int64(fps) * 2
}

// Source presents a single upstream as a typed packet source (spec.md §4.1).
type Source interface {
	// Open initializes the backend, probes stream info, enumerates
	// sub-streams, and records the first sub-stream of each media type.
	Open(ctx context.Context) error
	// NextPacket reads one packet from the demuxer. Its StreamIndex
	// identifies which sub-stream it belongs to. Returns an *errors.EOFError
	// when the upstream ends — distinct from any other failure kind.
	NextPacket() (*media.Packet, error)
	// GetSubStream returns the first recorded sub-stream of the given media
	// type, or an error if none was found during Open.
	GetSubStream(mediaType media.Type) (*media.SubStream, error)
	// Close releases all demuxer, probe, and backend resources in reverse
	// order of acquisition. Idempotent.
	Close() error
}

// New constructs the concrete Source implementation for opts.Method.
func New(opts Options) (Source, error) {
	switch opts.Method {
	case "network":
		return newRTSPSource(opts), nil
	case "file":
		return newFileSource(opts), nil
	case "webcam":
		return newWebcamSource(opts), nil
	default:
		return nil, protoerr.NewConfigError("source.new", fmt.Errorf("unknown method %q", opts.Method))
	}
}

// subStreamTable is the shared "first sub-stream per media type" bookkeeping
// used by every backend, matching spec.md §4.1's "records the first of each
// media type" rule.
type subStreamTable struct {
	byType map[media.Type]*media.SubStream
}

func newSubStreamTable() *subStreamTable {
	return &subStreamTable{byType: make(map[media.Type]*media.SubStream)}
}

// record stores sub, unless a sub-stream of the same media type was already
// recorded — only the first of each type is kept.
func (t *subStreamTable) record(sub *media.SubStream) {
	if _, ok := t.byType[sub.MediaType]; ok {
		return
	}
	t.byType[sub.MediaType] = sub
}

func (t *subStreamTable) get(mediaType media.Type) (*media.SubStream, error) {
	sub, ok := t.byType[mediaType]
	if !ok {
		return nil, protoerr.NewIOError("source.get_sub_stream", fmt.Errorf("no %s sub-stream", mediaType))
	}
	return sub, nil
}

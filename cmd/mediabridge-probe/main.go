// Command mediabridge-probe is a narrow diagnostic CLI: it opens a single
// source (C1), prints its discovered sub-streams and codec parameters as
// JSON, and exits — the analogue of the teacher's cmd/blob-sidecar
// transcoder sidecars, a narrow independently buildable utility sharing
// the core packages.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/alxayo/go-rtmp/internal/media"
	"github.com/alxayo/go-rtmp/internal/source"
)

type probeResult struct {
	SubStreams []probeSubStream `json:"sub_streams"`
}

type probeSubStream struct {
	MediaType string                  `json:"media_type"`
	Index     int                     `json:"index"`
	CodecPar  media.CodecParameters   `json:"codec_parameters"`
}

func main() {
	method := flag.String("method", "network", "source method: file|network|webcam")
	url := flag.String("url", "", "input url (path, rtsp:// url, or device path)")
	width := flag.Int("width", 0, "webcam width hint")
	height := flag.Int("height", 0, "webcam height hint")
	framerate := flag.Int("framerate", 0, "webcam framerate hint")
	rtspTransport := flag.String("rtsp-transport", "tcp", "udp|tcp")
	flag.Parse()

	if *url == "" {
		fmt.Fprintln(os.Stderr, "-url is required")
		os.Exit(2)
	}

	opts := source.Options{
		Method:        *method,
		InputURL:      *url,
		Width:         *width,
		Height:        *height,
		Framerate:     *framerate,
		RtspTransport: *rtspTransport,
	}

	src, err := source.New(opts)
	if err != nil {
		fmt.Fprintln(os.Stderr, "probe:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := src.Open(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "probe:", err)
		os.Exit(1)
	}
	defer src.Close()

	var result probeResult
	for _, mt := range []media.Type{media.TypeVideo, media.TypeAudio, media.TypeSubtitle} {
		sub, err := src.GetSubStream(mt)
		if err != nil {
			continue
		}
		result.SubStreams = append(result.SubStreams, probeSubStream{
			MediaType: mt.String(),
			Index:     sub.Index,
			CodecPar:  sub.CodecPar,
		})
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		fmt.Fprintln(os.Stderr, "probe: encode result:", err)
		os.Exit(1)
	}
}

package transcode

import (
	"context"

	"github.com/alxayo/go-rtmp/internal/filter"
	"github.com/alxayo/go-rtmp/internal/media"
)

// New builds the encode filter for a video sub-stream: a decode subprocess
// matched to codecPar's codec id, and an encode subprocess configured per
// opts. codecParOut, when non-nil, is overwritten with the encoder's
// post-open codec parameters after its first output packet.
func New(ctx context.Context, codecPar media.CodecParameters, opts Options, codecParOut *media.CodecParameters) (filter.Filter, error) {
	dec, err := newFFmpegDecoder(ctx, opts.BinPath, codecPar, opts)
	if err != nil {
		return nil, err
	}
	enc, err := newFFmpegEncoder(ctx, opts.BinPath, int(codecPar.Width), int(codecPar.Height), opts)
	if err != nil {
		_ = dec.Close()
		return nil, err
	}
	return newTranscodeFilter(dec, enc, opts, codecParOut), nil
}

package main

import (
	"context"
	"fmt"

	"github.com/alxayo/go-rtmp/internal/config"
	"github.com/alxayo/go-rtmp/internal/filter"
	"github.com/alxayo/go-rtmp/internal/filter/bsf"
	"github.com/alxayo/go-rtmp/internal/filter/transcode"
	"github.com/alxayo/go-rtmp/internal/media"
)

// buildChain constructs the ordered filter chain for one stream's "filters"
// configuration, walking the list the way spec.md §4.2 describes: a "bsf"
// entry resolves a bitstream filter by name or by codec id default; an
// "encode" entry spawns the ffmpeg-backed decode/throttle/re-encode filter
// and rewrites sub.CodecPar with its output parameters once opened.
func buildChain(ctx context.Context, specs []config.FilterSpec, sub *media.SubStream) (*filter.Chain, error) {
	filters := make([]filter.Filter, 0, len(specs))
	for _, spec := range specs {
		switch spec.Type {
		case "bsf":
			name, err := bsf.Resolve(sub.CodecPar.CodecID, spec.BSFName)
			if err != nil {
				return nil, err
			}
			f, err := bsf.New(name, sub.CodecPar)
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)

		case "encode":
			opts := transcode.Options{
				DecThreadCount: spec.DecThreadCount,
				DecThreadType:  spec.DecThreadType,
				EncName:        spec.EncName,
				EncBitRate:     spec.EncBitRate,
				EncFramerate:   spec.EncFramerate,
				EncGopSize:     spec.EncGopSize,
				EncMaxBFrames:  spec.EncMaxBFrames,
				EncQMin:        spec.EncQMin,
				EncQMax:        spec.EncQMax,
				EncThreadCount: spec.EncThreadCount,
				EncOpenOptions: spec.EncOpenOptions,
			}
			f, err := transcode.New(ctx, sub.CodecPar, opts, &sub.CodecPar)
			if err != nil {
				return nil, err
			}
			filters = append(filters, f)

		default:
			return nil, fmt.Errorf("unknown filter type %q", spec.Type)
		}
	}
	return filter.NewChain(filters...), nil
}

package transcode

import (
	"fmt"

	"github.com/alxayo/go-rtmp/internal/media"
)

// ffmpegDecoderName maps a sub-stream's codec id to the ffmpeg decoder name
// used to build the decode subprocess's "-c:v" argument.
func ffmpegDecoderName(codecID uint32) (string, error) {
	switch codecID {
	case media.CodecH264:
		return "h264", nil
	case media.CodecHEVC:
		return "hevc", nil
	case media.CodecRawVideo:
		return "rawvideo", nil
	default:
		return "", fmt.Errorf("no ffmpeg decoder mapping for codec id %d", codecID)
	}
}

// ffmpegMpegTSStreamType maps a codec id to the MPEG-TS PMT stream type
// used when muxing packets into the TS container fed to the decode
// subprocess's stdin.
func ffmpegMpegTSStreamType(codecID uint32) (byte, error) {
	const (
		streamTypeH264 = 0x1b
		streamTypeHEVC = 0x24
	)
	switch codecID {
	case media.CodecH264:
		return streamTypeH264, nil
	case media.CodecHEVC:
		return streamTypeHEVC, nil
	default:
		return 0, fmt.Errorf("no MPEG-TS stream type mapping for codec id %d", codecID)
	}
}

// encOutputCodecID maps an "enc_name" configuration value to the symbolic
// codec id published in the post-filter codec parameters.
func encOutputCodecID(encName string) uint32 {
	switch encName {
	case "libx265", "hevc_vaapi", "hevc_nvenc":
		return media.CodecHEVC
	default:
		return media.CodecH264
	}
}

package source

import "github.com/alxayo/go-rtmp/internal/config"

// FromStreamSpec builds source Options from a configured stream entry.
func FromStreamSpec(s config.StreamSpec) Options {
	return Options{
		Method:        s.Method,
		InputURL:      s.InputURL,
		InputFormat:   s.InputFormat,
		Width:         s.Width,
		Height:        s.Height,
		Framerate:     s.Framerate,
		PixelFormat:   s.PixelFormat,
		Rtbufsize:     s.Rtbufsize,
		MaxDelay:      s.MaxDelay,
		RtspTransport: s.RtspTransport,
		Stimeout:      s.Stimeout,
		DumpFormat:    s.DumpFormat,
		LoopOnEOF:     s.LoopOnEOF,
	}
}

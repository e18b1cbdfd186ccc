// Package config loads and validates the server's YAML configuration
// document. Validation mirrors the style of the teacher CLI's flag
// validation: explicit, per-field checks that return wrapped config errors
// rather than a generic schema validator.
package config

import (
	"fmt"
	"os"

	protoerr "github.com/alxayo/go-rtmp/internal/errors"
	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML document described in the spec's External
// Interfaces section.
type Config struct {
	Log                LogConfig    `yaml:"log"`
	Server             ServerConfig `yaml:"server"`
	Streams            []StreamSpec `yaml:"streams"`
	StreamGetFrequency float64      `yaml:"stream_get_frequency"`
	StreamUIEnable     bool         `yaml:"stream_ui_enable"`
}

// LogConfig holds logging knobs.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ServerConfig holds bind/transport and HTTP/CORS/stream knobs.
type ServerConfig struct {
	BindAddr    string     `yaml:"bind_addr"`
	Port        int        `yaml:"port"`
	ThreadCount int        `yaml:"thread_count"`
	HTTP        HTTPConfig `yaml:"http"`
	CORS        CORSConfig `yaml:"cors"`
	Stream      StreamHTTPConfig `yaml:"stream"`
}

// HTTPConfig controls static file serving and optional TLS.
type HTTPConfig struct {
	Enable  bool   `yaml:"enable"`
	DocRoot string `yaml:"doc_root"`
	SSLCrt  string `yaml:"ssl_crt"`
	SSLKey  string `yaml:"ssl_key"`
	SSLDH   string `yaml:"ssl_dh"`
}

// CORSConfig controls the Access-Control-* headers applied to HTTP responses.
type CORSConfig struct {
	Enable           bool     `yaml:"enable"`
	AllowOrigins     []string `yaml:"allow_origins"`
	AllowMethods     []string `yaml:"allow_methods"`
	AllowHeaders     []string `yaml:"allow_headers"`
}

// StreamHTTPConfig controls the index/websocket endpoint surfaces.
type StreamHTTPConfig struct {
	HTTPTarget       string `yaml:"http_target"`
	WSTargetPrefix   string `yaml:"ws_target_prefix"`
	SendQueueMaxSize int    `yaml:"send_queue_max_size"`
}

// VideoFilterOptions is the per-stream video filter configuration block
// named "video" in the YAML document.
type VideoFilterOptions struct {
	SWSEnable *bool `yaml:"sws_enable"`
}

// FilterSpec is one entry in a stream's ordered filter chain.
type FilterSpec struct {
	Type      string `yaml:"type"` // "bsf" | "encode"
	BSFName   string `yaml:"bsf_name"`
	DecName   string `yaml:"dec_name"`

	DecThreadCount int    `yaml:"dec_thread_count"`
	DecThreadType  string `yaml:"dec_thread_type"`

	EncName         string            `yaml:"enc_name"`
	EncBitRate      int64             `yaml:"enc_bit_rate"`
	EncFramerate    float64           `yaml:"enc_framerate"`
	EncGopSize      int               `yaml:"enc_gop_size"`
	EncMaxBFrames   int               `yaml:"enc_max_b_frames"`
	EncQMin         int               `yaml:"enc_qmin"`
	EncQMax         int               `yaml:"enc_qmax"`
	EncThreadCount  int               `yaml:"enc_thread_count"`
	EncOpenOptions  map[string]string `yaml:"enc_open_options"`
}

// StreamSpec is one entry in the top-level "streams" list: source options
// plus its ordered filter chain.
type StreamSpec struct {
	ID string `yaml:"id"`

	Method       string `yaml:"method"` // "file" | "network" | "webcam"
	InputURL     string `yaml:"input_url"`
	InputFormat  string `yaml:"input_format"`
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	Framerate    int    `yaml:"framerate"`
	PixelFormat  string `yaml:"pixel_format"`
	Rtbufsize    int64  `yaml:"rtbufsize"`
	MaxDelay     int64  `yaml:"max_delay"`
	RtspTransport string `yaml:"rtsp_transport"` // "udp" | "tcp"
	Stimeout     int64  `yaml:"stimeout"`
	DumpFormat   bool   `yaml:"dump_format"`

	LoopOnEOF bool `yaml:"loop_on_eof"`

	Video   VideoFilterOptions `yaml:"video"`
	Filters []FilterSpec       `yaml:"filters"`
}

// Load reads, parses, and validates a YAML configuration document.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, protoerr.NewConfigError("config.load", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, protoerr.NewConfigError("config.parse", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Server.BindAddr == "" {
		c.Server.BindAddr = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ThreadCount == 0 {
		c.Server.ThreadCount = 3
	}
	if c.Server.Stream.HTTPTarget == "" {
		c.Server.Stream.HTTPTarget = "/streams"
	}
	if c.Server.Stream.WSTargetPrefix == "" {
		c.Server.Stream.WSTargetPrefix = "/stream/"
	}
	if c.Server.Stream.SendQueueMaxSize == 0 {
		c.Server.Stream.SendQueueMaxSize = 5
	}
	if c.StreamGetFrequency == 0 {
		c.StreamGetFrequency = 20
	}
	for i := range c.Streams {
		s := &c.Streams[i]
		if s.RtspTransport == "" {
			s.RtspTransport = "tcp"
		}
	}
}

// Validate checks every field the spec calls out as required or
// enumerated, returning the first violation as a *errors.ConfigError.
func (c *Config) Validate() error {
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return protoerr.NewConfigError("config.log.level", fmt.Errorf("invalid level %q", c.Log.Level))
	}

	if c.Server.Stream.SendQueueMaxSize <= 0 {
		return protoerr.NewConfigError("config.server.stream.send_queue_max_size", fmt.Errorf("must be positive"))
	}
	if c.StreamGetFrequency <= 0 {
		return protoerr.NewConfigError("config.stream_get_frequency", fmt.Errorf("must be positive"))
	}

	seen := make(map[string]bool, len(c.Streams))
	for i := range c.Streams {
		s := &c.Streams[i]
		if err := s.validate(); err != nil {
			return err
		}
		if seen[s.ID] {
			return protoerr.NewConfigError("config.streams.id", fmt.Errorf("duplicate stream id %q", s.ID))
		}
		seen[s.ID] = true
	}
	return nil
}

func (s *StreamSpec) validate() error {
	if s.ID == "" {
		return protoerr.NewConfigError("config.streams.id", fmt.Errorf("stream id must not be empty"))
	}
	if s.InputURL == "" {
		return protoerr.NewConfigError("config.streams.input_url", fmt.Errorf("stream %q: input_url must not be empty", s.ID))
	}
	switch s.Method {
	case "file", "network", "webcam":
	default:
		return protoerr.NewConfigError("config.streams.method", fmt.Errorf("stream %q: unknown method %q", s.ID, s.Method))
	}
	switch s.RtspTransport {
	case "udp", "tcp":
	default:
		return protoerr.NewConfigError("config.streams.rtsp_transport", fmt.Errorf("stream %q: rtsp_transport must be udp or tcp, got %q", s.ID, s.RtspTransport))
	}
	for _, f := range s.Filters {
		switch f.Type {
		case "bsf", "encode":
		default:
			return protoerr.NewConfigError("config.streams.filters.type", fmt.Errorf("stream %q: unknown filter type %q", s.ID, f.Type))
		}
	}
	return nil
}

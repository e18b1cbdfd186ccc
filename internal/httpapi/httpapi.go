// Package httpapi implements the HTTP surface: the JSON stream registry
// snapshot and static file serving, with explicit precondition checks in
// the teacher's style rather than a routing framework.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/alxayo/go-rtmp/internal/hub"
	"github.com/alxayo/go-rtmp/internal/media"
)

// streamSummary is one registry entry as exposed by GET /streams.
type streamSummary struct {
	ID          string                              `json:"id"`
	CodecParams map[string]codecParamsSummary        `json:"codec_parameters"`
}

type codecParamsSummary struct {
	CodecID uint32 `json:"codec_id"`
	Width   int32  `json:"width,omitempty"`
	Height  int32  `json:"height,omitempty"`
	BitRate int64  `json:"bit_rate,omitempty"`
}

// StreamsHandler answers GET /streams with the hub's registry snapshot.
// Only GET and HEAD are accepted; anything else is 400, matching the
// teacher's explicit method checks rather than relying on mux defaults.
func StreamsHandler(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusBadRequest)
			return
		}

		streams := h.Streams()
		out := make([]streamSummary, 0, len(streams))
		for _, s := range streams {
			summary := streamSummary{ID: s.ID, CodecParams: make(map[string]codecParamsSummary)}
			for mt, cp := range s.CodecParameters() {
				summary.CodecParams[mediaTypeName(mt)] = codecParamsSummary{
					CodecID: cp.CodecID,
					Width:   cp.Width,
					Height:  cp.Height,
					BitRate: cp.BitRate,
				}
			}
			out = append(out, summary)
		}

		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodHead {
			return
		}
		if err := json.NewEncoder(w).Encode(out); err != nil {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
	}
}

func mediaTypeName(mt media.Type) string { return mt.String() }

// StaticFileHandler serves doc_root. It answers 400 itself for methods
// other than GET/HEAD and hands every other request to net/http.FileServer,
// whose own error mapping supplies 404 for a missing file and 500 for other
// I/O errors (403 for a permission error).
func StaticFileHandler(docRoot string) http.HandlerFunc {
	fileServer := http.FileServer(http.Dir(docRoot))
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			http.Error(w, "method not allowed", http.StatusBadRequest)
			return
		}
		fileServer.ServeHTTP(w, r)
	}
}

// CORSConfig is the set of headers applied to every response when CORS is
// enabled.
type CORSConfig struct {
	Enable       bool
	AllowOrigins []string
	AllowMethods []string
	AllowHeaders []string
}

// CORSMiddleware applies the configured Access-Control-* headers per
// request, grounded in the explicit per-request header/validation style
// already used by the teacher's hooks webhook dispatch rather than a CORS
// framework.
func CORSMiddleware(cfg CORSConfig, next http.Handler) http.Handler {
	if !cfg.Enable {
		return next
	}
	origins := joinOrEmpty(cfg.AllowOrigins)
	methods := joinOrEmpty(cfg.AllowMethods)
	headers := joinOrEmpty(cfg.AllowHeaders)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origins != "" {
			w.Header().Set("Access-Control-Allow-Origin", origins)
		}
		if methods != "" {
			w.Header().Set("Access-Control-Allow-Methods", methods)
		}
		if headers != "" {
			w.Header().Set("Access-Control-Allow-Headers", headers)
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func joinOrEmpty(vals []string) string {
	out := ""
	for i, v := range vals {
		if i > 0 {
			out += ", "
		}
		out += v
	}
	return out
}

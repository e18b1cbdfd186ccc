package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alxayo/go-rtmp/internal/hub"
	"github.com/alxayo/go-rtmp/internal/media"
)

func TestStreamsHandlerRejectsNonGetHead(t *testing.T) {
	h := hub.New(5)
	req := httptest.NewRequest(http.MethodPost, "/streams", nil)
	rec := httptest.NewRecorder()
	StreamsHandler(h).ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for POST, got %d", rec.Code)
	}
}

func TestStreamsHandlerReturnsRegistrySnapshot(t *testing.T) {
	h := hub.New(5)
	h.Publish("cam1", media.TypeVideo, media.CodecParameters{CodecID: media.CodecH264, Width: 640, Height: 480}, &media.Packet{})

	req := httptest.NewRequest(http.MethodGet, "/streams", nil)
	rec := httptest.NewRecorder()
	StreamsHandler(h).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var out []streamSummary
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(out) != 1 || out[0].ID != "cam1" {
		t.Fatalf("expected one entry for cam1, got %+v", out)
	}
	if out[0].CodecParams["video"].Width != 640 {
		t.Fatalf("expected video width 640, got %+v", out[0].CodecParams)
	}
}

func TestCORSMiddlewareAppliesConfiguredHeaders(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	mw := CORSMiddleware(CORSConfig{Enable: true, AllowOrigins: []string{"*"}, AllowMethods: []string{"GET"}}, next)

	req := httptest.NewRequest(http.MethodGet, "/streams", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected wildcard origin header, got %q", got)
	}
}

func TestCORSMiddlewareSkippedWhenDisabled(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })
	mw := CORSMiddleware(CORSConfig{Enable: false}, next)

	req := httptest.NewRequest(http.MethodGet, "/streams", nil)
	rec := httptest.NewRecorder()
	mw.ServeHTTP(rec, req)

	if !called || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected pass-through with no CORS headers when disabled")
	}
}

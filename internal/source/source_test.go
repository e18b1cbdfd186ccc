package source

import (
	"testing"

	protoerr "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/media"
)

func TestDefaultRtbufsizeUsesFloorOf15FPS(t *testing.T) {
	got := defaultRtbufsize(640, 480, 5)
	want := int64(640) * 480 * 15 * 2
	if got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestDefaultRtbufsizeHonorsHigherFramerate(t *testing.T) {
	got := defaultRtbufsize(1920, 1080, 30)
	want := int64(1920) * 1080 * 30 * 2
	if got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestNewRejectsUnknownMethod(t *testing.T) {
	_, err := New(Options{Method: "bogus", InputURL: "x"})
	if protoerr.Kind(err) != "config" {
		t.Fatalf("expected config error, got %v", err)
	}
}

func TestNewDispatchesByMethod(t *testing.T) {
	cases := map[string]interface{}{
		"file":    &filesource{},
		"network": &rtspsource{},
		"webcam":  &webcamsource{},
	}
	for method, want := range cases {
		src, err := New(Options{Method: method, InputURL: "x"})
		if err != nil {
			t.Fatalf("method %s: %v", method, err)
		}
		switch want.(type) {
		case *filesource:
			if _, ok := src.(*filesource); !ok {
				t.Fatalf("method %s: expected *filesource, got %T", method, src)
			}
		case *rtspsource:
			if _, ok := src.(*rtspsource); !ok {
				t.Fatalf("method %s: expected *rtspsource, got %T", method, src)
			}
		case *webcamsource:
			if _, ok := src.(*webcamsource); !ok {
				t.Fatalf("method %s: expected *webcamsource, got %T", method, src)
			}
		}
	}
}

func TestSubStreamTableRecordsOnlyFirstOfEachType(t *testing.T) {
	tbl := newSubStreamTable()
	first := &media.SubStream{MediaType: media.TypeVideo, Index: 0, CodecPar: media.CodecParameters{CodecID: media.CodecH264}}
	second := &media.SubStream{MediaType: media.TypeVideo, Index: 1, CodecPar: media.CodecParameters{CodecID: media.CodecHEVC}}
	tbl.record(first)
	tbl.record(second)

	got, err := tbl.get(media.TypeVideo)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.CodecPar.CodecID != media.CodecH264 {
		t.Fatalf("expected the first recorded sub-stream to be kept, got codec %d", got.CodecPar.CodecID)
	}
}

func TestSubStreamTableMissingTypeIsIOError(t *testing.T) {
	tbl := newSubStreamTable()
	_, err := tbl.get(media.TypeAudio)
	if protoerr.Kind(err) != "io" {
		t.Fatalf("expected io error for missing sub-stream, got %v", err)
	}
}

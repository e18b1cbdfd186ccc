package wsapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alxayo/go-rtmp/internal/hub"
	"github.com/alxayo/go-rtmp/internal/media"
)

func dialWS(t *testing.T, serverURL, path string) *websocket.Conn {
	t.Helper()
	wsURL := "ws" + strings.TrimPrefix(serverURL, "http") + path
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	return conn
}

func TestHandlerClosesUnknownStreamAfterUpgrade(t *testing.T) {
	h := hub.New(5)
	srv := httptest.NewServer(Handler(h, "/stream/"))
	defer srv.Close()

	conn := dialWS(t, srv.URL, "/stream/does-not-exist")
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected the connection to be closed for an unknown stream id")
	}
}

func TestHandlerForwardsPublishedPacketsToSession(t *testing.T) {
	h := hub.New(5)
	h.Publish("cam1", media.TypeVideo, media.CodecParameters{CodecID: media.CodecH264}, &media.Packet{})

	srv := httptest.NewServer(Handler(h, "/stream/"))
	defer srv.Close()

	conn := dialWS(t, srv.URL, "/stream/cam1")
	defer conn.Close()

	time.Sleep(20 * time.Millisecond) // let Join register before publishing
	h.Publish("cam1", media.TypeVideo, media.CodecParameters{CodecID: media.CodecH264}, &media.Packet{PTS: 1, Payload: []byte{1, 2, 3}})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	msgType, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if msgType != websocket.BinaryMessage {
		t.Fatalf("expected binary frame, got type %d", msgType)
	}
	if len(data) == 0 {
		t.Fatalf("expected a non-empty wire-encoded packet")
	}
}

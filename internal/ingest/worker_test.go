package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	protoerr "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/filter"
	"github.com/alxayo/go-rtmp/internal/hooks"
	"github.com/alxayo/go-rtmp/internal/media"
	"github.com/alxayo/go-rtmp/internal/source"
)

// passthroughFilter forwards every packet unchanged, standing in for the
// spec's "empty chain" case.
type passthroughFilter struct {
	pending *media.Packet
}

func (f *passthroughFilter) Send(pkt *media.Packet) (filter.Status, error) {
	f.pending = pkt
	return filter.StatusOK, nil
}
func (f *passthroughFilter) Recv() (*media.Packet, filter.Status, error) {
	out := f.pending
	f.pending = nil
	if out == nil {
		return nil, filter.StatusBreak, nil
	}
	return out, filter.StatusBreak, nil
}
func (f *passthroughFilter) Close() error { return nil }

// fakeSource yields a fixed number of packets then EOF.
type fakeSource struct {
	mu        sync.Mutex
	remaining int
	opened    bool
	closed    bool
	videoSub  media.SubStream
}

func newFakeSource(count int) *fakeSource {
	return &fakeSource{
		remaining: count,
		videoSub:  media.SubStream{MediaType: media.TypeVideo, Index: 0, CodecPar: media.CodecParameters{CodecID: media.CodecH264}},
	}
}

func (s *fakeSource) Open(ctx context.Context) error {
	s.opened = true
	return nil
}
func (s *fakeSource) NextPacket() (*media.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.remaining <= 0 {
		return nil, protoerr.NewEOFError("fake.next_packet", nil)
	}
	s.remaining--
	return &media.Packet{StreamIndex: 0, Flags: media.FlagKey}, nil
}
func (s *fakeSource) GetSubStream(mt media.Type) (*media.SubStream, error) {
	if mt != media.TypeVideo {
		return nil, protoerr.NewIOError("fake.get_sub_stream", nil)
	}
	cp := s.videoSub
	return &cp, nil
}
func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakePublisher struct {
	mu    sync.Mutex
	count int
}

func (p *fakePublisher) Publish(streamID string, mediaType media.Type, codecPar media.CodecParameters, pkt *media.Packet) error {
	p.mu.Lock()
	p.count++
	p.mu.Unlock()
	return nil
}

func (p *fakePublisher) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.count
}

func newTestWorker(t *testing.T, src *fakeSource, pub *fakePublisher, loopOnEOF bool, events hooks.Sink) *Worker {
	t.Helper()
	return New(Config{
		StreamID:  "cam1",
		NewSource: func(source.Options) (source.Source, error) { return src, nil },
		NewChain:  func(*media.SubStream) (*filter.Chain, error) { return filter.NewChain(&passthroughFilter{}), nil },
		Publisher: pub,
		Frequency: 1000, // fast ticks to keep the test quick
		Events:    events,
		LoopOnEOF: loopOnEOF,
	})
}

func TestWorkerPublishesEveryPacketThenStopsOnEOF(t *testing.T) {
	src := newFakeSource(5)
	pub := &fakePublisher{}
	events := make(hooks.Sink, 64)
	w := newTestWorker(t, src, pub, false, events)

	done := make(chan struct{})
	go func() {
		w.Start(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("worker did not stop after EOF")
	}

	if pub.Count() != 5 {
		t.Fatalf("expected 5 published packets, got %d", pub.Count())
	}
	if w.State() != StateIdle {
		t.Fatalf("expected worker to settle in IDLE after CLOSED, got %v", w.State())
	}
	if !src.closed {
		t.Fatalf("expected source to be closed")
	}
}

func TestWorkerLoopsOnEOFWhenConfigured(t *testing.T) {
	src := newFakeSource(3)
	pub := &fakePublisher{}
	events := make(hooks.Sink, 64)
	w := newTestWorker(t, src, pub, true, events)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	<-done

	var sawLoop bool
	for {
		select {
		case ev := <-events:
			if ev.Type == hooks.EventLoop {
				sawLoop = true
			}
		default:
			goto checked
		}
	}
checked:
	if !sawLoop {
		t.Fatalf("expected at least one LOOP event when loop_on_eof is true and the source repeatedly exhausts")
	}
}

func TestWorkerStopIsIdempotentAndSettlesIdle(t *testing.T) {
	src := newFakeSource(1_000_000)
	pub := &fakePublisher{}
	events := make(hooks.Sink, 1024)
	w := newTestWorker(t, src, pub, false, events)

	go w.Start(context.Background())
	time.Sleep(10 * time.Millisecond)

	w.Stop()
	w.Stop() // a second Stop must return at once rather than block or panic
	if w.State() != StateIdle {
		t.Fatalf("expected IDLE after Stop settles, got %v", w.State())
	}
}

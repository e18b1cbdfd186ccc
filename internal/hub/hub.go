// Package hub implements the publish/subscribe fan-out (C4): a registry of
// streams keyed by id, each owning its own subscriber set and per-subscriber
// bounded outbound queue. Grounded in the teacher's
// internal/rtmp/server.Registry/Stream (sync.RWMutex-guarded map, per-stream
// mutex, snapshot-then-release-lock broadcast), generalized from RTMP
// audio/video sequence headers to this spec's codec-parameters-per-media-type
// model.
package hub

import (
	"sync"

	"github.com/alxayo/go-rtmp/internal/media"
	"github.com/alxayo/go-rtmp/internal/wire"
)

// Subscriber is the hub's view of a WebSocket session. Write performs one
// blocking binary-frame write and is called at most once at a time by the
// owning subscriberQueue's drain goroutine — the hub never calls Write
// concurrently for the same subscriber, which is what satisfies the
// at-most-one-write-in-flight invariant (spec.md §8).
type Subscriber interface {
	Write(buf []byte) error
	// Close ends the session, e.g. after a codec-parameter change.
	Close()
}

// Stream is one registered stream's codec parameters and subscriber set.
type Stream struct {
	ID string

	mu         sync.RWMutex
	codecPars  map[media.Type]media.CodecParameters
	subs       map[Subscriber]*subscriberQueue
}

func newStream(id string) *Stream {
	return &Stream{
		ID:        id,
		codecPars: make(map[media.Type]media.CodecParameters),
		subs:      make(map[Subscriber]*subscriberQueue),
	}
}

// CodecParameters returns a snapshot of the stream's known codec parameters
// keyed by media type, used to answer GET /streams.
func (s *Stream) CodecParameters() map[media.Type]media.CodecParameters {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[media.Type]media.CodecParameters, len(s.codecPars))
	for k, v := range s.codecPars {
		out[k] = v.Clone()
	}
	return out
}

// Hub owns the registry of streams. The registry mutex is never held across
// an I/O operation: Publish snapshots the subscriber set and releases the
// registry lock before touching any session queue, per spec.md §5.
type Hub struct {
	mu             sync.RWMutex
	streams        map[string]*Stream
	sendQueueMax   int
}

// New creates an empty hub with the given per-subscriber outbound queue
// bound (spec.md §6, server.stream.send_queue_max_size).
func New(sendQueueMax int) *Hub {
	if sendQueueMax <= 0 {
		sendQueueMax = 5
	}
	return &Hub{streams: make(map[string]*Stream), sendQueueMax: sendQueueMax}
}

// Streams returns a snapshot of every registered stream, for GET /streams.
func (h *Hub) Streams() []*Stream {
	h.mu.RLock()
	defer h.mu.RUnlock()
	out := make([]*Stream, 0, len(h.streams))
	for _, s := range h.streams {
		out = append(out, s)
	}
	return out
}

// Stream returns the registry entry for id, or nil if unknown. Used to
// authorize a WebSocket upgrade at `/<prefix>/<stream_id>`.
func (h *Hub) Stream(id string) *Stream {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.streams[id]
}

func (h *Hub) streamOrCreate(id string) *Stream {
	h.mu.RLock()
	if s, ok := h.streams[id]; ok {
		h.mu.RUnlock()
		return s
	}
	h.mu.RUnlock()

	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.streams[id]; ok {
		return s
	}
	s := newStream(id)
	h.streams[id] = s
	return s
}

// Remove deletes a stream from the registry, e.g. when its ingest worker
// stops for good. Any still-joined subscribers are closed first.
func (h *Hub) Remove(id string) {
	h.mu.Lock()
	s, ok := h.streams[id]
	if ok {
		delete(h.streams, id)
	}
	h.mu.Unlock()
	if !ok {
		return
	}
	s.mu.Lock()
	subs := make([]Subscriber, 0, len(s.subs))
	for sub, q := range s.subs {
		subs = append(subs, sub)
		q.stop()
	}
	s.subs = make(map[Subscriber]*subscriberQueue)
	s.mu.Unlock()
	for _, sub := range subs {
		sub.Close()
	}
}

// Publish serializes pkt via the wire codec and fans the resulting byte
// buffer out to every current subscriber of the stream's queue, per
// spec.md §4.4. On a material codec-parameter change from what was
// previously known for this media type, existing subscribers are closed
// instead of silently serving them stale parameters (SPEC_FULL.md §9).
func (h *Hub) Publish(streamID string, mediaType media.Type, codecPar media.CodecParameters, pkt *media.Packet) error {
	s := h.streamOrCreate(streamID)

	buf, err := wire.Encode(mediaType, pkt)
	if err != nil {
		return err
	}

	s.mu.Lock()
	prev, known := s.codecPars[mediaType]
	changed := known && codecParamsChanged(prev, codecPar)
	s.codecPars[mediaType] = codecPar.Clone()

	var toClose []Subscriber
	if changed {
		for sub, q := range s.subs {
			toClose = append(toClose, sub)
			q.stop()
			delete(s.subs, sub)
		}
	}

	queues := make([]*subscriberQueue, 0, len(s.subs))
	for _, q := range s.subs {
		queues = append(queues, q)
	}
	s.mu.Unlock()

	for _, sub := range toClose {
		sub.Close()
	}

	for _, q := range queues {
		q.push(buf, pkt.IsKey())
	}
	return nil
}

func codecParamsChanged(a, b media.CodecParameters) bool {
	if a.CodecID != b.CodecID || a.Width != b.Width || a.Height != b.Height {
		return true
	}
	return string(a.Extradata) != string(b.Extradata)
}

// Join adds a subscriber to a stream's fan-out set, atomically with
// respect to Publish: the subscriber either observes a given packet's
// enqueue entirely or not at all (spec.md §4.4 "Subscribe").
func (h *Hub) Join(streamID string, sub Subscriber) {
	s := h.streamOrCreate(streamID)
	q := newSubscriberQueue(sub, h.sendQueueMax)
	s.mu.Lock()
	s.subs[sub] = q
	s.mu.Unlock()
}

// Leave removes a subscriber from a stream's fan-out set and halts its
// queue's drain goroutine.
func (h *Hub) Leave(streamID string, sub Subscriber) {
	h.mu.RLock()
	s, ok := h.streams[streamID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	s.mu.Lock()
	q, ok := s.subs[sub]
	delete(s.subs, sub)
	s.mu.Unlock()
	if ok {
		q.stop()
	}
}

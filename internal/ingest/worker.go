// Package ingest implements the ingest worker (C3): owns exactly one
// source adapter instance and its filter chain, drives it at a
// configurable cadence, emits lifecycle events, and auto-recovers from
// end-of-stream. The run loop's monotonic-baseline catch-up behavior is
// grounded in the teacher's control-burst timing code
// (internal/rtmp/conn/control_burst.go), generalized from a one-shot
// burst into a recurring, self-correcting tick.
package ingest

import (
	"context"
	"sync"
	"time"

	protoerr "github.com/alxayo/go-rtmp/internal/errors"
	"github.com/alxayo/go-rtmp/internal/filter"
	"github.com/alxayo/go-rtmp/internal/hooks"
	"github.com/alxayo/go-rtmp/internal/media"
	"github.com/alxayo/go-rtmp/internal/source"
)

// State is one state in the worker's lifecycle state machine (spec.md
// §4.3).
type State uint8

const (
	StateIdle State = iota
	StateOpening
	StateRunning
	StateLoop
	StateFailed
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOpening:
		return "OPENING"
	case StateRunning:
		return "RUNNING"
	case StateLoop:
		return "LOOP"
	case StateFailed:
		return "FAILED"
	case StateClosing:
		return "CLOSING"
	case StateClosed:
		return "CLOSED"
	default:
		return "UNKNOWN"
	}
}

// Publisher is the worker's downstream: one packet that has finished the
// filter chain is handed to Publish for fan-out (C4).
type Publisher interface {
	Publish(streamID string, mediaType media.Type, codecPar media.CodecParameters, pkt *media.Packet) error
}

// Clock abstracts monotonic time for the run loop's cadence, so tests can
// drive it deterministically.
type Clock func() time.Time

// Config configures one worker instance.
type Config struct {
	StreamID    string
	SourceOpts  source.Options
	NewSource   func(source.Options) (source.Source, error)
	// NewChain builds the filter chain for the stream's video sub-stream.
	// It receives a pointer to the live sub-stream record so an encode
	// filter can write its post-filter codec parameters back into
	// sub.CodecPar in place (spec.md §4.2 step 3): every later Publish in
	// this run reads sub.CodecPar fresh, so the rewrite takes effect on
	// the very next tick.
	NewChain func(sub *media.SubStream) (*filter.Chain, error)
	Publisher   Publisher
	Frequency   float64 // Hz; defaults to 20 if <= 0
	Events      hooks.Sink
	Clock       Clock // defaults to time.Now
	LoopOnEOF   bool
}

// Worker owns one stream's ingest lifecycle, run on its own goroutine.
type Worker struct {
	cfg Config

	mu    sync.Mutex
	state State

	src   source.Source
	chain *filter.Chain

	stopCh chan struct{}
	doneCh chan struct{}
}

// New constructs a worker in the IDLE state. Call Start to begin running.
func New(cfg Config) *Worker {
	if cfg.Frequency <= 0 {
		cfg.Frequency = 20
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Worker{
		cfg:    cfg,
		state:  StateIdle,
		stopCh: make(chan struct{}),
		doneCh: make(chan struct{}),
	}
}

// State returns the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

// Start runs the worker's lifecycle loop until ctx is cancelled or Stop is
// called, then returns once CLOSED is reached.
func (w *Worker) Start(ctx context.Context) {
	defer close(w.doneCh)

	for {
		w.setState(StateOpening)
		w.cfg.Events.Send(hooks.NewEvent(hooks.EventOpen).WithStreamID(w.cfg.StreamID))

		src, chain, err := w.open(ctx)
		if err != nil {
			w.setState(StateFailed)
			w.cfg.Events.Send(hooks.NewEvent(hooks.EventError).WithStreamID(w.cfg.StreamID).WithData("kind", protoerr.Kind(err)).WithData("error", err.Error()))
			w.setState(StateIdle)
			return
		}
		w.src, w.chain = src, chain
		w.setState(StateRunning)
		w.cfg.Events.Send(hooks.NewEvent(hooks.EventOpened).WithStreamID(w.cfg.StreamID))

		outcome := w.runLoop(ctx)
		w.chain.Close()
		w.src.Close()

		switch outcome {
		case outcomeLoop:
			w.setState(StateLoop)
			w.cfg.Events.Send(hooks.NewEvent(hooks.EventLoop).WithStreamID(w.cfg.StreamID))
			continue // back to OPENING
		case outcomeStop:
			w.setState(StateClosing)
			w.cfg.Events.Send(hooks.NewEvent(hooks.EventClose).WithStreamID(w.cfg.StreamID))
			w.setState(StateClosed)
			w.cfg.Events.Send(hooks.NewEvent(hooks.EventClosed).WithStreamID(w.cfg.StreamID))
			w.setState(StateIdle)
			return
		case outcomeError:
			w.setState(StateFailed)
			w.setState(StateIdle)
			return
		}
	}
}

// Stop requests the run loop exit at its next tick boundary and blocks
// until CLOSED is reached.
func (w *Worker) Stop() {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
	<-w.doneCh
}

func (w *Worker) open(ctx context.Context) (source.Source, *filter.Chain, error) {
	src, err := w.cfg.NewSource(w.cfg.SourceOpts)
	if err != nil {
		return nil, nil, err
	}
	if err := src.Open(ctx); err != nil {
		return nil, nil, err
	}

	videoSub, err := src.GetSubStream(media.TypeVideo)
	if err != nil {
		src.Close()
		return nil, nil, err
	}

	chain, err := w.cfg.NewChain(videoSub)
	if err != nil {
		src.Close()
		return nil, nil, err
	}
	return src, chain, nil
}

type loopOutcome uint8

const (
	outcomeStop loopOutcome = iota
	outcomeLoop
	outcomeError
)

// runLoop drives the source/chain/publish cycle at cfg.Frequency, rate
// limited but not rate guaranteed: a tick that overruns its period does
// not accumulate debt, and a backward monotonic jump resets the baseline
// instead of producing a negative sleep (spec.md §4.3 "Cadence
// guarantees").
func (w *Worker) runLoop(ctx context.Context) loopOutcome {
	period := time.Duration(float64(time.Second) / w.cfg.Frequency)
	baseline := w.cfg.Clock()

	videoSub, err := w.src.GetSubStream(media.TypeVideo)
	if err != nil {
		w.cfg.Events.Send(hooks.NewEvent(hooks.EventError).WithStreamID(w.cfg.StreamID).WithData("kind", protoerr.Kind(err)))
		return outcomeError
	}

	for {
		select {
		case <-ctx.Done():
			return outcomeStop
		case <-w.stopCh:
			return outcomeStop
		default:
		}

		tickStart := w.cfg.Clock()
		if tickStart.Before(baseline) {
			baseline = tickStart
		}

		w.cfg.Events.Send(hooks.NewEvent(hooks.EventGetPacket).WithStreamID(w.cfg.StreamID))
		pkt, err := w.src.NextPacket()
		if err != nil {
			if protoerr.IsEOF(err) {
				if w.cfg.LoopOnEOF {
					return outcomeLoop
				}
				return outcomeStop
			}
			w.cfg.Events.Send(hooks.NewEvent(hooks.EventError).WithStreamID(w.cfg.StreamID).WithData("kind", protoerr.Kind(err)).WithData("error", err.Error()))
			return outcomeError
		}

		if pkt.StreamIndex == int32(videoSub.Index) {
			err := w.chain.Process(pkt, func(out *media.Packet) {
				w.cfg.Events.Send(hooks.NewEvent(hooks.EventGetFrame).WithStreamID(w.cfg.StreamID))
				w.cfg.Publisher.Publish(w.cfg.StreamID, media.TypeVideo, videoSub.CodecPar, out)
			})
			if err != nil {
				w.cfg.Events.Send(hooks.NewEvent(hooks.EventError).WithStreamID(w.cfg.StreamID).WithData("kind", protoerr.Kind(err)).WithData("error", err.Error()))
				return outcomeError
			}
		}

		elapsed := w.cfg.Clock().Sub(tickStart)
		remaining := period - elapsed
		if remaining > 0 {
			select {
			case <-time.After(remaining):
			case <-ctx.Done():
				return outcomeStop
			case <-w.stopCh:
				return outcomeStop
			}
		}
		// remaining <= 0: the tick overran its period; the next tick runs
		// immediately without trying to recover the lost time.
	}
}

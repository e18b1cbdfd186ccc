// Package filter implements the per-stream transformation chain that sits
// between the media source adapter and the publish/subscribe hub: bitstream
// reformatting and full decode/re-encode with framerate throttling.
package filter

import "github.com/alxayo/go-rtmp/internal/media"

// Status is the outcome of one Send or Recv call, modeling the
// send/recv protocol every filter in the chain exposes.
type Status uint8

const (
	// StatusOK: the call produced output (Recv) or accepted input (Send)
	// and there may be nothing more to report on this call alone.
	StatusOK Status = iota
	// StatusAgain: Send — call Send again with another packet before this
	// one can be fully accepted. Recv — there may be more output; call
	// Recv again.
	StatusAgain
	// StatusBreak: Send — this packet produced no output yet, move on to
	// the next inbound packet. Recv — output exhausted for now.
	StatusBreak
)

// Filter is one stage in a stream's filter chain.
//
// Ownership contract: Send consumes the packet passed to it — the caller
// must not read from it again afterward. Recv produces a packet the caller
// fully owns.
type Filter interface {
	// Send feeds one packet into the filter.
	Send(pkt *media.Packet) (Status, error)
	// Recv pulls the next output packet, if any.
	Recv() (*media.Packet, Status, error)
	// Close releases any resources (subprocess, codec context) held by the
	// filter. Idempotent.
	Close() error
}

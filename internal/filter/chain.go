package filter

import "github.com/alxayo/go-rtmp/internal/media"

// Chain is an ordered sequence of filters applied to every packet of one
// sub-stream. It walks the send/recv protocol exactly as described by the
// component design: Send to filter i (looping on Again); if not Break,
// drain filter i via Recv in a loop, recursively feeding each produced
// packet to filter i+1. The tail of the chain hands packets to emit.
type Chain struct {
	filters []Filter
}

// NewChain builds a chain from an ordered list of filters. An empty chain
// is valid and simply forwards every inbound packet to emit unchanged.
func NewChain(filters ...Filter) *Chain {
	return &Chain{filters: filters}
}

// Process runs pkt through the chain, calling emit once per packet that
// reaches the end of the chain. emit must not retain pkt beyond the call
// without cloning it, since later chain stages may reuse its buffer.
func (c *Chain) Process(pkt *media.Packet, emit func(*media.Packet)) error {
	return c.processAt(0, pkt, emit)
}

func (c *Chain) processAt(idx int, pkt *media.Packet, emit func(*media.Packet)) error {
	if idx >= len(c.filters) {
		emit(pkt)
		return nil
	}

	f := c.filters[idx]
	var sendStatus Status
	var err error
	for {
		sendStatus, err = f.Send(pkt)
		if err != nil {
			return err
		}
		if sendStatus != StatusAgain {
			break
		}
	}
	if sendStatus == StatusBreak {
		// This packet produced no output yet; move on to the next inbound
		// packet without draining Recv.
		return nil
	}

	for {
		out, recvStatus, err := f.Recv()
		if err != nil {
			return err
		}
		if out != nil {
			if err := c.processAt(idx+1, out, emit); err != nil {
				return err
			}
		}
		if recvStatus != StatusAgain {
			break
		}
	}
	return nil
}

// Close releases every filter in the chain in order, collecting the first
// error but still attempting to close the rest (every release path must be
// idempotent and attempted regardless of earlier failures).
func (c *Chain) Close() error {
	var first error
	for _, f := range c.filters {
		if err := f.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

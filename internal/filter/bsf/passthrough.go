package bsf

import (
	"github.com/alxayo/go-rtmp/internal/filter"
	"github.com/alxayo/go-rtmp/internal/media"
)

// passthroughFilter implements the "null" bsf: raw video requires no
// container reformatting, so the packet is forwarded unchanged.
type passthroughFilter struct {
	pending *media.Packet
}

func newPassthroughFilter() filter.Filter { return &passthroughFilter{} }

func (f *passthroughFilter) Send(pkt *media.Packet) (filter.Status, error) {
	if pkt == nil {
		return filter.StatusBreak, nil
	}
	f.pending = pkt
	return filter.StatusOK, nil
}

func (f *passthroughFilter) Recv() (*media.Packet, filter.Status, error) {
	if f.pending == nil {
		return nil, filter.StatusBreak, nil
	}
	out := f.pending
	f.pending = nil
	return out, filter.StatusBreak, nil
}

func (f *passthroughFilter) Close() error { return nil }

package transcode

import (
	"testing"
	"time"
)

func TestThrottlerAcceptsFirstFrame(t *testing.T) {
	base := time.Unix(0, 0)
	th := newThrottler(5, func() time.Time { return base })
	if !th.accept() {
		t.Fatalf("first frame must always be accepted")
	}
}

func TestThrottlerDropsTooFastFrames(t *testing.T) {
	now := time.Unix(0, 0)
	th := newThrottler(5, func() time.Time { return now }) // 200ms interval

	if !th.accept() {
		t.Fatalf("frame 0 should be accepted")
	}
	now = now.Add(50 * time.Millisecond)
	if th.accept() {
		t.Fatalf("frame at +50ms should be dropped (< 200ms interval)")
	}
	now = now.Add(160 * time.Millisecond) // total +210ms
	if !th.accept() {
		t.Fatalf("frame at +210ms should be accepted")
	}
}

func TestThrottlerDisabledWhenNonPositive(t *testing.T) {
	now := time.Unix(0, 0)
	th := newThrottler(0, func() time.Time { return now })
	for i := 0; i < 10; i++ {
		if !th.accept() {
			t.Fatalf("disabled throttle must accept every frame")
		}
	}
}

func TestPTSAssignerIsStrictlyIncreasingFromZero(t *testing.T) {
	var p ptsAssigner
	for i := int64(0); i < 5; i++ {
		if got := p.next(); got != i {
			t.Fatalf("expected pts %d, got %d", i, got)
		}
	}
}

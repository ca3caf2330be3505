package classifier

import "PcapLens/internal/core/model"

type segmentKey struct {
	seq    uint32
	length int
}

// RetransmissionTracker remembers the (sequence number, frame length) pairs
// seen on every directional connection. It must see the packets of a key in
// capture order.
type RetransmissionTracker struct {
	cutoff int
	seen   map[model.ConnectionKey]map[segmentKey]struct{}
}

// NewRetransmissionTracker creates a tracker. Frames of at most cutoff bytes
// are never reported.
func NewRetransmissionTracker(cutoff int) *RetransmissionTracker {
	return &RetransmissionTracker{
		cutoff: cutoff,
		seen:   make(map[model.ConnectionKey]map[segmentKey]struct{}),
	}
}

// Observe records a segment and reports whether it repeats an earlier
// segment of the same connection.
func (t *RetransmissionTracker) Observe(key model.ConnectionKey, seq uint32, length int) bool {
	segments, ok := t.seen[key]
	if !ok {
		segments = make(map[segmentKey]struct{})
		t.seen[key] = segments
	}

	sk := segmentKey{seq: seq, length: length}
	if _, dup := segments[sk]; dup && length > t.cutoff {
		return true
	}
	segments[sk] = struct{}{}
	return false
}

// Connections returns the number of tracked connections.
func (t *RetransmissionTracker) Connections() int {
	return len(t.seen)
}

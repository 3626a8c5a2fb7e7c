package bridge

import "sync"

// seqGen hands out per-event sequence numbers. The first call to next for
// an event returns 1.
type seqGen struct {
	mu  sync.Mutex
	val map[string]uint64
}

func newSeqGen() *seqGen {
	return &seqGen{val: make(map[string]uint64)}
}

func (s *seqGen) next(event string) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.val[event]++
	return s.val[event]
}

// replayFilter drops envelopes whose sequence number was already seen for
// the same event. It is owned by a single receive loop and needs no locking.
//
// Senders deliver in order per event, so anything at or below the last
// accepted number is a redelivery. Unstamped envelopes (seq 0) always pass.
type replayFilter struct {
	lastSeq map[string]uint64
}

func newReplayFilter() *replayFilter {
	return &replayFilter{lastSeq: make(map[string]uint64)}
}

// accept reports whether the envelope should be delivered and records it.
func (f *replayFilter) accept(event string, seq uint64) bool {
	if seq == 0 {
		return true
	}
	if seq <= f.lastSeq[event] {
		return false
	}
	f.lastSeq[event] = seq
	return true
}

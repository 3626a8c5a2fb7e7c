package call

import "github.com/1ureka/p2pcall/internal/protocol"

// SignalingQueue holds remote signaling that arrived before the local side
// could use it: at most one offer, plus candidates in arrival order.
// It is owned by the session goroutine and is not safe for concurrent use.
type SignalingQueue struct {
	offer      *protocol.Description
	candidates []protocol.Candidate
}

// HoldOffer stores d, replacing any offer already held.
func (q *SignalingQueue) HoldOffer(d protocol.Description) {
	q.offer = &d
}

// ReleaseOffer removes and returns the held offer; ok is false if none.
func (q *SignalingQueue) ReleaseOffer() (d protocol.Description, ok bool) {
	if q.offer == nil {
		return protocol.Description{}, false
	}
	d = *q.offer
	q.offer = nil
	return d, true
}

// HasOffer reports whether an offer is held.
func (q *SignalingQueue) HasOffer() bool {
	return q.offer != nil
}

// PoolCandidate appends c to the pool.
func (q *SignalingQueue) PoolCandidate(c protocol.Candidate) {
	q.candidates = append(q.candidates, c)
}

// DrainCandidates returns the pooled candidates in arrival order and empties
// the pool.
func (q *SignalingQueue) DrainCandidates() []protocol.Candidate {
	out := q.candidates
	q.candidates = nil
	return out
}

// Pooled returns the number of candidates waiting.
func (q *SignalingQueue) Pooled() int {
	return len(q.candidates)
}

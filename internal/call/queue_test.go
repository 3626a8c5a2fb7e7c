package call

import (
	"testing"

	"github.com/1ureka/p2pcall/internal/protocol"
)

func TestSignalingQueueOffer(t *testing.T) {
	var q SignalingQueue

	if _, ok := q.ReleaseOffer(); ok {
		t.Fatal("empty queue released an offer")
	}

	first := protocol.Description{Type: protocol.TypeOffer, SDP: "first"}
	second := protocol.Description{Type: protocol.TypeOffer, SDP: "second"}
	q.HoldOffer(first)
	q.HoldOffer(second)

	got, ok := q.ReleaseOffer()
	if !ok || got != second {
		t.Fatalf("ReleaseOffer = %+v, %v; want the most recent offer", got, ok)
	}
	if q.HasOffer() {
		t.Error("offer still held after release")
	}
	if _, ok := q.ReleaseOffer(); ok {
		t.Error("offer released twice")
	}
}

func TestSignalingQueueCandidatesFIFO(t *testing.T) {
	var q SignalingQueue
	for _, id := range []string{"c1", "c2", "c3"} {
		q.PoolCandidate(protocol.Candidate{Type: protocol.TypeCandidate, Candidate: id})
	}
	if q.Pooled() != 3 {
		t.Fatalf("Pooled() = %d, want 3", q.Pooled())
	}

	got := q.DrainCandidates()
	if len(got) != 3 {
		t.Fatalf("drained %d candidates, want 3", len(got))
	}
	for i, want := range []string{"c1", "c2", "c3"} {
		if got[i].Candidate != want {
			t.Errorf("candidate %d = %q, want %q", i, got[i].Candidate, want)
		}
	}

	if again := q.DrainCandidates(); len(again) != 0 {
		t.Errorf("second drain returned %d candidates", len(again))
	}
}

package call

import (
	"time"

	"github.com/1ureka/p2pcall/internal/media"
	"github.com/1ureka/p2pcall/internal/protocol"
)

// effect is a side effect requested by the machine and carried out by the
// session. Effects run in the order returned.
type effect interface{ isEffect() }

type (
	// efEmit sends an outbound event to the host.
	efEmit struct {
		event   string
		payload any
	}
	efRing struct{ on bool }

	// Presenter notifications.
	efShowState    struct{ status Status }
	efShowMode     struct{ audioOnly bool }
	efShowRemote   struct{ uid, streamID string }
	efShowDuration struct{ elapsed time.Duration }
	efShowError    struct{ err error }

	// Media.
	efAcquire struct {
		epoch     uint64
		audioOnly bool
	}
	efAdoptStream   struct{ stream *media.Stream }
	efReleaseStream struct{ stream *media.Stream }
	efStopVideo     struct{}
	efSetMuted      struct{ muted bool }

	// Negotiation; everything from efCreatePeer on runs on the pipeline worker.
	efCreatePeer struct {
		epoch     uint64
		audioOnly bool
	}
	efNegotiateOffer struct {
		epoch     uint64
		audioOnly bool
	}
	efNegotiateAnswer struct {
		epoch uint64
		offer protocol.Description
	}
	efApplyAnswer struct {
		epoch  uint64
		answer protocol.Description
	}
	efApplyCandidate struct {
		epoch uint64
		c     protocol.Candidate
	}

	// Call timer.
	efStartTimer struct{ epoch uint64 }
	efStopTimer  struct{}

	// efTeardown releases the stream, closes the peer connection, detaches
	// the command handlers and schedules the window to close.
	efTeardown struct{}
)

func (efEmit) isEffect()            {}
func (efRing) isEffect()            {}
func (efShowState) isEffect()       {}
func (efShowMode) isEffect()        {}
func (efShowRemote) isEffect()      {}
func (efShowDuration) isEffect()    {}
func (efShowError) isEffect()       {}
func (efAcquire) isEffect()         {}
func (efAdoptStream) isEffect()     {}
func (efReleaseStream) isEffect()   {}
func (efStopVideo) isEffect()       {}
func (efSetMuted) isEffect()        {}
func (efCreatePeer) isEffect()      {}
func (efNegotiateOffer) isEffect()  {}
func (efNegotiateAnswer) isEffect() {}
func (efApplyAnswer) isEffect()     {}
func (efApplyCandidate) isEffect()  {}
func (efStartTimer) isEffect()      {}
func (efStopTimer) isEffect()       {}
func (efTeardown) isEffect()        {}

package call

import (
	"time"

	"github.com/1ureka/p2pcall/internal/media"
	"github.com/1ureka/p2pcall/internal/protocol"
)

// Bridge is the messaging channel to the hosting process. Delivery is in
// order per event name.
type Bridge interface {
	Emit(event string, payload any) error
	On(event string, h protocol.Handler)
	RemoveAll(events ...string)
}

// PeerHandlers receive the negotiation engine's callbacks. They may be
// called from any goroutine.
type PeerHandlers struct {
	OnCandidate    func(c protocol.Candidate)
	OnStateChange  func(state string)
	OnRemoteStream func(streamID string)
}

// PeerFactory creates the negotiation engine for a call.
type PeerFactory interface {
	NewPeerConnection(h PeerHandlers) (PeerConnection, error)
}

// PeerConnection is the negotiation engine. Calls may block; the session
// makes them one at a time from a single worker.
type PeerConnection interface {
	// AddStream attaches the local tracks. In audio-only mode only audio is sent.
	AddStream(s *media.Stream, audioOnly bool) error
	// CreateOffer always asks to receive audio, and video unless audioOnly.
	CreateOffer(audioOnly bool) (protocol.Description, error)
	CreateAnswer() (protocol.Description, error)
	SetLocalDescription(d protocol.Description) error
	SetRemoteDescription(d protocol.Description) error
	AddICECandidate(c protocol.Candidate) error
	Close() error
}

// Presenter is the call window. Methods must not block. All but Close are
// called from the session goroutine.
type Presenter interface {
	StateChanged(s Status)
	ModeChanged(audioOnly bool)
	LocalStream(s *media.Stream)
	RemoteStream(uid, streamID string)
	Duration(elapsed time.Duration)
	ShowError(err error)
	Ring(on bool)
	// Close shuts the window; called once, after the shutdown delay, from
	// the timer's goroutine.
	Close()
}

// NopPresenter ignores everything.
type NopPresenter struct{}

func (NopPresenter) StateChanged(Status)         {}
func (NopPresenter) ModeChanged(bool)            {}
func (NopPresenter) LocalStream(*media.Stream)   {}
func (NopPresenter) RemoteStream(string, string) {}
func (NopPresenter) Duration(time.Duration)      {}
func (NopPresenter) ShowError(error)             {}
func (NopPresenter) Ring(bool)                   {}
func (NopPresenter) Close()                      {}

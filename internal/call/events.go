package call

import (
	"encoding/json"

	"github.com/1ureka/p2pcall/internal/media"
	"github.com/1ureka/p2pcall/internal/protocol"
)

// event is anything the session loop feeds to the machine: decoded host
// commands, local user actions, and completions of asynchronous work.
type event interface{ isEvent() }

// Host commands.
type (
	evInit            struct{ p protocol.InitCallUI }
	evStartMedia      struct{ p protocol.StartMedia }
	evRemoteOffer     struct{ d protocol.Description }
	evRemoteAnswer    struct{ d protocol.Description }
	evRemoteCandidate struct{ c protocol.Candidate }
	evEndCall         struct{}
	evDowngrade       struct{}
	evPing            struct{}
)

// Local user actions.
type (
	evAccept           struct{}
	evHangup           struct{}
	evToggleMute       struct{}
	evRequestAudioOnly struct{}
)

// Completions. Each carries the epoch current when its work was started.
type (
	evMediaAcquired struct {
		epoch  uint64
		stream *media.Stream
	}
	evMediaFailed struct {
		epoch uint64
		err   error
	}
	// evLocalDescription: a local offer or answer was created and applied.
	evLocalDescription struct {
		epoch uint64
		d     protocol.Description
	}
	evNegotiationFailed struct {
		epoch uint64
		err   error
	}
	evLocalCandidate struct {
		epoch uint64
		c     protocol.Candidate
	}
	evConnState struct {
		epoch uint64
		state string
	}
	evRemoteTrack struct {
		epoch    uint64
		streamID string
	}
	evTick struct{ epoch uint64 }
)

func (evInit) isEvent()              {}
func (evStartMedia) isEvent()        {}
func (evRemoteOffer) isEvent()       {}
func (evRemoteAnswer) isEvent()      {}
func (evRemoteCandidate) isEvent()   {}
func (evEndCall) isEvent()           {}
func (evDowngrade) isEvent()         {}
func (evPing) isEvent()              {}
func (evAccept) isEvent()            {}
func (evHangup) isEvent()            {}
func (evToggleMute) isEvent()        {}
func (evRequestAudioOnly) isEvent()  {}
func (evMediaAcquired) isEvent()     {}
func (evMediaFailed) isEvent()       {}
func (evLocalDescription) isEvent()  {}
func (evNegotiationFailed) isEvent() {}
func (evLocalCandidate) isEvent()    {}
func (evConnState) isEvent()         {}
func (evRemoteTrack) isEvent()       {}
func (evTick) isEvent()              {}

// decoder turns a raw command payload into an event.
type decoder func(payload json.RawMessage) (event, error)

// commandTable maps every inbound command name to its decoder.
var commandTable = map[string]decoder{
	protocol.CmdInitCallUI: func(p json.RawMessage) (event, error) {
		var v protocol.InitCallUI
		if err := protocol.DecodeJSON(p, &v); err != nil {
			return nil, err
		}
		return evInit{v}, nil
	},
	protocol.CmdStartMedia: func(p json.RawMessage) (event, error) {
		var v protocol.StartMedia
		if err := protocol.DecodeJSON(p, &v); err != nil {
			return nil, err
		}
		return evStartMedia{v}, nil
	},
	protocol.CmdSetRemoteOffer: func(p json.RawMessage) (event, error) {
		d, err := protocol.DecodeDescription(p)
		if err != nil {
			return nil, err
		}
		return evRemoteOffer{d}, nil
	},
	protocol.CmdSetRemoteAnswer: func(p json.RawMessage) (event, error) {
		d, err := protocol.DecodeDescription(p)
		if err != nil {
			return nil, err
		}
		return evRemoteAnswer{d}, nil
	},
	protocol.CmdSetRemoteCandidate: func(p json.RawMessage) (event, error) {
		c, err := protocol.DecodeCandidate(p)
		if err != nil {
			return nil, err
		}
		return evRemoteCandidate{c}, nil
	},
	protocol.CmdEndCall:          func(json.RawMessage) (event, error) { return evEndCall{}, nil },
	protocol.CmdDowngradeToVoice: func(json.RawMessage) (event, error) { return evDowngrade{}, nil },
	protocol.CmdPing:             func(json.RawMessage) (event, error) { return evPing{}, nil },
}

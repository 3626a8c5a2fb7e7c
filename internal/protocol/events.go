// Package protocol defines the bridge envelope, the event names exchanged with
// the hosting process, and the JSON payloads that travel inside them.
package protocol

import "encoding/json"

// Inbound command names (host → call session).
const (
	CmdInitCallUI         = "initCallUI"
	CmdStartMedia         = "startMedia"
	CmdSetRemoteOffer     = "setRemoteOffer"
	CmdSetRemoteAnswer    = "setRemoteAnswer"
	CmdSetRemoteCandidate = "setRemoteIceCandidate"
	CmdEndCall            = "endCall"
	CmdDowngradeToVoice   = "downgrade2Voice"
	CmdPing               = "ping"
)

// Outbound event names (call session → host).
const (
	EvtCallButton        = "onCallButton"
	EvtHangupButton      = "onHangupButton"
	EvtCreateAnswerOffer = "onCreateAnswerOffer"
	EvtIceCandidate      = "onIceCandidate"
	EvtIceStateChange    = "onIceStateChange"
	EvtDownToVoice       = "downToVoice"
	EvtPong              = "pong"
	EvtUpdateTime        = "onUpdateTime"
)

// Commands lists every inbound command name. The session registers a handler
// for each of them and detaches them all on teardown.
var Commands = []string{
	CmdInitCallUI,
	CmdStartMedia,
	CmdSetRemoteOffer,
	CmdSetRemoteAnswer,
	CmdSetRemoteCandidate,
	CmdEndCall,
	CmdDowngradeToVoice,
	CmdPing,
}

// Handler receives the raw payload of one named event.
type Handler func(payload json.RawMessage)

// Envelope is the JSON frame carried by the cross-context bridge.
// Seq is assigned per event name by the sender, starting at 1.
type Envelope struct {
	Event   string          `json:"event"`
	Seq     uint64          `json:"seq,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// UserInfo identifies the remote participant.
type UserInfo struct {
	UID         string `json:"uid"`
	DisplayName string `json:"displayName,omitempty"`
	Portrait    string `json:"portrait,omitempty"`
}

// InitCallUI is the payload of CmdInitCallUI.
type InitCallUI struct {
	MoCall                bool     `json:"moCall"`
	AudioOnly             bool     `json:"audioOnly"`
	TargetUserInfo        UserInfo `json:"targetUserInfo"`
	TargetUserDisplayName string   `json:"targetUserDisplayName"`

	// VoiceOnly is the older spelling of AudioOnly; either one selects audio.
	VoiceOnly bool `json:"voiceOnly,omitempty"`
}

// WantsAudioOnly reports whether the call should start without video.
func (p InitCallUI) WantsAudioOnly() bool {
	return p.AudioOnly || p.VoiceOnly
}

// StartMedia is the payload of CmdStartMedia.
type StartMedia struct {
	IsInitiator bool `json:"isInitiator"`
	AudioOnly   bool `json:"audioOnly"`
}

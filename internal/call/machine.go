package call

import (
	"time"

	"github.com/1ureka/p2pcall/internal/protocol"
	"github.com/1ureka/p2pcall/internal/util"
)

const iceStateConnected = "connected"

// machine holds the call state and decides, for each event, which effects
// the session must carry out. It never performs I/O itself.
//
// Every completion event is tagged with the epoch it was started under.
// Teardown bumps the epoch, so late completions from a torn-down call are
// recognized and ignored.
type machine struct {
	log util.Logger
	now func() time.Time

	status      Status
	audioOnly   bool
	muted       bool
	moCall      bool
	isInitiator bool
	pcSetuped   bool

	target     protocol.UserInfo
	targetName string
	startTime  time.Time

	initialized  bool
	ended        bool
	hasStream    bool
	acquiring    bool
	pendingStart bool // startMedia arrived before local media was ready
	hasPeer      bool
	remoteStream string // last announced remote stream id

	queue        SignalingQueue
	localPending []protocol.Candidate // local candidates gathered before our description went out

	epoch uint64
}

func newMachine(log util.Logger, now func() time.Time) *machine {
	return &machine{log: log, now: now}
}

func (m *machine) handle(ev event) []effect {
	switch e := ev.(type) {
	// Host commands.
	case evInit:
		return m.initialize(e.p)
	case evStartMedia:
		return m.startMedia(e.p)
	case evRemoteOffer:
		return m.remoteOffer(e.d)
	case evRemoteAnswer:
		return m.remoteAnswer(e.d)
	case evRemoteCandidate:
		return m.remoteCandidate(e.c)
	case evEndCall:
		return m.endCall()
	case evDowngrade:
		return m.downgradeToAudio()
	case evPing:
		return []effect{efEmit{event: protocol.EvtPong}}

	// Local actions.
	case evAccept:
		return m.accept()
	case evHangup:
		return m.hangup()
	case evToggleMute:
		return m.toggleMute()
	case evRequestAudioOnly:
		return m.requestAudioOnly()

	// Completions.
	case evMediaAcquired:
		return m.mediaAcquired(e)
	case evMediaFailed:
		return m.mediaFailed(e)
	case evLocalDescription:
		return m.localDescription(e)
	case evNegotiationFailed:
		return m.negotiationFailed(e)
	case evLocalCandidate:
		return m.localCandidate(e)
	case evConnState:
		return m.connectivityChanged(e)
	case evRemoteTrack:
		return m.remoteTrack(e)
	case evTick:
		return m.tick(e)
	}

	m.log.Warn("unhandled event %T", ev)
	return nil
}

func (m *machine) stale(epoch uint64) bool {
	return m.ended || epoch != m.epoch
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

func (m *machine) initialize(p protocol.InitCallUI) []effect {
	if m.initialized || m.ended {
		m.log.Warn("initCallUI ignored: call already %s", m.status)
		return nil
	}
	m.initialized = true
	m.moCall = p.MoCall
	m.audioOnly = p.WantsAudioOnly()
	m.target = p.TargetUserInfo
	m.targetName = p.TargetUserDisplayName
	if m.targetName == "" {
		m.targetName = p.TargetUserInfo.DisplayName
	}

	effs := []effect{efShowMode{audioOnly: m.audioOnly}}
	if m.moCall {
		m.status = StatusOutgoing
		m.acquiring = true
		m.log.Info("calling %s (audioOnly=%v)", m.targetName, m.audioOnly)
		return append(effs,
			efShowState{status: m.status},
			efAcquire{epoch: m.epoch, audioOnly: m.audioOnly},
		)
	}

	m.status = StatusIncoming
	m.log.Info("incoming call from %s (audioOnly=%v)", m.targetName, m.audioOnly)
	return append(effs,
		efShowState{status: m.status},
		efRing{on: true},
	)
}

func (m *machine) startMedia(p protocol.StartMedia) []effect {
	if m.status != StatusOutgoing && m.status != StatusIncoming {
		m.log.Warn("startMedia ignored in state %s", m.status)
		return nil
	}

	m.isInitiator = p.IsInitiator
	effs := []effect{efRing{on: false}}

	// Once media has been opened without video it stays that way.
	wasAudioOnly := m.audioOnly
	if m.hasStream || m.acquiring {
		m.audioOnly = m.audioOnly || p.AudioOnly
	} else {
		m.audioOnly = p.AudioOnly
	}
	if m.audioOnly != wasAudioOnly {
		effs = append(effs, efShowMode{audioOnly: m.audioOnly})
	}

	if m.hasStream {
		return append(effs, m.enterConnecting()...)
	}

	m.pendingStart = true
	if m.acquiring {
		m.log.Debug("startMedia waiting for local media already being acquired")
		return effs
	}
	m.acquiring = true
	return append(effs, efAcquire{epoch: m.epoch, audioOnly: m.audioOnly})
}

// enterConnecting creates the peer connection and starts negotiating.
// Local media is available at this point.
func (m *machine) enterConnecting() []effect {
	m.status = StatusConnecting
	m.startTime = m.now()

	effs := []effect{efShowState{status: m.status}}
	if m.audioOnly {
		effs = append(effs, efStopVideo{})
	}

	m.hasPeer = true
	effs = append(effs, efCreatePeer{epoch: m.epoch, audioOnly: m.audioOnly})

	if m.isInitiator {
		effs = append(effs, efNegotiateOffer{epoch: m.epoch, audioOnly: m.audioOnly})
	}

	if offer, ok := m.queue.ReleaseOffer(); ok {
		m.log.Debug("replaying held remote offer")
		effs = append(effs, m.remoteOffer(offer)...)
	}
	return effs
}

// endCall tears the call down. A second call is a no-op.
func (m *machine) endCall() []effect {
	if m.ended {
		m.log.Debug("endCall ignored: already torn down")
		return nil
	}
	m.log.Info("ending call (was %s)", m.status)

	m.ended = true
	m.status = StatusIdle
	m.epoch++
	m.hasPeer = false
	m.hasStream = false
	m.pendingStart = false
	m.localPending = nil

	return []effect{
		efRing{on: false},
		efStopTimer{},
		efShowState{status: StatusIdle},
		efTeardown{},
	}
}

func (m *machine) fail(err error) []effect {
	m.log.Error("call failed: %v", err)
	return m.endCall()
}

// ---------------------------------------------------------------------------
// Remote signaling
// ---------------------------------------------------------------------------

func (m *machine) remoteOffer(d protocol.Description) []effect {
	if m.ended {
		return nil
	}
	if !m.status.negotiating() {
		if m.queue.HasOffer() {
			m.log.Warn("replacing held remote offer")
		}
		m.queue.HoldOffer(d)
		m.log.Debug("holding remote offer until negotiation starts")
		return nil
	}
	return []effect{efNegotiateAnswer{epoch: m.epoch, offer: d}}
}

func (m *machine) remoteAnswer(d protocol.Description) []effect {
	if !m.hasPeer {
		m.log.Warn("remote answer dropped: no peer connection")
		return nil
	}
	return []effect{efApplyAnswer{epoch: m.epoch, answer: d}}
}

func (m *machine) remoteCandidate(c protocol.Candidate) []effect {
	if m.ended {
		return nil
	}
	if m.pcSetuped && m.hasPeer {
		return []effect{efApplyCandidate{epoch: m.epoch, c: c}}
	}
	m.queue.PoolCandidate(c)
	util.Stats.AddPooled()
	return nil
}

// ---------------------------------------------------------------------------
// Local actions
// ---------------------------------------------------------------------------

func (m *machine) accept() []effect {
	if m.status != StatusIncoming {
		m.log.Warn("accept ignored in state %s", m.status)
		return nil
	}
	return []effect{efRing{on: false}, efEmit{event: protocol.EvtCallButton}}
}

func (m *machine) hangup() []effect {
	if m.ended {
		return nil
	}
	return append([]effect{efEmit{event: protocol.EvtHangupButton}}, m.endCall()...)
}

func (m *machine) toggleMute() []effect {
	if !m.hasStream {
		return nil
	}
	m.muted = !m.muted
	return []effect{efSetMuted{muted: m.muted}}
}

func (m *machine) requestAudioOnly() []effect {
	if m.ended {
		return nil
	}
	return []effect{efRing{on: false}, efEmit{event: protocol.EvtDownToVoice}}
}

func (m *machine) downgradeToAudio() []effect {
	if m.status != StatusConnected {
		return nil
	}
	m.audioOnly = true
	return []effect{
		efStopVideo{},
		efShowMode{audioOnly: true},
		efEmit{event: protocol.EvtDownToVoice},
	}
}

// ---------------------------------------------------------------------------
// Completions
// ---------------------------------------------------------------------------

func (m *machine) mediaAcquired(e evMediaAcquired) []effect {
	if m.stale(e.epoch) {
		m.log.Debug("late local media released")
		return []effect{efReleaseStream{stream: e.stream}}
	}

	m.acquiring = false
	m.hasStream = true
	effs := []effect{efAdoptStream{stream: e.stream}}

	if m.pendingStart {
		m.pendingStart = false
		effs = append(effs, m.enterConnecting()...)
	}
	return effs
}

func (m *machine) mediaFailed(e evMediaFailed) []effect {
	if m.stale(e.epoch) {
		return nil
	}
	m.acquiring = false
	return append([]effect{efShowError{err: e.err}}, m.fail(e.err)...)
}

func (m *machine) localDescription(e evLocalDescription) []effect {
	if m.stale(e.epoch) {
		return nil
	}

	text, err := e.d.Encode()
	if err != nil {
		return m.fail(&DescriptionError{Op: "encode local description", Err: err})
	}

	m.pcSetuped = true
	if n := m.queue.Pooled(); n > 0 {
		m.log.Debug("applying %d pooled remote candidate(s)", n)
	}
	var effs []effect
	for _, c := range m.queue.DrainCandidates() {
		effs = append(effs, efApplyCandidate{epoch: m.epoch, c: c})
	}
	effs = append(effs, efEmit{event: protocol.EvtCreateAnswerOffer, payload: text})

	for _, c := range m.localPending {
		effs = append(effs, m.emitCandidate(c)...)
	}
	m.localPending = nil
	return effs
}

func (m *machine) negotiationFailed(e evNegotiationFailed) []effect {
	if m.stale(e.epoch) {
		return nil
	}
	return m.fail(e.err)
}

func (m *machine) localCandidate(e evLocalCandidate) []effect {
	if m.stale(e.epoch) {
		return nil
	}
	if !m.pcSetuped {
		m.localPending = append(m.localPending, e.c)
		return nil
	}
	return m.emitCandidate(e.c)
}

func (m *machine) emitCandidate(c protocol.Candidate) []effect {
	text, err := c.Encode()
	if err != nil {
		m.log.Warn("local candidate dropped: %v", err)
		return nil
	}
	return []effect{efEmit{event: protocol.EvtIceCandidate, payload: text}}
}

func (m *machine) connectivityChanged(e evConnState) []effect {
	if m.stale(e.epoch) {
		return nil
	}
	m.log.Debug("ICE state: %s", e.state)

	effs := []effect{efEmit{event: protocol.EvtIceStateChange, payload: e.state}}
	if e.state == iceStateConnected && m.status == StatusConnecting {
		m.status = StatusConnected
		m.startTime = m.now()
		effs = append(effs,
			efShowState{status: m.status},
			efStartTimer{epoch: m.epoch},
		)
	}
	return effs
}

func (m *machine) remoteTrack(e evRemoteTrack) []effect {
	if m.stale(e.epoch) || e.streamID == m.remoteStream {
		return nil
	}
	m.remoteStream = e.streamID
	return []effect{efShowRemote{uid: m.target.UID, streamID: e.streamID}}
}

func (m *machine) tick(e evTick) []effect {
	if m.stale(e.epoch) || m.status != StatusConnected {
		return nil
	}
	elapsed := m.now().Sub(m.startTime)
	return []effect{
		efEmit{event: protocol.EvtUpdateTime, payload: int64(elapsed / time.Second)},
		efShowDuration{elapsed: elapsed},
	}
}

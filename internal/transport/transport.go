// Package transport implements the call's negotiation engine on pion/webrtc:
// media tracks, session descriptions and connectivity candidates.
package transport

import (
	"errors"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/p2pcall/internal/call"
	"github.com/1ureka/p2pcall/internal/media"
	"github.com/1ureka/p2pcall/internal/protocol"
	"github.com/1ureka/p2pcall/internal/util"
)

var errNoLocalTrack = errors.New("track has no local side")

// PeerConnection wraps a pion PeerConnection for one call.
//
// Remote candidates received before a remote description is set are kept
// and applied right after it, since the host does not guarantee that a
// description reaches us ahead of its candidates.
type PeerConnection struct {
	pc *webrtc.PeerConnection

	mu        sync.Mutex
	remoteSet bool
	pending   []webrtc.ICECandidateInit
}

var _ call.PeerConnection = (*PeerConnection)(nil)

func newPeerConnection(pc *webrtc.PeerConnection, h call.PeerHandlers) *PeerConnection {
	p := &PeerConnection{pc: pc}

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			util.LogDebug("ICE gathering complete")
			return
		}
		if h.OnCandidate != nil {
			h.OnCandidate(fromICECandidate(c.ToJSON()))
		}
	})

	pc.OnICEConnectionStateChange(func(state webrtc.ICEConnectionState) {
		util.LogDebug("ICE connection state: %s", state.String())
		if h.OnStateChange != nil {
			h.OnStateChange(state.String())
		}
	})

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		util.LogDebug("PeerConnection state: %s", state.String())
	})

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		util.LogDebug("remote %s track %s (stream %s)", track.Kind(), track.ID(), track.StreamID())
		if h.OnRemoteStream != nil {
			h.OnRemoteStream(track.StreamID())
		}
		go drain(track)
	})

	return p
}

// drain reads the remote track so its buffers do not fill up. Rendering is
// the presenter's business.
func drain(track *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := track.Read(buf); err != nil {
			return
		}
	}
}

// ---------------------------------------------------------------------------
// Media
// ---------------------------------------------------------------------------

// AddStream attaches the stream's audio tracks, and its video tracks unless
// audioOnly.
func (p *PeerConnection) AddStream(s *media.Stream, audioOnly bool) error {
	for _, t := range s.Tracks() {
		if audioOnly && t.Kind() == media.KindVideo {
			continue
		}
		local := t.Local()
		if local == nil {
			return fmt.Errorf("add %s track %s: %w", t.Kind(), t.ID(), errNoLocalTrack)
		}
		sender, err := p.pc.AddTrack(local)
		if err != nil {
			return fmt.Errorf("add %s track %s: %w", t.Kind(), t.ID(), err)
		}
		go drainRTCP(sender)
	}
	return nil
}

// drainRTCP consumes RTCP for a sender; interceptors act on it while it
// is read.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

// ensureReceive makes sure a transceiver exists for every kind we want to
// receive, adding a receive-only one where no local track was attached.
func (p *PeerConnection) ensureReceive(audioOnly bool) error {
	kinds := []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio}
	if !audioOnly {
		kinds = append(kinds, webrtc.RTPCodecTypeVideo)
	}

	have := make(map[webrtc.RTPCodecType]bool)
	for _, tr := range p.pc.GetTransceivers() {
		have[tr.Kind()] = true
	}
	for _, kind := range kinds {
		if have[kind] {
			continue
		}
		if _, err := p.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{
			Direction: webrtc.RTPTransceiverDirectionRecvonly,
		}); err != nil {
			return fmt.Errorf("add %s transceiver: %w", kind, err)
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Signaling
// ---------------------------------------------------------------------------

// CreateOffer generates an offer that receives audio, and video unless
// audioOnly.
func (p *PeerConnection) CreateOffer(audioOnly bool) (protocol.Description, error) {
	if err := p.ensureReceive(audioOnly); err != nil {
		return protocol.Description{}, err
	}
	offer, err := p.pc.CreateOffer(nil)
	if err != nil {
		return protocol.Description{}, err
	}
	return fromSessionDescription(offer), nil
}

// CreateAnswer generates an answer to the applied remote offer.
func (p *PeerConnection) CreateAnswer() (protocol.Description, error) {
	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return protocol.Description{}, err
	}
	return fromSessionDescription(answer), nil
}

func (p *PeerConnection) SetLocalDescription(d protocol.Description) error {
	sd, err := toSessionDescription(d)
	if err != nil {
		return err
	}
	return p.pc.SetLocalDescription(sd)
}

// SetRemoteDescription applies d, then any candidates that arrived before it.
func (p *PeerConnection) SetRemoteDescription(d protocol.Description) error {
	sd, err := toSessionDescription(d)
	if err != nil {
		return err
	}
	if err := p.pc.SetRemoteDescription(sd); err != nil {
		return err
	}

	p.mu.Lock()
	p.remoteSet = true
	pending := p.pending
	p.pending = nil
	p.mu.Unlock()

	var errs []error
	for _, c := range pending {
		if err := p.pc.AddICECandidate(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// AddICECandidate applies a remote candidate, or keeps it until a remote
// description is set.
func (p *PeerConnection) AddICECandidate(c protocol.Candidate) error {
	init := toICECandidateInit(c)

	p.mu.Lock()
	if !p.remoteSet {
		p.pending = append(p.pending, init)
		p.mu.Unlock()
		util.LogDebug("remote candidate held until the remote description is set")
		return nil
	}
	p.mu.Unlock()

	return p.pc.AddICECandidate(init)
}

func (p *PeerConnection) Close() error {
	return p.pc.Close()
}

// ---------------------------------------------------------------------------
// Conversions
// ---------------------------------------------------------------------------

func toSessionDescription(d protocol.Description) (webrtc.SessionDescription, error) {
	typ := webrtc.NewSDPType(d.Type)
	if typ != webrtc.SDPTypeOffer && typ != webrtc.SDPTypeAnswer {
		return webrtc.SessionDescription{}, fmt.Errorf("%w: %q", protocol.ErrUnknownDescType, d.Type)
	}
	if _, err := d.Parse(); err != nil {
		return webrtc.SessionDescription{}, err
	}
	return webrtc.SessionDescription{Type: typ, SDP: d.SDP}, nil
}

func fromSessionDescription(sd webrtc.SessionDescription) protocol.Description {
	return protocol.Description{Type: sd.Type.String(), SDP: sd.SDP}
}

func toICECandidateInit(c protocol.Candidate) webrtc.ICECandidateInit {
	label := c.Label
	init := webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMLineIndex: &label,
	}
	if c.ID != "" {
		id := c.ID
		init.SDPMid = &id
	}
	return init
}

func fromICECandidate(init webrtc.ICECandidateInit) protocol.Candidate {
	c := protocol.Candidate{
		Type:      protocol.TypeCandidate,
		Candidate: init.Candidate,
	}
	if init.SDPMLineIndex != nil {
		c.Label = *init.SDPMLineIndex
	}
	if init.SDPMid != nil {
		c.ID = *init.SDPMid
	}
	return c
}

package call

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/p2pcall/internal/media"
	"github.com/1ureka/p2pcall/internal/protocol"
)

const testSDP = "v=0\r\n" +
	"o=- 1 2 IN IP4 127.0.0.1\r\n" +
	"s=-\r\n" +
	"t=0 0\r\n" +
	"m=audio 9 UDP/TLS/RTP/SAVPF 111\r\n" +
	"a=mid:0\r\n"

// ---------------------------------------------------------------------------
// Tracks & device
// ---------------------------------------------------------------------------

type fakeTrack struct {
	id      string
	kind    media.Kind
	muted   atomic.Bool
	stopped atomic.Int32
}

func (f *fakeTrack) ID() string               { return f.id }
func (f *fakeTrack) Kind() media.Kind         { return f.kind }
func (f *fakeTrack) Enabled() bool            { return !f.muted.Load() }
func (f *fakeTrack) SetEnabled(enabled bool)  { f.muted.Store(!enabled) }
func (f *fakeTrack) Stop()                    { f.stopped.Add(1) }
func (f *fakeTrack) Local() webrtc.TrackLocal { return nil }

// fakeDevice hands out streams of fake tracks. With a non-nil gate, each
// Acquire blocks until the gate yields a value.
type fakeDevice struct {
	gate chan struct{}
	err  error

	mu      sync.Mutex
	calls   int
	streams []*media.Stream
	tracks  []*fakeTrack
}

func (d *fakeDevice) Acquire(ctx context.Context, audioOnly bool) (*media.Stream, error) {
	d.mu.Lock()
	d.calls++
	n := d.calls
	d.mu.Unlock()

	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if d.err != nil {
		return nil, d.err
	}

	audio := &fakeTrack{id: fmt.Sprintf("audio-%d", n), kind: media.KindAudio}
	tracks := []*fakeTrack{audio}
	if !audioOnly {
		tracks = append(tracks, &fakeTrack{id: fmt.Sprintf("video-%d", n), kind: media.KindVideo})
	}

	generic := make([]media.Track, len(tracks))
	for i, t := range tracks {
		generic[i] = t
	}
	s := media.NewStream(fmt.Sprintf("local-%d", n), generic...)

	d.mu.Lock()
	d.streams = append(d.streams, s)
	d.tracks = append(d.tracks, tracks...)
	d.mu.Unlock()
	return s, nil
}

func (d *fakeDevice) acquireCalls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

func (d *fakeDevice) allTracks() []*fakeTrack {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeTrack(nil), d.tracks...)
}

// ---------------------------------------------------------------------------
// Peer connection
// ---------------------------------------------------------------------------

type fakePeer struct {
	h PeerHandlers

	mu     sync.Mutex
	calls  []string
	failOn map[string]error
	closed int
	// setLocalGate, when set, blocks SetLocalDescription until it yields.
	setLocalGate chan struct{}
}

func (p *fakePeer) record(call string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
	return p.failOn[call]
}

func (p *fakePeer) AddStream(s *media.Stream, audioOnly bool) error {
	return p.record(fmt.Sprintf("addStream:audioOnly=%v", audioOnly))
}

func (p *fakePeer) CreateOffer(audioOnly bool) (protocol.Description, error) {
	if err := p.record("createOffer"); err != nil {
		return protocol.Description{}, err
	}
	return protocol.Description{Type: protocol.TypeOffer, SDP: testSDP}, nil
}

func (p *fakePeer) CreateAnswer() (protocol.Description, error) {
	if err := p.record("createAnswer"); err != nil {
		return protocol.Description{}, err
	}
	return protocol.Description{Type: protocol.TypeAnswer, SDP: testSDP}, nil
}

func (p *fakePeer) SetLocalDescription(d protocol.Description) error {
	if p.setLocalGate != nil {
		<-p.setLocalGate
	}
	return p.record("setLocal:" + d.Type)
}

func (p *fakePeer) SetRemoteDescription(d protocol.Description) error {
	return p.record("setRemote:" + d.Type)
}

func (p *fakePeer) AddICECandidate(c protocol.Candidate) error {
	return p.record("candidate:" + c.Candidate)
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}

func (p *fakePeer) callLog() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePeer) closeCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

type fakeFactory struct {
	err error
	// prepare, when set, configures each new peer before it is returned.
	prepare func(*fakePeer)

	mu    sync.Mutex
	peers []*fakePeer
}

func (f *fakeFactory) NewPeerConnection(h PeerHandlers) (PeerConnection, error) {
	if f.err != nil {
		return nil, f.err
	}
	p := &fakePeer{h: h}
	if f.prepare != nil {
		f.prepare(p)
	}
	f.mu.Lock()
	f.peers = append(f.peers, p)
	f.mu.Unlock()
	return p, nil
}

func (f *fakeFactory) created() []*fakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakePeer(nil), f.peers...)
}

// ---------------------------------------------------------------------------
// Presenter
// ---------------------------------------------------------------------------

type fakePresenter struct {
	mu        sync.Mutex
	states    []Status
	modes     []bool
	rings     []bool
	remotes   []string
	durations []time.Duration
	errs      []error
	locals    int
	closes    int
}

func (p *fakePresenter) StateChanged(s Status) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.states = append(p.states, s)
}

func (p *fakePresenter) ModeChanged(audioOnly bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.modes = append(p.modes, audioOnly)
}

func (p *fakePresenter) LocalStream(*media.Stream) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.locals++
}

func (p *fakePresenter) RemoteStream(uid, streamID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.remotes = append(p.remotes, uid+"/"+streamID)
}

func (p *fakePresenter) Duration(d time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.durations = append(p.durations, d)
}

func (p *fakePresenter) ShowError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs = append(p.errs, err)
}

func (p *fakePresenter) Ring(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rings = append(p.rings, on)
}

func (p *fakePresenter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
}

// snapshot returns a copy safe to inspect from the test goroutine.
func (p *fakePresenter) snapshot() fakePresenter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return fakePresenter{
		states:    append([]Status(nil), p.states...),
		modes:     append([]bool(nil), p.modes...),
		rings:     append([]bool(nil), p.rings...),
		remotes:   append([]string(nil), p.remotes...),
		durations: append([]time.Duration(nil), p.durations...),
		errs:      append([]error(nil), p.errs...),
		locals:    p.locals,
		closes:    p.closes,
	}
}

var errBoom = errors.New("boom")

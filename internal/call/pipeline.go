package call

import (
	"context"
	"errors"
	"sync"

	"github.com/1ureka/p2pcall/internal/media"
	"github.com/1ureka/p2pcall/internal/protocol"
)

var errPeerExists = errors.New("peer connection already created")

// pipeline owns the local stream and the peer connection. Every call into
// the peer connection runs on one worker goroutine, in submission order, so
// descriptions and candidates reach the engine in the order the session
// decided on.
type pipeline struct {
	device  media.Device
	factory PeerFactory

	mu     sync.Mutex
	stream *media.Stream
	pc     PeerConnection
	ops    []func()
	closed bool

	wake chan struct{}
	stop chan struct{}
}

func newPipeline(device media.Device, factory PeerFactory) *pipeline {
	p := &pipeline{
		device:  device,
		factory: factory,
		wake:    make(chan struct{}, 1),
		stop:    make(chan struct{}),
	}
	go p.worker()
	return p
}

// ---------------------------------------------------------------------------
// Worker
// ---------------------------------------------------------------------------

func (p *pipeline) worker() {
	for {
		p.mu.Lock()
		if p.closed {
			p.mu.Unlock()
			return
		}
		if len(p.ops) == 0 {
			p.mu.Unlock()
			select {
			case <-p.wake:
				continue
			case <-p.stop:
				return
			}
		}
		op := p.ops[0]
		p.ops[0] = nil
		p.ops = p.ops[1:]
		p.mu.Unlock()

		op()
	}
}

// submit queues op for the worker. After teardown op is dropped.
func (p *pipeline) submit(op func()) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.ops = append(p.ops, op)
	p.mu.Unlock()

	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// peer returns the live peer connection, or ErrTornDown.
func (p *pipeline) peer() (PeerConnection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed || p.pc == nil {
		return nil, ErrTornDown
	}
	return p.pc, nil
}

// ---------------------------------------------------------------------------
// Local media
// ---------------------------------------------------------------------------

// acquire opens local media on its own goroutine and reports through done.
func (p *pipeline) acquire(ctx context.Context, audioOnly bool, done func(*media.Stream, error)) {
	go func() {
		s, err := p.device.Acquire(ctx, audioOnly)
		if err != nil {
			op := "audio+video"
			if audioOnly {
				op = "audio"
			}
			done(nil, &DeviceAcquisitionError{Op: op, Err: err})
			return
		}
		done(s, nil)
	}()
}

// adopt takes ownership of s. After teardown s is stopped instead.
func (p *pipeline) adopt(s *media.Stream) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		s.Stop()
		return false
	}
	p.stream = s
	return true
}

func (p *pipeline) localStream() *media.Stream {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.stream
}

// stopVideo stops the local video tracks; audio keeps running.
func (p *pipeline) stopVideo() int {
	if s := p.localStream(); s != nil {
		return s.StopVideo()
	}
	return 0
}

// setMuted toggles the first local audio track.
func (p *pipeline) setMuted(muted bool) bool {
	s := p.localStream()
	if s == nil {
		return false
	}
	audio := s.AudioTracks()
	if len(audio) == 0 {
		return false
	}
	audio[0].SetEnabled(!muted)
	return true
}

// ---------------------------------------------------------------------------
// Negotiation
// ---------------------------------------------------------------------------

// createPeer builds the peer connection and attaches the local stream.
// It runs on the caller's goroutine; the engine only starts working once
// descriptions are submitted.
func (p *pipeline) createPeer(h PeerHandlers, audioOnly bool) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrTornDown
	}
	if p.pc != nil {
		p.mu.Unlock()
		return &DescriptionError{Op: "create peer connection", Err: errPeerExists}
	}
	stream := p.stream
	p.mu.Unlock()

	pc, err := p.factory.NewPeerConnection(h)
	if err != nil {
		return &DescriptionError{Op: "create peer connection", Err: err}
	}
	if stream != nil {
		if err := pc.AddStream(stream, audioOnly); err != nil {
			pc.Close()
			return &DescriptionError{Op: "add local stream", Err: err}
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		pc.Close()
		return ErrTornDown
	}
	p.pc = pc
	return nil
}

// negotiateOffer creates and applies a local offer.
func (p *pipeline) negotiateOffer(audioOnly bool, done func(protocol.Description, error)) {
	p.submit(func() {
		pc, err := p.peer()
		if err != nil {
			done(protocol.Description{}, err)
			return
		}
		offer, err := pc.CreateOffer(audioOnly)
		if err != nil {
			done(protocol.Description{}, &DescriptionError{Op: "create offer", Err: err})
			return
		}
		if err := pc.SetLocalDescription(offer); err != nil {
			done(protocol.Description{}, &DescriptionError{Op: "set local offer", Err: err})
			return
		}
		done(offer, nil)
	})
}

// negotiateAnswer applies a remote offer, then creates and applies the answer.
func (p *pipeline) negotiateAnswer(offer protocol.Description, done func(protocol.Description, error)) {
	p.submit(func() {
		pc, err := p.peer()
		if err != nil {
			done(protocol.Description{}, err)
			return
		}
		if err := pc.SetRemoteDescription(offer); err != nil {
			done(protocol.Description{}, &DescriptionError{Op: "set remote offer", Err: err})
			return
		}
		answer, err := pc.CreateAnswer()
		if err != nil {
			done(protocol.Description{}, &DescriptionError{Op: "create answer", Err: err})
			return
		}
		if err := pc.SetLocalDescription(answer); err != nil {
			done(protocol.Description{}, &DescriptionError{Op: "set local answer", Err: err})
			return
		}
		done(answer, nil)
	})
}

func (p *pipeline) applyAnswer(answer protocol.Description, done func(error)) {
	p.submit(func() {
		pc, err := p.peer()
		if err != nil {
			done(err)
			return
		}
		if err := pc.SetRemoteDescription(answer); err != nil {
			done(&DescriptionError{Op: "set remote answer", Err: err})
			return
		}
		done(nil)
	})
}

func (p *pipeline) applyCandidate(c protocol.Candidate, done func(error)) {
	p.submit(func() {
		pc, err := p.peer()
		if err != nil {
			done(err)
			return
		}
		if err := pc.AddICECandidate(c); err != nil {
			done(&CandidateError{Op: "add remote candidate", Err: err})
			return
		}
		done(nil)
	})
}

// ---------------------------------------------------------------------------
// Teardown
// ---------------------------------------------------------------------------

// teardown stops the local tracks, closes the peer connection and stops the
// worker. Queued operations are dropped. Only the first call does anything.
func (p *pipeline) teardown() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	stream, pc := p.stream, p.pc
	p.stream, p.pc, p.ops = nil, nil, nil
	p.mu.Unlock()

	close(p.stop)

	if stream != nil {
		stream.Stop()
	}
	if pc != nil {
		return pc.Close()
	}
	return nil
}

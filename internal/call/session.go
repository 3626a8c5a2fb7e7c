package call

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"

	"github.com/1ureka/p2pcall/internal/media"
	"github.com/1ureka/p2pcall/internal/protocol"
	"github.com/1ureka/p2pcall/internal/util"
)

const (
	DefaultShutdownDelay = 2 * time.Second
	DefaultTickInterval  = time.Second

	eventQueueSize = 128
)

// Options configures a Session. Bridge, Peers and Device are required.
type Options struct {
	Bridge    Bridge
	Peers     PeerFactory
	Device    media.Device
	Presenter Presenter   // defaults to NopPresenter
	Clock     clock.Clock // defaults to the wall clock

	ShutdownDelay time.Duration // window close delay after teardown; 0 means DefaultShutdownDelay
	TickInterval  time.Duration // call duration tick; 0 means DefaultTickInterval
}

// Session is one call. A single goroutine (Run) processes host commands,
// local actions and completions of asynchronous work in arrival order, and
// is the only one touching call state.
type Session struct {
	ID string

	bridge        Bridge
	presenter     Presenter
	clock         clock.Clock
	shutdownDelay time.Duration
	tickInterval  time.Duration
	log           util.Logger

	m    *machine
	pipe *pipeline

	events  chan event
	backlog []event // follow-ups raised while applying effects; loop only

	ctx      context.Context
	ticker   *clock.Ticker
	tickStop chan struct{}
	shutdown *clock.Timer

	status   atomic.Int32
	done     chan struct{}
	doneOnce sync.Once
}

// New creates a session and subscribes it to the host commands. Commands
// received before Run starts are buffered.
func New(opts Options) *Session {
	if opts.Presenter == nil {
		opts.Presenter = NopPresenter{}
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.ShutdownDelay == 0 {
		opts.ShutdownDelay = DefaultShutdownDelay
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = DefaultTickInterval
	}

	id := uuid.NewString()
	s := &Session{
		ID:            id,
		bridge:        opts.Bridge,
		presenter:     opts.Presenter,
		clock:         opts.Clock,
		shutdownDelay: opts.ShutdownDelay,
		tickInterval:  opts.TickInterval,
		log:           util.Scope(id[:8]),
		pipe:          newPipeline(opts.Device, opts.Peers),
		events:        make(chan event, eventQueueSize),
		done:          make(chan struct{}),
	}
	s.m = newMachine(s.log, s.clock.Now)

	for name, decode := range commandTable {
		s.bridge.On(name, s.commandHandler(name, decode))
	}
	return s
}

func (s *Session) commandHandler(name string, decode decoder) protocol.Handler {
	return func(payload json.RawMessage) {
		ev, err := decode(payload)
		if err != nil {
			util.Stats.AddDropped()
			s.log.Warn("dropping malformed %s: %v", name, err)
			return
		}
		s.post(ev)
	}
}

// ---------------------------------------------------------------------------
// Public API
// ---------------------------------------------------------------------------

// Run processes events until the window has closed after teardown, or ctx
// is cancelled, in which case the call is torn down without waiting.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	s.log.Debug("session started")

	for {
		select {
		case ev := <-s.events:
			s.dispatch(ev)

		case <-s.done:
			return nil

		case <-ctx.Done():
			s.dispatch(evEndCall{})
			if s.shutdown != nil {
				s.shutdown.Stop()
			}
			s.finish()
			return ctx.Err()
		}
	}
}

// Done is closed once the session has torn down and closed its window.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Status returns the current lifecycle state.
func (s *Session) Status() Status {
	return Status(s.status.Load())
}

// Accept answers an incoming call.
func (s *Session) Accept() error { return s.action(evAccept{}) }

// Hangup tells the host the user hung up, then ends the call.
func (s *Session) Hangup() error { return s.action(evHangup{}) }

// ToggleMute mutes or unmutes the microphone.
func (s *Session) ToggleMute() error { return s.action(evToggleMute{}) }

// RequestAudioOnly asks the host to continue the call without video.
func (s *Session) RequestAudioOnly() error { return s.action(evRequestAudioOnly{}) }

func (s *Session) action(ev event) error {
	if !s.post(ev) {
		return ErrTornDown
	}
	return nil
}

// ---------------------------------------------------------------------------
// Event loop
// ---------------------------------------------------------------------------

// post hands ev to the loop. It reports false once the session is done.
func (s *Session) post(ev event) bool {
	select {
	case <-s.done:
		return false
	default:
	}
	select {
	case s.events <- ev:
		return true
	case <-s.done:
		return false
	}
}

// feed queues a follow-up event raised while applying effects.
func (s *Session) feed(ev event) {
	s.backlog = append(s.backlog, ev)
}

func (s *Session) dispatch(ev event) {
	s.feed(ev)
	for len(s.backlog) > 0 {
		next := s.backlog[0]
		s.backlog = s.backlog[1:]

		for _, ef := range s.m.handle(next) {
			s.apply(ef)
		}
		s.status.Store(int32(s.m.status))
	}
}

func (s *Session) apply(ef effect) {
	switch e := ef.(type) {
	case efEmit:
		if err := s.bridge.Emit(e.event, e.payload); err != nil {
			s.log.Warn("emit %s failed: %v", e.event, err)
		}

	case efRing:
		s.presenter.Ring(e.on)
	case efShowState:
		s.log.Info("status: %s", e.status)
		s.presenter.StateChanged(e.status)
	case efShowMode:
		s.presenter.ModeChanged(e.audioOnly)
	case efShowRemote:
		s.log.Info("remote stream %s from %s", e.streamID, e.uid)
		s.presenter.RemoteStream(e.uid, e.streamID)
	case efShowDuration:
		s.presenter.Duration(e.elapsed)
	case efShowError:
		s.presenter.ShowError(e.err)

	case efAcquire:
		s.acquire(e.epoch, e.audioOnly)
	case efAdoptStream:
		if s.pipe.adopt(e.stream) {
			s.presenter.LocalStream(e.stream)
		}
	case efReleaseStream:
		e.stream.Stop()
	case efStopVideo:
		if n := s.pipe.stopVideo(); n > 0 {
			s.log.Info("stopped %d local video track(s)", n)
		}
	case efSetMuted:
		if s.pipe.setMuted(e.muted) {
			s.log.Info("microphone muted=%v", e.muted)
		}

	case efCreatePeer:
		if err := s.pipe.createPeer(s.peerHandlers(e.epoch), e.audioOnly); err != nil {
			s.feed(evNegotiationFailed{epoch: e.epoch, err: err})
		}
	case efNegotiateOffer:
		s.pipe.negotiateOffer(e.audioOnly, s.onLocalDescription(e.epoch))
	case efNegotiateAnswer:
		s.pipe.negotiateAnswer(e.offer, s.onLocalDescription(e.epoch))
	case efApplyAnswer:
		s.pipe.applyAnswer(e.answer, s.onFailure(e.epoch))
	case efApplyCandidate:
		s.pipe.applyCandidate(e.c, s.onFailure(e.epoch))

	case efStartTimer:
		s.startTimer(e.epoch)
	case efStopTimer:
		s.stopTimer()

	case efTeardown:
		s.teardown()

	default:
		s.log.Warn("unhandled effect %T", ef)
	}
}

// ---------------------------------------------------------------------------
// Completion plumbing
// ---------------------------------------------------------------------------

func (s *Session) acquire(epoch uint64, audioOnly bool) {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}
	s.pipe.acquire(ctx, audioOnly, func(stream *media.Stream, err error) {
		if err != nil {
			s.post(evMediaFailed{epoch: epoch, err: err})
			return
		}
		if !s.post(evMediaAcquired{epoch: epoch, stream: stream}) {
			// Nobody is left to release it.
			stream.Stop()
		}
	})
}

func (s *Session) peerHandlers(epoch uint64) PeerHandlers {
	return PeerHandlers{
		OnCandidate: func(c protocol.Candidate) {
			s.post(evLocalCandidate{epoch: epoch, c: c})
		},
		OnStateChange: func(state string) {
			s.post(evConnState{epoch: epoch, state: state})
		},
		OnRemoteStream: func(streamID string) {
			s.post(evRemoteTrack{epoch: epoch, streamID: streamID})
		},
	}
}

func (s *Session) onLocalDescription(epoch uint64) func(protocol.Description, error) {
	return func(d protocol.Description, err error) {
		if err != nil {
			s.post(evNegotiationFailed{epoch: epoch, err: err})
			return
		}
		s.post(evLocalDescription{epoch: epoch, d: d})
	}
}

func (s *Session) onFailure(epoch uint64) func(error) {
	return func(err error) {
		if err != nil {
			s.post(evNegotiationFailed{epoch: epoch, err: err})
		}
	}
}

// ---------------------------------------------------------------------------
// Timer & teardown
// ---------------------------------------------------------------------------

func (s *Session) startTimer(epoch uint64) {
	s.stopTimer()

	ticker := s.clock.Ticker(s.tickInterval)
	stop := make(chan struct{})
	s.ticker, s.tickStop = ticker, stop

	go func() {
		for {
			select {
			case <-ticker.C:
				s.post(evTick{epoch: epoch})
			case <-stop:
				return
			}
		}
	}()
}

func (s *Session) stopTimer() {
	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	close(s.tickStop)
	s.ticker, s.tickStop = nil, nil
}

func (s *Session) teardown() {
	if err := s.pipe.teardown(); err != nil {
		s.log.Warn("teardown: %v", err)
	}
	s.bridge.RemoveAll(protocol.Commands...)

	s.log.Info("call ended, closing in %v", s.shutdownDelay)
	s.shutdown = s.clock.AfterFunc(s.shutdownDelay, s.finish)
}

// finish closes the window and releases Run. Only the first call counts.
func (s *Session) finish() {
	s.doneOnce.Do(func() {
		s.presenter.Close()
		close(s.done)
	})
}

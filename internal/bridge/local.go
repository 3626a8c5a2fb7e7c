package bridge

import (
	"sync"

	"github.com/1ureka/p2pcall/internal/protocol"
	"github.com/1ureka/p2pcall/internal/util"
)

const localInboxSize = 256

// Local is one end of an in-process bridge. Events emitted on one end are
// delivered, in order, to the handlers registered on the other end by a
// dedicated delivery goroutine.
type Local struct {
	*dispatcher

	peer  *Local
	inbox chan protocol.Envelope
	done  chan struct{}
	once  sync.Once
}

// NewLocalPair creates two linked endpoints. Typically one side is handed to
// the call session and the other plays the hosting process.
func NewLocalPair() (a, b *Local) {
	a = newLocal()
	b = newLocal()
	a.peer = b
	b.peer = a
	go a.loop()
	go b.loop()
	return a, b
}

func newLocal() *Local {
	return &Local{
		dispatcher: newDispatcher(),
		inbox:      make(chan protocol.Envelope, localInboxSize),
		done:       make(chan struct{}),
	}
}

// Emit queues an event for the peer. It blocks while the peer's inbox is
// full and fails with ErrClosed once either end is closed.
func (l *Local) Emit(event string, payload any) error {
	raw, err := encodePayload(event, payload)
	if err != nil {
		return err
	}

	select {
	case <-l.done:
		return ErrClosed
	case <-l.peer.done:
		return ErrClosed
	default:
	}

	select {
	case l.peer.inbox <- protocol.Envelope{Event: event, Payload: raw}:
		util.Stats.AddSent()
		return nil
	case <-l.done:
		return ErrClosed
	case <-l.peer.done:
		return ErrClosed
	}
}

// Close stops delivery on this end. Safe to call multiple times.
func (l *Local) Close() error {
	l.once.Do(func() { close(l.done) })
	return nil
}

// Done returns a channel that is closed when Close is called.
func (l *Local) Done() <-chan struct{} {
	return l.done
}

func (l *Local) loop() {
	for {
		select {
		case env := <-l.inbox:
			if l.deliver(env) {
				util.Stats.AddRecv()
			} else {
				util.LogDebug("bridge: no handler for %q, dropped", env.Event)
			}
		case <-l.done:
			return
		}
	}
}

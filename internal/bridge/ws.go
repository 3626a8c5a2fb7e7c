package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/1ureka/p2pcall/internal/protocol"
	"github.com/1ureka/p2pcall/internal/util"
)

const (
	wsOutboxSize = 64
	writeTimeout = 10 * time.Second
)

// WS is a bridge over one WebSocket connection. Each envelope is stamped
// with a per-event sequence number; redelivered envelopes are dropped on
// receipt.
type WS struct {
	*dispatcher

	conn   *websocket.Conn
	seq    *seqGen
	outbox chan protocol.Envelope

	ctx        context.Context
	cancel     context.CancelFunc
	writerDone chan struct{}
	closeOnce  sync.Once

	mu  sync.Mutex
	err error
}

// NewWS takes ownership of conn and starts its read and write loops.
func NewWS(conn *websocket.Conn) *WS {
	ctx, cancel := context.WithCancel(context.Background())
	w := &WS{
		dispatcher: newDispatcher(),
		conn:       conn,
		seq:        newSeqGen(),
		outbox:     make(chan protocol.Envelope, wsOutboxSize),
		ctx:        ctx,
		cancel:     cancel,
		writerDone: make(chan struct{}),
	}
	go w.writeLoop()
	go w.readLoop()
	return w
}

// ---------------------------------------------------------------------------
// Lifecycle
// ---------------------------------------------------------------------------

// Done returns a channel that is closed when the connection is gone, either
// through Close or because the peer went away.
func (w *WS) Done() <-chan struct{} {
	return w.ctx.Done()
}

// Err returns the error that ended the read loop, if any.
func (w *WS) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Close flushes queued envelopes, sends a close frame and closes the socket.
func (w *WS) Close() error {
	var err error
	w.closeOnce.Do(func() {
		w.cancel()
		<-w.writerDone
		err = w.conn.Close()
	})
	return err
}

func (w *WS) fail(err error) {
	w.mu.Lock()
	if w.err == nil {
		w.err = err
	}
	w.mu.Unlock()
	w.cancel()
}

// ---------------------------------------------------------------------------
// Send
// ---------------------------------------------------------------------------

// Emit stamps and queues an event for the single writer goroutine.
func (w *WS) Emit(event string, payload any) error {
	raw, err := encodePayload(event, payload)
	if err != nil {
		return err
	}

	env := protocol.Envelope{Event: event, Seq: w.seq.next(event), Payload: raw}
	select {
	case <-w.ctx.Done():
		return ErrClosed
	default:
	}

	select {
	case w.outbox <- env:
		return nil
	case <-w.ctx.Done():
		return ErrClosed
	}
}

// writeLoop is the only goroutine that writes data frames to the socket.
func (w *WS) writeLoop() {
	defer close(w.writerDone)

	for {
		select {
		case env := <-w.outbox:
			if err := w.write(env); err != nil {
				util.LogError("bridge: failed to send %q: %v", env.Event, err)
				w.fail(err)
				return
			}

		case <-w.ctx.Done():
			// Flush whatever is already queued, then say goodbye.
		flush:
			for {
				select {
				case env := <-w.outbox:
					if err := w.write(env); err != nil {
						return
					}
				default:
					break flush
				}
			}
			_ = w.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "call ended"),
				time.Now().Add(time.Second))
			return
		}
	}
}

func (w *WS) write(env protocol.Envelope) error {
	_ = w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := w.conn.WriteJSON(env); err != nil {
		return err
	}
	util.Stats.AddSent()
	return nil
}

// ---------------------------------------------------------------------------
// Receive
// ---------------------------------------------------------------------------

// readLoop decodes envelopes and dispatches them in arrival order.
func (w *WS) readLoop() {
	filter := newReplayFilter()

	for {
		_, data, err := w.conn.ReadMessage()
		if err != nil {
			select {
			case <-w.ctx.Done():
				// Closed locally.
			default:
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					util.LogWarning("bridge: read failed: %v", err)
				}
				w.fail(fmt.Errorf("read envelope: %w", err))
			}
			return
		}

		var env protocol.Envelope
		if err := json.Unmarshal(data, &env); err != nil || env.Event == "" {
			if err == nil {
				err = errors.New("missing event name")
			}
			util.LogWarning("bridge: dropping undecodable envelope: %v", err)
			util.Stats.AddDropped()
			continue
		}

		if !filter.accept(env.Event, env.Seq) {
			util.LogDebug("bridge: dropping replayed %q seq=%d", env.Event, env.Seq)
			util.Stats.AddDropped()
			continue
		}

		if w.deliver(env) {
			util.Stats.AddRecv()
		} else {
			util.LogDebug("bridge: no handler for %q, dropped", env.Event)
		}
	}
}

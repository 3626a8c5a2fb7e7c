// Package bridge carries named events between the call session and the
// hosting process. Local links two endpoints inside one process; WS speaks
// JSON envelopes over a WebSocket.
package bridge

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/1ureka/p2pcall/internal/protocol"
)

// ErrClosed is returned by Emit once the bridge has been closed.
var ErrClosed = errors.New("bridge closed")

// dispatcher maintains the event name → handlers route table.
// The receive loop of each bridge uses it to deliver inbound events.
type dispatcher struct {
	mu         sync.Mutex
	routeTable map[string][]protocol.Handler
}

func newDispatcher() *dispatcher {
	return &dispatcher{
		routeTable: make(map[string][]protocol.Handler),
	}
}

// On appends a handler for event. Handlers run in registration order.
func (d *dispatcher) On(event string, h protocol.Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.routeTable[event] = append(d.routeTable[event], h)
}

// RemoveAll detaches every handler registered for the given events.
func (d *dispatcher) RemoveAll(events ...string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, event := range events {
		delete(d.routeTable, event)
	}
}

// route returns a snapshot of the handlers for event, so handlers may call
// On/RemoveAll without deadlocking.
func (d *dispatcher) route(event string) []protocol.Handler {
	d.mu.Lock()
	defer d.mu.Unlock()
	hs := d.routeTable[event]
	if len(hs) == 0 {
		return nil
	}
	out := make([]protocol.Handler, len(hs))
	copy(out, hs)
	return out
}

// deliver runs every handler of env.Event and reports whether any existed.
func (d *dispatcher) deliver(env protocol.Envelope) bool {
	hs := d.route(env.Event)
	for _, h := range hs {
		h(env.Payload)
	}
	return len(hs) > 0
}

// encodePayload marshals an outbound payload. A nil payload stays empty.
func encodePayload(event string, payload any) (json.RawMessage, error) {
	if payload == nil {
		return nil, nil
	}
	if raw, ok := payload.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", event, err)
	}
	return data, nil
}

package transport

import (
	"fmt"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/p2pcall/internal/call"
	"github.com/1ureka/p2pcall/internal/config"
	"github.com/1ureka/p2pcall/internal/media"
)

// Fallback STUN servers when the configuration names none. No TURN: calls
// are meant to connect directly.
var defaultSTUN = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
}

const (
	iceDisconnectedTimeout = 5 * time.Second
	iceFailedTimeout       = 25 * time.Second
	iceKeepaliveInterval   = 2 * time.Second
)

// Factory builds peer connections that share one pion API (codecs,
// interceptors, ICE settings). It implements call.PeerFactory.
type Factory struct {
	api *webrtc.API

	mu      sync.RWMutex
	servers []webrtc.ICEServer
}

var _ call.PeerFactory = (*Factory)(nil)

// NewFactory registers codecs for the given device and the default
// interceptors (NACK, RTCP reports, TWCC). If the device does not implement
// media.CodecRegistrar, pion's default codecs are used.
func NewFactory(servers []config.ICEServer, device media.Device) (*Factory, error) {
	m := &webrtc.MediaEngine{}
	if reg, ok := device.(media.CodecRegistrar); ok {
		if err := reg.RegisterCodecs(m); err != nil {
			return nil, fmt.Errorf("register codecs: %w", err)
		}
	} else if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register default codecs: %w", err)
	}

	ir := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(m, ir); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	se := webrtc.SettingEngine{}
	se.SetICETimeouts(iceDisconnectedTimeout, iceFailedTimeout, iceKeepaliveInterval)

	f := &Factory{
		api: webrtc.NewAPI(
			webrtc.WithMediaEngine(m),
			webrtc.WithInterceptorRegistry(ir),
			webrtc.WithSettingEngine(se),
		),
	}
	f.UpdateICEServers(servers)
	return f, nil
}

// UpdateICEServers replaces the ICE server list. Connections created earlier
// keep the servers they were created with.
func (f *Factory) UpdateICEServers(servers []config.ICEServer) {
	converted := toICEServers(servers)
	f.mu.Lock()
	f.servers = converted
	f.mu.Unlock()
}

func (f *Factory) iceServers() []webrtc.ICEServer {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return append([]webrtc.ICEServer(nil), f.servers...)
}

// NewPeerConnection creates a peer connection and wires h to its callbacks.
func (f *Factory) NewPeerConnection(h call.PeerHandlers) (call.PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{
		ICEServers: f.iceServers(),
	})
	if err != nil {
		return nil, err
	}
	return newPeerConnection(pc, h), nil
}

func toICEServers(servers []config.ICEServer) []webrtc.ICEServer {
	if len(servers) == 0 {
		return []webrtc.ICEServer{{URLs: defaultSTUN}}
	}
	out := make([]webrtc.ICEServer, 0, len(servers))
	for _, s := range servers {
		ice := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			ice.Username = s.Username
			ice.Credential = s.Credential
		}
		out = append(out, ice)
	}
	return out
}

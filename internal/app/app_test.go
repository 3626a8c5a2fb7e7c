package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/1ureka/p2pcall/internal/bridge"
	"github.com/1ureka/p2pcall/internal/call"
	"github.com/1ureka/p2pcall/internal/config"
	"github.com/1ureka/p2pcall/internal/protocol"
)

// syncBuffer is a bytes.Buffer safe for the spinner goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeActions struct{ calls []string }

func (f *fakeActions) Accept() error           { f.calls = append(f.calls, "accept"); return nil }
func (f *fakeActions) Hangup() error           { f.calls = append(f.calls, "hangup"); return nil }
func (f *fakeActions) ToggleMute() error       { f.calls = append(f.calls, "mute"); return nil }
func (f *fakeActions) RequestAudioOnly() error { f.calls = append(f.calls, "voice"); return nil }

func TestDispatchKey(t *testing.T) {
	tests := []struct {
		line    string
		want    string
		wantErr bool
	}{
		{"a", "accept", false},
		{" H \n", "hangup", false},
		{"m", "mute", false},
		{"v", "voice", false},
		{"", "", false},
		{"x", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			f := &fakeActions{}
			err := dispatchKey(f, tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("dispatchKey(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			got := strings.Join(f.calls, ",")
			if got != tt.want {
				t.Errorf("dispatchKey(%q) called %q, want %q", tt.line, got, tt.want)
			}
		})
	}
}

func TestConsolePresenterStopsAfterClose(t *testing.T) {
	out := &syncBuffer{}
	p := newConsolePresenter(out)

	p.StateChanged(call.StatusConnecting)
	p.ModeChanged(true)
	if s := out.String(); !strings.Contains(s, "Connecting") || !strings.Contains(s, "voice only") {
		t.Errorf("output = %q", s)
	}

	p.Close()
	before := out.String()
	p.StateChanged(call.StatusConnected)
	p.Ring(true)
	if after := out.String(); after != before {
		t.Errorf("presenter wrote after Close: %q", strings.TrimPrefix(after, before))
	}
}

// hostSide serves the bridge the way a hosting process would and returns the
// accepted connection once the app has dialled in.
func hostSide(t *testing.T) (url string, accept func(ctx context.Context) *bridge.WS) {
	t.Helper()
	srv := bridge.NewServer("4321", nil)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	url = "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws?pin=4321"
	return url, func(ctx context.Context) *bridge.WS {
		ws, err := srv.WaitForClient(ctx)
		if err != nil {
			t.Fatalf("WaitForClient: %v", err)
		}
		t.Cleanup(func() { ws.Close() })
		return ws
	}
}

// awaitSession pings until the session answers, so later commands are not
// sent before its handlers exist.
func awaitSession(t *testing.T, host *bridge.WS) {
	t.Helper()
	pong := make(chan struct{}, 1)
	host.On(protocol.EvtPong, func(json.RawMessage) {
		select {
		case pong <- struct{}{}:
		default:
		}
	})

	deadline := time.After(5 * time.Second)
	for {
		if err := host.Emit(protocol.CmdPing, nil); err != nil {
			t.Fatalf("ping: %v", err)
		}
		select {
		case <-pong:
			return
		case <-time.After(20 * time.Millisecond):
		case <-deadline:
			t.Fatal("session never answered ping")
		}
	}
}

func dialConfig(url string) *config.Config {
	cfg := config.Default()
	cfg.Bridge.Mode = config.ModeDial
	cfg.Bridge.URL = url
	cfg.Media.Device = config.DeviceSynthetic
	cfg.Call.ShutdownDelay = 10 * time.Millisecond
	return cfg
}

func TestRunEndsWithCall(t *testing.T) {
	url, accept := hostSide(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{Config: dialConfig(url), Output: &syncBuffer{}})
	}()

	host := accept(ctx)
	awaitSession(t, host)

	if err := host.Emit(protocol.CmdInitCallUI, protocol.InitCallUI{TargetUserInfo: protocol.UserInfo{UID: "bob"}}); err != nil {
		t.Fatal(err)
	}
	if err := host.Emit(protocol.CmdEndCall, nil); err != nil {
		t.Fatal(err)
	}

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-ctx.Done():
		t.Fatal("Run did not return after endCall")
	}
}

func TestRunEndsWhenHostLeaves(t *testing.T) {
	url, accept := hostSide(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, Options{Config: dialConfig(url), Output: &syncBuffer{}})
	}()

	host := accept(ctx)
	awaitSession(t, host)
	host.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil", err)
		}
	case <-ctx.Done():
		t.Fatal("Run did not return after the host left")
	}
}

func TestRunDialFailure(t *testing.T) {
	cfg := dialConfig("ws://127.0.0.1:1/ws")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := Run(ctx, Options{Config: cfg, Output: &syncBuffer{}})
	if err == nil || errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run = %v, want a dial error", err)
	}
}

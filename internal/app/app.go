// Package app wires one call together: the bridge to the hosting process,
// the media device, the negotiation engine and the call session.
package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/1ureka/p2pcall/internal/bridge"
	"github.com/1ureka/p2pcall/internal/call"
	"github.com/1ureka/p2pcall/internal/config"
	"github.com/1ureka/p2pcall/internal/media"
	"github.com/1ureka/p2pcall/internal/transport"
	"github.com/1ureka/p2pcall/internal/util"
)

// Options configures Run.
type Options struct {
	Config     *config.Config
	ConfigPath string    // watched for ICE server changes when set
	Input      io.Reader // local key commands; nil disables them
	Output     io.Writer // call window output; defaults to os.Stdout
}

// Run executes a single call:
//  1. Open the local media device and the negotiation engine
//  2. Reach the hosting process over the bridge
//  3. Run the call session until it closes its window
//  4. Close the bridge
func Run(ctx context.Context, opts Options) error {
	cfg := opts.Config
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	// 1. Device & engine.
	device, err := openDevice(cfg.Media)
	if err != nil {
		return err
	}
	factory, err := transport.NewFactory(cfg.ICE.Servers, device)
	if err != nil {
		return fmt.Errorf("failed to create negotiation engine: %w", err)
	}

	if opts.ConfigPath != "" {
		go func() {
			err := config.Watch(ctx, opts.ConfigPath, func(c *config.Config) {
				factory.UpdateICEServers(c.ICE.Servers)
			})
			if err != nil {
				util.LogWarning("config watch disabled: %v", err)
			}
		}()
	}

	// 2. Bridge.
	ws, err := openBridge(ctx, cfg.Bridge)
	if err != nil {
		return err
	}
	defer ws.Close()
	util.StartStatsReporter(ctx)

	// 3. Session.
	session := call.New(call.Options{
		Bridge:        ws,
		Peers:         factory,
		Device:        device,
		Presenter:     newConsolePresenter(opts.Output),
		ShutdownDelay: cfg.Call.ShutdownDelay,
		TickInterval:  cfg.Call.TickInterval,
	})
	util.LogInfo("call session %s ready", session.ID)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The call cannot outlive the host connection.
	go func() {
		select {
		case <-ws.Done():
			if err := ws.Err(); err != nil {
				util.LogWarning("host disconnected: %v", err)
			}
			cancel()
		case <-runCtx.Done():
		}
	}()

	if opts.Input != nil {
		go readKeys(runCtx, opts.Input, session)
	}

	if err := session.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func openDevice(cfg config.MediaConfig) (media.Device, error) {
	switch cfg.Device {
	case config.DeviceSynthetic:
		return media.NewSyntheticDevice(), nil
	default:
		d, err := media.NewCaptureDevice(cfg)
		if err != nil {
			return nil, fmt.Errorf("failed to open capture device: %w", err)
		}
		return d, nil
	}
}

// openBridge serves or dials the host's WebSocket depending on the mode.
func openBridge(ctx context.Context, cfg config.BridgeConfig) (*bridge.WS, error) {
	if cfg.Mode == config.ModeDial {
		util.LogInfo("connecting to host at %s", cfg.URL)
		ws, err := bridge.Dial(ctx, cfg.URL, cfg.Origin)
		if err != nil {
			return nil, err
		}
		util.LogSuccess("bridge connected")
		return ws, nil
	}

	pin := cfg.PIN
	if pin == "" {
		pin = bridge.GeneratePIN(4)
	}
	srv := bridge.NewServer(pin, cfg.Origins)
	addr, err := srv.Start(cfg.Listen)
	if err != nil {
		return nil, err
	}
	defer srv.Close()

	printServerInfo(addr.String(), pin)

	ws, err := srv.WaitForClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to wait for host: %w", err)
	}
	util.LogSuccess("host connected")
	return ws, nil
}

func printServerInfo(addr, pin string) {
	fmt.Println()
	fmt.Println("╔══════════════════════════════════════════╗")
	fmt.Println("║            Call Bridge Server            ║")
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Printf("║  Addr : %-32s ║\n", addr)
	fmt.Printf("║  PIN  : %-32s ║\n", pin)
	fmt.Println("╠══════════════════════════════════════════╣")
	fmt.Println("║  Host connects to ws://<addr>/ws?pin=... ║")
	fmt.Println("╚══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Println("Waiting for the host...")
}

// readKeys maps one-letter lines on in to local call actions.
func readKeys(ctx context.Context, in io.Reader, s *call.Session) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		if err := dispatchKey(s, scanner.Text()); err != nil {
			if errors.Is(err, call.ErrTornDown) {
				return
			}
			util.LogWarning("%v", err)
		}
	}
}

// action is the subset of the session that key commands drive.
type action interface {
	Accept() error
	Hangup() error
	ToggleMute() error
	RequestAudioOnly() error
}

func dispatchKey(s action, line string) error {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "":
		return nil
	case "a":
		return s.Accept()
	case "h":
		return s.Hangup()
	case "m":
		return s.ToggleMute()
	case "v":
		return s.RequestAudioOnly()
	default:
		return fmt.Errorf("unknown command %q (a, h, m, v)", line)
	}
}

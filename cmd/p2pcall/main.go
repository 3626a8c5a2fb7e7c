// p2pcall is the CLI entry point for one call window.
//
// Runs the controller for one peer-to-peer call. The hosting process drives
// the call over a WebSocket bridge: either it connects to us (--listen) or we
// connect to it (--url). Media flows directly between the peers.
//
// It can be launched interactively (no bridge flags and no config file) or
// non-interactively via flags and/or a YAML config file.
package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/pflag"

	"github.com/1ureka/p2pcall/internal/app"
	"github.com/1ureka/p2pcall/internal/config"
	"github.com/1ureka/p2pcall/internal/util"
)

var version = "dev"

func main() {
	// Root context, cancelled on Ctrl+C.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	flags := pflag.NewFlagSet("p2pcall", pflag.ContinueOnError)
	configPath := flags.StringP("config", "c", "", "YAML config file (watched for ICE server changes)")
	listen := flags.String("listen", "", "serve the bridge WebSocket on this address, e.g. 127.0.0.1:8080")
	wsURL := flags.String("url", "", "dial the host's bridge WebSocket at this URL")
	pin := flags.String("pin", "", "PIN the host must present when connecting (listen mode, generated if empty)")
	origins := flags.StringSlice("allow-origin", nil, "Origin headers accepted in listen mode (repeatable)")
	origin := flags.String("origin", "", "Origin header to send in dial mode")
	device := flags.String("device", "", "media device: capture or synthetic")
	debugMode := flags.Bool("debug", false, "enable debug logging")
	showVersion := flags.Bool("version", false, "print the version and exit")

	if err := flags.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		util.LogError("%v", err)
		os.Exit(2)
	}
	if *showVersion {
		fmt.Printf("p2pcall %s\n", version)
		return
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if *debugMode || cfg.Debug {
		util.EnableDebug()
	}

	pterm.Info.Println(fmt.Sprintf("p2pcall — v%s", version))
	pterm.Println()

	// Flags override the file.
	switch {
	case *listen != "" && *wsURL != "":
		util.LogError("--listen and --url are mutually exclusive")
		os.Exit(2)
	case *listen != "":
		cfg.Bridge.Mode = config.ModeListen
		cfg.Bridge.Listen = *listen
	case *wsURL != "":
		normalized, err := normalizeWSURL(*wsURL)
		if err != nil {
			util.LogError("%v", err)
			os.Exit(2)
		}
		cfg.Bridge.Mode = config.ModeDial
		cfg.Bridge.URL = normalized
	case *configPath == "":
		// Nothing says how to reach the host → interactive mode.
		askBridge(cfg)
	}

	if flags.Changed("pin") {
		cfg.Bridge.PIN = *pin
	}
	if flags.Changed("allow-origin") {
		cfg.Bridge.Origins = *origins
	}
	if flags.Changed("origin") {
		cfg.Bridge.Origin = *origin
	}
	if *device != "" {
		cfg.Media.Device = config.Device(*device)
	}

	if err := cfg.Validate(); err != nil {
		util.LogError("invalid configuration: %v", err)
		os.Exit(2)
	}

	err := app.Run(ctx, app.Options{
		Config:     cfg,
		ConfigPath: *configPath,
		Input:      os.Stdin,
	})
	if err != nil {
		util.LogError("call failed: %v", err)
		os.Exit(1)
	}

	util.LogInfo("call session closed")
}

// ---------------------------------------------------------------------------
// Helper Functions
// ---------------------------------------------------------------------------

// normalizeWSURL validates a raw WebSocket URL. A missing scheme means wss,
// a missing path means /ws; the query (e.g. ?pin=) is kept.
func normalizeWSURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "wss://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("invalid WebSocket URL: %s", raw)
	}
	switch u.Scheme {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	default:
		u.Scheme = "wss"
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = "/ws"
	}
	u.Fragment = ""
	return u.String(), nil
}

// askBridge prompts for how to reach the host when no flag or file says so.
func askBridge(cfg *config.Config) {
	mode, _ := pterm.DefaultInteractiveSelect.
		WithOptions([]string{"Listen — the host connects to us", "Dial   — connect to the host"}).
		WithDefaultText("How does the host reach this call?").
		Show()

	pterm.Println()

	if strings.HasPrefix(mode, "Listen") {
		cfg.Bridge.Mode = config.ModeListen
		return
	}
	cfg.Bridge.Mode = config.ModeDial
	cfg.Bridge.URL = askURL()
}

// askURL prompts the user for a valid WebSocket URL until one is entered.
func askURL() string {
	for {
		raw, _ := pterm.DefaultInteractiveTextInput.
			WithDefaultText("Host WebSocket URL (e.g. wss://***.asse.devtunnels.ms/ws?pin=1234)").
			Show()

		wsURL, err := normalizeWSURL(raw)
		if err == nil {
			pterm.Println()
			return wsURL
		}

		pterm.Println()
		util.LogWarning("invalid input: please enter a valid host or URL")
	}
}

package app

import (
	"io"
	"sync"
	"time"

	"github.com/pterm/pterm"

	"github.com/1ureka/p2pcall/internal/call"
	"github.com/1ureka/p2pcall/internal/media"
	"github.com/1ureka/p2pcall/internal/util"
)

// consolePresenter renders the call window on the terminal: a spinner while
// ringing, one line per state change, and the running call duration.
type consolePresenter struct {
	out io.Writer

	mu      sync.Mutex
	spinner *pterm.SpinnerPrinter
	closed  bool
	last    time.Duration
}

var _ call.Presenter = (*consolePresenter)(nil)

func newConsolePresenter(out io.Writer) *consolePresenter {
	return &consolePresenter{out: out}
}

func (p *consolePresenter) StateChanged(s call.Status) {
	switch s {
	case call.StatusIncoming:
		p.println(pterm.LightYellow("Incoming call. Type a + Enter to accept, h to hang up, v for voice only."))
	case call.StatusOutgoing:
		p.println(pterm.LightCyan("Calling..."))
	case call.StatusConnecting:
		p.println(pterm.LightCyan("Connecting..."))
	case call.StatusConnected:
		p.println(pterm.LightGreen("Connected. m toggles the microphone, h hangs up."))
	case call.StatusIdle:
		p.println(pterm.Gray("Call ended."))
	}
}

func (p *consolePresenter) ModeChanged(audioOnly bool) {
	if audioOnly {
		p.println("Mode: voice only")
	} else {
		p.println("Mode: video")
	}
}

func (p *consolePresenter) LocalStream(s *media.Stream) {
	util.LogDebug("local stream %s: %d audio, %d video", s.ID(), len(s.AudioTracks()), len(s.VideoTracks()))
}

func (p *consolePresenter) RemoteStream(uid, streamID string) {
	p.println(pterm.LightGreen("Receiving media from " + uid))
	util.LogDebug("remote stream %s", streamID)
}

// Duration prints the call time once per whole second.
func (p *consolePresenter) Duration(elapsed time.Duration) {
	elapsed = elapsed.Truncate(time.Second)
	p.mu.Lock()
	if elapsed == p.last {
		p.mu.Unlock()
		return
	}
	p.last = elapsed
	p.mu.Unlock()

	util.LogInfo("call time %s", util.FormatDuration(elapsed))
}

func (p *consolePresenter) ShowError(err error) {
	util.LogError("%v", err)
}

// Ring starts or stops the ringing spinner.
func (p *consolePresenter) Ring(on bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}

	if !on {
		if p.spinner != nil {
			_ = p.spinner.Stop()
			p.spinner = nil
		}
		return
	}
	if p.spinner != nil {
		return
	}
	spinner, err := pterm.DefaultSpinner.
		WithWriter(p.out).
		WithRemoveWhenDone(true).
		Start("Ringing...")
	if err != nil {
		util.LogDebug("ring spinner: %v", err)
		return
	}
	p.spinner = spinner
}

// Close stops the spinner; nothing is printed afterwards.
func (p *consolePresenter) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.spinner != nil {
		_ = p.spinner.Stop()
		p.spinner = nil
	}
	p.closed = true
}

func (p *consolePresenter) println(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	pterm.Fprintln(p.out, s)
}

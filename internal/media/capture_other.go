//go:build !(linux && cgo)

package media

import (
	"context"
	"errors"

	"github.com/pion/webrtc/v4"

	"github.com/1ureka/p2pcall/internal/config"
)

// ErrCaptureUnsupported is returned where no capture drivers are built in.
var ErrCaptureUnsupported = errors.New("camera/microphone capture requires linux with cgo")

// CaptureDevice is unavailable on this platform; Acquire always fails.
type CaptureDevice struct{}

func NewCaptureDevice(config.MediaConfig) (*CaptureDevice, error) {
	return &CaptureDevice{}, nil
}

func (d *CaptureDevice) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (d *CaptureDevice) Acquire(context.Context, bool) (*Stream, error) {
	return nil, ErrCaptureUnsupported
}

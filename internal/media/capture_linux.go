//go:build linux && cgo

package media

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"

	"github.com/1ureka/p2pcall/internal/config"
	"github.com/1ureka/p2pcall/internal/util"
)

// CaptureDevice opens the camera (V4L2) and microphone (malgo) through
// pion/mediadevices, encoding VP8 and Opus.
type CaptureDevice struct {
	cfg      config.MediaConfig
	selector *mediadevices.CodecSelector
}

func NewCaptureDevice(cfg config.MediaConfig) (*CaptureDevice, error) {
	vpxParams, err := vpx.NewVP8Params()
	if err != nil {
		return nil, fmt.Errorf("vp8 params: %w", err)
	}
	vpxParams.BitRate = 1_000_000

	opusParams, err := opus.NewParams()
	if err != nil {
		return nil, fmt.Errorf("opus params: %w", err)
	}

	return &CaptureDevice{
		cfg: cfg,
		selector: mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vpxParams),
			mediadevices.WithAudioEncoders(&opusParams),
		),
	}, nil
}

// RegisterCodecs registers exactly the encoders the capture tracks produce.
func (d *CaptureDevice) RegisterCodecs(m *webrtc.MediaEngine) error {
	d.selector.Populate(m)
	return nil
}

// Acquire opens the microphone and, unless audioOnly, the camera. If either
// fails the whole acquisition fails.
func (d *CaptureDevice) Acquire(ctx context.Context, audioOnly bool) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	constraints := mediadevices.MediaStreamConstraints{
		Audio: func(*mediadevices.MediaTrackConstraints) {},
		Codec: d.selector,
	}
	if !audioOnly {
		constraints.Video = func(c *mediadevices.MediaTrackConstraints) {
			c.FrameFormat = prop.FrameFormatOneOf{
				frame.FormatYUYV,
				frame.FormatI420,
				frame.FormatI444,
				frame.FormatRGBA,
			}
			c.Width = prop.IntRanged{Max: d.cfg.Width}
			c.Height = prop.IntRanged{Max: d.cfg.Height}
			c.FrameRate = prop.FloatRanged{Max: float32(d.cfg.FrameRate)}
		}
	}

	ms, err := mediadevices.GetUserMedia(constraints)
	if err != nil {
		return nil, fmt.Errorf("getUserMedia: %w", err)
	}

	var (
		tracks   []Track
		streamID string
	)
	for _, t := range ms.GetTracks() {
		t.OnEnded(func(err error) {
			if err != nil {
				util.LogWarning("local %s track ended: %v", t.Kind(), err)
			}
		})
		streamID = t.StreamID()
		tracks = append(tracks, newCaptureTrack(t))
	}

	// Audio first, like every other Stream.
	ordered := make([]Track, 0, len(tracks))
	for _, kind := range []Kind{KindAudio, KindVideo} {
		for _, t := range tracks {
			if t.Kind() == kind {
				ordered = append(ordered, t)
			}
		}
	}

	return NewStream(streamID, ordered...), nil
}

// captureTrack wraps a mediadevices track. Its Local side interposes on the
// RTP writer so muting drops packets while the encoder keeps running.
type captureTrack struct {
	gate
	mediadevices.Track

	mu       sync.Mutex
	bound    map[string]webrtc.TrackLocalContext // pion context id → wrapped context
	stopOnce sync.Once
}

func newCaptureTrack(t mediadevices.Track) *captureTrack {
	return &captureTrack{Track: t, bound: make(map[string]webrtc.TrackLocalContext)}
}

func (t *captureTrack) Kind() Kind {
	if t.Track.Kind() == webrtc.RTPCodecTypeVideo {
		return KindVideo
	}
	return KindAudio
}

func (t *captureTrack) Local() webrtc.TrackLocal { return gatedLocal{t} }

func (t *captureTrack) Stop() {
	t.stopOnce.Do(func() {
		if err := t.Track.Close(); err != nil {
			util.LogDebug("close %s track: %v", t.Kind(), err)
		}
	})
}

// gatedLocal is the webrtc.TrackLocal view of a captureTrack.
type gatedLocal struct {
	t *captureTrack
}

func (g gatedLocal) ID() string                { return g.t.Track.ID() }
func (g gatedLocal) RID() string               { return g.t.Track.RID() }
func (g gatedLocal) StreamID() string          { return g.t.Track.StreamID() }
func (g gatedLocal) Kind() webrtc.RTPCodecType { return g.t.Track.Kind() }

func (g gatedLocal) Bind(ctx webrtc.TrackLocalContext) (webrtc.RTPCodecParameters, error) {
	wrapped := gatedContext{TrackLocalContext: ctx, w: gatedWriter{inner: ctx.WriteStream(), gate: &g.t.gate}}

	g.t.mu.Lock()
	g.t.bound[ctx.ID()] = wrapped
	g.t.mu.Unlock()

	return g.t.Track.Bind(wrapped)
}

func (g gatedLocal) Unbind(ctx webrtc.TrackLocalContext) error {
	g.t.mu.Lock()
	wrapped, ok := g.t.bound[ctx.ID()]
	delete(g.t.bound, ctx.ID())
	g.t.mu.Unlock()

	if !ok {
		return g.t.Track.Unbind(ctx)
	}
	return g.t.Track.Unbind(wrapped)
}

type gatedContext struct {
	webrtc.TrackLocalContext
	w gatedWriter
}

func (c gatedContext) WriteStream() webrtc.TrackLocalWriter { return c.w }

// gatedWriter reports muted writes as sent so the encoder loop keeps going.
type gatedWriter struct {
	inner webrtc.TrackLocalWriter
	gate  *gate
}

func (w gatedWriter) WriteRTP(header *rtp.Header, payload []byte) (int, error) {
	if !w.gate.Enabled() {
		return header.MarshalSize() + len(payload), nil
	}
	return w.inner.WriteRTP(header, payload)
}

func (w gatedWriter) Write(b []byte) (int, error) {
	if !w.gate.Enabled() {
		return len(b), nil
	}
	return w.inner.Write(b)
}

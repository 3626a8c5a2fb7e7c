package media

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// opusSilence is a single 20 ms Opus frame that decodes to silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

const opusFrameDuration = 20 * time.Millisecond

// SyntheticDevice produces tracks without touching hardware: the audio track
// streams Opus silence, the video track negotiates VP8 but carries no frames.
// It is meant for headless hosts and for exercising signaling end to end.
type SyntheticDevice struct{}

func NewSyntheticDevice() *SyntheticDevice {
	return &SyntheticDevice{}
}

// RegisterCodecs registers pion's default codec set, which includes Opus and VP8.
func (d *SyntheticDevice) RegisterCodecs(m *webrtc.MediaEngine) error {
	return m.RegisterDefaultCodecs()
}

func (d *SyntheticDevice) Acquire(ctx context.Context, audioOnly bool) (*Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := "synthetic-" + uuid.NewString()[:8]

	audio, err := newSyntheticTrack(KindAudio, webrtc.MimeTypeOpus, streamID)
	if err != nil {
		return nil, err
	}
	go audio.run(opusSilence, opusFrameDuration)
	tracks := []Track{audio}

	if !audioOnly {
		video, err := newSyntheticTrack(KindVideo, webrtc.MimeTypeVP8, streamID)
		if err != nil {
			audio.Stop()
			return nil, err
		}
		tracks = append(tracks, video)
	}

	return NewStream(streamID, tracks...), nil
}

type syntheticTrack struct {
	gate
	kind  Kind
	local *webrtc.TrackLocalStaticSample

	stopOnce sync.Once
	done     chan struct{}
}

func newSyntheticTrack(kind Kind, mime, streamID string) (*syntheticTrack, error) {
	local, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: mime},
		string(kind)+"-"+uuid.NewString()[:8],
		streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create synthetic %s track: %w", kind, err)
	}
	return &syntheticTrack{kind: kind, local: local, done: make(chan struct{})}, nil
}

func (t *syntheticTrack) ID() string               { return t.local.ID() }
func (t *syntheticTrack) Kind() Kind               { return t.kind }
func (t *syntheticTrack) Local() webrtc.TrackLocal { return t.local }

func (t *syntheticTrack) Stop() {
	t.stopOnce.Do(func() { close(t.done) })
}

// run writes frame every interval until Stop. Muted intervals are skipped.
func (t *syntheticTrack) run(frame []byte, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if !t.Enabled() {
				continue
			}
			// Writes before the track is bound are dropped by pion.
			_ = t.local.WriteSample(pionmedia.Sample{Data: frame, Duration: interval})
		case <-t.done:
			return
		}
	}
}

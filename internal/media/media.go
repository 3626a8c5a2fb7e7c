// Package media owns local capture: the Device that opens audio and video,
// and the Stream of tracks it hands to the call session.
package media

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
)

// Kind is a track's media kind.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// Track is one local media track.
type Track interface {
	ID() string
	Kind() Kind
	Enabled() bool
	// SetEnabled mutes or unmutes the track without releasing the source.
	SetEnabled(enabled bool)
	// Stop releases the underlying source. Safe to call more than once.
	Stop()
	// Local returns the track to attach to a peer connection.
	Local() webrtc.TrackLocal
}

// Device opens local media.
type Device interface {
	// Acquire opens audio, plus video unless audioOnly. It blocks until the
	// sources are open or fail; there is no partial result.
	Acquire(ctx context.Context, audioOnly bool) (*Stream, error)
}

// CodecRegistrar is implemented by devices whose tracks need particular
// codecs registered on the peer connection's media engine.
type CodecRegistrar interface {
	RegisterCodecs(m *webrtc.MediaEngine) error
}

// Stream groups the tracks of one acquisition.
type Stream struct {
	id string

	mu      sync.Mutex
	tracks  []Track
	stopped bool
}

func NewStream(id string, tracks ...Track) *Stream {
	return &Stream{id: id, tracks: tracks}
}

func (s *Stream) ID() string { return s.id }

// Tracks returns every track, audio first in acquisition order.
func (s *Stream) Tracks() []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Track(nil), s.tracks...)
}

func (s *Stream) AudioTracks() []Track { return s.byKind(KindAudio) }
func (s *Stream) VideoTracks() []Track { return s.byKind(KindVideo) }

func (s *Stream) byKind(kind Kind) []Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Track
	for _, t := range s.tracks {
		if t.Kind() == kind {
			out = append(out, t)
		}
	}
	return out
}

// StopVideo stops the video tracks and drops them from the stream, leaving
// audio running. It returns how many tracks were stopped.
func (s *Stream) StopVideo() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.tracks[:0]
	n := 0
	for _, t := range s.tracks {
		if t.Kind() == KindVideo {
			t.Stop()
			n++
			continue
		}
		kept = append(kept, t)
	}
	s.tracks = kept
	return n
}

// Stop stops every track. Only the first call has an effect.
func (s *Stream) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	s.stopped = true
	for _, t := range s.tracks {
		t.Stop()
	}
}

// Stopped reports whether Stop was called.
func (s *Stream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}

// gate is the mute switch shared by the track implementations.
type gate struct {
	muted atomic.Bool
}

func (g *gate) Enabled() bool           { return !g.muted.Load() }
func (g *gate) SetEnabled(enabled bool) { g.muted.Store(!enabled) }

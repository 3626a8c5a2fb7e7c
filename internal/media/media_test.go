package media

import (
	"context"
	"testing"

	"github.com/pion/webrtc/v4"
)

type stubTrack struct {
	gate
	id    string
	kind  Kind
	stops int
}

func (s *stubTrack) ID() string               { return s.id }
func (s *stubTrack) Kind() Kind               { return s.kind }
func (s *stubTrack) Stop()                    { s.stops++ }
func (s *stubTrack) Local() webrtc.TrackLocal { return nil }

func TestStreamStopVideo(t *testing.T) {
	a := &stubTrack{id: "a", kind: KindAudio}
	v := &stubTrack{id: "v", kind: KindVideo}
	s := NewStream("s1", a, v)

	if n := s.StopVideo(); n != 1 {
		t.Fatalf("StopVideo stopped %d tracks, want 1", n)
	}
	if v.stops != 1 || a.stops != 0 {
		t.Errorf("stops: audio=%d video=%d", a.stops, v.stops)
	}
	if len(s.VideoTracks()) != 0 || len(s.AudioTracks()) != 1 {
		t.Errorf("tracks after StopVideo: %d audio, %d video", len(s.AudioTracks()), len(s.VideoTracks()))
	}
	if n := s.StopVideo(); n != 0 {
		t.Errorf("second StopVideo stopped %d tracks", n)
	}
}

func TestStreamStopIsIdempotent(t *testing.T) {
	a := &stubTrack{id: "a", kind: KindAudio}
	s := NewStream("s1", a)

	s.Stop()
	s.Stop()
	if a.stops != 1 {
		t.Errorf("track stopped %d times, want 1", a.stops)
	}
	if !s.Stopped() {
		t.Error("Stopped() = false after Stop")
	}
}

func TestGate(t *testing.T) {
	var g gate
	if !g.Enabled() {
		t.Fatal("tracks start enabled")
	}
	g.SetEnabled(false)
	if g.Enabled() {
		t.Error("SetEnabled(false) did not mute")
	}
	g.SetEnabled(true)
	if !g.Enabled() {
		t.Error("SetEnabled(true) did not unmute")
	}
}

func TestSyntheticDevice(t *testing.T) {
	d := NewSyntheticDevice()

	testCases := []struct {
		name      string
		audioOnly bool
		wantVideo int
	}{
		{"audio and video", false, 1},
		{"audio only", true, 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			s, err := d.Acquire(context.Background(), tc.audioOnly)
			if err != nil {
				t.Fatalf("Acquire: %v", err)
			}
			defer s.Stop()

			if len(s.AudioTracks()) != 1 {
				t.Errorf("audio tracks = %d, want 1", len(s.AudioTracks()))
			}
			if len(s.VideoTracks()) != tc.wantVideo {
				t.Errorf("video tracks = %d, want %d", len(s.VideoTracks()), tc.wantVideo)
			}
			for _, tr := range s.Tracks() {
				if tr.Local() == nil || tr.Local().StreamID() != s.ID() {
					t.Errorf("track %s not attached to stream %s", tr.ID(), s.ID())
				}
			}
		})
	}
}

func TestSyntheticDeviceHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewSyntheticDevice().Acquire(ctx, false); err == nil {
		t.Error("expected Acquire to fail on a cancelled context")
	}
}

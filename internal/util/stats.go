package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Global stats singleton
// ──────────────────────────────────────────────────────────────────────────────

// Stats is the process-wide signaling traffic counter.
var Stats = &stats{}

type stats struct {
	EventsSent       atomic.Int64 // outbound bridge events
	EventsRecv       atomic.Int64 // inbound bridge events delivered to handlers
	EventsDropped    atomic.Int64 // inbound replays and undecodable envelopes
	CandidatesPooled atomic.Int64 // remote candidates held until the local description was set
}

func (s *stats) AddSent()    { s.EventsSent.Add(1) }
func (s *stats) AddRecv()    { s.EventsRecv.Add(1) }
func (s *stats) AddDropped() { s.EventsDropped.Add(1) }
func (s *stats) AddPooled()  { s.CandidatesPooled.Add(1) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs signaling statistics
// every 10 seconds, but only when something changed. It stops when ctx is
// cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(10 * time.Second)
		defer ticker.Stop()

		var prev [4]int64
		for {
			select {
			case <-ticker.C:
				cur := [4]int64{
					Stats.EventsSent.Load(),
					Stats.EventsRecv.Load(),
					Stats.EventsDropped.Load(),
					Stats.CandidatesPooled.Load(),
				}
				if cur != prev {
					pterm.DefaultLogger.Info(formatStats(cur[0]-prev[0], cur[1]-prev[1], cur[2]-prev[2], cur[3]-prev[3]))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// formatStats returns a one-line summary of the deltas since the last report.
func formatStats(sent, recv, dropped, pooled int64) string {
	return fmt.Sprintf("Signaling: %3d↑ %3d↓ | dropped: %2d | pooled candidates: %2d",
		sent,
		recv,
		dropped,
		pooled,
	)
}

// FormatDuration renders an elapsed call time as mm:ss, or h:mm:ss past an hour.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h, m, s := total/3600, (total/60)%60, total%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}

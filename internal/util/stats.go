package util

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/pterm/pterm"
)

// ──────────────────────────────────────────────────────────────────────────────
// Media stats
// ──────────────────────────────────────────────────────────────────────────────

// MediaStats counts RTP traffic for one call. Safe for concurrent use.
type MediaStats struct {
	RemoteTracks atomic.Int64 // remote tracks seen since the call started
	PacketsRecv  atomic.Int64 // RTP packets read from remote tracks
	BytesRecv    atomic.Int64 // RTP bytes read from remote tracks
	SamplesSent  atomic.Int64 // media samples written to local tracks
}

func (s *MediaStats) AddTrack()          { s.RemoteTracks.Add(1) }
func (s *MediaStats) AddPacket(n int)    { s.PacketsRecv.Add(1); s.BytesRecv.Add(int64(n)) }
func (s *MediaStats) AddSample()         { s.SamplesSent.Add(1) }
func (s *MediaStats) Snapshot() [4]int64 { return [4]int64{s.RemoteTracks.Load(), s.PacketsRecv.Load(), s.BytesRecv.Load(), s.SamplesSent.Load()} }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// StartStatsReporter launches a goroutine that logs media statistics every
// interval. Quiet intervals are not logged. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context, s *MediaStats, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		var prev [4]int64
		for {
			select {
			case <-ticker.C:
				cur := s.Snapshot()
				secs := interval.Seconds()

				inS := float64(cur[2]-prev[2]) / secs
				pktS := float64(cur[1]-prev[1]) / secs
				outS := float64(cur[3]-prev[3]) / secs

				if pktS > 0 || outS > 0 {
					pterm.DefaultLogger.Info(formatStats(inS, pktS, outS, cur[0]))
				}
				prev = cur

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a fixed-width (8 chars) string,
// e.g. "99.0   B", " 1.5 KiB", "98.9 GiB".
func formatBytes(b float64) string {
	unitIdx := 0

	// keeps "100.0 KiB" (9 chars) out
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats renders one reporter line.
func formatStats(inS, pktS, outS float64, tracks int64) string {
	return fmt.Sprintf("In: %s/s (%5.1f pkt/s) | Out: %5.1f samples/s | Remote tracks: %d",
		formatBytes(inS),
		pktS,
		outS,
		tracks,
	)
}

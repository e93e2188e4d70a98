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

// Stats is the process-wide session/traffic counter.
var Stats = &stats{}

type stats struct {
	Sessions    atomic.Int64 // cumulative count of matched sessions since process start
	Teardowns   atomic.Int64 // cumulative count of torn-down sessions since process start
	SignalsSent atomic.Int64 // offer/answer/ice messages written to the signaling channel
	SignalsRecv atomic.Int64 // offer/answer/ice messages read from the signaling channel
	ChatSent    atomic.Int64
	ChatRecv    atomic.Int64
	MediaRecv   atomic.Int64 // cumulative RTP bytes read from remote tracks
}

func (s *stats) AddSession()        { s.Sessions.Add(1) }
func (s *stats) AddTeardown()       { s.Teardowns.Add(1) }
func (s *stats) AddSignalSent()     { s.SignalsSent.Add(1) }
func (s *stats) AddSignalRecv()     { s.SignalsRecv.Add(1) }
func (s *stats) AddChatSent()       { s.ChatSent.Add(1) }
func (s *stats) AddChatRecv()       { s.ChatRecv.Add(1) }
func (s *stats) AddMediaRecv(n int) { s.MediaRecv.Add(int64(n)) }

// ──────────────────────────────────────────────────────────────────────────────
// Periodic reporter
// ──────────────────────────────────────────────────────────────────────────────

// reportInterval is how often StartStatsReporter samples the counters.
const reportInterval = 10 * time.Second

// StartStatsReporter launches a goroutine that logs session statistics
// every 10 seconds. It stops when ctx is cancelled.
func StartStatsReporter(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(reportInterval)
		defer ticker.Stop()

		var prevMedia, prevSig, prevChat int64
		for {
			select {
			case <-ticker.C:
				media := Stats.MediaRecv.Load()
				sig := Stats.SignalsSent.Load() + Stats.SignalsRecv.Load()
				chat := Stats.ChatSent.Load() + Stats.ChatRecv.Load()

				rate := float64(media-prevMedia) / reportInterval.Seconds()

				if sig != prevSig || chat != prevChat || rate > 10 {
					pterm.DefaultLogger.Info(formatStats(rate, sig-prevSig, chat-prevChat, Stats.Sessions.Load()))
				}

				prevMedia = media
				prevSig = sig
				prevChat = chat

			case <-ctx.Done():
				return
			}
		}
	}()
}

// byteUnits defines the units for formatting byte counts in a human-readable way.
var byteUnits = []string{"B", "KiB", "MiB", "GiB", "TiB", "PiB"}

// formatBytes formats a byte count into a human-readable string with fixed width (exactly 8 chars)
// for example: "99.0   B", " 1.5 KiB", " 0.1 MiB", "98.9 GiB", etc.
func formatBytes(b float64) string {
	unitIdx := 0

	// to prevent "100.0 KiB", which is 9 chars
	for b > 99 && unitIdx < 5 {
		b /= 1024
		unitIdx++
	}

	return fmt.Sprintf("%4.1f %3s", b, byteUnits[unitIdx])
}

// formatStats returns a formatted string of the current stats for display in the logger.
func formatStats(mediaRate float64, signals, chats, sessions int64) string {
	return fmt.Sprintf("Media: %s/s | Signals: %3d | Chat: %3d | Sessions: %d",
		formatBytes(mediaRate),
		signals,
		chats,
		sessions,
	)
}

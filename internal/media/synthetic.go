package media

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/1ureka/blinkchat/internal/util"
)

// opusFrameDuration is the packetization interval of the silence pump.
const opusFrameDuration = 20 * time.Millisecond

// opusSilence is a single 20 ms Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Synthetic is a Source for hosts without capture devices (the terminal
// client). It publishes an Opus track carrying silence and, when Video is
// set, a VP8 track that stays idle like a covered camera.
type Synthetic struct {
	Video bool
}

// Acquire implements Source. It never prompts, so it only fails when ctx is
// already done or a track cannot be built.
func (s Synthetic) Acquire(ctx context.Context) (*LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	streamID := "blinkchat-" + uuid.NewString()

	audio, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID,
	)
	if err != nil {
		return nil, fmt.Errorf("create audio track: %w", err)
	}
	tracks := []webrtc.TrackLocal{audio}

	if s.Video {
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000},
			"video", streamID,
		)
		if err != nil {
			return nil, fmt.Errorf("create video track: %w", err)
		}
		tracks = append(tracks, video)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go pumpSilence(pumpCtx, audio, done)

	return NewLocalStream(streamID, tracks, func() {
		cancel()
		<-done
	}), nil
}

// pumpSilence writes one silent frame per interval until ctx is cancelled.
// Writes before the track is bound to a connection are no-ops in pion.
func pumpSilence(ctx context.Context, track *webrtc.TrackLocalStaticSample, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(opusFrameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := track.WriteSample(pionmedia.Sample{Data: opusSilence, Duration: opusFrameDuration}); err != nil {
				util.LogTrace("audio sample dropped: %v", err)
			}
		case <-ctx.Done():
			return
		}
	}
}

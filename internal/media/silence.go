package media

import (
	"context"
	"time"

	"github.com/pion/webrtc/v4"
)

// opusSilence is a single 20ms Opus frame of silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

func newSilenceTrack() (*localTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", StreamID)
	if err != nil {
		return nil, err
	}
	return &localTrack{
		track: track,
		label: "microphone silence (Opus)",
		run:   playSilence,
	}, nil
}

func playSilence(ctx context.Context, t *localTrack) error {
	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := t.write(opusSilence, oggPageDuration); err != nil {
				return err
			}
		}
	}
}

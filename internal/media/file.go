package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

const (
	defaultFrameDuration = 33 * time.Millisecond
	oggPageDuration      = 20 * time.Millisecond
	opusSampleRate       = 48000
)

func newVideoTrack(path string) (*localTrack, error) {
	abs, err := checkFile(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	_, header, err := ivfreader.NewWith(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: not an IVF file: %v", ErrUnavailable, path, err)
	}
	if header.FourCC != "VP80" {
		return nil, fmt.Errorf("%w: %s: unsupported codec %q, want VP80", ErrUnavailable, path, header.FourCC)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}, "video", StreamID)
	if err != nil {
		return nil, err
	}
	return &localTrack{
		track: track,
		label: fmt.Sprintf("camera %s (VP8 %dx%d)", filepath.Base(path), header.Width, header.Height),
		run:   loop(abs, playIVF),
	}, nil
}

func newAudioTrack(path string) (*localTrack, error) {
	abs, err := checkFile(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(abs)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	_, _, err = oggreader.NewWith(f)
	f.Close()
	if err != nil {
		return nil, fmt.Errorf("%w: %s: not an Ogg/Opus file: %v", ErrUnavailable, path, err)
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}, "audio", StreamID)
	if err != nil {
		return nil, err
	}
	return &localTrack{
		track: track,
		label: fmt.Sprintf("microphone %s (Opus)", filepath.Base(path)),
		run:   loop(abs, playOgg),
	}, nil
}

// loop replays the file from the start every time it reaches the end.
func loop(path string, play func(ctx context.Context, r io.Reader, t *localTrack) error) func(context.Context, *localTrack) error {
	return func(ctx context.Context, t *localTrack) error {
		for {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			before := t.samples.Load()
			err = play(ctx, f, t)
			f.Close()
			if err != nil {
				return err
			}
			if t.samples.Load() == before {
				return fmt.Errorf("%s: no frames", filepath.Base(path))
			}
		}
	}
}

// playIVF writes one frame per timebase tick. It returns nil at the end of the file.
func playIVF(ctx context.Context, r io.Reader, t *localTrack) error {
	ivf, header, err := ivfreader.NewWith(r)
	if err != nil {
		return err
	}

	frameDuration := defaultFrameDuration
	if header.TimebaseDenominator != 0 && header.TimebaseNumerator != 0 {
		frameDuration = time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	}

	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		frame, _, err := ivf.ParseNextFrame()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := t.write(frame, frameDuration); err != nil {
			return err
		}
	}
}

// playOgg writes one Ogg page per tick, timed by the granule position.
func playOgg(ctx context.Context, r io.Reader, t *localTrack) error {
	ogg, _, err := oggreader.NewWith(r)
	if err != nil {
		return err
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		page, header, err := ogg.ParseNextPage()
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil
		}
		if err != nil {
			return err
		}

		var samples uint64
		if header.GranulePosition > lastGranule {
			samples = header.GranulePosition - lastGranule
			lastGranule = header.GranulePosition
		}
		duration := time.Duration(float64(samples) / opusSampleRate * float64(time.Second))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if err := t.write(page, duration); err != nil {
			return err
		}
	}
}

func (t *localTrack) write(data []byte, d time.Duration) error {
	if err := t.track.WriteSample(pionmedia.Sample{Data: data, Duration: d}); err != nil {
		return err
	}
	t.samples.Add(1)
	t.bytes.Add(uint64(len(data)))
	return nil
}

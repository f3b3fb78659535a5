// Package media provides the local camera and microphone of a call and counts what arrives from the
// remote side. Devices are pre-encoded files: VP8 in IVF containers and Opus in Ogg containers.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// ErrUnavailable is returned when a device file is missing or unusable.
var ErrUnavailable = errors.New("media device unavailable")

// StreamID groups the local tracks in the SDP.
const StreamID = "liveclass"

// Options selects the files used as camera and microphone.
// An empty Video disables the camera; an empty Audio uses a silent microphone.
type Options struct {
	Video string
	Audio string
}

// Stream is the set of local tracks of a call.
type Stream struct {
	tracks []*localTrack

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type localTrack struct {
	track   *webrtc.TrackLocalStaticSample
	label   string
	run     func(ctx context.Context, t *localTrack) error
	samples atomic.Uint64
	bytes   atomic.Uint64
}

// Open validates the device files and prepares the tracks. Nothing is read until Start.
func Open(opts Options) (*Stream, error) {
	s := &Stream{}

	if opts.Video != "" {
		t, err := newVideoTrack(opts.Video)
		if err != nil {
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	}

	if opts.Audio != "" {
		t, err := newAudioTrack(opts.Audio)
		if err != nil {
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	} else {
		t, err := newSilenceTrack()
		if err != nil {
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	}
	return s, nil
}

// Tracks returns the tracks to add to the peer connection.
func (s *Stream) Tracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t.track
	}
	return out
}

// Describe is the local preview line, e.g. "camera lesson.ivf (VP8), microphone silence (Opus)".
func (s *Stream) Describe() string {
	parts := make([]string, 0, len(s.tracks)+1)
	hasVideo := false
	for _, t := range s.tracks {
		if t.track.Kind() == webrtc.RTPCodecTypeVideo {
			hasVideo = true
		}
		parts = append(parts, t.label)
	}
	if !hasVideo {
		parts = append([]string{"camera off"}, parts...)
	}
	return strings.Join(parts, ", ")
}

// Start paces samples onto every track until ctx is done or Close is called.
func (s *Stream) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}

	ctx, s.cancel = context.WithCancel(ctx)
	for _, t := range s.tracks {
		t := t
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := t.run(ctx, t); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Str("track", t.track.ID()).Msg("local track stopped")
			}
		}()
	}
}

// Stats reports what has been written to each local track.
func (s *Stream) Stats() []TrackStats {
	out := make([]TrackStats, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = TrackStats{
			ID:      t.track.ID(),
			Kind:    t.track.Kind().String(),
			Codec:   codecName(t.track.Codec().MimeType),
			Packets: t.samples.Load(),
			Bytes:   t.bytes.Load(),
		}
	}
	return out
}

// Close stops all tracks and waits for them.
func (s *Stream) Close() error {
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
	return nil
}

// checkFile reports why path cannot be used as a device.
func checkFile(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}

	stat, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s: file does not exist", ErrUnavailable, path)
		}
		return "", fmt.Errorf("%w: %s: %v", ErrUnavailable, path, err)
	}
	if stat.IsDir() {
		return "", fmt.Errorf("%w: %s: is a directory", ErrUnavailable, path)
	}
	if stat.Size() == 0 {
		return "", fmt.Errorf("%w: %s: file is empty", ErrUnavailable, path)
	}

	f, err := os.Open(abs)
	if err != nil {
		return "", fmt.Errorf("%w: %s: permission denied", ErrUnavailable, path)
	}
	f.Close()
	return abs, nil
}

func codecName(mime string) string {
	if i := strings.IndexByte(mime, '/'); i >= 0 {
		return mime[i+1:]
	}
	return mime
}

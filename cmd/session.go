package cmd

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/pakachere/liveclass/internal/call"
	"github.com/pakachere/liveclass/internal/config"
	"github.com/pakachere/liveclass/internal/dns"
	"github.com/pakachere/liveclass/internal/logging"
	"github.com/pakachere/liveclass/internal/media"
	"github.com/pakachere/liveclass/internal/roomapi"
	"github.com/pakachere/liveclass/internal/signaling"
	"github.com/pakachere/liveclass/internal/ui"
	"github.com/pakachere/liveclass/internal/version"
	"github.com/pakachere/liveclass/internal/webrtc"
)

// clientFlags are shared by every command that talks to a relay.
type clientFlags struct {
	server     string
	secure     bool
	stun       string
	turn       string
	turnUser   string
	turnPass   string
	forceRelay bool
	name       string
	video      string
	audio      string
	timeout    time.Duration
}

func (f *clientFlags) register(fs *pflag.FlagSet, withMedia bool) {
	fs.StringVar(&f.server, "server", "", "Relay host[:port] (default localhost:8080)")
	fs.BoolVar(&f.secure, "secure", false, "Use wss:// and https:// to reach the relay")
	if !withMedia {
		return
	}
	fs.StringVarP(&f.stun, "stun", "s", "", "Custom STUN server")
	fs.StringVarP(&f.turn, "turn", "t", "", "Custom TURN server")
	fs.StringVar(&f.turnUser, "turn-user", "", "TURN username")
	fs.StringVar(&f.turnPass, "turn-pass", "", "TURN password")
	fs.BoolVarP(&f.forceRelay, "relay", "r", false, "Force TURN relay for media")
	fs.StringVarP(&f.name, "name", "n", "", "Display name shown to the other participant")
	fs.StringVar(&f.video, "video", "", "IVF (VP8) file used as the camera")
	fs.StringVar(&f.audio, "audio", "", "Ogg (Opus) file used as the microphone (default silence)")
	fs.DurationVar(&f.timeout, "timeout", 0, "Give up when the call does not connect in time (default 45s)")
}

func (f *clientFlags) load() (*config.Config, error) {
	cfg, err := config.Load(config.Options{
		Path:               flagConfig,
		Server:             f.server,
		Secure:             f.secure,
		STUNServer:         f.stun,
		TURNServer:         f.turn,
		TURNUser:           f.turnUser,
		TURNPass:           f.turnPass,
		ForceRelay:         f.forceRelay,
		NegotiationTimeout: f.timeout,
		DisplayName:        f.name,
		Video:              f.video,
		Audio:              f.audio,
		LogLevel:           flagLogLevel,
	})
	if err != nil {
		return nil, call.NewError("load config", err)
	}
	logging.Init(cfg.Log.Level, true)
	return cfg, nil
}

func newResolver(cfg *config.Config) *dns.Resolver {
	return dns.New(!cfg.Client.NoDNSFallback)
}

// callDeps wires the call controller to pion, the relay and local media.
func callDeps(cfg *config.Config) (call.Deps, error) {
	factory, err := webrtc.NewFactory(cfg)
	if err != nil {
		return call.Deps{}, call.NewError("set up WebRTC", err)
	}
	resolver := newResolver(cfg)

	return call.Deps{
		OpenMedia: func() (call.MediaSource, error) {
			s, err := media.Open(media.Options{Video: cfg.Client.Video, Audio: cfg.Client.Audio})
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		NewPeer: func() (call.PeerConnection, error) {
			p, err := factory.NewPeer()
			if err != nil {
				return nil, err
			}
			return p, nil
		},
		DialRelay: func(ctx context.Context) (*signaling.Client, error) {
			return signaling.Dial(ctx, cfg.WebSocketURL(), resolver)
		},
		Rooms: roomapi.New(cfg.APIURL(), resolver),
	}, nil
}

// runCall drives one call with the interactive view and prints a summary when it is over.
func runCall(ctx context.Context, cfg *config.Config, opts call.Options) error {
	deps, err := callDeps(cfg)
	if err != nil {
		return err
	}
	opts.DisplayName = cfg.Client.DisplayName
	opts.NegotiationTimeout = cfg.Client.NegotiationTimeout
	opts.Version = version.Version

	var ctrl *call.Controller
	var link func(string) string
	if opts.Role == signaling.RoleTutor {
		link = cfg.GetRoomLink
	}
	view := ui.NewCallUI(opts.Role, link, ui.Actions{
		SendChat: func(text string) error { return ctrl.SendChat(text) },
		Hangup:   func() { ctrl.End() },
	})

	ctrl, err = call.New(opts, deps, view.Observe)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() { errc <- ctrl.Run(ctx) }()

	if err := view.Run(); err != nil {
		// No terminal: the call keeps running until it ends or the process is interrupted.
		log.Debug().Err(err).Msg("call view unavailable")
		ui.PrintWarning("No terminal for the call view; the call continues until it ends or you press Ctrl+C")
	}
	err = <-errc

	ui.RenderCallSummary(ctrl.Snapshot())
	return err
}

// parseRoomInput accepts a bare room id or a room link such as https://relay.example/live/<id>.
func parseRoomInput(input string) (string, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return "", fmt.Errorf("room ID cannot be empty")
	}

	if strings.Contains(input, "://") || strings.Contains(input, "/") {
		return extractRoomIDFromURL(input)
	}
	return input, nil
}

func extractRoomIDFromURL(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", call.NewError("parse URL", err)
	}

	path := strings.TrimSuffix(parsedURL.Path, "/")
	parts := strings.Split(path, "/")

	for i, part := range parts {
		if part == "live" && i+1 < len(parts) && parts[i+1] != "" {
			return parts[i+1], nil
		}
	}

	return "", fmt.Errorf("could not extract room ID from URL: %s", urlStr)
}

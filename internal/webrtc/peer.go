package webrtc

import (
	"errors"
	"sync"

	"github.com/pion/interceptor"
	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pakachere/liveclass/internal/config"
	"github.com/pakachere/liveclass/internal/logging"
	"github.com/pakachere/liveclass/internal/media"
	"github.com/pakachere/liveclass/internal/utils"
)

// ErrControlClosed is returned when the control channel is not open.
var ErrControlClosed = errors.New("control channel not open")

// Factory builds peer connections that share one configured pion API.
type Factory struct {
	api  *pion.API
	conf pion.Configuration
}

// NewFactory prepares the media engine, interceptors and ICE settings from cfg.
func NewFactory(cfg *config.Config) (*Factory, error) {
	m := &pion.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, err
	}
	i := &interceptor.Registry{}
	if err := pion.RegisterDefaultInterceptors(m, i); err != nil {
		return nil, err
	}

	s := pion.SettingEngine{LoggerFactory: logging.NewPionFactory(pionLevel())}
	if cfg.Client.ICEPortMin > 0 && cfg.Client.ICEPortMax > 0 {
		if err := s.SetEphemeralUDPPortRange(cfg.Client.ICEPortMin, cfg.Client.ICEPortMax); err != nil {
			return nil, err
		}
	}

	iceServers := []pion.ICEServer{}
	if stun := cfg.GetSTUNServers(); stun != nil {
		iceServers = append(iceServers, pion.ICEServer{URLs: stun})
	}
	turnServers := cfg.GetTURNServers()
	if turnServers != nil {
		username, password := cfg.GetTURNCredentials()
		iceServers = append(iceServers, pion.ICEServer{
			URLs:       turnServers,
			Username:   username,
			Credential: password,
		})
	}

	policy := pion.ICETransportPolicyAll
	if turnServers != nil {
		if cfg.Client.ForceRelay {
			policy = pion.ICETransportPolicyRelay
			log.Info().Msg("forcing TURN relay for media")
		} else if reason, ok := utils.RelayHint(); ok {
			policy = pion.ICETransportPolicyRelay
			log.Info().Str("reason", reason).Msg("forcing TURN relay for media")
		}
	}

	return &Factory{
		api: pion.NewAPI(pion.WithMediaEngine(m), pion.WithInterceptorRegistry(i), pion.WithSettingEngine(s)),
		conf: pion.Configuration{
			ICEServers:         iceServers,
			ICETransportPolicy: policy,
		},
	}, nil
}

// pionLevel keeps pion one level quieter than the application.
func pionLevel() zerolog.Level {
	if l := zerolog.GlobalLevel(); l > zerolog.WarnLevel {
		return l
	}
	return zerolog.WarnLevel
}

// NewPeer creates a peer connection.
func (f *Factory) NewPeer() (*Peer, error) {
	pc, err := f.api.NewPeerConnection(f.conf)
	if err != nil {
		return nil, err
	}
	p := &Peer{pc: pc}
	pc.OnDataChannel(func(dc *pion.DataChannel) {
		if dc.Label() != ControlLabel {
			log.Warn().Str("label", dc.Label()).Msg("ignoring unexpected data channel")
			return
		}
		p.bindControl(dc)
	})
	return p, nil
}

// Peer wraps a pion peer connection with the call's control channel.
type Peer struct {
	pc *pion.PeerConnection

	mu        sync.Mutex
	control   *pion.DataChannel
	open      bool
	onOpen    func()
	onMessage func(Message)
}

func (p *Peer) AddTrack(track pion.TrackLocal) error {
	sender, err := p.pc.AddTrack(track)
	if err != nil {
		return err
	}

	// RTCP has to be read for the interceptors to work.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (p *Peer) CreateOffer() (pion.SessionDescription, error) {
	return p.pc.CreateOffer(nil)
}

func (p *Peer) CreateAnswer() (pion.SessionDescription, error) {
	return p.pc.CreateAnswer(nil)
}

func (p *Peer) SetLocalDescription(d pion.SessionDescription) error {
	return p.pc.SetLocalDescription(d)
}

func (p *Peer) SetRemoteDescription(d pion.SessionDescription) error {
	return p.pc.SetRemoteDescription(d)
}

func (p *Peer) AddICECandidate(c pion.ICECandidateInit) error {
	return p.pc.AddICECandidate(c)
}

// OnICECandidate reports every gathered local candidate. The end-of-candidates nil is dropped.
func (p *Peer) OnICECandidate(f func(pion.ICECandidateInit)) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			return
		}
		f(c.ToJSON())
	})
}

// OnTrack reports remote tracks. Each track is drained in its own goroutine and only counted.
func (p *Peer) OnTrack(f func(*media.RemoteTrack)) {
	p.pc.OnTrack(func(track *pion.TrackRemote, _ *pion.RTPReceiver) {
		rt := media.NewRemoteTrack(track.ID(), track.Kind().String(), track.Codec().MimeType)
		log.Info().Str("track", track.ID()).Str("codec", track.Codec().MimeType).Msg("remote track started")
		go func() {
			if err := rt.Consume(track); err != nil {
				log.Debug().Err(err).Str("track", track.ID()).Msg("remote track ended")
			}
		}()
		f(rt)
	})
}

func (p *Peer) OnConnectionStateChange(f func(pion.PeerConnectionState)) {
	p.pc.OnConnectionStateChange(f)
}

// OpenControl creates the control channel. Only the offering side calls it.
func (p *Peer) OpenControl() error {
	ordered := true
	dc, err := p.pc.CreateDataChannel(ControlLabel, &pion.DataChannelInit{Ordered: &ordered})
	if err != nil {
		return err
	}
	p.bindControl(dc)
	return nil
}

// OnControl sets the control channel callbacks.
func (p *Peer) OnControl(onOpen func(), onMessage func(Message)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onOpen = onOpen
	p.onMessage = onMessage
}

func (p *Peer) bindControl(dc *pion.DataChannel) {
	p.mu.Lock()
	p.control = dc
	p.mu.Unlock()

	dc.OnOpen(func() {
		p.mu.Lock()
		p.open = true
		cb := p.onOpen
		p.mu.Unlock()
		if cb != nil {
			cb()
		}
	})
	dc.OnClose(func() {
		p.mu.Lock()
		p.open = false
		p.mu.Unlock()
	})
	dc.OnMessage(func(raw pion.DataChannelMessage) {
		msg, err := Decode(raw.Data)
		if err != nil {
			log.Warn().Err(err).Msg("ignoring malformed control message")
			return
		}
		p.mu.Lock()
		cb := p.onMessage
		p.mu.Unlock()
		if cb != nil {
			cb(msg)
		}
	})
}

// SendControl sends m on the control channel.
func (p *Peer) SendControl(m Message) error {
	p.mu.Lock()
	dc, open := p.control, p.open
	p.mu.Unlock()
	if dc == nil || !open {
		return ErrControlClosed
	}

	b, err := Encode(m)
	if err != nil {
		return err
	}
	return dc.Send(b)
}

func (p *Peer) Close() error {
	return p.pc.Close()
}

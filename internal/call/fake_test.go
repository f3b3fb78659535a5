package call

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	pion "github.com/pion/webrtc/v4"

	"github.com/pakachere/liveclass/internal/media"
	"github.com/pakachere/liveclass/internal/webrtc"
)

// fakePeer stands in for a pion peer connection. It "connects" once both descriptions are set:
// the control channel opens and one remote video track is reported.
type fakePeer struct {
	name       string
	candidates int  // local candidates gathered after SetLocalDescription
	stall      bool // never connect

	mu       sync.Mutex
	local    *pion.SessionDescription
	remote   *pion.SessionDescription
	added    []pion.ICECandidateInit
	tracks   []pion.TrackLocal
	control  bool
	open     bool
	closed   bool
	sent     []webrtc.Message
	partner  *fakePeer
	onICE    func(pion.ICECandidateInit)
	onTrack  func(*media.RemoteTrack)
	onState  func(pion.PeerConnectionState)
	onOpen   func()
	onMsg    func(webrtc.Message)
	gathered sync.WaitGroup
}

func newFakePeer(name string) *fakePeer {
	return &fakePeer{name: name}
}

// link makes each peer's control messages arrive at the other.
func link(a, b *fakePeer) {
	a.mu.Lock()
	a.partner = b
	a.mu.Unlock()
	b.mu.Lock()
	b.partner = a
	b.mu.Unlock()
}

func (p *fakePeer) AddTrack(track pion.TrackLocal) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.tracks = append(p.tracks, track)
	return nil
}

func (p *fakePeer) CreateOffer() (pion.SessionDescription, error) {
	return pion.SessionDescription{Type: pion.SDPTypeOffer, SDP: "offer-from-" + p.name}, nil
}

func (p *fakePeer) CreateAnswer() (pion.SessionDescription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil || p.remote.Type != pion.SDPTypeOffer {
		return pion.SessionDescription{}, errors.New("no remote offer")
	}
	return pion.SessionDescription{Type: pion.SDPTypeAnswer, SDP: "answer-from-" + p.name}, nil
}

func (p *fakePeer) SetLocalDescription(d pion.SessionDescription) error {
	p.mu.Lock()
	p.local = &d
	onICE := p.onICE
	p.mu.Unlock()

	if onICE != nil && p.candidates > 0 {
		p.gathered.Add(1)
		go func() {
			defer p.gathered.Done()
			for i := 1; i <= p.candidates; i++ {
				onICE(candidate(fmt.Sprintf("%s-%d", p.name, i)))
			}
		}()
	}
	p.maybeConnect()
	return nil
}

func (p *fakePeer) SetRemoteDescription(d pion.SessionDescription) error {
	p.mu.Lock()
	p.remote = &d
	p.mu.Unlock()
	p.maybeConnect()
	return nil
}

func (p *fakePeer) AddICECandidate(c pion.ICECandidateInit) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return errors.New("remote description not set")
	}
	if strings.HasPrefix(c.Candidate, "candidate:bad") {
		return errors.New("malformed candidate")
	}
	p.added = append(p.added, c)
	return nil
}

func (p *fakePeer) maybeConnect() {
	p.mu.Lock()
	if p.stall || p.open || p.local == nil || p.remote == nil {
		p.mu.Unlock()
		return
	}
	p.open = true
	onState, onTrack, onOpen := p.onState, p.onTrack, p.onOpen
	p.mu.Unlock()

	go func() {
		if onState != nil {
			onState(pion.PeerConnectionStateConnected)
		}
		if onOpen != nil {
			onOpen()
		}
		if onTrack != nil {
			onTrack(media.NewRemoteTrack("remote-video", "video", pion.MimeTypeVP8))
		}
	}()
}

func (p *fakePeer) OnICECandidate(f func(pion.ICECandidateInit)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onICE = f
}

func (p *fakePeer) OnTrack(f func(*media.RemoteTrack)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onTrack = f
}

func (p *fakePeer) OnConnectionStateChange(f func(pion.PeerConnectionState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = f
}

func (p *fakePeer) OpenControl() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.control = true
	return nil
}

func (p *fakePeer) OnControl(onOpen func(), onMessage func(webrtc.Message)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onOpen = onOpen
	p.onMsg = onMessage
}

func (p *fakePeer) SendControl(m webrtc.Message) error {
	p.mu.Lock()
	if !p.open || p.closed {
		p.mu.Unlock()
		return webrtc.ErrControlClosed
	}
	p.sent = append(p.sent, m)
	partner := p.partner
	p.mu.Unlock()

	if partner != nil {
		partner.mu.Lock()
		onMsg := partner.onMsg
		partner.mu.Unlock()
		if onMsg != nil {
			onMsg(m)
		}
	}
	return nil
}

func (p *fakePeer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePeer) remoteSDP() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.remote == nil {
		return ""
	}
	return p.remote.SDP
}

func (p *fakePeer) addedCandidates() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.added))
	for _, c := range p.added {
		out = append(out, c.Candidate)
	}
	return out
}

func (p *fakePeer) sentTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.sent))
	for _, m := range p.sent {
		out = append(out, m.Type)
	}
	return out
}

func (p *fakePeer) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func candidate(id string) pion.ICECandidateInit {
	return pion.ICECandidateInit{Candidate: "candidate:" + id}
}

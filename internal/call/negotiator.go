package call

import (
	"fmt"

	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/pakachere/liveclass/internal/media"
	"github.com/pakachere/liveclass/internal/signaling"
	"github.com/pakachere/liveclass/internal/webrtc"
)

// PeerConnection is the offer/answer/ICE primitive a call runs on.
// *webrtc.Peer implements it over pion.
type PeerConnection interface {
	AddTrack(track pion.TrackLocal) error
	CreateOffer() (pion.SessionDescription, error)
	CreateAnswer() (pion.SessionDescription, error)
	SetLocalDescription(d pion.SessionDescription) error
	SetRemoteDescription(d pion.SessionDescription) error
	AddICECandidate(c pion.ICECandidateInit) error

	OnICECandidate(f func(pion.ICECandidateInit))
	OnTrack(f func(*media.RemoteTrack))
	OnConnectionStateChange(f func(pion.PeerConnectionState))

	OpenControl() error
	OnControl(onOpen func(), onMessage func(webrtc.Message))
	SendControl(m webrtc.Message) error

	Close() error
}

// SignalSender delivers a payload to the other participant.
type SignalSender func(*signaling.SignalPayload) error

// Negotiator runs the offer/answer exchange for one peer connection.
// Remote ICE candidates that arrive before the remote description are queued and added,
// in arrival order, right after it is applied.
// It is not safe for concurrent use; the controller loop owns it.
type Negotiator struct {
	role string
	pc   PeerConnection
	send SignalSender
	log  zerolog.Logger

	remoteSet bool
	pending   []pion.ICECandidateInit

	offer *pion.SessionDescription
	local []pion.ICECandidateInit
}

// NewNegotiator binds a negotiator to pc. Outgoing signals go through send.
// The tutor offers and the student answers; descriptions meant for the other role are ignored.
func NewNegotiator(role string, pc PeerConnection, send SignalSender, log zerolog.Logger) *Negotiator {
	return &Negotiator{role: role, pc: pc, send: send, log: log}
}

// Accepts reports whether p is a signal this side applies.
func (n *Negotiator) Accepts(p *signaling.SignalPayload) bool {
	if !p.IsDescription() {
		return true
	}
	switch pion.NewSDPType(p.Type) {
	case pion.SDPTypeOffer:
		return n.role != signaling.RoleTutor
	case pion.SDPTypeAnswer:
		return n.role != signaling.RoleStudent
	}
	return true
}

// Offer creates, applies and sends a local offer.
func (n *Negotiator) Offer() error {
	offer, err := n.pc.CreateOffer()
	if err != nil {
		return Cause("create offer", ErrNegotiation, err)
	}
	if err := n.pc.SetLocalDescription(offer); err != nil {
		return Cause("set local description", ErrNegotiation, err)
	}
	n.offer = &offer

	if err := n.send(&signaling.SignalPayload{Type: offer.Type.String(), SDP: offer.SDP}); err != nil {
		return Cause("send offer", ErrRelayLost, err)
	}
	n.log.Debug().Msg("offer sent")
	return nil
}

// Resend repeats the offer and every local candidate gathered so far.
// It does nothing once an answer has been applied or when no offer was made.
func (n *Negotiator) Resend() error {
	if n.offer == nil || n.remoteSet {
		return nil
	}
	if err := n.send(&signaling.SignalPayload{Type: n.offer.Type.String(), SDP: n.offer.SDP}); err != nil {
		return Cause("resend offer", ErrRelayLost, err)
	}
	for i := range n.local {
		if err := n.send(&signaling.SignalPayload{Candidate: &n.local[i]}); err != nil {
			return Cause("resend candidate", ErrRelayLost, err)
		}
	}
	n.log.Debug().Int("candidates", len(n.local)).Msg("offer resent")
	return nil
}

// LocalCandidate records and sends a gathered local candidate.
func (n *Negotiator) LocalCandidate(c pion.ICECandidateInit) error {
	n.local = append(n.local, c)
	if err := n.send(&signaling.SignalPayload{Candidate: &c}); err != nil {
		return Cause("send candidate", ErrRelayLost, err)
	}
	return nil
}

// Handle applies one inbound signal.
// Descriptions are applied as they come; an offer is answered.
func (n *Negotiator) Handle(p *signaling.SignalPayload) error {
	if !n.Accepts(p) {
		n.log.Warn().Str("type", p.Type).Str("role", n.role).Msg("ignoring description not meant for this side")
		return nil
	}
	if p.IsDescription() {
		return n.handleDescription(p)
	}
	if p.Candidate != nil {
		n.handleCandidate(*p.Candidate)
		return nil
	}
	n.log.Warn().Msg("ignoring empty signal")
	return nil
}

func (n *Negotiator) handleDescription(p *signaling.SignalPayload) error {
	sdpType := pion.NewSDPType(p.Type)
	if sdpType != pion.SDPTypeOffer && sdpType != pion.SDPTypeAnswer {
		return WrapError("handle signal", ErrNegotiation, fmt.Sprintf("unexpected description type %q", p.Type))
	}

	if err := n.pc.SetRemoteDescription(pion.SessionDescription{Type: sdpType, SDP: p.SDP}); err != nil {
		return Cause("set remote "+sdpType.String(), ErrNegotiation, err)
	}
	n.remoteSet = true
	n.drain()

	if sdpType != pion.SDPTypeOffer {
		n.log.Debug().Msg("answer applied")
		return nil
	}

	answer, err := n.pc.CreateAnswer()
	if err != nil {
		return Cause("create answer", ErrNegotiation, err)
	}
	if err := n.pc.SetLocalDescription(answer); err != nil {
		return Cause("set local description", ErrNegotiation, err)
	}
	if err := n.send(&signaling.SignalPayload{Type: answer.Type.String(), SDP: answer.SDP}); err != nil {
		return Cause("send answer", ErrRelayLost, err)
	}
	n.log.Debug().Msg("answer sent")
	return nil
}

func (n *Negotiator) handleCandidate(c pion.ICECandidateInit) {
	if !n.remoteSet {
		n.pending = append(n.pending, c)
		n.log.Debug().Int("queued", len(n.pending)).Msg("candidate queued until remote description")
		return
	}
	n.add(c)
}

func (n *Negotiator) drain() {
	queued := n.pending
	n.pending = nil
	for _, c := range queued {
		n.add(c)
	}
	if len(queued) > 0 {
		n.log.Debug().Int("count", len(queued)).Msg("queued candidates added")
	}
}

// add hands c to the peer connection. A rejected candidate is not fatal.
func (n *Negotiator) add(c pion.ICECandidateInit) {
	if err := n.pc.AddICECandidate(c); err != nil {
		n.log.Warn().Err(err).Str("candidate", c.Candidate).Msg("remote candidate rejected")
	}
}

// RemoteApplied reports whether a remote description has been applied.
func (n *Negotiator) RemoteApplied() bool {
	return n.remoteSet
}

// Pending is the number of queued remote candidates.
func (n *Negotiator) Pending() int {
	return len(n.pending)
}

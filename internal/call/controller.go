package call

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	pion "github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pakachere/liveclass/internal/media"
	"github.com/pakachere/liveclass/internal/signaling"
	"github.com/pakachere/liveclass/internal/webrtc"
)

// Transcript senders that are not participants.
const (
	SenderYou    = "You"
	SenderSystem = "System"
)

// Options configures one call attempt.
type Options struct {
	Role        string
	RoomID      string // student only
	SessionID   string // tutor only
	DisplayName string

	// NegotiationTimeout fails the call when it does not connect in time
	// after the other participant is present. Zero disables it.
	NegotiationTimeout time.Duration

	// Version is announced to the other participant.
	Version string
}

// MediaSource is the local camera and microphone. *media.Stream implements it.
type MediaSource interface {
	Tracks() []pion.TrackLocal
	Describe() string
	Start(ctx context.Context)
	Close() error
}

// RoomCreator creates rooms over the REST endpoint. *roomapi.Client implements it.
type RoomCreator interface {
	CreateRoom(ctx context.Context, sessionID string) (string, error)
}

// Deps are the collaborators of a call.
type Deps struct {
	OpenMedia func() (MediaSource, error)
	NewPeer   func() (PeerConnection, error)
	DialRelay func(ctx context.Context) (*signaling.Client, error)
	Rooms     RoomCreator
}

// ChatLine is one transcript entry.
type ChatLine struct {
	At     time.Time
	Sender string
	Text   string
}

// Snapshot is what a view needs to render the call.
type Snapshot struct {
	State        State
	Status       string
	Role         string
	RoomID       string
	Participants []signaling.Participant
	Transcript   []ChatLine
	LocalMedia   string
	RemoteTracks []media.TrackStats
	StartedAt    time.Time
	ConnectedAt  time.Time
	EndedAt      time.Time

	// NegotiationStarted and NegotiationDeadline are set while the negotiation timer runs.
	NegotiationStarted  time.Time
	NegotiationDeadline time.Time

	Err error
}

// Viewers is the number of participants other than the local one.
func (s Snapshot) Viewers() int {
	if len(s.Participants) == 0 {
		return 0
	}
	return len(s.Participants) - 1
}

type (
	iceEvent     struct{ candidate pion.ICECandidateInit }
	trackEvent   struct{ track *media.RemoteTrack }
	pcStateEvent struct{ state pion.PeerConnectionState }
	controlOpen  struct{}
	controlMsg   struct{ msg webrtc.Message }
	chatCmd      struct{ text string }
	hangupCmd    struct{}
)

// Controller drives one participant through a call.
// Run owns all call state; the other methods are safe to call from any goroutine.
type Controller struct {
	opts     Options
	deps     Deps
	observer func(Snapshot)
	log      zerolog.Logger

	inbox chan any
	done  chan struct{}

	// Owned by Run.
	src     MediaSource
	pc      PeerConnection
	relay   *signaling.Client
	handler *signaling.Handler
	neg     *Negotiator
	joined  bool
	timer   *time.Timer
	wait    <-chan time.Time

	mu     sync.Mutex
	snap   Snapshot
	remote []*media.RemoteTrack // appended by Run, read by Snapshot
}

// New validates opts and returns an idle controller.
// observer, when not nil, receives a snapshot after every change. It runs on the call's goroutine
// and must not block.
func New(opts Options, deps Deps, observer func(Snapshot)) (*Controller, error) {
	switch opts.Role {
	case signaling.RoleTutor:
		if strings.TrimSpace(opts.SessionID) == "" {
			return nil, WrapError("new call", ErrInvalidOptions, "tutor needs a session id")
		}
		if deps.Rooms == nil {
			return nil, WrapError("new call", ErrInvalidOptions, "tutor needs a room creator")
		}
	case signaling.RoleStudent:
		if strings.TrimSpace(opts.RoomID) == "" {
			return nil, NewError("new call", ErrNoRoom)
		}
	default:
		return nil, WrapError("new call", ErrInvalidOptions, fmt.Sprintf("unknown role %q", opts.Role))
	}
	if deps.OpenMedia == nil || deps.NewPeer == nil || deps.DialRelay == nil {
		return nil, WrapError("new call", ErrInvalidOptions, "missing dependency")
	}
	if opts.DisplayName == "" {
		opts.DisplayName = strings.ToUpper(opts.Role[:1]) + opts.Role[1:]
	}

	return &Controller{
		opts:     opts,
		deps:     deps,
		observer: observer,
		log:      log.With().Str("role", opts.Role).Logger(),
		inbox:    make(chan any, 64),
		done:     make(chan struct{}),
		snap: Snapshot{
			State:  StateIdle,
			Status: "Ready",
			Role:   opts.Role,
		},
	}, nil
}

// Snapshot returns the current view of the call.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() Snapshot {
	s := c.snap
	s.Participants = append([]signaling.Participant(nil), c.snap.Participants...)
	s.Transcript = append([]ChatLine(nil), c.snap.Transcript...)
	s.RemoteTracks = make([]media.TrackStats, 0, len(c.remote))
	for _, t := range c.remote {
		s.RemoteTracks = append(s.RemoteTracks, t.Stats())
	}
	return s
}

// SendChat appends text to the transcript and relays it.
// It fails with ErrNoRoom until the room id is known.
func (c *Controller) SendChat(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	c.mu.Lock()
	state, room := c.snap.State, c.snap.RoomID
	c.mu.Unlock()
	if room == "" || state.Terminal() {
		return NewError("send chat", ErrNoRoom)
	}
	c.post(chatCmd{text: text})
	return nil
}

// End hangs up. It is a no-op once the call is over.
func (c *Controller) End() {
	c.post(hangupCmd{})
}

// Done is closed when Run has returned.
func (c *Controller) Done() <-chan struct{} {
	return c.done
}

func (c *Controller) post(ev any) {
	select {
	case c.inbox <- ev:
	case <-c.done:
	}
}

// Run executes the call until it ends. It returns nil when the call ended normally
// and the failure otherwise. Resources are released on every path.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.teardown()

	c.update(func(s *Snapshot) { s.StartedAt = time.Now() })
	if err := c.fire(EventStart, "Accessing camera and microphone..."); err != nil {
		return err
	}

	src, err := c.deps.OpenMedia()
	if err != nil {
		return c.fail(Cause("open media", ErrMediaUnavailable, err), "Failed to access camera/microphone")
	}
	c.src = src

	if err := c.setupPeer(); err != nil {
		return c.fail(err, "Failed to set up the call")
	}
	src.Start(ctx)
	c.update(func(s *Snapshot) { s.LocalMedia = src.Describe() })

	if err := c.fire(EventMediaReady, "Connecting to the signaling server..."); err != nil {
		return err
	}

	relay, err := c.deps.DialRelay(ctx)
	if err != nil {
		return c.fail(Cause("dial relay", ErrRelayUnavailable, err), "Could not reach the signaling server")
	}
	c.relay = relay
	c.handler = signaling.NewHandler(relay)
	go c.handler.Start()

	roomID := c.opts.RoomID
	if c.opts.Role == signaling.RoleTutor {
		c.setStatus("Creating room...")
		roomID, err = c.deps.Rooms.CreateRoom(ctx, c.opts.SessionID)
		if err != nil {
			return c.fail(Cause("create room", ErrRoomCreation, err), "Failed to create room")
		}
		c.log.Info().Str("room", roomID).Str("session", c.opts.SessionID).Msg("room created")
	}
	c.update(func(s *Snapshot) { s.RoomID = roomID })
	c.log = c.log.With().Str("room", roomID).Logger()

	c.neg = NewNegotiator(c.opts.Role, c.pc, func(p *signaling.SignalPayload) error {
		return c.relay.SendSignal(roomID, p)
	}, c.log)

	if err := relay.Join(roomID, c.opts.DisplayName, c.opts.Role); err != nil {
		return c.fail(Cause("join room", ErrRelayLost, err), "Lost connection to the signaling server")
	}
	c.setStatus("Joining room...")

	return c.loop(ctx)
}

func (c *Controller) setupPeer() error {
	pc, err := c.deps.NewPeer()
	if err != nil {
		return Cause("create peer connection", ErrNegotiation, err)
	}
	c.pc = pc

	for _, t := range c.src.Tracks() {
		if err := pc.AddTrack(t); err != nil {
			return Cause("add track", ErrNegotiation, err)
		}
	}

	pc.OnICECandidate(func(cand pion.ICECandidateInit) { c.post(iceEvent{candidate: cand}) })
	pc.OnTrack(func(t *media.RemoteTrack) { c.post(trackEvent{track: t}) })
	pc.OnConnectionStateChange(func(s pion.PeerConnectionState) { c.post(pcStateEvent{state: s}) })
	pc.OnControl(
		func() { c.post(controlOpen{}) },
		func(m webrtc.Message) { c.post(controlMsg{msg: m}) },
	)

	if c.opts.Role == signaling.RoleTutor {
		if err := pc.OpenControl(); err != nil {
			return Cause("open control channel", ErrNegotiation, err)
		}
	}
	return nil
}

func (c *Controller) loop(ctx context.Context) error {
	h := c.handler
	for {
		var err error
		select {
		case <-ctx.Done():
			c.hangup("Call ended")

		case ev := <-c.inbox:
			err = c.handleEvent(ev)

		case ev, ok := <-h.Events:
			if !ok {
				err = c.fail(Cause("relay", ErrRelayLost, c.relay.Err()), "Lost connection to the signaling server")
				break
			}
			err = c.onRelay(ev)

		case <-c.wait:
			c.wait = nil
			err = c.fail(NewError("negotiate", ErrNegotiationTimeout), "Timed out waiting for the connection")
		}

		if st := c.state(); st.Terminal() {
			if st == StateError {
				return c.Snapshot().Err
			}
			return nil
		}
		if err != nil {
			c.log.Warn().Err(err).Msg("event not applied")
		}
	}
}

// onRelay handles one relay message. Messages come in the order the relay sent them.
func (c *Controller) onRelay(ev signaling.Event) error {
	switch ev.Type {
	case signaling.MessageTypeJoinSuccess:
		return c.onJoined(ev.Join)
	case signaling.MessageTypeUserJoined:
		return c.onUserJoined(ev.Participant)
	case signaling.MessageTypeUserLeft:
		return c.onUserLeft(ev.Participant)
	case signaling.MessageTypeSignal:
		return c.onSignal(ev.Signal)
	case signaling.MessageTypeChatMessage:
		c.appendLine(ev.Chat.Sender, ev.Chat.Text)
	case signaling.MessageTypeError:
		if !c.joined {
			return c.fail(WrapError("join room", ErrRelayRejected, ev.Error), ev.Error)
		}
		c.log.Warn().Str("error", ev.Error).Msg("relay reported an error")
	}
	return nil
}

func (c *Controller) handleEvent(ev any) error {
	switch ev := ev.(type) {
	case hangupCmd:
		c.hangup("Call ended")

	case chatCmd:
		if err := c.relay.SendChat(c.Snapshot().RoomID, ev.text); err != nil {
			return c.fail(Cause("send chat", ErrRelayLost, err), "Lost connection to the signaling server")
		}
		c.appendLine(SenderYou, ev.text)

	case iceEvent:
		if err := c.neg.LocalCandidate(ev.candidate); err != nil {
			return c.fail(err, "Lost connection to the signaling server")
		}

	case trackEvent:
		c.mu.Lock()
		c.remote = append(c.remote, ev.track)
		c.mu.Unlock()
		first := c.state() != StateConnected
		if err := c.fire(EventRemoteTrack, "Connected"); err != nil {
			return err
		}
		if first {
			c.stopTimer()
			c.update(func(s *Snapshot) { s.ConnectedAt = time.Now() })
			c.log.Info().Msg("call connected")
		}
		c.publish()

	case pcStateEvent:
		c.log.Debug().Str("state", ev.state.String()).Msg("peer connection state changed")
		switch ev.state {
		case pion.PeerConnectionStateFailed:
			return c.fail(NewError("peer connection", ErrPeerFailed), "Connection lost")
		case pion.PeerConnectionStateClosed:
			c.hangup("Call ended")
		case pion.PeerConnectionStateDisconnected:
			c.setStatus("Connection interrupted, waiting to recover...")
		case pion.PeerConnectionStateConnected:
			if c.state() == StateConnected {
				c.setStatus("Connected")
			}
		}

	case controlOpen:
		hello, err := webrtc.NewMessage(webrtc.MessageTypeHello, webrtc.HelloPayload{
			DisplayName: c.opts.DisplayName,
			Role:        c.opts.Role,
			Version:     c.opts.Version,
		})
		if err != nil {
			return err
		}
		if err := c.pc.SendControl(hello); err != nil {
			c.log.Warn().Err(err).Msg("hello not sent")
		}

	case controlMsg:
		return c.onControl(ev.msg)
	}
	return nil
}

func (c *Controller) onJoined(info *signaling.JoinInfo) error {
	c.joined = true
	c.update(func(s *Snapshot) { s.Participants = info.Participants })
	c.log.Info().Int("participants", len(info.Participants)).Msg("joined room")

	if c.opts.Role == signaling.RoleTutor {
		if err := c.neg.Offer(); err != nil {
			return c.fail(err, "Negotiation failed")
		}
		if err := c.fire(EventJoined, "Waiting for a student to join..."); err != nil {
			return err
		}
		if len(info.Participants) > 1 {
			c.startTimer()
		}
		return nil
	}

	if err := c.fire(EventJoined, "Waiting for the tutor..."); err != nil {
		return err
	}
	if len(info.Participants) > 1 {
		c.setStatus("Negotiating...")
		c.startTimer()
	}
	return nil
}

func (c *Controller) onUserJoined(p signaling.Participant) error {
	c.update(func(s *Snapshot) { s.Participants = append(s.Participants, p) })
	c.appendLine(SenderSystem, p.Name+" joined")

	if c.state() != StateNegotiating {
		return nil
	}
	c.setStatus("Negotiating with " + p.Name + "...")
	c.startTimer()

	if c.opts.Role == signaling.RoleTutor {
		if err := c.neg.Resend(); err != nil {
			return c.fail(err, "Lost connection to the signaling server")
		}
	}
	return nil
}

func (c *Controller) onUserLeft(p signaling.Participant) error {
	c.update(func(s *Snapshot) {
		for i, q := range s.Participants {
			if q == p {
				s.Participants = append(s.Participants[:i:i], s.Participants[i+1:]...)
				break
			}
		}
	})
	c.appendLine(SenderSystem, p.Name+" left")

	switch c.state() {
	case StateConnected:
		c.hangup(p.Name + " left the call")
	case StateNegotiating:
		if c.neg.RemoteApplied() {
			return c.fail(WrapError("negotiate", ErrPeerLeft, p.Name), p.Name+" left before the call connected")
		}
		if c.opts.Role == signaling.RoleTutor {
			c.stopTimer()
			c.setStatus("Waiting for a student to join...")
		}
	}
	return nil
}

func (c *Controller) onSignal(p *signaling.SignalPayload) error {
	if p.IsDescription() && c.neg.Accepts(p) {
		if err := c.fire(EventRemoteDescription, ""); err != nil {
			return err
		}
	}
	if err := c.neg.Handle(p); err != nil {
		if errors.Is(err, ErrRelayLost) {
			return c.fail(err, "Lost connection to the signaling server")
		}
		return c.fail(err, "Negotiation failed")
	}
	return nil
}

func (c *Controller) onControl(m webrtc.Message) error {
	switch m.Type {
	case webrtc.MessageTypeHello:
		var hello webrtc.HelloPayload
		if err := m.DecodePayload(&hello); err != nil {
			return err
		}
		c.log.Info().Str("peer", hello.DisplayName).Str("peer_role", hello.Role).Str("peer_version", hello.Version).Msg("peer introduced itself")

	case webrtc.MessageTypeHangup:
		var bye webrtc.HangupPayload
		_ = m.DecodePayload(&bye)
		c.log.Info().Str("reason", bye.Reason).Msg("peer hung up")
		c.hangup("The other participant ended the call")

	default:
		c.log.Debug().Str("type", m.Type).Msg("ignoring control message")
	}
	return nil
}

func (c *Controller) startTimer() {
	if c.opts.NegotiationTimeout <= 0 || c.wait != nil {
		return
	}
	c.timer = time.NewTimer(c.opts.NegotiationTimeout)
	c.wait = c.timer.C
	now := time.Now()
	c.update(func(s *Snapshot) {
		s.NegotiationStarted = now
		s.NegotiationDeadline = now.Add(c.opts.NegotiationTimeout)
	})
}

func (c *Controller) stopTimer() {
	if c.timer == nil {
		return
	}
	c.timer.Stop()
	c.timer, c.wait = nil, nil
	c.update(func(s *Snapshot) {
		s.NegotiationStarted = time.Time{}
		s.NegotiationDeadline = time.Time{}
	})
}

// fire applies e. A non-empty status replaces the current one on success.
func (c *Controller) fire(e Event, status string) error {
	c.mu.Lock()
	from := c.snap.State
	to, err := transition(from, e)
	if err != nil {
		c.mu.Unlock()
		c.log.Warn().Err(err).Msg("transition rejected")
		return err
	}
	c.snap.State = to
	if status != "" {
		c.snap.Status = status
	}
	c.mu.Unlock()

	if from != to {
		c.log.Debug().Str("from", from.String()).Str("to", to.String()).Str("event", e.String()).Msg("state changed")
	}
	c.publish()
	return nil
}

// fail moves the call to Error and returns err.
func (c *Controller) fail(err error, status string) error {
	c.mu.Lock()
	to, terr := transition(c.snap.State, EventFailure)
	if terr == nil {
		c.snap.State = to
		c.snap.Status = status
		c.snap.Err = err
		c.snap.EndedAt = time.Now()
	}
	c.mu.Unlock()

	if terr == nil {
		c.log.Error().Err(err).Msg("call failed")
		c.publish()
	}
	return err
}

func (c *Controller) hangup(status string) {
	c.mu.Lock()
	to, err := transition(c.snap.State, EventHangup)
	if err == nil {
		c.snap.State = to
		c.snap.Status = status
		c.snap.EndedAt = time.Now()
	}
	c.mu.Unlock()

	if err == nil {
		c.log.Info().Str("status", status).Msg("call ended")
		c.publish()
	}
}

func (c *Controller) state() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snap.State
}

func (c *Controller) setStatus(status string) {
	c.update(func(s *Snapshot) { s.Status = status })
}

func (c *Controller) appendLine(sender, text string) {
	c.update(func(s *Snapshot) {
		s.Transcript = append(s.Transcript, ChatLine{At: time.Now(), Sender: sender, Text: text})
	})
}

func (c *Controller) update(f func(*Snapshot)) {
	c.mu.Lock()
	f(&c.snap)
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) publish() {
	if c.observer == nil {
		return
	}
	c.observer(c.Snapshot())
}

// teardown releases everything Run acquired, whatever state the call stopped in.
func (c *Controller) teardown() {
	c.stopTimer()

	if c.pc != nil {
		if bye, err := webrtc.NewMessage(webrtc.MessageTypeHangup, webrtc.HangupPayload{Reason: c.Snapshot().Status}); err == nil {
			if err := c.pc.SendControl(bye); err != nil && !errors.Is(err, webrtc.ErrControlClosed) {
				c.log.Debug().Err(err).Msg("hangup not sent")
			}
		}
	}
	if c.handler != nil {
		c.handler.Close()
	}
	if c.relay != nil {
		c.relay.Close()
	}
	if c.pc != nil {
		if err := c.pc.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close peer connection")
		}
	}
	if c.src != nil {
		if err := c.src.Close(); err != nil {
			c.log.Warn().Err(err).Msg("close media")
		}
	}

	// Run can return before reaching a terminal state only through a bug; never leave a live state behind.
	if !c.state().Terminal() {
		c.hangup("Call ended")
	}
}

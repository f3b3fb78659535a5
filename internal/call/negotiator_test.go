package call

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pakachere/liveclass/internal/signaling"
)

type recorder struct {
	sent []*signaling.SignalPayload
	err  error
}

func (r *recorder) send(p *signaling.SignalPayload) error {
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, p)
	return nil
}

func (r *recorder) kinds() []string {
	out := make([]string, 0, len(r.sent))
	for _, p := range r.sent {
		if p.Candidate != nil {
			out = append(out, p.Candidate.Candidate)
			continue
		}
		out = append(out, p.Type)
	}
	return out
}

func TestNegotiatorQueuesEarlyCandidates(t *testing.T) {
	pc := newFakePeer("student")
	rec := &recorder{}
	n := NewNegotiator(signaling.RoleStudent, pc, rec.send, zerolog.Nop())

	c1, c2 := candidate("tutor-1"), candidate("tutor-2")
	require.NoError(t, n.Handle(&signaling.SignalPayload{Candidate: &c1}))
	require.NoError(t, n.Handle(&signaling.SignalPayload{Candidate: &c2}))
	assert.Equal(t, 2, n.Pending())
	assert.Empty(t, pc.addedCandidates())
	assert.False(t, n.RemoteApplied())

	require.NoError(t, n.Handle(&signaling.SignalPayload{Type: "offer", SDP: "offer-from-tutor"}))
	assert.True(t, n.RemoteApplied())
	assert.Zero(t, n.Pending())
	assert.Equal(t, []string{"candidate:tutor-1", "candidate:tutor-2"}, pc.addedCandidates())
	assert.Equal(t, "offer-from-tutor", pc.remoteSDP())

	require.Len(t, rec.sent, 1)
	assert.Equal(t, "answer", rec.sent[0].Type)
	assert.Equal(t, "answer-from-student", rec.sent[0].SDP)

	c3 := candidate("tutor-3")
	require.NoError(t, n.Handle(&signaling.SignalPayload{Candidate: &c3}))
	assert.Equal(t, []string{"candidate:tutor-1", "candidate:tutor-2", "candidate:tutor-3"}, pc.addedCandidates())
}

func TestNegotiatorOfferAndResend(t *testing.T) {
	pc := newFakePeer("tutor")
	rec := &recorder{}
	n := NewNegotiator(signaling.RoleTutor, pc, rec.send, zerolog.Nop())

	require.NoError(t, n.Resend(), "nothing to resend before an offer")
	assert.Empty(t, rec.sent)

	require.NoError(t, n.Offer())
	require.NoError(t, n.LocalCandidate(candidate("tutor-1")))
	require.NoError(t, n.Resend())
	assert.Equal(t, []string{"offer", "candidate:tutor-1", "offer", "candidate:tutor-1"}, rec.kinds())
	assert.Equal(t, "offer-from-tutor", rec.sent[2].SDP)

	require.NoError(t, n.Handle(&signaling.SignalPayload{Type: "answer", SDP: "answer-from-student"}))
	assert.True(t, n.RemoteApplied())
	assert.Len(t, rec.sent, 4, "an answer is not answered")

	require.NoError(t, n.Resend())
	assert.Len(t, rec.sent, 4, "no resend once answered")
}

func TestNegotiatorRejectedCandidateIsNotFatal(t *testing.T) {
	pc := newFakePeer("student")
	n := NewNegotiator(signaling.RoleStudent, pc, (&recorder{}).send, zerolog.Nop())

	require.NoError(t, n.Handle(&signaling.SignalPayload{Type: "offer", SDP: "offer-from-tutor"}))
	bad, good := candidate("bad"), candidate("tutor-1")
	require.NoError(t, n.Handle(&signaling.SignalPayload{Candidate: &bad}))
	require.NoError(t, n.Handle(&signaling.SignalPayload{Candidate: &good}))
	assert.Equal(t, []string{"candidate:tutor-1"}, pc.addedCandidates())
}

func TestNegotiatorErrors(t *testing.T) {
	t.Run("unknown description type", func(t *testing.T) {
		n := NewNegotiator(signaling.RoleStudent, newFakePeer("student"), (&recorder{}).send, zerolog.Nop())
		err := n.Handle(&signaling.SignalPayload{Type: "bogus", SDP: "v=0"})
		assert.ErrorIs(t, err, ErrNegotiation)
		assert.False(t, n.RemoteApplied())
	})

	t.Run("answer is applied without a reply", func(t *testing.T) {
		rec := &recorder{}
		n := NewNegotiator(signaling.RoleTutor, newFakePeer("tutor"), rec.send, zerolog.Nop())
		require.NoError(t, n.Handle(&signaling.SignalPayload{Type: "answer", SDP: "answer-from-student"}))
		assert.True(t, n.RemoteApplied())
		assert.Empty(t, rec.sent)
	})

	t.Run("relay gone", func(t *testing.T) {
		boom := errors.New("boom")
		n := NewNegotiator(signaling.RoleTutor, newFakePeer("tutor"), (&recorder{err: boom}).send, zerolog.Nop())
		err := n.Offer()
		assert.ErrorIs(t, err, ErrRelayLost)
		assert.ErrorIs(t, err, boom)
	})

	t.Run("empty signal", func(t *testing.T) {
		rec := &recorder{}
		n := NewNegotiator(signaling.RoleTutor, newFakePeer("tutor"), rec.send, zerolog.Nop())
		require.NoError(t, n.Handle(&signaling.SignalPayload{}))
		assert.Empty(t, rec.sent)
	})
}

func TestNegotiatorIgnoresDescriptionsForTheOtherRole(t *testing.T) {
	t.Run("tutor ignores an offer", func(t *testing.T) {
		pc := newFakePeer("tutor")
		rec := &recorder{}
		n := NewNegotiator(signaling.RoleTutor, pc, rec.send, zerolog.Nop())
		require.NoError(t, n.Offer())

		offer := &signaling.SignalPayload{Type: "offer", SDP: "offer-from-student"}
		assert.False(t, n.Accepts(offer))
		require.NoError(t, n.Handle(offer))
		assert.False(t, n.RemoteApplied())
		assert.Empty(t, pc.remoteSDP())
		assert.Equal(t, []string{"offer"}, rec.kinds(), "no answer is sent")

		require.NoError(t, n.Handle(&signaling.SignalPayload{Type: "answer", SDP: "answer-from-student"}))
		assert.Equal(t, "answer-from-student", pc.remoteSDP())
	})

	t.Run("student ignores an answer", func(t *testing.T) {
		pc := newFakePeer("student")
		n := NewNegotiator(signaling.RoleStudent, pc, (&recorder{}).send, zerolog.Nop())

		answer := &signaling.SignalPayload{Type: "answer", SDP: "answer-from-tutor"}
		assert.False(t, n.Accepts(answer))
		require.NoError(t, n.Handle(answer))
		assert.False(t, n.RemoteApplied())

		c := candidate("tutor-1")
		assert.True(t, n.Accepts(&signaling.SignalPayload{Candidate: &c}))
	})
}

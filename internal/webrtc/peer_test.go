package webrtc

import (
	"testing"

	pion "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pakachere/liveclass/internal/config"
)

func TestFactoryICEServers(t *testing.T) {
	tests := []struct {
		name    string
		client  config.Client
		servers int
		policy  pion.ICETransportPolicy
	}{
		{name: "no servers", client: config.Client{}, servers: 0, policy: pion.ICETransportPolicyAll},
		{name: "stun only", client: config.Client{STUNServer: "stun:stun.example.com:3478"}, servers: 1, policy: pion.ICETransportPolicyAll},
		{
			name:    "forced relay",
			client:  config.Client{STUNServer: "stun:stun.example.com:3478", TURNServer: "turn.example.com", ForceRelay: true},
			servers: 2,
			policy:  pion.ICETransportPolicyRelay,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := NewFactory(&config.Config{Client: tt.client})
			require.NoError(t, err)
			assert.Len(t, f.conf.ICEServers, tt.servers)
			assert.Equal(t, tt.policy, f.conf.ICETransportPolicy)
		})
	}
}

func TestFactoryPortRange(t *testing.T) {
	_, err := NewFactory(&config.Config{Client: config.Client{ICEPortMin: 50000, ICEPortMax: 50100}})
	require.NoError(t, err)

	_, err = NewFactory(&config.Config{Client: config.Client{ICEPortMin: 50100, ICEPortMax: 50000}})
	assert.Error(t, err)
}

func TestSendControlBeforeOpen(t *testing.T) {
	f, err := NewFactory(&config.Config{})
	require.NoError(t, err)
	p, err := f.NewPeer()
	require.NoError(t, err)
	defer p.Close()

	msg, err := NewMessage(MessageTypeHangup, HangupPayload{Reason: "bye"})
	require.NoError(t, err)
	assert.ErrorIs(t, p.SendControl(msg), ErrControlClosed)

	require.NoError(t, p.OpenControl())
	assert.ErrorIs(t, p.SendControl(msg), ErrControlClosed, "channel is not open until negotiated")
}

func TestControlMessageDecode(t *testing.T) {
	msg, err := NewMessage(MessageTypeHello, HelloPayload{DisplayName: "Ada", Role: "tutor", Version: "dev"})
	require.NoError(t, err)
	b, err := Encode(msg)
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	assert.Equal(t, MessageTypeHello, got.Type)
	var hello HelloPayload
	require.NoError(t, got.DecodePayload(&hello))
	assert.Equal(t, "Ada", hello.DisplayName)

	_, err = Decode([]byte{0xc1})
	assert.Error(t, err)
}

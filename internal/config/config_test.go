package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")

	cfg, err := Load(Options{Path: path})
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Relay.Addr)
	assert.Equal(t, 10*time.Minute, cfg.Relay.ReservationTTL)
	assert.Equal(t, 256, cfg.Relay.SendBuffer)
	assert.Equal(t, "localhost:8080", cfg.Client.Server)
	assert.Equal(t, 45*time.Second, cfg.Client.NegotiationTimeout)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadPrecedence(t *testing.T) {
	path := writeConfig(t, `
client:
  server: file.example:9000
  stun: stun:file.example:3478
  display_name: Ms. File
relay:
  require_reservation: true
`)
	t.Setenv("LIVECLASS_CLIENT_STUN", "stun:env.example:3478")

	cfg, err := Load(Options{Path: path, DisplayName: "Flag Tutor", Secure: true})
	require.NoError(t, err)

	assert.Equal(t, "file.example:9000", cfg.Client.Server)
	assert.Equal(t, []string{"stun:env.example:3478"}, cfg.GetSTUNServers())
	assert.Equal(t, "Flag Tutor", cfg.Client.DisplayName)
	assert.True(t, cfg.Relay.RequireReservation)
	assert.Equal(t, "wss://file.example:9000/ws", cfg.WebSocketURL())
	assert.Equal(t, "https://file.example:9000/live/r1", cfg.GetRoomLink("r1"))
}

func TestLoadRejectsRelayWithoutTURN(t *testing.T) {
	path := writeConfig(t, "client:\n  force_relay: true\n")

	_, err := Load(Options{Path: path})
	assert.Error(t, err)
}

func TestTURNServers(t *testing.T) {
	cfg := &Config{Client: Client{TURNServer: "turn.example", TURNUser: "u", TURNPass: "p"}}

	assert.Equal(t, []string{
		"turn:turn.example:3478?transport=udp",
		"turn:turn.example:3478?transport=tcp",
		"turns:turn.example:5349?transport=tcp",
	}, cfg.GetTURNServers())

	user, pass := cfg.GetTURNCredentials()
	assert.Equal(t, "u", user)
	assert.Equal(t, "p", pass)

	cfg.Client.TURNServer = ""
	assert.Nil(t, cfg.GetTURNServers())
}

func TestInsecureURLs(t *testing.T) {
	cfg := &Config{Client: Client{Server: "127.0.0.1:8080"}}
	assert.Equal(t, "ws://127.0.0.1:8080/ws", cfg.WebSocketURL())
	assert.Equal(t, "http://127.0.0.1:8080", cfg.APIURL())
}

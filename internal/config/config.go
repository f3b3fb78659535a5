package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/kkyr/fig"
)

// EnvPrefix is prepended to every environment override, e.g. LIVECLASS_CLIENT_SERVER.
const EnvPrefix = "LIVECLASS"

// FileName is the optional configuration file looked up in the search dirs.
const FileName = "liveclass.yaml"

// Config holds application configuration for both the relay and the call client.
type Config struct {
	Relay  Relay  `fig:"relay"`
	Client Client `fig:"client"`
	Log    Log    `fig:"log"`
}

// Relay configures the signaling relay process.
type Relay struct {
	// Addr is the listen address of the HTTP and websocket server.
	Addr string `fig:"addr" default:":8080"`

	// ReservationTTL bounds how long a room created over REST may stay empty.
	ReservationTTL time.Duration `fig:"reservation_ttl" default:"10m"`

	// RequireReservation rejects joins to room ids that were never created.
	RequireReservation bool `fig:"require_reservation"`

	// SendBuffer is the per-connection outbound queue length.
	SendBuffer int `fig:"send_buffer" default:"256"`

	// AllowedOrigins restricts websocket upgrades; empty allows any origin.
	AllowedOrigins []string `fig:"allowed_origins"`
}

// Client configures the tutor and student call client.
type Client struct {
	// Server is host[:port] of the relay.
	Server string `fig:"server" default:"localhost:8080"`

	// Secure switches to wss:// and https://.
	Secure bool `fig:"secure"`

	// ICE servers for WebRTC
	STUNServer string `fig:"stun" default:"stun:stun.l.google.com:19302"`
	TURNServer string `fig:"turn"`
	TURNUser   string `fig:"turn_user"`
	TURNPass   string `fig:"turn_pass"`
	ForceRelay bool   `fig:"force_relay"`

	// ICEPortMin and ICEPortMax pin the UDP port range used for host candidates.
	ICEPortMin uint16 `fig:"ice_port_min"`
	ICEPortMax uint16 `fig:"ice_port_max"`

	// NegotiationTimeout fails a call that does not connect in time; zero disables it.
	NegotiationTimeout time.Duration `fig:"negotiation_timeout" default:"45s"`

	DisplayName string `fig:"display_name"`

	// Video and Audio are pre-encoded IVF (VP8) and Ogg (Opus) files used as camera and microphone.
	Video string `fig:"video"`
	Audio string `fig:"audio"`

	// NoDNSFallback disables resolving the relay through public DNS when the system resolver fails.
	NoDNSFallback bool `fig:"no_dns_fallback"`
}

// Log configures logging.
type Log struct {
	Level string `fig:"level"`
}

// Options for loading config with CLI flag overrides
type Options struct {
	Path string

	Server     string
	Secure     bool
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool

	NegotiationTimeout time.Duration
	DisplayName        string
	Video              string
	Audio              string

	RelayAddr string
	LogLevel  string
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables (LIVECLASS_*)
// 3. The liveclass.yaml file, when one is found
// 4. Defaults from the struct tags - lowest priority
func Load(opts Options) (*Config, error) {
	var cfg Config
	if err := loadFile(&cfg, opts.Path); err != nil {
		return nil, err
	}
	cfg.apply(opts)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func loadFile(cfg *Config, path string) error {
	dirs := []string{filepath.Dir(path)}
	name := filepath.Base(path)
	if path == "" {
		name = FileName
		dirs = []string{".", "configs"}
		if home, err := os.UserHomeDir(); err == nil {
			dirs = append(dirs, filepath.Join(home, ".liveclass"))
		}
	}

	err := fig.Load(cfg, fig.File(name), fig.Dirs(dirs...), fig.UseEnv(EnvPrefix))
	if err == nil {
		return nil
	}
	if path == "" && errors.Is(err, fig.ErrFileNotFound) {
		return fig.Load(cfg, fig.IgnoreFile(), fig.UseEnv(EnvPrefix))
	}
	return fmt.Errorf("load config: %w", err)
}

func (c *Config) apply(o Options) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.Client.Server, o.Server)
	set(&c.Client.STUNServer, o.STUNServer)
	set(&c.Client.TURNServer, o.TURNServer)
	set(&c.Client.TURNUser, o.TURNUser)
	set(&c.Client.TURNPass, o.TURNPass)
	set(&c.Client.DisplayName, o.DisplayName)
	set(&c.Client.Video, o.Video)
	set(&c.Client.Audio, o.Audio)
	set(&c.Relay.Addr, o.RelayAddr)
	set(&c.Log.Level, o.LogLevel)

	if o.Secure {
		c.Client.Secure = true
	}
	if o.ForceRelay {
		c.Client.ForceRelay = true
	}
	if o.NegotiationTimeout != 0 {
		c.Client.NegotiationTimeout = o.NegotiationTimeout
	}
}

func (c *Config) validate() error {
	if c.Client.ForceRelay && c.Client.TURNServer == "" {
		return errors.New("cannot force relay mode without TURN server configured")
	}
	if c.Client.ICEPortMin > c.Client.ICEPortMax {
		return fmt.Errorf("invalid ICE port range %d-%d", c.Client.ICEPortMin, c.Client.ICEPortMax)
	}
	if c.Relay.SendBuffer <= 0 {
		return fmt.Errorf("relay send buffer must be positive, got %d", c.Relay.SendBuffer)
	}
	return nil
}

// WebSocketURL is the relay websocket endpoint.
func (c *Config) WebSocketURL() string {
	if c.Client.Secure {
		return fmt.Sprintf("wss://%s/ws", c.Client.Server)
	}
	return fmt.Sprintf("ws://%s/ws", c.Client.Server)
}

// APIURL is the base URL of the relay's REST endpoints.
func (c *Config) APIURL() string {
	if c.Client.Secure {
		return fmt.Sprintf("https://%s", c.Client.Server)
	}
	return fmt.Sprintf("http://%s", c.Client.Server)
}

// GetRoomLink returns the link a student can open to join a room.
func (c *Config) GetRoomLink(roomID string) string {
	return fmt.Sprintf("%s/live/%s", c.APIURL(), roomID)
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.Client.STUNServer == "" {
		return nil
	}
	return []string{c.Client.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.Client.TURNServer == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", c.Client.TURNServer),
		fmt.Sprintf("turn:%s:3478?transport=tcp", c.Client.TURNServer),
		fmt.Sprintf("turns:%s:5349?transport=tcp", c.Client.TURNServer),
	}
}

// GetTURNCredentials returns TURN username and password
func (c *Config) GetTURNCredentials() (string, string) {
	return c.Client.TURNUser, c.Client.TURNPass
}

package utils

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatSize(t *testing.T) {
	assert.Equal(t, "512 B", FormatSize(512))
	assert.Equal(t, "1.50 KB", FormatSize(1536))
	assert.Equal(t, "2.00 MB", FormatSize(2*1024*1024))
	assert.Equal(t, "1.00 GB", FormatSize(1024*1024*1024))
}

func TestFormatBitrate(t *testing.T) {
	assert.Equal(t, "0 kbit/s", FormatBitrate(1000, 0))
	assert.Equal(t, "8 kbit/s", FormatBitrate(1000, time.Second))
	assert.Equal(t, "2.00 Mbit/s", FormatBitrate(250_000, time.Second))
}

func TestFormatTimeDuration(t *testing.T) {
	assert.Equal(t, "42s", FormatTimeDuration(42*time.Second))
	assert.Equal(t, "3m 5s", FormatTimeDuration(3*time.Minute+5*time.Second))
	assert.Equal(t, "1h 0m 9s", FormatTimeDuration(time.Hour+9*time.Second))
}

func TestPluralAndTruncate(t *testing.T) {
	assert.Equal(t, "0 viewers", Plural(0, "viewer"))
	assert.Equal(t, "1 viewer", Plural(1, "viewer"))
	assert.Equal(t, "hello", TruncateString("hello", 5))
	assert.Equal(t, "hel...", TruncateString("hello world", 6))
	assert.Equal(t, "he", TruncateString("hello", 2))
}

func TestRelayHintFor(t *testing.T) {
	lan := Iface{Name: "eth0", Up: true, Addrs: []net.IP{net.ParseIP("192.168.1.10")}}
	lo := Iface{Name: "lo", Up: true, Loop: true, Addrs: []net.IP{net.ParseIP("127.0.0.1")}}

	_, ok := relayHintFor([]Iface{lo, lan})
	assert.False(t, ok)

	reason, ok := relayHintFor([]Iface{lan, {Name: "wg0", Up: true}})
	assert.True(t, ok)
	assert.Equal(t, "tunnel interface wg0", reason)

	_, ok = relayHintFor([]Iface{{Name: "tun0"}})
	assert.False(t, ok, "down interfaces are ignored")

	reason, ok = relayHintFor([]Iface{{Name: "eth1", Up: true, Addrs: []net.IP{net.ParseIP("100.72.3.4")}}})
	assert.True(t, ok)
	assert.Equal(t, "CGNAT address 100.72.3.4 on eth1", reason)
}

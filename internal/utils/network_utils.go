package utils

import (
	"net"
	"strings"
)

// cgnat is 100.64.0.0/10, used by carrier-grade NAT, Tailscale and Cloudflare WARP.
var cgnat = &net.IPNet{IP: net.IPv4(100, 64, 0, 0), Mask: net.CIDRMask(10, 32)}

var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp"}

// Iface is the part of a network interface RelayHint looks at.
type Iface struct {
	Name  string
	Up    bool
	Loop  bool
	Addrs []net.IP
}

// RelayHint reports whether media should go through TURN because the host
// sits behind a VPN tunnel or CGNAT, along with the reason.
func RelayHint() (string, bool) {
	interfaces, err := net.Interfaces()
	if err != nil {
		return "", false
	}

	ifaces := make([]Iface, 0, len(interfaces))
	for _, iface := range interfaces {
		info := Iface{
			Name: iface.Name,
			Up:   iface.Flags&net.FlagUp != 0,
			Loop: iface.Flags&net.FlagLoopback != 0,
		}
		if addrs, err := iface.Addrs(); err == nil {
			for _, addr := range addrs {
				switch v := addr.(type) {
				case *net.IPNet:
					info.Addrs = append(info.Addrs, v.IP)
				case *net.IPAddr:
					info.Addrs = append(info.Addrs, v.IP)
				}
			}
		}
		ifaces = append(ifaces, info)
	}
	return relayHintFor(ifaces)
}

func relayHintFor(ifaces []Iface) (string, bool) {
	for _, iface := range ifaces {
		if !iface.Up || iface.Loop {
			continue
		}

		name := strings.ToLower(iface.Name)
		for _, t := range tunnelNames {
			if strings.Contains(name, t) {
				return "tunnel interface " + iface.Name, true
			}
		}

		for _, ip := range iface.Addrs {
			if cgnat.Contains(ip) {
				return "CGNAT address " + ip.String() + " on " + iface.Name, true
			}
		}
	}
	return "", false
}

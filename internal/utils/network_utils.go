package utils

import (
	"net"
	"net/netip"
	"strings"
)

// carrierNAT is 100.64.0.0/10, used by CGNAT, Tailscale and Cloudflare WARP.
var carrierNAT = netip.MustParsePrefix("100.64.0.0/10")

var tunnelNames = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

// ShouldForceRelay reports whether this host looks like it sits behind a
// VPN tunnel or carrier-grade NAT, where direct peer connections rarely
// succeed and TURN should be used instead.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	for _, iface := range interfaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if isTunnelName(iface.Name) {
			return true
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			if inCarrierNAT(addr) {
				return true
			}
		}
	}
	return false
}

func isTunnelName(name string) bool {
	name = strings.ToLower(name)
	for _, prefix := range tunnelNames {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func inCarrierNAT(addr net.Addr) bool {
	var ip net.IP
	switch v := addr.(type) {
	case *net.IPNet:
		ip = v.IP
	case *net.IPAddr:
		ip = v.IP
	default:
		return false
	}

	a, ok := netip.AddrFromSlice(ip)
	return ok && carrierNAT.Contains(a.Unmap())
}

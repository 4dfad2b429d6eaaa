package peer

import (
	"net"
	"strings"
)

// cgnatBlock is 100.64.0.0/10, shared by carrier NATs, WARP and Tailscale.
var cgnatBlock = &net.IPNet{
	IP:   net.IPv4(100, 64, 0, 0),
	Mask: net.CIDRMask(10, 32),
}

// tunnelPrefixes are interface name fragments used by VPN software.
var tunnelPrefixes = []string{"tun", "tap", "wg", "ppp", "warp", "utun"}

// iface is the subset of a network interface the NAT heuristic needs.
type iface struct {
	Name  string
	Up    bool
	Loop  bool
	Addrs []net.IP
}

// BehindRestrictiveNAT reports whether this host looks like it sits behind a
// VPN tunnel or carrier-grade NAT, where direct peer paths usually fail.
func BehindRestrictiveNAT() bool {
	ifaces, err := localInterfaces()
	if err != nil {
		return false
	}
	return restrictiveNAT(ifaces)
}

func restrictiveNAT(ifaces []iface) bool {
	for _, ifc := range ifaces {
		if !ifc.Up || ifc.Loop {
			continue
		}

		name := strings.ToLower(ifc.Name)
		for _, prefix := range tunnelPrefixes {
			if strings.Contains(name, prefix) {
				return true
			}
		}

		for _, ip := range ifc.Addrs {
			if cgnatBlock.Contains(ip) {
				return true
			}
		}
	}
	return false
}

func localInterfaces() ([]iface, error) {
	raw, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	out := make([]iface, 0, len(raw))
	for _, r := range raw {
		ifc := iface{
			Name: r.Name,
			Up:   r.Flags&net.FlagUp != 0,
			Loop: r.Flags&net.FlagLoopback != 0,
		}
		addrs, err := r.Addrs()
		if err != nil {
			continue
		}
		for _, addr := range addrs {
			switch v := addr.(type) {
			case *net.IPNet:
				ifc.Addrs = append(ifc.Addrs, v.IP)
			case *net.IPAddr:
				ifc.Addrs = append(ifc.Addrs, v.IP)
			}
		}
		out = append(out, ifc)
	}
	return out, nil
}

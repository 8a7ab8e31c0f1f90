package screenstream

import (
	"fmt"
	"net"

	psnet "github.com/shirou/gopsutil/v3/net"
)

// localIPv4 returns the address a viewer on the LAN should use: the first
// up, non-loopback IPv4 interface address. When the machine has no network
// beyond loopback, the loopback address is still usable for local viewers
// and is returned instead.
func localIPv4() (string, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return "", fmt.Errorf("list interfaces: %w", err)
	}

	var loopback string
	for _, iface := range ifaces {
		up := false
		for _, flag := range iface.Flags {
			if flag == "up" {
				up = true
				break
			}
		}
		if !up {
			continue
		}

		for _, addr := range iface.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				ip = net.ParseIP(addr.Addr)
			}
			if ip == nil || ip.To4() == nil {
				continue
			}
			if ip.IsLoopback() {
				if loopback == "" {
					loopback = ip.String()
				}
				continue
			}
			return ip.String(), nil
		}
	}

	if loopback != "" {
		return loopback, nil
	}
	return "", ErrNoLocalAddress
}

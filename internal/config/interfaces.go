package config

import (
	"fmt"
	"net"

	psnet "github.com/shirou/gopsutil/net"
)

// InterfaceInfo describes one host interface and its addresses,
// for the -list-interfaces helper output.
type InterfaceInfo struct {
	Name  string
	Addrs []string
}

// DiscoverInterface resolves the per-family address map for a named
// interface from the host's interface table.
func DiscoverInterface(name string) (map[string]string, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}

	for _, iface := range ifaces {
		if iface.Name != name {
			continue
		}

		addrs := make(map[string]string)
		for _, addr := range iface.Addrs {
			ip, _, err := net.ParseCIDR(addr.Addr)
			if err != nil {
				// Some platforms report bare addresses without a prefix.
				ip = net.ParseIP(addr.Addr)
				if ip == nil {
					continue
				}
			}

			family := FamilyIPv4
			if ip.To4() == nil {
				family = FamilyIPv6
			}
			// Keep the first address per family.
			if _, ok := addrs[family]; !ok {
				addrs[family] = ip.String()
			}
		}

		if len(addrs) == 0 {
			return nil, fmt.Errorf("interface %q has no usable addresses", name)
		}
		return addrs, nil
	}

	return nil, fmt.Errorf("couldn't find the requested interface: %s", name)
}

// ListInterfaces returns every host interface with its addresses.
func ListInterfaces() ([]InterfaceInfo, error) {
	ifaces, err := psnet.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("listing interfaces: %w", err)
	}

	infos := make([]InterfaceInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		info := InterfaceInfo{Name: iface.Name}
		for _, addr := range iface.Addrs {
			info.Addrs = append(info.Addrs, addr.Addr)
		}
		infos = append(infos, info)
	}

	return infos, nil
}

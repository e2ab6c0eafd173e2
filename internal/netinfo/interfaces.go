package netinfo

import (
	"fmt"
	"math/bits"
	"net"
	"runtime"
	"strings"
)

// Address is one (IP, netmask) pair bound to an interface.
type Address struct {
	IP        string `json:"ip"`
	Netmask   string `json:"netmask"`
	PrefixLen int    `json:"prefix_len"`
	IPv6      bool   `json:"ipv6,omitempty"`
}

// NetworkInterfaceInfo is an immutable snapshot of one local interface.
type NetworkInterfaceInfo struct {
	Name       string    `json:"name"`
	Addresses  []Address `json:"addresses"`
	MACAddress string    `json:"mac_address,omitempty"`
	IPv4       string    `json:"ipv4,omitempty"`
	IPv6       string    `json:"ipv6,omitempty"`
	CIDR       string    `json:"cidr,omitempty"`
	Network    string    `json:"network,omitempty"`
	Broadcast  string    `json:"broadcast,omitempty"`
	PrefixLen  int       `json:"prefix_len,omitempty"`
	Up         bool      `json:"up"`
	Loopback   bool      `json:"loopback,omitempty"`
	IsPrimary  bool      `json:"is_primary"`
}

// Scannable reports whether the interface can anchor a LAN scan: it is up,
// not loopback, has IPv4 and a non-zero hardware address.
func (n NetworkInterfaceInfo) Scannable() bool {
	return n.Up && !n.Loopback && n.IPv4 != "" && n.MACAddress != "" && n.MACAddress != "00:00:00:00:00:00"
}

// ListInterfaces enumerates the OS interfaces. On failure it returns an empty
// list together with the error so callers can continue in degraded mode.
func ListInterfaces() ([]NetworkInterfaceInfo, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return []NetworkInterfaceInfo{}, fmt.Errorf("list interfaces: %w", err)
	}

	infos := make([]NetworkInterfaceInfo, 0, len(ifaces))
	for _, iface := range ifaces {
		addrs, err := iface.Addrs()
		if err != nil {
			addrs = nil
		}
		info, ok := describeInterface(iface.Name, iface.Flags, iface.HardwareAddr, addrs)
		if !ok {
			continue
		}
		infos = append(infos, info)
	}
	MarkPrimary(infos, runtime.GOOS, "")
	return infos, nil
}

func describeInterface(name string, flags net.Flags, hw net.HardwareAddr, addrs []net.Addr) (NetworkInterfaceInfo, bool) {
	info := NetworkInterfaceInfo{
		Name:       name,
		MACAddress: NormaliseMAC(hw.String()),
		Up:         flags&net.FlagUp != 0,
		Loopback:   flags&net.FlagLoopback != 0,
	}
	if len(addrs) == 0 && info.MACAddress == "" {
		return info, false
	}

	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP == nil {
			continue
		}
		if v4 := ipNet.IP.To4(); v4 != nil {
			mask := ipNet.Mask
			if len(mask) == net.IPv6len {
				mask = mask[12:]
			}
			network, broadcast, prefix := ComputeIPv4(v4, mask)
			info.Addresses = append(info.Addresses, Address{IP: v4.String(), Netmask: net.IP(mask).String(), PrefixLen: prefix})
			if info.IPv4 == "" {
				info.IPv4 = v4.String()
				info.Network = network.String()
				info.Broadcast = broadcast.String()
				info.PrefixLen = prefix
				info.CIDR = fmt.Sprintf("%s/%d", v4, prefix)
			}
			continue
		}
		// Only the first non-link-local IPv6 address is kept.
		if ipNet.IP.IsLinkLocalUnicast() || info.IPv6 != "" {
			continue
		}
		info.IPv6 = ipNet.IP.String()
		info.Addresses = append(info.Addresses, Address{IP: info.IPv6, Netmask: net.IP(ipNet.Mask).String(), PrefixLen: maskBits(ipNet.Mask), IPv6: true})
	}
	return info, true
}

// ComputeIPv4 derives the network address, broadcast address and prefix
// length of ip under mask. The prefix length is the population count of the
// mask bits.
func ComputeIPv4(ip net.IP, mask net.IPMask) (network, broadcast net.IP, prefix int) {
	v4 := ip.To4()
	if v4 == nil || len(mask) != net.IPv4len {
		return nil, nil, 0
	}
	network = make(net.IP, net.IPv4len)
	broadcast = make(net.IP, net.IPv4len)
	for i := 0; i < net.IPv4len; i++ {
		network[i] = v4[i] & mask[i]
		broadcast[i] = network[i] | ^mask[i]
	}
	return network, broadcast, maskBits(mask)
}

func maskBits(mask net.IPMask) int {
	total := 0
	for _, b := range mask {
		total += bits.OnesCount8(b)
	}
	return total
}

// MarkPrimary flags exactly one interface as primary. When gatewayIP is set,
// the interface whose IPv4 network contains it wins. Otherwise the
// conventional adapter name for goos is used, and failing that the first
// scannable interface.
func MarkPrimary(infos []NetworkInterfaceInfo, goos, gatewayIP string) {
	for i := range infos {
		infos[i].IsPrimary = false
	}
	pick := -1
	if gw := net.ParseIP(gatewayIP); gw != nil {
		for i, info := range infos {
			if info.CIDR == "" {
				continue
			}
			if _, ipNet, err := net.ParseCIDR(info.CIDR); err == nil && ipNet.Contains(gw) {
				pick = i
				break
			}
		}
	}
	if pick < 0 {
		for i, info := range infos {
			if info.IPv4 != "" && isConventionalPrimary(goos, info.Name) {
				pick = i
				break
			}
		}
	}
	if pick < 0 {
		for i, info := range infos {
			if info.Scannable() {
				pick = i
				break
			}
		}
	}
	if pick >= 0 {
		infos[pick].IsPrimary = true
	}
}

// Primary returns the interface flagged as primary.
func Primary(infos []NetworkInterfaceInfo) (NetworkInterfaceInfo, bool) {
	for _, info := range infos {
		if info.IsPrimary {
			return info, true
		}
	}
	return NetworkInterfaceInfo{}, false
}

func isConventionalPrimary(goos, name string) bool {
	switch goos {
	case "darwin":
		return name == "en0"
	case "windows":
		return strings.EqualFold(name, "Ethernet") || strings.EqualFold(name, "Wi-Fi")
	default:
		return name == "eth0" || name == "wlan0" || strings.HasPrefix(name, "enp") || strings.HasPrefix(name, "wlp")
	}
}

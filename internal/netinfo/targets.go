package netinfo

import (
	"encoding/binary"
	"fmt"
	"net"
)

const (
	// MaxTargets caps explicit subnet overrides.
	MaxTargets = 4096
	// widestAutoPrefix is the largest interface subnet scanned as-is.
	widestAutoPrefix = 22
)

// ScopeFor returns the CIDR to scan for an interface. Interfaces on very wide
// subnets are narrowed to the /24 around their own address.
func ScopeFor(info NetworkInterfaceInfo) (string, error) {
	if info.IPv4 == "" || info.PrefixLen == 0 {
		return "", fmt.Errorf("interface %s has no IPv4 subnet", info.Name)
	}
	if info.PrefixLen < widestAutoPrefix {
		ip := net.ParseIP(info.IPv4).To4()
		return fmt.Sprintf("%s/24", ip.Mask(net.CIDRMask(24, 32))), nil
	}
	return fmt.Sprintf("%s/%d", info.Network, info.PrefixLen), nil
}

// Targets expands subnet (a CIDR or a single IPv4 address) into host
// addresses, skipping the network and broadcast addresses where they exist
// and any address listed in exclude.
func Targets(subnet string, exclude ...string) ([]string, error) {
	skip := make(map[string]struct{}, len(exclude))
	for _, ip := range exclude {
		skip[ip] = struct{}{}
	}

	if ip := net.ParseIP(subnet); ip != nil {
		ipv4 := ip.To4()
		if ipv4 == nil {
			return nil, fmt.Errorf("only IPv4 addresses are supported: %s", subnet)
		}
		if _, excluded := skip[ipv4.String()]; excluded {
			return nil, nil
		}
		return []string{ipv4.String()}, nil
	}

	_, ipNet, err := net.ParseCIDR(subnet)
	if err != nil {
		return nil, fmt.Errorf("invalid subnet: %w", err)
	}
	base := ipNet.IP.To4()
	if base == nil {
		return nil, fmt.Errorf("only IPv4 CIDR ranges are supported: %s", subnet)
	}
	ones, _ := ipNet.Mask.Size()
	size := uint64(1) << uint(32-ones)
	first, last := uint64(0), size-1
	if ones <= 30 {
		first, last = 1, size-2
	}
	if last-first+1 > MaxTargets {
		return nil, fmt.Errorf("subnet %s has more than %d hosts", subnet, MaxTargets)
	}

	start := uint64(binary.BigEndian.Uint32(base))
	targets := make([]string, 0, last-first+1)
	for offset := first; offset <= last; offset++ {
		current := make(net.IP, net.IPv4len)
		binary.BigEndian.PutUint32(current, uint32(start+offset))
		host := current.String()
		if _, excluded := skip[host]; excluded {
			continue
		}
		targets = append(targets, host)
	}
	return targets, nil
}

// InScope reports whether ip falls inside subnet.
func InScope(subnet, ip string) bool {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if single := net.ParseIP(subnet); single != nil {
		return single.Equal(parsed)
	}
	_, ipNet, err := net.ParseCIDR(subnet)
	if err != nil {
		return false
	}
	return ipNet.Contains(parsed)
}

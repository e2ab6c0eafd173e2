package scan

import (
	"bytes"
	"net"
	"sort"
	"time"

	"github.com/google/uuid"

	"lanscan/internal/netinfo"
	"lanscan/internal/probe"
)

// Name precedence when protocols disagree about the same device.
const (
	rankNone       = 0
	rankReverseDNS = 10
	rankSMB        = 20
	rankMDNS       = 30
	rankHTTP       = 40
	rankUPnP       = 50
	rankVendor     = 60
)

func nameRank(p probe.Protocol) int {
	switch {
	case p.IsVendor(), p == probe.ProtocolAirPlay:
		return rankVendor
	case p == probe.ProtocolUPnP:
		return rankUPnP
	case p == probe.ProtocolHTTP:
		return rankHTTP
	case p == probe.ProtocolMDNS:
		return rankMDNS
	case p == probe.ProtocolSMB:
		return rankSMB
	case p == probe.ProtocolReverseDNS:
		return rankReverseDNS
	default:
		return rankNone
	}
}

// Aggregator folds probe results into one record per physical device. The
// fold is commutative and idempotent: the output depends only on the set of
// results, never on their order or multiplicity.
type Aggregator struct {
	GatewayIP    string
	Manufacturer func(mac string) string
}

// Aggregate merges results with default settings.
func Aggregate(results []ProbeResult) []DiscoveredDevice {
	return Aggregator{}.Aggregate(results)
}

func (a Aggregator) Aggregate(results []ProbeResult) []DiscoveredDevice {
	macByIP := make(map[string]string)
	for _, r := range results {
		mac := netinfo.NormaliseMAC(r.MAC)
		if r.IP == "" || !netinfo.UsableMAC(mac) {
			continue
		}
		if current, ok := macByIP[r.IP]; !ok || mac < current {
			macByIP[r.IP] = mac
		}
	}

	builders := make(map[string]*deviceBuilder)
	for _, r := range results {
		mac := netinfo.NormaliseMAC(r.MAC)
		if !netinfo.UsableMAC(mac) {
			mac = macByIP[r.IP]
		}
		var key string
		switch {
		case mac != "":
			key = "mac:" + mac
		case r.IP != "":
			key = "ip:" + r.IP
		default:
			continue
		}
		b, ok := builders[key]
		if !ok {
			b = newDeviceBuilder(key, mac)
			builders[key] = b
		}
		b.add(r)
	}

	devices := make([]DiscoveredDevice, 0, len(builders))
	for _, b := range builders {
		devices = append(devices, a.finish(b))
	}
	sort.Slice(devices, func(i, j int) bool {
		return lessIP(devices[i].IP, devices[j].IP)
	})
	return devices
}

type candidate struct {
	rank  int
	value string
}

// better orders candidates by rank, then lexicographically, so the winner
// does not depend on arrival order.
func (c candidate) better(other candidate) bool {
	if c.rank != other.rank {
		return c.rank > other.rank
	}
	return c.value < other.value
}

type deviceBuilder struct {
	key          string
	mac          string
	addresses    map[string]struct{}
	services     map[string]struct{}
	ports        map[int]struct{}
	sources      map[string]struct{}
	name         candidate
	hostname     candidate
	manufacturer candidate
	model        candidate
	vendor       bool
	lastSeen     time.Time
}

func newDeviceBuilder(key, mac string) *deviceBuilder {
	return &deviceBuilder{
		key:       key,
		mac:       mac,
		addresses: make(map[string]struct{}),
		services:  make(map[string]struct{}),
		ports:     make(map[int]struct{}),
		sources:   make(map[string]struct{}),
	}
}

func offer(current *candidate, next candidate) {
	if next.value == "" {
		return
	}
	if current.value == "" || next.better(*current) {
		*current = next
	}
}

func (b *deviceBuilder) add(r ProbeResult) {
	rank := nameRank(r.Protocol)
	if r.IP != "" {
		b.addresses[r.IP] = struct{}{}
	}
	for _, s := range r.Services {
		if s != "" {
			b.services[s] = struct{}{}
		}
	}
	for _, p := range r.Ports {
		if p > 0 {
			b.ports[p] = struct{}{}
		}
	}
	if r.Protocol != "" {
		b.sources[string(r.Protocol)] = struct{}{}
	}
	if rank > rankNone {
		offer(&b.name, candidate{rank, r.Name})
	}
	offer(&b.hostname, candidate{rank, r.Hostname})
	offer(&b.manufacturer, candidate{rank, r.Metadata["manufacturer"]})
	offer(&b.model, candidate{rank, r.Metadata["model"]})
	if r.Vendor && r.Protocol.IsVendor() {
		b.vendor = true
	}
	if r.SeenAt.After(b.lastSeen) {
		b.lastSeen = r.SeenAt
	}
}

func (a Aggregator) finish(b *deviceBuilder) DiscoveredDevice {
	addresses := make([]string, 0, len(b.addresses))
	for ip := range b.addresses {
		addresses = append(addresses, ip)
	}
	sort.Slice(addresses, func(i, j int) bool { return lessIP(addresses[i], addresses[j]) })

	device := DiscoveredDevice{
		ID:           uuid.NewSHA1(uuid.NameSpaceURL, []byte("lanscan:"+b.key)).String(),
		MACAddress:   b.mac,
		Name:         b.name.value,
		Hostname:     b.hostname.value,
		Services:     sortedKeys(b.services),
		Sources:      sortedKeys(b.sources),
		Manufacturer: b.manufacturer.value,
		Model:        b.model.value,
		LastSeen:     b.lastSeen,
	}
	if len(addresses) > 0 {
		device.IP = addresses[0]
	}
	if len(addresses) > 1 {
		device.Addresses = addresses
	}
	for p := range b.ports {
		device.Ports = append(device.Ports, p)
	}
	sort.Ints(device.Ports)

	if device.Manufacturer == "" && device.MACAddress != "" {
		lookup := a.Manufacturer
		if lookup == nil {
			lookup = probe.Manufacturer
		}
		device.Manufacturer = lookup(device.MACAddress)
	}
	if a.GatewayIP != "" {
		for _, ip := range addresses {
			if ip == a.GatewayIP {
				device.IsGateway = true
			}
		}
	}
	device.IsIoTDevice = b.vendor || hasIoTService(device.Services)
	device.DeviceType = classifyDevice(device)
	return device
}

func sortedKeys(set map[string]struct{}) []string {
	if len(set) == 0 {
		return nil
	}
	out := make([]string, 0, len(set))
	for key := range set {
		out = append(out, key)
	}
	sort.Strings(out)
	return out
}

// lessIP orders IPv4 before IPv6 and numerically within a family.
func lessIP(a, b string) bool {
	ipA, ipB := net.ParseIP(a), net.ParseIP(b)
	if ipA == nil || ipB == nil {
		return a < b
	}
	v4A, v4B := ipA.To4(), ipB.To4()
	switch {
	case v4A != nil && v4B == nil:
		return true
	case v4A == nil && v4B != nil:
		return false
	case v4A != nil:
		return bytes.Compare(v4A, v4B) < 0
	default:
		return bytes.Compare(ipA.To16(), ipB.To16()) < 0
	}
}

package scan

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanscan/internal/probe"
)

func fixedManufacturer(mac string) string { return "Acme" }

func sampleResults() []ProbeResult {
	seen := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return []ProbeResult{
		{Protocol: probe.ProtocolKasa, IP: "192.168.1.20", MAC: "aa-bb-cc-dd-ee-ff", Name: "Kasa: Plug01", Ports: []int{9999}, Vendor: true, SeenAt: seen},
		{Protocol: probe.ProtocolMDNS, IP: "192.168.1.20", MAC: "AA:BB:CC:DD:EE:FF", Name: "plug01.local", Hostname: "plug01.local", Services: []string{"_hap._tcp"}, SeenAt: seen.Add(time.Second)},
		{Protocol: probe.ProtocolReverseDNS, IP: "192.168.1.30", Name: "nas.lan", Hostname: "nas.lan", SeenAt: seen},
		{Protocol: probe.ProtocolHTTP, IP: "192.168.1.30", Name: "Synology DiskStation", Ports: []int{80}, SeenAt: seen},
		{Protocol: probe.ProtocolARP, IP: "192.168.1.30", MAC: "00:11:32:AA:BB:CC", SeenAt: seen},
		{Protocol: probe.ProtocolSMB, IP: "192.168.1.40", Name: "DESKTOP-01", Hostname: "DESKTOP-01", SeenAt: seen},
		{Protocol: probe.ProtocolPing, IP: "192.168.1.1", SeenAt: seen},
	}
}

func TestAggregateMergesByMAC(t *testing.T) {
	devices := Aggregator{Manufacturer: fixedManufacturer}.Aggregate(sampleResults())
	require.Len(t, devices, 4)

	plug := devices[1]
	assert.Equal(t, "192.168.1.20", plug.IP)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", plug.MACAddress)
	assert.Equal(t, "Kasa: Plug01", plug.Name)
	assert.Equal(t, []int{9999}, plug.Ports)
	assert.Equal(t, []string{"_hap._tcp"}, plug.Services)
	assert.Equal(t, []string{"kasa", "mdns"}, plug.Sources)
	assert.True(t, plug.IsIoTDevice)
	assert.Equal(t, "smart_plug", plug.DeviceType)
	assert.Equal(t, "Acme", plug.Manufacturer)
	assert.Equal(t, time.Date(2024, 5, 1, 12, 0, 1, 0, time.UTC), plug.LastSeen)
}

func TestAggregateAttachesIPOnlyResultsToMAC(t *testing.T) {
	devices := Aggregator{Manufacturer: fixedManufacturer}.Aggregate(sampleResults())
	require.Len(t, devices, 4)

	nas := devices[2]
	assert.Equal(t, "192.168.1.30", nas.IP)
	assert.Equal(t, "00:11:32:AA:BB:CC", nas.MACAddress)
	assert.Equal(t, "Synology DiskStation", nas.Name)
	assert.Equal(t, "nas.lan", nas.Hostname)
	assert.Equal(t, []string{"arp", "http", "reverse_dns"}, nas.Sources)
	assert.False(t, nas.IsIoTDevice)
}

func TestAggregateKeepsMACLessDevices(t *testing.T) {
	devices := Aggregate(sampleResults())
	require.Len(t, devices, 4)

	assert.Equal(t, "192.168.1.1", devices[0].IP)
	assert.Empty(t, devices[0].Name)
	assert.Equal(t, "192.168.1.1", devices[0].DisplayName())

	desktop := devices[3]
	assert.Equal(t, "DESKTOP-01", desktop.Name)
	assert.Empty(t, desktop.MACAddress)
	assert.Empty(t, desktop.Manufacturer)
	assert.Equal(t, "computer", desktop.DeviceType)
}

func TestAggregateIsOrderIndependent(t *testing.T) {
	base := sampleResults()
	want := Aggregator{Manufacturer: fixedManufacturer}.Aggregate(base)

	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 25; i++ {
		shuffled := append([]ProbeResult(nil), base...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got := Aggregator{Manufacturer: fixedManufacturer}.Aggregate(shuffled)
		require.Equal(t, want, got, "permutation %d", i)
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	base := sampleResults()
	doubled := append(append([]ProbeResult(nil), base...), base...)

	agg := Aggregator{Manufacturer: fixedManufacturer}
	assert.Equal(t, agg.Aggregate(base), agg.Aggregate(doubled))
}

func TestAggregateNamePriority(t *testing.T) {
	results := []ProbeResult{
		{Protocol: probe.ProtocolMDNS, IP: "10.0.0.7", MAC: "11:22:33:44:55:66", Name: "lamp1.local"},
		{Protocol: probe.ProtocolHue, IP: "10.0.0.7", MAC: "11:22:33:44:55:66", Name: "Hue: Lamp1", Vendor: true},
	}
	devices := Aggregate(results)
	require.Len(t, devices, 1)
	assert.Equal(t, "Hue: Lamp1", devices[0].Name)
	assert.Equal(t, "smart_light", devices[0].DeviceType)
	assert.True(t, devices[0].IsIoTDevice)
}

func TestAggregateTiesPickSmallestName(t *testing.T) {
	results := []ProbeResult{
		{Protocol: probe.ProtocolHTTP, IP: "10.0.0.8", Name: "Zeta Router"},
		{Protocol: probe.ProtocolHTTP, IP: "10.0.0.8", Name: "Alpha Router"},
	}
	devices := Aggregate(results)
	require.Len(t, devices, 1)
	assert.Equal(t, "Alpha Router", devices[0].Name)
}

func TestAggregateAirPlayIsNotIoT(t *testing.T) {
	results := []ProbeResult{
		{Protocol: probe.ProtocolAirPlay, IP: "10.0.0.9", Name: "Living Room TV", Metadata: map[string]string{"model": "AppleTV6,2"}, Vendor: true},
	}
	devices := Aggregate(results)
	require.Len(t, devices, 1)
	assert.False(t, devices[0].IsIoTDevice)
	assert.Equal(t, "AppleTV6,2", devices[0].Model)
}

func TestAggregateMarksGatewayAndStableID(t *testing.T) {
	results := []ProbeResult{{Protocol: probe.ProtocolPing, IP: "192.168.1.1"}}
	first := Aggregator{GatewayIP: "192.168.1.1"}.Aggregate(results)
	second := Aggregator{GatewayIP: "192.168.1.1"}.Aggregate(results)
	require.Len(t, first, 1)
	assert.True(t, first[0].IsGateway)
	assert.Equal(t, "router", first[0].DeviceType)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.NotEmpty(t, first[0].ID)
}

func TestAggregateIgnoresUnusableMAC(t *testing.T) {
	results := []ProbeResult{
		{Protocol: probe.ProtocolARP, IP: "10.0.0.3", MAC: "00:00:00:00:00:00"},
		{Protocol: probe.ProtocolARP, IP: "10.0.0.4", MAC: "ff:ff:ff:ff:ff:ff"},
	}
	devices := Aggregate(results)
	require.Len(t, devices, 2)
	for _, d := range devices {
		assert.Empty(t, d.MACAddress)
	}
}

func TestAggregateEmpty(t *testing.T) {
	assert.Empty(t, Aggregate(nil))
}

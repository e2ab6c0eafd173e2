package scan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyDevice(t *testing.T) {
	cases := []struct {
		name   string
		device DiscoveredDevice
		want   string
	}{
		{"gateway wins", DiscoveredDevice{IsGateway: true, Sources: []string{"kasa"}}, "router"},
		{"kasa", DiscoveredDevice{Sources: []string{"kasa", "mdns"}}, "smart_plug"},
		{"bulb", DiscoveredDevice{Sources: []string{"smart_bulb"}}, "smart_light"},
		{"udp bulb", DiscoveredDevice{Sources: []string{"udp_bulb"}}, "smart_light"},
		{"tuya", DiscoveredDevice{Sources: []string{"tuya"}}, "smart_home"},
		{"phone by name", DiscoveredDevice{Name: "Alice's iPhone"}, "phone"},
		{"printer by service", DiscoveredDevice{Services: []string{"_ipp._tcp"}}, "printer"},
		{"cast", DiscoveredDevice{Services: []string{"_googlecast._tcp"}}, "media_player"},
		{"smb only", DiscoveredDevice{Sources: []string{"smb"}}, "computer"},
		{"nothing", DiscoveredDevice{IP: "10.0.0.2"}, "unknown"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classifyDevice(tc.device))
		})
	}
}

func TestIsIoTService(t *testing.T) {
	assert.True(t, IsIoTService("_HAP._tcp"))
	assert.False(t, IsIoTService("_ssh._tcp"))
}

package scan

import (
	"strings"

	"lanscan/internal/probe"
)

var iotServices = map[string]bool{
	"_hap._tcp":             true,
	"_homekit._tcp":         true,
	"_googlecast._tcp":      true,
	"_hue._tcp":             true,
	"_matter._tcp":          true,
	"_miio._udp":            true,
	"_esphomelib._tcp":      true,
	"_sonos._tcp":           true,
	"_spotify-connect._tcp": true,
	"_airplay._tcp":         true,
}

// IsIoTService reports whether an mDNS service type is typical of consumer
// smart devices.
func IsIoTService(service string) bool {
	return iotServices[strings.ToLower(service)]
}

func hasIoTService(services []string) bool {
	for _, s := range services {
		if IsIoTService(s) {
			return true
		}
	}
	return false
}

type serviceClass struct {
	services   []string
	deviceType string
}

var serviceClasses = []serviceClass{
	{[]string{"_ipp._tcp", "_printer._tcp", "_pdl-datastream._tcp"}, "printer"},
	{[]string{"_axis-video._tcp"}, "camera"},
	{[]string{"_googlecast._tcp", "_airplay._tcp", "_raop._tcp", "_spotify-connect._tcp", "_sonos._tcp"}, "media_player"},
	{[]string{"_hap._tcp", "_homekit._tcp", "_matter._tcp", "_hue._tcp", "_miio._udp", "_esphomelib._tcp"}, "smart_home"},
	{[]string{"_workstation._tcp", "_smb._tcp", "_afpovertcp._tcp", "_ssh._tcp", "_sftp-ssh._tcp"}, "computer"},
}

var nameClasses = []struct {
	tokens     []string
	deviceType string
}{
	{[]string{"iphone", "android", "galaxy", "pixel"}, "phone"},
	{[]string{"printer", "laserjet", "officejet"}, "printer"},
	{[]string{"camera", "doorbell"}, "camera"},
	{[]string{"macbook", "imac", "desktop-", "laptop"}, "computer"},
}

// classifyDevice guesses a coarse device type from merged facts only.
func classifyDevice(d DiscoveredDevice) string {
	if d.IsGateway {
		return "router"
	}
	sources := make(map[string]bool, len(d.Sources))
	for _, s := range d.Sources {
		sources[s] = true
	}
	switch {
	case sources[string(probe.ProtocolKasa)]:
		return "smart_plug"
	case sources[string(probe.ProtocolHue)], sources[string(probe.ProtocolBulb)], sources[string(probe.ProtocolUDPBulb)]:
		return "smart_light"
	case sources[string(probe.ProtocolTuya)]:
		return "smart_home"
	}

	label := strings.ToLower(d.Name + " " + d.Hostname)
	for _, class := range nameClasses {
		for _, token := range class.tokens {
			if strings.Contains(label, token) {
				return class.deviceType
			}
		}
	}

	has := make(map[string]bool, len(d.Services))
	for _, s := range d.Services {
		has[s] = true
	}
	for _, class := range serviceClasses {
		for _, s := range class.services {
			if has[s] {
				return class.deviceType
			}
		}
	}
	if sources[string(probe.ProtocolSMB)] {
		return "computer"
	}
	return "unknown"
}

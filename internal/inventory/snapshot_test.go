package inventory

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanscan/internal/netinfo"
	"lanscan/internal/scan"
)

func sampleReport() scan.Report {
	started := time.Date(2024, 3, 9, 10, 0, 0, 0, time.UTC)
	return scan.Report{
		Subnet:  "192.168.1.0/24",
		Gateway: &netinfo.DefaultGateway{IP: "192.168.1.1", Interface: "eth0"},
		Interfaces: []netinfo.NetworkInterfaceInfo{
			{Name: "eth0", IPv4: "192.168.1.50", CIDR: "192.168.1.50/24", PrefixLen: 24, Up: true, IsPrimary: true},
		},
		Devices: []scan.DiscoveredDevice{
			{ID: "a", IP: "192.168.1.1", DeviceType: "router", IsGateway: true, LastSeen: started},
			{ID: "b", IP: "192.168.1.20", MACAddress: "AA:BB:CC:DD:EE:FF", Name: "Kasa: Plug01", DeviceType: "smart_plug", Ports: []int{9999}, IsIoTDevice: true, LastSeen: started},
		},
		Warnings: []*scan.DiscoveryError{
			{Kind: scan.ConfigFileMissing, Op: "load overrides", Target: "devices.json", Err: errors.New("file not found")},
		},
		Progress: scan.Progress{State: scan.StateComplete, Targets: 253, Dispatched: 2277, Completed: 2277},
		Started:  started,
		Finished: started.Add(12 * time.Second),
	}
}

func TestSaveLoad(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Save(&buf, sampleReport()))
	assert.Contains(t, buf.String(), `"version": 1`)
	assert.Contains(t, buf.String(), `"state": "complete"`)
	assert.Contains(t, buf.String(), `"kind": "ConfigFileMissing"`)

	report, generated, err := Load(&buf)
	require.NoError(t, err)
	assert.False(t, generated.IsZero())

	want := sampleReport()
	assert.Equal(t, want.Subnet, report.Subnet)
	assert.Equal(t, want.Gateway, report.Gateway)
	assert.Equal(t, want.Devices, report.Devices)
	assert.Equal(t, want.Progress, report.Progress)
	assert.True(t, want.Finished.Equal(report.Finished))
	require.Len(t, report.Interfaces, 1)
	assert.True(t, report.Interfaces[0].IsPrimary)

	require.Len(t, report.Warnings, 1)
	assert.Equal(t, scan.ConfigFileMissing, report.Warnings[0].Kind)
	assert.EqualError(t, report.Warnings[0], "ConfigFileMissing: load overrides devices.json: file not found")
}

func TestLoadRejectsUnknownVersion(t *testing.T) {
	_, _, err := Load(strings.NewReader(`{"version": 7, "snapshot": {}}`))
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestLoadRejectsGarbage(t *testing.T) {
	_, _, err := Load(strings.NewReader(`not json`))
	assert.Error(t, err)

	_, _, err = Load(strings.NewReader(`{"version": 1, "snapshot": {"progress": {"state": "exploding"}}}`))
	assert.Error(t, err)
}

package netview

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lanscan/internal/netinfo"
)

type fakeScanner struct {
	networks []WifiNetwork
	err      error
}

func (f fakeScanner) Scan(context.Context) ([]WifiNetwork, error) { return f.networks, f.err }

func testInterfaces() []netinfo.NetworkInterfaceInfo {
	return []netinfo.NetworkInterfaceInfo{
		{Name: "wlan0", MACAddress: "AA:00:00:00:00:02", IPv4: "192.168.1.50", CIDR: "192.168.1.50/24", Network: "192.168.1.0", Broadcast: "192.168.1.255", PrefixLen: 24, Up: true, IsPrimary: true},
		{Name: "docker0", MACAddress: "02:42:00:00:00:01", IPv4: "172.17.0.1", CIDR: "172.17.0.1/16", PrefixLen: 16, Up: true},
		{Name: "eth0", MACAddress: "AA:00:00:00:00:01", IPv4: "10.0.0.2", CIDR: "10.0.0.2/24", PrefixLen: 24, Up: true},
		{Name: "lo", IPv4: "127.0.0.1", Up: true, Loopback: true},
		{Name: "eth1", MACAddress: "AA:00:00:00:00:03", Up: false},
	}
}

func TestBuildConnectedAndHotspots(t *testing.T) {
	scanner := fakeScanner{networks: []WifiNetwork{
		{SSID: "HomeNet", BSSID: "11:11:11:11:11:11", Channel: 6, Signal: 80, Security: "WPA2", InUse: true},
		{SSID: "HomeNet", BSSID: "11:11:11:11:11:12", Channel: 36, Signal: 60, Security: "WPA2"},
		{SSID: "Cafe", BSSID: "22:22:22:22:22:22", Channel: 1, Signal: 40, Security: ""},
		{SSID: "Neighbour", BSSID: "33:33:33:33:33:33", Channel: 11, Signal: 55, Security: "WPA3"},
		{SSID: "Neighbour", BSSID: "33:33:33:33:33:33", Channel: 11, Signal: 20, Security: "WPA3"},
	}}

	items, err := Build(context.Background(), testInterfaces(), "wlan0", scanner)
	require.NoError(t, err)
	require.Len(t, items, 5)

	assert.Equal(t, "wlan0", items[0].DisplayName)
	assert.True(t, items[0].IsPrimaryConnected)
	assert.Equal(t, CategoryWireless, items[0].Category)
	assert.True(t, items[0].Connected.Gateway)
	assert.Equal(t, "192.168.1.0", items[0].Connected.Network)

	assert.Equal(t, "docker0", items[1].DisplayName)
	assert.Equal(t, CategoryVirtual, items[1].Category)
	assert.Equal(t, "eth0", items[2].DisplayName)
	assert.Equal(t, CategoryWired, items[2].Category)

	assert.Equal(t, KindHotspot, items[3].Kind)
	assert.Equal(t, "Neighbour", items[3].DisplayName)
	assert.Equal(t, 55, items[3].Hotspot.Signal)
	assert.Equal(t, CategorySecuredWifi, items[3].Category)
	assert.Equal(t, "Cafe", items[4].DisplayName)
	assert.Equal(t, CategoryOpenWifi, items[4].Category)
}

func TestBuildKeepsConnectedItemsWhenWifiFails(t *testing.T) {
	items, err := Build(context.Background(), testInterfaces(), "", fakeScanner{err: ErrWifiUnsupported})
	assert.True(t, errors.Is(err, ErrWifiUnsupported))
	assert.Len(t, items, 3)
}

func TestSerialisationHidesPrimaryAndIgnoresCategory(t *testing.T) {
	items, err := Build(context.Background(), testInterfaces(), "", nil)
	require.NoError(t, err)

	data, err := json.Marshal(items[0])
	require.NoError(t, err)
	assert.NotContains(t, string(data), "primary")
	assert.Contains(t, string(data), `"category":"wireless"`)

	var decoded UnifiedNetworkItem
	require.NoError(t, json.Unmarshal([]byte(`{"kind":"available_wifi_hotspot","id":"wifi:X","display_name":"Spoof","category":"wired","hotspot":{"ssid":"Spoof","signal":10}}`), &decoded))
	assert.Empty(t, decoded.Category)
	assert.Equal(t, "Spoof", decoded.Hotspot.SSID)

	decoded.Classify()
	assert.Equal(t, CategoryOpenWifi, decoded.Category)
}

func TestParseNmcli(t *testing.T) {
	out := []byte("*:HomeNet:AA\\:BB\\:CC\\:DD\\:EE\\:01:6:72:WPA2\n" +
		" :Guest\\:Net:AA\\:BB\\:CC\\:DD\\:EE\\:02:11:40:\n" +
		"garbage line\n")
	networks := parseNmcli(out)
	require.Len(t, networks, 2)

	assert.Equal(t, WifiNetwork{SSID: "HomeNet", BSSID: "AA:BB:CC:DD:EE:01", Channel: 6, Signal: 72, Security: "WPA2", InUse: true}, networks[0])
	assert.Equal(t, "Guest:Net", networks[1].SSID)
	assert.False(t, networks[1].InUse)
	assert.Empty(t, networks[1].Security)
}

const netshNetworks = `
Interface name : Wi-Fi
There are 2 networks currently visible.

SSID 1 : HomeNet
    Network type            : Infrastructure
    Authentication          : WPA2-Personal
    Encryption              : CCMP
    BSSID 1                 : aa:bb:cc:dd:ee:01
         Signal             : 90%
         Radio type         : 802.11ac
         Channel            : 36
    BSSID 2                 : aa:bb:cc:dd:ee:02
         Signal             : 45%
         Channel            : 1

SSID 2 : Library
    Network type            : Infrastructure
    Authentication          : Open
    Encryption              : None
    BSSID 1                 : aa:bb:cc:dd:ee:03
         Signal             : 30%
         Channel            : 11
`

const netshInterfaces = `
There is 1 interface on the system:

    Name                   : Wi-Fi
    State                  : connected
    SSID                   : HomeNet
    BSSID                  : aa:bb:cc:dd:ee:01
    Signal                 : 90%
`

func TestNetshScanner(t *testing.T) {
	run := func(_ context.Context, name string, args ...string) ([]byte, error) {
		if args[2] == "interfaces" {
			return []byte(netshInterfaces), nil
		}
		return []byte(netshNetworks), nil
	}
	networks, err := NetshScanner{Run: run}.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, networks, 3)

	assert.Equal(t, WifiNetwork{SSID: "HomeNet", BSSID: "AA:BB:CC:DD:EE:01", Channel: 36, Signal: 90, Security: "WPA2-Personal", InUse: true}, networks[0])
	assert.Equal(t, 45, networks[1].Signal)
	assert.False(t, networks[1].InUse)
	assert.Equal(t, "Library", networks[2].SSID)
	assert.Equal(t, "Open", networks[2].Security)
}

func TestScannerForUnsupported(t *testing.T) {
	_, err := ScannerFor("plan9").Scan(context.Background())
	assert.ErrorIs(t, err, ErrWifiUnsupported)
}

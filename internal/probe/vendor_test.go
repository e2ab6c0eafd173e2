package probe

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHueProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/config" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `{"name":"Lamp1","bridgeid":"001788FFFE6A1B2C","mac":"00:17:88:6a:1b:2c","modelid":"BSB002"}`)
	}))
	defer srv.Close()

	prober := NewHueProber(time.Second)
	prober.Port = serverPort(t, srv)
	finding, err := prober.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Hue: Lamp1", finding.Name)
	assert.Equal(t, "00:17:88:6A:1B:2C", finding.MAC)
	assert.True(t, finding.Vendor)
}

func TestHueProberIgnoresOtherDevices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"name":"Home Router"}`)
	}))
	defer srv.Close()

	prober := NewHueProber(time.Second)
	prober.Port = serverPort(t, srv)
	_, err := prober.Probe(context.Background(), "127.0.0.1")
	assert.ErrorIs(t, err, ErrNoMatch)
}

func TestTuyaProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/d.json", r.URL.Path)
		fmt.Fprint(w, `{"devId":"bf12","device_name":"Hall Strip"}`)
	}))
	defer srv.Close()

	prober := NewTuyaProber(time.Second)
	prober.Port = serverPort(t, srv)
	finding, err := prober.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Smart Life: Hall Strip", finding.Name)
	assert.True(t, finding.Vendor)
}

func TestBulbProberWalksEndpoints(t *testing.T) {
	var (
		mu   sync.Mutex
		hits []string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		hits = append(hits, r.URL.Path)
		mu.Unlock()
		if r.URL.Path == "/device_info" {
			fmt.Fprint(w, `{"deviceName":"Bedside Bulb","fw":"1.2"}`)
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	port := serverPort(t, srv)
	prober := &BulbProber{
		Endpoints: []Endpoint{
			{Port: closedPort(t), Path: "/"},
			{Port: port, Path: "/status"},
			{Port: port, Path: "/device_info"},
			{Port: port, Path: "/never"},
		},
		Timeout: time.Second,
	}
	finding, err := prober.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Smart Bulb: Bedside Bulb", finding.Name)
	assert.Equal(t, port, finding.Port)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"/status", "/device_info"}, hits)
}

func TestDefaultBulbEndpoints(t *testing.T) {
	endpoints := DefaultBulbEndpoints()
	require.Len(t, endpoints, len(bulbPorts)*len(bulbPaths))
	assert.Equal(t, Endpoint{Port: 80, Path: "/"}, endpoints[0])
	assert.Equal(t, Endpoint{Port: 8080, Path: "/"}, endpoints[len(bulbPaths)])
}

func TestAirPlayProber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `<?xml version="1.0" encoding="UTF-8"?>
<plist version="1.0">
<dict>
    <key>deviceid</key>
    <string>AA:BB:CC:DD:EE:FF</string>
    <key>model</key>
    <string>AppleTV6,2</string>
    <key>name</key>
    <string>Bedroom Apple TV</string>
</dict>
</plist>`)
	}))
	defer srv.Close()

	prober := NewAirPlayProber(time.Second)
	prober.Port = serverPort(t, srv)
	finding, err := prober.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Bedroom Apple TV", finding.Name)
	assert.Equal(t, "AA:BB:CC:DD:EE:FF", finding.MAC)
	assert.Equal(t, "AppleTV6,2", finding.Metadata["model"])
	assert.False(t, finding.Vendor)
}

func TestNormaliseAirPlayValue(t *testing.T) {
	assert.Equal(t, "Test String", normaliseAirPlayValue([]byte("Test String")))
	assert.Equal(t, "000102", normaliseAirPlayValue([]byte{0x00, 0x01, 0x02}))
	nested := map[string]any{"name": "AirPlay", "active": true}
	assert.Equal(t, "active=true, name=AirPlay", normaliseAirPlayValue(nested))
}

func TestNormaliseSMBValue(t *testing.T) {
	assert.Equal(t, "NAS01", normaliseSMBValue(" NAS01\x00\x00"))
}

func TestSMBProberHonoursCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewSMBProber(time.Second).Probe(ctx, "127.0.0.1")
	assert.Error(t, err)
}

func TestManufacturer(t *testing.T) {
	assert.Equal(t, "", Manufacturer(""))
	assert.Equal(t, "Local Admin", Manufacturer("02:42:AC:11:00:02"))
	assert.Equal(t, "Local Admin", Manufacturer("DA:A1:19:00:00:01"))
	assert.NotEqual(t, "Local Admin", Manufacturer("00:17:88:01:02:03"))
}

func TestBuildRespectsEnabled(t *testing.T) {
	all := Build(Options{Ping: true})
	assert.Len(t, all, 11)

	some := Build(Options{Enabled: []string{"kasa", "upnp"}})
	require.Len(t, some, 2)
	assert.Equal(t, ProtocolUPnP, some[0].Protocol())
	assert.Equal(t, ProtocolKasa, some[1].Protocol())
}

func TestProtocolIsVendor(t *testing.T) {
	assert.True(t, ProtocolKasa.IsVendor())
	assert.True(t, ProtocolBulb.IsVendor())
	assert.True(t, ProtocolUDPBulb.IsVendor())
	assert.False(t, ProtocolAirPlay.IsVendor())
	assert.False(t, ProtocolMDNS.IsVendor())
}

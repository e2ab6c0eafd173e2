package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFirstMatchOrder(t *testing.T) {
	body := `{"bridgeid":"001788FFFE123456","name":"Living Room Bridge"}`
	name, ok := FirstMatch(body, hueNameRules...)
	assert.True(t, ok)
	assert.Equal(t, "Living Room Bridge", name, "name rule precedes bridgeid rule")

	name, ok = FirstMatch(`{"bridgeid":"001788FFFE123456"}`, hueNameRules...)
	assert.True(t, ok)
	assert.Equal(t, "001788FFFE123456", name)

	_, ok = FirstMatch("", hueNameRules...)
	assert.False(t, ok)
}

func TestCleanDeviceName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`"Kitchen Lamp"`, "Kitchen Lamp"},
		{`[Office\ Plug]`, "Office Plug"},
		{"Router Admin Setup", "Router"},
		{"null", ""},
		{"  Desk &amp; Light  ", "Desk & Light"},
		{"Camera - Configuration", "Camera"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, CleanDeviceName(tt.in))
		})
	}
}

func TestRegexRuleRejectsPlaceholders(t *testing.T) {
	rule := jsonKeyRule("name")
	for _, body := range []string{`{"name":"device"}`, `{"name":"ab"}`, `{"name":"Unknown Device"}`, `{"name":"cloud-connected plug"}`} {
		_, ok := rule(body)
		assert.False(t, ok, body)
	}
	name, ok := rule(`{"name":"Porch Light"}`)
	assert.True(t, ok)
	assert.Equal(t, "Porch Light", name)
}

func TestServerHeaderName(t *testing.T) {
	name, ok := ServerHeaderName("Hue/1.0 UPnP/1.0 IpBridge/1.50.0")
	assert.True(t, ok)
	assert.Equal(t, "Philips Hue Device", name)

	name, ok = ServerHeaderName("TP-LINK HTTPD/1.0")
	assert.True(t, ok)
	assert.Equal(t, "Kasa Smart Device", name)

	_, ok = ServerHeaderName("nginx/1.25.3")
	assert.False(t, ok)
}

func TestHTMLNameRules(t *testing.T) {
	name, ok := FirstMatch(`<html><head><title>Brother HL-L2350DW</title></head></html>`, htmlNameRules...)
	assert.True(t, ok)
	assert.Equal(t, "Brother HL-L2350DW", name)

	name, ok = FirstMatch(`<title>Index of /</title><h1>Garage NAS</h1>`, htmlNameRules...)
	assert.True(t, ok)
	assert.Equal(t, "Garage NAS", name)

	_, ok = FirstMatch(`<title>Login</title>`, htmlNameRules...)
	assert.False(t, ok)
}

func TestExtractIPFromHostname(t *testing.T) {
	tests := map[string]string{
		"192-168-1-20.local.":       "192.168.1.20",
		"20.1.168.192.in-addr.arpa": "192.168.1.20",
		"10.0.0.5.lan":              "10.0.0.5",
	}
	for in, want := range tests {
		got, ok := ExtractIPFromHostname(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}
	_, ok := ExtractIPFromHostname("lamp1.local")
	assert.False(t, ok)
}

func TestNameFromMDNS(t *testing.T) {
	assert.Equal(t, "lamp1", NameFromMDNS("lamp1.local."))
	assert.Equal(t, "Living-Room-TV", NameFromMDNS("Living-Room-TV.local"))
	assert.Equal(t, "", NameFromMDNS(""))
}

package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Endpoint is one (port, path) candidate of the smart-bulb sweep.
type Endpoint struct {
	Port int
	Path string
}

var (
	bulbPorts = []int{80, 8080, 6668, 9999, 10000, 38899, 6667}
	bulbPaths = []string{
		"/", "/status", "/info", "/device", "/config",
		"/api/info", "/api/config", "/api/device", "/api/status",
		"/get_status", "/device_info", "/system/info", "/homemate", "/settings", "/shelly",
	}

	bulbNameRules = []NameRule{
		jsonKeyRule("alias"),
		jsonKeyRule("name"),
		jsonKeyRule("device_name"),
		jsonKeyRule("deviceName"),
		jsonKeyRule("friendly_name"),
		jsonKeyRule("friendlyName"),
		jsonKeyRule("dev_name"),
		jsonKeyRule("nickname"),
		jsonKeyRule("hostname"),
		jsonKeyRule("moduleName"),
		xmlTagRule("friendlyName"),
		xmlTagRule("deviceName"),
		xmlTagRule("name"),
		RegexRule(`(?i)Device\s*Name\s*[:=]\s*([^\r\n<,;]+)`),
		RegexRule(`(?i)Friendly\s*Name\s*[:=]\s*([^\r\n<,;]+)`),
		jsonKeyRule("model"),
		jsonKeyRule("modelName"),
	}
)

// DefaultBulbEndpoints returns the ordered sweep: every path on a port
// before moving to the next port.
func DefaultBulbEndpoints() []Endpoint {
	out := make([]Endpoint, 0, len(bulbPorts)*len(bulbPaths))
	for _, port := range bulbPorts {
		for _, path := range bulbPaths {
			out = append(out, Endpoint{Port: port, Path: path})
		}
	}
	return out
}

// BulbProber walks a list of HTTP endpoints commonly exposed by generic
// smart bulbs and plugs until one yields a name. The whole walk shares one
// timeout.
type BulbProber struct {
	Endpoints []Endpoint
	Timeout   time.Duration
	Client    *http.Client
}

func NewBulbProber(timeout time.Duration) *BulbProber {
	return &BulbProber{Endpoints: DefaultBulbEndpoints(), Timeout: timeout}
}

func (p *BulbProber) Protocol() Protocol { return ProtocolBulb }

func (p *BulbProber) Probe(ctx context.Context, ip string) (Finding, error) {
	ctx, cancel := withTimeout(ctx, p.Timeout, defaultVendorDelay)
	defer cancel()

	dead := make(map[int]bool)
	var lastErr error = ErrNoMatch
	for _, endpoint := range p.Endpoints {
		if ctx.Err() != nil {
			return Finding{}, ctx.Err()
		}
		if dead[endpoint.Port] {
			continue
		}
		resp, err := fetch(ctx, p.Client, endpointURL(ip, endpoint.Port, endpoint.Path))
		if err != nil {
			if isTransportError(err) {
				dead[endpoint.Port] = true
			}
			lastErr = err
			continue
		}
		if resp.Status != http.StatusOK {
			continue
		}
		if name, ok := FirstMatch(resp.Body, bulbNameRules...); ok {
			return Finding{
				Name:     "Smart Bulb: " + name,
				Port:     endpoint.Port,
				Vendor:   true,
				Metadata: map[string]string{"endpoint": endpoint.Path},
			}, nil
		}
	}
	return Finding{}, fmt.Errorf("smart bulb: %w", lastErr)
}

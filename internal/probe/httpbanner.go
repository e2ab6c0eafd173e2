package probe

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 1500 * time.Millisecond

// HTTPProber fetches the root page of a host and derives a name from the
// Server header or, failing that, the HTML body.
type HTTPProber struct {
	Port    int
	Timeout time.Duration
	Client  *http.Client
}

func NewHTTPProber(timeout time.Duration) *HTTPProber {
	return &HTTPProber{Port: 80, Timeout: timeout}
}

func (p *HTTPProber) Protocol() Protocol { return ProtocolHTTP }

func (p *HTTPProber) Probe(ctx context.Context, ip string) (Finding, error) {
	ctx, cancel := withTimeout(ctx, p.Timeout, defaultHTTPTimeout)
	defer cancel()

	resp, err := fetch(ctx, p.Client, endpointURL(ip, p.Port, "/"))
	if err != nil {
		return Finding{}, err
	}

	finding := Finding{Port: p.Port, Metadata: map[string]string{}}
	server := strings.TrimSpace(resp.Header.Get("Server"))
	if server != "" {
		finding.Metadata["server"] = server
	}
	if name, ok := ServerHeaderName(server); ok {
		finding.Name = name
		return finding, nil
	}
	if name, ok := FirstMatch(resp.Body, htmlNameRules...); ok {
		finding.Name = name
	}
	return finding, nil
}

// ProbeHTTP is the one-shot form of HTTPProber against port 80.
func ProbeHTTP(ctx context.Context, ip string, timeout time.Duration) (string, bool) {
	finding, err := NewHTTPProber(timeout).Probe(ctx, ip)
	if err != nil || finding.Name == "" {
		return "", false
	}
	return finding.Name, true
}

var (
	upnpNameRules = []NameRule{
		xmlTagRule("friendlyName"),
		xmlTagRule("deviceName"),
		xmlTagRule("modelName"),
	}
	upnpManufacturerRule = xmlTagRule("manufacturer")
	upnpModelRule        = xmlTagRule("modelName")
)

// UPnPProber reads a UPnP device description document.
type UPnPProber struct {
	Ports   []int
	Paths   []string
	Timeout time.Duration
	Client  *http.Client
}

func NewUPnPProber(timeout time.Duration) *UPnPProber {
	return &UPnPProber{
		Ports:   []int{80, 49152},
		Paths:   []string{"/description.xml", "/rootDesc.xml", "/upnp/desc.xml"},
		Timeout: timeout,
	}
}

func (p *UPnPProber) Protocol() Protocol { return ProtocolUPnP }

func (p *UPnPProber) Probe(ctx context.Context, ip string) (Finding, error) {
	ctx, cancel := withTimeout(ctx, p.Timeout, defaultHTTPTimeout)
	defer cancel()

	var lastErr error = ErrNoMatch
Ports:
	for _, port := range p.Ports {
		for _, path := range p.Paths {
			resp, err := fetch(ctx, p.Client, endpointURL(ip, port, path))
			if err != nil {
				lastErr = err
				if ctx.Err() != nil {
					break Ports
				}
				continue Ports
			}
			if resp.Status != http.StatusOK {
				continue
			}
			name, ok := FirstMatch(resp.Body, upnpNameRules...)
			if !ok {
				lastErr = fmt.Errorf("%s: %w", path, ErrNoMatch)
				continue
			}
			finding := Finding{Name: name, Port: port, Metadata: map[string]string{"description": path}}
			if manufacturer, ok := upnpManufacturerRule(resp.Body); ok {
				finding.Metadata["manufacturer"] = manufacturer
			}
			if model, ok := upnpModelRule(resp.Body); ok {
				finding.Metadata["model"] = model
			}
			return finding, nil
		}
	}
	return Finding{}, lastErr
}

// ProbeUPnP is the one-shot form of UPnPProber.
func ProbeUPnP(ctx context.Context, ip string, timeout time.Duration) (string, bool) {
	finding, err := NewUPnPProber(timeout).Probe(ctx, ip)
	if err != nil {
		return "", false
	}
	return finding.Name, true
}

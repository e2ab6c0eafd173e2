package probe

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"time"

	"lanscan/internal/netinfo"
)

var (
	hueNameRules = []NameRule{
		RegexRule(`"name"\s*:\s*"([^"]+)"`),
		RegexRule(`"bridgeid"\s*:\s*"([^"]+)"`),
		RegexRule(`"friendlyName">([^<]+)<`),
		xmlTagRule("friendlyName"),
		RegexRule(`"modelDescription"\s*:\s*"([^"]+)"`),
	}
	hueSignature  = regexp.MustCompile(`(?i)bridgeid|philips|hue`)
	hueMACPattern = regexp.MustCompile(`"mac"\s*:\s*"([^"]+)"`)
)

// HueProber identifies Philips Hue bridges through their HTTP API.
type HueProber struct {
	Port      int
	Endpoints []string
	Timeout   time.Duration
	Client    *http.Client
}

func NewHueProber(timeout time.Duration) *HueProber {
	return &HueProber{
		Port:      80,
		Endpoints: []string{"/api/config", "/api/", "/description.xml"},
		Timeout:   timeout,
	}
}

func (p *HueProber) Protocol() Protocol { return ProtocolHue }

func (p *HueProber) Probe(ctx context.Context, ip string) (Finding, error) {
	ctx, cancel := withTimeout(ctx, p.Timeout, defaultVendorDelay)
	defer cancel()

	for _, endpoint := range p.Endpoints {
		resp, err := fetch(ctx, p.Client, endpointURL(ip, p.Port, endpoint))
		if err != nil {
			if isTransportError(err) || ctx.Err() != nil {
				return Finding{}, err
			}
			continue
		}
		if resp.Status != http.StatusOK || !hueSignature.MatchString(resp.Body) {
			continue
		}
		name, ok := FirstMatch(resp.Body, hueNameRules...)
		if !ok {
			continue
		}
		finding := Finding{
			Name:     "Hue: " + name,
			Port:     p.Port,
			Vendor:   true,
			Metadata: map[string]string{"manufacturer": "Signify", "endpoint": endpoint},
		}
		if match := hueMACPattern.FindStringSubmatch(resp.Body); len(match) == 2 {
			finding.MAC = netinfo.NormaliseMAC(match[1])
		}
		return finding, nil
	}
	return Finding{}, fmt.Errorf("hue: %w", ErrNoMatch)
}

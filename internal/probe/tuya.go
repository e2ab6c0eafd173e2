package probe

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

var tuyaNameRules = []NameRule{
	jsonKeyRule("name"),
	jsonKeyRule("device_name"),
	jsonKeyRule("friendly_name"),
}

// TuyaProber reads the local JSON descriptor Tuya / Smart Life devices
// serve on their vendor port.
type TuyaProber struct {
	Port    int
	Path    string
	Timeout time.Duration
	Client  *http.Client
}

func NewTuyaProber(timeout time.Duration) *TuyaProber {
	return &TuyaProber{Port: 6668, Path: "/d.json", Timeout: timeout}
}

func (p *TuyaProber) Protocol() Protocol { return ProtocolTuya }

func (p *TuyaProber) Probe(ctx context.Context, ip string) (Finding, error) {
	ctx, cancel := withTimeout(ctx, p.Timeout, defaultVendorDelay)
	defer cancel()

	resp, err := fetch(ctx, p.Client, endpointURL(ip, p.Port, p.Path))
	if err != nil {
		return Finding{}, err
	}
	if resp.Status != http.StatusOK {
		return Finding{}, fmt.Errorf("tuya: status %d: %w", resp.Status, ErrNoMatch)
	}
	name, ok := FirstMatch(resp.Body, tuyaNameRules...)
	if !ok {
		return Finding{}, fmt.Errorf("tuya: %w", ErrNoMatch)
	}
	return Finding{
		Name:     "Smart Life: " + name,
		Port:     p.Port,
		Vendor:   true,
		Metadata: map[string]string{"manufacturer": "Tuya"},
	}, nil
}

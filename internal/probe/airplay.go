package probe

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"howett.net/plist"

	"lanscan/internal/netinfo"
)

const airPlayPort = 7000

// AirPlayProber reads the plist an AirPlay receiver serves on /info.
type AirPlayProber struct {
	Port      int
	Endpoints []string
	Timeout   time.Duration
	Client    *http.Client
}

func NewAirPlayProber(timeout time.Duration) *AirPlayProber {
	return &AirPlayProber{Port: airPlayPort, Endpoints: []string{"/info", "/server-info"}, Timeout: timeout}
}

func (p *AirPlayProber) Protocol() Protocol { return ProtocolAirPlay }

func (p *AirPlayProber) Probe(ctx context.Context, ip string) (Finding, error) {
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
		if resp.Status != http.StatusOK {
			continue
		}
		fields := parseAirPlayResponse([]byte(resp.Body))
		if len(fields) == 0 {
			continue
		}

		finding := Finding{
			Port:     p.Port,
			Services: []string{"_airplay._tcp"},
			Metadata: map[string]string{"manufacturer": "Apple", "endpoint": endpoint},
		}
		if name := CleanDeviceName(fields["name"]); plausibleName(name) {
			finding.Name = name
		}
		if model := fields["model"]; model != "" {
			finding.Metadata["model"] = model
			if finding.Name == "" {
				finding.Name = model
			}
		}
		if mac := netinfo.NormaliseMAC(fields["deviceid"]); netinfo.UsableMAC(mac) {
			finding.MAC = mac
		}
		return finding, nil
	}
	return Finding{}, fmt.Errorf("airplay: %w", ErrNoMatch)
}

func parseAirPlayResponse(data []byte) map[string]string {
	if len(data) == 0 {
		return nil
	}

	var payload any
	if _, err := plist.Unmarshal(data, &payload); err != nil {
		return nil
	}
	rawMap, ok := payload.(map[string]any)
	if !ok || len(rawMap) == 0 {
		return nil
	}

	fields := make(map[string]string, len(rawMap))
	for key, raw := range rawMap {
		if value := normaliseAirPlayValue(raw); value != "" {
			fields[key] = value
		}
	}
	if len(fields) == 0 {
		return nil
	}
	return fields
}

func normaliseAirPlayValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	case fmt.Stringer:
		return strings.TrimSpace(v.String())
	case []byte:
		if len(v) == 0 {
			return ""
		}
		if utf8.Valid(v) && isPrintable(v) {
			return strings.TrimSpace(string(v))
		}
		return strings.ToUpper(hex.EncodeToString(v))
	case bool:
		if v {
			return "true"
		}
		return "false"
	case int, int32, int64, uint, uint32, uint64, float32, float64:
		return fmt.Sprintf("%v", v)
	case time.Time:
		return v.Format(time.RFC3339)
	case []any:
		var parts []string
		for _, item := range v {
			if part := normaliseAirPlayValue(item); part != "" {
				parts = append(parts, part)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		var segments []string
		for _, key := range keys {
			if part := normaliseAirPlayValue(v[key]); part != "" {
				segments = append(segments, key+"="+part)
			}
		}
		return strings.Join(segments, ", ")
	default:
		return fmt.Sprintf("%v", v)
	}
}

func isPrintable(data []byte) bool {
	for _, r := range string(data) {
		if r < 0x20 && r != '\n' && r != '\r' && r != '\t' {
			return false
		}
	}
	return true
}

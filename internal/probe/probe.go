package probe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"
)

// Protocol tags the discovery mechanism that produced a finding.
type Protocol string

const (
	ProtocolMDNS       Protocol = "mdns"
	ProtocolReverseDNS Protocol = "reverse_dns"
	ProtocolHTTP       Protocol = "http"
	ProtocolUPnP       Protocol = "upnp"
	ProtocolHue        Protocol = "hue"
	ProtocolKasa       Protocol = "kasa"
	ProtocolTuya       Protocol = "tuya"
	ProtocolBulb       Protocol = "smart_bulb"
	ProtocolUDPBulb    Protocol = "udp_bulb"
	ProtocolAirPlay    Protocol = "airplay"
	ProtocolSMB        Protocol = "smb"
	ProtocolPing       Protocol = "icmp"
	ProtocolARP        Protocol = "arp"
)

// IsVendor reports whether p is a vendor handshake for a smart-device family.
func (p Protocol) IsVendor() bool {
	switch p {
	case ProtocolHue, ProtocolKasa, ProtocolTuya, ProtocolBulb, ProtocolUDPBulb:
		return true
	}
	return false
}

// ErrNoMatch is returned when a device answered but nothing identifying
// could be extracted from the response.
var ErrNoMatch = errors.New("no identifying data in response")

// Finding is what a single probe learned about one IP.
type Finding struct {
	Name     string
	MAC      string
	Port     int
	Services []string
	Metadata map[string]string
	// Vendor is set when a vendor handshake recognised its device family.
	Vendor bool
}

// Prober is an IP-targeted probe. Implementations bound their own runtime
// and must release sockets when ctx ends.
type Prober interface {
	Protocol() Protocol
	Probe(ctx context.Context, ip string) (Finding, error)
}

const maxBodySize = 64 << 10

type httpResponse struct {
	Status int
	Header http.Header
	Body   string
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext:       (&net.Dialer{}).DialContext,
			DisableKeepAlives: true,
			MaxIdleConns:      0,
		},
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 2 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
}

var sharedClient = newHTTPClient()

func fetch(ctx context.Context, client *http.Client, url string) (httpResponse, error) {
	if client == nil {
		client = sharedClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return httpResponse{}, err
	}
	req.Header.Set("User-Agent", "lanscan/1.0")
	resp, err := client.Do(req)
	if err != nil {
		return httpResponse{}, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return httpResponse{}, err
	}
	return httpResponse{Status: resp.StatusCode, Header: resp.Header, Body: string(data)}, nil
}

func endpointURL(ip string, port int, path string) string {
	return fmt.Sprintf("http://%s%s", net.JoinHostPort(ip, strconv.Itoa(port)), path)
}

func withTimeout(ctx context.Context, timeout, fallback time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = fallback
	}
	return context.WithTimeout(ctx, timeout)
}

// isTransportError separates "nothing listening" from "listening but odd".
func isTransportError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

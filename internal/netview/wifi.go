package netview

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"lanscan/internal/netinfo"
)

// ErrWifiUnsupported is returned on platforms without a Wi-Fi scanner.
var ErrWifiUnsupported = errors.New("wifi scanning is not supported on this platform")

// WifiNetwork is one BSS seen by the host's radio.
type WifiNetwork struct {
	SSID     string
	BSSID    string
	Channel  int
	Signal   int
	Security string
	// InUse is set when the host is associated with this BSS.
	InUse bool
}

// WifiScanner lists visible Wi-Fi networks.
type WifiScanner interface {
	Scan(ctx context.Context) ([]WifiNetwork, error)
}

// ScannerFor picks the platform scanner; unsupported platforms get a scanner
// that always fails with ErrWifiUnsupported.
func ScannerFor(goos string) WifiScanner {
	switch goos {
	case "linux":
		return NmcliScanner{Run: netinfo.ExecRunner}
	case "windows":
		return NetshScanner{Run: netinfo.ExecRunner}
	default:
		return unsupportedScanner{}
	}
}

type unsupportedScanner struct{}

func (unsupportedScanner) Scan(context.Context) ([]WifiNetwork, error) {
	return nil, ErrWifiUnsupported
}

// NmcliScanner reads NetworkManager's terse Wi-Fi listing.
type NmcliScanner struct {
	Run netinfo.CommandRunner
}

func (s NmcliScanner) Scan(ctx context.Context) ([]WifiNetwork, error) {
	out, err := s.Run(ctx, "nmcli", "-t", "-f", "IN-USE,SSID,BSSID,CHAN,SIGNAL,SECURITY", "dev", "wifi", "list")
	if err != nil {
		return nil, fmt.Errorf("nmcli: %w", err)
	}
	return parseNmcli(out), nil
}

func parseNmcli(out []byte) []WifiNetwork {
	var networks []WifiNetwork
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := splitTerse(scanner.Text())
		if len(fields) < 6 {
			continue
		}
		bssid := netinfo.NormaliseMAC(fields[2])
		if bssid == "" {
			continue
		}
		channel, _ := strconv.Atoi(strings.TrimSpace(fields[3]))
		signal, _ := strconv.Atoi(strings.TrimSpace(fields[4]))
		networks = append(networks, WifiNetwork{
			SSID:     fields[1],
			BSSID:    bssid,
			Channel:  channel,
			Signal:   signal,
			Security: strings.TrimSpace(fields[5]),
			InUse:    strings.TrimSpace(fields[0]) == "*",
		})
	}
	return networks
}

// splitTerse splits nmcli -t output on unescaped colons and unescapes
// "\:" and "\\".
func splitTerse(line string) []string {
	var fields []string
	var current strings.Builder
	escaped := false
	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(fields, current.String())
}

// NetshScanner reads the Windows WLAN service listing. The association is
// taken from "netsh wlan show interfaces".
type NetshScanner struct {
	Run netinfo.CommandRunner
}

func (s NetshScanner) Scan(ctx context.Context) ([]WifiNetwork, error) {
	out, err := s.Run(ctx, "netsh", "wlan", "show", "networks", "mode=bssid")
	if err != nil {
		return nil, fmt.Errorf("netsh: %w", err)
	}
	networks := parseNetshNetworks(out)

	if ifaces, err := s.Run(ctx, "netsh", "wlan", "show", "interfaces"); err == nil {
		associated := parseNetshAssociated(ifaces)
		for i := range networks {
			if associated[networks[i].BSSID] {
				networks[i].InUse = true
			}
		}
	}
	return networks, nil
}

func splitNetshLine(line string) (key, value string, ok bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+1:]), true
}

func parseNetshNetworks(out []byte) []WifiNetwork {
	var (
		networks []WifiNetwork
		ssid     string
		security string
		current  *WifiNetwork
	)
	flush := func() {
		if current != nil && current.BSSID != "" {
			networks = append(networks, *current)
		}
		current = nil
	}

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := splitNetshLine(scanner.Text())
		if !ok {
			continue
		}
		lower := strings.ToLower(key)
		switch {
		case strings.HasPrefix(lower, "ssid "):
			flush()
			ssid, security = value, ""
		case lower == "authentication":
			security = value
		case strings.HasPrefix(lower, "bssid "):
			flush()
			current = &WifiNetwork{SSID: ssid, BSSID: netinfo.NormaliseMAC(value), Security: security}
		case current == nil:
		case lower == "signal":
			current.Signal, _ = strconv.Atoi(strings.TrimSuffix(value, "%"))
		case lower == "channel":
			current.Channel, _ = strconv.Atoi(value)
		}
	}
	flush()
	return networks
}

func parseNetshAssociated(out []byte) map[string]bool {
	associated := make(map[string]bool)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := splitNetshLine(scanner.Text())
		if !ok || !strings.EqualFold(key, "BSSID") {
			continue
		}
		if mac := netinfo.NormaliseMAC(value); mac != "" {
			associated[mac] = true
		}
	}
	return associated
}

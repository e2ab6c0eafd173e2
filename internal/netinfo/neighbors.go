package netinfo

import (
	"context"
	"os"
	"regexp"
	"runtime"
	"strings"
)

var ipv4Pattern = regexp.MustCompile(`\b(\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3})\b`)

// NeighborReader returns the kernel's IPv4 neighbour table as IP -> MAC.
type NeighborReader func(ctx context.Context) (map[string]string, error)

// ReadNeighbors reads /proc/net/arp when available and falls back to `arp -a`.
func ReadNeighbors(ctx context.Context) (map[string]string, error) {
	if runtime.GOOS == "linux" {
		if data, err := os.ReadFile("/proc/net/arp"); err == nil {
			return parseProcARP(data), nil
		}
	}
	out, err := ExecRunner(ctx, "arp", "-a")
	if err != nil {
		return nil, err
	}
	return parseARPTable(out), nil
}

func parseProcARP(data []byte) map[string]string {
	table := make(map[string]string)
	lines := strings.Split(string(data), "\n")
	for _, line := range lines[1:] {
		fields := whitespacePattern.Split(strings.TrimSpace(line), -1)
		if len(fields) < 4 {
			continue
		}
		if mac := NormaliseMAC(fields[3]); UsableMAC(mac) {
			table[fields[0]] = mac
		}
	}
	return table
}

// parseARPTable understands the BSD/macOS/linux-net-tools form
// "host (192.168.1.1) at aa:bb:cc:dd:ee:ff ..." and the Windows form
// "  192.168.1.1   aa-bb-cc-dd-ee-ff   dynamic".
func parseARPTable(out []byte) map[string]string {
	table := make(map[string]string)
	for _, line := range strings.Split(string(out), "\n") {
		ip := ipv4Pattern.FindString(line)
		if ip == "" {
			continue
		}
		mac := NormaliseMAC(macLinePattern.FindString(line))
		if !UsableMAC(mac) {
			continue
		}
		table[ip] = mac
	}
	return table
}

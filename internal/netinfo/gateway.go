package netinfo

import (
	"bufio"
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"strings"
)

// ErrNoDefaultRoute is returned when the routing table has no usable default route.
var ErrNoDefaultRoute = errors.New("no default route")

// DefaultGateway identifies the next hop of the default route.
type DefaultGateway struct {
	IP        string `json:"ip"`
	Interface string `json:"interface,omitempty"`
}

// GatewayStrategy resolves the default gateway on one platform family.
type GatewayStrategy interface {
	Name() string
	Resolve(ctx context.Context) (DefaultGateway, error)
}

// CommandRunner executes an external command and returns its standard output.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands through os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// StrategyFor picks the gateway strategy for goos.
func StrategyFor(goos string) GatewayStrategy {
	switch goos {
	case "darwin", "freebsd", "openbsd", "netbsd":
		return RouteGetStrategy{Run: ExecRunner}
	case "windows":
		return RoutePrintStrategy{Run: ExecRunner}
	default:
		return ProcRouteStrategy{Path: "/proc/net/route"}
	}
}

// GetDefaultGateway resolves the default gateway with the strategy for the
// running platform.
func GetDefaultGateway(ctx context.Context) (DefaultGateway, error) {
	return StrategyFor(runtime.GOOS).Resolve(ctx)
}

// RouteGetStrategy parses `route -n get default`.
type RouteGetStrategy struct {
	Run CommandRunner
}

func (RouteGetStrategy) Name() string { return "route-get" }

func (s RouteGetStrategy) Resolve(ctx context.Context) (DefaultGateway, error) {
	out, err := s.Run(ctx, "route", "-n", "get", "default")
	if err != nil {
		return DefaultGateway{}, fmt.Errorf("route get default: %w", err)
	}
	return parseRouteGet(out)
}

func parseRouteGet(out []byte) (DefaultGateway, error) {
	var gw DefaultGateway
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), ":")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "gateway":
			if ip := net.ParseIP(value); ip != nil && ip.To4() != nil {
				gw.IP = ip.To4().String()
			}
		case "interface":
			gw.Interface = value
		}
	}
	if gw.IP == "" {
		return DefaultGateway{}, ErrNoDefaultRoute
	}
	return gw, nil
}

// ProcRouteStrategy reads the kernel routing table file directly.
type ProcRouteStrategy struct {
	Path string
}

func (ProcRouteStrategy) Name() string { return "proc-route" }

func (s ProcRouteStrategy) Resolve(ctx context.Context) (DefaultGateway, error) {
	if err := ctx.Err(); err != nil {
		return DefaultGateway{}, err
	}
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return DefaultGateway{}, fmt.Errorf("read %s: %w", s.Path, err)
	}
	return parseProcRoute(data)
}

func parseProcRoute(data []byte) (DefaultGateway, error) {
	lines := strings.Split(string(data), "\n")
	for _, line := range lines[1:] {
		fields := whitespacePattern.Split(strings.TrimSpace(line), -1)
		if len(fields) < 3 || fields[1] != "00000000" {
			continue
		}
		ip, err := decodeHexIPv4(fields[2])
		if err != nil || ip.Equal(net.IPv4zero) {
			continue
		}
		return DefaultGateway{IP: ip.String(), Interface: fields[0]}, nil
	}
	return DefaultGateway{}, ErrNoDefaultRoute
}

// decodeHexIPv4 decodes the little-endian hex form used by /proc/net/route.
func decodeHexIPv4(field string) (net.IP, error) {
	raw, err := hex.DecodeString(field)
	if err != nil {
		return nil, err
	}
	if len(raw) != net.IPv4len {
		return nil, fmt.Errorf("unexpected gateway field %q", field)
	}
	return net.IPv4(raw[3], raw[2], raw[1], raw[0]).To4(), nil
}

// RoutePrintStrategy parses `route print 0.0.0.0` on Windows. The owning
// interface is reported by its address because that is what the table lists.
type RoutePrintStrategy struct {
	Run CommandRunner
}

func (RoutePrintStrategy) Name() string { return "route-print" }

func (s RoutePrintStrategy) Resolve(ctx context.Context) (DefaultGateway, error) {
	out, err := s.Run(ctx, "cmd", "/C", "route", "print", "0.0.0.0")
	if err != nil {
		return DefaultGateway{}, fmt.Errorf("route print: %w", err)
	}
	return parseRoutePrint(out)
}

func parseRoutePrint(out []byte) (DefaultGateway, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "0.0.0.0") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		ip := net.ParseIP(fields[2])
		if ip == nil || ip.To4() == nil {
			continue
		}
		gw := DefaultGateway{IP: ip.To4().String()}
		if len(fields) >= 4 {
			gw.Interface = fields[3]
		}
		return gw, nil
	}
	return DefaultGateway{}, ErrNoDefaultRoute
}

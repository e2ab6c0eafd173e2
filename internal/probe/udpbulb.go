package probe

import (
	"context"
	"fmt"
	"net"
	"time"
)

var (
	udpBulbPorts    = []int{80, 8080, 48899, 10001, 1982, 6666, 6667, 6668, 8888, 7000, 5683}
	udpBulbMessages = [][]byte{
		kasaSysinfoRequest,
		[]byte(`{"smartlife.iot.smartbulb.lightingservice":{"transition_light_state":{}}}`),
		[]byte("discovery"),
		[]byte("hello"),
		[]byte("M-SEARCH * HTTP/1.1\r\nHOST: 239.255.255.250:1982\r\nMAN: \"ssdp:discover\"\r\nMX: 1\r\nST: wifi_bulb\r\n"),
		[]byte(`{"id":1,"method":"get_prop","params":["power","bright","ct","rgb","flowing","delayoff","flow_params","music_on","name"]}`),
	}
)

// UDPBulbProber sprays the plain-text discovery messages cheap bulbs and
// plugs answer over UDP at the common vendor ports, then reads replies from
// the target until one carries a name.
type UDPBulbProber struct {
	Ports    []int
	Messages [][]byte
	Timeout  time.Duration
}

func NewUDPBulbProber(timeout time.Duration) *UDPBulbProber {
	return &UDPBulbProber{Ports: udpBulbPorts, Messages: udpBulbMessages, Timeout: timeout}
}

func (p *UDPBulbProber) Protocol() Protocol { return ProtocolUDPBulb }

func (p *UDPBulbProber) Probe(ctx context.Context, ip string) (Finding, error) {
	ctx, cancel := withTimeout(ctx, p.Timeout, defaultVendorDelay)
	defer cancel()

	target := net.ParseIP(ip)
	if target == nil {
		return Finding{}, fmt.Errorf("udp bulb: invalid address %q", ip)
	}
	var lc net.ListenConfig
	conn, err := lc.ListenPacket(ctx, "udp4", ":0")
	if err != nil {
		return Finding{}, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	for _, port := range p.Ports {
		addr := &net.UDPAddr{IP: target, Port: port}
		for _, msg := range p.Messages {
			// A failed send to one port says nothing about the others.
			_, _ = conn.WriteTo(msg, addr)
		}
	}

	buf := make([]byte, 2048)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return Finding{}, fmt.Errorf("udp bulb: %w", ctx.Err())
			}
			return Finding{}, err
		}
		src, ok := from.(*net.UDPAddr)
		if !ok || !src.IP.Equal(target) {
			continue
		}
		if name, ok := FirstMatch(string(buf[:n]), bulbNameRules...); ok {
			return Finding{
				Name:     "Smart Bulb: " + name,
				Port:     src.Port,
				Vendor:   true,
				Metadata: map[string]string{"transport": "udp"},
			}, nil
		}
	}
}

package probe

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"time"

	"lanscan/internal/netinfo"
)

const (
	kasaInitialKey     byte = 171
	defaultVendorDelay      = 500 * time.Millisecond
)

var (
	kasaSysinfoRequest = []byte(`{"system":{"get_sysinfo":{}}}`)
	kasaNameRules      = []NameRule{jsonKeyRule("alias"), jsonKeyRule("dev_name"), jsonKeyRule("model")}
	kasaModelPattern   = regexp.MustCompile(`"model"\s*:\s*"([^"]+)"`)
	kasaMACPattern     = regexp.MustCompile(`"(?:mac|mic_mac)"\s*:\s*"([^"]+)"`)
)

// Encrypt applies the Kasa rolling XOR: every output byte becomes the key
// for the next input byte. It is an obfuscation convention the devices
// expect, not a security measure.
func Encrypt(plain []byte) []byte {
	key := kasaInitialKey
	out := make([]byte, len(plain))
	for i, b := range plain {
		out[i] = key ^ b
		key = out[i]
	}
	return out
}

// Decrypt reverses Encrypt; the key is the ciphertext byte just consumed.
func Decrypt(cipher []byte) []byte {
	key := kasaInitialKey
	out := make([]byte, len(cipher))
	for i, c := range cipher {
		out[i] = key ^ c
		key = c
	}
	return out
}

// EncryptWithHeader frames the payload the way the TCP variant of the
// protocol does: a big-endian length prefix followed by the obfuscated bytes.
func EncryptWithHeader(plain []byte) []byte {
	out := make([]byte, 4, 4+len(plain))
	binary.BigEndian.PutUint32(out, uint32(len(plain)))
	return append(out, Encrypt(plain)...)
}

// KasaProber sends get_sysinfo over UDP to TP-Link Kasa devices.
type KasaProber struct {
	Port    int
	Timeout time.Duration
}

func NewKasaProber(timeout time.Duration) *KasaProber {
	return &KasaProber{Port: 9999, Timeout: timeout}
}

func (p *KasaProber) Protocol() Protocol { return ProtocolKasa }

func (p *KasaProber) Probe(ctx context.Context, ip string) (Finding, error) {
	ctx, cancel := withTimeout(ctx, p.Timeout, defaultVendorDelay)
	defer cancel()

	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", net.JoinHostPort(ip, strconv.Itoa(p.Port)))
	if err != nil {
		return Finding{}, err
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write(Encrypt(kasaSysinfoRequest)); err != nil {
		return Finding{}, err
	}
	buf := make([]byte, 4096)
	n, err := conn.Read(buf)
	if err != nil {
		return Finding{}, err
	}

	reply := string(Decrypt(buf[:n]))
	if !strings.Contains(reply, `"system"`) {
		return Finding{}, fmt.Errorf("kasa: %w", ErrNoMatch)
	}

	finding := Finding{Port: p.Port, Vendor: true, Metadata: map[string]string{"manufacturer": "TP-Link"}}
	if name, ok := FirstMatch(reply, kasaNameRules...); ok {
		finding.Name = "Kasa: " + name
	}
	if match := kasaModelPattern.FindStringSubmatch(reply); len(match) == 2 {
		finding.Metadata["model"] = match[1]
	}
	if match := kasaMACPattern.FindStringSubmatch(reply); len(match) == 2 {
		finding.MAC = netinfo.NormaliseMAC(match[1])
	}
	return finding, nil
}

package probe

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startUDPBulb answers the first datagram equal to trigger with reply.
func startUDPBulb(t *testing.T, trigger, reply string) int {
	t.Helper()
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	go func() {
		buf := make([]byte, 2048)
		for {
			n, addr, err := conn.ReadFrom(buf)
			if err != nil {
				return
			}
			if string(buf[:n]) == trigger {
				_, _ = conn.WriteTo([]byte(reply), addr)
				return
			}
		}
	}()
	return conn.LocalAddr().(*net.UDPAddr).Port
}

func TestUDPBulbProberNamesBulb(t *testing.T) {
	port := startUDPBulb(t, "hello", `{"id":1,"result":["on"],"name":"Desk Lamp"}`)
	prober := &UDPBulbProber{Ports: []int{port}, Messages: udpBulbMessages, Timeout: time.Second}

	finding, err := prober.Probe(context.Background(), "127.0.0.1")
	require.NoError(t, err)
	assert.Equal(t, "Smart Bulb: Desk Lamp", finding.Name)
	assert.Equal(t, port, finding.Port)
	assert.True(t, finding.Vendor)
	assert.Equal(t, ProtocolUDPBulb, prober.Protocol())
}

func TestUDPBulbProberIgnoresUnnamedReplies(t *testing.T) {
	port := startUDPBulb(t, "discovery", `{"ok":true}`)
	prober := &UDPBulbProber{Ports: []int{port}, Messages: udpBulbMessages, Timeout: 150 * time.Millisecond}

	start := time.Now()
	_, err := prober.Probe(context.Background(), "127.0.0.1")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUDPBulbProberRejectsInvalidAddress(t *testing.T) {
	_, err := NewUDPBulbProber(time.Second).Probe(context.Background(), "not-an-ip")
	assert.Error(t, err)
}

func TestNudgerSeesLoopbackResponder(t *testing.T) {
	conn, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer conn.Close()
	go func() {
		buf := make([]byte, 16)
		n, addr, err := conn.ReadFrom(buf)
		if err == nil {
			_, _ = conn.WriteTo(buf[:n], addr)
		}
	}()

	nudger := &Nudger{Port: conn.LocalAddr().(*net.UDPAddr).Port, Timeout: time.Second}
	assert.True(t, nudger.Alive(context.Background(), "127.0.0.1"))
}

func TestNudgerGivesUpOnSilence(t *testing.T) {
	silent, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer silent.Close()

	nudger := &Nudger{Port: silent.LocalAddr().(*net.UDPAddr).Port, Timeout: 100 * time.Millisecond}
	assert.False(t, nudger.Alive(context.Background(), "127.0.0.1"))
}

func TestNudgerCountsPortUnreachableAsAlive(t *testing.T) {
	closed, err := net.ListenPacket("udp4", "127.0.0.1:0")
	require.NoError(t, err)
	port := closed.LocalAddr().(*net.UDPAddr).Port
	require.NoError(t, closed.Close())

	nudger := &Nudger{Port: port, Timeout: time.Second}
	assert.True(t, nudger.Alive(context.Background(), "127.0.0.1"))
}

package probe

import (
	"context"
	"errors"
	"net"
	"strconv"
	"syscall"
	"time"
)

const (
	discardPort         = 9
	defaultNudgeTimeout = 300 * time.Millisecond
)

// Nudger checks whether an address is alive by sending one UDP datagram to
// a port that is normally closed. A live host answers with ICMP port
// unreachable, which a connected UDP socket surfaces as ECONNREFUSED. The
// send alone makes the kernel resolve the address, so hosts that drop ICMP
// still end up in the neighbour table.
type Nudger struct {
	Port    int
	Timeout time.Duration
}

func NewNudger(timeout time.Duration) *Nudger {
	return &Nudger{Port: discardPort, Timeout: timeout}
}

// Alive reports whether ip answered within the timeout.
func (n *Nudger) Alive(ctx context.Context, ip string) bool {
	ctx, cancel := withTimeout(ctx, n.Timeout, defaultNudgeTimeout)
	defer cancel()

	port := n.Port
	if port <= 0 {
		port = discardPort
	}
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "udp", net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil {
		return false
	}
	defer conn.Close()
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte{0}); err != nil {
		return errors.Is(err, syscall.ECONNREFUSED)
	}
	buf := make([]byte, 64)
	_, err = conn.Read(buf)
	return err == nil || errors.Is(err, syscall.ECONNREFUSED)
}

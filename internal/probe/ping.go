package probe

import (
	"context"
	"errors"
	"runtime"
	"strconv"
	"time"

	ping "github.com/go-ping/ping"
)

// PingProber confirms presence with ICMP echo. It never yields a name; a
// reply only proves the address is alive.
type PingProber struct {
	Count   int
	Timeout time.Duration
}

func NewPingProber(timeout time.Duration) *PingProber {
	return &PingProber{Count: 1, Timeout: timeout}
}

func (p *PingProber) Protocol() Protocol { return ProtocolPing }

func (p *PingProber) Probe(ctx context.Context, ip string) (Finding, error) {
	ctx, cancel := withTimeout(ctx, p.Timeout, time.Second)
	defer cancel()

	pinger, err := ping.NewPinger(ip)
	if err != nil {
		return Finding{}, err
	}
	pinger.SetPrivileged(runtime.GOOS == "windows")
	pinger.Count = p.Count
	if pinger.Count <= 0 {
		pinger.Count = 1
	}
	if deadline, ok := ctx.Deadline(); ok {
		pinger.Timeout = time.Until(deadline)
	}

	done := make(chan error, 1)
	go func() {
		done <- pinger.Run()
	}()

	select {
	case <-ctx.Done():
		pinger.Stop()
		<-done
		return Finding{}, ctx.Err()
	case err := <-done:
		if err != nil {
			return Finding{}, err
		}
	}

	stats := pinger.Statistics()
	if stats.PacketsRecv == 0 {
		return Finding{}, errors.New("no echo reply")
	}
	return Finding{Metadata: map[string]string{
		"rtt_ms": strconv.FormatFloat(stats.AvgRtt.Seconds()*1000, 'f', 2, 64),
	}}, nil
}

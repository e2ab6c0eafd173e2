package probe

import (
	"context"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/miekg/dns"
)

const (
	defaultReverseTimeout = 1500 * time.Millisecond
	mdnsPort              = 5353
)

// ReverseResolver maps an IP to a hostname. The system resolver is asked
// first; hosts without a PTR record there are asked directly on their
// multicast DNS port, which most mDNS responders answer unicast.
type ReverseResolver struct {
	Timeout   time.Duration
	MDNSPort  int
	Resolver  *net.Resolver
	lookupPTR func(ctx context.Context, ip string) ([]string, error)
}

func NewReverseResolver(timeout time.Duration) *ReverseResolver {
	return &ReverseResolver{Timeout: timeout, MDNSPort: mdnsPort, Resolver: &net.Resolver{PreferGo: false}}
}

func (r *ReverseResolver) Protocol() Protocol { return ProtocolReverseDNS }

// ReverseLookup returns the first hostname found for ip. Any resolver
// error or empty answer is reported as not found.
func (r *ReverseResolver) ReverseLookup(ctx context.Context, ip string) (string, bool) {
	ctx, cancel := withTimeout(ctx, r.Timeout, defaultReverseTimeout)
	defer cancel()

	if name, ok := r.systemLookup(ctx, ip); ok {
		return name, true
	}
	if ctx.Err() != nil {
		return "", false
	}
	return r.multicastLookup(ctx, ip)
}

func (r *ReverseResolver) Probe(ctx context.Context, ip string) (Finding, error) {
	name, ok := r.ReverseLookup(ctx, ip)
	if !ok {
		if err := ctx.Err(); err != nil {
			return Finding{}, err
		}
		return Finding{}, ErrNoMatch
	}
	return Finding{Name: name, Metadata: map[string]string{"hostname": name}}, nil
}

func (r *ReverseResolver) systemLookup(ctx context.Context, ip string) (string, bool) {
	lookup := r.lookupPTR
	if lookup == nil {
		resolver := r.Resolver
		if resolver == nil {
			resolver = net.DefaultResolver
		}
		lookup = resolver.LookupAddr
	}
	names, err := lookup(ctx, ip)
	if err != nil {
		return "", false
	}
	return firstHostname(ip, names)
}

func (r *ReverseResolver) multicastLookup(ctx context.Context, ip string) (string, bool) {
	arpa, err := dns.ReverseAddr(ip)
	if err != nil {
		return "", false
	}
	msg := new(dns.Msg)
	msg.SetQuestion(arpa, dns.TypePTR)
	msg.RecursionDesired = false

	port := r.MDNSPort
	if port == 0 {
		port = mdnsPort
	}
	client := &dns.Client{Net: "udp"}
	if deadline, ok := ctx.Deadline(); ok {
		client.Timeout = time.Until(deadline)
	}
	resp, _, err := client.ExchangeContext(ctx, msg, net.JoinHostPort(ip, strconv.Itoa(port)))
	if err != nil || resp == nil {
		return "", false
	}
	var names []string
	for _, rr := range resp.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			names = append(names, ptr.Ptr)
		}
	}
	return firstHostname(ip, names)
}

func firstHostname(ip string, names []string) (string, bool) {
	for _, name := range names {
		name = strings.TrimSuffix(strings.TrimSpace(name), ".")
		if name == "" || name == ip {
			continue
		}
		return name, true
	}
	return "", false
}

// ReverseLookup is the one-shot form of ReverseResolver.
func ReverseLookup(ctx context.Context, ip string) (string, bool) {
	return NewReverseResolver(defaultReverseTimeout).ReverseLookup(ctx, ip)
}

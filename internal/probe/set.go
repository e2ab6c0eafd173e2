package probe

import (
	"time"
)

// Options selects and tunes the IP-targeted probes.
type Options struct {
	HTTPTimeout       time.Duration
	VendorTimeout     time.Duration
	ReverseDNSTimeout time.Duration
	SMBTimeout        time.Duration
	Ping              bool
	// Enabled restricts the set to the named protocols; empty means all.
	Enabled []string
}

// Build returns the IP-targeted probes described by opts, in a fixed order.
func Build(opts Options) []Prober {
	all := []Prober{
		NewReverseResolver(opts.ReverseDNSTimeout),
		NewHTTPProber(opts.HTTPTimeout),
		NewUPnPProber(opts.HTTPTimeout),
		NewHueProber(opts.VendorTimeout),
		NewKasaProber(opts.VendorTimeout),
		NewTuyaProber(opts.VendorTimeout),
		NewBulbProber(opts.VendorTimeout),
		NewUDPBulbProber(opts.VendorTimeout),
		NewAirPlayProber(opts.VendorTimeout),
		NewSMBProber(opts.SMBTimeout),
	}
	if opts.Ping {
		all = append(all, NewPingProber(opts.VendorTimeout))
	}
	if len(opts.Enabled) == 0 {
		return all
	}

	enabled := make(map[Protocol]bool, len(opts.Enabled))
	for _, name := range opts.Enabled {
		enabled[Protocol(name)] = true
	}
	var out []Prober
	for _, p := range all {
		if enabled[p.Protocol()] {
			out = append(out, p)
		}
	}
	return out
}

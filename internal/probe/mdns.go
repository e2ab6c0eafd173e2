package probe

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"lanscan/internal/logging"
)

// DefaultMDNSServices is the service catalogue browsed on every scan.
var DefaultMDNSServices = []string{
	"_device-info._tcp",
	"_airplay._tcp",
	"_googlecast._tcp",
	"_homekit._tcp",
	"_workstation._tcp",
	"_http._tcp",
	"_https._tcp",
	"_hap._tcp",
	"_raop._tcp",
	"_ipp._tcp",
	"_printer._tcp",
	"_pdl-datastream._tcp",
	"_smb._tcp",
	"_afpovertcp._tcp",
	"_ssh._tcp",
	"_sftp-ssh._tcp",
	"_companion-link._tcp",
	"_spotify-connect._tcp",
	"_sonos._tcp",
	"_hue._tcp",
	"_matter._tcp",
	"_miio._udp",
	"_esphomelib._tcp",
	"_axis-video._tcp",
}

var mdnsTXTKeys = map[string]string{
	"md":           "model",
	"model":        "model",
	"fn":           "friendly_name",
	"manufacturer": "manufacturer",
	"mf":           "manufacturer",
	"vendor":       "manufacturer",
}

// MDNSRecord aggregates everything advertised for one address.
type MDNSRecord struct {
	Name     string
	Hostname string
	Services []string
	Metadata map[string]string
}

type serviceBrowser interface {
	Browse(ctx context.Context, service, domain string, entries chan<- *zeroconf.ServiceEntry) error
}

// MDNSBrowser runs one independent multicast listener per service type.
type MDNSBrowser struct {
	Services []string
	Timeout  time.Duration
	Log      logging.Logger

	newBrowser func() (serviceBrowser, error)
}

func NewMDNSBrowser(services []string, timeout time.Duration, log logging.Logger) *MDNSBrowser {
	if len(services) == 0 {
		services = DefaultMDNSServices
	}
	if log == nil {
		log = logging.Nop()
	}
	return &MDNSBrowser{Services: services, Timeout: timeout, Log: log}
}

// DiscoverMDNS browses catalogue for timeout and returns the records keyed by IP.
func DiscoverMDNS(ctx context.Context, catalogue []string, timeout time.Duration) map[string]MDNSRecord {
	return NewMDNSBrowser(catalogue, timeout, nil).Discover(ctx)
}

// Discover listens until the timeout (or ctx) expires. Listeners that cannot
// bind are dropped; the result is whatever the others saw.
func (b *MDNSBrowser) Discover(ctx context.Context) map[string]MDNSRecord {
	ctx, cancel := withTimeout(ctx, b.Timeout, 3*time.Second)
	defer cancel()

	newBrowser := b.newBrowser
	if newBrowser == nil {
		newBrowser = func() (serviceBrowser, error) { return zeroconf.NewResolver(nil) }
	}

	collector := &mdnsCollector{records: make(map[string]*MDNSRecord)}
	var wg sync.WaitGroup
	for _, service := range b.Services {
		wg.Add(1)
		go func(service string) {
			defer wg.Done()
			b.listen(ctx, newBrowser, service, collector)
		}(service)
	}
	wg.Wait()

	return collector.snapshot()
}

func (b *MDNSBrowser) listen(ctx context.Context, newBrowser func() (serviceBrowser, error), service string, collector *mdnsCollector) {
	browser, err := newBrowser()
	if err != nil {
		b.Log.Debug(logging.CategoryMDNSDiscovery, "listener unavailable", zap.String("service", service), zap.Error(err))
		return
	}
	entries := make(chan *zeroconf.ServiceEntry, 16)
	if err := browser.Browse(ctx, service, "local.", entries); err != nil {
		b.Log.Debug(logging.CategoryMDNSDiscovery, "browse failed", zap.String("service", service), zap.Error(err))
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			if entry != nil {
				collector.add(service, entry)
			}
		}
	}
}

type mdnsCollector struct {
	mu      sync.Mutex
	records map[string]*MDNSRecord
}

func (c *mdnsCollector) add(service string, entry *zeroconf.ServiceEntry) {
	addresses := entryAddresses(entry)
	if len(addresses) == 0 {
		return
	}
	name := CleanDeviceName(entry.Instance)
	hostname := NameFromMDNS(entry.HostName)
	if name == "" {
		name = hostname
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ip := range addresses {
		record, ok := c.records[ip]
		if !ok {
			record = &MDNSRecord{Metadata: map[string]string{}}
			c.records[ip] = record
		}
		if record.Name == "" {
			record.Name = name
		}
		if record.Hostname == "" {
			record.Hostname = hostname
		}
		if !containsString(record.Services, service) {
			record.Services = append(record.Services, service)
		}
		for _, txt := range entry.Text {
			key, value, found := strings.Cut(txt, "=")
			if !found || value == "" {
				continue
			}
			if field, known := mdnsTXTKeys[strings.ToLower(key)]; known {
				if _, set := record.Metadata[field]; !set {
					record.Metadata[field] = value
				}
			}
		}
	}
}

func (c *mdnsCollector) snapshot() map[string]MDNSRecord {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]MDNSRecord, len(c.records))
	for ip, record := range c.records {
		services := append([]string(nil), record.Services...)
		sort.Strings(services)
		out[ip] = MDNSRecord{Name: record.Name, Hostname: record.Hostname, Services: services, Metadata: record.Metadata}
	}
	return out
}

// entryAddresses returns the typed A/AAAA addresses of an entry. Only when
// there are none does it fall back to an IP embedded in the advertised names.
func entryAddresses(entry *zeroconf.ServiceEntry) []string {
	var out []string
	for _, ip := range entry.AddrIPv4 {
		out = append(out, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		if ip.IsLinkLocalUnicast() {
			continue
		}
		out = append(out, ip.String())
	}
	if len(out) > 0 {
		return out
	}
	for _, candidate := range []string{entry.HostName, entry.Instance} {
		if ip, ok := ExtractIPFromHostname(candidate); ok {
			return []string{ip}
		}
	}
	return nil
}

func containsString(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}

package scan

import (
	"context"
	"errors"
	"net"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"lanscan/internal/logging"
	"lanscan/internal/netinfo"
	"lanscan/internal/overrides"
	"lanscan/internal/probe"
)

const (
	defaultMaxInFlight = 64
	defaultScanTimeout = 15 * time.Second
	defaultLiveness    = 300 * time.Millisecond
	neighborGrace      = 250 * time.Millisecond
)

// MDNSSource browses multicast DNS once per scan.
type MDNSSource interface {
	Discover(ctx context.Context) map[string]probe.MDNSRecord
}

// LivenessCheck reports whether an address answered a reachability check.
type LivenessCheck func(ctx context.Context, ip string) bool

// Options bounds a discovery pass.
type Options struct {
	MaxInFlight     int
	ScanTimeout     time.Duration
	LivenessTimeout time.Duration
}

// Option customises an Engine.
type Option func(*Engine)

func WithProbers(probers ...probe.Prober) Option {
	return func(e *Engine) { e.probers = probers }
}

func WithMDNS(source MDNSSource) Option {
	return func(e *Engine) { e.mdns = source }
}

func WithGatewayStrategy(strategy netinfo.GatewayStrategy) Option {
	return func(e *Engine) { e.gateway = strategy }
}

func WithInterfaceLister(list func() ([]netinfo.NetworkInterfaceInfo, error)) Option {
	return func(e *Engine) { e.listInterfaces = list }
}

func WithNeighborReader(read netinfo.NeighborReader) Option {
	return func(e *Engine) { e.neighbors = read }
}

// WithLivenessCheck replaces the reachability sweep run before name probes.
// A nil check disables the sweep unless ping probes are configured.
func WithLivenessCheck(check LivenessCheck) Option {
	return func(e *Engine) { e.liveness = check }
}

// WithOverrides relabels discovered devices from an already loaded lookup.
func WithOverrides(lookup overrides.Lookup) Option {
	return func(e *Engine) { e.overrides = lookup }
}

// WithOverridesFile loads the override file at the start of every pass.
func WithOverridesFile(path string) Option {
	return func(e *Engine) { e.overridesFile = path }
}

// WithStatusHandler receives progress on every state change and probe completion.
func WithStatusHandler(handler func(Progress)) Option {
	return func(e *Engine) { e.statusHandler = handler }
}

// Engine runs discovery passes: it resolves the scan scope, fans probes out
// under a concurrency limit and folds their results into a device inventory.
type Engine struct {
	log  logging.Logger
	opts Options

	probers        []probe.Prober
	mdns           MDNSSource
	gateway        netinfo.GatewayStrategy
	listInterfaces func() ([]netinfo.NetworkInterfaceInfo, error)
	neighbors      netinfo.NeighborReader
	liveness       LivenessCheck
	overrides      overrides.Lookup
	overridesFile  string
	statusHandler  func(Progress)

	mu       sync.Mutex
	running  bool
	pass     uint64
	progress Progress
}

// NewEngine creates an engine. The logger is required; everything else has
// a platform default.
func NewEngine(log logging.Logger, opts Options, options ...Option) *Engine {
	if log == nil {
		log = logging.Nop()
	}
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = defaultMaxInFlight
	}
	if opts.ScanTimeout <= 0 {
		opts.ScanTimeout = defaultScanTimeout
	}
	if opts.LivenessTimeout <= 0 {
		opts.LivenessTimeout = defaultLiveness
	}
	e := &Engine{
		log:            log,
		opts:           opts,
		probers:        probe.Build(probe.Options{}),
		mdns:           probe.NewMDNSBrowser(nil, 3*time.Second, log),
		gateway:        netinfo.StrategyFor(runtime.GOOS),
		listInterfaces: netinfo.ListInterfaces,
		neighbors:      netinfo.ReadNeighbors,
		liveness:       probe.NewNudger(opts.LivenessTimeout).Alive,
	}
	for _, option := range options {
		option(e)
	}
	return e
}

// Progress returns the state of the current or last pass.
func (e *Engine) Progress() Progress {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.progress
}

type scanScope struct {
	subnet  string
	targets []string
}

// Discover runs one best-effort pass. Probe failures never surface; scope
// failures are returned as warnings in the report. The only error paths are
// an invalid request, a concurrent pass, and ctx ending before any result
// was collected.
func (e *Engine) Discover(ctx context.Context, req Request) (Report, error) {
	if req.Subnet != "" {
		if _, err := netinfo.Targets(req.Subnet); err != nil {
			return Report{}, err
		}
	}

	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return Report{}, ErrScanInProgress
	}
	e.running = true
	e.pass++
	pass := e.pass
	e.progress = Progress{State: StateIdle}
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	report := Report{Started: time.Now()}
	scanCtx, cancel := context.WithTimeout(ctx, e.opts.ScanTimeout)
	defer cancel()

	scope := e.resolveScope(scanCtx, req, &report)
	report.Subnet = scope.subnet
	e.update(pass, func(p *Progress) {
		p.State = StateScopeResolved
		p.Targets = len(scope.targets)
	})
	e.log.Info(logging.CategoryNetworkScanner, "scan scope resolved",
		zap.String("subnet", scope.subnet), zap.Int("targets", len(scope.targets)), zap.Int("probes", len(e.probers)))

	results := e.dispatch(scanCtx, pass, scope)
	if len(results) == 0 && ctx.Err() != nil {
		return report, ctx.Err()
	}

	e.update(pass, func(p *Progress) { p.State = StateAggregating })
	aggregator := Aggregator{Manufacturer: probe.Manufacturer}
	if report.Gateway != nil {
		aggregator.GatewayIP = report.Gateway.IP
	}
	report.Devices = e.relabel(&report, aggregator.Aggregate(results))

	e.update(pass, func(p *Progress) { p.State = StateComplete })
	report.Progress = e.Progress()
	report.Finished = time.Now()
	e.log.Info(logging.CategoryDeviceDiscovery, "scan complete",
		zap.Int("devices", len(report.Devices)), zap.Int("results", len(results)),
		zap.Duration("elapsed", report.Finished.Sub(report.Started)))
	return report, nil
}

func (e *Engine) resolveScope(ctx context.Context, req Request, report *Report) scanScope {
	interfaces, err := e.listInterfaces()
	if err != nil {
		e.log.Error(logging.CategoryNetworkScanner, err, "interface enumeration")
		report.Warnings = append(report.Warnings, &DiscoveryError{Kind: InterfaceListFailed, Op: "list interfaces", Err: err})
		interfaces = []netinfo.NetworkInterfaceInfo{}
	}

	var gatewayIP string
	gateway, err := e.gateway.Resolve(ctx)
	if err != nil {
		e.log.Warn(logging.CategoryNetworkScanner, "default gateway unavailable", zap.String("strategy", e.gateway.Name()), zap.Error(err))
		report.Warnings = append(report.Warnings, &DiscoveryError{Kind: GatewayNotFound, Op: e.gateway.Name(), Err: err})
	} else {
		report.Gateway = &gateway
		gatewayIP = gateway.IP
	}
	netinfo.MarkPrimary(interfaces, runtime.GOOS, gatewayIP)
	report.Interfaces = interfaces

	var local []string
	for _, iface := range interfaces {
		if iface.IPv4 != "" {
			local = append(local, iface.IPv4)
		}
	}

	subnet := req.Subnet
	if subnet == "" {
		if primary, ok := netinfo.Primary(interfaces); ok {
			if scope, err := netinfo.ScopeFor(primary); err == nil {
				subnet = scope
			}
		}
	}
	if subnet == "" {
		return scanScope{}
	}
	targets, err := netinfo.Targets(subnet, local...)
	if err != nil {
		e.log.Error(logging.CategoryNetworkScanner, err, "target expansion")
		return scanScope{subnet: subnet}
	}
	return scanScope{subnet: subnet, targets: targets}
}

// dispatch starts the mDNS listeners once, sweeps every target for
// liveness and then sends every name probe to the live addresses, at most
// MaxInFlight at a time. It collects results until all probes returned or
// ctx expired. Late results are dropped.
func (e *Engine) dispatch(ctx context.Context, pass uint64, scope scanScope) []ProbeResult {
	results := make(chan ProbeResult, 64)
	finished := make(chan struct{})
	sem := semaphore.NewWeighted(int64(e.opts.MaxInFlight))
	e.update(pass, func(p *Progress) { p.State = StateProbesDispatched })

	var pingers, namers []probe.Prober
	for _, prober := range e.probers {
		if prober.Protocol() == probe.ProtocolPing {
			pingers = append(pingers, prober)
		} else {
			namers = append(namers, prober)
		}
	}

	go func() {
		defer close(finished)
		var wg sync.WaitGroup
		if e.mdns != nil {
			wg.Add(1)
			go func() {
				defer wg.Done()
				e.runMDNS(ctx, scope, results)
			}()
		}

		live := e.sweep(ctx, pass, sem, scope, pingers, results)

		// Probe-major: each probe type reaches every live address before the
		// next type starts.
	Probers:
		for _, prober := range namers {
			for _, ip := range live {
				if err := sem.Acquire(ctx, 1); err != nil {
					break Probers
				}
				e.update(pass, func(p *Progress) { p.Dispatched++ })
				wg.Add(1)
				go func(prober probe.Prober, ip string) {
					defer wg.Done()
					defer sem.Release(1)
					e.runProbe(ctx, pass, prober, ip, results)
				}(prober, ip)
			}
		}
		wg.Wait()
	}()

	var collected []ProbeResult
Collect:
	for {
		select {
		case r := <-results:
			collected = append(collected, r)
		case <-finished:
			break Collect
		case <-ctx.Done():
			e.log.Debug(logging.CategoryNetworkScanner, "scan deadline reached, abandoning outstanding probes")
			break Collect
		}
	}
Drain:
	for {
		select {
		case r := <-results:
			collected = append(collected, r)
		default:
			break Drain
		}
	}

	return append(collected, e.neighborResults(ctx, scope, collected)...)
}

// sweep runs the liveness check and any ping probes against every target,
// then adds in-scope neighbour table entries. It returns the targets that
// showed any sign of life, in target order. Without a neighbour table the
// sweep cannot see hosts that drop ICMP, so every target is returned.
func (e *Engine) sweep(ctx context.Context, pass uint64, sem *semaphore.Weighted, scope scanScope, pingers []probe.Prober, results chan<- ProbeResult) []string {
	if e.liveness == nil && len(pingers) == 0 {
		return scope.targets
	}

	var (
		mu    sync.Mutex
		alive = make(map[string]bool)
		wg    sync.WaitGroup
	)
	mark := func(ip string) {
		mu.Lock()
		alive[ip] = true
		mu.Unlock()
	}
	acquire := func() bool {
		if err := sem.Acquire(ctx, 1); err != nil {
			return false
		}
		e.update(pass, func(p *Progress) { p.Dispatched++ })
		wg.Add(1)
		return true
	}

Targets:
	for _, ip := range scope.targets {
		if e.liveness != nil {
			if !acquire() {
				break Targets
			}
			go func(ip string) {
				defer wg.Done()
				defer sem.Release(1)
				ok := e.liveness(ctx, ip)
				e.update(pass, func(p *Progress) { p.Completed++ })
				if ok {
					mark(ip)
				}
			}(ip)
		}
		for _, prober := range pingers {
			if !acquire() {
				break Targets
			}
			go func(prober probe.Prober, ip string) {
				defer wg.Done()
				defer sem.Release(1)
				if e.runProbe(ctx, pass, prober, ip, results) {
					mark(ip)
				}
			}(prober, ip)
		}
	}
	wg.Wait()
	if ctx.Err() != nil {
		return nil
	}

	if e.neighbors != nil {
		table, err := e.neighbors(ctx)
		if err != nil {
			e.log.Debug(logging.CategoryARPScan, "neighbour table unavailable, probing every target", zap.Error(err))
			return scope.targets
		}
		for ip, mac := range table {
			if netinfo.UsableMAC(netinfo.NormaliseMAC(mac)) && netinfo.InScope(scope.subnet, ip) {
				mark(ip)
			}
		}
	}

	live := make([]string, 0, len(alive))
	for _, ip := range scope.targets {
		if alive[ip] {
			live = append(live, ip)
		}
	}
	e.log.Info(logging.CategoryNetworkScanner, "liveness sweep finished",
		zap.Int("targets", len(scope.targets)), zap.Int("live", len(live)))
	return live
}

// runProbe reports whether the probe produced a finding.
func (e *Engine) runProbe(ctx context.Context, pass uint64, prober probe.Prober, ip string, results chan<- ProbeResult) bool {
	finding, err := prober.Probe(ctx, ip)
	e.update(pass, func(p *Progress) { p.Completed++ })
	if err != nil {
		e.log.Debug(categoryFor(prober.Protocol()), "probe dropped",
			zap.String("protocol", string(prober.Protocol())),
			zap.String("ip", ip),
			zap.Stringer("kind", ClassifyProbeError(err)),
			zap.Error(err))
		return false
	}
	result := resultFromFinding(prober.Protocol(), ip, finding)
	select {
	case results <- result:
		return true
	case <-ctx.Done():
		return false
	}
}

func (e *Engine) runMDNS(ctx context.Context, scope scanScope, results chan<- ProbeResult) {
	records := e.mdns.Discover(ctx)
	e.log.Info(logging.CategoryMDNSDiscovery, "mdns browse finished", zap.Int("hosts", len(records)))
	now := time.Now()
	for ip, record := range records {
		if parsed := net.ParseIP(ip); parsed == nil || parsed.To4() == nil {
			continue
		}
		if scope.subnet != "" && !netinfo.InScope(scope.subnet, ip) {
			continue
		}
		result := ProbeResult{
			Protocol: probe.ProtocolMDNS,
			IP:       ip,
			Name:     record.Name,
			Hostname: record.Hostname,
			Services: record.Services,
			Metadata: record.Metadata,
			SeenAt:   now,
		}
		select {
		case results <- result:
		case <-ctx.Done():
			return
		}
	}
}

// neighborResults turns the kernel neighbour table into MAC facts for
// addresses in scope (or, without a scope, addresses already seen).
func (e *Engine) neighborResults(ctx context.Context, scope scanScope, seen []ProbeResult) []ProbeResult {
	if e.neighbors == nil {
		return nil
	}
	readCtx := ctx
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(context.WithoutCancel(ctx), neighborGrace)
		defer cancel()
	}
	table, err := e.neighbors(readCtx)
	if err != nil {
		e.log.Debug(logging.CategoryARPScan, "neighbour table unavailable", zap.Error(err))
		return nil
	}

	known := make(map[string]bool, len(seen))
	for _, r := range seen {
		known[r.IP] = true
	}
	now := time.Now()
	var out []ProbeResult
	for ip, mac := range table {
		if scope.subnet != "" && !netinfo.InScope(scope.subnet, ip) {
			continue
		}
		if scope.subnet == "" && !known[ip] {
			continue
		}
		out = append(out, ProbeResult{Protocol: probe.ProtocolARP, IP: ip, MAC: mac, SeenAt: now})
	}
	e.log.Debug(logging.CategoryARPScan, "neighbour entries merged", zap.Int("entries", len(out)))
	return out
}

func (e *Engine) relabel(report *Report, devices []DiscoveredDevice) []DiscoveredDevice {
	lookup := e.overrides
	if e.overridesFile != "" {
		loaded, err := overrides.Load(e.overridesFile)
		switch {
		case errors.Is(err, overrides.ErrNotFound):
			e.log.Debug(logging.CategoryConfiguration, "override file not found", zap.String("path", e.overridesFile))
			report.Warnings = append(report.Warnings, &DiscoveryError{Kind: ConfigFileMissing, Op: "load overrides", Target: e.overridesFile, Err: err})
		case err != nil:
			e.log.Error(logging.CategoryConfiguration, err, "load overrides")
			report.Warnings = append(report.Warnings, &DiscoveryError{Kind: ConfigFileInvalid, Op: "load overrides", Target: e.overridesFile, Err: err})
		default:
			lookup = loaded
		}
	}
	if lookup.Len() == 0 {
		return devices
	}
	for i := range devices {
		entry, ok := lookup.Lookup(devices[i].MACAddress)
		if !ok {
			continue
		}
		devices[i].Name = entry.Label()
		devices[i].Room = entry.Room
		if entry.DeviceType != "" {
			devices[i].DeviceType = entry.DeviceType
		}
	}
	return devices
}

// update applies mutate to the progress of the given pass. Probes abandoned
// at a deadline finish after their pass is over; their updates are dropped.
func (e *Engine) update(pass uint64, mutate func(*Progress)) {
	e.mu.Lock()
	if pass != e.pass || !e.running || e.progress.State == StateComplete {
		e.mu.Unlock()
		return
	}
	mutate(&e.progress)
	progress := e.progress
	e.mu.Unlock()
	if handler := e.statusHandler; handler != nil {
		handler(progress)
	}
}

func resultFromFinding(protocol probe.Protocol, ip string, finding probe.Finding) ProbeResult {
	result := ProbeResult{
		Protocol: protocol,
		IP:       ip,
		MAC:      finding.MAC,
		Name:     finding.Name,
		Services: finding.Services,
		Metadata: finding.Metadata,
		Vendor:   finding.Vendor,
		SeenAt:   time.Now(),
	}
	if finding.Port > 0 {
		result.Ports = []int{finding.Port}
	}
	switch protocol {
	case probe.ProtocolReverseDNS, probe.ProtocolSMB:
		result.Hostname = finding.Name
	}
	return result
}

func categoryFor(protocol probe.Protocol) logging.Category {
	switch {
	case protocol.IsVendor():
		return logging.CategoryVendorDetection
	case protocol == probe.ProtocolReverseDNS:
		return logging.CategoryDNSLookup
	case protocol == probe.ProtocolMDNS:
		return logging.CategoryMDNSDiscovery
	case protocol == probe.ProtocolARP:
		return logging.CategoryARPScan
	case protocol == probe.ProtocolPing:
		return logging.CategoryNetworkScanner
	default:
		return logging.CategorySmartDeviceProbe
	}
}

package scan

import (
	"errors"
	"fmt"
	"time"

	"lanscan/internal/netinfo"
	"lanscan/internal/probe"
)

// State is the lifecycle position of a discovery pass.
type State int

const (
	StateIdle State = iota
	StateScopeResolved
	StateProbesDispatched
	StateAggregating
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScopeResolved:
		return "scope_resolved"
	case StateProbesDispatched:
		return "probes_dispatched"
	case StateAggregating:
		return "aggregating"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(text []byte) error {
	for candidate := StateIdle; candidate <= StateComplete; candidate++ {
		if candidate.String() == string(text) {
			*s = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown scan state %q", text)
}

// ProbeResult is one protocol's transient finding about one address. It is
// only ever consumed by the Aggregator.
type ProbeResult struct {
	Protocol probe.Protocol
	IP       string
	MAC      string
	Name     string
	Hostname string
	Services []string
	Ports    []int
	Metadata map[string]string
	// Vendor marks a successful vendor handshake.
	Vendor bool
	SeenAt time.Time
}

// DiscoveredDevice is the merged view of one physical device.
type DiscoveredDevice struct {
	ID           string    `json:"id"`
	IP           string    `json:"ip"`
	Addresses    []string  `json:"addresses,omitempty"`
	MACAddress   string    `json:"mac_address,omitempty"`
	Name         string    `json:"name,omitempty"`
	Hostname     string    `json:"hostname,omitempty"`
	DeviceType   string    `json:"device_type"`
	Ports        []int     `json:"ports,omitempty"`
	Services     []string  `json:"services,omitempty"`
	Sources      []string  `json:"sources,omitempty"`
	Manufacturer string    `json:"manufacturer,omitempty"`
	Model        string    `json:"model,omitempty"`
	Room         string    `json:"room,omitempty"`
	IsGateway    bool      `json:"is_gateway,omitempty"`
	IsIoTDevice  bool      `json:"is_iot_device"`
	LastSeen     time.Time `json:"last_seen"`
}

// LocalNetworkDevice is the name consumers of the inventory use for a device.
type LocalNetworkDevice = DiscoveredDevice

// DisplayName falls back from the resolved name to the hostname and the IP.
func (d DiscoveredDevice) DisplayName() string {
	switch {
	case d.Name != "":
		return d.Name
	case d.Hostname != "":
		return d.Hostname
	default:
		return d.IP
	}
}

// Request narrows a discovery pass.
type Request struct {
	// Subnet overrides the scope derived from the primary interface.
	Subnet string
}

// Progress summarises a running pass.
type Progress struct {
	State      State `json:"state"`
	Targets    int   `json:"targets"`
	Dispatched int   `json:"dispatched"`
	Completed  int   `json:"completed"`
}

// Report is the outcome of one discovery pass.
type Report struct {
	Subnet     string                         `json:"subnet,omitempty"`
	Interfaces []netinfo.NetworkInterfaceInfo `json:"interfaces"`
	Gateway    *netinfo.DefaultGateway        `json:"gateway,omitempty"`
	Devices    []DiscoveredDevice             `json:"devices"`
	Warnings   []*DiscoveryError              `json:"warnings,omitempty"`
	Progress   Progress                       `json:"progress"`
	Started    time.Time                      `json:"started"`
	Finished   time.Time                      `json:"finished"`
}

// ErrScanInProgress indicates a discovery pass is already running on the engine.
var ErrScanInProgress = errors.New("scan already in progress")

// Package netview builds the lightweight environment snapshot: the host's
// connected interfaces plus Wi-Fi networks it can see but is not joined to.
package netview

import (
	"encoding/json"
	"strings"

	"lanscan/internal/netinfo"
)

// Kind discriminates the two variants of UnifiedNetworkItem.
type Kind string

const (
	KindConnected Kind = "connected_interface"
	KindHotspot   Kind = "available_wifi_hotspot"
)

// Category is derived locally by Classify and never accepted from input.
type Category string

const (
	CategoryWired       Category = "wired"
	CategoryWireless    Category = "wireless"
	CategoryVirtual     Category = "virtual"
	CategoryOpenWifi    Category = "open_wifi"
	CategorySecuredWifi Category = "secured_wifi"
)

// ConnectedInterface is a local interface with addressing.
type ConnectedInterface struct {
	IPv4      string `json:"ipv4,omitempty"`
	IPv6      string `json:"ipv6,omitempty"`
	CIDR      string `json:"cidr,omitempty"`
	Network   string `json:"network,omitempty"`
	Broadcast string `json:"broadcast,omitempty"`
	Gateway   bool   `json:"gateway,omitempty"`
}

// AvailableWifiHotspot is a visible network the host is not associated with.
type AvailableWifiHotspot struct {
	SSID     string `json:"ssid"`
	Channel  int    `json:"channel,omitempty"`
	Signal   int    `json:"signal"`
	Security string `json:"security,omitempty"`
}

// UnifiedNetworkItem is a tagged union; exactly one of Connected or Hotspot
// is set, matching Kind.
type UnifiedNetworkItem struct {
	Kind        Kind                  `json:"kind"`
	ID          string                `json:"id"`
	DisplayName string                `json:"display_name"`
	MACAddress  string                `json:"mac_address,omitempty"`
	BSSID       string                `json:"bssid,omitempty"`
	Category    Category              `json:"category,omitempty"`
	Connected   *ConnectedInterface   `json:"connected,omitempty"`
	Hotspot     *AvailableWifiHotspot `json:"hotspot,omitempty"`

	// IsPrimaryConnected is a UI hint and stays out of every serialisation.
	IsPrimaryConnected bool `json:"-"`
}

// UnmarshalJSON accepts every field except category.
func (i *UnifiedNetworkItem) UnmarshalJSON(data []byte) error {
	type plain UnifiedNetworkItem
	var decoded plain
	if err := json.Unmarshal(data, &decoded); err != nil {
		return err
	}
	decoded.Category = ""
	decoded.IsPrimaryConnected = false
	*i = UnifiedNetworkItem(decoded)
	return nil
}

// Classify fills Category from the item's own facts.
func (i *UnifiedNetworkItem) Classify() {
	switch i.Kind {
	case KindHotspot:
		if i.Hotspot == nil || isOpenSecurity(i.Hotspot.Security) {
			i.Category = CategoryOpenWifi
		} else {
			i.Category = CategorySecuredWifi
		}
	case KindConnected:
		name := strings.ToLower(i.DisplayName)
		switch {
		case hasAnyPrefix(name, virtualPrefixes):
			i.Category = CategoryVirtual
		case hasAnyPrefix(name, wirelessPrefixes) || strings.Contains(name, "wi-fi") || strings.Contains(name, "wireless"):
			i.Category = CategoryWireless
		default:
			i.Category = CategoryWired
		}
	}
}

var virtualPrefixes = []string{"docker", "br-", "veth", "virbr", "vmnet", "vboxnet", "tun", "tap", "utun", "wg", "tailscale", "zt", "lxc", "cni", "flannel", "vethernet"}

var wirelessPrefixes = []string{"wlan", "wlp", "wlx", "wifi", "ath"}

func hasAnyPrefix(name string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(name, prefix) {
			return true
		}
	}
	return false
}

func isOpenSecurity(security string) bool {
	s := strings.TrimSpace(strings.ToLower(security))
	return s == "" || s == "--" || s == "open" || s == "none"
}

func connectedItem(info netinfo.NetworkInterfaceInfo, gatewayIface string) UnifiedNetworkItem {
	item := UnifiedNetworkItem{
		Kind:        KindConnected,
		ID:          "if:" + info.Name,
		DisplayName: info.Name,
		MACAddress:  info.MACAddress,
		Connected: &ConnectedInterface{
			IPv4:      info.IPv4,
			IPv6:      info.IPv6,
			CIDR:      info.CIDR,
			Network:   info.Network,
			Broadcast: info.Broadcast,
			Gateway:   gatewayIface != "" && info.Name == gatewayIface,
		},
		IsPrimaryConnected: info.IsPrimary,
	}
	item.Classify()
	return item
}

func hotspotItem(network WifiNetwork) UnifiedNetworkItem {
	display := network.SSID
	if display == "" {
		display = "(hidden) " + network.BSSID
	}
	item := UnifiedNetworkItem{
		Kind:        KindHotspot,
		ID:          "wifi:" + strings.ToUpper(network.BSSID),
		DisplayName: display,
		BSSID:       strings.ToUpper(network.BSSID),
		Hotspot: &AvailableWifiHotspot{
			SSID:     network.SSID,
			Channel:  network.Channel,
			Signal:   network.Signal,
			Security: network.Security,
		},
	}
	item.Classify()
	return item
}

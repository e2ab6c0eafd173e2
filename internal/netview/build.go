package netview

import (
	"context"
	"sort"

	"lanscan/internal/netinfo"
)

// Build assembles the view: one connected item per scannable interface and
// one hotspot item per visible network the host is not associated with. A
// Wi-Fi scan failure is returned alongside the connected items, which are
// always complete.
func Build(ctx context.Context, interfaces []netinfo.NetworkInterfaceInfo, gatewayIface string, scanner WifiScanner) ([]UnifiedNetworkItem, error) {
	items := make([]UnifiedNetworkItem, 0, len(interfaces))
	for _, info := range interfaces {
		if !info.Scannable() {
			continue
		}
		items = append(items, connectedItem(info, gatewayIface))
	}
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsPrimaryConnected != items[j].IsPrimaryConnected {
			return items[i].IsPrimaryConnected
		}
		return items[i].DisplayName < items[j].DisplayName
	})

	if scanner == nil {
		return items, nil
	}
	networks, err := scanner.Scan(ctx)
	if err != nil {
		return items, err
	}
	return append(items, hotspotItems(networks)...), nil
}

func hotspotItems(networks []WifiNetwork) []UnifiedNetworkItem {
	associatedSSIDs := make(map[string]bool)
	for _, n := range networks {
		if n.InUse && n.SSID != "" {
			associatedSSIDs[n.SSID] = true
		}
	}

	strongest := make(map[string]WifiNetwork)
	for _, n := range networks {
		if n.InUse || n.BSSID == "" || associatedSSIDs[n.SSID] {
			continue
		}
		if current, ok := strongest[n.BSSID]; !ok || n.Signal > current.Signal {
			strongest[n.BSSID] = n
		}
	}

	items := make([]UnifiedNetworkItem, 0, len(strongest))
	for _, n := range strongest {
		items = append(items, hotspotItem(n))
	}
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i].Hotspot, items[j].Hotspot
		if a.Signal != b.Signal {
			return a.Signal > b.Signal
		}
		if a.SSID != b.SSID {
			return a.SSID < b.SSID
		}
		return items[i].BSSID < items[j].BSSID
	})
	return items
}

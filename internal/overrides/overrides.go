// Package overrides loads the optional MAC to friendly-name mapping used to
// relabel devices after discovery. It never influences what is discovered.
package overrides

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"lanscan/internal/netinfo"
)

// ErrNotFound is returned when the override file does not exist.
var ErrNotFound = errors.New("override file not found")

// Entry is one relabelling rule.
type Entry struct {
	MACAddress string `json:"mac_address" yaml:"mac_address"`
	DeviceName string `json:"device_name" yaml:"device_name"`
	Room       string `json:"room,omitempty" yaml:"room,omitempty"`
	DeviceType string `json:"device_type,omitempty" yaml:"device_type,omitempty"`
}

// Label renders the display name, "name (room)" when a room is set.
func (e Entry) Label() string {
	name := strings.TrimSpace(e.DeviceName)
	if room := strings.TrimSpace(e.Room); room != "" && name != "" {
		return fmt.Sprintf("%s (%s)", name, room)
	}
	return name
}

// Lookup resolves MAC addresses to override entries.
type Lookup struct {
	entries map[string]Entry
}

// New indexes entries by normalised MAC. Entries without a usable MAC or
// name are skipped; later entries win.
func New(entries []Entry) Lookup {
	index := make(map[string]Entry, len(entries))
	for _, entry := range entries {
		mac := netinfo.NormaliseMAC(entry.MACAddress)
		if mac == "" || strings.TrimSpace(entry.DeviceName) == "" {
			continue
		}
		entry.MACAddress = mac
		index[mac] = entry
	}
	return Lookup{entries: index}
}

// Lookup matches case-insensitively and ignores separator style.
func (l Lookup) Lookup(mac string) (Entry, bool) {
	if len(l.entries) == 0 {
		return Entry{}, false
	}
	entry, ok := l.entries[netinfo.NormaliseMAC(mac)]
	return entry, ok
}

// Len reports the number of usable entries.
func (l Lookup) Len() int {
	return len(l.entries)
}

// Load reads a JSON (or, by extension, YAML) override file. The file may
// hold a bare list of entries or an object with a "devices" list. A missing
// file yields an empty lookup and an error wrapping ErrNotFound.
func Load(path string) (Lookup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Lookup{}, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return Lookup{}, fmt.Errorf("read overrides: %w", err)
	}

	entries, err := decode(path, data)
	if err != nil {
		return Lookup{}, fmt.Errorf("parse overrides %s: %w", path, err)
	}
	return New(entries), nil
}

func decode(path string, data []byte) ([]Entry, error) {
	var wrapped struct {
		Devices []Entry `json:"devices" yaml:"devices"`
	}
	var list []Entry

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &list); err == nil {
			return list, nil
		}
		if err := yaml.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Devices, nil
	default:
		trimmed := strings.TrimSpace(string(data))
		if strings.HasPrefix(trimmed, "[") {
			if err := json.Unmarshal(data, &list); err != nil {
				return nil, err
			}
			return list, nil
		}
		if err := json.Unmarshal(data, &wrapped); err != nil {
			return nil, err
		}
		return wrapped.Devices, nil
	}
}

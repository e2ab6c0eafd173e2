// Package inventory persists completed discovery passes as versioned JSON
// snapshots.
package inventory

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"lanscan/internal/netinfo"
	"lanscan/internal/scan"
)

const snapshotVersion = 1

// ErrUnsupportedVersion is returned by Load for snapshots written by an
// incompatible release.
var ErrUnsupportedVersion = errors.New("unsupported snapshot version")

// Snapshot is the serialisable state of one discovery pass.
type Snapshot struct {
	GeneratedAt time.Time                      `json:"generated_at"`
	Subnet      string                         `json:"subnet,omitempty"`
	Gateway     *netinfo.DefaultGateway        `json:"gateway,omitempty"`
	Interfaces  []netinfo.NetworkInterfaceInfo `json:"interfaces"`
	Devices     []scan.DiscoveredDevice        `json:"devices"`
	Warnings    []SnapshotWarning              `json:"warnings,omitempty"`
	Progress    scan.Progress                  `json:"progress"`
	Started     time.Time                      `json:"started"`
	Finished    time.Time                      `json:"finished"`
}

// SnapshotWarning is a flattened scan.DiscoveryError.
type SnapshotWarning struct {
	Kind   scan.ErrorKind `json:"kind"`
	Op     string         `json:"op,omitempty"`
	Target string         `json:"target,omitempty"`
	Error  string         `json:"error,omitempty"`
}

type envelope struct {
	Version  int      `json:"version"`
	Snapshot Snapshot `json:"snapshot"`
}

// Save writes report to w as an indented JSON snapshot.
func Save(w io.Writer, report scan.Report) error {
	snap := Snapshot{
		GeneratedAt: time.Now().UTC(),
		Subnet:      report.Subnet,
		Gateway:     report.Gateway,
		Interfaces:  report.Interfaces,
		Devices:     report.Devices,
		Progress:    report.Progress,
		Started:     report.Started,
		Finished:    report.Finished,
	}
	for _, warning := range report.Warnings {
		if warning == nil {
			continue
		}
		item := SnapshotWarning{Kind: warning.Kind, Op: warning.Op, Target: warning.Target}
		if warning.Err != nil {
			item.Error = warning.Err.Error()
		}
		snap.Warnings = append(snap.Warnings, item)
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(envelope{Version: snapshotVersion, Snapshot: snap})
}

// Load reads a snapshot and rebuilds the report it was saved from. Warning
// causes come back as plain errors carrying the original message.
func Load(r io.Reader) (scan.Report, time.Time, error) {
	var payload envelope
	if err := json.NewDecoder(r).Decode(&payload); err != nil {
		return scan.Report{}, time.Time{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if payload.Version != snapshotVersion {
		return scan.Report{}, time.Time{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, payload.Version)
	}

	snap := payload.Snapshot
	report := scan.Report{
		Subnet:     snap.Subnet,
		Gateway:    snap.Gateway,
		Interfaces: snap.Interfaces,
		Devices:    snap.Devices,
		Progress:   snap.Progress,
		Started:    snap.Started,
		Finished:   snap.Finished,
	}
	for _, item := range snap.Warnings {
		warning := &scan.DiscoveryError{Kind: item.Kind, Op: item.Op, Target: item.Target}
		if item.Error != "" {
			warning.Err = errors.New(item.Error)
		}
		report.Warnings = append(report.Warnings, warning)
	}
	return report, snap.GeneratedAt, nil
}

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lanscan/internal/inventory"
	"lanscan/internal/logging"
	"lanscan/internal/probe"
	"lanscan/internal/scan"
)

func newScanCmd(a *app) *cobra.Command {
	var (
		asJSON  bool
		outFile string
	)
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Run one discovery pass over the local subnet",
		Long: `Run one discovery pass and print the merged device inventory.

The subnet defaults to the primary interface's network (narrowed to a /24
on very wide networks). Probe failures never abort the pass; whatever the
probes found before the deadline is reported.`,
		Example: `  # Scan the primary interface's subnet
  lanscan scan

  # Scan an explicit range with a longer deadline
  lanscan scan --subnet 192.168.1.0/24 --timeout 30s

  # Save a snapshot for later comparison
  lanscan scan --json --out inventory.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()
			return a.runScan(ctx, cmd.OutOrStdout(), asJSON, outFile)
		},
	}

	flags := cmd.Flags()
	flags.String("subnet", "", "CIDR or single IPv4 address to scan instead of the primary subnet")
	flags.Duration("timeout", 15*time.Second, "overall scan deadline")
	flags.Int("max-in-flight", 64, "maximum concurrent probe tasks")
	flags.String("overrides", "", "MAC to friendly-name override file (JSON or YAML)")
	flags.BoolVar(&asJSON, "json", false, "print the report as JSON")
	flags.StringVar(&outFile, "out", "", "write an inventory snapshot to this file")
	_ = a.v.BindPFlag("subnet", flags.Lookup("subnet"))
	_ = a.v.BindPFlag("scan_timeout", flags.Lookup("timeout"))
	_ = a.v.BindPFlag("max_in_flight", flags.Lookup("max-in-flight"))
	_ = a.v.BindPFlag("overrides_file", flags.Lookup("overrides"))
	return cmd
}

func (a *app) newEngine() *scan.Engine {
	cfg := a.cfg
	options := []scan.Option{
		scan.WithProbers(probe.Build(cfg.ProbeOptions())...),
		scan.WithMDNS(probe.NewMDNSBrowser(cfg.MDNSServices, cfg.MDNSTimeout, a.log)),
		scan.WithStatusHandler(a.statusLogger()),
	}
	if cfg.OverridesFile != "" {
		options = append(options, scan.WithOverridesFile(cfg.OverridesFile))
	}
	return scan.NewEngine(a.log, cfg.EngineOptions(), options...)
}

// statusLogger logs each state transition once. The engine calls it from
// probe goroutines.
func (a *app) statusLogger() func(scan.Progress) {
	var mu sync.Mutex
	last := scan.StateIdle
	return func(p scan.Progress) {
		mu.Lock()
		defer mu.Unlock()
		if p.State == last {
			return
		}
		last = p.State
		a.log.Debug(logging.CategorySystem, "scan state changed",
			zap.Stringer("state", p.State),
			zap.Int("targets", p.Targets),
			zap.Int("dispatched", p.Dispatched),
			zap.Int("completed", p.Completed))
	}
}

func (a *app) runScan(ctx context.Context, out io.Writer, asJSON bool, outFile string) error {
	report, err := a.newEngine().Discover(ctx, scan.Request{Subnet: a.cfg.Subnet})
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	if outFile != "" {
		if err := writeSnapshot(outFile, report); err != nil {
			return err
		}
		a.log.Info(logging.CategorySystem, "inventory snapshot written", zap.String("path", outFile))
	}

	if asJSON {
		return writeJSON(out, report)
	}
	renderReport(out, report)
	return nil
}

func writeSnapshot(path string, report scan.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := inventory.Save(f, report); err != nil {
		f.Close()
		return fmt.Errorf("write snapshot: %w", err)
	}
	return f.Close()
}

func writeJSON(out io.Writer, v any) error {
	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func renderReport(out io.Writer, report scan.Report) {
	subnet := report.Subnet
	if subnet == "" {
		subnet = "no subnet"
	}
	fmt.Fprintln(out, headingStyle.Render(fmt.Sprintf("Scanned %s in %s", subnet, report.Finished.Sub(report.Started).Round(time.Millisecond))))
	if report.Gateway != nil {
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("Gateway %s via %s", report.Gateway.IP, report.Gateway.Interface)))
	}
	for _, warning := range report.Warnings {
		fmt.Fprintln(out, warningStyle.Render("! "+warning.Error()))
	}
	fmt.Fprintln(out)

	if len(report.Devices) == 0 {
		fmt.Fprintln(out, "No devices found.")
		return
	}
	fmt.Fprintln(out, successStyle.Render(fmt.Sprintf("Found %d device(s):", len(report.Devices))))
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "IP ADDRESS\tMAC ADDRESS\tNAME\tTYPE\tMANUFACTURER\tSOURCES")
	for _, d := range report.Devices {
		mac := d.MACAddress
		if mac == "" {
			mac = "N/A"
		}
		name := d.DisplayName()
		if d.IsIoTDevice {
			name += " *"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", d.IP, mac, name, d.DeviceType, d.Manufacturer, strings.Join(d.Sources, ","))
	}
	w.Flush()
}

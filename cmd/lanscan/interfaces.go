package main

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"lanscan/internal/logging"
	"lanscan/internal/netinfo"
	"lanscan/internal/netview"
)

func newInterfacesCmd(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "interfaces",
		Short: "List local network interfaces",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, _ := a.interfaces(cmd)
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), infos)
			}
			renderInterfaces(cmd.OutOrStdout(), infos)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

// interfaces lists interfaces and marks the primary one against the gateway
// when it can be resolved.
func (a *app) interfaces(cmd *cobra.Command) ([]netinfo.NetworkInterfaceInfo, *netinfo.DefaultGateway) {
	infos, err := netinfo.ListInterfaces()
	if err != nil {
		a.log.Error(logging.CategoryNetworkScanner, err, "interface enumeration")
	}
	gw, err := netinfo.GetDefaultGateway(cmd.Context())
	if err != nil {
		a.log.Debug(logging.CategoryNetworkScanner, "default gateway unavailable", zap.Error(err))
		return infos, nil
	}
	netinfo.MarkPrimary(infos, runtime.GOOS, gw.IP)
	return infos, &gw
}

func renderInterfaces(out io.Writer, infos []netinfo.NetworkInterfaceInfo) {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "NAME\tSTATE\tMAC ADDRESS\tIPV4\tCIDR\tIPV6")
	for _, info := range infos {
		state := "down"
		if info.Up {
			state = "up"
		}
		name := info.Name
		if info.IsPrimary {
			name += " (primary)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", name, state, info.MACAddress, info.IPv4, info.CIDR, info.IPv6)
	}
	w.Flush()
}

func newGatewayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "gateway",
		Short: "Print the default gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			strategy := netinfo.StrategyFor(runtime.GOOS)
			gw, err := strategy.Resolve(cmd.Context())
			if err != nil {
				return fmt.Errorf("%s: %w", strategy.Name(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", gw.IP, gw.Interface)
			return nil
		},
	}
}

func newNetworkCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "network",
		Short: "Print connected interfaces and visible Wi-Fi networks as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			infos, gw := a.interfaces(cmd)
			var gatewayIface string
			if gw != nil {
				gatewayIface = gw.Interface
			}
			items, err := netview.Build(cmd.Context(), infos, gatewayIface, netview.ScannerFor(runtime.GOOS))
			switch {
			case errors.Is(err, netview.ErrWifiUnsupported):
				a.log.Debug(logging.CategoryNetworkScanner, "wifi listing unavailable", zap.String("os", runtime.GOOS))
			case err != nil:
				a.log.Warn(logging.CategoryNetworkScanner, "wifi listing failed", zap.Error(err))
			}
			return writeJSON(cmd.OutOrStdout(), items)
		},
	}
}

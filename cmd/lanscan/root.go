package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"lanscan/internal/config"
	"lanscan/internal/logging"
)

// app carries what every subcommand needs once flags are parsed.
type app struct {
	v          *viper.Viper
	configFile string
	cfg        *config.Config
	log        logging.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{v: config.New()}

	root := &cobra.Command{
		Use:   "lanscan",
		Short: "Discover devices on the local network",
		Long: `lanscan builds a deduplicated inventory of the devices on your LAN.

It combines mDNS/DNS-SD, reverse DNS, HTTP and UPnP banners, smart-home
vendor handshakes (Hue, Kasa, Tuya, generic bulbs), AirPlay and SMB identity
lookups and the kernel neighbour table into one record per device.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if zl, ok := a.log.(*logging.ZapLogger); ok {
				_ = zl.Sync()
			}
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	flags := root.PersistentFlags()
	flags.StringVarP(&a.configFile, "config", "c", "", "config file (default: ./lanscan.yaml)")
	flags.String("log-level", "info", "log level (debug, info, warn, error)")
	_ = a.v.BindPFlag("log_level", flags.Lookup("log-level"))

	root.AddCommand(
		newScanCmd(a),
		newInterfacesCmd(a),
		newGatewayCmd(a),
		newNetworkCmd(a),
		newVersionCmd(),
	)
	return root
}

func (a *app) init() error {
	cfg, err := config.Load(a.v, a.configFile)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		return err
	}
	a.cfg = cfg
	a.log = log
	log.Debug(logging.CategoryConfiguration, "configuration loaded",
		zap.String("config_file", a.v.ConfigFileUsed()))
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		// Skip config loading for version.
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lanscan %s (commit: %s)\n", version, commit)
		},
	}
}

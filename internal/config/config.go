// Package config layers lanscan settings from defaults, an optional config
// file, LANSCAN_* environment variables and command flags.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"lanscan/internal/logging"
	"lanscan/internal/netinfo"
	"lanscan/internal/probe"
	"lanscan/internal/scan"
)

const (
	envPrefix         = "LANSCAN"
	defaultConfigName = "lanscan"

	minVendorTimeout = 400 * time.Millisecond
	maxVendorTimeout = 600 * time.Millisecond
)

// Config is the decoded configuration.
type Config struct {
	Subnet            string        `mapstructure:"subnet"`
	MaxInFlight       int           `mapstructure:"max_in_flight"`
	ScanTimeout       time.Duration `mapstructure:"scan_timeout"`
	MDNSTimeout       time.Duration `mapstructure:"mdns_timeout"`
	VendorTimeout     time.Duration `mapstructure:"vendor_timeout"`
	HTTPTimeout       time.Duration `mapstructure:"http_timeout"`
	ReverseDNSTimeout time.Duration `mapstructure:"reverse_dns_timeout"`
	SMBTimeout        time.Duration `mapstructure:"smb_timeout"`
	LivenessTimeout   time.Duration `mapstructure:"liveness_timeout"`
	MDNSServices      []string      `mapstructure:"mdns_services"`
	OverridesFile     string        `mapstructure:"overrides_file"`
	Probes            []string      `mapstructure:"probes"`
	Ping              bool          `mapstructure:"ping"`
	LogLevel          string        `mapstructure:"log_level"`
}

// New returns a viper instance carrying the defaults and environment
// binding. Commands bind their flags to it before calling Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetDefault("subnet", "")
	v.SetDefault("max_in_flight", 64)
	v.SetDefault("scan_timeout", 15*time.Second)
	v.SetDefault("mdns_timeout", 3*time.Second)
	v.SetDefault("vendor_timeout", 500*time.Millisecond)
	v.SetDefault("http_timeout", 1500*time.Millisecond)
	v.SetDefault("reverse_dns_timeout", 1500*time.Millisecond)
	v.SetDefault("smb_timeout", 2*time.Second)
	v.SetDefault("liveness_timeout", 300*time.Millisecond)
	v.SetDefault("mdns_services", probe.DefaultMDNSServices)
	v.SetDefault("overrides_file", "")
	v.SetDefault("probes", []string{})
	v.SetDefault("ping", true)
	v.SetDefault("log_level", "info")

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file (path, or lanscan.{yaml,json} in the working
// directory and $HOME/.config/lanscan) and decodes the merged settings. An
// explicit path that does not exist is an error; a missing default file is not.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(defaultConfigName)
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.config/lanscan")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.VendorTimeout = clampVendorTimeout(cfg.VendorTimeout)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func clampVendorTimeout(d time.Duration) time.Duration {
	switch {
	case d < minVendorTimeout:
		return minVendorTimeout
	case d > maxVendorTimeout:
		return maxVendorTimeout
	default:
		return d
	}
}

// Validate ensures the configuration can drive a discovery pass.
func (c Config) Validate() error {
	if c.MaxInFlight <= 0 {
		return errors.New("max_in_flight must be greater than 0")
	}
	if c.ScanTimeout <= 0 {
		return errors.New("scan_timeout must be positive")
	}
	if c.MDNSTimeout <= 0 || c.MDNSTimeout > c.ScanTimeout {
		return errors.New("mdns_timeout must be positive and no longer than scan_timeout")
	}
	if c.HTTPTimeout <= 0 || c.ReverseDNSTimeout <= 0 || c.SMBTimeout <= 0 || c.LivenessTimeout <= 0 {
		return errors.New("probe timeouts must be positive")
	}
	if c.Subnet != "" {
		if _, err := netinfo.Targets(c.Subnet); err != nil {
			return fmt.Errorf("subnet: %w", err)
		}
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	known := make(map[string]bool)
	for _, p := range probe.Build(probe.Options{Ping: true}) {
		known[string(p.Protocol())] = true
	}
	for _, name := range c.Probes {
		if !known[name] {
			return fmt.Errorf("unknown probe %q", name)
		}
	}
	return nil
}

// ProbeOptions selects and tunes the IP-targeted probes.
func (c Config) ProbeOptions() probe.Options {
	return probe.Options{
		HTTPTimeout:       c.HTTPTimeout,
		VendorTimeout:     c.VendorTimeout,
		ReverseDNSTimeout: c.ReverseDNSTimeout,
		SMBTimeout:        c.SMBTimeout,
		Ping:              c.Ping,
		Enabled:           c.Probes,
	}
}

// EngineOptions bounds the orchestrator.
func (c Config) EngineOptions() scan.Options {
	return scan.Options{MaxInFlight: c.MaxInFlight, ScanTimeout: c.ScanTimeout, LivenessTimeout: c.LivenessTimeout}
}

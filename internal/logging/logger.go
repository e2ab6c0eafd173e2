package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Category groups log entries by the subsystem that produced them.
type Category string

const (
	CategoryNetworkScanner   Category = "network_scanner"
	CategoryDeviceDiscovery  Category = "device_discovery"
	CategoryVendorDetection  Category = "vendor_detection"
	CategoryMDNSDiscovery    Category = "mdns_discovery"
	CategoryARPScan          Category = "arp_scan"
	CategoryDNSLookup        Category = "dns_lookup"
	CategorySmartDeviceProbe Category = "smart_device_probe"
	CategoryConfiguration    Category = "configuration"
	CategorySystem           Category = "system"
)

// Logger is the logging collaborator handed to the discovery engine.
// Progress is reported with a category and a message, failures with a
// category, the error and an optional free-form context.
type Logger interface {
	Debug(category Category, msg string, fields ...zap.Field)
	Info(category Category, msg string, fields ...zap.Field)
	Warn(category Category, msg string, fields ...zap.Field)
	Error(category Category, err error, context string)
}

// ZapLogger implements Logger on top of a zap core.
type ZapLogger struct {
	base *zap.Logger
}

// New builds a console logger writing to stderr at the given level
// ("debug", "info", "warn" or "error").
func New(level string) (*ZapLogger, error) {
	zapLevel, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}

	config := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "console",
		EncoderConfig:    zap.NewDevelopmentEncoderConfig(),
		OutputPaths:      []string{"stderr"},
		ErrorOutputPaths: []string{"stderr"},
	}
	config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.EncodeCaller = zapcore.ShortCallerEncoder

	base, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return &ZapLogger{base: base}, nil
}

// Wrap adapts an existing zap logger.
func Wrap(base *zap.Logger) *ZapLogger {
	if base == nil {
		base = zap.NewNop()
	}
	return &ZapLogger{base: base}
}

// Nop returns a logger that discards everything.
func Nop() *ZapLogger {
	return &ZapLogger{base: zap.NewNop()}
}

// ParseLevel maps a textual level to its zap value. An empty string means info.
func ParseLevel(level string) (zapcore.Level, error) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zapcore.DebugLevel, nil
	case "", "info":
		return zapcore.InfoLevel, nil
	case "warn", "warning":
		return zapcore.WarnLevel, nil
	case "error":
		return zapcore.ErrorLevel, nil
	default:
		return zapcore.InfoLevel, fmt.Errorf("unknown log level %q", level)
	}
}

func (l *ZapLogger) Debug(category Category, msg string, fields ...zap.Field) {
	l.base.Debug(msg, withCategory(category, fields)...)
}

func (l *ZapLogger) Info(category Category, msg string, fields ...zap.Field) {
	l.base.Info(msg, withCategory(category, fields)...)
}

func (l *ZapLogger) Warn(category Category, msg string, fields ...zap.Field) {
	l.base.Warn(msg, withCategory(category, fields)...)
}

func (l *ZapLogger) Error(category Category, err error, context string) {
	fields := []zap.Field{zap.String("category", string(category)), zap.Error(err)}
	if context != "" {
		fields = append(fields, zap.String("context", context))
	}
	l.base.Error("operation failed", fields...)
}

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error {
	return l.base.Sync()
}

func withCategory(category Category, fields []zap.Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields)+1)
	out = append(out, zap.String("category", string(category)))
	return append(out, fields...)
}

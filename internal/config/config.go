// Package config provides application configuration structures and helpers.
package config

import (
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/and161185/s0-pulse-counter/internal/device"
	"github.com/and161185/s0-pulse-counter/internal/frame"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	DefaultPort     = 8000
	DefaultChannels = 5
	maxChannels     = 64
)

// Config holds the settings of the pulse counter service.
type Config struct {
	Device         device.Config // Serial line of the pulse counter
	Port           int           // HTTP listening port
	Channels       int           // Number of counted channels N
	FrameFormat    string        // Frame grammar, see frame.New
	LogFile        string        // Extra log output besides stdout, optional
	LogLevel       string        // debug, info, warn or error
	ReconnectDelay time.Duration // 0 stops ingestion on the first device error
	Logger         *zap.SugaredLogger
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func defaultConfig() *Config {
	return &Config{
		Device:      device.DefaultConfig(""),
		Port:        DefaultPort,
		Channels:    DefaultChannels,
		FrameFormat: frame.FormatS0,
		LogLevel:    "info",
	}
}

// NewConfig reads flags, the optional YAML file and environment variables,
// validates the result and builds the logger.
func NewConfig() (*Config, error) {
	return load(flag.CommandLine, os.Args[1:])
}

func load(fs *flag.FlagSet, args []string) (*Config, error) {
	// 0) defaults
	cfg := defaultConfig()

	// 1) flags
	var fDevice, fParity, fFormat, fLogFile, fLogLevel, fConf strFlag
	var fPort, fChannels, fBaud, fDataBits, fStopBits intFlag
	var fReconnect durationFlag
	fParity.v = cfg.Device.Parity
	fFormat.v = cfg.FrameFormat
	fLogLevel.v = cfg.LogLevel
	fPort.v = cfg.Port
	fChannels.v = cfg.Channels
	fBaud.v = cfg.Device.BaudRate
	fDataBits.v = cfg.Device.DataBits
	fStopBits.v = cfg.Device.StopBits

	fs.Var(&fDevice, "d", "serial device of the pulse counter (required)")
	fs.Var(&fPort, "p", "HTTP port")
	fs.Var(&fChannels, "n", "number of channels")
	fs.Var(&fBaud, "b", "baud rate")
	fs.Var(&fDataBits, "databits", "data bits")
	fs.Var(&fParity, "parity", "parity: none, even, odd, mark, space")
	fs.Var(&fStopBits, "stopbits", "stop bits: 1 or 2")
	fs.Var(&fFormat, "f", "frame format: s0 or line")
	fs.Var(&fLogFile, "l", "log file (stdout only when empty)")
	fs.Var(&fLogLevel, "v", "log level")
	fs.Var(&fReconnect, "reconnect", "delay before reopening a failed device, 0 disables")
	fs.Var(&fConf, "c", "path to YAML config file")
	fs.Var(&fConf, "config", "path to YAML config file (alias)")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg.Device.Path = fDevice.v
	cfg.Device.BaudRate = fBaud.v
	cfg.Device.DataBits = fDataBits.v
	cfg.Device.Parity = fParity.v
	cfg.Device.StopBits = fStopBits.v
	cfg.Port = fPort.v
	cfg.Channels = fChannels.v
	cfg.FrameFormat = fFormat.v
	cfg.LogFile = fLogFile.v
	cfg.LogLevel = fLogLevel.v
	cfg.ReconnectDelay = fReconnect.v

	// 2) YAML file, only for values not given as flags
	if fConf.v == "" {
		fConf.v = os.Getenv("CONFIG")
	}
	if fConf.v != "" {
		fc, err := loadFile(fConf.v)
		if err != nil {
			return nil, fmt.Errorf("config file %s: %w", fConf.v, err)
		}
		setStr(&cfg.Device.Path, fc.Device, fDevice.set)
		setInt(&cfg.Device.BaudRate, fc.Serial.BaudRate, fBaud.set)
		setInt(&cfg.Device.DataBits, fc.Serial.DataBits, fDataBits.set)
		setStr(&cfg.Device.Parity, fc.Serial.Parity, fParity.set)
		setInt(&cfg.Device.StopBits, fc.Serial.StopBits, fStopBits.set)
		setInt(&cfg.Port, fc.Port, fPort.set)
		setInt(&cfg.Channels, fc.Channels, fChannels.set)
		setStr(&cfg.FrameFormat, fc.FrameFormat, fFormat.set)
		setStr(&cfg.LogFile, fc.LogFile, fLogFile.set)
		setStr(&cfg.LogLevel, fc.LogLevel, fLogLevel.set)
		if fc.ReconnectDelay != nil && !fReconnect.set {
			d, err := time.ParseDuration(*fc.ReconnectDelay)
			if err != nil {
				return nil, fmt.Errorf("config file %s: reconnect_delay: %w", fConf.v, err)
			}
			cfg.ReconnectDelay = d
		}
	}

	// 3) environment
	readEnvironment(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := buildLogger(cfg.LogFile, cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}
	cfg.Logger = logger.Sugar()
	return cfg, nil
}

func setStr(dst *string, v *string, flagSet bool) {
	if v != nil && !flagSet {
		*dst = *v
	}
}

func setInt(dst *int, v *int, flagSet bool) {
	if v != nil && !flagSet {
		*dst = *v
	}
}

func readEnvironment(cfg *Config) {
	if dev := os.Getenv("DEVICE"); dev != "" {
		cfg.Device.Path = dev
	}

	readIntEnv("PORT", &cfg.Port)
	readIntEnv("CHANNELS", &cfg.Channels)
	readIntEnv("BAUD_RATE", &cfg.Device.BaudRate)

	if format := os.Getenv("FRAME_FORMAT"); format != "" {
		cfg.FrameFormat = format
	}

	if logFile := os.Getenv("LOG_FILE"); logFile != "" {
		cfg.LogFile = logFile
	}

	if level := os.Getenv("LOG_LEVEL"); level != "" {
		cfg.LogLevel = level
	}

	if delay := os.Getenv("RECONNECT_DELAY"); delay != "" {
		d, err := time.ParseDuration(delay)
		if err == nil {
			cfg.ReconnectDelay = d
		} else {
			log.Printf("invalid RECONNECT_DELAY env var: %v", err)
		}
	}
}

func readIntEnv(name string, dst *int) {
	s := os.Getenv(name)
	if s == "" {
		return
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		log.Printf("invalid %s env var: %v", name, err)
		return
	}
	*dst = v
}

// Validate checks the settings that would otherwise fail late at runtime.
func (c *Config) Validate() error {
	if c.Device.Path == "" {
		return fmt.Errorf("device path is required (-d or DEVICE)")
	}
	if err := c.Device.Validate(); err != nil {
		return fmt.Errorf("device: %w", err)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.Channels <= 0 || c.Channels > maxChannels {
		return fmt.Errorf("channel count must be in [1, %d], got %d", maxChannels, c.Channels)
	}
	if c.FrameFormat != frame.FormatS0 && c.FrameFormat != frame.FormatLine {
		return fmt.Errorf("unknown frame format %q", c.FrameFormat)
	}
	if c.ReconnectDelay < 0 {
		return fmt.Errorf("negative reconnect delay %s", c.ReconnectDelay)
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	return nil
}

func buildLogger(logFile, level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, err
	}

	logCfg := zap.NewProductionConfig()
	logCfg.Level = zap.NewAtomicLevelAt(lvl)
	logCfg.OutputPaths = []string{"stdout"}
	if logFile != "" {
		logCfg.OutputPaths = append(logCfg.OutputPaths, logFile)
	}
	return logCfg.Build()
}

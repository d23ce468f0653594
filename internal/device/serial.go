// Package device opens the pulse counter's serial port.
package device

import (
	"fmt"
	"io"
	"strings"

	"go.bug.st/serial"
)

// Serial framing of the S0 pulse counter: 9600 baud, 7 data bits, even parity, 1 stop bit.
const (
	DefaultBaudRate = 9600
	DefaultDataBits = 7
	DefaultParity   = "even"
	DefaultStopBits = 1
)

// Config describes the serial line.
type Config struct {
	Path     string // Device path, e.g. /dev/ttyACM0
	BaudRate int
	DataBits int
	Parity   string // none, even, odd, mark or space
	StopBits int    // 1 or 2
}

// Opener opens a fresh byte source for the device.
type Opener func() (io.ReadCloser, error)

// DefaultConfig returns the counter's line settings for path.
func DefaultConfig(path string) Config {
	return Config{
		Path:     path,
		BaudRate: DefaultBaudRate,
		DataBits: DefaultDataBits,
		Parity:   DefaultParity,
		StopBits: DefaultStopBits,
	}
}

// Validate checks the settings without touching the device.
func (c Config) Validate() error {
	_, err := c.mode()
	return err
}

func (c Config) mode() (*serial.Mode, error) {
	if c.Path == "" {
		return nil, fmt.Errorf("device path is required")
	}
	if c.BaudRate <= 0 {
		return nil, fmt.Errorf("invalid baud rate %d", c.BaudRate)
	}
	if c.DataBits < 5 || c.DataBits > 8 {
		return nil, fmt.Errorf("invalid data bits %d", c.DataBits)
	}

	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
	}

	switch strings.ToLower(c.Parity) {
	case "none", "n":
		mode.Parity = serial.NoParity
	case "even", "e":
		mode.Parity = serial.EvenParity
	case "odd", "o":
		mode.Parity = serial.OddParity
	case "mark", "m":
		mode.Parity = serial.MarkParity
	case "space", "s":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("invalid parity %q", c.Parity)
	}

	switch c.StopBits {
	case 1:
		mode.StopBits = serial.OneStopBit
	case 2:
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %d", c.StopBits)
	}

	return mode, nil
}

// Open opens the serial port. Reads block until data arrives; Close
// unblocks a pending read, which then fails.
func Open(cfg Config) (io.ReadCloser, error) {
	mode, err := cfg.mode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(cfg.Path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial device %s: %w", cfg.Path, err)
	}

	// drop whatever the device sent before we were listening
	if err := port.ResetInputBuffer(); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("reset input buffer of %s: %w", cfg.Path, err)
	}

	return port, nil
}

// Opener returns an Opener bound to cfg.
func (c Config) Opener() Opener {
	return func() (io.ReadCloser, error) {
		return Open(c)
	}
}

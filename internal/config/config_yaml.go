package config

import (
	"bytes"
	"errors"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

type serialYAML struct {
	BaudRate *int    `yaml:"baud_rate"`
	DataBits *int    `yaml:"data_bits"`
	Parity   *string `yaml:"parity"`
	StopBits *int    `yaml:"stop_bits"`
}

type fileYAML struct {
	Device         *string    `yaml:"device"`
	Serial         serialYAML `yaml:"serial"`
	Port           *int       `yaml:"port"`
	Channels       *int       `yaml:"channels"`
	FrameFormat    *string    `yaml:"frame_format"`
	LogFile        *string    `yaml:"log_file"`
	LogLevel       *string    `yaml:"log_level"`
	ReconnectDelay *string    `yaml:"reconnect_delay"` // "10s"
}

func loadFile(path string) (*fileYAML, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fc fileYAML
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	return &fc, nil
}

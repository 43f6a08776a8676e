package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/frederickproctor/gomotion/pkg/modbus"
	"gopkg.in/yaml.v3"
)

const (
	TransportTCP = "tcp"
	TransportRTU = "rtu"
)

// Config represents the modbus-write configuration
type Config struct {
	Host      string  `toml:"host" yaml:"host"`
	Port      int     `toml:"port" yaml:"port"`
	Value     float64 `toml:"value" yaml:"value"`
	UnitID    uint8   `toml:"unit_id" yaml:"unit_id"`
	TimeoutMs int     `toml:"timeout_ms" yaml:"timeout_ms"`
	Transport string  `toml:"transport" yaml:"transport"` // "tcp" or "rtu"
	Register  string  `toml:"register" yaml:"register"`   // e.g. "0x8000"
	Serial    Serial  `toml:"serial" yaml:"serial"`
	Debug     bool    `toml:"debug" yaml:"debug"`
}

// Serial defines the RTU line settings
type Serial struct {
	Device   string `toml:"device" yaml:"device"` // e.g. "/dev/ttyUSB0"
	BaudRate int    `toml:"baud_rate" yaml:"baud_rate"`
	DataBits int    `toml:"data_bits" yaml:"data_bits"`
	Parity   string `toml:"parity" yaml:"parity"` // "N", "E" or "O"
	StopBits int    `toml:"stop_bits" yaml:"stop_bits"`
}

// Default returns the configuration used when neither a profile nor flags
// say otherwise.
func Default() Config {
	return Config{
		Host:      "localhost",
		Port:      502,
		Value:     0,
		UnitID:    0,
		TimeoutMs: 3000,
		Transport: TransportTCP,
		Register:  "0x8000",
		Serial: Serial{
			Device:   "/dev/ttyUSB0",
			BaudRate: 9600,
			DataBits: 8,
			Parity:   "N",
			StopBits: 1,
		},
	}
}

// Load reads a TOML or YAML profile on top of the defaults. The format is
// picked by file extension.
func Load(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML: %w", err)
		}
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		// an empty document keeps the defaults
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file type %q, must be .toml, .yaml or .yml", filepath.Ext(filename))
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d, must be between 1 and 65535", c.Port)
	}
	if c.TimeoutMs <= 0 {
		return fmt.Errorf("invalid timeout %dms, must be positive", c.TimeoutMs)
	}
	if _, err := c.RegisterAddress(); err != nil {
		return fmt.Errorf("register: %w", err)
	}

	switch c.Transport {
	case TransportTCP:
		if c.Host == "" {
			return fmt.Errorf("host is required")
		}
	case TransportRTU:
		if err := c.Serial.Validate(); err != nil {
			return fmt.Errorf("serial: %w", err)
		}
	default:
		return fmt.Errorf("invalid transport %q, must be 'tcp' or 'rtu'", c.Transport)
	}

	return nil
}

// Validate checks the serial line settings
func (s *Serial) Validate() error {
	if s.Device == "" {
		return fmt.Errorf("device is required")
	}
	if s.BaudRate <= 0 {
		return fmt.Errorf("invalid baud rate %d", s.BaudRate)
	}
	if s.DataBits < 5 || s.DataBits > 8 {
		return fmt.Errorf("invalid data bits %d, must be between 5 and 8", s.DataBits)
	}
	switch s.Parity {
	case "N", "E", "O":
	default:
		return fmt.Errorf("invalid parity %q, must be 'N', 'E' or 'O'", s.Parity)
	}
	if s.StopBits != 1 && s.StopBits != 2 {
		return fmt.Errorf("invalid stop bits %d, must be 1 or 2", s.StopBits)
	}
	return nil
}

// Address returns host:port for the TCP transport.
func (c *Config) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Timeout returns the connect and response timeout.
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// RegisterAddress returns the parsed output register.
func (c *Config) RegisterAddress() (uint16, error) {
	return modbus.ParseAddress(c.Register)
}

package client

import (
	"fmt"
	"log"
	"log/slog"

	bmodbus "github.com/goburrow/modbus"
	"github.com/goburrow/serial"

	"github.com/frederickproctor/gomotion/config"
)

// handler is a goburrow client handler that owns its connection.
type handler interface {
	bmodbus.ClientHandler
	Connect() error
	Close() error
}

// Client writes registers on one Modbus device over TCP or RTU.
type Client struct {
	handler     handler
	client      bmodbus.Client
	description string
}

// New creates a client for cfg. The connection is not opened until Connect.
func New(cfg config.Config) (*Client, error) {
	var logger *log.Logger
	if cfg.Debug {
		logger = slog.NewLogLogger(slog.Default().Handler(), slog.LevelDebug)
	}

	var h handler
	var description string
	switch cfg.Transport {
	case config.TransportTCP:
		if cfg.Host == "" {
			return nil, fmt.Errorf("host is required")
		}
		if cfg.Port < 1 || cfg.Port > 65535 {
			return nil, fmt.Errorf("invalid port %d", cfg.Port)
		}
		th := bmodbus.NewTCPClientHandler(cfg.Address())
		th.Timeout = cfg.Timeout()
		th.SlaveId = cfg.UnitID
		th.Logger = logger
		h = th
		description = "tcp://" + cfg.Address()
	case config.TransportRTU:
		if err := cfg.Serial.Validate(); err != nil {
			return nil, err
		}
		rh := bmodbus.NewRTUClientHandler(cfg.Serial.Device)
		rh.Config = serial.Config{
			Address:  cfg.Serial.Device,
			BaudRate: cfg.Serial.BaudRate,
			DataBits: cfg.Serial.DataBits,
			Parity:   cfg.Serial.Parity,
			StopBits: cfg.Serial.StopBits,
			Timeout:  cfg.Timeout(),
		}
		rh.SlaveId = cfg.UnitID
		rh.Logger = logger
		h = rh
		description = "rtu://" + cfg.Serial.Device
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}

	return &Client{
		handler:     h,
		client:      bmodbus.NewClient(h),
		description: description,
	}, nil
}

// Connect opens the TCP connection or serial port.
func (c *Client) Connect() error {
	if err := c.handler.Connect(); err != nil {
		return fmt.Errorf("connect %s: %w", c.description, err)
	}
	slog.Debug("connected", "target", c.description)
	return nil
}

func (c *Client) Close() error {
	return c.handler.Close()
}

// WriteSingleRegister writes value to the holding register at address using
// function code 6. The device's echo is verified by the client library.
func (c *Client) WriteSingleRegister(address, value uint16) error {
	if _, err := c.client.WriteSingleRegister(address, value); err != nil {
		slog.Debug("write single register failed", "target", c.description, "address", fmt.Sprintf("0x%04X", address), "error", err)
		return err
	}
	return nil
}

func (c *Client) Description() string {
	return c.description
}

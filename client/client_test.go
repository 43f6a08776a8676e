package client

import (
	"errors"
	"net"
	"strconv"
	"sync"
	"testing"
	"time"

	bmodbus "github.com/goburrow/modbus"
	smodbus "github.com/simonvetter/modbus"

	"github.com/frederickproctor/gomotion/config"
)

// deviceHandler is a holding register bank served by the test server.
type deviceHandler struct {
	mu        sync.Mutex
	registers map[uint16]uint16
	unitIDs   []uint8
	readOnly  map[uint16]bool
}

func newDeviceHandler() *deviceHandler {
	return &deviceHandler{registers: map[uint16]uint16{}, readOnly: map[uint16]bool{}}
}

func (h *deviceHandler) HandleCoils(req *smodbus.CoilsRequest) ([]bool, error) {
	return nil, smodbus.ErrIllegalFunction
}

func (h *deviceHandler) HandleDiscreteInputs(req *smodbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, smodbus.ErrIllegalFunction
}

func (h *deviceHandler) HandleInputRegisters(req *smodbus.InputRegistersRequest) ([]uint16, error) {
	return nil, smodbus.ErrIllegalFunction
}

func (h *deviceHandler) HandleHoldingRegisters(req *smodbus.HoldingRegistersRequest) ([]uint16, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.unitIDs = append(h.unitIDs, req.UnitId)
	res := make([]uint16, 0, req.Quantity)
	for i := uint16(0); i < req.Quantity; i++ {
		addr := req.Addr + i
		if req.IsWrite {
			if h.readOnly[addr] {
				return nil, smodbus.ErrIllegalDataAddress
			}
			h.registers[addr] = req.Args[i]
		}
		res = append(res, h.registers[addr])
	}
	return res, nil
}

func (h *deviceHandler) register(addr uint16) uint16 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.registers[addr]
}

func (h *deviceHandler) lock(addr uint16) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readOnly[addr] = true
}

func (h *deviceHandler) seenUnitIDs() []uint8 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]uint8(nil), h.unitIDs...)
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func startDevice(t *testing.T) (*deviceHandler, config.Config) {
	t.Helper()
	h := newDeviceHandler()
	port := freePort(t)

	server, err := smodbus.NewServer(&smodbus.ServerConfiguration{
		URL:        "tcp://127.0.0.1:" + strconv.Itoa(port),
		Timeout:    5 * time.Second,
		MaxClients: 2,
	}, h)
	if err != nil {
		t.Fatalf("failed to create server: %v", err)
	}
	if err := server.Start(); err != nil {
		t.Fatalf("failed to start server: %v", err)
	}
	t.Cleanup(func() { server.Stop() })

	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = port
	cfg.TimeoutMs = 1000
	return h, cfg
}

func TestClient_WriteSingleRegister(t *testing.T) {
	device, cfg := startDevice(t)
	cfg.UnitID = 9

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() err=%v", err)
	}
	defer c.Close()

	if err := c.WriteSingleRegister(0x8000, 3276); err != nil {
		t.Fatalf("WriteSingleRegister() err=%v", err)
	}
	if got := device.register(0x8000); got != 3276 {
		t.Fatalf("expected register 0x8000 = 3276, got %d", got)
	}
	if ids := device.seenUnitIDs(); len(ids) != 1 || ids[0] != 9 {
		t.Fatalf("expected unit id 9, got %v", ids)
	}
}

func TestClient_WriteRejected(t *testing.T) {
	device, cfg := startDevice(t)
	device.lock(0x8000)

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if err := c.Connect(); err != nil {
		t.Fatalf("Connect() err=%v", err)
	}
	defer c.Close()

	err = c.WriteSingleRegister(0x8000, 1)
	var mbErr *bmodbus.ModbusError
	if !errors.As(err, &mbErr) {
		t.Fatalf("expected modbus exception, got %v", err)
	}
	if mbErr.ExceptionCode != bmodbus.ExceptionCodeIllegalDataAddress {
		t.Fatalf("expected illegal data address, got %d", mbErr.ExceptionCode)
	}
}

func TestClient_ConnectRefused(t *testing.T) {
	cfg := config.Default()
	cfg.Host = "127.0.0.1"
	cfg.Port = freePort(t)
	cfg.TimeoutMs = 500

	c, err := New(cfg)
	if err != nil {
		t.Fatalf("New() err=%v", err)
	}
	if err := c.Connect(); err == nil {
		c.Close()
		t.Fatalf("expected connect error, got nil")
	}
}

func TestNew(t *testing.T) {
	tcp := config.Default()

	rtu := config.Default()
	rtu.Transport = config.TransportRTU
	rtu.Serial.Device = "/tmp/virtualcom1"

	badTransport := config.Default()
	badTransport.Transport = "udp"

	noHost := config.Default()
	noHost.Host = ""

	badSerial := rtu
	badSerial.Serial.Parity = "X"

	tests := []struct {
		name        string
		cfg         config.Config
		description string
		wantErr     bool
	}{
		{"tcp", tcp, "tcp://localhost:502", false},
		{"rtu", rtu, "rtu:///tmp/virtualcom1", false},
		{"unknown transport", badTransport, "", true},
		{"missing host", noHost, "", true},
		{"bad serial", badSerial, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() err=%v", err)
			}
			if c.Description() != tt.description {
				t.Fatalf("expected %q, got %q", tt.description, c.Description())
			}
		})
	}
}

package rtu

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/goburrow/serial"

	"github.com/frederickproctor/gomotion"
	"github.com/frederickproctor/gomotion/pkg/modbus"
)

// ProcessPDUCallback answers one request PDU. A nil result sends no response.
type ProcessPDUCallback func(pdu modbus.PDU) *modbus.PDU

// Handler serves RTU requests from a serial line.
type Handler struct {
	serialPort   serial.Port
	url          string
	config       serial.Config
	protocolPort gomotion.ProtocolPort
	closed       atomic.Bool
}

// NewHandler creates a new RTU handler for a url like rtu:///tmp/virtualcom0.
func NewHandler(url string, protocolPort gomotion.ProtocolPort) (*Handler, error) {
	device, ok := strings.CutPrefix(url, "rtu://")
	if !ok || device == "" {
		return nil, fmt.Errorf("invalid url format %s", url)
	}
	return &Handler{
		url: device,
		config: serial.Config{
			Address:  device,
			BaudRate: 9600,
			DataBits: 8,
			Parity:   "N",
			StopBits: 1,
			Timeout:  5 * time.Second,
		},
		protocolPort: protocolPort,
	}, nil
}

func (h *Handler) Start(ctx context.Context, processPDU ProcessPDUCallback) (err error) {
	h.serialPort, err = serial.Open(&h.config)
	if err != nil {
		return fmt.Errorf("failed to open serial port: %w", err)
	}

	go h.startRequestCycle(ctx, processPDU)
	slog.Debug("RTU listener started", "url", h.url)
	return nil
}

func (h *Handler) Description() string {
	return "rtu://" + h.url
}

func (h *Handler) startRequestCycle(ctx context.Context, processPDU ProcessPDUCallback) {
	buffer := make([]byte, 256)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := h.serialPort.Read(buffer)
		if err != nil {
			if h.closed.Load() {
				return
			}
			if errors.Is(err, serial.ErrTimeout) {
				continue
			}
			if !errors.Is(err, io.EOF) {
				slog.Error("Error reading from serial port", "err", err)
			}
			time.Sleep(100 * time.Millisecond)
			continue
		}
		if n == 0 {
			continue
		}

		data := buffer[:n]
		slog.Debug("Received data from serial port", "n", n, "data", fmt.Sprintf("% X", data))
		h.protocolPort.Separator()
		h.protocolPort.Info(fmt.Sprintf("req % X", data))

		response, err := handleFrame(data, processPDU)
		if err != nil {
			slog.Error("dropping frame", "error", err)
			continue
		}
		if response == nil {
			continue
		}
		if _, err := h.serialPort.Write(response); err != nil {
			slog.Error("failed to write response", "error", err)
			continue
		}
		h.protocolPort.Info(fmt.Sprintf("rsp % X", response))
	}
}

// handleFrame verifies the CRC of an RTU request, dispatches the PDU and
// returns the complete response frame.
func handleFrame(data []byte, processPDU ProcessPDUCallback) ([]byte, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("short frame of %d bytes", len(data))
	}

	receivedCRC := binary.LittleEndian.Uint16(data[len(data)-2:])
	calculatedCRC := modbus.CRC16(data[:len(data)-2])
	if receivedCRC != calculatedCRC {
		return nil, fmt.Errorf("crc mismatch: received 0x%04X calculated 0x%04X", receivedCRC, calculatedCRC)
	}

	pdu := modbus.PDU{
		UnitId:       data[0],
		FunctionCode: data[1],
		Payload:      append([]byte(nil), data[2:len(data)-2]...),
	}
	res := processPDU(pdu)
	if res == nil {
		return nil, nil
	}

	// UnitId + FunctionCode + Payload + CRC
	response := make([]byte, 0, 4+len(res.Payload))
	response = append(response, res.UnitId, res.FunctionCode)
	response = append(response, res.Payload...)
	return modbus.AppendCRC(response), nil
}

// Stop stops the handler.
func (h *Handler) Stop() error {
	slog.Debug("Closing serial port")
	if h.serialPort == nil {
		return nil
	}
	h.closed.Store(true)
	return h.serialPort.Close()
}

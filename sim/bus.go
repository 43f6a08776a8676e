package sim

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"

	"github.com/frederickproctor/gomotion"
	"github.com/frederickproctor/gomotion/pkg/modbus"
	"github.com/frederickproctor/gomotion/tcp"
)

// Bus serves MBAP requests from TCP masters against one device.
type Bus struct {
	handler      *tcp.Handler
	device       *Device
	protocolPort gomotion.ProtocolPort
}

func NewBus(handler *tcp.Handler, device *Device, protocolPort gomotion.ProtocolPort) *Bus {
	return &Bus{handler: handler, device: device, protocolPort: protocolPort}
}

func (b *Bus) Start(ctx context.Context) error {
	return b.handler.Start(ctx, b.handleMasterConnection)
}

func (b *Bus) Stop() error {
	return b.handler.Stop()
}

func (b *Bus) Status() string {
	return fmt.Sprintf("Port: %s\n%s", b.handler.Description(), b.device.Status())
}

func (b *Bus) handleMasterConnection(ctx context.Context, conn net.Conn) {
	defer conn.Close()
	b.protocolPort.Separator()
	b.protocolPort.Info(fmt.Sprintf("master connected from %s", conn.RemoteAddr()))

	// unblock the frame read on shutdown
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	for {
		header, pdu, txnId, err := modbus.ReadMBAPFrame(conn)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				slog.Debug("client disconnected", "remote addr", conn.RemoteAddr())
				return
			}
			// the stream is out of sync once a frame fails to parse
			slog.Error("failed to read MBAP frame", "error", err)
			return
		}
		slog.Debug("MBAP frame received", "pdu", pdu, "txid", txnId)
		b.protocolPort.Info(fmt.Sprintf("req % X % X % X", header, pdu.FunctionCode, pdu.Payload))

		res := b.device.Process(*pdu)
		payload := modbus.AssembleMBAPFrame(txnId, res)
		if _, err := conn.Write(payload); err != nil {
			slog.Error("failed to write response", "error", err)
			return
		}
		slog.Debug(fmt.Sprintf("MBAP response written: % X", payload))
		b.protocolPort.Info(fmt.Sprintf("rsp % X", payload))
	}
}

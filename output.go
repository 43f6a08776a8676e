package gomotion

import (
	"fmt"
	"log/slog"
)

// OutputRegister is the holding register that drives the analog output.
const OutputRegister uint16 = 0x8000

// FC6WriteSingleRegister is the function code used for the output write.
const FC6WriteSingleRegister uint8 = 0x06

// RegisterWriter writes one holding register on a remote device.
type RegisterWriter interface {
	WriteSingleRegister(address, value uint16) error
}

// AnalogOutput encodes output levels and writes them to a single register.
type AnalogOutput struct {
	writer       RegisterWriter
	register     uint16
	protocolPort ProtocolPort
}

func NewAnalogOutput(writer RegisterWriter, register uint16, protocolPort ProtocolPort) *AnalogOutput {
	return &AnalogOutput{writer: writer, register: register, protocolPort: protocolPort}
}

// Write encodes v and writes it to the output register. The encoded value is
// returned even if the write fails.
func (o *AnalogOutput) Write(v float64) (ScaledRegisterValue, error) {
	scaled := Encode(v)
	slog.Debug("value encoded", "value", v, "scaled", scaled.Uint16(), "register", fmt.Sprintf("0x%04X", o.register))

	o.protocolPort.Info(fmt.Sprintf("TX FC=%d Address=0x%04X Value=0x%04X", FC6WriteSingleRegister, o.register, scaled.Uint16()))
	if err := o.writer.WriteSingleRegister(o.register, scaled.Uint16()); err != nil {
		o.protocolPort.Info(fmt.Sprintf("RX FC=%d Address=0x%04X Error=%v", FC6WriteSingleRegister, o.register, err))
		return scaled, fmt.Errorf("write register 0x%04X: %w", o.register, err)
	}
	o.protocolPort.Info(fmt.Sprintf("RX FC=%d Address=0x%04X Value=0x%04X", FC6WriteSingleRegister, o.register, scaled.Uint16()))
	return scaled, nil
}

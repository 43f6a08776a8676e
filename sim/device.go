package sim

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/frederickproctor/gomotion"
	"github.com/frederickproctor/gomotion/pkg/modbus"
)

// maxReadQuantity is the largest register count a single FC3 request may ask for.
const maxReadQuantity = 125

// Device is a simulated Modbus device holding 16-bit registers.
type Device struct {
	mu           sync.Mutex
	registers    map[uint16]uint16
	locked       map[uint16]bool
	protocolPort gomotion.ProtocolPort
}

func NewDevice(protocolPort gomotion.ProtocolPort) *Device {
	return &Device{
		registers:    make(map[uint16]uint16),
		locked:       make(map[uint16]bool),
		protocolPort: protocolPort,
	}
}

// Lock makes a register read-only. Writes to it are answered with an
// illegal data address exception.
func (d *Device) Lock(addr uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.locked[addr] = true
}

// Register returns the value of addr and whether it was ever written.
func (d *Device) Register(addr uint16) (uint16, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.registers[addr]
	return v, ok
}

func (d *Device) Process(pdu modbus.PDU) *modbus.PDU {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch pdu.FunctionCode {
	case modbus.FC3ReadHoldingRegisters:
		return d.processFC3(pdu)
	case modbus.FC6WriteSingleRegister:
		return d.processFC6(pdu)
	}
	slog.Error("function code not implemented", "fc", pdu.FunctionCode)
	return pdu.Exception(modbus.ExceptionIllegalFunction)
}

// FC3 payload format: [startAddr(2 bytes)][quantity(2 bytes)]
// Response payload: [byteCount(1 byte)][values(2 bytes each)]
func (d *Device) processFC3(pdu modbus.PDU) *modbus.PDU {
	if len(pdu.Payload) != 4 {
		return pdu.Exception(modbus.ExceptionIllegalDataValue)
	}
	startAddr := modbus.BytesToUint16(pdu.Payload[0:2])
	quantity := modbus.BytesToUint16(pdu.Payload[2:4])
	if quantity == 0 || quantity > maxReadQuantity {
		return pdu.Exception(modbus.ExceptionIllegalDataValue)
	}
	if int(startAddr)+int(quantity) > 0x10000 {
		return pdu.Exception(modbus.ExceptionIllegalDataAddress)
	}

	payload := make([]byte, 1, 1+2*quantity)
	payload[0] = uint8(quantity * 2)
	for i := range quantity {
		payload = append(payload, modbus.Uint16ToBytes(d.registers[startAddr+i])...)
	}

	d.protocolPort.Info(fmt.Sprintf("FC=%d UnitID=%d Address=0x%04X Quantity=%d", pdu.FunctionCode, pdu.UnitId, startAddr, quantity))
	return &modbus.PDU{UnitId: pdu.UnitId, FunctionCode: pdu.FunctionCode, Payload: payload}
}

// FC6 payload format: [regAddr(2 bytes)][value(2 bytes)]
func (d *Device) processFC6(pdu modbus.PDU) *modbus.PDU {
	if len(pdu.Payload) != 4 {
		return pdu.Exception(modbus.ExceptionIllegalDataValue)
	}
	addr := modbus.BytesToUint16(pdu.Payload[0:2])
	value := modbus.BytesToUint16(pdu.Payload[2:4])

	if d.locked[addr] {
		d.protocolPort.Info(fmt.Sprintf("FC=%d UnitID=%d Address=0x%04X rejected (locked)", pdu.FunctionCode, pdu.UnitId, addr))
		return pdu.Exception(modbus.ExceptionIllegalDataAddress)
	}

	d.registers[addr] = value
	slog.Debug("FC6 Write Single Register", "unitID", pdu.UnitId, "addr", fmt.Sprintf("0x%04X", addr), "value", fmt.Sprintf("0x%04X", value))
	d.protocolPort.Info(fmt.Sprintf("FC=%d UnitID=%d Address=0x%04X Value=0x%04X", pdu.FunctionCode, pdu.UnitId, addr, value))

	// FC6 response: echo back the request (register address + value)
	return &modbus.PDU{
		UnitId:       pdu.UnitId,
		FunctionCode: pdu.FunctionCode,
		Payload:      pdu.Payload[0:4],
	}
}

// Status renders the register map, sorted by address.
func (d *Device) Status() string {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.registers) == 0 {
		return "Registers: <none>"
	}
	addrs := make([]uint16, 0, len(d.registers))
	for addr := range d.registers {
		addrs = append(addrs, addr)
	}
	slices.Sort(addrs)

	status := "Registers:"
	for _, addr := range addrs {
		status += fmt.Sprintf("\n  - 0x%04X => 0x%04X (%d)", addr, d.registers[addr], d.registers[addr])
		if d.locked[addr] {
			status += " locked"
		}
	}
	return status
}

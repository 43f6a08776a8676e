package modbus

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	FC3ReadHoldingRegisters uint8 = 0x03
	FC6WriteSingleRegister  uint8 = 0x06
)

// Exception codes returned in place of a regular response payload.
const (
	ExceptionIllegalFunction    uint8 = 0x01
	ExceptionIllegalDataAddress uint8 = 0x02
	ExceptionIllegalDataValue   uint8 = 0x03
)

// MBAPHeaderLength is the size of the MBAP header including the unit id.
const MBAPHeaderLength = 7

// maxPDULength is the largest PDU (function code + data) a frame may carry.
const maxPDULength = 253

// PDU is a struct to represent a Modbus Protocol Data unit.
type PDU struct {
	UnitId       uint8
	FunctionCode uint8
	Payload      []byte
}

func (p PDU) String() string {
	return fmt.Sprintf("UnitId:%d FC:%d Payload:% X", p.UnitId, p.FunctionCode, p.Payload)
}

// Exception builds the exception response for p.
func (p PDU) Exception(code uint8) *PDU {
	return &PDU{
		UnitId:       p.UnitId,
		FunctionCode: p.FunctionCode | 0x80,
		Payload:      []byte{code},
	}
}

// AssembleMBAPFrame turns a PDU into an MBAP frame (MBAP header + PDU) and returns it as bytes.
func AssembleMBAPFrame(txnId uint16, p *PDU) []byte {
	// transaction identifier
	payload := Uint16ToBytes(txnId)

	// protocol identifier (always 0x0000)
	payload = append(payload, 0x00, 0x00)

	// length (covers unit identifier + function code + payload fields)
	payload = append(payload, Uint16ToBytes(uint16(2+len(p.Payload)))...)

	// unit identifier
	payload = append(payload, p.UnitId)

	// function code
	payload = append(payload, p.FunctionCode)

	// payload
	payload = append(payload, p.Payload...)

	return payload
}

// ReadMBAPFrame reads one MBAP frame from r. It returns the raw header, the
// decoded PDU and the transaction id. io.EOF is returned unwrapped when the
// peer closed the connection between frames.
func ReadMBAPFrame(r io.Reader) ([]byte, *PDU, uint16, error) {
	header := make([]byte, MBAPHeaderLength)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, nil, 0, err
	}

	txnId := BytesToUint16(header[0:2])
	protocolId := BytesToUint16(header[2:4])
	length := BytesToUint16(header[4:6])

	if protocolId != 0 {
		return header, nil, txnId, fmt.Errorf("invalid protocol id %d", protocolId)
	}
	// length counts the unit id, so the PDU is length-1 bytes
	if length < 2 || int(length)-1 > maxPDULength {
		return header, nil, txnId, fmt.Errorf("invalid MBAP length %d", length)
	}

	body := make([]byte, length-1)
	if _, err := io.ReadFull(r, body); err != nil {
		return header, nil, txnId, fmt.Errorf("failed to read PDU: %w", err)
	}

	return header, &PDU{
		UnitId:       header[6],
		FunctionCode: body[0],
		Payload:      body[1:],
	}, txnId, nil
}

func Uint16ToBytes(in uint16) []byte {
	out := make([]byte, 2)
	binary.BigEndian.PutUint16(out, in)
	return out
}

func BytesToUint16(in []byte) uint16 {
	return binary.BigEndian.Uint16(in)
}

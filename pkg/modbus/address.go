package modbus

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseAddress reads a register address written as hex ("0x8000"), octal
// ("0o100") or decimal.
func ParseAddress(s string) (uint16, error) {
	addr, err := strconv.ParseUint(strings.TrimSpace(s), 0, 16)
	if err != nil {
		return 0, fmt.Errorf("invalid register address %q: %w", s, err)
	}
	return uint16(addr), nil
}

// FormatAddress renders addr the way ParseAddress reads it back.
func FormatAddress(addr uint16) string {
	return fmt.Sprintf("0x%04X", addr)
}

// AddressList collects register addresses from a repeatable flag.
type AddressList []uint16

func (l *AddressList) Set(s string) error {
	addr, err := ParseAddress(s)
	if err != nil {
		return err
	}
	*l = append(*l, addr)
	return nil
}

func (l *AddressList) String() string {
	parts := make([]string, len(*l))
	for i, addr := range *l {
		parts[i] = FormatAddress(addr)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

func (l *AddressList) Type() string {
	return "address"
}

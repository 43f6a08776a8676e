package gomotion

import "math"

const (
	// Scale maps an output level to register counts. 10.0 reaches full
	// positive scale.
	Scale = 3276.7

	PositiveMin = 0
	PositiveMax = 32767
	NegativeMin = 32768
	NegativeMax = math.MaxUint16
)

// ScaledRegisterValue is an analog output level encoded for a 16-bit
// holding register. Non-negative levels occupy [0, 32767], negative levels
// [32768, 65535].
type ScaledRegisterValue uint16

func (v ScaledRegisterValue) Uint16() uint16 {
	return uint16(v)
}

// Encode scales v into its register encoding, saturating at the range ends.
//
// Negative levels and NaN always encode to 65535: the negative branch adds the scale
// to the register span without looking at v. Deployed devices rely on that
// value, so it is kept as is.
func Encode(v float64) ScaledRegisterValue {
	if v >= 0 {
		return ScaledRegisterValue(clamp(math.Floor(Scale*v), PositiveMin, PositiveMax))
	}
	return ScaledRegisterValue(clamp(Scale+float64(math.MaxUint16), NegativeMin, NegativeMax))
}

func clamp(raw, lo, hi float64) float64 {
	if raw < lo {
		return lo
	}
	if raw > hi {
		return hi
	}
	return raw
}

package status

import (
	"fmt"
	"math"
	"strconv"
)

// Kind tags the active member of a Value.
//
// The codes double as descriptor varieties: bool and float are stored in a
// descriptor as their kind code, integers as +width (unsigned) or -width
// (signed).
type Kind int8

const (
	KindSigned   Kind = -2
	KindFloat    Kind = -1
	KindEmpty    Kind = 0
	KindBool     Kind = 1
	KindUnsigned Kind = 2
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindSigned:
		return "SIGNED"
	case KindFloat:
		return "FLOAT"
	case KindEmpty:
		return "EMPTY"
	case KindBool:
		return "BOOL"
	case KindUnsigned:
		return "UNSIGNED"
	default:
		return fmt.Sprintf("Kind(%d)", int8(k))
	}
}

// Order is the outcome of Value.Compare.
type Order int8

const (
	OrderFailed  Order = -2
	OrderLess    Order = -1
	OrderEqual   Order = 0
	OrderGreater Order = 1
)

// String returns the order name.
func (o Order) String() string {
	switch o {
	case OrderLess:
		return "LESS"
	case OrderEqual:
		return "EQUAL"
	case OrderGreater:
		return "GREATER"
	default:
		return "FAILED"
	}
}

// Evaluation is the three-valued result of a condition.
type Evaluation int8

const (
	Failed Evaluation = -1
	False  Evaluation = 0
	True   Evaluation = 1
)

// String returns the evaluation name.
func (e Evaluation) String() string {
	switch {
	case e < 0:
		return "failed"
	case e > 0:
		return "true"
	default:
		return "false"
	}
}

// Value is an immutable tagged scalar.
//
// The zero Value is empty.
type Value struct {
	kind Kind
	bits uint64
}

// Empty returns the empty value.
func Empty() Value { return Value{} }

// Bool returns a bool value.
func Bool(b bool) Value {
	v := Value{kind: KindBool}
	if b {
		v.bits = 1
	}
	return v
}

// Unsigned returns an unsigned integer value.
func Unsigned(u uint64) Value { return Value{kind: KindUnsigned, bits: u} }

// Signed returns a signed integer value.
func Signed(s int64) Value { return Value{kind: KindSigned, bits: uint64(s)} }

// Float returns a float value.
func Float(f float64) Value { return Value{kind: KindFloat, bits: math.Float64bits(f)} }

// Kind returns the active kind.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether v holds no value.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// AsBool returns the bool member.
func (v Value) AsBool() (bool, bool) {
	return v.bits != 0, v.kind == KindBool
}

// AsUnsigned returns the unsigned member.
func (v Value) AsUnsigned() (uint64, bool) {
	return v.bits, v.kind == KindUnsigned
}

// AsSigned returns the signed member.
func (v Value) AsSigned() (int64, bool) {
	return int64(v.bits), v.kind == KindSigned
}

// AsFloat returns the float member.
func (v Value) AsFloat() (float64, bool) {
	return math.Float64frombits(v.bits), v.kind == KindFloat
}

// String formats the value in the same syntax Make accepts.
func (v Value) String() string {
	switch v.kind {
	case KindBool:
		return strconv.FormatBool(v.bits != 0)
	case KindUnsigned:
		return strconv.FormatUint(v.bits, 10)
	case KindSigned:
		return strconv.FormatInt(int64(v.bits), 10)
	case KindFloat:
		return strconv.FormatFloat(math.Float64frombits(v.bits), 'g', -1, 64)
	default:
		return ""
	}
}

// Compare orders v against right.
//
// Rules:
//   - empty values never compare
//   - bool compares only with bool (false < true)
//   - a negative signed value is less than any unsigned value
//   - an integer compared with a float must survive a round trip through
//     float64 unchanged, otherwise the result is OrderFailed
//   - NaN never compares
func (v Value) Compare(right Value) Order {
	switch v.kind {
	case KindBool:
		if right.kind != KindBool {
			return OrderFailed
		}
		return compareOrdered(v.bits, right.bits)
	case KindUnsigned:
		return compareUnsigned(v.bits, right)
	case KindSigned:
		return compareSigned(int64(v.bits), right)
	case KindFloat:
		return compareFloat(math.Float64frombits(v.bits), right)
	default:
		return OrderFailed
	}
}

func compareUnsigned(left uint64, right Value) Order {
	switch right.kind {
	case KindUnsigned:
		return compareOrdered(left, right.bits)
	case KindSigned:
		r := int64(right.bits)
		if r < 0 {
			return OrderGreater
		}
		return compareOrdered(left, uint64(r))
	case KindFloat:
		return mirror(compareFloatUnsigned(math.Float64frombits(right.bits), left))
	default:
		return OrderFailed
	}
}

func compareSigned(left int64, right Value) Order {
	switch right.kind {
	case KindUnsigned:
		if left < 0 {
			return OrderLess
		}
		return compareOrdered(uint64(left), right.bits)
	case KindSigned:
		return compareOrdered(left, int64(right.bits))
	case KindFloat:
		return mirror(compareFloatSigned(math.Float64frombits(right.bits), left))
	default:
		return OrderFailed
	}
}

func compareFloat(left float64, right Value) Order {
	switch right.kind {
	case KindUnsigned:
		return compareFloatUnsigned(left, right.bits)
	case KindSigned:
		return compareFloatSigned(left, int64(right.bits))
	case KindFloat:
		r := math.Float64frombits(right.bits)
		if math.IsNaN(left) || math.IsNaN(r) {
			return OrderFailed
		}
		return compareOrdered(left, r)
	default:
		return OrderFailed
	}
}

// compareFloatUnsigned compares a float against an unsigned integer that
// must be exactly representable as float64.
func compareFloatUnsigned(left float64, right uint64) Order {
	r := float64(right)
	if math.IsNaN(left) || r >= 0x1p64 || uint64(r) != right {
		return OrderFailed
	}
	return compareOrdered(left, r)
}

// compareFloatSigned compares a float against a signed integer that must
// be exactly representable as float64.
func compareFloatSigned(left float64, right int64) Order {
	r := float64(right)
	if math.IsNaN(left) || r >= 0x1p63 || int64(r) != right {
		return OrderFailed
	}
	return compareOrdered(left, r)
}

func compareOrdered[T uint64 | int64 | float64](l, r T) Order {
	switch {
	case l < r:
		return OrderLess
	case r < l:
		return OrderGreater
	default:
		return OrderEqual
	}
}

func mirror(o Order) Order {
	if o == OrderFailed {
		return o
	}
	return -o
}

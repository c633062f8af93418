package status

import (
	"fmt"
	"math"
	"strings"
)

// Comparison is a relational operator applied by Evaluate.
type Comparison uint8

const (
	Equal Comparison = iota
	NotEqual
	Less
	LessEqual
	Greater
	GreaterEqual
)

var comparisonNames = [...]string{"==", "!=", "<", "<=", ">", ">="}

// String returns the operator symbol.
func (c Comparison) String() string {
	if int(c) < len(comparisonNames) {
		return comparisonNames[c]
	}
	return fmt.Sprintf("Comparison(%d)", uint8(c))
}

// ParseComparison accepts a symbol ("<=") or a name ("LESS_EQUAL").
func ParseComparison(s string) (Comparison, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "==", "EQUAL":
		return Equal, true
	case "!=", "NOT_EQUAL":
		return NotEqual, true
	case "<", "LESS":
		return Less, true
	case "<=", "LESS_EQUAL":
		return LessEqual, true
	case ">", "GREATER":
		return Greater, true
	case ">=", "GREATER_EQUAL":
		return GreaterEqual, true
	}
	return Equal, false
}

// Evaluate applies op to v and right.
// Returns Failed when the two values cannot be ordered.
func (v Value) Evaluate(op Comparison, right Value) Evaluation {
	order := v.Compare(right)
	if order == OrderFailed {
		return Failed
	}
	var ok bool
	switch op {
	case Equal:
		ok = order == OrderEqual
	case NotEqual:
		ok = order != OrderEqual
	case Less:
		ok = order == OrderLess
	case LessEqual:
		ok = order != OrderGreater
	case Greater:
		ok = order == OrderGreater
	case GreaterEqual:
		ok = order != OrderLess
	default:
		return Failed
	}
	if ok {
		return True
	}
	return False
}

// Operator is an assignment operator applied by Assign.
type Operator uint8

const (
	Copy Operator = iota
	Add
	Sub
	Mult
	Div
	Mod
	Or
	Xor
	And
)

var assignmentNames = [...]string{":=", "+=", "-=", "*=", "/=", "%=", "|=", "^=", "&="}

// String returns the operator symbol.
func (a Operator) String() string {
	if int(a) < len(assignmentNames) {
		return assignmentNames[a]
	}
	return fmt.Sprintf("Operator(%d)", uint8(a))
}

// ParseOperator accepts a symbol ("+=") or a name ("ADD").
func ParseOperator(s string) (Operator, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case ":=", "=", "COPY":
		return Copy, true
	case "+=", "ADD":
		return Add, true
	case "-=", "SUB":
		return Sub, true
	case "*=", "MULT":
		return Mult, true
	case "/=", "DIV":
		return Div, true
	case "%=", "MOD":
		return Mod, true
	case "|=", "OR":
		return Or, true
	case "^=", "XOR":
		return Xor, true
	case "&=", "AND":
		return And, true
	}
	return Copy, false
}

// Assign computes "v op right" and returns the result in v's kind.
//
// The operation fails when right cannot be converted to v's kind without
// loss, on division by zero, on arithmetic over bools and on bitwise
// operations over floats.
func (v Value) Assign(op Operator, right Value) (Value, bool) {
	if op == Copy {
		if v.kind == KindEmpty {
			return right, !right.IsEmpty()
		}
		return right.convert(v.kind)
	}
	r, ok := right.convert(v.kind)
	if !ok {
		return Empty(), false
	}
	switch v.kind {
	case KindBool:
		return assignBool(v.bits != 0, op, r.bits != 0)
	case KindUnsigned:
		return assignUnsigned(v.bits, op, r.bits)
	case KindSigned:
		return assignSigned(int64(v.bits), op, int64(r.bits))
	case KindFloat:
		return assignFloat(math.Float64frombits(v.bits), op, math.Float64frombits(r.bits))
	default:
		return Empty(), false
	}
}

// convert returns v in the target kind when the conversion is exact.
func (v Value) convert(kind Kind) (Value, bool) {
	if v.kind == kind {
		return v, kind != KindEmpty
	}
	switch kind {
	case KindUnsigned:
		switch v.kind {
		case KindSigned:
			if s := int64(v.bits); s >= 0 {
				return Unsigned(uint64(s)), true
			}
		case KindFloat:
			f := math.Float64frombits(v.bits)
			if f >= 0 && f < 0x1p64 && f == math.Trunc(f) {
				return Unsigned(uint64(f)), true
			}
		}
	case KindSigned:
		switch v.kind {
		case KindUnsigned:
			if v.bits <= math.MaxInt64 {
				return Signed(int64(v.bits)), true
			}
		case KindFloat:
			f := math.Float64frombits(v.bits)
			if f >= -0x1p63 && f < 0x1p63 && f == math.Trunc(f) {
				return Signed(int64(f)), true
			}
		}
	case KindFloat:
		switch v.kind {
		case KindUnsigned:
			if f := float64(v.bits); f < 0x1p64 && uint64(f) == v.bits {
				return Float(f), true
			}
		case KindSigned:
			s := int64(v.bits)
			if f := float64(s); f < 0x1p63 && int64(f) == s {
				return Float(f), true
			}
		}
	}
	return Empty(), false
}

func assignBool(l bool, op Operator, r bool) (Value, bool) {
	switch op {
	case Or:
		return Bool(l || r), true
	case Xor:
		return Bool(l != r), true
	case And:
		return Bool(l && r), true
	}
	return Empty(), false
}

func assignUnsigned(l uint64, op Operator, r uint64) (Value, bool) {
	switch op {
	case Add:
		return Unsigned(l + r), true
	case Sub:
		return Unsigned(l - r), true
	case Mult:
		return Unsigned(l * r), true
	case Div:
		if r == 0 {
			return Empty(), false
		}
		return Unsigned(l / r), true
	case Mod:
		if r == 0 {
			return Empty(), false
		}
		return Unsigned(l % r), true
	case Or:
		return Unsigned(l | r), true
	case Xor:
		return Unsigned(l ^ r), true
	case And:
		return Unsigned(l & r), true
	}
	return Empty(), false
}

func assignSigned(l int64, op Operator, r int64) (Value, bool) {
	switch op {
	case Add:
		return Signed(l + r), true
	case Sub:
		return Signed(l - r), true
	case Mult:
		return Signed(l * r), true
	case Div:
		if r == 0 {
			return Empty(), false
		}
		return Signed(l / r), true
	case Mod:
		if r == 0 {
			return Empty(), false
		}
		return Signed(l % r), true
	case Or:
		return Signed(l | r), true
	case Xor:
		return Signed(l ^ r), true
	case And:
		return Signed(l & r), true
	}
	return Empty(), false
}

func assignFloat(l float64, op Operator, r float64) (Value, bool) {
	switch op {
	case Add:
		return Float(l + r), true
	case Sub:
		return Float(l - r), true
	case Mult:
		return Float(l * r), true
	case Div:
		if r == 0 {
			return Empty(), false
		}
		return Float(l / r), true
	case Mod:
		if r == 0 {
			return Empty(), false
		}
		return Float(math.Mod(l, r)), true
	}
	return Empty(), false
}

// Assignment is a pending "key op= value" write.
type Assignment struct {
	Key      Key
	Operator Operator
	Value    Value
}

// String formats the assignment for logs and traces.
func (a Assignment) String() string {
	return fmt.Sprintf("%d %s %s", uint32(a.Key), a.Operator, a.Value)
}

package status

import (
	"math"
	"strconv"
	"strings"
)

// Make parses s into a Value.
//
// Parsing is attempted in order: bool, unsigned, signed, float. Integers
// are decimal, or hexadecimal with a 0x prefix. NaN and infinities are
// rejected. The whole string must be consumed; a partial parse is a
// failure. hint restricts the result:
//
//	KindEmpty     any kind
//	KindBool      only "true"/"false" (case-insensitive)
//	KindUnsigned  non-negative integers
//	KindSigned    integers, stored as signed
//	KindFloat     any number, stored as float
//
// Returns Empty on mismatch.
func Make(s string, hint Kind) Value {
	if hint == KindBool || hint == KindEmpty {
		if b, ok := parseBool(s); ok {
			return Bool(b)
		}
		if hint == KindBool {
			return Empty()
		}
	}

	if u, ok := parseUint(s); ok {
		switch hint {
		case KindFloat:
			return Float(float64(u))
		case KindSigned:
			if u > math.MaxInt64 {
				return Empty()
			}
			return Signed(int64(u))
		default:
			return Unsigned(u)
		}
	}

	if i, ok := parseInt(s); ok {
		switch hint {
		case KindFloat:
			return Float(float64(i))
		case KindUnsigned:
			return Empty()
		default:
			return Signed(i)
		}
	}

	if hint == KindEmpty || hint == KindFloat {
		if f, err := strconv.ParseFloat(s, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
			return Float(f)
		}
	}
	return Empty()
}

// integerParts splits an optional sign and 0x prefix off s.
func integerParts(s string) (sign, digits string, base int, ok bool) {
	body := s
	if body != "" && (body[0] == '-' || body[0] == '+') {
		sign, body = body[:1], body[1:]
	}
	if len(body) > 1 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		digits, base = body[2:], 16
	} else {
		digits, base = body, 10
	}
	if digits == "" || digits[0] == '-' || digits[0] == '+' {
		return "", "", 0, false
	}
	return sign, digits, base, true
}

func parseUint(s string) (uint64, bool) {
	sign, digits, base, ok := integerParts(s)
	if !ok || sign != "" {
		return 0, false
	}
	u, err := strconv.ParseUint(digits, base, 64)
	return u, err == nil
}

func parseInt(s string) (int64, bool) {
	sign, digits, base, ok := integerParts(s)
	if !ok {
		return 0, false
	}
	i, err := strconv.ParseInt(sign+digits, base, 64)
	return i, err == nil
}

func parseBool(s string) (bool, bool) {
	switch {
	case strings.EqualFold(s, "true"):
		return true, true
	case strings.EqualFold(s, "false"):
		return false, true
	}
	return false, false
}

// ParseKind accepts a kind name as written in status tables.
func ParseKind(s string) (Kind, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "EMPTY":
		return KindEmpty, true
	case "BOOL":
		return KindBool, true
	case "UNSIGNED":
		return KindUnsigned, true
	case "SIGNED":
		return KindSigned, true
	case "FLOAT":
		return KindFloat, true
	}
	return KindEmpty, false
}

package engine

import (
	"encoding/json"
	"errors"
	"math"
	"math/big"
	"regexp"
	"strconv"
	"strings"

	"smartalerts/internal/model"
)

// Match applies th's operator to a resolved record value.
func Match(th model.Threshold, value any) bool {
	switch th.Operator {
	case model.OpGreaterThan:
		return ToNumber(value) > ToNumber(th.Value)
	case model.OpLessThan:
		return ToNumber(value) < ToNumber(th.Value)
	case model.OpEquals:
		return StrictEqual(value, th.Value)
	case model.OpNotEquals:
		return !StrictEqual(value, th.Value)
	case model.OpBetween:
		v := ToNumber(value)
		return ToNumber(th.Value) <= v && v <= ToNumber(th.MaxValue)
	}
	return false
}

// ToNumber coerces v the way a JSON client would: nil is 0, booleans are
// 1 or 0, blank strings are 0, and anything unparsable is NaN.
func ToNumber(v any) float64 {
	if f, ok := numeric(v); ok {
		return f
	}
	switch n := v.(type) {
	case nil:
		return 0
	case bool:
		if n {
			return 1
		}
		return 0
	case string:
		return stringToNumber(n)
	}
	return math.NaN()
}

var decimalLiteral = regexp.MustCompile(`^[+-]?(\d+\.?\d*|\.\d+)([eE][+-]?\d+)?$`)

func stringToNumber(s string) float64 {
	s = strings.TrimSpace(s)
	switch s {
	case "":
		return 0
	case "Infinity", "+Infinity":
		return math.Inf(1)
	case "-Infinity":
		return math.Inf(-1)
	}
	if len(s) > 2 && s[0] == '0' {
		base := 0
		switch s[1] {
		case 'x', 'X':
			base = 16
		case 'o', 'O':
			base = 8
		case 'b', 'B':
			base = 2
		}
		if base != 0 {
			// Prefixed literals are unsigned integers of any length.
			if s[2] == '+' || s[2] == '-' {
				return math.NaN()
			}
			n, ok := new(big.Int).SetString(s[2:], base)
			if !ok {
				return math.NaN()
			}
			f, _ := new(big.Float).SetInt(n).Float64()
			return f
		}
	}
	if !decimalLiteral.MatchString(s) {
		return math.NaN()
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil && !errors.Is(err, strconv.ErrRange) {
		return math.NaN()
	}
	return f
}

// StrictEqual compares without coercion: "5" and 5 differ. Numbers of any
// Go kind compare by value.
func StrictEqual(a, b any) bool {
	if fa, ok := numeric(a); ok {
		fb, ok := numeric(b)
		return ok && fa == fb
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case bool:
		y, ok := b.(bool)
		return ok && x == y
	}
	return false
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return math.NaN(), true
		}
		return f, true
	}
	return 0, false
}

// Package value implements the runtime value domain shared by the
// compiler and the VM: a Go `any` holding one of nil, bool, float64,
// string, or *bytecode.Function, represented as a bare interface{}
// rather than a hand-rolled tagged union.
package value

import (
	"fmt"
	"strconv"

	"github.com/kristofer/lox/pkg/bytecode"
)

// IsTruthy applies the language's truthiness rule: nil and false are
// falsy, everything else (including 0 and "") is truthy.
func IsTruthy(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	return true
}

// IsEqual applies the language's equality rule: same-type value equality
// for bool/float64/string, identity for *bytecode.Function, nil only
// equals nil, and any cross-type comparison is false.
func IsEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	switch av := a.(type) {
	case bool:
		bv, ok := b.(bool)
		return ok && av == bv
	case float64:
		bv, ok := b.(float64)
		return ok && av == bv
	case string:
		bv, ok := b.(string)
		return ok && av == bv
	case *bytecode.Function:
		bv, ok := b.(*bytecode.Function)
		return ok && av == bv
	default:
		return false
	}
}

// TypeName names a value's kind for error messages.
func TypeName(v any) string {
	switch v.(type) {
	case nil:
		return "nil"
	case bool:
		return "Bool"
	case float64:
		return "Number"
	case string:
		return "String"
	case *bytecode.Function:
		return "Function"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// Stringify produces the display form used by `print`, string
// concatenation, and REPL echoing.
func Stringify(v any) string {
	switch val := v.(type) {
	case nil:
		return "nil"
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return formatNumber(val)
	case string:
		return val
	case *bytecode.Function:
		return val.String()
	default:
		return fmt.Sprintf("%v", val)
	}
}

func formatNumber(n float64) string {
	return strconv.FormatFloat(n, 'g', -1, 64)
}

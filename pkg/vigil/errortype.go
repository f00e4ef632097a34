// errortype.go names errors for grouping and wraps non-error panic values.

package vigil

import (
	"errors"
	"fmt"
	"reflect"
)

// PanicError carries a recovered panic value that was not itself an error.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	if s, ok := e.Value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", e.Value)
}

// AsError converts a recovered panic value into an error. Errors (including
// runtime.Error values) are returned as-is; anything else is wrapped in a
// *PanicError. A nil value returns nil.
func AsError(recovered any) error {
	if recovered == nil {
		return nil
	}
	if err, ok := recovered.(error); ok {
		return err
	}
	return &PanicError{Value: recovered}
}

// transparentWrappers only add a message prefix or a stack; the grouping type
// is whatever they wrap.
var transparentWrappers = map[string]bool{
	"*fmt.wrapError":      true,
	"*errors.withStack":   true,
	"*errors.withMessage": true,
}

// ErrorTypeName returns the concrete Go type name used as exceptionType.
func ErrorTypeName(err error) string {
	if err == nil {
		return "nil"
	}
	for {
		if pe, ok := err.(*PanicError); ok {
			if pe.Value == nil {
				return "panic(nil)"
			}
			return "panic(" + reflect.TypeOf(pe.Value).String() + ")"
		}
		name := reflect.TypeOf(err).String()
		if !transparentWrappers[name] {
			return name
		}
		next := errors.Unwrap(err)
		if next == nil {
			return name
		}
		err = next
	}
}

// errorMessage renders err.Error(), surviving a panicking implementation.
func errorMessage(err error) (msg string) {
	if err == nil {
		return ""
	}
	defer func() {
		if r := recover(); r != nil {
			msg = "[unreadable error message]"
		}
	}()
	return err.Error()
}

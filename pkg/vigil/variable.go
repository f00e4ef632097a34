// variable.go converts arbitrary runtime values into bounded CapturedVariable trees.

package vigil

import (
	"fmt"
	"reflect"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"
)

// FunctionType is the type label used for every func value.
const FunctionType = "Function"

// ArrayType is the type label used for every slice and array value.
const ArrayType = "Array"

// maxIndirections bounds pointer chasing for self-referential pointer types.
const maxIndirections = 16

var (
	errorType    = reflect.TypeOf((*error)(nil)).Elem()
	stringerType = reflect.TypeOf((*fmt.Stringer)(nil)).Elem()
)

// category is the closed set of value shapes the capturer knows how to render.
type category int

const (
	categoryNull category = iota
	categoryScalar
	categoryText
	categoryCallable
	categorySymbol
	categorySequence
	categoryMap
	categoryError
	categoryRecord
)

// Capturer turns runtime values into CapturedVariable trees bounded by depth,
// string length and collection size. It holds no mutable state and is safe for
// concurrent use.
type Capturer struct {
	maxDepth          int
	maxStringLength   int
	maxCollectionSize int
}

// NewCapturer creates a Capturer with the given bounds. A non-positive
// maxStringLength or maxCollectionSize disables that bound; a negative
// maxDepth is treated as zero.
func NewCapturer(maxDepth, maxStringLength, maxCollectionSize int) *Capturer {
	if maxDepth < 0 {
		maxDepth = 0
	}
	return &Capturer{
		maxDepth:          maxDepth,
		maxStringLength:   maxStringLength,
		maxCollectionSize: maxCollectionSize,
	}
}

// Capture converts value into a CapturedVariable named name, where depth is
// the nesting level of value (0 for a top-level local). Capture never panics.
func (c *Capturer) Capture(name string, value any, depth int) (out CapturedVariable) {
	defer func() {
		if r := recover(); r != nil {
			out = CapturedVariable{Name: name, Type: "unknown", Value: "[unreadable]"}
		}
	}()
	return c.capture(name, reflect.ValueOf(value), depth)
}

// CaptureAll captures every entry of vars at depth 0.
func (c *Capturer) CaptureAll(vars map[string]any) map[string]CapturedVariable {
	out := make(map[string]CapturedVariable, len(vars))
	for name, value := range vars {
		out[name] = c.Capture(name, value, 0)
	}
	return out
}

// safeCapture captures rv and reports false if reading it panicked.
func (c *Capturer) safeCapture(name string, rv reflect.Value, depth int) (out CapturedVariable, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			ok = false
		}
	}()
	return c.capture(name, rv, depth), true
}

func (c *Capturer) capture(name string, rv reflect.Value, depth int) CapturedVariable {
	rv = indirect(rv)

	switch classify(rv) {
	case categoryNull:
		return c.captureNull(name, rv)
	case categoryScalar:
		return CapturedVariable{Name: name, Type: rv.Type().String(), Value: scalarText(rv)}
	case categoryText:
		return c.captureText(name, rv)
	case categoryCallable:
		return CapturedVariable{Name: name, Type: FunctionType, Value: "[Function: " + funcName(rv) + "]"}
	case categorySymbol:
		text, truncated := c.truncate(callString(rv))
		return CapturedVariable{Name: name, Type: rv.Type().String(), Value: text, IsTruncated: truncated}
	case categorySequence:
		return c.captureSequence(name, rv, depth)
	case categoryMap:
		return c.captureMap(name, rv, depth)
	case categoryError:
		text, truncated := c.truncate(callError(rv))
		return CapturedVariable{Name: name, Type: rv.Type().String(), Value: text, IsTruncated: truncated}
	default:
		return c.captureRecord(name, rv, depth)
	}
}

func (c *Capturer) captureNull(name string, rv reflect.Value) CapturedVariable {
	typ := "nil"
	if rv.IsValid() {
		typ = rv.Type().String()
	}
	return CapturedVariable{Name: name, Type: typ, Value: "null", IsNull: true}
}

func (c *Capturer) captureText(name string, rv reflect.Value) CapturedVariable {
	var s string
	if rv.Kind() == reflect.String {
		s = rv.String()
	} else {
		s = string(rv.Bytes())
	}
	text, truncated := c.truncate(s)
	return CapturedVariable{Name: name, Type: rv.Type().String(), Value: text, IsTruncated: truncated}
}

func (c *Capturer) captureSequence(name string, rv reflect.Value, depth int) CapturedVariable {
	n := rv.Len()
	out := CapturedVariable{
		Name:        name,
		Type:        ArrayType,
		Value:       fmt.Sprintf("%s(%d)", rv.Type().String(), n),
		ArrayLength: &n,
	}
	if depth >= c.maxDepth || (c.maxCollectionSize > 0 && n > c.maxCollectionSize) {
		return out
	}

	elements := make([]CapturedVariable, 0, n)
	for i := 0; i < n; i++ {
		// Positional names are 1-based to match the collector's convention.
		if elem, ok := c.safeCapture("["+strconv.Itoa(i+1)+"]", rv.Index(i), depth+1); ok {
			elements = append(elements, elem)
		}
	}
	out.ArrayElements = elements
	return out
}

func (c *Capturer) captureMap(name string, rv reflect.Value, depth int) CapturedVariable {
	out := CapturedVariable{
		Name:  name,
		Type:  rv.Type().String(),
		Value: fmt.Sprintf("%s(%d entries)", rv.Type().String(), rv.Len()),
	}
	if depth >= c.maxDepth {
		return out
	}

	type entry struct {
		key   string
		value reflect.Value
	}
	keys := rv.MapKeys()
	entries := make([]entry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, entry{key: shortText(k), value: rv.MapIndex(k)})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })
	if c.maxCollectionSize > 0 && len(entries) > c.maxCollectionSize {
		entries = entries[:c.maxCollectionSize]
	}

	children := make(map[string]CapturedVariable, len(entries))
	for _, e := range entries {
		key := c.childKey(e.key, children)
		if child, ok := c.safeCapture(key, e.value, depth+1); ok {
			children[key] = child
		}
	}
	if len(children) > 0 {
		out.Children = children
	}
	return out
}

func (c *Capturer) captureRecord(name string, rv reflect.Value, depth int) CapturedVariable {
	var text string
	if implements(rv, stringerType) {
		text = callString(rv)
	} else {
		text = recordText(rv)
	}
	value, truncated := c.truncate(text)
	out := CapturedVariable{Name: name, Type: rv.Type().String(), Value: value, IsTruncated: truncated}

	// Records that print via String() may still be pointers to structs.
	fields := rv
	if fields.Kind() == reflect.Pointer {
		fields = fields.Elem()
	}
	if depth >= c.maxDepth || fields.Kind() != reflect.Struct {
		return out
	}

	t := fields.Type()
	children := make(map[string]CapturedVariable, t.NumField())
	for i := 0; i < t.NumField(); i++ {
		fieldName := t.Field(i).Name
		if child, ok := c.safeCapture(fieldName, fields.Field(i), depth+1); ok {
			children[fieldName] = child
		}
	}
	if len(children) > 0 {
		out.Children = children
	}
	return out
}

// childKey bounds a map key to maxStringLength runes. Distinct keys that
// truncate to the same prefix get a "#n" suffix so neither entry is lost.
func (c *Capturer) childKey(key string, taken map[string]CapturedVariable) string {
	short, truncated := c.truncate(key)
	if !truncated {
		return short
	}
	candidate := short
	for n := 2; ; n++ {
		if _, used := taken[candidate]; !used {
			return candidate
		}
		candidate = short + "#" + strconv.Itoa(n)
	}
}

// truncate bounds s to maxStringLength runes.
func (c *Capturer) truncate(s string) (string, bool) {
	if c.maxStringLength <= 0 || len(s) <= c.maxStringLength {
		return s, false
	}
	if utf8.RuneCountInString(s) <= c.maxStringLength {
		return s, false
	}
	n := 0
	for i := range s {
		if n == c.maxStringLength {
			return s[:i], true
		}
		n++
	}
	return s, false
}

// indirect unwraps interfaces and pointers that carry no behavior of their own.
func indirect(rv reflect.Value) reflect.Value {
	for i := 0; i < maxIndirections && rv.IsValid(); i++ {
		switch rv.Kind() {
		case reflect.Interface:
			if rv.IsNil() {
				return rv
			}
			rv = rv.Elem()
		case reflect.Pointer:
			if rv.IsNil() || implements(rv, errorType) || implements(rv, stringerType) {
				return rv
			}
			rv = rv.Elem()
		default:
			return rv
		}
	}
	return rv
}

func classify(rv reflect.Value) category {
	if !rv.IsValid() {
		return categoryNull
	}

	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface, reflect.UnsafePointer:
		if rv.IsNil() {
			return categoryNull
		}
	}

	switch rv.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		if isSymbol(rv) {
			return categorySymbol
		}
		return categoryScalar
	case reflect.String:
		if isSymbol(rv) {
			return categorySymbol
		}
		return categoryText
	case reflect.Func:
		return categoryCallable
	case reflect.Slice, reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if isSymbol(rv) {
				return categorySymbol
			}
			if rv.Kind() == reflect.Slice {
				return categoryText
			}
		}
		return categorySequence
	case reflect.Map:
		return categoryMap
	}

	if implements(rv, errorType) {
		return categoryError
	}
	return categoryRecord
}

// isSymbol reports whether rv is a named value that renders itself, such as
// an enum constant or time.Duration.
func isSymbol(rv reflect.Value) bool {
	return rv.Type().Name() != "" && implements(rv, stringerType)
}

func implements(rv reflect.Value, iface reflect.Type) bool {
	return rv.CanInterface() && rv.Type().Implements(iface)
}

func callString(rv reflect.Value) string {
	return rv.Interface().(fmt.Stringer).String()
}

func callError(rv reflect.Value) string {
	return rv.Interface().(error).Error()
}

func funcName(rv reflect.Value) string {
	if fn := runtime.FuncForPC(rv.Pointer()); fn != nil {
		return fn.Name()
	}
	return "anonymous"
}

// scalarText renders booleans and numbers without requiring Interface(),
// so unexported struct fields can be read.
func scalarText(rv reflect.Value) string {
	switch rv.Kind() {
	case reflect.Bool:
		return strconv.FormatBool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return strconv.FormatUint(rv.Uint(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	case reflect.Complex64:
		return strconv.FormatComplex(rv.Complex(), 'g', -1, 64)
	case reflect.Complex128:
		return strconv.FormatComplex(rv.Complex(), 'g', -1, 128)
	}
	return rv.Type().String()
}

// shortText is a one-line rendering that never recurses into containers.
func shortText(rv reflect.Value) string {
	rv = indirect(rv)
	switch classify(rv) {
	case categoryNull:
		return "null"
	case categoryScalar:
		return scalarText(rv)
	case categoryText:
		if rv.Kind() == reflect.String {
			return rv.String()
		}
		return string(rv.Bytes())
	case categorySymbol:
		return callString(rv)
	case categoryCallable:
		return "[Function: " + funcName(rv) + "]"
	case categorySequence:
		return fmt.Sprintf("%s(%d)", rv.Type().String(), rv.Len())
	case categoryMap:
		return fmt.Sprintf("%s(%d entries)", rv.Type().String(), rv.Len())
	case categoryError:
		return callError(rv)
	}
	if implements(rv, stringerType) {
		return callString(rv)
	}
	return rv.Type().String()
}

// recordText renders a struct one level deep: Type{A: 1, B: "x", C: []int(3)}.
func recordText(rv reflect.Value) string {
	if rv.Kind() != reflect.Struct {
		return rv.Type().String()
	}

	var sb strings.Builder
	sb.WriteString(rv.Type().String())
	sb.WriteByte('{')
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(t.Field(i).Name)
		sb.WriteString(": ")
		sb.WriteString(safeShortText(rv.Field(i)))
	}
	sb.WriteByte('}')
	return sb.String()
}

func safeShortText(rv reflect.Value) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = "?"
		}
	}()
	if f := indirect(rv); f.IsValid() && f.Kind() == reflect.String {
		return strconv.Quote(f.String())
	}
	return shortText(rv)
}

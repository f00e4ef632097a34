// frames.go walks the call stack at capture time into a bounded StackFrame list.

package vigil

import (
	"errors"
	"path/filepath"
	"reflect"
	"runtime"
	"runtime/debug"
	"strings"

	pkgerrors "github.com/pkg/errors"
)

// MaxFrames caps the number of frames in a capture.
const MaxFrames = 50

// stackTracer is implemented by errors created with github.com/pkg/errors.
type stackTracer interface {
	StackTrace() pkgerrors.StackTrace
}

// stdRoot is the source directory of the standard library in this binary,
// derived from where a known stdlib function was compiled from.
var stdRoot = func() string {
	fn := runtime.FuncForPC(reflect.ValueOf(strings.ToUpper).Pointer())
	if fn == nil {
		return ""
	}
	file, _ := fn.FileLine(fn.Entry())
	if !filepath.IsAbs(file) {
		// Built with -trimpath; fall back to package-path classification.
		return ""
	}
	return filepath.Dir(filepath.Dir(file)) + "/"
}()

// ExtractFrames returns the stack for err, most recent call first, capped at
// MaxFrames. If any error in err's chain carries a github.com/pkg/errors stack,
// the deepest one is used; otherwise the current goroutine is walked, starting
// skip frames above the caller of ExtractFrames.
//
// The result is never empty: when no frame can be recovered a single
// synthetic frame named after the error type is returned.
func ExtractFrames(err error, skip int) []StackFrame {
	var pcs []uintptr
	if st := deepestStack(err); len(st) > 0 {
		pcs = make([]uintptr, len(st))
		for i, f := range st {
			pcs[i] = uintptr(f)
		}
	} else {
		pcs = make([]uintptr, MaxFrames)
		n := runtime.Callers(skip+2, pcs)
		pcs = pcs[:n]
	}

	frames := framesFromPCs(pcs)
	if len(frames) == 0 {
		return []StackFrame{{MethodName: ErrorTypeName(err)}}
	}
	return frames
}

// deepestStack finds the stack attached closest to the origin of err.
func deepestStack(err error) pkgerrors.StackTrace {
	var found pkgerrors.StackTrace
	for e := err; e != nil; e = errors.Unwrap(e) {
		if st, ok := e.(stackTracer); ok {
			found = st.StackTrace()
		}
	}
	return found
}

func framesFromPCs(pcs []uintptr) []StackFrame {
	if len(pcs) == 0 {
		return nil
	}

	frames := make([]StackFrame, 0, min(len(pcs), MaxFrames))
	callers := runtime.CallersFrames(pcs)
	for len(frames) < MaxFrames {
		frame, more := callers.Next()
		if frame.Function != "" || frame.File != "" {
			frames = append(frames, newStackFrame(frame.Function, frame.File, frame.Line))
		}
		if !more {
			break
		}
	}
	return frames
}

func newStackFrame(function, file string, line int) StackFrame {
	sf := StackFrame{
		MethodName: function,
		IsNative:   isNativeFrame(function, file),
	}
	if sf.MethodName == "" {
		sf.MethodName = "unknown"
	}
	if file != "" {
		base := filepath.Base(file)
		sf.FileName = &base
		sf.FilePath = &file
	}
	if line > 0 {
		sf.LineNumber = &line
	}
	return sf
}

// nativeClassifier decides which frames belong to the Go runtime or the
// standard library. With absolute source paths the file location decides.
// Under -trimpath only the package path is left, and paths owned by a module
// in the build are never native, so a dotless module such as "myapp" still
// counts as user code.
type nativeClassifier struct {
	stdRoot string
	modules []string
}

var defaultClassifier = nativeClassifier{stdRoot: stdRoot, modules: buildModules()}

// buildModules lists the main module and every dependency of this binary.
func buildModules() []string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return nil
	}
	var mods []string
	if info.Main.Path != "" {
		mods = append(mods, info.Main.Path)
	}
	for _, dep := range info.Deps {
		mods = append(mods, dep.Path)
	}
	return mods
}

func (c nativeClassifier) isNative(function, file string) bool {
	if c.stdRoot != "" && file != "" {
		return strings.HasPrefix(file, c.stdRoot)
	}
	pkg := packagePath(function)
	if c.ownedByModule(pkg) {
		return false
	}
	return isStdPackage(pkg)
}

func (c nativeClassifier) ownedByModule(pkg string) bool {
	for _, mod := range c.modules {
		if pkg == mod || strings.HasPrefix(pkg, mod+"/") {
			return true
		}
	}
	return false
}

// isNativeFrame classifies with the settings of the running binary.
func isNativeFrame(function, file string) bool {
	return defaultClassifier.isNative(function, file)
}

// packagePath extracts the import path from a qualified function name such as
// "github.com/a/b.(*T).Method" or "net/http.HandlerFunc.ServeHTTP".
func packagePath(function string) string {
	slash := strings.LastIndex(function, "/")
	dot := strings.Index(function[slash+1:], ".")
	if dot < 0 {
		return function
	}
	return function[:slash+1+dot]
}

// isStdPackage applies the toolchain's rule: standard library import paths
// have no dot in their first element.
func isStdPackage(pkg string) bool {
	if pkg == "" || pkg == "main" {
		return false
	}
	first, _, _ := strings.Cut(pkg, "/")
	return !strings.Contains(first, ".")
}

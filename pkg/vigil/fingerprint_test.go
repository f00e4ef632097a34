package vigil

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"testing"
)

func frame(method string, line int, native bool) StackFrame {
	f := StackFrame{MethodName: method, IsNative: native}
	if line > 0 {
		f.LineNumber = &line
	}
	return f
}

func TestFingerprint_Stability(t *testing.T) {
	frames := []StackFrame{
		frame("main.doSomething", 42, false),
		frame("main.helper", 30, false),
		frame("main.main", 10, false),
	}

	fp1 := Fingerprint("*errors.errorString", frames)
	fp2 := Fingerprint("*errors.errorString", frames)

	if fp1 != fp2 {
		t.Errorf("Same input produced different fingerprints: %q vs %q", fp1, fp2)
	}
	if !regexp.MustCompile(`^[0-9a-f]{16}$`).MatchString(fp1) {
		t.Errorf("Fingerprint = %q, want 16 lowercase hex chars", fp1)
	}
}

func TestFingerprint_KnownValue(t *testing.T) {
	frames := []StackFrame{
		frame("main.load", 12, false),
		frame("runtime.goexit", 1700, true),
		{MethodName: "main.main"},
	}

	sum := sha256.Sum256([]byte("*fs.PathError:main.load:12:main.main:0"))
	want := hex.EncodeToString(sum[:])[:16]

	if got := Fingerprint("*fs.PathError", frames); got != want {
		t.Errorf("Fingerprint = %q, want %q", got, want)
	}
}

func TestFingerprint_NativeFramesIgnored(t *testing.T) {
	base := []StackFrame{
		frame("main.handler", 42, false),
		frame("main.main", 10, false),
	}
	withNative := []StackFrame{
		frame("runtime.gopanic", 770, true),
		frame("main.handler", 42, false),
		frame("net/http.HandlerFunc.ServeHTTP", 2220, true),
		frame("main.main", 10, false),
	}

	if Fingerprint("panic(string)", base) != Fingerprint("panic(string)", withNative) {
		t.Error("Inserting native frames should not change the fingerprint")
	}
}

func TestFingerprint_OnlyFirstFiveApplicationFrames(t *testing.T) {
	five := []StackFrame{
		frame("a.f1", 1, false),
		frame("a.f2", 2, false),
		frame("a.f3", 3, false),
		frame("a.f4", 4, false),
		frame("a.f5", 5, false),
	}
	six := append(append([]StackFrame{}, five...), frame("a.f6", 6, false))

	if Fingerprint("E", five) != Fingerprint("E", six) {
		t.Error("Frames beyond the fifth application frame should not matter")
	}
}

func TestFingerprint_DifferentErrorType_DifferentFingerprint(t *testing.T) {
	frames := []StackFrame{frame("main.handler", 42, false)}

	if Fingerprint("*fs.PathError", frames) == Fingerprint("*net.OpError", frames) {
		t.Error("Different error types should have different fingerprints")
	}
}

func TestFingerprint_DifferentLine_DifferentFingerprint(t *testing.T) {
	a := []StackFrame{frame("main.handler", 42, false)}
	b := []StackFrame{frame("main.handler", 43, false)}

	if Fingerprint("E", a) == Fingerprint("E", b) {
		t.Error("Different call sites should have different fingerprints")
	}
}

func TestFingerprint_NoFrames(t *testing.T) {
	sum := sha256.Sum256([]byte("E"))
	want := hex.EncodeToString(sum[:])[:16]

	if got := Fingerprint("E", nil); got != want {
		t.Errorf("Fingerprint = %q, want %q", got, want)
	}
}

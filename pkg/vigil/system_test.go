package vigil

import (
	"runtime"
	"testing"
	"time"
)

func TestCurrentRuntime(t *testing.T) {
	info := CurrentRuntime()

	if info.Runtime != "go" {
		t.Errorf("Runtime = %q, want go", info.Runtime)
	}
	if info.RuntimeVersion != runtime.Version() {
		t.Errorf("RuntimeVersion = %q, want %q", info.RuntimeVersion, runtime.Version())
	}
	if info.Platform != runtime.GOOS || info.Arch != runtime.GOARCH {
		t.Errorf("Platform/Arch = %s/%s, want %s/%s", info.Platform, info.Arch, runtime.GOOS, runtime.GOARCH)
	}
}

func TestHostname_NeverEmpty(t *testing.T) {
	if Hostname() == "" {
		t.Error("Hostname should never be empty")
	}
}

func TestCaptureProcessState_PopulatesFields(t *testing.T) {
	state := CaptureProcessState(time.Now().Add(-1 * time.Second))

	if state.MemoryBytes <= 0 {
		t.Errorf("MemoryBytes = %d, want > 0", state.MemoryBytes)
	}
	if state.GoroutineCount < 1 {
		t.Errorf("GoroutineCount = %d, want >= 1", state.GoroutineCount)
	}
	if state.UptimeMs <= 0 {
		t.Errorf("UptimeMs = %d, want > 0", state.UptimeMs)
	}
}

func TestCaptureProcessState_FutureStartTime(t *testing.T) {
	state := CaptureProcessState(time.Now().Add(1 * time.Hour))

	if state.UptimeMs != 0 {
		t.Errorf("UptimeMs = %d, want 0 for future start time", state.UptimeMs)
	}
}

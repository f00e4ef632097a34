// system.go describes the host process for registration and capture payloads.

package vigil

import (
	"os"
	"runtime"
	"time"
)

// RuntimeName identifies this agent's runtime to the collector.
const RuntimeName = "go"

// RuntimeInfo is the runtime_info object attached to every exception message.
type RuntimeInfo struct {
	Runtime        string `json:"runtime"`
	RuntimeVersion string `json:"runtimeVersion"`
	Platform       string `json:"platform"`
	Arch           string `json:"arch"`
}

// CurrentRuntime describes the running binary.
func CurrentRuntime() RuntimeInfo {
	return RuntimeInfo{
		Runtime:        RuntimeName,
		RuntimeVersion: runtime.Version(),
		Platform:       runtime.GOOS,
		Arch:           runtime.GOARCH,
	}
}

// Hostname returns the host name, or "unknown" when it cannot be read.
func Hostname() string {
	hostname, err := os.Hostname()
	if err != nil || hostname == "" {
		return "unknown"
	}
	return hostname
}

// ProcessState is a point-in-time view of the process, attached to captures
// under the "process" context key when enabled.
type ProcessState struct {
	MemoryBytes    int64 `json:"memory_bytes"`
	GoroutineCount int   `json:"goroutine_count"`
	UptimeMs       int64 `json:"uptime_ms"`
}

// CaptureProcessState reads process metrics. startTime is used for uptime.
func CaptureProcessState(startTime time.Time) ProcessState {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	uptimeMs := time.Since(startTime).Milliseconds()
	if uptimeMs < 0 {
		uptimeMs = 0 // Clamp to 0 if start time is in the future
	}

	return ProcessState{
		MemoryBytes:    int64(memStats.Alloc),
		GoroutineCount: runtime.NumGoroutine(),
		UptimeMs:       uptimeMs,
	}
}

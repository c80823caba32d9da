// system.go snapshots the runtime for a crash report.

package report

import (
	"os"
	"runtime"
	"time"
)

// CaptureSystemState reads the runtime's memory, scheduler and build facts.
// Uptime is measured from startTime and never negative.
func CaptureSystemState(startTime time.Time) *SystemState {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	state := &SystemState{
		MemoryBytes:    int64(ms.HeapAlloc),
		SysBytes:       ms.Sys,
		GCCycles:       ms.NumGC,
		GoroutineCount: runtime.NumGoroutine(),
		UptimeMs:       max(time.Since(startTime).Milliseconds(), 0),
		GoVersion:      runtime.Version(),
		OS:             runtime.GOOS,
		Arch:           runtime.GOARCH,
		MaxProcs:       runtime.GOMAXPROCS(0),
		CPUs:           runtime.NumCPU(),
		PID:            os.Getpid(),
	}
	state.HostName, _ = os.Hostname()
	return state
}

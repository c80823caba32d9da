// report.go defines the crash report handed to sinks.

package report

import (
	"time"

	"github.com/strongdm/crashkit/pkg/crashkit"
)

// Severity tells whether the process survived the failure.
type Severity string

const (
	// SeverityNonFatal marks a failure recorded through LogException.
	SeverityNonFatal Severity = "non-fatal"

	// SeverityFatal marks a failure that reached the uncaught handler.
	SeverityFatal Severity = "fatal"
)

// SystemState captures process metrics at the time of a failure.
type SystemState struct {
	// MemoryBytes is the current heap allocation in bytes.
	MemoryBytes int64

	// GoroutineCount is the number of live goroutines.
	GoroutineCount int

	// UptimeMs is the client's uptime in milliseconds.
	UptimeMs int64

	// HostName is the machine the failure happened on.
	HostName string

	// GoVersion, OS and Arch identify the runtime build.
	GoVersion string
	OS        string
	Arch      string

	// MaxProcs is GOMAXPROCS; CPUs is the number of logical CPUs.
	MaxProcs int
	CPUs     int

	// PID is the reporting process.
	PID int

	// SysBytes is memory obtained from the OS; GCCycles counts completed
	// collections.
	SysBytes uint64
	GCCycles uint32
}

// User identifies who was running the application.
type User struct {
	Identifier string
	Email      string
	Name       string
}

// IsZero reports whether no user attribute is set.
func (u User) IsZero() bool {
	return u == User{}
}

// Breadcrumb is one entry of the client's log.
type Breadcrumb struct {
	Timestamp time.Time
	Message   string
}

// Report is one recorded failure. The client fills every field before the
// report reaches a sink.
type Report struct {
	// Identity

	// EventID is a UUID unique to this report.
	EventID string

	// Timestamp is when the failure was recorded.
	Timestamp time.Time

	// Fingerprint groups reports of the same failure.
	Fingerprint string

	// Failure

	Severity Severity

	// ErrorType is the failure's type name, e.g. "System.IO.IOException".
	ErrorType string

	// Message is the top throwable's message.
	Message string

	// StackTrace is the throwable rendered with its cause chain.
	StackTrace string

	// Throwable is the structured failure.
	Throwable *crashkit.Throwable

	// Context

	// Keys holds the custom annotations at the time of the failure.
	Keys map[string]string

	User User

	// Breadcrumbs are the most recent log messages, oldest first.
	Breadcrumbs []Breadcrumb

	// ContextID links the report to a cxdb context when set.
	ContextID *uint64

	SystemState *SystemState

	// SDKVersion is the reporting client's version.
	SDKVersion string
}

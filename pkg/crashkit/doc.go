// Package crashkit adapts a crash-reporting SDK to Go applications.
//
// It does two things: it translates errors, including foreign exceptions
// carrying a formatted stack trace, into the structured Throwable the SDK
// records, and it routes every unhandled-failure channel of the process into
// the SDK before the process exits.
//
// # Core Components
//
//   - Crashlytics: the application-facing API (annotations, user identity,
//     non-fatal RecordException, test Crash)
//   - Translator: Exception/error to Throwable conversion with synthetic,
//     per-call-site file labels
//   - Platform: default uncaught handler slot plus the platform, process and
//     unobserved-task channels
//   - Host: kit registration and before/after initialize hooks
//   - Router: one-time setup that hooks every channel and ends the process
//     after the SDK has seen the failure
//
// # Quick Start
//
//	platform := crashkit.NewPlatform()
//	client := report.NewClient(report.WithSink(stderr.NewStderrSink()))
//	crash := crashkit.New(client)
//	host := crashkit.NewHost(platform)
//
//	router := crashkit.NewRouter(crash, host)
//	router.Initialize()
//	if err := host.Start(); err != nil {
//	    log.Fatal(err)
//	}
//
//	platform.Go(func() {
//	    // a panic here is reported, then the process exits with status 10
//	})
package crashkit

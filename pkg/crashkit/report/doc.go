// Package report is a Go-native crash reporting SDK for crashkit.
//
// A Client satisfies crashkit.SDK: it keeps annotations, the user identity
// and a breadcrumb log, turns every recorded Throwable into a Report and
// writes it to a Sink. Registered with a crashkit.Host, the client installs
// itself as the platform's uncaught handler and flushes its sink before
// handing fatal failures on.
//
// # Usage
//
//	client := report.NewClient(
//	    report.WithSink(stderr.NewStderrSink()),
//	    report.WithDefaultScrubbing(),
//	)
//	crash := crashkit.New(client)
//	router := crashkit.NewRouter(crash, host)
//	router.Initialize()
//
// Sinks live in the sinks subpackages: noop, stderr, multi, async and cxdb.
// Sink errors are logged and swallowed so that reporting never fails the
// caller.
package report

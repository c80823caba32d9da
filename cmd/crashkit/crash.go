package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/strongdm/crashkit/internal/bootstrap"
)

// Crash kinds accepted by the crash command.
const (
	kindException = "exception"
	kindPanic     = "panic"
	kindTask      = "task"
	kindForced    = "forced"
	kindRuntime   = "runtime"
)

var crashKinds = []string{kindException, kindPanic, kindTask, kindForced, kindRuntime}

// errNotTerminated is returned when a fatal kind did not end the process.
var errNotTerminated = errors.New("router did not terminate the process")

type crashOptions struct {
	kind    string
	message string
	monitor bool
	wait    time.Duration
}

func newCrashCmd(a *app) *cobra.Command {
	opts := &crashOptions{}

	cmd := &cobra.Command{
		Use:   "crash",
		Short: "Raise a test failure through the configured pipeline",
		Long: `Raises one failure of the given kind and lets the router report it.

  exception  non-fatal report, the command exits 0
  panic      goroutine panic recovered by the platform
  task       background task error nobody waited for
  forced     the SDK's deliberate test crash
  runtime    unrecovered goroutine panic, reported only with --monitor

Fatal kinds end the process with the configured exit code.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.monitor {
				a.cfg.Router.Monitor = true
			}
			stack, err := bootstrap.New(a.cfg, bootstrap.WithLogger(a.logger))
			if err != nil {
				return err
			}
			if err := stack.Start(); err != nil {
				_ = stack.Close()
				return err
			}
			return runCrash(stack, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&opts.kind, "kind", "k", kindException, fmt.Sprintf("Failure kind %v", crashKinds))
	cmd.Flags().StringVarP(&opts.message, "message", "m", "crashkit test failure", "Failure message")
	cmd.Flags().BoolVar(&opts.monitor, "monitor", false, "Run under the panic monitor")
	cmd.Flags().DurationVar(&opts.wait, "wait", 5*time.Second, "How long to wait for a fatal failure to end the process")
	return cmd
}

// runCrash raises the failure. For fatal kinds the router exits the process
// from another goroutine; runCrash only returns if that never happens.
func runCrash(stack *bootstrap.Stack, opts *crashOptions, out io.Writer) error {
	crash := stack.Crashlytics
	crash.Log("crash command started").
		SetStringValue("crash kind", opts.kind)

	switch opts.kind {
	case kindException:
		crash.RecordException(errors.New(opts.message))
		if err := stack.Client.Flush(context.Background()); err != nil {
			return err
		}
		fmt.Fprintln(out, "non-fatal exception recorded")
		return stack.Close()

	case kindPanic:
		stack.Platform.Go(func() {
			panic(opts.message)
		})

	case kindTask:
		stack.Tasks.Run(context.Background(), func(context.Context) error {
			return errors.New(opts.message)
		})
		stack.Tasks.Close()

	case kindForced:
		stack.Platform.Go(crash.Crash)

	case kindRuntime:
		go func() {
			var m map[string]int
			m[opts.message]++
		}()

	default:
		_ = stack.Close()
		return fmt.Errorf("unknown crash kind %q (valid: %v)", opts.kind, crashKinds)
	}

	time.Sleep(opts.wait)
	return fmt.Errorf("%w (state %s)", errNotTerminated, stack.Router.State())
}

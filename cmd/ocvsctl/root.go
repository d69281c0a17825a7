// Command ocvsctl is the CLI over the daemon's SDK operations (spec.md
// §1), grounded on original_source/src/cli/main.cpp's one-line dispatch
// against the SDK, expanded here into one subcommand per operation, in
// the phenix/cmd package's cobra idiom (one newXxxCmd() per file,
// registered onto rootCmd from that file's own init()).
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/address"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/route"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/ipclog"
	"github.com/ocvsmd-go/ocvsmd/pkg/sdk"
)

var protocolVersion = route.ProtocolVersion{Major: 1, Minor: 0}

var rootCmd = &cobra.Command{
	Use:          "ocvsctl",
	Short:        "control client for the ocvsmd node-management daemon",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().String("connect", "unix:/var/run/ocvsmd.sock", "daemon endpoint to connect to (unix:/path, host:port, ...)")
	rootCmd.PersistentFlags().Duration("timeout", 5*time.Second, "per-node request timeout")
	rootCmd.PersistentFlags().String("log-level", "warn", "ocvsctl's own log level (error|warn|info|debug|trace)")
	viper.BindPFlags(rootCmd.PersistentFlags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// dialDaemon opens a ClientRouter to the configured daemon endpoint,
// running its owning executor in the background. Every subcommand calls
// this once and defers closeFn.
func dialDaemon() (cli *router.ClientRouter, exec *executor.Executor, closeFn func(), err error) {
	ep, err := address.Parse(viper.GetString("connect"), 0)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("ocvsctl: parsing --connect: %w", err)
	}

	log := ipclog.New(ipclog.ParseLevel(viper.GetString("log-level")))
	exec = executor.New()
	ctx, cancel := context.WithCancel(context.Background())
	go exec.Run(ctx)

	cli, err = sdk.Dial(ctx, exec, log, ep.Network(), ep.String(), protocolVersion, sdk.DialOptions{MaxRetryInterval: 5 * time.Second, MaxRetryCount: 3})
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}

	return cli, exec, func() {
		cli.Close()
		cancel()
	}, nil
}

func requestTimeoutMillis() int64 {
	return viper.GetDuration("timeout").Milliseconds()
}

// submitAndWait builds a Sender on exec's own goroutine (internal/sdk's
// adapters must open their channel from the executor that owns cli) and
// sync_waits it from the calling (cobra RunE) goroutine, the same
// two-step dance internal/sdk's own tests use.
func submitAndWait[T any](exec *executor.Executor, build func() *executor.Sender[T]) T {
	var sender *executor.Sender[T]
	done := make(chan struct{})
	exec.Submit(func() {
		sender = build()
		close(done)
	})
	<-done

	v, _ := executor.SyncWait(context.Background(), sender) // ctx.Background never cancels
	return v
}

// callReq is submitAndWait's counterpart for adapters whose result type
// mentions an unexported internal/sdk type (the register read/write map
// key): passing the adapter function itself, rather than a closure
// literal naming its return type, lets the compiler infer T without
// cmd/ocvsctl ever needing to spell that type.
func callReq[Req, T any](exec *executor.Executor, fn func(*router.ClientRouter, Req) *executor.Sender[T], cli *router.ClientRouter, req Req) T {
	var sender *executor.Sender[T]
	done := make(chan struct{})
	exec.Submit(func() {
		sender = fn(cli, req)
		close(done)
	})
	<-done

	v, _ := executor.SyncWait(context.Background(), sender)
	return v
}

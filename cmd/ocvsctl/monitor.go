package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/channel"
	"github.com/ocvsmd-go/ocvsmd/internal/ipc/router"
	"github.com/ocvsmd-go/ocvsmd/internal/ipcerr"
	sdkops "github.com/ocvsmd-go/ocvsmd/internal/sdk"
	"github.com/ocvsmd-go/ocvsmd/internal/service"
	"github.com/ocvsmd-go/ocvsmd/pkg/cyphal"
	"github.com/ocvsmd-go/ocvsmd/pkg/monitor"
)

func newMonitorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "inspect the daemon's known-node table",
	}
	cmd.AddCommand(newMonitorSnapshotCmd(), newMonitorSubscribeCmd())
	return cmd
}

func init() {
	rootCmd.AddCommand(newMonitorCmd())
}

// monitorAvatar mirrors monitor.Avatar's wire shape. internal/sdk.MonitorSnapshot
// decodes into the same anonymous struct shape (declared there as a type
// alias, so it and this type are identical), keeping internal/sdk free of
// a pkg/monitor import.
type monitorAvatar = struct {
	NodeID          cyphal.NodeID `json:"node_id"`
	Online          bool          `json:"online"`
	LastHeartbeatAt string        `json:"last_heartbeat_at"`
	Health          uint8         `json:"health"`
	Mode            uint8         `json:"mode"`
}

func newMonitorSnapshotCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "snapshot",
		Short: "print the current state of every known node",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, exec, closeFn, err := dialDaemon()
			if err != nil {
				return err
			}
			defer closeFn()

			outcome := submitAndWait(exec, func() *executor.Sender[sdkops.Outcome[[]monitorAvatar]] {
				return sdkops.MonitorSnapshot(cli)
			})
			for _, a := range outcome.Value {
				printMonitorAvatar(a)
			}
			return outcome.Err
		},
	}
}

func printMonitorAvatar(a monitorAvatar) {
	fmt.Printf("node %d: online=%v health=%d mode=%d last_heartbeat=%s\n",
		a.NodeID, a.Online, a.Health, a.Mode, a.LastHeartbeatAt)
}

// newMonitorSubscribeCmd streams monitor.Event until interrupted. Unlike
// every other subcommand it cannot go through internal/sdk's one-shot
// Sender/Outcome adapters (subscribe is long-lived, not one-shot), so it
// opens the channel directly against the ClientRouter, the same raw shape
// internal/service.MonitorService.subscribeFactory uses server-side, just
// from the client end.
func newMonitorSubscribeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "subscribe",
		Short: "stream node add/remove/change events until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, exec, closeFn, err := dialDaemon()
			if err != nil {
				return err
			}
			defer closeFn()

			sig := make(chan os.Signal, 1)
			signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sig)

			codec := channel.JSONCodec[monitor.Event]{}
			events := make(chan monitor.Event, 16)
			done := make(chan error, 1)

			var ch *router.ClientChannel
			exec.Submit(func() {
				ch = cli.OpenChannel(service.MonitorSubscribeServiceName, func(ev router.ChannelEvent) {
					switch ev.Kind {
					case router.EventInput:
						e, decErr := codec.Unmarshal(ev.Payload)
						if decErr != nil {
							return
						}
						events <- e
					case router.EventCompleted:
						if ev.ErrorCode != ipcerr.OK {
							done <- fmt.Errorf("subscribe: daemon closed channel: code %d", ev.ErrorCode)
						} else {
							done <- nil
						}
						close(done)
					}
				})
				if sendErr := ch.Send(nil); sendErr != nil {
					done <- sendErr
					close(done)
				}
			})

			for {
				select {
				case e := <-events:
					if e.Removed {
						fmt.Printf("removed: node %d\n", e.Avatar.NodeID)
						continue
					}
					printMonitorAvatar(monitorAvatarFromDomain(e.Avatar))
				case err := <-done:
					return err
				case <-sig:
					exec.Submit(func() { ch.Complete(ipcerr.OK) })
					return nil
				}
			}
		},
	}
}

func monitorAvatarFromDomain(a monitor.Avatar) monitorAvatar {
	return monitorAvatar{
		NodeID:          a.NodeID,
		Online:          a.Online,
		LastHeartbeatAt: a.LastHeartbeatAt.Format("15:04:05"),
		Health:          a.Health,
		Mode:            a.Mode,
	}
}

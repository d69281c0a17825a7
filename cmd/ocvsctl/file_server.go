package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	sdkops "github.com/ocvsmd-go/ocvsmd/internal/sdk"
	"github.com/ocvsmd-go/ocvsmd/internal/service"
)

func newFileServerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "file-server",
		Short: "inspect and edit the daemon's served filesystem roots",
	}
	cmd.AddCommand(newFileServerListCmd(), newFileServerPopCmd(), newFileServerPushCmd())
	return cmd
}

func init() {
	rootCmd.AddCommand(newFileServerCmd())
}

func newFileServerListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "list the daemon's current filesystem roots, front to back",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, exec, closeFn, err := dialDaemon()
			if err != nil {
				return err
			}
			defer closeFn()

			outcome := submitAndWait(exec, func() *executor.Sender[sdkops.Outcome[[]service.RootEntry]] {
				return sdkops.ListRoots(cli)
			})
			for _, e := range outcome.Value {
				fmt.Println(e.Path)
			}
			return outcome.Err
		},
	}
}

func newFileServerPopCmd() *cobra.Command {
	var front bool
	cmd := &cobra.Command{
		Use:   "pop",
		Short: "remove one root from either end of the list",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, exec, closeFn, err := dialDaemon()
			if err != nil {
				return err
			}
			defer closeFn()

			outcome := submitAndWait(exec, func() *executor.Sender[sdkops.Outcome[[]service.RootResult]] {
				return sdkops.PopRoot(cli, !front)
			})
			if outcome.Err != nil {
				return outcome.Err
			}
			if len(outcome.Value) == 0 || !outcome.Value[0].Found {
				fmt.Println("(no roots to remove)")
				return nil
			}
			fmt.Println(outcome.Value[0].Path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&front, "front", false, "remove from the front instead of the back")
	return cmd
}

func newFileServerPushCmd() *cobra.Command {
	var front bool
	cmd := &cobra.Command{
		Use:   "push <path>",
		Short: "add a filesystem root to either end of the list",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, exec, closeFn, err := dialDaemon()
			if err != nil {
				return err
			}
			defer closeFn()

			outcome := submitAndWait(exec, func() *executor.Sender[sdkops.Outcome[struct{}]] {
				return sdkops.PushRoot(cli, args[0], !front)
			})
			return outcome.Err
		},
	}
	cmd.Flags().BoolVar(&front, "front", false, "add to the front instead of the back")
	return cmd
}

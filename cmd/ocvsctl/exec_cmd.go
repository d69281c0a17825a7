package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	sdkops "github.com/ocvsmd-go/ocvsmd/internal/sdk"
	"github.com/ocvsmd-go/ocvsmd/internal/service"
	"github.com/ocvsmd-go/ocvsmd/pkg/cyphal"
)

func newExecCmdCmd() *cobra.Command {
	var nodeIDs string
	var command uint16
	var parameter string

	cmd := &cobra.Command{
		Use:   "exec-command",
		Short: "run an ExecuteCommand on one or more remote nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseNodeIDs(nodeIDs)
			if err != nil {
				return err
			}

			cli, exec, closeFn, err := dialDaemon()
			if err != nil {
				return err
			}
			defer closeFn()

			req := service.ExecCmdRequest{
				NodeIDs:       ids,
				Command:       command,
				Parameter:     parameter,
				TimeoutMillis: requestTimeoutMillis(),
			}
			outcome := submitAndWait(exec, func() *executor.Sender[sdkops.Outcome[map[cyphal.NodeID]service.ExecCmdResponse]] {
				return sdkops.ExecCmd(cli, req)
			})
			printExecCmdResults(outcome.Value)
			return outcome.Err
		},
	}

	cmd.Flags().StringVar(&nodeIDs, "nodes", "", "comma-separated node-ids to target (required)")
	cmd.Flags().Uint16Var(&command, "command", 0, "ExecuteCommand command code")
	cmd.Flags().StringVar(&parameter, "parameter", "", "ExecuteCommand parameter string")
	cmd.MarkFlagRequired("nodes")

	return cmd
}

func init() {
	rootCmd.AddCommand(newExecCmdCmd())
}

func printExecCmdResults(results map[cyphal.NodeID]service.ExecCmdResponse) {
	ids := make([]cyphal.NodeID, 0, len(results))
	for id := range results {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		r := results[id]
		fmt.Printf("node %d: status=%d output=%q\n", r.NodeID, r.Status, r.Output)
	}
}

// parseNodeIDs parses a comma-separated list of node-ids, the CLI-surface
// equivalent of original_source/src/cli/main.cpp's node-id argument
// parsing.
func parseNodeIDs(s string) ([]cyphal.NodeID, error) {
	fields := strings.Split(s, ",")
	ids := make([]cyphal.NodeID, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		n, err := strconv.ParseUint(f, 10, 16)
		if err != nil {
			return nil, fmt.Errorf("invalid node-id %q: %w", f, err)
		}
		ids = append(ids, cyphal.NodeID(n))
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("--nodes must name at least one node-id")
	}
	return ids, nil
}

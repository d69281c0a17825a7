package main

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	sdkops "github.com/ocvsmd-go/ocvsmd/internal/sdk"
	"github.com/ocvsmd-go/ocvsmd/internal/service"
)

func newRegisterCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "register",
		Short: "list, read, or write remote nodes' registers",
	}
	cmd.AddCommand(newRegisterListCmd(), newRegisterReadCmd(), newRegisterWriteCmd())
	return cmd
}

func init() {
	rootCmd.AddCommand(newRegisterCmd())
}

func newRegisterListCmd() *cobra.Command {
	var nodeIDs string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "list the register names known to one or more nodes",
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

			req := service.RegisterListRequest{NodeIDs: ids, TimeoutMillis: requestTimeoutMillis()}
			outcome := submitAndWait(exec, func() *executor.Sender[sdkops.Outcome[[]service.RegisterListEntry]] {
				return sdkops.RegisterList(cli, req)
			})
			for _, e := range outcome.Value {
				fmt.Printf("node %d: %s\n", e.NodeID, e.Name)
			}
			return outcome.Err
		},
	}
	cmd.Flags().StringVar(&nodeIDs, "nodes", "", "comma-separated node-ids to target (required)")
	cmd.MarkFlagRequired("nodes")
	return cmd
}

func newRegisterReadCmd() *cobra.Command {
	var nodeIDs, names string
	cmd := &cobra.Command{
		Use:   "read",
		Short: "read named registers from one or more nodes",
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

			req := service.RegisterReadRequest{
				NodeIDs:       ids,
				Names:         splitNonEmpty(names),
				TimeoutMillis: requestTimeoutMillis(),
			}
			outcome := callReq(exec, sdkops.RegisterRead, cli, req)
			printRegisterValueEntries(outcome.Value)
			return outcome.Err
		},
	}
	cmd.Flags().StringVar(&nodeIDs, "nodes", "", "comma-separated node-ids to target (required)")
	cmd.Flags().StringVar(&names, "names", "", "comma-separated register names to read (required)")
	cmd.MarkFlagRequired("nodes")
	cmd.MarkFlagRequired("names")
	return cmd
}

func newRegisterWriteCmd() *cobra.Command {
	var nodeIDs string
	var values []string
	cmd := &cobra.Command{
		Use:   "write",
		Short: "write name=value register pairs to one or more nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseNodeIDs(nodeIDs)
			if err != nil {
				return err
			}
			pairs, err := parseValuePairs(values)
			if err != nil {
				return err
			}
			cli, exec, closeFn, err := dialDaemon()
			if err != nil {
				return err
			}
			defer closeFn()

			req := service.RegisterWriteRequest{
				NodeIDs:       ids,
				Values:        pairs,
				TimeoutMillis: requestTimeoutMillis(),
			}
			outcome := callReq(exec, sdkops.RegisterWrite, cli, req)
			printRegisterValueEntries(outcome.Value)
			return outcome.Err
		},
	}
	cmd.Flags().StringVar(&nodeIDs, "nodes", "", "comma-separated node-ids to target (required)")
	cmd.Flags().StringArrayVar(&values, "set", nil, "name=value pair to write, repeatable (required)")
	cmd.MarkFlagRequired("nodes")
	cmd.MarkFlagRequired("set")
	return cmd
}

// printRegisterValueEntries prints a node/name-keyed register-value map in
// a stable order. It is generic over the map's key type because that key
// (internal/sdk's registerValueKey) is unexported; the entries themselves
// already carry NodeID/Name, so sorting the values needs no access to it.
func printRegisterValueEntries[K comparable](entries map[K]service.RegisterValueEntry) {
	values := make([]service.RegisterValueEntry, 0, len(entries))
	for _, e := range entries {
		values = append(values, e)
	}
	sort.Slice(values, func(i, j int) bool {
		if values[i].NodeID != values[j].NodeID {
			return values[i].NodeID < values[j].NodeID
		}
		return values[i].Name < values[j].Name
	})
	for _, e := range values {
		if e.Err != "" {
			fmt.Printf("node %d: %s: error: %s\n", e.NodeID, e.Name, e.Err)
			continue
		}
		fmt.Printf("node %d: %s = %s\n", e.NodeID, e.Name, e.Value)
	}
}

func splitNonEmpty(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}

func parseValuePairs(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok {
			return nil, fmt.Errorf("invalid --set %q, want name=value", p)
		}
		values[name] = value
	}
	return values, nil
}

package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ocvsmd-go/ocvsmd/internal/executor"
	sdkops "github.com/ocvsmd-go/ocvsmd/internal/sdk"
	"github.com/ocvsmd-go/ocvsmd/internal/service"
)

func newPnpCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pnp",
		Short: "plug-and-play node-id allocation",
	}
	cmd.AddCommand(newPnpAllocateCmd())
	return cmd
}

func init() {
	rootCmd.AddCommand(newPnpCmd())
}

func newPnpAllocateCmd() *cobra.Command {
	var uniqueIDs string
	cmd := &cobra.Command{
		Use:   "allocate",
		Short: "request node-id allocation for one or more 128-bit unique-ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parseUniqueIDs(uniqueIDs)
			if err != nil {
				return err
			}
			cli, exec, closeFn, err := dialDaemon()
			if err != nil {
				return err
			}
			defer closeFn()

			outcome := submitAndWait(exec, func() *executor.Sender[sdkops.Outcome[map[[16]byte]service.PnpAllocateEntry]] {
				return sdkops.PnpAllocate(cli, ids, requestTimeoutMillis())
			})
			for _, e := range outcome.Value {
				fmt.Printf("%s -> node %d\n", hex.EncodeToString(e.UniqueID[:]), e.NodeID)
			}
			return outcome.Err
		},
	}
	cmd.Flags().StringVar(&uniqueIDs, "unique-ids", "", "comma-separated 32-hex-digit unique-ids to allocate (required)")
	cmd.MarkFlagRequired("unique-ids")
	return cmd
}

// parseUniqueIDs parses a comma-separated list of hex-encoded 128-bit
// unique-ids, the CLI-surface equivalent of
// original_source/docs/pnp_node_id_allocator.hpp's UniqueId argument.
func parseUniqueIDs(s string) ([][16]byte, error) {
	fields := strings.Split(s, ",")
	ids := make([][16]byte, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		raw, err := hex.DecodeString(f)
		if err != nil || len(raw) != 16 {
			return nil, fmt.Errorf("invalid unique-id %q: want 32 hex digits", f)
		}
		var uid [16]byte
		copy(uid[:], raw)
		ids = append(ids, uid)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("--unique-ids must name at least one unique-id")
	}
	return ids, nil
}

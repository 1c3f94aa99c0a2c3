package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tabula/internal/journal"
)

// NewInfoCommand creates the info subcommand: journal summary stats.
func NewInfoCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "info <journal.db>",
		Short: "Summarize a transaction journal",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(args[0])
			if err != nil {
				return err
			}
			defer j.Close()

			txns, err := j.Transactions(cmd.Context())
			if err != nil {
				return err
			}

			ops := 0
			bySource := map[string]int{}
			var maxSeq uint64
			for _, t := range txns {
				ops += len(t.Ops)
				bySource[string(t.Source)]++
				if t.Seq > maxSeq {
					maxSeq = t.Seq
				}
			}

			if opts.Format == "json" {
				out := map[string]any{
					"transactions": len(txns),
					"operations":   ops,
					"by_source":    bySource,
					"max_seq":      maxSeq,
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "transactions: %d\n", len(txns))
			fmt.Fprintf(cmd.OutOrStdout(), "operations:   %d\n", ops)
			fmt.Fprintf(cmd.OutOrStdout(), "max seq:      %d\n", maxSeq)
			for src, n := range bySource {
				fmt.Fprintf(cmd.OutOrStdout(), "  %-8s %d\n", src, n)
			}
			return nil
		},
	}
}

package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/tabula/internal/journal"
)

// NewReplayCommand creates the replay subcommand: rebuild the grid from
// history and report the resulting shape.
func NewReplayCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "replay <journal.db>",
		Short: "Rebuild the grid from a journal and report its shape",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			j, err := journal.Open(args[0])
			if err != nil {
				return err
			}
			defer j.Close()

			g, err := j.Replay(cmd.Context())
			if err != nil {
				return err
			}

			type sheetInfo struct {
				Name   string `json:"name"`
				Cells  int    `json:"cells"`
				Tables int    `json:"tables"`
				Bounds string `json:"bounds,omitempty"`
			}
			var sheets []sheetInfo
			for _, s := range g.SheetsInOrder() {
				info := sheetInfo{Name: s.Name, Cells: s.CellCount(), Tables: s.TableCount()}
				if b, ok := s.Bounds(); ok {
					info.Bounds = b.A1()
				}
				sheets = append(sheets, info)
			}

			if opts.Format == "json" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(map[string]any{"sheets": sheets})
			}
			for _, s := range sheets {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s cells=%-6d tables=%-4d %s\n",
					s.Name, s.Cells, s.Tables, s.Bounds)
			}
			return nil
		},
	}
}

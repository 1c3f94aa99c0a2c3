package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tabula/internal/journal"
	"github.com/roach88/tabula/internal/xlsx"
)

// NewExportCommand creates the export subcommand: journal to workbook.
func NewExportCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export <journal.db> <out.xlsx>",
		Short: "Replay a journal and export the grid as an xlsx workbook",
		Args:  cobra.ExactArgs(2),
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
			if g.SheetCount() == 0 {
				return fmt.Errorf("journal %s replays to an empty grid", args[0])
			}

			data, err := xlsx.Export(g)
			if err != nil {
				return err
			}
			if err := os.WriteFile(args[1], data, 0o644); err != nil {
				return fmt.Errorf("write %s: %w", args[1], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d bytes)\n", args[1], len(data))
			return nil
		},
	}
}

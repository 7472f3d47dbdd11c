package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/floodcover/internal/export"
)

var exportCmd = &cobra.Command{
	Use:   "export <file.xlsx>",
	Short: "Export policies and mirror records from the latest snapshot to a spreadsheet",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, s, _, ok, err := loadLatest(ctx, st)
		if err != nil {
			return err
		}
		if !ok {
			return eris.New("export: no saved state found")
		}

		if err := export.WriteFile(args[0], s.Policies, s.Mirror); err != nil {
			return err
		}
		zap.L().Info("export complete",
			zap.String("file", args[0]),
			zap.String("snapshot_id", rec.ID),
			zap.Int("policies", len(s.Policies)),
			zap.Int("mirror", len(s.Mirror)),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
}

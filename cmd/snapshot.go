package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/floodcover/internal/auth"
	"github.com/sells-group/floodcover/internal/export"
	"github.com/sells-group/floodcover/internal/mirror"
	"github.com/sells-group/floodcover/internal/model"
	"github.com/sells-group/floodcover/internal/snapshot"
)

var (
	snapshotListLimit int
	snapshotPruneKeep int
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Inspect and maintain saved engine state",
}

var snapshotListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved snapshots, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		recs, err := st.List(ctx, snapshotListLimit)
		if err != nil {
			return eris.Wrap(err, "snapshot list")
		}
		out := make([]snapshotMeta, 0, len(recs))
		for _, r := range recs {
			out = append(out, snapshotMeta{ID: r.ID, SchemaVersion: r.Version, SavedAt: r.SavedAt, Bytes: len(r.Payload)})
		}
		return writeYAML(os.Stdout, out)
	},
}

var snapshotInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "Print the full contents of the latest snapshot",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		rec, s, version, ok, err := loadLatest(ctx, st)
		if err != nil {
			return err
		}
		if !ok {
			zap.L().Info("no saved state found")
			return nil
		}
		report, err := buildInspect(rec, version, s)
		if err != nil {
			return err
		}
		return writeYAML(os.Stdout, report)
	},
}

var snapshotPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete all but the newest snapshots",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.Prune(ctx, snapshotPruneKeep)
		if err != nil {
			return eris.Wrap(err, "snapshot prune")
		}
		zap.L().Info("snapshots pruned", zap.Int64("removed", n), zap.Int("kept", snapshotPruneKeep))
		return nil
	},
}

var snapshotImportMirrorCmd = &cobra.Command{
	Use:   "import-mirror <file.xlsx>",
	Short: "Upsert mirror records from a spreadsheet into the latest snapshot",
	Long:  "Reads the mirror sheet of an exported workbook, upserts each row by policy id and saves the result as a new snapshot.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		rows, err := export.ReadMirror(args[0])
		if err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		_, s, _, ok, err := loadLatest(ctx, st)
		if err != nil {
			return err
		}
		if !ok {
			return eris.New("snapshot import-mirror: no saved state to update")
		}

		merged, err := mergeMirror(s, rows)
		if err != nil {
			return err
		}
		payload, err := snapshot.Encode(merged)
		if err != nil {
			return eris.Wrap(err, "snapshot import-mirror")
		}
		rec, err := st.Save(ctx, snapshot.CurrentVersion, payload)
		if err != nil {
			return eris.Wrap(err, "snapshot import-mirror")
		}
		zap.L().Info("mirror records imported",
			zap.Int("rows", len(rows)),
			zap.Int("mirror_total", len(merged.Mirror)),
			zap.String("snapshot_id", rec.ID),
		)
		return nil
	},
}

// mergeMirror applies rows to the mirror ledger of s as its admin would.
func mergeMirror(s snapshot.State, rows []model.MirrorPolicy) (snapshot.State, error) {
	guard := auth.NewGuard(s.Admin)
	ledger := mirror.NewLedger(guard)
	ledger.Load(s.Mirror)
	if err := ledger.BatchUpsert(s.Admin, rows); err != nil {
		return s, err
	}
	s.Mirror = ledger.Policies()
	return s, nil
}

func init() {
	snapshotListCmd.Flags().IntVar(&snapshotListLimit, "limit", 20, "maximum snapshots to list")
	snapshotPruneCmd.Flags().IntVar(&snapshotPruneKeep, "keep", 10, "number of newest snapshots to keep")

	snapshotCmd.AddCommand(snapshotListCmd, snapshotInspectCmd, snapshotPruneCmd, snapshotImportMirrorCmd)
	rootCmd.AddCommand(snapshotCmd)
}

package main

import (
	"context"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/floodcover/internal/snapshot"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print a summary of the latest saved engine state",
	Long:  "Loads the newest snapshot from the store and prints admin, flood reading, policy counts and ingestion status as YAML.",
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
			zap.L().Info("no saved state found, run 'serve' to create one")
			return nil
		}

		report, err := buildStatus(rec, version, s)
		if err != nil {
			return err
		}
		return writeYAML(os.Stdout, report)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// openStore validates store settings and opens the backend.
func openStore(ctx context.Context) (snapshot.Store, error) {
	if err := cfg.Validate("store"); err != nil {
		return nil, err
	}
	return initStore(ctx)
}

// loadLatest decodes the newest snapshot. ok is false when the store is empty.
func loadLatest(ctx context.Context, st snapshot.Store) (rec snapshot.Record, s snapshot.State, version int, ok bool, err error) {
	latest, err := st.Latest(ctx)
	if err != nil {
		return rec, s, 0, false, eris.Wrap(err, "load latest snapshot")
	}
	if latest == nil {
		return rec, s, 0, false, nil
	}
	s, version, err = snapshot.Decode(latest.Payload)
	if err != nil {
		return rec, s, 0, false, eris.Wrapf(err, "decode snapshot %s", latest.ID)
	}
	return *latest, s, version, true, nil
}

package main

import (
	"fmt"

	"ariga.io/atlas-go-sdk/atlasexec"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewbaird/outbreak/internal/activity"
	"github.com/matthewbaird/outbreak/internal/store"
)

func newMigrateCmd(a *app) *cobra.Command {
	var (
		dir      string
		atlasBin string
		dryRun   bool
		embedded bool
	)
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply the SQLite schema of the record and activity stores",
		Long: `migrate brings the SQLite database at store.sqlite_path to the schema in
migrations/schema.sql using the Atlas CLI. With --embedded the tables are
created directly without Atlas.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			path := a.cfg.Store.SQLitePath
			if path == "" {
				return fmt.Errorf("store.sqlite_path is not set")
			}

			if embedded {
				db, err := openSQLite(ctx, path)
				if err != nil {
					return err
				}
				defer db.Close()
				if err := store.NewSQLStore(db).CreateTable(ctx); err != nil {
					return fmt.Errorf("creating record table: %w", err)
				}
				if err := activity.NewSQLStore(db).CreateTable(ctx); err != nil {
					return fmt.Errorf("creating activity table: %w", err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "tables created in %s\n", path)
				return nil
			}

			client, err := atlasexec.NewClient(dir, atlasBin)
			if err != nil {
				return fmt.Errorf("atlas client: %w", err)
			}
			_, err = client.SchemaApply(ctx, &atlasexec.SchemaApplyParams{
				URL:         "sqlite://" + path,
				To:          "file://schema.sql",
				DevURL:      "sqlite://dev?mode=memory",
				DryRun:      dryRun,
				AutoApprove: true,
			})
			if err != nil {
				return fmt.Errorf("applying schema: %w", err)
			}
			a.logger.Info("schema applied", zap.String("database", path), zap.Bool("dry_run", dryRun))
			fmt.Fprintf(cmd.OutOrStdout(), "schema applied to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "migrations", "directory holding schema.sql")
	cmd.Flags().StringVar(&atlasBin, "atlas", "atlas", "path to the Atlas CLI binary")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "print the planned changes without applying them")
	cmd.Flags().BoolVar(&embedded, "embedded", false, "create the tables directly instead of using Atlas")
	return cmd
}

package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewbaird/outbreak/internal/config"
	"github.com/matthewbaird/outbreak/internal/logging"
)

// app is the state shared by the subcommands once configuration is loaded.
type app struct {
	cfgFile string
	cfg     *config.Config
	logger  *zap.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "idsr",
		Short: "Outbreak detection for DHIS2 disease surveillance",
		Long: `idsr scores weekly disease case counts per org unit against statistical
and fixed thresholds, reconciles the detections with the known outbreaks and
pushes outbreak events and notifications back to DHIS2.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Log)
			if err != nil {
				return err
			}
			zap.ReplaceGlobals(logger)
			a.cfg, a.logger = cfg, logger
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default is ./idsr.yaml or $HOME/.idsr/idsr.yaml)")

	root.AddCommand(newRunCmd(a), newServeCmd(a), newValidateCmd(a), newMigrateCmd(a))
	return root
}

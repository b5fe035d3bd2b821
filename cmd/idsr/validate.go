package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matthewbaird/outbreak/internal/config"
)

func newValidateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [catalogue.json]",
		Short: "Validate the disease catalogue against its schema",
		Long: `validate checks the disease catalogue against the embedded CUE schema.
With a file argument the file is checked; otherwise the configured catalogue
source (DHIS2 datastore or file) is read.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var src config.DocumentSource
			switch {
			case len(args) == 1:
				src = config.FileCatalogue{Path: args[0]}
			case a.cfg.Catalogue.Source == config.SourceFile:
				src = config.FileCatalogue{Path: a.cfg.Catalogue.Path}
			default:
				src = newClient(a.cfg, a.logger)
			}
			return validateCatalogue(cmd.Context(), cmd, src)
		},
	}
}

func validateCatalogue(ctx context.Context, cmd *cobra.Command, src config.DocumentSource) error {
	cat, err := config.ValidatingCatalogue{Source: src}.Catalogue(ctx)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "catalogue OK: %d diseases\n", len(cat.Diseases))
	for _, d := range cat.Diseases {
		fmt.Fprintf(out, "  %-6s %-30s %s\n", d.Code, d.Name, d.Algorithm)
	}
	return nil
}

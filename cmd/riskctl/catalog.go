package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kirillkom/contract-risk-analyzer/internal/infrastructure/catalog"
)

func catalogCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "catalog",
		Short: "Print the active risk category catalog",
		Long: `Print the category catalog in the YAML format CATEGORY_CATALOG_PATH accepts.
Without CATEGORY_CATALOG_PATH this is the built-in catalog, a starting point
for a custom one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			categories, err := catalog.Load(loadConfig().CategoryCatalogPath)
			if err != nil {
				return err
			}
			out, err := catalog.Marshal(categories)
			if err != nil {
				return fmt.Errorf("render catalog: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

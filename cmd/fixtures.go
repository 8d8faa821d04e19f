package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newFixturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fixtures",
		Short: "Loads reference countries and sources into the store",
		Long: `Seeds the countries and sources collections from the taxonomy files when
they are empty, and creates the store's indexes. Safe to run repeatedly.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res, err := appInstance.LoadFixtures(cmd.Context())
			if err != nil {
				return fmt.Errorf("load fixtures: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "inserted %d countries and %d sources\n", res.Countries, res.Sources)
			return nil
		},
	}
}

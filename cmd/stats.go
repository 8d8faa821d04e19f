package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/freelance-crawler/internal/stats"
	"github.com/JakeFAU/freelance-crawler/internal/store"
)

func newStatsCmd() *cobra.Command {
	var country, skill, source string
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Prints aggregate statistics over the stored freelancers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			filter, err := statsFilter(cmd.Context(), appInstance.Store(), country, skill, source)
			if err != nil {
				return err
			}
			rep, err := stats.Compute(cmd.Context(), appInstance.Store(), filter)
			if err != nil {
				return fmt.Errorf("compute stats: %w", err)
			}
			stats.Render(cmd.OutOrStdout(), rep)
			return nil
		},
	}
	cmd.Flags().StringVar(&country, "country", "", "ISO country code")
	cmd.Flags().StringVar(&skill, "skill", "", "skill name")
	cmd.Flags().StringVar(&source, "source", "", "source name, e.g. Freelancer")
	return cmd
}

// statsFilter resolves the country code to its stored id. Unlike the API, an
// unknown code is an error here.
func statsFilter(ctx context.Context, r store.Reader, country, skill, source string) (store.FreelancerFilter, error) {
	f := store.FreelancerFilter{Skill: skill, Source: source}
	if code := store.NormalizeCode(country); code != "" {
		c, err := r.FindCountryByCode(ctx, code)
		if err != nil {
			return f, fmt.Errorf("country %s: %w", code, err)
		}
		f.CountryID = c.ID
	}
	return f, nil
}

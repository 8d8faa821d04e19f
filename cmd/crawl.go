package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/freelance-crawler/internal/app"
	"github.com/JakeFAU/freelance-crawler/internal/crawler"
)

type crawlFlags struct {
	sites    []string
	all      bool
	country  string
	category string
	limit    int
	output   string
	shuffle  bool
}

// newCrawlCmd creates and configures the 'crawl' subcommand.
func newCrawlCmd() *cobra.Command {
	var flags crawlFlags
	cmd := &cobra.Command{
		Use:   "crawl",
		Short: "Crawls the selected sites once",
		Long: `Runs one crawl over the selected sites concurrently. Each site walks its
country and category listings, enriches every candidate from its profile page,
and persists freelancers, reviews and services to the store or to a JSONL file.`,
		Example: `  freelance-crawler crawl --site freelancer --country FR --category PHP --limit 50
  freelance-crawler crawl --all --output jsonl`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			opts := flags.apply(cmd, appInstance.DefaultCrawlOptions())
			res, err := appInstance.Crawl(cmd.Context(), opts)
			if err != nil {
				return fmt.Errorf("run crawl: %w", err)
			}
			printCrawlResult(cmd.OutOrStdout(), res)
			appInstance.Logger().Info("crawl command finished", zap.String("run_id", res.Summary.RunID))
			return nil
		},
	}

	f := cmd.Flags()
	f.StringSliceVar(&flags.sites, "site", nil, "site to crawl (repeatable): freelancer, peopleperhour, truelancer")
	f.BoolVar(&flags.all, "all", false, "crawl every site")
	f.StringVar(&flags.country, "country", "", "restrict to one ISO country code")
	f.StringVar(&flags.category, "category", "", "restrict to one category (subcategory name)")
	f.IntVar(&flags.limit, "limit", 0, "maximum number of profiles to visit across all sites (0 = no limit)")
	f.StringVar(&flags.output, "output", "", "where records go: store or jsonl")
	f.BoolVar(&flags.shuffle, "shuffle", true, "shuffle country and category order")
	cmd.MarkFlagsMutuallyExclusive("site", "all")
	return cmd
}

// apply overlays the flags the user set on the configured defaults.
func (c crawlFlags) apply(cmd *cobra.Command, opts app.CrawlOptions) app.CrawlOptions {
	changed := cmd.Flags().Changed
	switch {
	case c.all:
		opts.Sites = nil
	case changed("site"):
		opts.Sites = c.sites
	}
	opts.Country = c.country
	opts.Category = c.category
	if changed("limit") {
		opts.Limit = c.limit
	}
	if changed("output") {
		opts.Output = c.output
	}
	if changed("shuffle") {
		opts.Shuffle = c.shuffle
	}
	return opts
}

func printCrawlResult(w io.Writer, res app.CrawlResult) {
	fmt.Fprintf(w, "run %s finished in %s\n", res.Summary.RunID,
		res.Summary.FinishedAt.Sub(res.Summary.StartedAt).Round(time.Millisecond))
	for _, st := range res.Summary.Sites {
		printSiteStats(w, st)
	}
	if res.File != "" {
		fmt.Fprintf(w, "wrote %d records to %s\n", res.Lines, res.File)
	}
	if res.ExportURI != "" {
		fmt.Fprintf(w, "exported to %s (sha256 %s)\n", res.ExportURI, res.SHA256)
	}
}

func printSiteStats(w io.Writer, st crawler.Stats) {
	fmt.Fprintf(w, "  %-14s freelancers=%d reviews=%d services=%d detail_failures=%d persist_failures=%d\n",
		st.Site, st.Freelancers, st.Reviews, st.Services, st.DetailFailures, st.PersistFailures)
}

package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/freelance-crawler/internal/app"
	"github.com/JakeFAU/freelance-crawler/internal/record"
)

func newImportCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE...",
		Short: "Imports JSONL record files into the store",
		Long: `Upserts every record of the given JSONL files into the store. Use "-" to
read standard input. Lines without a _type key have their kind inferred from
their fields.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			total := make(app.ImportResult)
			for _, name := range args {
				res, err := importFile(cmd, appInstance, name)
				for k, n := range res {
					total[k] += n
				}
				if err != nil {
					return fmt.Errorf("import %s: %w", name, err)
				}
				appInstance.Logger().Info("file imported", zap.String("file", name), zap.Any("records", res))
			}
			printImportResult(cmd.OutOrStdout(), total)
			return nil
		},
	}
}

func importFile(cmd *cobra.Command, a *app.App, name string) (app.ImportResult, error) {
	if name == "-" {
		return a.Import(cmd.Context(), cmd.InOrStdin())
	}
	f, err := os.Open(name) //nolint:gosec // user-supplied path is the point
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only
	return a.Import(cmd.Context(), f)
}

func printImportResult(w io.Writer, res app.ImportResult) {
	kinds := make([]record.Kind, 0, len(res))
	for k := range res {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	for _, k := range kinds {
		fmt.Fprintf(w, "%-10s %d\n", k, res[k])
	}
}

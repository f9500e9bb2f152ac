package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/recovery-sync/internal/importer"
)

var (
	importFile       string
	importSheet      string
	importProject    string
	importByProduct  bool
	importLedgerOnly bool
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import a sales export (CSV or XLSX)",
	Long:  "Groups export rows by lead, merges each group and writes it to the ledger and, unless --ledger-only or --by-product, to the task board.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		env, err := initEnv(ctx, "import")
		if err != nil {
			return err
		}
		defer env.Close()

		opts := importOptions()
		im := importer.New(env.Pipeline.Normalizer(), env.Pipeline)

		sheet := importSheet
		if sheet == "" {
			sheet = cfg.Import.Sheet
		}
		sum, err := im.ImportFile(ctx, importFile, sheet, opts)
		if sum != nil {
			formatImportSummary(os.Stdout, importFile, sum)
		}
		if err != nil {
			return eris.Wrap(err, "import file")
		}

		zap.L().Info("import complete",
			zap.String("file", importFile),
			zap.String("project", opts.Project),
			zap.Int("groups", sum.Groups),
			zap.Int("errors", sum.Errors),
		)
		return nil
	},
}

func importOptions() importer.Options {
	project := importProject
	if project == "" {
		project = cfg.Import.Project
	}
	return importer.Options{
		Project:    project,
		ByProduct:  importByProduct,
		LedgerOnly: importLedgerOnly,
	}
}

// formatImportSummary writes a human-readable report of one import run.
func formatImportSummary(out io.Writer, file string, sum *importer.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "FILE\t%s\n", file)
	_, _ = fmt.Fprintf(w, "ROWS\t%d\n", sum.Rows)
	_, _ = fmt.Fprintf(w, "SKIPPED (no email)\t%d\n", sum.SkippedNoEmail)
	_, _ = fmt.Fprintf(w, "SKIPPED (no product)\t%d\n", sum.SkippedNoProduct)
	_, _ = fmt.Fprintf(w, "LEADS\t%d\n", sum.Groups)
	_, _ = fmt.Fprintf(w, "INSERTED\t%d\n", sum.Inserted)
	_, _ = fmt.Fprintf(w, "UPDATED\t%d\n", sum.Updated)
	_, _ = fmt.Fprintf(w, "ERRORS\t%d\n", sum.Errors)
	_, _ = fmt.Fprintf(w, "TASKS CREATED\t%d\n", sum.TasksCreated)
	_, _ = fmt.Fprintf(w, "TASKS UPDATED\t%d\n", sum.TasksUpdated)
	_, _ = fmt.Fprintf(w, "TASK ERRORS\t%d\n", sum.TaskErrors)
	_ = w.Flush()

	if len(sum.Divergent) == 0 {
		return
	}
	_, _ = fmt.Fprintf(out, "\n%d merged leads had conflicting rows (last row kept):\n", len(sum.Divergent))
	for _, d := range sum.Divergent {
		_, _ = fmt.Fprintf(out, "  %s: %v\n", d.Key, d.Fields)
	}
}

func init() {
	importCmd.Flags().StringVar(&importFile, "file", "", "path to the CSV or XLSX export (required)")
	importCmd.Flags().StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	importCmd.Flags().StringVar(&importProject, "project", "", "project the leads belong to (default from config)")
	importCmd.Flags().BoolVar(&importByProduct, "by-product", false, "key leads by product, for order-bump exports (ledger only)")
	importCmd.Flags().BoolVar(&importLedgerOnly, "ledger-only", false, "skip the task board")
	_ = importCmd.MarkFlagRequired("file")
	rootCmd.AddCommand(importCmd)
}

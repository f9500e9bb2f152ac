package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/recovery-sync/internal/model"
	"github.com/sells-group/recovery-sync/internal/store"
)

var leadsCmd = &cobra.Command{
	Use:   "leads",
	Short: "List ledger rows",
	Long:  "Lists lead ledger rows, optionally narrowed to one project or action tag, most recently updated first.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("leads"); err != nil {
			return err
		}

		st, err := openStore(ctx, cfg.Store)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		project, _ := cmd.Flags().GetString("project")
		tag, _ := cmd.Flags().GetString("tag")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")

		rows, err := st.ListLeads(ctx, store.LeadFilter{
			Project: project,
			Tag:     tag,
			Limit:   limit,
			Offset:  offset,
		})
		if err != nil {
			return eris.Wrap(err, "leads list")
		}

		if len(rows) == 0 {
			fmt.Fprintln(os.Stderr, "No leads found.")
			return nil
		}

		formatLeads(os.Stdout, rows)
		return nil
	},
}

func init() {
	leadsCmd.Flags().String("project", "", "filter by project")
	leadsCmd.Flags().String("tag", "", "filter by action tag (e.g. reembolso)")
	leadsCmd.Flags().Int("limit", 50, "max number of rows to display")
	leadsCmd.Flags().Int("offset", 0, "rows to skip")
	rootCmd.AddCommand(leadsCmd)
}

// formatLeads writes a tabular list of ledger rows to out. Synthesized
// addresses are shown as "(placeholder)" with the phone they were built from.
func formatLeads(out io.Writer, rows []model.LeadRow) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "EMAIL\tPROJECT\tPRODUCT\tTAGS\tNET\tUPDATED")
	_, _ = fmt.Fprintln(w, "-----\t-------\t-------\t----\t---\t-------")

	for _, r := range rows {
		email := r.Email
		if r.PlaceholderEmail || model.IsPlaceholderEmail(r.Email) {
			email = "(placeholder)"
			if r.Phone != "" {
				email += " " + r.Phone
			}
		}

		product := r.Product
		if r.Variant != "" {
			product += " [" + r.Variant + "]"
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\n",
			email,
			r.Project,
			product,
			strings.Join(r.ActionTags, ","),
			r.Net,
			r.UpdatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

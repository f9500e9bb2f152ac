package main

import (
	"fmt"
	"io"
	"os"
	"slices"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/recovery-sync/internal/tasksync"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "Show the task board field mapping",
	Long:  "Lists the board's custom fields, prints which field each lead attribute is written to, and the product label table.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("fields"); err != nil {
			return err
		}

		sink := buildTaskSink(cfg)
		if sink == nil {
			return eris.New("task board is not configured")
		}
		if err := sink.Warm(ctx); err != nil {
			return eris.Wrap(err, "list board fields")
		}

		formatFieldMapping(os.Stdout, sink.Fields(), sink.Labels())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(fieldsCmd)
}

var logicalFields = []tasksync.Logical{
	tasksync.FieldEmail,
	tasksync.FieldWhatsApp,
	tasksync.FieldOpportunity,
	tasksync.FieldNet,
	tasksync.FieldProduct,
	tasksync.FieldProject,
}

// formatFieldMapping writes the resolved field ids, the product options
// found on the board and the fixed label table to out.
func formatFieldMapping(out io.Writer, fields *tasksync.FieldCache, labels *tasksync.LabelResolver) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ATTRIBUTE\tFIELD ID")
	_, _ = fmt.Fprintln(w, "---------\t--------")
	mapping := fields.Mapping()
	for _, name := range logicalFields {
		id := mapping[name]
		if id == "" {
			id = "(not found)"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\n", name, id)
	}
	_ = w.Flush()

	opts := fields.ProductOptions()
	_, _ = fmt.Fprintf(out, "\nProduct options on board: %d\n", len(opts))
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, o := range opts {
		_, _ = fmt.Fprintf(w, "  %s\t%s\n", o.Name, o.ID)
	}
	_ = w.Flush()

	fixed := labels.Fixed()
	products := make([]string, 0, len(fixed))
	for p := range fixed {
		products = append(products, p)
	}
	slices.Sort(products)

	_, _ = fmt.Fprintf(out, "\nFixed product labels: %d\n", len(fixed))
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	for _, p := range products {
		_, _ = fmt.Fprintf(w, "  %s\t%s\n", p, fixed[p])
	}
	_ = w.Flush()
}

package cli

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the resources currently tracked in state",
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := openRun(cmd.Context(), "status", false)
		if err != nil {
			return err
		}
		defer r.close()

		if r.store.Empty() {
			fmt.Println("No resources tracked. Run 's3vpce setup-network' to get started.")
			return nil
		}

		fmt.Printf("State serial %d, lineage %s\n\n", r.store.Serial, r.store.Lineage)

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ROLE\tID\tCREATED")
		for _, rec := range r.store.Records() {
			fmt.Fprintf(w, "%s\t%s\t%s\n", rec.Role, rec.ID, rec.CreatedAt.Format("2006-01-02 15:04:05 MST"))
		}
		return w.Flush()
	},
}

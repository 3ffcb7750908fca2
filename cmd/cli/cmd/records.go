package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var recordsCmd = &cobra.Command{
	Use:   "records [job_id]",
	Short: "List recorded work for a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")

		records, err := newClient().ListRecords(args[0], limit)
		if err != nil {
			cmd.Printf("Error fetching records: %s\n", err)
			return
		}

		if len(records) == 0 {
			cmd.Println("No work recorded for this job.")
			return
		}

		var total float64
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
		fmt.Fprintln(w, "DATE\tHOURS\tOVERTIME\tNOTES")
		for _, r := range records {
			overtime := ""
			if r.Overtime {
				overtime = "yes"
			}
			fmt.Fprintf(w, "%s\t%.2f\t%s\t%s\n", r.Date, r.Hours, overtime, r.Notes)
			total += r.Hours
		}
		w.Flush()
		cmd.Printf("%sTotal:%s %.2f h\n", colorDim, colorReset, total)
	},
}

func init() {
	recordsCmd.Flags().Int("limit", 20, "Maximum number of records")
	rootCmd.AddCommand(recordsCmd)
}

package cmd

import (
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage the job registry",
}

var jobsReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Re-read the jobs and apply them to the auto-timer",
	Long:  `Re-read the jobs file (or the stored jobs when no file is configured) and apply the changed delays and geofences to the running auto-timer.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		result, err := newClient().ReloadJobs()
		if err != nil {
			cmd.Printf("Error reloading jobs: %s\n", err)
			return
		}
		cmd.Printf("Loaded %d jobs\n", result.Count)
	},
}

func init() {
	jobsCmd.AddCommand(jobsReloadCmd)
	rootCmd.AddCommand(jobsCmd)
}

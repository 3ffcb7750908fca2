package cmd

import (
	"github.com/spf13/cobra"
)

var manualCmd = &cobra.Command{
	Use:   "manual",
	Short: "Control the timer by hand",
	Long:  `Start or stop the work session yourself. While a manual session runs, geofence events for other jobs are ignored.`,
}

var manualStartCmd = &cobra.Command{
	Use:   "start [job_id]",
	Short: "Start a manual session for a job",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		result, err := newClient().ManualStart(args[0])
		if err != nil {
			cmd.Printf("Error starting manual session: %s\n", err)
			return
		}
		cmd.Printf("Manual session started for %s\n", args[0])
		if result.Status != nil {
			printStatus(cmd, *result.Status)
		}
	},
}

var manualStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Report that the manual session was stopped",
	Args:  cobra.NoArgs,
	Run:   actionRun("/v1/manual/stop", "Manual session stopped", ""),
}

var manualModeCmd = &cobra.Command{
	Use:   "mode",
	Short: "Hand the current job over to manual control",
	Args:  cobra.NoArgs,
	Run:   actionRun("/v1/manual/mode", "Manual mode enabled", ""),
}

func init() {
	manualCmd.AddCommand(manualStartCmd, manualStopCmd, manualModeCmd)
	rootCmd.AddCommand(manualCmd)
}

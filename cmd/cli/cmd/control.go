package cmd

import (
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Enable automatic timing for the stored jobs",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		restart, _ := cmd.Flags().GetBool("restart")

		result, err := newClient().Start(restart)
		if err != nil {
			cmd.Printf("Error starting auto-timer: %s\n", err)
			return
		}
		if !result.Started {
			cmd.Printf("Auto-timer not started: none of %d jobs can be monitored\n", result.Count)
			return
		}
		cmd.Printf("🚀 Auto-timer started for %d jobs\n", result.Count)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Disable automatic timing",
	Long:  `Stop geofence monitoring and drop any pending countdown. A running work session is left untouched.`,
	Args:  cobra.NoArgs,
	Run:   actionRun("/v1/stop", "Auto-timer stopped", ""),
}

var cancelCmd = &cobra.Command{
	Use:   "cancel",
	Short: "Cancel the pending countdown",
	Long:  `Cancel the running start or stop countdown. The remaining time is kept so the countdown can be resumed.`,
	Args:  cobra.NoArgs,
	Run:   actionRun("/v1/cancel", "Countdown cancelled", "No countdown to cancel"),
}

var resumeCmd = &cobra.Command{
	Use:   "resume",
	Short: "Resume a cancelled countdown",
	Args:  cobra.NoArgs,
	Run:   actionRun("/v1/resume", "Countdown resumed", "Nothing to resume"),
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run overdue actions and reconcile with the work session",
	Long:  `Ask the daemon to execute countdowns that are past due and to realign its state with the active work session, as a client does when it returns to the foreground.`,
	Args:  cobra.NoArgs,
	Run:   actionRun("/v1/app/resume", "State synchronized", ""),
}

var forceStopCmd = &cobra.Command{
	Use:   "force-stop",
	Short: "Save the running session and stop all automation",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		result, err := newClient().ForceStop()
		if err != nil {
			cmd.Printf("Error stopping: %s\n", err)
			return
		}
		if !result.Saved {
			cmd.Println("Stopped. No session was running.")
			return
		}
		cmd.Printf("Stopped. Recorded %.2f hours.\n", result.Hours)
	},
}

// actionRun posts to a command endpoint and prints the resulting state.
// noop is printed instead of done when the daemon reports nothing changed.
func actionRun(path, done, noop string) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		result, err := newClient().Action(path)
		if err != nil {
			cmd.Printf("Error: %s\n", err)
			return
		}
		if !result.OK && noop != "" {
			cmd.Println(noop)
		} else {
			cmd.Println(done)
		}
		if result.Status != nil {
			printStatus(cmd, *result.Status)
		}
	}
}

func init() {
	startCmd.Flags().Bool("restart", false, "Clear the running session state and start over")

	rootCmd.AddCommand(startCmd, stopCmd, cancelCmd, resumeCmd, syncCmd, forceStopCmd)
}

package cmd

import (
	"fmt"
	"math"
	"text/tabwriter"
	"time"

	"worktrack/pkg/api"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the auto-timer state",
	Long:  `Retrieve the auto-timer state (inactive, entering, active, leaving, cancelled, manual), the current job and any running countdown.`,
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		status, err := newClient().GetStatus()
		if err != nil {
			cmd.Printf("Error fetching status: %s\n", err)
			return
		}
		printStatus(cmd, *status)
	},
}

func printStatus(cmd *cobra.Command, status api.StatusResponse) {
	// Header with state icon
	icon := stateIcon(status.State)
	cmd.Printf("%s %sAuto-Timer%s\n", icon, colorBold, colorReset)
	cmd.Println("──────────────────────────────")

	cmd.Printf("%sState:%s       %s\n", colorDim, colorReset, colorizeState(status.State))

	enabled := colorRed + "no" + colorReset
	if status.Enabled {
		enabled = colorGreen + "yes" + colorReset
	}
	cmd.Printf("%sEnabled:%s     %s\n", colorDim, colorReset, enabled)

	if status.JobID != "" {
		name := status.JobName
		if name == "" {
			name = status.JobID
		}
		cmd.Printf("%sJob:%s         %s %s(%s)%s\n", colorDim, colorReset, name, colorDim, status.JobID, colorReset)
	} else {
		cmd.Printf("%sJob:%s         -\n", colorDim, colorReset)
	}

	// Countdown only while an action is pending
	if status.State == "entering" || status.State == "leaving" {
		remaining := time.Duration(status.RemainingSeconds * float64(time.Second))
		total := time.Duration(status.TotalDelaySeconds * float64(time.Second))
		cmd.Printf("%sCountdown:%s   %s%s%s of %s\n", colorDim, colorReset,
			colorCyan, formatDuration(remaining), colorReset, formatDuration(total))
	}

	if status.Paused {
		cmd.Printf("%sPaused:%s      countdown can be resumed with 'trackctl resume'\n", colorDim, colorReset)
	}
}

func printGeofence(cmd *cobra.Command, resp api.GeofenceResponse) {
	monitoring := colorRed + "stopped" + colorReset
	if resp.Monitoring {
		monitoring = colorGreen + "running" + colorReset
	}
	cmd.Printf("%sMonitoring:%s  %s\n", colorDim, colorReset, monitoring)

	if len(resp.Statuses) == 0 {
		cmd.Println("No geofences evaluated yet.")
		return
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "JOB\tINSIDE\tDISTANCE\tUPDATED")
	for _, s := range resp.Statuses {
		inside := "no"
		if s.IsInside {
			inside = "yes"
		}
		updated := "-"
		if !s.LastUpdate.IsZero() {
			updated = s.LastUpdate.Format(time.RFC3339)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.JobID, inside, formatMeters(s.DistanceMeters), updated)
	}
	w.Flush()
}

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorBold   = "\033[1m"
	colorDim    = "\033[2m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

func stateIcon(state string) string {
	switch state {
	case "active":
		return colorGreen + "●" + colorReset
	case "entering", "leaving":
		return colorYellow + "⏳" + colorReset
	case "cancelled":
		return colorRed + "✗" + colorReset
	case "manual":
		return colorCyan + "✋" + colorReset
	default:
		return "•"
	}
}

func colorizeState(state string) string {
	icon := stateIcon(state)
	switch state {
	case "active":
		return icon + " " + colorGreen + state + colorReset
	case "entering", "leaving":
		return icon + " " + colorYellow + state + colorReset
	case "cancelled":
		return icon + " " + colorRed + state + colorReset
	case "manual":
		return icon + " " + colorCyan + state + colorReset
	default:
		return state
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	} else if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}

func formatMeters(m float64) string {
	switch {
	case math.IsInf(m, 0) || m >= math.MaxFloat64:
		return "-"
	case m < 1000:
		return fmt.Sprintf("%.0f m", m)
	default:
		return fmt.Sprintf("%.2f km", m/1000)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

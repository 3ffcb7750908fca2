package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "trackctl",
	Short: "Trackctl is a command line tool for controlling a worktrack daemon",
	Long: `trackctl is the command-line interface for worktrack, a location-triggered work timer.

The daemon watches geofences around your job sites. Entering a site starts a
countdown that opens a work session; leaving starts a countdown that closes it
and records the hours worked. trackctl inspects and steers that state machine.

Common workflows:

  Show the current state and countdown:
    trackctl status

  Cancel a pending countdown, then resume it later:
    trackctl cancel
    trackctl resume

  Take over manually:
    trackctl manual start <job-id>
    trackctl manual stop

  Feed a location sample:
    trackctl location push 47.3769 8.5417

Configuration:
  Set the API endpoint and credentials via environment variables or a config file:
    WORKTRACK_URL      API endpoint (default: http://localhost:6171)
    WORKTRACK_TOKEN    API token, when the daemon requires one`,
}

func Execute() error {
	return rootCmd.Execute()
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Println(err)
			os.Exit(1)
		}

		// Search config in home directory with name ".trackctl"
		viper.AddConfigPath(home)
		viper.SetConfigName(".trackctl")
		viper.SetConfigType("yaml")
	}

	// Read environment variables that match "WORKTRACK_VARNAME"
	viper.SetEnvPrefix("WORKTRACK")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil {
		fmt.Println("Using config file:", viper.ConfigFileUsed())
	}
}

func newClient() *TrackClient {
	return NewTrackClient(viper.GetString("url"), viper.GetString("token"))
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.trackctl.yaml)")

	rootCmd.PersistentFlags().String("url", "http://localhost:6171", "worktrack daemon URL")
	viper.BindPFlag("url", rootCmd.PersistentFlags().Lookup("url"))

	rootCmd.PersistentFlags().StringP("token", "t", "", "API Token for authentication")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))
}

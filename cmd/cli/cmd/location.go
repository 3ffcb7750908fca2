package cmd

import (
	"strconv"
	"time"

	"worktrack/internal/geo"
	"worktrack/pkg/api"

	"github.com/spf13/cobra"
)

var locationCmd = &cobra.Command{
	Use:   "location",
	Short: "Feed location samples to the daemon",
}

var locationPushCmd = &cobra.Command{
	Use:   "push [latitude] [longitude]",
	Short: "Upload a location sample",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		lat, lon, err := parseCoordinates(args[0], args[1])
		if err != nil {
			cmd.Printf("Invalid coordinates: %s\n", err)
			return
		}
		accuracy, _ := cmd.Flags().GetFloat64("accuracy")
		at, _ := cmd.Flags().GetString("at")

		req := api.LocationRequest{Latitude: lat, Longitude: lon, Accuracy: accuracy}
		if at != "" {
			ts, err := time.Parse(time.RFC3339, at)
			if err != nil {
				cmd.Printf("Invalid --at timestamp: %s\n", err)
				return
			}
			req.Timestamp = &ts
		}

		result, err := newClient().PushLocation(req)
		if err != nil {
			cmd.Printf("Error pushing location: %s\n", err)
			return
		}
		cmd.Printf("📍 Location accepted (delivered to %d watchers)\n", result.Delivered)
	},
}

var locationPermissionCmd = &cobra.Command{
	Use:       "permission [grant|revoke]",
	Short:     "Grant or revoke location access",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"grant", "revoke"},
	Run: func(cmd *cobra.Command, args []string) {
		granted := args[0] == "grant"
		if err := newClient().SetPermission(granted); err != nil {
			cmd.Printf("Error setting permission: %s\n", err)
			return
		}
		if granted {
			cmd.Println("Location access granted")
		} else {
			cmd.Println("Location access revoked")
		}
	},
}

var geofenceCmd = &cobra.Command{
	Use:   "geofence",
	Short: "Show the per-job geofence evaluation",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		check, _ := cmd.Flags().GetBool("check")

		result, err := newClient().Geofence(check)
		if err != nil {
			cmd.Printf("Error fetching geofences: %s\n", err)
			return
		}
		printGeofence(cmd, *result)
	},
}

var distanceCmd = &cobra.Command{
	Use:   "distance [lat1] [lon1] [lat2] [lon2]",
	Short: "Compute the distance between two coordinates",
	Long:  `Compute the great-circle distance used for geofence checks. Runs locally without contacting the daemon.`,
	Args:  cobra.ExactArgs(4),
	Run: func(cmd *cobra.Command, args []string) {
		lat1, lon1, err := parseCoordinates(args[0], args[1])
		if err != nil {
			cmd.Printf("Invalid first coordinate: %s\n", err)
			return
		}
		lat2, lon2, err := parseCoordinates(args[2], args[3])
		if err != nil {
			cmd.Printf("Invalid second coordinate: %s\n", err)
			return
		}

		d := geo.Distance(lat1, lon1, lat2, lon2)
		cmd.Printf("%s\n", formatMeters(d))

		if radius, _ := cmd.Flags().GetFloat64("radius"); radius > 0 {
			if geo.IsInside(d, radius) {
				cmd.Printf("inside the %.0f m radius\n", radius)
			} else {
				cmd.Printf("outside the %.0f m radius\n", radius)
			}
		}
	},
}

func parseCoordinates(latArg, lonArg string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(latArg, 64)
	if err != nil {
		return 0, 0, err
	}
	lon, err := strconv.ParseFloat(lonArg, 64)
	if err != nil {
		return 0, 0, err
	}
	return lat, lon, nil
}

func init() {
	locationPushCmd.Flags().Float64("accuracy", 0, "Horizontal accuracy in meters")
	locationPushCmd.Flags().String("at", "", "Sample time in RFC3339 (default: now)")
	locationCmd.AddCommand(locationPushCmd, locationPermissionCmd)

	geofenceCmd.Flags().Bool("check", false, "Evaluate the last known location now")
	distanceCmd.Flags().Float64("radius", 0, "Also report whether the points are within this radius")

	rootCmd.AddCommand(locationCmd, geofenceCmd, distanceCmd)
}

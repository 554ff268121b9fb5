package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build-time variables, injected via -ldflags the same way the teacher's
// cmd/mockd does (pkg/cli.Version/Commit/BuildDate).
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

// rootCmd is the base iotix command.
var rootCmd = &cobra.Command{
	Use:   "iotix",
	Short: "iotix simulates populations of IoT devices publishing synthetic telemetry",
	Long: `iotix runs a Device Engine: it simulates 1 to 1,000,000+ IoT devices
connecting over MQTT, CoAP, or HTTP and publishing telemetry on independent
per-attribute schedules, organized into groups with staged launch and
programmed dropout. It can also forward telemetry from real external
devices into the same metrics sink (proxy mode).`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command, printing any error to stderr.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("iotix %s (commit %s, built %s)\n", Version, Commit, BuildDate)
		return nil
	},
}

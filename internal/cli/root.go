package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "synheart-collector",
	Short: "Synheart Collector - streaming heart-rate telemetry core",
	Long: `Synheart Collector decodes raw heart-rate sensor frames, aggregates
BPM and beat-to-beat interval metrics, estimates breathing rate and
delivers periodic metric updates over WebSocket, SSE, UDP and NATS.

Frames arrive over the HTTP ingest endpoint, from NDJSON recordings
or from the built-in device simulator.`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

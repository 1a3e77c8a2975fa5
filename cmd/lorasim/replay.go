package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rot226/simulator-lora-sfrd-2.0/internal/sim"
)

var (
	replayInput     string
	replaySpeed     float64
	replayPrintOnly bool
	replayVerbose   bool
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay a step statistics log file",
	Long:  "replay feeds step statistics from a JSONL log back into GreptimeDB or STDOUT.",
	RunE: func(cmd *cobra.Command, args []string) error {
		if replayInput == "" {
			return fmt.Errorf("input file required")
		}
		writer, err := baseWriter(nil, replayPrintOnly, false, replayVerbose)
		if err != nil {
			return err
		}
		return sim.ReplayLogFile(replayInput, writer, replaySpeed)
	},
}

func init() {
	replayCmd.Flags().StringVar(&replayInput, "input", "", "Path to step statistics log file")
	replayCmd.Flags().Float64Var(&replaySpeed, "speed", 1.0, "Playback speed multiplier (0 for no delay)")
	replayCmd.Flags().BoolVar(&replayPrintOnly, "print-only", false, "Print statistics to STDOUT instead of writing to DB")
	replayCmd.Flags().BoolVar(&replayVerbose, "verbose", false, "Verbose colored output on a terminal")
	replayCmd.MarkFlagRequired("input")
}

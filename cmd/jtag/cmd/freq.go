package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var freqCmd = &cobra.Command{
	Use:   "freq [hz]",
	Short: "Set or report the TCK frequency",
	Long: `Ask the cable for a TCK frequency and print the rate it settled on. Cables
with a fixed set of rates pick the fastest one not above the request. Without
an argument the current rate is printed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runFreq,
}

func init() {
	rootCmd.AddCommand(freqCmd)
}

func runFreq(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ch, err := openChain()
	if err != nil {
		return err
	}
	defer ch.Disconnect()

	info := ch.Cable().Info()
	if len(args) == 0 {
		fmt.Fprintf(out, "Frequency: %d Hz\n", ch.GetFrequency())
	} else {
		hz, err := strconv.Atoi(args[0])
		if err != nil || hz < 0 {
			return fmt.Errorf("invalid frequency %q", args[0])
		}
		got, err := ch.SetFrequency(hz)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Requested %d Hz, running at %d Hz\n", hz, got)
	}
	if len(info.Frequencies) > 0 {
		fmt.Fprintf(out, "Supported: %v Hz\n", info.Frequencies)
	} else if info.MaxFrequency > 0 {
		fmt.Fprintf(out, "Range: %d - %d Hz\n", info.MinFrequency, info.MaxFrequency)
	}
	return nil
}

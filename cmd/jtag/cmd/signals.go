package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagchain/pkg/cable"
	"github.com/OpenTraceLab/jtagchain/pkg/chain"
)

var (
	signalLines []string
	resetTarget bool
)

var signalsCmd = &cobra.Command{
	Use:   "signals",
	Short: "Exercise the reset lines and report the cable state",
	Long: `Toggle TRST and SRST through the chain and read each level back, report the
TCK frequency, then detect the chain. Lines the cable does not wire are
skipped. --line picks other pod lines by name (TRST, SRST, RESET, TDI, ...)
or mask (0x10).

Examples:
  jtag signals
  jtag signals --line srst --reset-target`,
	Args: cobra.NoArgs,
	RunE: runSignals,
}

func init() {
	rootCmd.AddCommand(signalsCmd)

	signalsCmd.Flags().StringSliceVar(&signalLines, "line", nil,
		"lines to toggle (default TRST,SRST)")
	signalsCmd.Flags().BoolVar(&resetTarget, "reset-target", false,
		"reset the target through the cable or an SRST pulse")
}

func runSignals(cmd *cobra.Command, args []string) error {
	lines := []cable.Signal{cable.SignalTRST, cable.SignalSRST}
	if len(signalLines) > 0 {
		lines = lines[:0]
		for _, name := range signalLines {
			sig, err := cable.ParseSignal(name)
			if err != nil {
				return err
			}
			lines = append(lines, sig)
		}
	}

	out := cmd.OutOrStdout()
	ch, err := openChain()
	if err != nil {
		return err
	}
	defer ch.Disconnect()

	info := ch.Cable().Info()
	fmt.Fprintf(out, "Cable %s, lines %s\n", info.Driver, info.Signals)

	for _, sig := range lines {
		switch {
		case !info.Supports(sig):
			fmt.Fprintf(out, "%s not wired\n", sig)
		case sig == cable.SignalTRST:
			for _, high := range []bool{false, true} {
				if err := ch.SetTRST(high); err != nil {
					return fmt.Errorf("set TRST: %w", err)
				}
				got, err := ch.GetTRST()
				if err != nil {
					return fmt.Errorf("get TRST: %w", err)
				}
				fmt.Fprintf(out, "TRST set %s, reads %s\n", level(high), level(got))
			}
		default:
			if err := toggle(out, ch, sig); err != nil {
				return err
			}
		}
	}

	if resetTarget {
		if err := ch.ResetTarget(); err != nil {
			return fmt.Errorf("reset target: %w", err)
		}
		fmt.Fprintln(out, "Target reset")
	}

	fmt.Fprintf(out, "Frequency: %d Hz\n\n", ch.GetFrequency())

	if _, err := ch.Detect(); err != nil {
		return fmt.Errorf("detect: %w", err)
	}
	printChain(out, ch, false)
	return nil
}

// toggle drives sig low then high through the pod interface and reads each
// level back.
func toggle(out io.Writer, ch *chain.Chain, sig cable.Signal) error {
	for _, v := range []cable.Signal{0, sig} {
		old, err := ch.SetSignal(sig, v)
		if err != nil {
			return fmt.Errorf("set %s: %w", sig, err)
		}
		got, err := ch.GetSignal(sig)
		if err != nil {
			return fmt.Errorf("get %s: %w", sig, err)
		}
		fmt.Fprintf(out, "%s set %s (was %s), reads %s\n", sig, level(v != 0), level(old&sig != 0), level(got&sig != 0))
	}
	return nil
}

func level(high bool) string {
	if high {
		return "high"
	}
	return "low"
}

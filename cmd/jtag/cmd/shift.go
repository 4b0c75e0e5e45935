package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagchain/pkg/chain"
	"github.com/OpenTraceLab/jtagchain/pkg/tap"
)

var (
	shiftPart        int
	shiftInstruction string
	shiftDRBits      string
	shiftDRValue     string
	addRegister      string
	addInstruction   string
	endState         string
)

var shiftCmd = &cobra.Command{
	Use:   "shift",
	Short: "Select an instruction and shift the IR and DR",
	Long: `Detect the chain, load an instruction into one part (or every part), shift
the instruction register, load the data register and shift it. The IR capture
and the DR contents before and after the shift are printed.

Parts without a BSDL description only know BYPASS; --add-register and
--add-instruction define more on the selected part first.

Examples:
  # Read the IDCODE of a described part
  jtag shift --bsdl bsdl/ --part 0 -i IDCODE

  # Define a user register on part 1 and load it
  jtag shift --part 1 --add-register USER:8 --add-instruction USER:0101:USER \
      -i USER --dr 1010_0101`,
	Args: cobra.NoArgs,
	RunE: runShift,
}

func init() {
	rootCmd.AddCommand(shiftCmd)

	shiftCmd.Flags().IntVar(&shiftPart, "part", chain.AllParts,
		"part to address (-1 addresses the whole chain)")
	shiftCmd.Flags().StringVarP(&shiftInstruction, "instruction", "i", chain.InstructionBypass,
		"instruction to load")
	shiftCmd.Flags().StringVar(&shiftDRBits, "dr", "",
		"data register input as an MSB-first binary string")
	shiftCmd.Flags().StringVar(&shiftDRValue, "dr-value", "",
		"data register input as an integer (0x, 0b and decimal accepted)")
	shiftCmd.Flags().StringVar(&addRegister, "add-register", "",
		"define a data register NAME:LENGTH on the selected part")
	shiftCmd.Flags().StringVar(&addInstruction, "add-instruction", "",
		"define an instruction NAME:OPCODE:REGISTER on the selected part")

	shiftCmd.Flags().StringVar(&endState, "end-state", "",
		"TAP state to park in afterwards (e.g. pause-dr, reset)")

	shiftCmd.MarkFlagsMutuallyExclusive("dr", "dr-value")
}

func runShift(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	ch, err := detectChain(cmd)
	if err != nil || ch == nil {
		return err
	}
	defer ch.Disconnect()

	var end tap.State
	if endState != "" {
		if end, err = tap.ParseState(endState); err != nil {
			return err
		}
	}

	if err := ch.SelectPart(shiftPart); err != nil {
		return err
	}
	if err := defineOnPart(ch); err != nil {
		return err
	}

	if err := ch.SetInstruction(shiftInstruction); err != nil {
		return err
	}
	if err := ch.ShiftIR(); err != nil {
		return fmt.Errorf("shift IR: %w", err)
	}
	for _, p := range ch.Parts() {
		fmt.Fprintf(out, "Part %d: %-10s IR capture %s\n", p.Index(), p.ActiveInstruction().Name, p.CapturedIR())
	}

	switch {
	case shiftDRBits != "":
		err = ch.SetDRInString(shiftDRBits)
	case shiftDRValue != "":
		var v uint64
		v, err = strconv.ParseUint(strings.ReplaceAll(shiftDRValue, "_", ""), 0, 64)
		if err == nil {
			err = ch.SetDRIn(v)
		}
	}
	if err != nil {
		return fmt.Errorf("load DR: %w", err)
	}

	in, err := ch.GetDRIn()
	if err != nil {
		return err
	}
	if err := ch.ShiftDR(); err != nil {
		return fmt.Errorf("shift DR: %w", err)
	}
	drOut, err := ch.GetDROut()
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "DR in:  %s (0x%s)\n", in, in.Hex())
	fmt.Fprintf(out, "DR out: %s (0x%s)\n", drOut, drOut.Hex())

	if endState != "" {
		if err := ch.GoTo(end); err != nil {
			return err
		}
	}
	fmt.Fprintf(out, "TAP state: %s\n", ch.State())
	return nil
}

func defineOnPart(ch *chain.Chain) error {
	if addRegister != "" {
		name, length, ok := strings.Cut(addRegister, ":")
		n, err := strconv.Atoi(length)
		if !ok || err != nil {
			return fmt.Errorf("--add-register %q: want NAME:LENGTH", addRegister)
		}
		if err := ch.AddRegister(name, n); err != nil {
			return err
		}
	}
	if addInstruction != "" {
		fields := strings.Split(addInstruction, ":")
		if len(fields) != 3 {
			return fmt.Errorf("--add-instruction %q: want NAME:OPCODE:REGISTER", addInstruction)
		}
		if err := ch.AddInstruction(fields[0], fields[1], fields[2]); err != nil {
			return err
		}
	}
	return nil
}

package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagchain/pkg/chain"
	"github.com/OpenTraceLab/jtagchain/pkg/idcode"
)

var showInstructions bool

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "Detect the parts on the JTAG chain",
	Long: `Reset the chain, measure the instruction register and the number of parts,
read the IDCODEs and match them against the BSDL files given with --bsdl.

The detect command will:
  1. Reset the TAP controllers (TRST when the cable has it)
  2. Measure the total IR length and the part count
  3. Read the IDCODE of every part that has one
  4. Attach BSDL descriptions and split the IR between the parts

Examples:
  # Detect the default simulated part
  jtag detect

  # Detect a simulated three part chain
  jtag detect -c sim -p parts=0x4BA00477/4/0xE,bypass/5,0x06413041/5

  # Detect with a CMSIS-DAP adapter and a BSDL library
  jtag detect -c cmsisdap --bsdl /usr/share/bsdl`,
	Args: cobra.NoArgs,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)

	detectCmd.Flags().BoolVarP(&showInstructions, "instructions", "i", false,
		"list the instructions of each part")
}

func runDetect(cmd *cobra.Command, args []string) error {
	ch, err := detectChain(cmd)
	if err != nil || ch == nil {
		return err
	}
	defer ch.Disconnect()

	printChain(cmd.OutOrStdout(), ch, showInstructions)
	return nil
}

func printChain(out io.Writer, ch *chain.Chain, instructions bool) {
	parts := ch.Parts()
	totalIR := 0
	for _, p := range parts {
		totalIR += p.IRLength()
	}

	fmt.Fprintf(out, "Chain: %d part(s), IR %d bits, TCK %d Hz\n\n", len(parts), totalIR, ch.GetFrequency())
	for _, p := range parts {
		printPart(out, p, instructions)
	}
}

func printPart(out io.Writer, p *chain.Part, instructions bool) {
	id := p.IDCode()
	fmt.Fprintf(out, "Part %d:\n", p.Index())
	if id.Valid() {
		m, _ := id.Manufacturer()
		fmt.Fprintf(out, "  IDCODE:       %s\n", id)
		fmt.Fprintf(out, "  Manufacturer: %s\n", m.Name)
		fmt.Fprintf(out, "  Part number:  0x%04X\n", id.PartNumber())
		fmt.Fprintf(out, "  Version:      %d\n", id.Version())
		if known, ok := idcode.LookupPart(id); ok {
			fmt.Fprintf(out, "  Known part:   %s (%s)\n", known.Name, known.Family)
		}
	} else {
		fmt.Fprintf(out, "  IDCODE:       none (BYPASS only)\n")
	}
	fmt.Fprintf(out, "  IR length:    %d bits\n", p.IRLength())
	if e := p.Entity(); e != "" {
		fmt.Fprintf(out, "  Entity:       %s\n", e)
	}
	if active := p.ActiveInstruction(); active != nil {
		fmt.Fprintf(out, "  Instruction:  %s\n", active.Name)
	}
	if instructions {
		fmt.Fprintf(out, "  Instructions: %s\n", strings.Join(p.Instructions(), ", "))
		fmt.Fprintf(out, "  Registers:    %s\n", strings.Join(p.Registers(), ", "))
	}
	fmt.Fprintln(out)
}

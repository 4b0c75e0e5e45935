package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagchain/pkg/bsdl"
)

var showPorts bool

var parseCmd = &cobra.Command{
	Use:   "parse <bsdl-file>",
	Short: "Parse a BSDL file and show the part description",
	Long: `Parse a BSDL file and print what the chain uses from it: the instruction
length and capture pattern, the IDCODE, the instruction table and the data
registers those instructions select.

Examples:
  jtag parse device.bsd
  jtag parse --ports pkg/bsdl/testdata/STM32F4_LQFP64_trimmed.bsd`,
	Args: cobra.ExactArgs(1),
	RunE: runParse,
}

func init() {
	rootCmd.AddCommand(parseCmd)

	parseCmd.Flags().BoolVar(&showPorts, "ports", false,
		"list the entity ports")
}

func runParse(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	filename := args[0]
	logger.Debugf("parsing BSDL file %s", filename)

	parser, err := bsdl.NewParser()
	if err != nil {
		return fmt.Errorf("failed to create parser: %w", err)
	}
	file, err := parser.ParseFile(filename)
	if err != nil {
		return fmt.Errorf("failed to parse file: %w", err)
	}
	d, err := file.Describe()
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "Entity:          %s\n", d.Entity)
	fmt.Fprintf(out, "IR length:       %d bits\n", d.IRLength)
	if d.IRCapture != "" {
		fmt.Fprintf(out, "IR capture:      %s\n", d.IRCapture)
	}
	if d.IDMask != 0 {
		fmt.Fprintf(out, "IDCODE:          0x%08X", d.IDValue)
		if d.IDMask != 0xFFFFFFFF {
			fmt.Fprintf(out, " (mask 0x%08X)", d.IDMask)
		}
		fmt.Fprintln(out)
	}
	if d.BoundaryLength > 0 {
		fmt.Fprintf(out, "Boundary length: %d bits\n", d.BoundaryLength)
	}
	if d.MaxFrequency > 0 {
		fmt.Fprintf(out, "Max TCK:         %.0f Hz\n", d.MaxFrequency)
	}

	fmt.Fprintf(out, "\nInstructions (%d):\n", len(d.Instructions))
	for _, in := range d.Instructions {
		fmt.Fprintf(out, "  %-16s %s  %s\n", in.Name, in.Opcode, in.Register)
	}
	fmt.Fprintf(out, "\nRegisters (%d):\n", len(d.Registers))
	for _, r := range d.Registers {
		fmt.Fprintf(out, "  %-16s %d\n", r.Name, r.Length)
	}

	if showPorts {
		ports := file.Entity.Signals()
		fmt.Fprintf(out, "\nPorts (%d):\n", len(ports))
		for _, name := range ports {
			fmt.Fprintf(out, "  %s\n", name)
		}
	}
	return nil
}

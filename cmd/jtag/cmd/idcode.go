package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagchain/pkg/idcode"
)

var idcodeCmd = &cobra.Command{
	Use:   "idcode <hex>...",
	Short: "Decode raw IDCODE values",
	Long: `Split each IDCODE into its version, part number and JEP106 manufacturer
fields and name the part when it is known.

Examples:
  jtag idcode 0x4BA00477
  jtag idcode 06413041 0x0362D093`,
	Args: cobra.MinimumNArgs(1),
	RunE: runIDCode,
}

func init() {
	rootCmd.AddCommand(idcodeCmd)
}

func runIDCode(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	for _, arg := range args {
		id, err := idcode.Parse(arg)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, id.Describe())
		if verbose && id.Valid() {
			m, known := id.Manufacturer()
			fmt.Fprintf(out, "  version       %d\n", id.Version())
			fmt.Fprintf(out, "  part number   0x%04X\n", id.PartNumber())
			fmt.Fprintf(out, "  manufacturer  0x%03X bank %d id 0x%02X known=%v\n", id.ManufacturerCode(), m.Bank, m.ID, known)
		}
	}
	return nil
}

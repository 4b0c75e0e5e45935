package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagchain/pkg/cable"
)

var noScan bool

var interfacesCmd = &cobra.Command{
	Use:   "interfaces",
	Short: "List cable drivers and attached adapters",
	Long: `Print the cable drivers this build knows, then scan the host for CMSIS-DAP
adapters and Bus Pirate serial adapters. Each adapter is printed with the
--cable and --param flags that open it.`,
	Args: cobra.NoArgs,
	RunE: runInterfaces,
}

func init() {
	rootCmd.AddCommand(interfacesCmd)

	interfacesCmd.Flags().BoolVar(&noScan, "no-scan", false,
		"list drivers only, without scanning USB and serial ports")
}

func runInterfaces(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "Cable drivers:")
	for _, d := range cable.Default().Drivers() {
		name := d.Name
		if len(d.Aliases) > 0 {
			name += " (" + strings.Join(d.Aliases, ", ") + ")"
		}
		fmt.Fprintf(out, "  %-32s %s\n", name, d.Description)
	}
	if noScan {
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()

	infos, err := cable.DiscoverInterfaces(ctx)
	if err != nil {
		return fmt.Errorf("discover interfaces: %w", err)
	}

	fmt.Fprintln(out)
	if len(infos) == 0 {
		fmt.Fprintln(out, "No interfaces found.")
		return nil
	}
	fmt.Fprintln(out, "Detected interfaces:")
	for _, iface := range infos {
		fmt.Fprintf(out, "  - %s\n", iface.Label())
		if p := iface.Params(); len(p) > 0 {
			fmt.Fprintf(out, "      jtag -c %s -p %s\n", iface.Driver, strings.Join(p.Strings(), " -p "))
		}
	}
	return nil
}

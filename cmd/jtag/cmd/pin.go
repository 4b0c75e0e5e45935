package cmd

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OpenTraceLab/jtagchain/pkg/chain"
)

var (
	pinPart  int
	pinCells bool
)

var getCmd = &cobra.Command{
	Use:   "get [PIN...]",
	Short: "Read pins through the boundary register",
	Long: `Detect the chain and capture the boundary register of every part that owns one
of the named pins, then print each pin's level. Parts that are not driving
their pins are read with SAMPLE, so the board keeps running.

Pins are found through the BSDL descriptions passed with --bsdl. Without
--part the first part that has a pin of that name is used.

Examples:
  jtag get --bsdl bsdl/ PA0 PA1
  jtag get --bsdl bsdl/ --part 1 --cells`,
	RunE: runGet,
}

var setCmd = &cobra.Command{
	Use:   "set PIN=LEVEL...",
	Short: "Drive pins through EXTEST",
	Long: `Detect the chain, preload the boundary register with SAMPLE/PRELOAD and switch
the parts to EXTEST so the pins take the given levels. LEVEL is 0, 1 or Z
(driver off). Every other pin of those parts is set to its safe value. The
pins are read back in the same scan.

Examples:
  jtag set --bsdl bsdl/ PA0=1 NRST=z`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSet,
}

func init() {
	rootCmd.AddCommand(getCmd, setCmd)
	for _, c := range []*cobra.Command{getCmd, setCmd} {
		c.Flags().IntVar(&pinPart, "part", -1, "part that owns the pins (-1 searches the chain)")
	}
	getCmd.Flags().BoolVar(&pinCells, "cells", false, "print every boundary cell of the captured parts")
}

// pinOwner resolves the part that owns pin.
func pinOwner(ch *chain.Chain, pin string) (int, error) {
	if pinPart >= 0 {
		return pinPart, nil
	}
	for _, p := range ch.Parts() {
		for _, name := range p.Pins() {
			if strings.EqualFold(name, pin) {
				return p.Index(), nil
			}
		}
	}
	return 0, fmt.Errorf("%w: no part has a pin named %s", chain.ErrUnknownPin, pin)
}

type pinRef struct {
	part int
	name string
}

func runGet(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && !pinCells {
		return fmt.Errorf("name at least one pin or pass --cells")
	}
	out := cmd.OutOrStdout()
	ch, err := detectChain(cmd)
	if err != nil || ch == nil {
		return err
	}
	defer ch.Disconnect()

	b := ch.NewBatch()
	var refs []pinRef
	for _, name := range args {
		part, err := pinOwner(ch, name)
		if err != nil {
			return err
		}
		if err := b.Capture(part); err != nil {
			return err
		}
		refs = append(refs, pinRef{part, name})
	}
	captured := capturedParts(refs)
	if pinCells && len(args) == 0 {
		for _, p := range ch.Parts() {
			if (pinPart < 0 || p.Index() == pinPart) && len(p.Pins()) > 0 {
				if err := b.Capture(p.Index()); err != nil {
					return err
				}
				captured = append(captured, p.Index())
			}
		}
		if len(captured) == 0 {
			return fmt.Errorf("%w: no part with boundary cells", chain.ErrNoBoundaryScan)
		}
	}

	res, err := b.Execute()
	if err != nil {
		return err
	}
	for _, r := range refs {
		v, err := res.Pin(r.part, r.name)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s=%s\n", r.name, bit(v))
	}
	if pinCells {
		for _, i := range captured {
			printCells(out, ch, res, i)
		}
	}
	return nil
}

func runSet(cmd *cobra.Command, args []string) error {
	type request struct {
		pinRef
		level chain.Level
	}
	var reqs []request
	for _, arg := range args {
		name, lvl, ok := strings.Cut(arg, "=")
		if !ok || name == "" {
			return fmt.Errorf("argument %q: want PIN=LEVEL", arg)
		}
		l, err := chain.ParseLevel(lvl)
		if err != nil {
			return err
		}
		reqs = append(reqs, request{pinRef{name: name}, l})
	}

	out := cmd.OutOrStdout()
	ch, err := detectChain(cmd)
	if err != nil || ch == nil {
		return err
	}
	defer ch.Disconnect()

	b := ch.NewBatch()
	for i := range reqs {
		part, err := pinOwner(ch, reqs[i].name)
		if err != nil {
			return err
		}
		reqs[i].part = part
		if err := b.SetPin(part, reqs[i].name, reqs[i].level); err != nil {
			return err
		}
		if err := b.Capture(part); err != nil {
			return err
		}
	}
	res, err := b.Execute()
	if err != nil {
		return err
	}
	for _, r := range reqs {
		fmt.Fprintf(out, "Part %d: %s=%s", r.part, r.name, r.level)
		if v, err := res.Pin(r.part, r.name); err == nil {
			fmt.Fprintf(out, " (reads %s)", bit(v))
		}
		fmt.Fprintln(out)
	}
	return nil
}

func capturedParts(refs []pinRef) []int {
	seen := make(map[int]bool)
	var parts []int
	for _, r := range refs {
		if !seen[r.part] {
			seen[r.part] = true
			parts = append(parts, r.part)
		}
	}
	sort.Ints(parts)
	return parts
}

func printCells(out io.Writer, ch *chain.Chain, res *chain.BatchResult, part int) {
	reg, ok := res.Register(part)
	if !ok {
		return
	}
	p, err := ch.Part(part)
	if err != nil {
		return
	}
	fmt.Fprintf(out, "Part %d (%s) boundary register:\n", part, p.Entity())
	d := p.Description()
	for i, v := range reg.Bools() {
		cell, ok := d.Cell(i)
		if !ok {
			fmt.Fprintf(out, "  %4d  %s\n", i, bit(v))
			continue
		}
		fmt.Fprintf(out, "  %4d  %s  %-6s %-8s %s\n", i, bit(v), cell.Type, cell.Function, cell.Port)
	}
}

func bit(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

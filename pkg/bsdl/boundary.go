package bsdl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Cell is one entry of the BOUNDARY_REGISTER attribute.
type Cell struct {
	Number   int
	Type     string // BC_1, BC_4, ...
	Port     string // "*" for cells not tied to a port
	Function string // lower case: input, output2, output3, bidir, control, ...
	Safe     string // "0", "1" or "X"
	Control  int    // cell that enables this driver, -1 when absent
	Disable  int    // Control level that turns the driver off, -1 when absent
	Result   string // pin state while disabled, e.g. "Z"
}

// Input reports whether the cell captures the level on its port.
func (c Cell) Input() bool {
	switch c.Function {
	case "input", "bidir", "clock", "observe_only":
		return true
	}
	return false
}

// Output reports whether the cell drives its port under EXTEST.
func (c Cell) Output() bool {
	switch c.Function {
	case "output2", "output3", "bidir":
		return true
	}
	return false
}

// parseCells decodes a BOUNDARY_REGISTER string such as
// "1 (BC_4, PA0, input, X), 2 (BC_1, PA0, output3, X, 3, 1, Z)".
func parseCells(s string, length int) ([]Cell, error) {
	groups, err := parseGroups(s)
	if err != nil {
		return nil, err
	}
	seen := make(map[int]bool, len(groups))
	cells := make([]Cell, 0, len(groups))
	for _, g := range groups {
		n, err := strconv.Atoi(g.name)
		if err != nil {
			return nil, fmt.Errorf("invalid cell number %q", g.name)
		}
		if n < 0 || n >= length {
			return nil, fmt.Errorf("cell %d outside a %d-cell register", n, length)
		}
		if seen[n] {
			return nil, fmt.Errorf("cell %d listed twice", n)
		}
		seen[n] = true
		if len(g.items) != 4 && len(g.items) != 7 {
			return nil, fmt.Errorf("cell %d: want 4 or 7 fields, got %d", n, len(g.items))
		}
		c := Cell{
			Number:   n,
			Type:     strings.ToUpper(g.items[0]),
			Port:     g.items[1],
			Function: strings.ToLower(g.items[2]),
			Safe:     strings.ToUpper(g.items[3]),
			Control:  -1,
			Disable:  -1,
		}
		if len(g.items) == 7 {
			if c.Control, err = strconv.Atoi(g.items[4]); err != nil || c.Control < 0 || c.Control >= length {
				return nil, fmt.Errorf("cell %d: invalid control cell %q", n, g.items[4])
			}
			if c.Disable, err = strconv.Atoi(g.items[5]); err != nil || (c.Disable != 0 && c.Disable != 1) {
				return nil, fmt.Errorf("cell %d: invalid disable value %q", n, g.items[5])
			}
			c.Result = strings.ToUpper(g.items[6])
		}
		cells = append(cells, c)
	}
	sort.Slice(cells, func(i, j int) bool { return cells[i].Number < cells[j].Number })
	return cells, nil
}

// Cell returns boundary cell n.
func (d *Description) Cell(n int) (Cell, bool) {
	i := sort.Search(len(d.Cells), func(i int) bool { return d.Cells[i].Number >= n })
	if i < len(d.Cells) && d.Cells[i].Number == n {
		return d.Cells[i], true
	}
	return Cell{}, false
}

// Pins lists the ports that have boundary cells, sorted.
func (d *Description) Pins() []string {
	seen := make(map[string]bool)
	var pins []string
	for _, c := range d.Cells {
		if c.Port == "*" || seen[c.Port] {
			continue
		}
		seen[c.Port] = true
		pins = append(pins, c.Port)
	}
	sort.Strings(pins)
	return pins
}

// InputCell returns the cell that captures pin, ignoring case.
func (d *Description) InputCell(pin string) (Cell, bool) {
	return d.findCell(pin, Cell.Input)
}

// OutputCell returns the cell that drives pin, ignoring case.
func (d *Description) OutputCell(pin string) (Cell, bool) {
	return d.findCell(pin, Cell.Output)
}

func (d *Description) findCell(pin string, match func(Cell) bool) (Cell, bool) {
	for _, c := range d.Cells {
		if strings.EqualFold(c.Port, pin) && match(c) {
			return c, true
		}
	}
	return Cell{}, false
}

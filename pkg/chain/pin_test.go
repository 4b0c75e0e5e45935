package chain

import (
	"errors"
	"testing"

	"github.com/OpenTraceLab/jtagchain/pkg/cable"
)

// The STM32 description has PA0 output on cell 2 (control 3), PA0 input on
// cell 1, PA1 input on cell 0, NRST output on cell 5 (control 6) and BOOT0
// input on cell 7. The simulated board ties PA0 to PA1.
func newPinChain(t *testing.T) (*cable.SimTarget, *Chain) {
	t.Helper()
	repo := NewMemoryRepository()
	if err := repo.LoadFiles(stm32File); err != nil {
		t.Fatalf("LoadFiles: %v", err)
	}
	stm32 := cable.SimPart{
		IDCode:       0x06413041,
		IRLength:     5,
		IDCodeOpcode: 0x1,
		Boundary: &cable.SimBoundary{
			Length:       8,
			SampleOpcode: 0x2,
			ExtestOpcode: 0x0,
			Wires:        map[int][]int{2: {1, 0}, 5: {4}},
		},
	}
	target, ch := newSimChain(t, repo, bypassPart, stm32)
	detect(t, ch)
	return target, ch
}

func TestGetPinSamples(t *testing.T) {
	target, ch := newPinChain(t)
	target.SetPin(1, 7, true)
	tests := []struct {
		pin  string
		want bool
	}{
		{"BOOT0", true},
		{"boot0", true},
		{"PA1", false},
		{"NRST", false},
	}
	for _, tt := range tests {
		got, err := ch.GetPin(1, tt.pin)
		if err != nil || got != tt.want {
			t.Fatalf("GetPin(%s) = %v, %v", tt.pin, got, err)
		}
	}
	p, _ := ch.Part(1)
	if p.ActiveInstruction().Name != InstructionSample || target.Driving(1) {
		t.Fatalf("active %s, driving %v", p.ActiveInstruction().Name, target.Driving(1))
	}
	if target.Instruction(0) != 0xF {
		t.Fatalf("part 0 opcode 0x%X", target.Instruction(0))
	}
}

func TestSetPinDrivesThroughExtest(t *testing.T) {
	target, ch := newPinChain(t)
	if err := ch.SetPin(1, "PA0", High); err != nil {
		t.Fatalf("SetPin: %v", err)
	}
	if !target.Driving(1) {
		t.Fatal("part not in EXTEST")
	}
	// Output high, its control cell enabled (disable value 1), NRST left
	// disabled at its safe value.
	if !target.Latch(1, 2) || target.Latch(1, 3) || !target.Latch(1, 6) {
		t.Fatalf("latch cells 2/3/6 = %v/%v/%v", target.Latch(1, 2), target.Latch(1, 3), target.Latch(1, 6))
	}
	if got, err := ch.GetPin(1, "PA1"); err != nil || !got {
		t.Fatalf("PA1 = %v, %v", got, err)
	}
	if !target.Driving(1) {
		t.Fatal("read released the pins")
	}

	if err := ch.SetPin(1, "NRST", Low); err != nil {
		t.Fatalf("SetPin: %v", err)
	}
	if !target.Latch(1, 2) || target.Latch(1, 5) || target.Latch(1, 6) {
		t.Fatalf("latch cells 2/5/6 = %v/%v/%v", target.Latch(1, 2), target.Latch(1, 5), target.Latch(1, 6))
	}

	if err := ch.SetPin(1, "PA0", HighZ); err != nil {
		t.Fatalf("SetPin: %v", err)
	}
	if !target.Latch(1, 3) {
		t.Fatal("PA0 driver still enabled")
	}

	if err := ch.Reset(); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if target.Driving(1) {
		t.Fatal("EXTEST survived reset")
	}
}

func TestBatch(t *testing.T) {
	target, ch := newPinChain(t)
	b := ch.NewBatch()
	if _, err := b.Execute(); err == nil {
		t.Fatal("empty batch executed")
	}
	for _, op := range []struct {
		pin string
		l   Level
	}{
		{"PA0", Low},
		{"NRST", High},
		{"PA0", High},
	} {
		if err := b.SetPin(1, op.pin, op.l); err != nil {
			t.Fatalf("SetPin(%s): %v", op.pin, err)
		}
	}
	if err := b.Capture(1); err != nil {
		t.Fatalf("Capture: %v", err)
	}
	res, err := b.Execute()
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	for _, pin := range []string{"PA0", "PA1", "NRST"} {
		if got, err := res.Pin(1, pin); err != nil || !got {
			t.Fatalf("%s = %v, %v", pin, got, err)
		}
	}
	reg, ok := res.Register(1)
	if !ok || reg.Len() != 8 {
		t.Fatalf("captured %v, %v", reg, ok)
	}
	for i, bit := range reg.Bools() {
		if bit != target.Pin(1, i) {
			t.Fatalf("cell %d captured %v, net %v", i, bit, target.Pin(1, i))
		}
	}
	if _, ok := res.Register(0); ok {
		t.Fatal("part 0 captured")
	}
	if _, err := res.Pin(0, "PA0"); err == nil {
		t.Fatal("Pin on an uncaptured part")
	}
}

func TestPinErrors(t *testing.T) {
	_, ch := newPinChain(t)
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"bypass part", ch.SetPin(0, "PA0", High), ErrNoBoundaryScan},
		{"out of range", ch.SetPin(5, "PA0", High), ErrIndexOutOfRange},
		{"input only", ch.SetPin(1, "PA1", High), ErrUnknownPin},
		{"unknown pin", ch.SetPin(1, "PB9", Low), ErrUnknownPin},
	}
	for _, tt := range tests {
		if !errors.Is(tt.err, tt.want) {
			t.Fatalf("%s: err = %v, want %v", tt.name, tt.err, tt.want)
		}
	}
	if _, err := ch.GetPin(1, "PB9"); !errors.Is(err, ErrUnknownPin) {
		t.Fatalf("GetPin err = %v", err)
	}
	if err := ch.Disconnect(); err != nil {
		t.Fatalf("Disconnect: %v", err)
	}
	if _, err := ch.GetPin(1, "PA1"); !errors.Is(err, ErrNoCable) {
		t.Fatalf("GetPin after Disconnect err = %v", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want Level
		ok   bool
	}{
		{"0", Low, true},
		{"HIGH", High, true},
		{"z", HighZ, true},
		{"hiz", HighZ, true},
		{"2", 0, false},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err == nil) != tt.ok || got != tt.want {
			t.Fatalf("ParseLevel(%q) = %v, %v", tt.in, got, err)
		}
	}
	if High.String() != "1" || HighZ.String() != "Z" {
		t.Fatalf("strings %s %s", High, HighZ)
	}
}

package register

import (
	"bytes"
	"testing"
)

func TestParseAndString(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		value   uint64
		wantErr bool
	}{
		{in: "110", want: "110", value: 6},
		{in: "0000_0001", want: "00000001", value: 1},
		{in: "1 0 1", want: "101", value: 5},
		{in: "", want: "", value: 0},
		{in: "10x1", wantErr: true},
	}
	for _, tt := range tests {
		r, err := Parse(tt.in)
		if (err != nil) != tt.wantErr {
			t.Fatalf("Parse(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
		}
		if tt.wantErr {
			continue
		}
		if r.String() != tt.want || r.Uint() != tt.value {
			t.Fatalf("Parse(%q) = %s (%d), want %s (%d)", tt.in, r, r.Uint(), tt.want, tt.value)
		}
	}
}

func TestBitOrder(t *testing.T) {
	r := MustParse("100")
	if r.Bit(0) || r.Bit(1) || !r.Bit(2) {
		t.Fatalf("bits of 100 = %v", r.Bools())
	}
	if r.Bit(5) || r.Bit(-1) {
		t.Fatal("out of range bit read as 1")
	}
	if err := r.SetBit(3, true); err == nil {
		t.Fatal("SetBit past the end succeeded")
	}
}

func TestFromUint(t *testing.T) {
	r := FromUint(0x149511C3, 32)
	if r.Len() != 32 || r.Uint() != 0x149511C3 {
		t.Fatalf("FromUint = %d bits, 0x%X", r.Len(), r.Uint())
	}
	if r.Hex() != "149511C3" {
		t.Fatalf("Hex = %s", r.Hex())
	}
	if got := FromUint(0xFF, 4).Uint(); got != 0xF {
		t.Fatalf("truncation = 0x%X", got)
	}
	if got := FromUint(0x5, 6).Hex(); got != "05" {
		t.Fatalf("6-bit hex = %s", got)
	}
}

func TestRange(t *testing.T) {
	r := MustParse("1011_0110")
	v, err := r.Range(5, 2)
	if err != nil || v != 0b1101 {
		t.Fatalf("Range(5,2) = %b, %v", v, err)
	}
	if err := r.SetRange(0b0010, 5, 2); err != nil {
		t.Fatalf("SetRange: %v", err)
	}
	if r.String() != "10001010" {
		t.Fatalf("after SetRange = %s", r)
	}
	for _, bad := range [][2]int{{8, 0}, {2, 3}, {0, -1}} {
		if _, err := r.Range(bad[0], bad[1]); err == nil {
			t.Fatalf("Range(%d,%d) accepted", bad[0], bad[1])
		}
	}
	if _, err := New(80).Range(70, 0); err == nil {
		t.Fatal("71-bit range accepted")
	}
}

func TestConcatAndSlice(t *testing.T) {
	a := MustParse("01")
	b := MustParse("111")
	c := Concat(a, b)
	if c.String() != "11101" {
		t.Fatalf("Concat = %s", c)
	}
	s, err := c.Slice(2, 3)
	if err != nil || !s.Equal(b) {
		t.Fatalf("Slice = %v, %v", s, err)
	}
	if _, err := c.Slice(4, 2); err == nil {
		t.Fatal("slice past the end accepted")
	}
}

func TestBytes(t *testing.T) {
	r := MustParse("1_1010_0101")
	if got := r.Bytes(); !bytes.Equal(got, []byte{0xA5, 0x01}) {
		t.Fatalf("Bytes = % X", got)
	}
	back := FromBytes([]byte{0xA5, 0xFF}, 9)
	if !back.Equal(r) {
		t.Fatalf("FromBytes = %s", back)
	}
	if got := New(0).Bytes(); len(got) != 0 {
		t.Fatalf("empty Bytes = % X", got)
	}
}

func TestCloneCopyEqual(t *testing.T) {
	r := MustParse("1010")
	c := r.Clone()
	_ = c.SetBit(0, true)
	if r.Equal(c) {
		t.Fatal("clone shares storage")
	}
	if err := r.Copy(c); err != nil || !r.Equal(c) {
		t.Fatalf("Copy: %v", err)
	}
	if err := r.Copy(New(3)); err == nil {
		t.Fatal("copy between widths accepted")
	}
	if r.Equal(MustParse("01011")) {
		t.Fatal("registers of different width compare equal")
	}
}

func TestFillAndAllOnes(t *testing.T) {
	r := New(7).Fill(true)
	if !r.AllOnes() || r.String() != "1111111" {
		t.Fatalf("Fill = %s", r)
	}
	if New(0).AllOnes() {
		t.Fatal("empty register reported all ones")
	}
	if FromBools([]bool{true, false}).AllOnes() {
		t.Fatal("10 reported all ones")
	}
}

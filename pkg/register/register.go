// Package register provides the fixed-length bit vectors shifted through
// JTAG instruction and data registers.
//
// Bit 0 is the first bit shifted into TDI and the first bit seen on TDO. The
// textual form is MSB first, so Parse("110") yields bit 0 = 0, bit 2 = 1.
package register

import (
	"fmt"
	"strings"

	"github.com/boljen/go-bitmap"
)

// Register is a bit vector of fixed length.
type Register struct {
	bits bitmap.Bitmap
	n    int
}

// New returns a zeroed register of n bits.
func New(n int) *Register {
	if n < 0 {
		n = 0
	}
	return &Register{bits: bitmap.New(n), n: n}
}

// FromUint returns an n-bit register holding the low n bits of v.
func FromUint(v uint64, n int) *Register {
	r := New(n)
	for i := 0; i < n && i < 64; i++ {
		r.bits.Set(i, v&(1<<uint(i)) != 0)
	}
	return r
}

// FromBools builds a register from bits in shift order.
func FromBools(bits []bool) *Register {
	r := New(len(bits))
	for i, b := range bits {
		r.bits.Set(i, b)
	}
	return r
}

// FromBytes unpacks n bits from an LSB-first byte buffer.
func FromBytes(buf []byte, n int) *Register {
	r := New(n)
	for i := 0; i < n && i/8 < len(buf); i++ {
		r.bits.Set(i, buf[i/8]&(1<<uint(i%8)) != 0)
	}
	return r
}

// Parse reads an MSB-first binary string. Underscores and whitespace are
// ignored so long values can be grouped.
func Parse(s string) (*Register, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '_', ' ', '\t', '\n', '\r':
			return -1
		}
		return r
	}, s)
	r := New(len(clean))
	for i, c := range clean {
		switch c {
		case '0':
		case '1':
			r.bits.Set(len(clean)-1-i, true)
		default:
			return nil, fmt.Errorf("register: invalid binary digit %q in %q", c, s)
		}
	}
	return r, nil
}

// MustParse is Parse for constants; it panics on malformed input.
func MustParse(s string) *Register {
	r, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return r
}

// Len returns the register width in bits.
func (r *Register) Len() int {
	return r.n
}

// Bit returns bit i. Out of range bits read as 0.
func (r *Register) Bit(i int) bool {
	if i < 0 || i >= r.n {
		return false
	}
	return r.bits.Get(i)
}

// SetBit sets bit i.
func (r *Register) SetBit(i int, v bool) error {
	if i < 0 || i >= r.n {
		return fmt.Errorf("register: bit %d out of range for %d-bit register", i, r.n)
	}
	r.bits.Set(i, v)
	return nil
}

// Fill sets every bit to v.
func (r *Register) Fill(v bool) *Register {
	for i := 0; i < r.n; i++ {
		r.bits.Set(i, v)
	}
	return r
}

// Uint returns the low 64 bits as an integer.
func (r *Register) Uint() uint64 {
	var v uint64
	for i := 0; i < r.n && i < 64; i++ {
		if r.bits.Get(i) {
			v |= 1 << uint(i)
		}
	}
	return v
}

// Range returns bits msb..lsb (inclusive) as an integer. The range may not
// be wider than 64 bits.
func (r *Register) Range(msb, lsb int) (uint64, error) {
	if err := r.checkRange(msb, lsb); err != nil {
		return 0, err
	}
	var v uint64
	for i := lsb; i <= msb; i++ {
		if r.bits.Get(i) {
			v |= 1 << uint(i-lsb)
		}
	}
	return v, nil
}

// SetRange stores v into bits msb..lsb (inclusive).
func (r *Register) SetRange(v uint64, msb, lsb int) error {
	if err := r.checkRange(msb, lsb); err != nil {
		return err
	}
	for i := lsb; i <= msb; i++ {
		r.bits.Set(i, v&(1<<uint(i-lsb)) != 0)
	}
	return nil
}

func (r *Register) checkRange(msb, lsb int) error {
	switch {
	case lsb < 0 || msb >= r.n || lsb > msb:
		return fmt.Errorf("register: range [%d:%d] out of bounds for %d-bit register", msb, lsb, r.n)
	case msb-lsb >= 64:
		return fmt.Errorf("register: range [%d:%d] wider than 64 bits", msb, lsb)
	}
	return nil
}

// Slice returns a copy of n bits starting at bit from.
func (r *Register) Slice(from, n int) (*Register, error) {
	if from < 0 || n < 0 || from+n > r.n {
		return nil, fmt.Errorf("register: slice %d+%d out of bounds for %d-bit register", from, n, r.n)
	}
	out := New(n)
	for i := 0; i < n; i++ {
		out.bits.Set(i, r.bits.Get(from+i))
	}
	return out, nil
}

// Copy overwrites r with src, which must have the same length.
func (r *Register) Copy(src *Register) error {
	if src.n != r.n {
		return fmt.Errorf("register: cannot copy %d bits into %d-bit register", src.n, r.n)
	}
	copy(r.bits, src.bits)
	return nil
}

// Concat joins registers so that regs[0] occupies the lowest bits.
func Concat(regs ...*Register) *Register {
	total := 0
	for _, r := range regs {
		total += r.n
	}
	out := New(total)
	pos := 0
	for _, r := range regs {
		for i := 0; i < r.n; i++ {
			out.bits.Set(pos, r.bits.Get(i))
			pos++
		}
	}
	return out
}

// Bytes returns the bits packed LSB-first, as cables expect them.
func (r *Register) Bytes() []byte {
	out := make([]byte, (r.n+7)/8)
	copy(out, r.bits)
	if rem := r.n % 8; rem != 0 {
		out[len(out)-1] &= byte(1<<uint(rem)) - 1
	}
	return out
}

// Bools returns the bits in shift order.
func (r *Register) Bools() []bool {
	out := make([]bool, r.n)
	for i := range out {
		out[i] = r.bits.Get(i)
	}
	return out
}

// String returns the MSB-first binary form.
func (r *Register) String() string {
	var b strings.Builder
	b.Grow(r.n)
	for i := r.n - 1; i >= 0; i-- {
		if r.bits.Get(i) {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Hex returns the value in hexadecimal, zero-padded to the register width.
func (r *Register) Hex() string {
	digits := (r.n + 3) / 4
	if digits == 0 {
		return ""
	}
	var b strings.Builder
	for d := digits - 1; d >= 0; d-- {
		var nib byte
		for i := 0; i < 4; i++ {
			if r.Bit(d*4 + i) {
				nib |= 1 << uint(i)
			}
		}
		b.WriteByte("0123456789ABCDEF"[nib])
	}
	return b.String()
}

// Equal reports whether both registers have the same length and bits.
func (r *Register) Equal(o *Register) bool {
	if r == nil || o == nil {
		return r == o
	}
	if r.n != o.n {
		return false
	}
	for i := 0; i < r.n; i++ {
		if r.bits.Get(i) != o.bits.Get(i) {
			return false
		}
	}
	return true
}

// Clone returns an independent copy.
func (r *Register) Clone() *Register {
	out := New(r.n)
	copy(out.bits, r.bits)
	return out
}

// AllOnes reports whether every bit is set; an empty register is not.
func (r *Register) AllOnes() bool {
	if r.n == 0 {
		return false
	}
	for i := 0; i < r.n; i++ {
		if !r.bits.Get(i) {
			return false
		}
	}
	return true
}

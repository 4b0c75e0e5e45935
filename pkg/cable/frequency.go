package cable

// MatchFrequency picks a rate from an ascending table: the fastest one not
// above hz, or the slowest one when hz is below every entry. A request of
// zero or less selects the fastest rate.
func MatchFrequency(rates []int, hz int) int {
	if len(rates) == 0 {
		return 0
	}
	if hz <= 0 {
		return rates[len(rates)-1]
	}
	best := rates[0]
	for _, r := range rates {
		if r <= hz {
			best = r
		}
	}
	return best
}

// DivideFrequency models a cable clocked from base through an integer
// divider. The divider is rounded up so the result never exceeds hz.
func DivideFrequency(base, hz int) int {
	if base <= 0 {
		return 0
	}
	if hz <= 0 || hz >= base {
		return base
	}
	div := (base + hz - 1) / hz
	return base / div
}

// ClampFrequency limits hz to [min, max]; zero or less selects max.
func ClampFrequency(min, max, hz int) int {
	if hz <= 0 || hz > max {
		return max
	}
	if hz < min {
		return min
	}
	return hz
}

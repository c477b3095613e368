// Package combinatorial implements the bijection between non-negative
// integers and fixed-weight bit patterns under lexicographic order, using
// the combinatorial number system.
package combinatorial

import "math/bits"

// Codec encodes values in [0, Total()) to nu-bit patterns of Hamming
// weight kappa, and decodes them back. All operations are O(nu) table
// lookups against a precomputed binomial table.
type Codec struct {
	nu    uint8
	kappa uint8
	table [][]uint64 // (nu+1) x (kappa+1) binomial coefficients
}

// NewCodec precomputes the (nu+1)x(kappa+1) binomial table C(p, r) for
// 0 <= p <= nu, 0 <= r <= kappa.
func NewCodec(nu, kappa uint8) *Codec {
	table := make([][]uint64, int(nu)+1)
	for p := 0; p <= int(nu); p++ {
		row := make([]uint64, int(kappa)+1)
		row[0] = 1
		for r := 1; r <= int(kappa); r++ {
			if r > p {
				row[r] = 0
				continue
			}
			row[r] = table[p-1][r-1] + table[p-1][r]
		}
		table[p] = row
	}
	return &Codec{nu: nu, kappa: kappa, table: table}
}

// Nu returns the configured marker width.
func (c *Codec) Nu() uint8 { return c.nu }

// Kappa returns the configured marker weight.
func (c *Codec) Kappa() uint8 { return c.kappa }

// Choose returns C(p, r), or 0 if out of the table's range.
func (c *Codec) Choose(p, r int) uint64 {
	if p < 0 || r < 0 || p > int(c.nu) || r > int(c.kappa) {
		return 0
	}
	return c.table[p][r]
}

// Total returns C(nu, kappa), the exclusive upper bound on representable
// values.
func (c *Codec) Total() uint64 {
	return c.table[c.nu][c.kappa]
}

// Encode returns the nu-bit, kappa-weight pattern whose lexicographic
// rank among weight-kappa strings equals v. The caller must ensure
// 0 <= v < Total(); Array enforces this via theta before calling.
func (c *Codec) Encode(v uint64) uint64 {
	var pattern uint64
	r := int(c.kappa)
	for p := int(c.nu) - 1; p >= 0 && r > 0; p-- {
		cpr := c.table[p][r]
		if v >= cpr {
			pattern |= uint64(1) << uint(p)
			v -= cpr
			r--
		}
	}
	return pattern
}

// Decode inverts Encode. The caller must ensure popcount(pattern) ==
// kappa; every kappa-weight nu-bit pattern is a valid codeword, so no
// further validation happens here (Array.Lookup only calls Decode once
// that invariant holds).
func (c *Codec) Decode(pattern uint64) uint64 {
	var v uint64
	r := int(c.kappa)
	for p := int(c.nu) - 1; p >= 0 && r > 0; p-- {
		if pattern&(uint64(1)<<uint(p)) != 0 {
			v += c.table[p][r]
			r--
		}
	}
	return v
}

// Popcount returns the number of set bits among the low nu bits of
// pattern.
func (c *Codec) Popcount(pattern uint64) int {
	return bits.OnesCount64(pattern & c.mask())
}

func (c *Codec) mask() uint64 {
	if c.nu >= 64 {
		return ^uint64(0)
	}
	return uint64(1)<<c.nu - 1
}

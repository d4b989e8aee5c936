package indicator

import (
	"math"
	"strconv"
)

// Column is a derived numeric column aligned with a sorted Series.
// NaN marks an undefined value and is encoded as JSON null.
type Column []float64

// Missing reports whether v is an undefined column value.
func Missing(v float64) bool { return math.IsNaN(v) }

func undefinedColumn(n int) Column {
	c := make(Column, n)
	for i := range c {
		c[i] = math.NaN()
	}
	return c
}

// Defined returns the number of defined values.
func (c Column) Defined() int {
	n := 0
	for _, v := range c {
		if !Missing(v) {
			n++
		}
	}
	return n
}

// Last returns the latest defined value.
func (c Column) Last() (float64, bool) {
	for i := len(c) - 1; i >= 0; i-- {
		if !Missing(c[i]) {
			return c[i], true
		}
	}
	return 0, false
}

// Min returns the lowest defined value.
func (c Column) Min() (float64, bool) {
	lo, ok := 0.0, false
	for _, v := range c {
		if Missing(v) {
			continue
		}
		if !ok || v < lo {
			lo, ok = v, true
		}
	}
	return lo, ok
}

// MarshalJSON encodes undefined values as null.
func (c Column) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 2+len(c)*12)
	buf = append(buf, '[')
	for i, v := range c {
		if i > 0 {
			buf = append(buf, ',')
		}
		if Missing(v) || math.IsInf(v, 0) {
			buf = append(buf, "null"...)
			continue
		}
		buf = strconv.AppendFloat(buf, v, 'g', -1, 64)
	}
	return append(buf, ']'), nil
}

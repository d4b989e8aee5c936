package indicator

import (
	"fmt"
	"math"
)

// Bands holds Bollinger Band columns.
type Bands struct {
	Middle Column `json:"middle"`
	Upper  Column `json:"upper"`
	Lower  Column `json:"lower"`
}

// Bollinger returns bands of k sample standard deviations (ddof=1) around the
// w-point moving average. The first w-1 points are NaN. With w == 1 the
// sample deviation is undefined, so only the middle band is defined.
func Bollinger(s Series, w int, k float64) (Bands, error) {
	if err := checkWindow("bollinger", w); err != nil {
		return Bands{}, err
	}
	if k < 0 || !finite(k) {
		return Bands{}, fmt.Errorf("%w: bollinger width %v, must be a finite k >= 0", ErrInvalidParameter, k)
	}
	sorted, err := prepare(s)
	if err != nil {
		return Bands{}, err
	}
	return bollinger(sorted.Prices(), w, k), nil
}

func bollinger(prices []float64, w int, k float64) Bands {
	n := len(prices)
	b := Bands{
		Middle: undefinedColumn(n),
		Upper:  undefinedColumn(n),
		Lower:  undefinedColumn(n),
	}
	win := newWindow(w)
	for i, p := range prices {
		win.push(p)
		if !win.full() {
			continue
		}
		mid := win.mean()
		b.Middle[i] = mid
		std := win.sampleStd()
		if math.IsNaN(std) {
			continue
		}
		b.Upper[i] = mid + k*std
		b.Lower[i] = mid - k*std
	}
	return b
}

// Package indicator computes technical indicators over an ordered price series.
//
// Every transform is a pure function: it sorts a copy of its input by
// timestamp, never mutates the caller's series, and returns columns aligned
// with that sorted copy. Outputs a rolling window cannot fill are NaN.
// Transforms hold no shared state and are safe to call concurrently.
package indicator

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"time"

	"btcpulse/internal/model"
)

var (
	// ErrInvalidParameter is returned for windows < 1, negative band widths
	// and MACD spans where fast >= slow.
	ErrInvalidParameter = errors.New("indicator: invalid parameter")

	// ErrNonNumeric is returned when a price or volume is NaN or infinite.
	ErrNonNumeric = errors.New("indicator: non-numeric value")
)

// Point is one observation of the input series.
type Point struct {
	TS     time.Time `json:"ts"`
	Price  float64   `json:"price"`
	Volume float64   `json:"volume"`
}

// Series is a sequence of points. Transforms do not trust its order.
type Series []Point

// Sorted returns a copy of s ordered by timestamp ascending.
// Points with equal timestamps keep their relative order.
func (s Series) Sorted() Series {
	out := make(Series, len(s))
	copy(out, s)
	slices.SortStableFunc(out, func(a, b Point) int { return a.TS.Compare(b.TS) })
	return out
}

// Prices returns the price column of s.
func (s Series) Prices() []float64 {
	out := make([]float64, len(s))
	for i, p := range s {
		out[i] = p.Price
	}
	return out
}

// Validate fails fast on the first NaN or infinite price or volume.
func (s Series) Validate() error {
	for i, p := range s {
		if !finite(p.Price) {
			return fmt.Errorf("%w: price %v at index %d (%s)", ErrNonNumeric, p.Price, i, p.TS.Format(time.RFC3339))
		}
		if !finite(p.Volume) {
			return fmt.Errorf("%w: volume %v at index %d (%s)", ErrNonNumeric, p.Volume, i, p.TS.Format(time.RFC3339))
		}
	}
	return nil
}

// SeriesFromTicks converts raw ticks into a price series.
func SeriesFromTicks(ticks []model.Tick) Series {
	out := make(Series, len(ticks))
	for i, t := range ticks {
		out[i] = Point{
			TS:     t.TS,
			Price:  t.Price.InexactFloat64(),
			Volume: t.Volume.InexactFloat64(),
		}
	}
	return out
}

// SeriesFromBuckets converts hourly buckets into a close-price series.
func SeriesFromBuckets(buckets []model.HourBucket) Series {
	out := make(Series, len(buckets))
	for i, b := range buckets {
		out[i] = Point{
			TS:     b.Hour,
			Price:  b.Close.InexactFloat64(),
			Volume: b.Volume.InexactFloat64(),
		}
	}
	return out
}

// prepare sorts a copy of s and validates it.
func prepare(s Series) (Series, error) {
	sorted := s.Sorted()
	if err := sorted.Validate(); err != nil {
		return nil, err
	}
	return sorted, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func checkWindow(name string, w int) error {
	if w < 1 {
		return fmt.Errorf("%w: %s window %d, must be >= 1", ErrInvalidParameter, name, w)
	}
	return nil
}

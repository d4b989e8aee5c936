package indicator

import "math"

// window is a preallocated circular buffer over the last size values.
type window struct {
	size  int
	buf   []float64
	idx   int // next write position
	count int // total values received
}

func newWindow(size int) *window {
	return &window{
		size: size,
		buf:  make([]float64, size),
	}
}

func (w *window) push(x float64) {
	w.buf[w.idx] = x
	w.idx = (w.idx + 1) % w.size
	w.count++
}

func (w *window) full() bool { return w.count >= w.size }

// mean recomputes the sum from the buffer on every call (no running sum).
func (w *window) mean() float64 {
	sum := 0.0
	for _, v := range w.buf {
		sum += v
	}
	return sum / float64(w.size)
}

// sampleStd is the standard deviation with ddof=1. NaN for a single-value window.
func (w *window) sampleStd() float64 {
	if w.size < 2 {
		return math.NaN()
	}
	m := w.mean()
	ss := 0.0
	for _, v := range w.buf {
		d := v - m
		ss += d * d
	}
	return math.Sqrt(ss / float64(w.size-1))
}

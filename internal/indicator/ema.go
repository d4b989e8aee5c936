package indicator

// ema is an exponential moving average with smoothing α = 2/(span+1), seeded
// with the first observation and without bias adjustment. O(1) per update.
type ema struct {
	alpha   float64
	current float64
	count   int
}

func newEMA(span int) *ema {
	return &ema{alpha: 2.0 / float64(span+1)}
}

func (e *ema) update(x float64) float64 {
	e.count++
	if e.count == 1 {
		e.current = x
		return x
	}
	// EMA = x*α + EMA_prev*(1-α)
	e.current = x*e.alpha + e.current*(1-e.alpha)
	return e.current
}

// EMA returns the exponential moving average of price with the given span.
// Unlike the rolling-window indicators it is defined from the first point.
func EMA(s Series, span int) (Column, error) {
	if err := checkWindow("ema", span); err != nil {
		return nil, err
	}
	sorted, err := prepare(s)
	if err != nil {
		return nil, err
	}
	return emaColumn(sorted.Prices(), span), nil
}

func emaColumn(xs []float64, span int) Column {
	out := make(Column, len(xs))
	e := newEMA(span)
	for i, x := range xs {
		out[i] = e.update(x)
	}
	return out
}

package indicator

// MovingAverage returns the simple moving average of price over w points:
// out[i] = mean(price[i-w+1..i]) for i >= w-1, NaN before that.
func MovingAverage(s Series, w int) (Column, error) {
	if err := checkWindow("moving average", w); err != nil {
		return nil, err
	}
	sorted, err := prepare(s)
	if err != nil {
		return nil, err
	}
	return movingAverage(sorted.Prices(), w), nil
}

func movingAverage(prices []float64, w int) Column {
	out := undefinedColumn(len(prices))
	win := newWindow(w)
	for i, p := range prices {
		win.push(p)
		if win.full() {
			out[i] = win.mean()
		}
	}
	return out
}

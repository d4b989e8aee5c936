package indicator

// RSI returns the Relative Strength Index over w steps using simple rolling
// means of gains and losses (not Wilder smoothing).
//
// The first point has no delta and contributes gain = loss = 0, so outputs are
// defined from index w-1. Division by zero is a defined policy: a window with
// losses of zero reads 100 when it has gains and 50 when it is flat.
func RSI(s Series, w int) (Column, error) {
	if err := checkWindow("rsi", w); err != nil {
		return nil, err
	}
	sorted, err := prepare(s)
	if err != nil {
		return nil, err
	}
	return rsi(sorted.Prices(), w), nil
}

func rsi(prices []float64, w int) Column {
	out := undefinedColumn(len(prices))
	gains := newWindow(w)
	losses := newWindow(w)
	for i := range prices {
		gain, loss := 0.0, 0.0
		if i > 0 {
			delta := prices[i] - prices[i-1]
			if delta > 0 {
				gain = delta
			} else {
				loss = -delta
			}
		}
		gains.push(gain)
		losses.push(loss)
		if gains.full() {
			out[i] = rsiValue(gains.mean(), losses.mean())
		}
	}
	return out
}

func rsiValue(avgGain, avgLoss float64) float64 {
	if avgLoss == 0 {
		if avgGain == 0 {
			return 50.0
		}
		return 100.0
	}
	rs := avgGain / avgLoss
	return 100.0 - (100.0 / (1.0 + rs))
}

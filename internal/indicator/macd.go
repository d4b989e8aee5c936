package indicator

import "fmt"

// MACDResult holds the MACD line, its signal line and the histogram.
type MACDResult struct {
	MACD   Column `json:"macd"`
	Signal Column `json:"signal"`
	Hist   Column `json:"hist"`
}

// MACD returns EMA(fast) - EMA(slow), its EMA(signal) and the difference
// between the two. All three columns are defined from the first point.
func MACD(s Series, fast, slow, signal int) (MACDResult, error) {
	if err := checkMACD(fast, slow, signal); err != nil {
		return MACDResult{}, err
	}
	sorted, err := prepare(s)
	if err != nil {
		return MACDResult{}, err
	}
	return macd(sorted.Prices(), fast, slow, signal), nil
}

func checkMACD(fast, slow, signal int) error {
	if err := checkWindow("macd fast", fast); err != nil {
		return err
	}
	if err := checkWindow("macd slow", slow); err != nil {
		return err
	}
	if err := checkWindow("macd signal", signal); err != nil {
		return err
	}
	if fast >= slow {
		return fmt.Errorf("%w: macd fast span %d must be < slow span %d", ErrInvalidParameter, fast, slow)
	}
	return nil
}

func macd(prices []float64, fast, slow, signal int) MACDResult {
	emaFast := emaColumn(prices, fast)
	emaSlow := emaColumn(prices, slow)

	line := make(Column, len(prices))
	for i := range prices {
		line[i] = emaFast[i] - emaSlow[i]
	}
	sig := emaColumn(line, signal)

	hist := make(Column, len(prices))
	for i := range line {
		hist[i] = line[i] - sig[i]
	}
	return MACDResult{MACD: line, Signal: sig, Hist: hist}
}

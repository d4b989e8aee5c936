package indicator

import (
	"fmt"
	"strconv"
	"strings"
)

// Kind names an indicator transform.
type Kind string

const (
	KindMA   Kind = "MA"
	KindEMA  Kind = "EMA"
	KindRSI  Kind = "RSI"
	KindBB   Kind = "BB"
	KindMACD Kind = "MACD"
)

// Spec configures one indicator.
type Spec struct {
	Kind   Kind    `json:"kind"`
	Window int     `json:"window"`           // MA/EMA/RSI/BB window, MACD fast span
	Slow   int     `json:"slow,omitempty"`   // MACD slow span
	Signal int     `json:"signal,omitempty"` // MACD signal span
	K      float64 `json:"k,omitempty"`      // BB width in standard deviations
}

// DefaultSpecs mirrors the dashboard defaults: a 24-hour MA, RSI(14),
// Bollinger(20, 2) and MACD(12, 26, 9).
func DefaultSpecs() []Spec {
	return []Spec{
		{Kind: KindMA, Window: 24},
		{Kind: KindRSI, Window: 14},
		{Kind: KindBB, Window: 20, K: 2},
		{Kind: KindMACD, Window: 12, Slow: 26, Signal: 9},
	}
}

// Columns returns the names of the columns the spec produces.
func (sp Spec) Columns() []string {
	switch sp.Kind {
	case KindMA:
		return []string{"ma_" + strconv.Itoa(sp.Window)}
	case KindEMA:
		return []string{"ema_" + strconv.Itoa(sp.Window)}
	case KindRSI:
		return []string{"rsi_" + strconv.Itoa(sp.Window)}
	case KindBB:
		return []string{"bb_middle", "bb_upper", "bb_lower"}
	case KindMACD:
		return []string{"macd", "macd_signal", "macd_hist"}
	}
	return nil
}

// String renders the spec in ParseSpecs syntax.
func (sp Spec) String() string {
	switch sp.Kind {
	case KindBB:
		return fmt.Sprintf("BB:%d:%s", sp.Window, strconv.FormatFloat(sp.K, 'g', -1, 64))
	case KindMACD:
		return fmt.Sprintf("MACD:%d:%d:%d", sp.Window, sp.Slow, sp.Signal)
	}
	return fmt.Sprintf("%s:%d", sp.Kind, sp.Window)
}

// Validate checks the spec parameters.
func (sp Spec) Validate() error {
	switch sp.Kind {
	case KindMA, KindEMA, KindRSI:
		return checkWindow(strings.ToLower(string(sp.Kind)), sp.Window)
	case KindBB:
		if err := checkWindow("bollinger", sp.Window); err != nil {
			return err
		}
		if sp.K < 0 || !finite(sp.K) {
			return fmt.Errorf("%w: bollinger width %v, must be a finite k >= 0", ErrInvalidParameter, sp.K)
		}
		return nil
	case KindMACD:
		return checkMACD(sp.Window, sp.Slow, sp.Signal)
	}
	return fmt.Errorf("%w: unknown indicator %q", ErrInvalidParameter, sp.Kind)
}

// apply computes the spec over prices (sorted, validated) and adds its columns.
func (sp Spec) apply(t *Table, prices []float64) error {
	names := sp.Columns()
	var cols []Column
	switch sp.Kind {
	case KindMA:
		cols = []Column{movingAverage(prices, sp.Window)}
	case KindEMA:
		cols = []Column{emaColumn(prices, sp.Window)}
	case KindRSI:
		cols = []Column{rsi(prices, sp.Window)}
	case KindBB:
		b := bollinger(prices, sp.Window, sp.K)
		cols = []Column{b.Middle, b.Upper, b.Lower}
	case KindMACD:
		m := macd(prices, sp.Window, sp.Slow, sp.Signal)
		cols = []Column{m.MACD, m.Signal, m.Hist}
	}
	for i, c := range cols {
		if err := t.Add(names[i], c); err != nil {
			return err
		}
	}
	return nil
}

// ParseSpecs parses "TYPE:PARAM[:PARAM...],..." into specs.
//
//	MA:24        moving average (SMA is accepted as an alias)
//	EMA:12       exponential moving average
//	RSI:14       relative strength index
//	BB:20[:2]    Bollinger Bands, k defaults to 2
//	MACD[:12:26:9]
//
// An empty string yields DefaultSpecs.
func ParseSpecs(s string) ([]Spec, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return DefaultSpecs(), nil
	}

	var specs []Spec
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		sp, err := parseSpec(part)
		if err != nil {
			return nil, err
		}
		specs = append(specs, sp)
	}
	if len(specs) == 0 {
		return DefaultSpecs(), nil
	}
	return specs, nil
}

func parseSpec(part string) (Spec, error) {
	tokens := strings.Split(part, ":")
	kind := Kind(strings.ToUpper(strings.TrimSpace(tokens[0])))
	if kind == "SMA" {
		kind = KindMA
	}
	args := tokens[1:]

	ints := func(want int) ([]int, error) {
		out := make([]int, len(args))
		for i, a := range args {
			n, err := strconv.Atoi(strings.TrimSpace(a))
			if err != nil {
				return nil, fmt.Errorf("%w: %q: %v", ErrInvalidParameter, part, err)
			}
			out[i] = n
		}
		if len(out) != want {
			return nil, fmt.Errorf("%w: %q: want %d parameters, got %d", ErrInvalidParameter, part, want, len(out))
		}
		return out, nil
	}

	var sp Spec
	switch kind {
	case KindMA, KindEMA, KindRSI:
		n, err := ints(1)
		if err != nil {
			return Spec{}, err
		}
		sp = Spec{Kind: kind, Window: n[0]}
	case KindBB:
		sp = Spec{Kind: KindBB, K: 2}
		if len(args) < 1 || len(args) > 2 {
			return Spec{}, fmt.Errorf("%w: %q: want BB:window[:k]", ErrInvalidParameter, part)
		}
		w, err := strconv.Atoi(strings.TrimSpace(args[0]))
		if err != nil {
			return Spec{}, fmt.Errorf("%w: %q: %v", ErrInvalidParameter, part, err)
		}
		sp.Window = w
		if len(args) == 2 {
			k, err := strconv.ParseFloat(strings.TrimSpace(args[1]), 64)
			if err != nil {
				return Spec{}, fmt.Errorf("%w: %q: %v", ErrInvalidParameter, part, err)
			}
			sp.K = k
		}
	case KindMACD:
		if len(args) == 0 {
			sp = Spec{Kind: KindMACD, Window: 12, Slow: 26, Signal: 9}
			break
		}
		n, err := ints(3)
		if err != nil {
			return Spec{}, err
		}
		sp = Spec{Kind: KindMACD, Window: n[0], Slow: n[1], Signal: n[2]}
	default:
		return Spec{}, fmt.Errorf("%w: unknown indicator %q", ErrInvalidParameter, tokens[0])
	}
	if err := sp.Validate(); err != nil {
		return Spec{}, err
	}
	return sp, nil
}

package indicator

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestEngine_DefaultColumns(t *testing.T) {
	engine, err := NewEngine(nil)
	if err != nil {
		t.Fatal(err)
	}
	table, err := engine.Process(ramp(40))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"ma_24", "rsi_14", "bb_middle", "bb_upper", "bb_lower", "macd", "macd_signal", "macd_hist"}
	if got := table.Names(); !reflect.DeepEqual(got, want) {
		t.Fatalf("columns = %v, want %v", got, want)
	}
	for _, name := range want {
		c, ok := table.Column(name)
		if !ok {
			t.Fatalf("missing column %s", name)
		}
		if len(c) != table.Len() {
			t.Errorf("%s: %d rows, want %d", name, len(c), table.Len())
		}
	}
	ma, _ := table.Column("ma_24")
	if ma.Defined() != 40-24+1 {
		t.Errorf("ma_24 defined = %d, want %d", ma.Defined(), 17)
	}
}

func TestEngine_MatchesStandaloneTransforms(t *testing.T) {
	s := series(100, 103, 99, 101, 97, 110, 108, 108, 111, 95, 96, 120)
	table, err := Apply(s,
		Spec{Kind: KindMA, Window: 3},
		Spec{Kind: KindRSI, Window: 4},
		Spec{Kind: KindEMA, Window: 5},
	)
	if err != nil {
		t.Fatal(err)
	}

	ma, _ := MovingAverage(s, 3)
	r, _ := RSI(s, 4)
	e, _ := EMA(s, 5)
	for name, want := range map[string]Column{"ma_3": ma, "rsi_4": r, "ema_5": e} {
		got, _ := table.Column(name)
		for i := range want {
			if Missing(want[i]) {
				if !Missing(got[i]) {
					t.Errorf("%s[%d]: expected undefined, got %v", name, i, got[i])
				}
				continue
			}
			assertClose(t, name, got[i], want[i], 0)
		}
	}
}

func TestEngine_DoesNotMutateInput(t *testing.T) {
	s := series(5, 4, 3, 2, 1)
	s[0], s[4] = s[4], s[0] // out of order on purpose
	before := make(Series, len(s))
	copy(before, s)

	engine, err := NewEngine([]Spec{{Kind: KindMA, Window: 2}, {Kind: KindBB, Window: 2, K: 1}})
	if err != nil {
		t.Fatal(err)
	}
	table, err := engine.Process(s)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(s, before) {
		t.Errorf("input mutated:\n got %+v\nwant %+v", s, before)
	}
	for i := 1; i < table.Len(); i++ {
		if table.Series[i].TS.Before(table.Series[i-1].TS) {
			t.Fatalf("table not sorted at %d", i)
		}
	}
}

func TestEngine_Deterministic(t *testing.T) {
	s := series(100, 103, 99, 101, 97, 110, 108, 108, 111, 95, 96, 120)
	engine, _ := NewEngine(nil)
	a, err := engine.Process(s)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := engine.Process(s)
	ja, _ := json.Marshal(a)
	jb, _ := json.Marshal(b)
	if string(ja) != string(jb) {
		t.Errorf("two runs differ:\n%s\n%s", ja, jb)
	}
}

func TestEngine_OnCompute(t *testing.T) {
	engine, _ := NewEngine([]Spec{{Kind: KindMA, Window: 2}})
	calls := 0
	engine.OnCompute = func(d time.Duration) {
		calls++
		if d < 0 {
			t.Errorf("negative duration %v", d)
		}
	}
	if _, err := engine.Process(ramp(5)); err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Errorf("OnCompute called %d times, want 1", calls)
	}
}

func TestEngine_RejectsDuplicateColumns(t *testing.T) {
	_, err := NewEngine([]Spec{{Kind: KindMA, Window: 5}, {Kind: KindMA, Window: 5}})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	_, err = Apply(ramp(3), Spec{Kind: KindBB, Window: 5, K: 2}, Spec{Kind: KindBB, Window: 10, K: 1})
	if !errors.Is(err, ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter for BB collision, got %v", err)
	}
}

func TestEngine_NonNumeric(t *testing.T) {
	s := series(1, 2, 3)
	s[0].Price = math.Inf(-1)
	engine, _ := NewEngine(nil)
	if _, err := engine.Process(s); !errors.Is(err, ErrNonNumeric) {
		t.Fatalf("expected ErrNonNumeric, got %v", err)
	}
}

func TestTable_Add(t *testing.T) {
	table, err := NewTable(ramp(3))
	if err != nil {
		t.Fatal(err)
	}
	if err := table.Add("x", Column{1, 2}); err == nil {
		t.Error("expected length mismatch error")
	}
	if err := table.Add("x", Column{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	if err := table.Add("x", Column{1, 2, 3}); err == nil {
		t.Error("expected duplicate column error")
	}
}

func TestTable_MarshalJSON(t *testing.T) {
	table, err := Apply(series(10, 20, 30), Spec{Kind: KindMA, Window: 2})
	if err != nil {
		t.Fatal(err)
	}
	raw, err := json.Marshal(table)
	if err != nil {
		t.Fatal(err)
	}
	var out struct {
		TS      []time.Time           `json:"ts"`
		Price   []*float64            `json:"price"`
		Order   []string              `json:"order"`
		Columns map[string][]*float64 `json:"columns"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal %s: %v", raw, err)
	}
	if len(out.TS) != 3 || !out.TS[0].Equal(t0) {
		t.Errorf("ts = %v", out.TS)
	}
	ma := out.Columns["ma_2"]
	if len(ma) != 3 || ma[0] != nil || *ma[1] != 15 || *ma[2] != 25 {
		t.Errorf("ma_2 = %s", raw)
	}
	if !strings.Contains(string(raw), `"order":["ma_2"]`) {
		t.Errorf("missing order in %s", raw)
	}
}

func TestParseSpecs(t *testing.T) {
	specs, err := ParseSpecs("SMA:20, ema:12,RSI:14,BB:20,MACD")
	if err != nil {
		t.Fatal(err)
	}
	want := []Spec{
		{Kind: KindMA, Window: 20},
		{Kind: KindEMA, Window: 12},
		{Kind: KindRSI, Window: 14},
		{Kind: KindBB, Window: 20, K: 2},
		{Kind: KindMACD, Window: 12, Slow: 26, Signal: 9},
	}
	if !reflect.DeepEqual(specs, want) {
		t.Fatalf("got %+v\nwant %+v", specs, want)
	}

	specs, err = ParseSpecs("BB:10:1.5,MACD:5:35:5")
	if err != nil {
		t.Fatal(err)
	}
	if specs[0].K != 1.5 || specs[1].Slow != 35 {
		t.Errorf("got %+v", specs)
	}
	if specs[0].String() != "BB:10:1.5" || specs[1].String() != "MACD:5:35:5" {
		t.Errorf("round trip: %s %s", specs[0], specs[1])
	}
}

func TestParseSpecs_Empty(t *testing.T) {
	for _, in := range []string{"", "  ", ",,"} {
		specs, err := ParseSpecs(in)
		if err != nil {
			t.Fatalf("%q: %v", in, err)
		}
		if !reflect.DeepEqual(specs, DefaultSpecs()) {
			t.Errorf("%q: expected defaults, got %+v", in, specs)
		}
	}
}

func TestParseSpecs_Invalid(t *testing.T) {
	cases := []string{
		"MA",
		"MA:0",
		"MA:x",
		"RSI:14:2",
		"BB:20:-1",
		"BB",
		"MACD:26:12:9",
		"MACD:12:26",
		"VWAP:10",
	}
	for _, in := range cases {
		if _, err := ParseSpecs(in); !errors.Is(err, ErrInvalidParameter) {
			t.Errorf("%q: expected ErrInvalidParameter, got %v", in, err)
		}
	}
}

func TestEngine_ConcurrentCallers(t *testing.T) {
	engine, err := NewEngine(nil)
	if err != nil {
		t.Fatal(err)
	}
	// Shared input in reverse order so every call sorts its own copy.
	in := ramp(60)
	slices.Reverse(in)
	orig := slices.Clone(in)

	want, err := engine.Process(in)
	if err != nil {
		t.Fatal(err)
	}

	const workers = 16
	tables := make([]*Table, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				tables[i], errs[i] = engine.Process(in)
			} else {
				tables[i], errs[i] = Apply(in, DefaultSpecs()...)
			}
		}(i)
	}
	wg.Wait()

	for i, table := range tables {
		if errs[i] != nil {
			t.Fatalf("worker %d: %v", i, errs[i])
		}
		for _, name := range want.Names() {
			wc, _ := want.Column(name)
			gc, ok := table.Column(name)
			if !ok || len(gc) != len(wc) {
				t.Fatalf("worker %d: column %s has %d rows, want %d", i, name, len(gc), len(wc))
			}
			for j := range wc {
				if math.Float64bits(gc[j]) != math.Float64bits(wc[j]) {
					t.Fatalf("worker %d: %s[%d] = %v, want %v", i, name, j, gc[j], wc[j])
				}
			}
		}
	}
	if !reflect.DeepEqual(in, orig) {
		t.Fatal("input series was mutated")
	}
}

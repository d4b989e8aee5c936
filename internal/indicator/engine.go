package indicator

import (
	"fmt"
	"time"
)

// Engine applies a fixed list of indicator specs to price series.
// It keeps no per-series state, so one Engine can serve concurrent callers.
type Engine struct {
	specs []Spec

	// OnCompute, if set, observes the duration of every Process call.
	OnCompute func(d time.Duration)
}

// NewEngine creates an engine for the given specs, or DefaultSpecs when empty.
func NewEngine(specs []Spec) (*Engine, error) {
	if len(specs) == 0 {
		specs = DefaultSpecs()
	}
	if err := checkSpecs(specs); err != nil {
		return nil, err
	}
	own := make([]Spec, len(specs))
	copy(own, specs)
	return &Engine{specs: own}, nil
}

// Specs returns a copy of the configured specs.
func (e *Engine) Specs() []Spec {
	out := make([]Spec, len(e.specs))
	copy(out, e.specs)
	return out
}

// Process computes every configured indicator over s.
func (e *Engine) Process(s Series) (*Table, error) {
	start := time.Now()
	t, err := apply(s, e.specs)
	if e.OnCompute != nil {
		e.OnCompute(time.Since(start))
	}
	return t, err
}

// Apply computes the given specs over s and returns the augmented table.
// Specs are validated before any work is done.
func Apply(s Series, specs ...Spec) (*Table, error) {
	if err := checkSpecs(specs); err != nil {
		return nil, err
	}
	return apply(s, specs)
}

func apply(s Series, specs []Spec) (*Table, error) {
	t, err := NewTable(s)
	if err != nil {
		return nil, err
	}
	prices := t.Series.Prices()
	for _, sp := range specs {
		if err := sp.apply(t, prices); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// checkSpecs validates each spec and rejects specs whose columns collide.
func checkSpecs(specs []Spec) error {
	seen := make(map[string]string)
	for _, sp := range specs {
		if err := sp.Validate(); err != nil {
			return err
		}
		for _, name := range sp.Columns() {
			if prev, dup := seen[name]; dup {
				return fmt.Errorf("%w: %s and %s both produce column %q", ErrInvalidParameter, prev, sp, name)
			}
			seen[name] = sp.String()
		}
	}
	return nil
}

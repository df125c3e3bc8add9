package simlin

import (
	"github.com/bpowers/simlin/internal/analysis"
	"github.com/bpowers/simlin/internal/depgraph"
	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/resolve"
	"github.com/bpowers/simlin/internal/vm"
)

// SimOptions are the knobs a Sim is constructed with.
type SimOptions struct {
	EnableLTM bool
	Overrides map[string]float64
	Seed      int64
}

// Sim is a runnable instance of a compiled Model. A Sim
// is not safe for concurrent use; it is safe to share a single Model across many Sims.
type Sim struct {
	refcounted
	model *Model
	inner *vm.Sim
}

// New compiles m (if not already cached) and constructs a Sim over it.
func New(m *Model, opts SimOptions) (*Sim, *Error) {
	m.proj.mu.Lock()
	cm := m.proj.buildLocked(m.name)
	m.proj.mu.Unlock()

	if !cm.diag.Simulatable() {
		e := &serr.Error{}
		for _, d := range cm.diag.Errors {
			e.Add(d)
		}
		return nil, newError(e)
	}

	inner := vm.New(m.proj.proj, cm.prog, opts.Seed)
	inner.EnableLTM = opts.EnableLTM
	for ident, v := range opts.Overrides {
		inner.SetOverride(ident, v)
	}
	if opts.EnableLTM {
		if mm, ok := m.lookup(); ok {
			res := resolve.Resolve(m.proj.proj, mm)
			g := depgraph.BuildStepGraph(mm, res)
			inner.SetLoops(analysis.FindLoops(g, res))
		}
	}
	inner.Reset()

	m.Ref()
	return &Sim{refcounted: newRefcounted(), model: m, inner: inner}, nil
}

// Ref/Unref follow the handle convention; the Sim holds a single Model
// reference for its whole lifetime, released by the last Unref.
func (s *Sim) Ref() *Sim {
	s.ref()
	return s
}

func (s *Sim) Unref() {
	if s.unref() {
		s.model.Unref()
	}
}

// Reset reinitializes state and rewinds time to sim_specs.start.
func (s *Sim) Reset() {
	s.inner.Reset()
}

// RunTo advances until time >= t.
func (s *Sim) RunTo(t float64) *Error {
	if err := s.inner.RunTo(t); err != nil {
		return newError(serr.New(serr.Generic, err.Error()))
	}
	return nil
}

// RunToEnd runs until sim_specs.stop.
func (s *Sim) RunToEnd() *Error {
	if err := s.inner.RunToEnd(); err != nil {
		return newError(serr.New(serr.Generic, err.Error()))
	}
	return nil
}

// GetStepCount returns the number of saved snapshots taken so far.
func (s *Sim) GetStepCount() int {
	return s.inner.StepCount()
}

// GetValue reads a variable's current value by name.
func (s *Sim) GetValue(ident string) (float64, bool) {
	return s.inner.GetValue(ident)
}

// SetValue writes a variable's current value by name.
func (s *Sim) SetValue(ident string, v float64) bool {
	return s.inner.SetValue(ident, v)
}

// GetOffset exposes the low-overhead column accessor.
func (s *Sim) GetOffset(ident string) (int, bool) {
	return s.inner.GetOffset(ident)
}

// GetValueByOffset reads a column directly.
func (s *Sim) GetValueByOffset(off int) float64 {
	return s.inner.GetValueByOffset(off)
}

// SetValueByOffset writes directly to a column.
func (s *Sim) SetValueByOffset(off int, v float64) {
	s.inner.SetValueByOffset(off, v)
}

// GetSeries returns the saved column of values for ident up to the current
// step count.
func (s *Sim) GetSeries(ident string) ([]float64, bool) {
	return s.inner.GetSeries(ident)
}

// GetVarNames returns every variable name known to the underlying program.
func (s *Sim) GetVarNames() []string {
	mm, ok := s.model.lookup()
	if !ok {
		return nil
	}
	var out []string
	for _, ident := range mm.OrderedIdents() {
		out = append(out, mm.Variables[ident].Ident)
	}
	return out
}

// AnalyzeGetLinks returns the step-dependency edges for this Sim's model.
func (s *Sim) AnalyzeGetLinks() (*Links, *Error) {
	return s.model.GetLinks()
}

// AnalyzeGetRelativeLoopScore returns the accumulated LTM score for loopID.
// requires the Sim to have been constructed with
// EnableLTM set.
func (s *Sim) AnalyzeGetRelativeLoopScore(loopID string) (float64, bool) {
	for _, lr := range s.inner.LoopScores() {
		if lr.Key == loopID {
			return lr.Value, true
		}
	}
	return 0, false
}

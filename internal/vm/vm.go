// Package vm executes a compiled Program: a column-oriented state matrix
// advanced by Euler or RK4 integration, with every variable instance
// addressed through a shared offset table.
package vm

import (
	"math"
	"math/rand"
	"sort"

	log "github.com/sirupsen/logrus"

	"github.com/bpowers/simlin/internal/analysis"
	"github.com/bpowers/simlin/internal/compiler"
	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/model"
)

// Sim is one runnable instance of a compiled model: a
// Project may back many concurrent Sims, but a Sim itself is single-
// threaded and is not safe for concurrent use.
type Sim struct {
	proj *model.Project
	prog *compiler.Program

	rows      [][]float64 // saved snapshots, each of length prog.NumCols
	cur       []float64   // current value row
	state     []float64   // stateful-builtin state vector
	overrides map[int]float64

	time     float64
	dt       float64
	start    float64
	stop     float64
	saveStep float64
	method   model.Method

	stepIdx int
	rng     *rand.Rand

	warned map[int]bool // stock columns already reported non-finite
	diags  []serr.Detail

	EnableLTM bool
	edgeScore map[string]float64 // "fromCol->toCol" -> accumulated partial-derivative proxy
	loops     []analysis.Loop
}

// SetLoops attaches the structurally-enumerated loop set (internal/analysis)
// that LoopScores aggregates edge scores over. A Sim with no loops attached
// still accumulates EdgeScores when EnableLTM is set; it just has nothing to
// group them into.
func (s *Sim) SetLoops(loops []analysis.Loop) {
	s.loops = loops
}

// New constructs a Sim for prog. seed == 0 falls back to a fixed default
// seed, so two Sims built without an explicit seed still produce
// bit-identical runs.
func New(proj *model.Project, prog *compiler.Program, seed int64) *Sim {
	s := &Sim{
		proj:      proj,
		prog:      prog,
		overrides: make(map[int]float64),
		dt:        proj.SimSpecs.Dt.Float(),
		start:     proj.SimSpecs.Start,
		stop:      proj.SimSpecs.Stop,
		saveStep:  proj.SimSpecs.SaveStepValue(),
		method:    proj.SimSpecs.Method,
		edgeScore: make(map[string]float64),
	}
	if seed != 0 {
		s.rng = rand.New(rand.NewSource(seed))
	}
	s.Reset()
	return s
}

// SetOverride pins a variable's value across every future Reset, the way
// an embedder experiments with a constant or initial condition.
func (s *Sim) SetOverride(ident string, v float64) bool {
	col, ok := s.prog.Offsets[ident]
	if !ok {
		return false
	}
	s.overrides[col] = v
	return true
}

// Reset reinitializes state from the init program, rewinds time, and
// snapshots row 0.
func (s *Sim) Reset() {
	s.cur = make([]float64, s.prog.NumCols)
	s.state = make([]float64, s.prog.StateLen)
	s.rows = nil
	s.warned = make(map[int]bool)
	s.diags = nil
	s.stepIdx = 0
	s.time = s.start
	s.cur[0] = s.time
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(0))
	}

	ex := &execCtx{sim: s, stage: stageInit}
	for _, ip := range s.prog.Init {
		ex.run(ip)
	}
	// Stocks with no explicit initial equation default to whatever their
	// step-phase equation happened to leave in cur (rare; most models give
	// every stock an initial equation).
	for col, v := range s.overrides {
		s.cur[col] = v
	}
	s.snapshot()
}

func (s *Sim) snapshot() {
	row := make([]float64, len(s.cur))
	copy(row, s.cur)
	s.rows = append(s.rows, row)
}

// RunToEnd runs until time >= stop.
func (s *Sim) RunToEnd() error {
	return s.RunTo(s.stop)
}

// RunTo advances deterministically until time >= t.
func (s *Sim) RunTo(t float64) error {
	for s.time < t-1e-9 {
		if err := s.step(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sim) step() error {
	switch s.method {
	case model.RK4:
		s.stepRK4()
	default:
		s.stepEuler()
	}
	s.time += s.dt
	s.cur[0] = s.time
	// Refresh flows and auxes against the committed stock values and the
	// advanced clock, so reads and snapshots see a consistent row. This
	// pass never commits stateful-builtin state; the next step's commit
	// pass does that exactly once per dt.
	ex := &execCtx{sim: s, stage: stageStep}
	s.runStep(ex)
	for col, v := range s.overrides {
		s.cur[col] = v
	}
	s.stepIdx++
	s.checkFinite()

	savedBoundary := (s.time-s.start)/s.saveStep
	if math.Abs(savedBoundary-math.Round(savedBoundary)) < 1e-6 {
		s.snapshot()
	}
	return nil
}

// GetValue reads a variable's current value.
func (s *Sim) GetValue(ident string) (float64, bool) {
	col, ok := s.prog.Offsets[ident]
	if !ok {
		return 0, false
	}
	return s.cur[col], true
}

// SetValue writes a variable's current value. Writing to a
// stock updates both the current value and the running integration state,
// which for a plain column-addressed value are the same slot.
func (s *Sim) SetValue(ident string, v float64) bool {
	col, ok := s.prog.Offsets[ident]
	if !ok {
		return false
	}
	s.cur[col] = v
	return true
}

// GetSeries returns the saved column of values for ident up to the current
// step count.
func (s *Sim) GetSeries(ident string) ([]float64, bool) {
	col, ok := s.prog.Offsets[ident]
	if !ok {
		return nil, false
	}
	out := make([]float64, len(s.rows))
	for i, row := range s.rows {
		out[i] = row[col]
	}
	return out, true
}

// StepCount returns the number of saved snapshots taken so far: after
// RunToEnd it equals floor((stop-start)/save_step)+1.
func (s *Sim) StepCount() int {
	return len(s.rows)
}

// Time returns the saved time column up to the current step count.
func (s *Sim) Time() []float64 {
	out := make([]float64, len(s.rows))
	for i, row := range s.rows {
		out[i] = row[0]
	}
	return out
}

// GetOffset exposes the low-overhead column accessor.
func (s *Sim) GetOffset(ident string) (int, bool) {
	col, ok := s.prog.Offsets[ident]
	return col, ok
}

// SetValueByOffset writes directly to a column.
func (s *Sim) SetValueByOffset(off int, v float64) {
	if off >= 0 && off < len(s.cur) {
		s.cur[off] = v
	}
}

// GetValueByOffset reads a column directly.
func (s *Sim) GetValueByOffset(off int) float64 {
	if off >= 0 && off < len(s.cur) {
		return s.cur[off]
	}
	return 0
}

// EdgeScores returns the accumulated LTM edge scores keyed "from->to" by
// column; empty unless EnableLTM was set before the run.
func (s *Sim) EdgeScores() map[string]float64 {
	return s.edgeScore
}

// LoopReport is a uniform name -> value association used for both loops and
// edges when handing scores back across the FFI boundary.
type LoopReport struct {
	Key   string
	Value float64
}

// SortedEdgeScores returns EdgeScores in stable key order, convenient for
// deterministic FFI serialization.
func (s *Sim) SortedEdgeScores() []LoopReport {
	keys := make([]string, 0, len(s.edgeScore))
	for k := range s.edgeScore {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]LoopReport, len(keys))
	for i, k := range keys {
		out[i] = LoopReport{Key: k, Value: s.edgeScore[k]}
	}
	return out
}

// LoopScores sums the accumulated edge scores around each structurally
// enumerated loop, keyed by loop id, in loop-discovery order. Requires SetLoops to
// have been called and EnableLTM to have been set before the run.
func (s *Sim) LoopScores() []LoopReport {
	out := make([]LoopReport, 0, len(s.loops))
	for _, l := range s.loops {
		total := 0.0
		for _, e := range l.Edges {
			fromCol, ok1 := s.prog.Offsets[e.From]
			toCol, ok2 := s.prog.Offsets[e.To]
			if !ok1 || !ok2 {
				continue
			}
			total += s.edgeScore[edgeKey(fromCol, toCol)]
		}
		out = append(out, LoopReport{Key: l.ID, Value: total})
	}
	return out
}

// checkFinite records a non-fatal simulation detail the first time each
// stock goes NaN or infinite. The run itself continues: numerical
// pathologies propagate per IEEE754 and never abort a Sim.
func (s *Sim) checkFinite() {
	for _, key := range s.prog.Stocks {
		col := s.prog.Offsets[key]
		v := s.cur[col]
		if s.warned[col] || (!math.IsNaN(v) && !math.IsInf(v, 0)) {
			continue
		}
		s.warned[col] = true
		s.diags = append(s.diags, detailForNaN(key))
		log.Debugf("stock %s is no longer finite at t=%v", key, s.time)
	}
}

// Diagnostics returns the non-fatal details collected since the last Reset.
func (s *Sim) Diagnostics() []serr.Detail {
	return s.diags
}

// detailForNaN reports a non-fatal simulation detail when a stock has gone
// non-finite, for callers that want to surface this without aborting the
// run.
func detailForNaN(ident string) serr.Detail {
	return serr.Detail{Code: serr.Generic, Kind: serr.KindSimulation, VarName: ident, Message: ident + " is NaN or Inf"}
}

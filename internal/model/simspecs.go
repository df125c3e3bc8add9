package model

import (
	"fmt"
	"strconv"
	"strings"

	serr "github.com/bpowers/simlin/internal/errors"
)

// Method is the numerical integration scheme used to advance a Sim.
type Method int

// Supported integration methods.
const (
	Euler Method = iota
	RK4
)

// String implements fmt.Stringer.
func (m Method) String() string {
	if m == RK4 {
		return "rk4"
	}
	return "euler"
}

// Dt represents a simulation time step that may have been authored as a
// reciprocal ("1/4") so that its string form round-trips distinctly from an
// equal decimal ("0.25"); only Float() is used numerically.
type Dt struct {
	Value        float64
	IsReciprocal bool
}

// Float returns the numeric dt used by the integrator.
func (d Dt) Float() float64 {
	if d.IsReciprocal && d.Value != 0 {
		return 1 / d.Value
	}
	return d.Value
}

// String renders "1/4" for a reciprocal dt or the plain decimal otherwise.
func (d Dt) String() string {
	if d.IsReciprocal {
		return fmt.Sprintf("1/%v", d.Value)
	}
	return fmt.Sprintf("%v", d.Value)
}

// ParseDt parses the string form String produces: "1/4" yields a reciprocal
// dt, anything else is read as a plain decimal. ok is false for text that
// is neither.
func ParseDt(s string) (Dt, bool) {
	s = strings.TrimSpace(s)
	if rest, isRecip := strings.CutPrefix(s, "1/"); isRecip {
		v, err := strconv.ParseFloat(rest, 64)
		if err != nil {
			return Dt{}, false
		}
		return Dt{Value: v, IsReciprocal: true}, true
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return Dt{}, false
	}
	return Dt{Value: v}, true
}

// SimSpecs are the simulation-wide time controls.
type SimSpecs struct {
	Start     float64
	Stop      float64
	Dt        Dt
	SaveStep  *float64 // nil => defaults to Dt.Float()
	Method    Method
	TimeUnits string
}

// SaveStepValue returns the effective save step, defaulting to Dt.
func (s SimSpecs) SaveStepValue() float64 {
	if s.SaveStep != nil && *s.SaveStep > 0 {
		return *s.SaveStep
	}
	return s.Dt.Float()
}

// Validate checks the invariant `start < stop && dt > 0`.
func (s SimSpecs) Validate() *serr.Detail {
	if !(s.Start < s.Stop) {
		return &serr.Detail{Code: serr.BadSimSpecs, Kind: serr.KindProject, Message: "sim_specs requires start < stop"}
	}
	if s.Dt.Float() <= 0 {
		return &serr.Detail{Code: serr.BadSimSpecs, Kind: serr.KindProject, Message: "sim_specs requires dt > 0"}
	}
	if s.SaveStepValue() <= 0 {
		return &serr.Detail{Code: serr.BadSimSpecs, Kind: serr.KindProject, Message: "sim_specs requires save_step > 0"}
	}
	return nil
}

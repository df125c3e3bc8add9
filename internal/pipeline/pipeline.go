// Package pipeline wires together the stages that turn a datamodel Model
// into something runnable or diagnosable: name resolution (internal/resolve),
// unit checking (internal/units), and bytecode compilation
// (internal/compiler, which itself runs internal/depgraph). Both the patch
// engine (internal/model/patch, which only needs to know whether a model
// still compiles) and the FFI handle layer (pkg/simlin, which needs the
// compiled Program too) drive the same three stages in the same order, so
// this is the one place that order is written down.
package pipeline

import (
	"github.com/bpowers/simlin/internal/compiler"
	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/model"
	"github.com/bpowers/simlin/internal/resolve"
	"github.com/bpowers/simlin/internal/units"
)

// Diagnostics is everything a build pass can report about one Model,
// split into two tracks: Errors block simulation, UnitErrors never do.
type Diagnostics struct {
	Errors     []serr.Detail
	UnitErrors []serr.Detail
}

// All concatenates both tracks, for callers (e.g. get_errors) that don't
// need the split.
func (d Diagnostics) All() []serr.Detail {
	out := make([]serr.Detail, 0, len(d.Errors)+len(d.UnitErrors))
	out = append(out, d.Errors...)
	out = append(out, d.UnitErrors...)
	return out
}

// Simulatable reports whether any semantic errors block simulation;
// unit errors never gate this.
func (d Diagnostics) Simulatable() bool {
	return len(d.Errors) == 0
}

// Build runs resolve + units + compile for one model and returns both the
// compiled Program (nil if Errors is non-empty) and the full diagnostics.
func Build(proj *model.Project, m *model.Model) (*compiler.Program, Diagnostics) {
	res := resolve.Resolve(proj, m)
	var diag Diagnostics
	diag.Errors = append(diag.Errors, res.Errors...)

	timeUnit := units.Dimensionless()
	if proj.SimSpecs.TimeUnits != "" {
		if u, detail := units.ParseDefinition(proj.SimSpecs.TimeUnits); detail == nil {
			timeUnit = u
		}
	}
	checker := units.NewChecker(m, timeUnit)
	diag.UnitErrors = append(diag.UnitErrors, checker.Check(res)...)

	if len(diag.Errors) > 0 {
		return nil, diag
	}

	prog, errs := compiler.Compile(proj, m, res)
	diag.Errors = append(diag.Errors, errs...)
	if len(diag.Errors) > 0 {
		return nil, diag
	}
	return prog, diag
}

// Diagnose runs the same passes as Build but discards the compiled
// Program, for callers (the patch engine's allow_errors check,
// is_simulatable) that only need to know what would go wrong.
func Diagnose(proj *model.Project, m *model.Model) Diagnostics {
	_, diag := Build(proj, m)
	return diag
}

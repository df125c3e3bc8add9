package compiler

import (
	"testing"

	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/model"
	"github.com/bpowers/simlin/internal/resolve"
)

func compileModel(t *testing.T, proj *model.Project, m *model.Model) []serr.Detail {
	t.Helper()
	if d := proj.AddModel(m); d != nil {
		t.Fatalf("AddModel: %s", d.Message)
	}
	res := resolve.Resolve(proj, m)
	if len(res.Errors) > 0 {
		t.Fatalf("unexpected resolve errors: %v", res.Errors)
	}
	_, errs := Compile(proj, m, res)
	return errs
}

func hasCode(details []serr.Detail, code serr.Code) bool {
	for _, d := range details {
		if d.Code == code {
			return true
		}
	}
	return false
}

func TestCompileCleanModelHasNoErrors(t *testing.T) {
	proj := model.NewProject("test")
	proj.SimSpecs = model.SimSpecs{Start: 0, Stop: 10, Dt: model.Dt{Value: 1}, Method: model.Euler}
	m := model.NewModel("main")
	m.Upsert(&model.Variable{
		Kind:        model.VarStock,
		Ident:       "p",
		Equation:    model.Equation{Kind: model.EqScalar, Expr: "births", InitialExpr: "100"},
		Inflows:     []string{"births"},
		NonNegative: true,
	})
	m.Upsert(&model.Variable{
		Kind:     model.VarFlow,
		Ident:    "births",
		Equation: model.Equation{Kind: model.EqScalar, Expr: "p * 0.03"},
	})

	if errs := compileModel(t, proj, m); len(errs) > 0 {
		t.Fatalf("unexpected compile errors: %v", errs)
	}
}

// TestCompileUnknownFunctionReportsUnknownBuiltin: a call to an
// unrecognized name fails at the compile stage with UnknownBuiltin.
func TestCompileUnknownFunctionReportsUnknownBuiltin(t *testing.T) {
	proj := model.NewProject("test")
	proj.SimSpecs = model.SimSpecs{Start: 0, Stop: 1, Dt: model.Dt{Value: 1}, Method: model.Euler}
	m := model.NewModel("main")
	m.Upsert(&model.Variable{
		Kind: model.VarAux, Ident: "p",
		Equation: model.Equation{Kind: model.EqScalar, Expr: "5"},
	})
	m.Upsert(&model.Variable{
		Kind: model.VarAux, Ident: "y",
		Equation: model.Equation{Kind: model.EqScalar, Expr: "qqq(p)"},
	})

	errs := compileModel(t, proj, m)
	if !hasCode(errs, serr.UnknownBuiltin) {
		t.Fatalf("expected UnknownBuiltin, got %v", errs)
	}
}

// TestCompileDelayFixedNonIntegerStepsReportsBadBuiltinArgs covers the
// DELAY_FIXED Open Question resolution recorded in DESIGN.md: a delay that
// isn't an integer multiple of dt is rejected rather than rounded.
func TestCompileDelayFixedNonIntegerStepsReportsBadBuiltinArgs(t *testing.T) {
	proj := model.NewProject("test")
	proj.SimSpecs = model.SimSpecs{Start: 0, Stop: 1, Dt: model.Dt{Value: 1}, Method: model.Euler}
	m := model.NewModel("main")
	m.Upsert(&model.Variable{
		Kind: model.VarAux, Ident: "p",
		Equation: model.Equation{Kind: model.EqScalar, Expr: "5"},
	})
	m.Upsert(&model.Variable{
		Kind: model.VarAux, Ident: "y",
		Equation: model.Equation{Kind: model.EqScalar, Expr: "delay_fixed(p, 2.5, 0)"},
	})

	errs := compileModel(t, proj, m)
	if !hasCode(errs, serr.BadBuiltinArgs) {
		t.Fatalf("expected BadBuiltinArgs, got %v", errs)
	}
}

// TestCompileBareArrayReferenceReportsNeedsExplicitSubscripts: a scalar
// context referencing an arrayed variable without a subscript can't pick
// an element.
func TestCompileBareArrayReferenceReportsNeedsExplicitSubscripts(t *testing.T) {
	proj := model.NewProject("test")
	proj.SimSpecs = model.SimSpecs{Start: 0, Stop: 1, Dt: model.Dt{Value: 1}, Method: model.Euler}
	if d := proj.Dimensions.Add(model.Dimension{Name: "regions", Elements: []string{"n", "s"}}); d != nil {
		t.Fatalf("Add dimension: %s", d.Message)
	}
	m := model.NewModel("main")
	m.Upsert(&model.Variable{
		Kind: model.VarAux, Ident: "pop",
		Equation: model.Equation{Kind: model.EqApplyToAll, Dimensions: []string{"regions"}, Expr: "1"},
	})
	m.Upsert(&model.Variable{
		Kind: model.VarAux, Ident: "total2",
		Equation: model.Equation{Kind: model.EqScalar, Expr: "pop + 1"},
	})

	errs := compileModel(t, proj, m)
	if !hasCode(errs, serr.ArrayReferenceNeedsExplicitSubscripts) {
		t.Fatalf("expected ArrayReferenceNeedsExplicitSubscripts, got %v", errs)
	}
}

// TestCompileWildcardOutsideFoldReportsArraysNotImplemented: a wildcard
// subscript not wrapped in a reduction has no lowering.
func TestCompileWildcardOutsideFoldReportsArraysNotImplemented(t *testing.T) {
	proj := model.NewProject("test")
	proj.SimSpecs = model.SimSpecs{Start: 0, Stop: 1, Dt: model.Dt{Value: 1}, Method: model.Euler}
	if d := proj.Dimensions.Add(model.Dimension{Name: "regions", Elements: []string{"n", "s"}}); d != nil {
		t.Fatalf("Add dimension: %s", d.Message)
	}
	m := model.NewModel("main")
	m.Upsert(&model.Variable{
		Kind: model.VarAux, Ident: "pop",
		Equation: model.Equation{Kind: model.EqApplyToAll, Dimensions: []string{"regions"}, Expr: "1"},
	})
	m.Upsert(&model.Variable{
		Kind: model.VarAux, Ident: "total2",
		Equation: model.Equation{Kind: model.EqScalar, Expr: "pop[*]"},
	})

	errs := compileModel(t, proj, m)
	if !hasCode(errs, serr.ArraysNotImplemented) {
		t.Fatalf("expected ArraysNotImplemented, got %v", errs)
	}
}

package patch

import (
	"strings"
	"testing"

	"github.com/bpowers/simlin/internal/model"
)

func growthProject(t *testing.T) *model.Project {
	t.Helper()
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
	if d := proj.AddModel(m); d != nil {
		t.Fatalf("AddModel: %s", d.Message)
	}
	return proj
}

// TestUpsertAuxCommits covers the basic commit path: a new, well-formed
// variable introduces no new errors and is present afterward.
func TestUpsertAuxCommits(t *testing.T) {
	proj := growthProject(t)
	ops := []Op{{
		Op: UpsertAux,
		Variable: &VariablePatch{
			Ident:    "doubled",
			Equation: &EquationPatch{Kind: "scalar", Expr: "p * 2"},
		},
	}}

	next, err := ApplyOps(proj, "main", ops, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if next == proj {
		t.Fatal("expected a new project on commit")
	}
	nm, _ := next.Model("main")
	if _, ok := nm.Get("doubled"); !ok {
		t.Fatal("expected doubled to be present after commit")
	}
	// the original project must be untouched.
	om, _ := proj.Model("main")
	if _, ok := om.Get("doubled"); ok {
		t.Fatal("original project was mutated by ApplyOps")
	}
}

// TestCircularDependencyRejectedWithoutAllowErrors: two auxes a = b+1,
// b = a+1 only commit with allow_errors.
func TestCircularDependencyRejectedWithoutAllowErrors(t *testing.T) {
	proj := model.NewProject("test")
	proj.SimSpecs = model.SimSpecs{Start: 0, Stop: 1, Dt: model.Dt{Value: 1}, Method: model.Euler}
	m := model.NewModel("main")
	if d := proj.AddModel(m); d != nil {
		t.Fatalf("AddModel: %s", d.Message)
	}

	ops := []Op{
		{Op: UpsertAux, Variable: &VariablePatch{Ident: "a", Equation: &EquationPatch{Kind: "scalar", Expr: "b + 1"}}},
		{Op: UpsertAux, Variable: &VariablePatch{Ident: "b", Equation: &EquationPatch{Kind: "scalar", Expr: "a + 1"}}},
	}

	next, err := ApplyOps(proj, "main", ops, Options{AllowErrors: false})
	if err == nil {
		t.Fatal("expected CircularDependency to be reported")
	}
	if next != proj {
		t.Fatal("a rejected patch must leave the project unchanged")
	}

	next, err = ApplyOps(proj, "main", ops, Options{AllowErrors: true})
	if err == nil {
		t.Fatal("expected the circular dependency to still be reported with allow_errors")
	}
	if next == proj {
		t.Fatal("expected commit to a new project with allow_errors=true")
	}
	found := false
	for _, d := range err.Details {
		if strings.Contains(d.Message, "a") && strings.Contains(d.Message, "b") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a CircularDependency detail naming a and b, got %v", err.Details)
	}
}

// TestDryRunRollsBack: dry_run always rolls back, even a clean patch.
func TestDryRunRollsBack(t *testing.T) {
	proj := growthProject(t)
	ops := []Op{{
		Op: UpsertAux,
		Variable: &VariablePatch{
			Ident:    "doubled",
			Equation: &EquationPatch{Kind: "scalar", Expr: "p * 2"},
		},
	}}

	next, err := ApplyOps(proj, "main", ops, Options{DryRun: true})
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	if next != proj {
		t.Fatal("dry_run must roll back and return the original project")
	}
}

// TestRenameVariableRewritesReferences: every referencing equation and
// flow listing has `from` replaced by `to`.
func TestRenameVariableRewritesReferences(t *testing.T) {
	proj := growthProject(t)
	ops := []Op{{Op: RenameVariable, From: "births", To: "renamed_births"}}

	next, err := ApplyOps(proj, "main", ops, Options{})
	if err != nil {
		t.Fatalf("unexpected error: %s", err.Error())
	}
	nm, _ := next.Model("main")
	if _, ok := nm.Get("births"); ok {
		t.Fatal("old ident should no longer resolve")
	}
	renamed, ok := nm.Get("renamed_births")
	if !ok {
		t.Fatal("renamed ident should resolve")
	}
	if renamed.Ident != "renamed_births" {
		t.Errorf("Ident = %q, want %q", renamed.Ident, "renamed_births")
	}
	stock, _ := nm.Get("p")
	if len(stock.Inflows) != 1 || stock.Inflows[0] != "renamed_births" {
		t.Errorf("stock inflow not rewritten: %v", stock.Inflows)
	}
}

// TestSetSimSpecsValidates ensures an invalid sim-specs patch (stop <=
// start) is rejected rather than silently committed.
func TestSetSimSpecsValidates(t *testing.T) {
	proj := growthProject(t)
	ops := []Op{{
		Op:       SetSimSpecs,
		SimSpecs: &SimSpecsPatch{Start: 10, Stop: 0, Dt: "1", Method: "euler"},
	}}
	next, err := ApplyOps(proj, "main", ops, Options{})
	if err == nil {
		t.Fatal("expected BadSimSpecs to be reported")
	}
	if next != proj {
		t.Fatal("a rejected patch must leave the project unchanged")
	}
}

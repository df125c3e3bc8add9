package resolve

import (
	"testing"

	"github.com/bpowers/simlin/internal/model"
)

func TestResolveApplyToAllExpandsOverDimension(t *testing.T) {
	proj := model.NewProject("test")
	if d := proj.Dimensions.Add(model.Dimension{Name: "regions", Elements: []string{"n", "s"}}); d != nil {
		t.Fatalf("Add dimension: %s", d.Message)
	}

	m := model.NewModel("main")
	m.Upsert(&model.Variable{
		Kind: model.VarAux, Ident: "x",
		Equation: model.Equation{Kind: model.EqApplyToAll, Dimensions: []string{"regions"}, Expr: "1"},
	})
	if d := proj.AddModel(m); d != nil {
		t.Fatalf("AddModel: %s", d.Message)
	}

	res := Resolve(proj, m)
	if len(res.Errors) > 0 {
		t.Fatalf("unexpected errors: %v", res.Errors)
	}

	var keys []string
	for _, in := range res.Instances {
		keys = append(keys, in.Key())
	}
	want := map[string]bool{"x[n]": true, "x[s]": true}
	if len(keys) != 2 {
		t.Fatalf("expected 2 instances, got %v", keys)
	}
	for _, k := range keys {
		if !want[k] {
			t.Errorf("unexpected instance key %q", k)
		}
	}
}

func TestResolveUnknownReferenceIsAnError(t *testing.T) {
	proj := model.NewProject("test")
	m := model.NewModel("main")
	m.Upsert(&model.Variable{
		Kind: model.VarAux, Ident: "y",
		Equation: model.Equation{Kind: model.EqScalar, Expr: "unknown_var + 1"},
	})
	if d := proj.AddModel(m); d != nil {
		t.Fatalf("AddModel: %s", d.Message)
	}

	res := Resolve(proj, m)
	if len(res.Errors) == 0 {
		t.Fatal("expected an unknown-dependency error")
	}
}

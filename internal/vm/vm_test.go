package vm

import (
	"math"
	"testing"

	"github.com/bpowers/simlin/internal/compiler"
	"github.com/bpowers/simlin/internal/model"
	"github.com/bpowers/simlin/internal/pipeline"
)

func buildProj(t *testing.T, proj *model.Project, m *model.Model) (*compiler.Program, pipeline.Diagnostics) {
	t.Helper()
	if d := proj.AddModel(m); d != nil {
		t.Fatalf("AddModel: %s", d.Message)
	}
	prog, diag := pipeline.Build(proj, m)
	if !diag.Simulatable() {
		t.Fatalf("model not simulatable: %v", diag.Errors)
	}
	return prog, diag
}

func approxEqual(t *testing.T, got, want, tol float64, what string) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %v, want %v (tol %v)", what, got, want, tol)
	}
}

// Scalar exponential growth: stock P init 100,
// inflow births = P*0.03, no outflow; start=0 stop=10 dt=1 euler.
func TestExponentialGrowthEuler(t *testing.T) {
	proj := model.NewProject("test")
	proj.SimSpecs = model.SimSpecs{Start: 0, Stop: 10, Dt: model.Dt{Value: 1}, Method: model.Euler}

	m := model.NewModel("main")
	m.Upsert(&model.Variable{
		Kind: model.VarStock, Ident: "p",
		Equation:    model.Equation{Kind: model.EqScalar, Expr: "births", InitialExpr: "100"},
		Inflows:     []string{"births"},
		NonNegative: true,
	})
	m.Upsert(&model.Variable{
		Kind: model.VarFlow, Ident: "births",
		Equation: model.Equation{Kind: model.EqScalar, Expr: "p * 0.03"},
	})

	prog, _ := buildProj(t, proj, m)
	sim := New(proj, prog, 1)
	if err := sim.RunToEnd(); err != nil {
		t.Fatal(err)
	}

	series, ok := sim.GetSeries("p")
	if !ok || len(series) != 11 {
		t.Fatalf("expected 11 saved rows, got %d (ok=%v)", len(series), ok)
	}
	approxEqual(t, series[5], 115.9274, 1e-3, "P[5]")
	approxEqual(t, series[10], 134.3916, 1e-3, "P[10]")
}

// RK4 vs Euler divergence: same model, dt=1, rk4.
func TestExponentialGrowthRK4(t *testing.T) {
	proj := model.NewProject("test")
	proj.SimSpecs = model.SimSpecs{Start: 0, Stop: 10, Dt: model.Dt{Value: 1}, Method: model.RK4}

	m := model.NewModel("main")
	m.Upsert(&model.Variable{
		Kind: model.VarStock, Ident: "p",
		Equation:    model.Equation{Kind: model.EqScalar, Expr: "births", InitialExpr: "100"},
		Inflows:     []string{"births"},
		NonNegative: true,
	})
	m.Upsert(&model.Variable{
		Kind: model.VarFlow, Ident: "births",
		Equation: model.Equation{Kind: model.EqScalar, Expr: "p * 0.03"},
	})

	prog, _ := buildProj(t, proj, m)
	sim := New(proj, prog, 1)
	if err := sim.RunToEnd(); err != nil {
		t.Fatal(err)
	}

	v, ok := sim.GetValue("p")
	if !ok {
		t.Fatal("p not found")
	}
	want := 100 * math.Exp(0.3)
	approxEqual(t, v, want, 1e-2, "P[10] (rk4)")
}

// Subscripted sum: dimension regions=[n,s]; stock
// array pop[regions] init [100, 200]; inflow growth[regions] =
// pop[regions]*0.01; aux total = SUM(pop[*]). After one Euler step with
// dt=1: pop[n]=101, pop[s]=202, total=303.
func TestSubscriptedSum(t *testing.T) {
	proj := model.NewProject("test")
	proj.SimSpecs = model.SimSpecs{Start: 0, Stop: 1, Dt: model.Dt{Value: 1}, Method: model.Euler}
	if d := proj.Dimensions.Add(model.Dimension{Name: "regions", Elements: []string{"n", "s"}}); d != nil {
		t.Fatalf("Add dimension: %s", d.Message)
	}

	m := model.NewModel("main")
	m.Upsert(&model.Variable{
		Kind: model.VarStock, Ident: "pop",
		Equation: model.Equation{
			Kind: model.EqArrayed, Dims: []string{"regions"},
			Elements: map[string]string{"n": "100", "s": "200"},
		},
		Inflows:     []string{"growth"},
		NonNegative: true,
	})
	m.Upsert(&model.Variable{
		Kind: model.VarFlow, Ident: "growth",
		Equation: model.Equation{Kind: model.EqApplyToAll, Dimensions: []string{"regions"}, Expr: "pop[regions] * 0.01"},
	})
	m.Upsert(&model.Variable{
		Kind: model.VarAux, Ident: "total",
		Equation: model.Equation{Kind: model.EqScalar, Expr: "SUM(pop[*])"},
	})

	prog, _ := buildProj(t, proj, m)
	sim := New(proj, prog, 1)
	if err := sim.RunToEnd(); err != nil {
		t.Fatal(err)
	}

	n, _ := sim.GetValue("pop[n]")
	s, _ := sim.GetValue("pop[s]")
	total, _ := sim.GetValue("total")
	approxEqual(t, n, 101, 1e-9, "pop[n]")
	approxEqual(t, s, 202, 1e-9, "pop[s]")
	approxEqual(t, total, 303, 1e-9, "total")
}

// Reciprocal dt round-trip: SimSpecs with
// dt={value:4, is_reciprocal:true} renders as "1/4" and integrates with
// step 0.25.
func TestReciprocalDt(t *testing.T) {
	dt := model.Dt{Value: 4, IsReciprocal: true}
	if got, want := dt.String(), "1/4"; got != want {
		t.Errorf("Dt.String() = %q, want %q", got, want)
	}
	approxEqual(t, dt.Float(), 0.25, 0, "Dt.Float()")
}

// Snapshot cadence: get_stepcount = floor((stop-start)/save_step)+1.
func TestStepCountCadence(t *testing.T) {
	proj := model.NewProject("test")
	proj.SimSpecs = model.SimSpecs{Start: 0, Stop: 10, Dt: model.Dt{Value: 0.5}, Method: model.Euler}

	m := model.NewModel("main")
	m.Upsert(&model.Variable{
		Kind:        model.VarStock,
		Ident:       "p",
		Equation:    model.Equation{Kind: model.EqScalar, Expr: "0", InitialExpr: "1"},
		NonNegative: true,
	})

	prog, _ := buildProj(t, proj, m)
	sim := New(proj, prog, 1)
	if err := sim.RunToEnd(); err != nil {
		t.Fatal(err)
	}
	want := int(math.Floor((10-0)/0.5)) + 1
	if got := sim.StepCount(); got != want {
		t.Errorf("StepCount() = %d, want %d", got, want)
	}
}

// Determinism: identical project + overrides produce
// bit-identical output across independent Sims sharing the same seed.
func TestDeterminism(t *testing.T) {
	proj := model.NewProject("test")
	proj.SimSpecs = model.SimSpecs{Start: 0, Stop: 5, Dt: model.Dt{Value: 1}, Method: model.Euler}

	m := model.NewModel("main")
	m.Upsert(&model.Variable{
		Kind: model.VarStock, Ident: "p",
		Equation:    model.Equation{Kind: model.EqScalar, Expr: "births", InitialExpr: "100"},
		Inflows:     []string{"births"},
		NonNegative: true,
	})
	m.Upsert(&model.Variable{
		Kind: model.VarFlow, Ident: "births",
		Equation: model.Equation{Kind: model.EqScalar, Expr: "p * 0.03"},
	})

	prog, _ := buildProj(t, proj, m)

	sim1 := New(proj, prog, 42)
	sim2 := New(proj, prog, 42)
	if err := sim1.RunToEnd(); err != nil {
		t.Fatal(err)
	}
	if err := sim2.RunToEnd(); err != nil {
		t.Fatal(err)
	}
	s1, _ := sim1.GetSeries("p")
	s2, _ := sim2.GetSeries("p")
	if len(s1) != len(s2) {
		t.Fatalf("series length mismatch: %d vs %d", len(s1), len(s2))
	}
	for i := range s1 {
		if s1[i] != s2[i] {
			t.Errorf("row %d diverged: %v vs %v", i, s1[i], s2[i])
		}
	}
}

// Graphical-function lookup: an aux whose equation feeds an attached table
// takes the interpolated value, clamping past the table's endpoints unless
// the table extrapolates.
func TestGraphicalFunctionAux(t *testing.T) {
	for _, c := range []struct {
		name  string
		kind  model.GFKind
		input string
		want  float64
	}{
		{"interpolates", model.GFContinuous, "25", 0.25},
		{"clamps", model.GFContinuous, "150", 1.0},
		{"extrapolates", model.GFExtrapolate, "150", 1.5},
	} {
		proj := model.NewProject("test")
		proj.SimSpecs = model.SimSpecs{Start: 0, Stop: 1, Dt: model.Dt{Value: 1}, Method: model.Euler}

		m := model.NewModel("main")
		m.Upsert(&model.Variable{
			Kind: model.VarAux, Ident: "input",
			Equation: model.Equation{Kind: model.EqScalar, Expr: c.input},
		})
		m.Upsert(&model.Variable{
			Kind: model.VarAux, Ident: "effect",
			Equation: model.Equation{Kind: model.EqScalar, Expr: "input"},
			GF: &model.GraphicalFunction{
				Kind:    c.kind,
				XPoints: []float64{0, 50, 100},
				YPoints: []float64{0, 0.5, 1},
				XScale:  model.Scale{Min: 0, Max: 100},
				YScale:  model.Scale{Min: 0, Max: 1},
			},
		})

		prog, _ := buildProj(t, proj, m)
		sim := New(proj, prog, 1)

		v, ok := sim.GetValue("effect")
		if !ok {
			t.Fatalf("%s: effect not found", c.name)
		}
		approxEqual(t, v, c.want, 1e-9, c.name+": effect")
	}
}

package wire

import (
	"strings"
	"testing"

	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/model"
)

func sampleProject() *model.Project {
	proj := model.NewProject("sample")
	proj.SimSpecs = model.SimSpecs{
		Start: 0, Stop: 10, Dt: model.Dt{Value: 4, IsReciprocal: true}, Method: model.RK4, TimeUnits: "months",
	}
	proj.Dimensions.Add(model.Dimension{Name: "regions", Elements: []string{"n", "s"}})
	proj.Units.Add(model.Unit{Name: "widget"})

	m := model.NewModel("main")
	m.Upsert(&model.Variable{
		Kind:        model.VarStock,
		Ident:       "p",
		Equation:    model.Equation{Kind: model.EqScalar, Expr: "births", InitialExpr: "100"},
		Inflows:     []string{"births"},
		NonNegative: true,
		Units:       "widget",
	})
	m.Upsert(&model.Variable{
		Kind:  model.VarFlow,
		Ident: "births",
		Equation: model.Equation{Kind: model.EqScalar, Expr: "p * 0.03"},
		GF: &model.GraphicalFunction{
			Kind:    model.GFContinuous,
			YPoints: []float64{0, 0.5, 1},
			XScale:  model.Scale{Min: 0, Max: 100},
		},
	})
	proj.AddModel(m)
	return proj
}

// TestBinaryRoundTrip: open(serialize(P)) reproduces P structurally for
// the binary wire form.
func TestBinaryRoundTrip(t *testing.T) {
	proj := sampleProject()
	data, err := MarshalBinary(proj)
	if err != nil {
		t.Fatalf("MarshalBinary: %v", err)
	}
	if !IsBinary(data) {
		t.Fatal("IsBinary should recognize freshly marshaled data")
	}

	got, derr := UnmarshalBinary(data)
	if derr != nil {
		t.Fatalf("UnmarshalBinary: %s", derr.Error())
	}
	assertRoundTrip(t, proj, got)
}

// TestJSONRoundTrip is the same property for the native JSON dialect; a
// reciprocal dt serializes as the literal string "1/4", not "0.25".
func TestJSONRoundTrip(t *testing.T) {
	proj := sampleProject()
	data, err := MarshalJSON(proj)
	if err != nil {
		t.Fatalf("MarshalJSON: %v", err)
	}
	if !strings.Contains(string(data), `"dt":"1/4"`) {
		t.Errorf("serialized sim specs missing the reciprocal dt string: %s", data)
	}

	got, derr := UnmarshalJSON(data)
	if derr != nil {
		t.Fatalf("UnmarshalJSON: %s", derr.Error())
	}
	assertRoundTrip(t, proj, got)
}

func assertRoundTrip(t *testing.T, want, got *model.Project) {
	t.Helper()
	if got.Name != want.Name {
		t.Errorf("Name = %q, want %q", got.Name, want.Name)
	}
	if got.SimSpecs.Dt.String() != "1/4" {
		t.Errorf("Dt.String() = %q, want %q", got.SimSpecs.Dt.String(), "1/4")
	}
	if got.SimSpecs.Method != model.RK4 {
		t.Errorf("Method = %v, want RK4", got.SimSpecs.Method)
	}
	gm, ok := got.Model("main")
	if !ok {
		t.Fatal("main model missing after round-trip")
	}
	wm, _ := want.Model("main")
	if len(gm.OrderedIdents()) != len(wm.OrderedIdents()) {
		t.Fatalf("variable count = %d, want %d", len(gm.OrderedIdents()), len(wm.OrderedIdents()))
	}
	stock, ok := gm.Get("p")
	if !ok {
		t.Fatal("stock p missing after round-trip")
	}
	if stock.Equation.InitialExpr != "100" {
		t.Errorf("InitialExpr = %q, want %q", stock.Equation.InitialExpr, "100")
	}
	if len(stock.Inflows) != 1 || stock.Inflows[0] != "births" {
		t.Errorf("Inflows = %v, want [births]", stock.Inflows)
	}
	flow, ok := gm.Get("births")
	if !ok {
		t.Fatal("flow births missing after round-trip")
	}
	if flow.GF == nil || len(flow.GF.YPoints) != 3 {
		t.Fatal("graphical function did not round-trip")
	}
	if dim, ok := got.Dimensions.Get("regions"); !ok || dim.Len() != 2 {
		t.Error("dimension regions did not round-trip")
	}
}

// TestOpenXMILEAndVensimReturnStableCodes covers the external-collaborator
// hooks: the core never attempts to parse XMILE/Vensim, it
// just returns a stable error code.
func TestOpenXMILEAndVensimReturnStableCodes(t *testing.T) {
	if _, err := OpenXMILE([]byte("<xmile/>")); err == nil || err.Code != serr.XmlDeserialization {
		t.Fatalf("OpenXMILE: expected XmlDeserialization, got %v", err)
	}
	if _, err := OpenVensim([]byte("{ }")); err == nil || err.Code != serr.VensimConversion {
		t.Fatalf("OpenVensim: expected VensimConversion, got %v", err)
	}
}

// Package wire implements serialization of a Project: a versioned binary
// "protobuf-analog" wire form (header + encoded payload) and a native JSON
// dialect that mirrors the datamodel 1:1 with camelCase keys, the dialect
// patches are also encoded in. XMILE and Vensim stay out of scope —
// OpenXMILE/OpenVensim only return the stable error code an embedder's own
// converter would want to see wired up to.
package wire

import (
	"github.com/segmentio/encoding/json"

	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/model"
)

// --- native JSON DTOs -------------------------------------------------
//
// These mirror internal/model's types field-for-field but carry the
// camelCase json tags the wire dialect specifies; keeping them separate
// from internal/model avoids leaking serialization concerns into the
// datamodel package itself.

type projectJSON struct {
	Name       string        `json:"name"`
	SimSpecs   simSpecsJSON  `json:"simSpecs"`
	Dimensions []dimJSON     `json:"dimensions"`
	Units      []unitJSON    `json:"units"`
	Models     []modelJSON   `json:"models"`
	Source     []byte        `json:"source,omitempty"`
}

type simSpecsJSON struct {
	Start     float64  `json:"start"`
	Stop      float64  `json:"stop"`
	Dt        string   `json:"dt"` // "1/4" for a reciprocal dt, plain decimal otherwise
	SaveStep  *float64 `json:"saveStep,omitempty"`
	Method    string   `json:"method"`
	TimeUnits string   `json:"timeUnits,omitempty"`
}

type dimJSON struct {
	Name     string   `json:"name"`
	Elements []string `json:"elements,omitempty"`
	Size     int      `json:"size,omitempty"`
	Subrange string   `json:"subrange,omitempty"`
}

type unitJSON struct {
	Name     string   `json:"name"`
	Equation string   `json:"equation,omitempty"`
	Disabled bool     `json:"disabled,omitempty"`
	Aliases  []string `json:"aliases,omitempty"`
}

type modelJSON struct {
	Name      string         `json:"name"`
	Variables []variableJSON `json:"variables"`
	Views     []viewJSON     `json:"views,omitempty"`
	Groups    []groupJSON    `json:"groups,omitempty"`
}

type viewJSON struct {
	Index    int            `json:"index"`
	Elements map[string]any `json:"elements,omitempty"`
}

type groupJSON struct {
	Name string   `json:"name"`
	Vars []string `json:"vars,omitempty"`
}

type equationJSON struct {
	Kind        string            `json:"kind"`
	Expr        string            `json:"expr,omitempty"`
	InitialExpr string            `json:"initialExpr,omitempty"`
	Dimensions  []string          `json:"dimensions,omitempty"`
	Exceptions  [][]string        `json:"exceptions,omitempty"`
	Dims        []string          `json:"dims,omitempty"`
	Elements    map[string]string `json:"elements,omitempty"`
	Fallback    string            `json:"fallback,omitempty"`
}

type gfJSON struct {
	Kind    string    `json:"kind"`
	XPoints []float64 `json:"xPoints,omitempty"`
	YPoints []float64 `json:"yPoints"`
	XScale  [2]float64 `json:"xScale"`
	YScale  [2]float64 `json:"yScale"`
}

type moduleRefJSON struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

type variableJSON struct {
	Kind        string          `json:"kind"`
	Ident       string          `json:"ident"`
	Docs        string          `json:"docs,omitempty"`
	Equation    *equationJSON   `json:"equation,omitempty"`
	Units       string          `json:"units,omitempty"`
	Inflows     []string        `json:"inflows,omitempty"`
	Outflows    []string        `json:"outflows,omitempty"`
	NonNegative bool            `json:"nonNegative,omitempty"`
	GF          *gfJSON         `json:"gf,omitempty"`
	ModelName   string          `json:"modelName,omitempty"`
	References  []moduleRefJSON `json:"references,omitempty"`
}

var eqKindNames = map[model.EquationKind]string{
	model.EqScalar:     "scalar",
	model.EqApplyToAll: "applyToAll",
	model.EqArrayed:    "arrayed",
}

var eqKindFromName = map[string]model.EquationKind{
	"scalar": model.EqScalar, "applyToAll": model.EqApplyToAll, "arrayed": model.EqArrayed,
}

var varKindNames = map[model.VarKind]string{
	model.VarStock: "stock", model.VarFlow: "flow", model.VarAux: "aux", model.VarModule: "module",
}

var varKindFromName = map[string]model.VarKind{
	"stock": model.VarStock, "flow": model.VarFlow, "aux": model.VarAux, "module": model.VarModule,
}

var gfKindNames = map[model.GFKind]string{
	model.GFContinuous: "continuous", model.GFDiscrete: "discrete", model.GFExtrapolate: "extrapolate",
}

var gfKindFromName = map[string]model.GFKind{
	"continuous": model.GFContinuous, "discrete": model.GFDiscrete, "extrapolate": model.GFExtrapolate,
}

func toProjectJSON(p *model.Project) projectJSON {
	out := projectJSON{Name: p.Name, Source: p.Source}
	out.SimSpecs = simSpecsJSON{
		Start: p.SimSpecs.Start, Stop: p.SimSpecs.Stop,
		Dt:       p.SimSpecs.Dt.String(),
		SaveStep: p.SimSpecs.SaveStep, Method: p.SimSpecs.Method.String(), TimeUnits: p.SimSpecs.TimeUnits,
	}
	for _, d := range p.Dimensions.All() {
		out.Dimensions = append(out.Dimensions, dimJSON{Name: d.Name, Elements: d.Elements, Size: d.Size, Subrange: d.Subrange})
	}
	for _, u := range p.Units.All() {
		out.Units = append(out.Units, unitJSON{Name: u.Name, Equation: u.Equation, Disabled: u.Disabled, Aliases: u.Aliases})
	}
	for _, name := range p.ModelNames() {
		out.Models = append(out.Models, toModelJSON(p.Models[name]))
	}
	return out
}

func toModelJSON(m *model.Model) modelJSON {
	out := modelJSON{Name: m.Name}
	for _, ident := range m.OrderedIdents() {
		out.Variables = append(out.Variables, toVariableJSON(m.Variables[ident]))
	}
	for _, v := range m.Views {
		out.Views = append(out.Views, viewJSON{Index: v.Index, Elements: v.Elements})
	}
	for _, g := range m.Groups {
		out.Groups = append(out.Groups, groupJSON{Name: g.Name, Vars: g.Vars})
	}
	return out
}

func toVariableJSON(v *model.Variable) variableJSON {
	out := variableJSON{
		Kind: varKindNames[v.Kind], Ident: v.Ident, Docs: v.Docs,
		Units: v.Units, Inflows: v.Inflows, Outflows: v.Outflows, NonNegative: v.NonNegative,
		ModelName: v.ModelName,
	}
	if v.Kind != model.VarModule {
		eq := v.Equation
		out.Equation = &equationJSON{
			Kind: eqKindNames[eq.Kind], Expr: eq.Expr, InitialExpr: eq.InitialExpr,
			Dimensions: eq.Dimensions, Exceptions: eq.Exceptions,
			Dims: eq.Dims, Elements: eq.Elements, Fallback: eq.Fallback,
		}
	}
	if v.GF != nil {
		out.GF = &gfJSON{
			Kind: gfKindNames[v.GF.Kind], XPoints: v.GF.XPoints, YPoints: v.GF.YPoints,
			XScale: [2]float64{v.GF.XScale.Min, v.GF.XScale.Max}, YScale: [2]float64{v.GF.YScale.Min, v.GF.YScale.Max},
		}
	}
	for _, r := range v.References {
		out.References = append(out.References, moduleRefJSON{Src: r.Src, Dst: r.Dst})
	}
	return out
}

func fromProjectJSON(pj projectJSON) *model.Project {
	p := model.NewProject(pj.Name)
	p.Source = pj.Source
	dt, _ := model.ParseDt(pj.SimSpecs.Dt) // unparsable dt stays zero; Validate reports it
	p.SimSpecs = model.SimSpecs{
		Start: pj.SimSpecs.Start, Stop: pj.SimSpecs.Stop,
		Dt:        dt,
		SaveStep:  pj.SimSpecs.SaveStep,
		TimeUnits: pj.SimSpecs.TimeUnits,
	}
	if pj.SimSpecs.Method == "rk4" {
		p.SimSpecs.Method = model.RK4
	}
	for _, d := range pj.Dimensions {
		p.Dimensions.Add(model.Dimension{Name: d.Name, Elements: d.Elements, Size: d.Size, Subrange: d.Subrange})
	}
	for _, u := range pj.Units {
		p.Units.Add(model.Unit{Name: u.Name, Equation: u.Equation, Disabled: u.Disabled, Aliases: u.Aliases})
	}
	for _, mj := range pj.Models {
		p.AddModel(fromModelJSON(mj))
	}
	return p
}

func fromModelJSON(mj modelJSON) *model.Model {
	m := model.NewModel(mj.Name)
	for _, vj := range mj.Variables {
		m.Upsert(fromVariableJSON(vj))
	}
	for _, vw := range mj.Views {
		m.Views = append(m.Views, model.View{Index: vw.Index, Elements: vw.Elements})
	}
	for _, g := range mj.Groups {
		m.Groups = append(m.Groups, model.Group{Name: g.Name, Vars: g.Vars})
	}
	return m
}

func fromVariableJSON(vj variableJSON) *model.Variable {
	v := &model.Variable{
		Kind: varKindFromName[vj.Kind], Ident: vj.Ident, Docs: vj.Docs,
		Units: vj.Units, Inflows: vj.Inflows, Outflows: vj.Outflows, NonNegative: vj.NonNegative,
		ModelName: vj.ModelName,
	}
	if vj.Equation != nil {
		eq := vj.Equation
		v.Equation = model.Equation{
			Kind: eqKindFromName[eq.Kind], Expr: eq.Expr, InitialExpr: eq.InitialExpr,
			Dimensions: eq.Dimensions, Exceptions: eq.Exceptions,
			Dims: eq.Dims, Elements: eq.Elements, Fallback: eq.Fallback,
		}
	}
	if vj.GF != nil {
		v.GF = &model.GraphicalFunction{
			Kind: gfKindFromName[vj.GF.Kind], XPoints: vj.GF.XPoints, YPoints: vj.GF.YPoints,
			XScale: model.Scale{Min: vj.GF.XScale[0], Max: vj.GF.XScale[1]},
			YScale: model.Scale{Min: vj.GF.YScale[0], Max: vj.GF.YScale[1]},
		}
	}
	for _, r := range vj.References {
		v.References = append(v.References, model.ModuleRef{Src: r.Src, Dst: r.Dst})
	}
	return v
}

// MarshalJSON renders p in the native JSON dialect.
func MarshalJSON(p *model.Project) ([]byte, error) {
	return json.Marshal(toProjectJSON(p))
}

// MarshalVariable renders a single variable in the native JSON dialect, for
// the FFI layer's get_var_json/get_stocks_json family.
func MarshalVariable(v *model.Variable) ([]byte, error) {
	return json.Marshal(toVariableJSON(v))
}

// MarshalVariables renders a slice of variables the same way.
func MarshalVariables(vs []*model.Variable) ([]byte, error) {
	out := make([]variableJSON, len(vs))
	for i, v := range vs {
		out[i] = toVariableJSON(v)
	}
	return json.Marshal(out)
}

// MarshalSimSpecs renders a project's sim-specs in the native JSON dialect,
// for get_sim_specs_json.
func MarshalSimSpecs(s model.SimSpecs) ([]byte, error) {
	return json.Marshal(simSpecsJSON{
		Start: s.Start, Stop: s.Stop, Dt: s.Dt.String(),
		SaveStep: s.SaveStep, Method: s.Method.String(), TimeUnits: s.TimeUnits,
	})
}

// UnmarshalJSON parses the native JSON dialect into a Project. A malformed
// document surfaces as Generic, since the native dialect has no
// format-specific error code of its own.
func UnmarshalJSON(data []byte) (*model.Project, *serr.Error) {
	var pj projectJSON
	if err := json.Unmarshal(data, &pj); err != nil {
		return nil, serr.New(serr.Generic, "invalid native JSON project: "+err.Error())
	}
	return fromProjectJSON(pj), nil
}

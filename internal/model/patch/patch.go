// Package patch implements the project mutation engine: a
// small tagged-union of patch operations, applied transactionally to a
// copy of the target Model so a rejected or dry-run patch never disturbs
// the caller's existing state.
package patch

import (
	"strconv"
	"strings"

	"github.com/segmentio/encoding/json"
	log "github.com/sirupsen/logrus"

	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/model"
	"github.com/bpowers/simlin/internal/pipeline"
)

// Kind names one of the tagged patch operations.
type Kind string

// Supported operation kinds.
const (
	UpsertStock      Kind = "upsertStock"
	UpsertFlow       Kind = "upsertFlow"
	UpsertAux        Kind = "upsertAux"
	UpsertModule     Kind = "upsertModule"
	DeleteVariable   Kind = "deleteVariable"
	RenameVariable   Kind = "renameVariable"
	UpsertView       Kind = "upsertView"
	DeleteView       Kind = "deleteView"
	UpdateStockFlows Kind = "updateStockFlows"
	SetSimSpecs      Kind = "setSimSpecs"
)

// EquationPatch mirrors model.Equation with a string Kind tag for JSON.
type EquationPatch struct {
	Kind        string            `json:"kind"`
	Expr        string            `json:"expr,omitempty"`
	InitialExpr string            `json:"initialExpr,omitempty"`
	Dimensions  []string          `json:"dimensions,omitempty"`
	Exceptions  [][]string        `json:"exceptions,omitempty"`
	Dims        []string          `json:"dims,omitempty"`
	Elements    map[string]string `json:"elements,omitempty"`
	Fallback    string            `json:"fallback,omitempty"`
}

func (e *EquationPatch) toModel() model.Equation {
	kinds := map[string]model.EquationKind{"scalar": model.EqScalar, "applyToAll": model.EqApplyToAll, "arrayed": model.EqArrayed}
	return model.Equation{
		Kind: kinds[e.Kind], Expr: e.Expr, InitialExpr: e.InitialExpr,
		Dimensions: e.Dimensions, Exceptions: e.Exceptions,
		Dims: e.Dims, Elements: e.Elements, Fallback: e.Fallback,
	}
}

// GFPatch mirrors model.GraphicalFunction.
type GFPatch struct {
	Kind    string     `json:"kind"`
	XPoints []float64  `json:"xPoints,omitempty"`
	YPoints []float64  `json:"yPoints"`
	XScale  [2]float64 `json:"xScale"`
	YScale  [2]float64 `json:"yScale"`
}

func (g *GFPatch) toModel() *model.GraphicalFunction {
	if g == nil {
		return nil
	}
	kinds := map[string]model.GFKind{"continuous": model.GFContinuous, "discrete": model.GFDiscrete, "extrapolate": model.GFExtrapolate}
	return &model.GraphicalFunction{
		Kind: kinds[g.Kind], XPoints: g.XPoints, YPoints: g.YPoints,
		XScale: model.Scale{Min: g.XScale[0], Max: g.XScale[1]},
		YScale: model.Scale{Min: g.YScale[0], Max: g.YScale[1]},
	}
}

// ModuleRefPatch mirrors model.ModuleRef.
type ModuleRefPatch struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

// VariablePatch carries the union of fields any upsert_* op might set; only
// the fields meaningful to the op's variable kind are read.
type VariablePatch struct {
	Ident       string           `json:"ident"`
	Docs        string           `json:"docs,omitempty"`
	Units       string           `json:"units,omitempty"`
	Equation    *EquationPatch   `json:"equation,omitempty"`
	Inflows     []string         `json:"inflows,omitempty"`
	Outflows    []string         `json:"outflows,omitempty"`
	NonNegative bool             `json:"nonNegative,omitempty"`
	GF          *GFPatch         `json:"gf,omitempty"`
	ModelName   string           `json:"modelName,omitempty"`
	References  []ModuleRefPatch `json:"references,omitempty"`
}

func (vp *VariablePatch) toVariable(kind model.VarKind) *model.Variable {
	v := &model.Variable{
		Kind: kind, Ident: vp.Ident, Docs: vp.Docs, Units: vp.Units,
		Inflows: vp.Inflows, Outflows: vp.Outflows, NonNegative: vp.NonNegative,
		ModelName: vp.ModelName,
	}
	if vp.Equation != nil {
		v.Equation = vp.Equation.toModel()
	}
	v.GF = vp.GF.toModel()
	for _, r := range vp.References {
		v.References = append(v.References, model.ModuleRef{Src: r.Src, Dst: r.Dst})
	}
	return v
}

// ViewPatch mirrors model.View.
type ViewPatch struct {
	Elements map[string]any `json:"elements,omitempty"`
}

// Op is one decoded patch operation.
type Op struct {
	Op       Kind           `json:"op"`
	Variable *VariablePatch `json:"variable,omitempty"`
	Ident    string         `json:"ident,omitempty"`
	From     string         `json:"from,omitempty"`
	To       string         `json:"to,omitempty"`
	Index    int            `json:"index,omitempty"`
	View     *ViewPatch     `json:"view,omitempty"`
	Inflows  []string       `json:"inflows,omitempty"`
	Outflows []string       `json:"outflows,omitempty"`
	SimSpecs *SimSpecsPatch `json:"simSpecs,omitempty"`
}

// SimSpecsPatch mirrors model.SimSpecs in the native JSON dialect; Dt
// carries the string form ("1/4" for a reciprocal dt, plain decimal
// otherwise).
type SimSpecsPatch struct {
	Start     float64  `json:"start"`
	Stop      float64  `json:"stop"`
	Dt        string   `json:"dt"`
	SaveStep  *float64 `json:"saveStep,omitempty"`
	Method    string   `json:"method"`
	TimeUnits string   `json:"timeUnits,omitempty"`
}

// Options controls how Apply treats newly-introduced errors.
type Options struct {
	DryRun      bool
	AllowErrors bool
}

// ParseOps decodes a patch document (a JSON array of Op) in the native
// JSON dialect.
func ParseOps(data []byte) ([]Op, *serr.Error) {
	var ops []Op
	if err := json.Unmarshal(data, &ops); err != nil {
		return nil, serr.New(serr.Generic, "invalid patch document: "+err.Error())
	}
	return ops, nil
}

// Apply applies a patch document to modelName within proj:
// 1. parse (done by the caller via ParseOps, or inline here),
// 2. apply every op to a clone,
// 3. diagnose the clone and compare against the pre-state's diagnostics,
// 4. reject (returning proj unchanged) unless allow_errors or no new
// errors appeared, and always roll back when dry_run is set.
//
// The returned *serr.Error carries whatever new diagnostics appeared,
// win or lose; it is nil only when the patch introduced nothing new.
func Apply(proj *model.Project, modelName string, patchJSON []byte, opts Options) (*model.Project, *serr.Error) {
	ops, perr := ParseOps(patchJSON)
	if perr != nil {
		return proj, perr
	}
	return ApplyOps(proj, modelName, ops, opts)
}

// ApplyOps is Apply for an already-decoded op list.
func ApplyOps(proj *model.Project, modelName string, ops []Op, opts Options) (*model.Project, *serr.Error) {
	target, ok := proj.Model(modelName)
	if !ok {
		return proj, serr.New(serr.BadModelName, "unknown model: "+modelName)
	}
	preErrs, preUnitErrs := diagnose(proj, target)
	log.Debugf("applying %d patch ops to model %s (dry_run=%v allow_errors=%v)",
		len(ops), modelName, opts.DryRun, opts.AllowErrors)

	next := proj.Clone()
	nm, _ := next.Model(modelName)

	for _, op := range ops {
		if err := applyOne(next, nm, op); err != nil {
			return proj, err
		}
		// set_sim_specs and rename may have swapped identity; re-fetch.
		nm, _ = next.Model(modelName)
	}

	postErrs, postUnitErrs := diagnose(next, nm)
	newErrs := diffDetails(postErrs, preErrs)
	newUnitErrs := diffDetails(postUnitErrs, preUnitErrs)
	all := append(append([]serr.Detail(nil), newErrs...), newUnitErrs...)

	var result *serr.Error
	if len(all) > 0 {
		result = &serr.Error{}
		for _, d := range all {
			result.Add(d)
		}
	}

	if !opts.AllowErrors && len(newErrs) > 0 {
		log.Debugf("rejecting patch: %d new errors", len(newErrs))
		return proj, result
	}
	if opts.DryRun {
		return proj, result
	}
	return next, result
}

// diagnose combines project-wide invariant checks (model.Project.Validate)
// with the resolve/units/compile pipeline, matching what get_errors/
// is_simulatable report for a live handle.
func diagnose(proj *model.Project, m *model.Model) (errs, unitErrs []serr.Detail) {
	diag := pipeline.Diagnose(proj, m)
	errs = append(errs, proj.Validate()...)
	errs = append(errs, diag.Errors...)
	unitErrs = append(unitErrs, diag.UnitErrors...)
	return errs, unitErrs
}

func detailKey(d serr.Detail) string {
	return d.Message + "\x00" + d.VarName + "\x00" + d.Code.String()
}

// diffDetails returns the entries of now not present in before, by a
// message/variable/code key (spans can shift harmlessly across an edit
// that doesn't touch the erroring equation, so they're not part of the
// key).
func diffDetails(now, before []serr.Detail) []serr.Detail {
	seen := make(map[string]bool, len(before))
	for _, d := range before {
		seen[detailKey(d)] = true
	}
	var out []serr.Detail
	for _, d := range now {
		if !seen[detailKey(d)] {
			out = append(out, d)
		}
	}
	return out
}

func applyOne(proj *model.Project, m *model.Model, op Op) *serr.Error {
	switch op.Op {
	case UpsertStock:
		if op.Variable == nil {
			return serr.New(serr.Generic, "upsertStock requires a variable")
		}
		m.Upsert(op.Variable.toVariable(model.VarStock))
	case UpsertFlow:
		if op.Variable == nil {
			return serr.New(serr.Generic, "upsertFlow requires a variable")
		}
		m.Upsert(op.Variable.toVariable(model.VarFlow))
	case UpsertAux:
		if op.Variable == nil {
			return serr.New(serr.Generic, "upsertAux requires a variable")
		}
		m.Upsert(op.Variable.toVariable(model.VarAux))
	case UpsertModule:
		if op.Variable == nil {
			return serr.New(serr.Generic, "upsertModule requires a variable")
		}
		m.Upsert(op.Variable.toVariable(model.VarModule))
	case DeleteVariable:
		m.Delete(op.Ident)
	case RenameVariable:
		renameVariable(m, op.From, op.To)
	case UpsertView:
		view := model.View{Index: op.Index}
		if op.View != nil {
			view.Elements = op.View.Elements
		}
		setView(m, view)
	case DeleteView:
		deleteView(m, op.Index)
	case UpdateStockFlows:
		v, ok := m.Get(op.Ident)
		if !ok || v.Kind != model.VarStock {
			return serr.New(serr.UnknownDependency, "updateStockFlows: unknown stock "+op.Ident)
		}
		v.Inflows = op.Inflows
		v.Outflows = op.Outflows
	case SetSimSpecs:
		if op.SimSpecs == nil {
			return serr.New(serr.BadSimSpecs, "setSimSpecs requires simSpecs")
		}
		s := op.SimSpecs
		dt, ok := model.ParseDt(s.Dt)
		if !ok {
			return serr.New(serr.BadSimSpecs, "setSimSpecs: malformed dt "+strconv.Quote(s.Dt))
		}
		proj.SimSpecs = model.SimSpecs{
			Start: s.Start, Stop: s.Stop,
			Dt:        dt,
			SaveStep:  s.SaveStep,
			TimeUnits: s.TimeUnits,
		}
		if s.Method == "rk4" {
			proj.SimSpecs.Method = model.RK4
		} else {
			proj.SimSpecs.Method = model.Euler
		}
		if d := proj.SimSpecs.Validate(); d != nil {
			return &serr.Error{Code: d.Code, Details: []serr.Detail{*d}}
		}
	default:
		return serr.Newf(serr.Generic, "unknown patch op %q", op.Op)
	}
	return nil
}

func setView(m *model.Model, v model.View) {
	for i := range m.Views {
		if m.Views[i].Index == v.Index {
			m.Views[i] = v
			return
		}
	}
	m.Views = append(m.Views, v)
}

func deleteView(m *model.Model, index int) {
	for i := range m.Views {
		if m.Views[i].Index == index {
			m.Views = append(m.Views[:i], m.Views[i+1:]...)
			return
		}
	}
}

// renameVariable rewrites the variable's own ident plus every raw-string
// reference across the model that canonicalizes to from's canonical form.
func renameVariable(m *model.Model, from, to string) {
	fromCanon := model.Canonical(from)

	if v, ok := m.Get(from); ok {
		m.Delete(from)
		v.Ident = to
		rewriteVariableRefs(v, fromCanon, to)
		m.Upsert(v)
	}

	for _, ident := range m.OrderedIdents() {
		v := m.Variables[ident]
		rewriteVariableRefs(v, fromCanon, to)
	}
}

func rewriteVariableRefs(v *model.Variable, fromCanon, to string) {
	v.Equation.Expr = rewriteIdent(v.Equation.Expr, fromCanon, to)
	v.Equation.InitialExpr = rewriteIdent(v.Equation.InitialExpr, fromCanon, to)
	v.Equation.Fallback = rewriteIdent(v.Equation.Fallback, fromCanon, to)
	for k, expr := range v.Equation.Elements {
		v.Equation.Elements[k] = rewriteIdent(expr, fromCanon, to)
	}
	for i, in := range v.Inflows {
		if model.Canonical(in) == fromCanon {
			v.Inflows[i] = to
		}
	}
	for i, out := range v.Outflows {
		if model.Canonical(out) == fromCanon {
			v.Outflows[i] = to
		}
	}
}

// rewriteIdent replaces every bare or quoted identifier in text whose
// canonical form equals fromCanon with to, leaving numbers, operators and
// non-matching identifiers untouched.
func rewriteIdent(text, fromCanon, to string) string {
	if text == "" {
		return text
	}
	runes := []rune(text)
	var b strings.Builder
	i := 0
	for i < len(runes) {
		r := runes[i]
		switch {
		case r == '\'':
			j := i + 1
			for j < len(runes) && runes[j] != '\'' {
				j++
			}
			if j >= len(runes) {
				b.WriteString(string(runes[i:]))
				i = len(runes)
				continue
			}
			word := string(runes[i+1 : j])
			if model.Canonical(word) == fromCanon {
				b.WriteString(quoteIfNeeded(to))
			} else {
				b.WriteString(string(runes[i : j+1]))
			}
			i = j + 1
		case isIdentStart(r):
			j := i
			for j < len(runes) && isIdentPart(runes[j]) {
				j++
			}
			word := string(runes[i:j])
			if model.Canonical(word) == fromCanon {
				b.WriteString(quoteIfNeeded(to))
			} else {
				b.WriteString(word)
			}
			i = j
		default:
			b.WriteRune(r)
			i++
		}
	}
	return b.String()
}

func isIdentStart(r rune) bool {
	return r == '_' || (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || r > 127
}

func isIdentPart(r rune) bool {
	return isIdentStart(r) || (r >= '0' && r <= '9')
}

func quoteIfNeeded(name string) string {
	for _, r := range name {
		if !isIdentPart(r) {
			return "'" + name + "'"
		}
	}
	return name
}

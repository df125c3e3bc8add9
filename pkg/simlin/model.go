package simlin

import (
	"strings"

	"github.com/segmentio/encoding/json"

	"github.com/bpowers/simlin/internal/eqn/ast"
	"github.com/bpowers/simlin/internal/eqn/parser"
	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/model"
	"github.com/bpowers/simlin/internal/resolve"
	"github.com/bpowers/simlin/internal/wire"
)

// VarMask selects a subset of variable kinds for get_var_count/get_var_names.
type VarMask uint32

// Mask bits, one per model.VarKind.
const (
	MaskStock VarMask = 1 << iota
	MaskFlow
	MaskAux
	MaskModule
	MaskAll = MaskStock | MaskFlow | MaskAux | MaskModule
)

func maskMatches(mask VarMask, kind model.VarKind) bool {
	switch kind {
	case model.VarStock:
		return mask&MaskStock != 0
	case model.VarFlow:
		return mask&MaskFlow != 0
	case model.VarAux:
		return mask&MaskAux != 0
	case model.VarModule:
		return mask&MaskModule != 0
	}
	return false
}

// Model is the per-model FFI handle. It holds a
// reference to its owning Project and looks the model up by name on every
// call, so it stays valid across a patch that replaces the Project's
// internal model.Model pointer.
type Model struct {
	refcounted
	proj *Project
	name string
}

func newModel(proj *Project, name string) *Model {
	return &Model{refcounted: newRefcounted(), proj: proj, name: name}
}

// Ref increments the refcount and returns m for chaining. The handle holds
// a single reference to its owning Project for its whole lifetime (taken
// when the handle is created), released by the last Unref.
func (m *Model) Ref() *Model {
	m.ref()
	return m
}

// Unref decrements the refcount; on last release it also releases the
// Project reference this handle was holding.
func (m *Model) Unref() {
	if m.unref() {
		m.proj.Unref()
	}
}

func (m *Model) lookup() (*model.Model, bool) {
	return m.proj.proj.Model(m.name)
}

// GetName returns the model's display name.
func (m *Model) GetName() string {
	return m.name
}

// GetVarCount returns the number of variables matching mask whose ident
// contains filter (a plain substring match; filter == "" matches all).
func (m *Model) GetVarCount(mask VarMask, filter string) int {
	return len(m.GetVarNames(mask, filter))
}

// GetVarNames returns the idents of variables matching mask and filter, in
// model declaration order.
func (m *Model) GetVarNames(mask VarMask, filter string) []string {
	m.proj.mu.Lock()
	defer m.proj.mu.Unlock()
	mm, ok := m.lookup()
	if !ok {
		return nil
	}
	var out []string
	for _, ident := range mm.OrderedIdents() {
		v := mm.Variables[ident]
		if !maskMatches(mask, v.Kind) {
			continue
		}
		if filter != "" && !strings.Contains(strings.ToLower(v.Ident), strings.ToLower(filter)) {
			continue
		}
		out = append(out, v.Ident)
	}
	return out
}

// GetIncomingLinks returns the canonical idents varName's equation directly
// references.
func (m *Model) GetIncomingLinks(varName string) []string {
	m.proj.mu.Lock()
	defer m.proj.mu.Unlock()
	mm, ok := m.lookup()
	if !ok {
		return nil
	}
	res := resolve.Resolve(m.proj.proj, mm)
	known := make(map[string]bool, len(mm.Variables))
	for ident := range mm.Variables {
		known[ident] = true
	}
	target := model.Canonical(varName)
	for _, in := range res.Instances {
		if in.Ident != target {
			continue
		}
		if in.Kind == model.VarStock {
			var out []string
			for _, f := range append(append([]string(nil), in.Inflows...), in.Outflows...) {
				out = append(out, f)
			}
			return out
		}
		return refsOf(in, known)
	}
	return nil
}

func refsOf(in resolve.Instance, known map[string]bool) []string {
	return dedupe(append(refExpr(in.Expr, known), refExpr(in.InitExpr, known)...))
}

func refExpr(e ast.Expr, known map[string]bool) []string {
	if e == nil {
		return nil
	}
	var out []string
	var walk func(ast.Expr)
	walk = func(n ast.Expr) {
		switch v := n.(type) {
		case *ast.Ident:
			if known[model.Canonical(v.Name)] {
				out = append(out, model.Canonical(v.Name))
			}
		case *ast.Index:
			if known[model.Canonical(v.Name)] {
				out = append(out, model.Canonical(v.Name))
			}
			for _, s := range v.Subs {
				if s.Kind == ast.SubExpr {
					walk(s.Expr)
				}
			}
		case *ast.BinOp:
			walk(v.Left)
			walk(v.Right)
		case *ast.UnaryOp:
			walk(v.Arg)
		case *ast.Transpose:
			walk(v.Arg)
		case *ast.If:
			walk(v.Cond)
			walk(v.Then)
			walk(v.Else)
		case *ast.Call:
			for _, a := range v.Args {
				walk(a)
			}
		}
	}
	walk(e)
	return out
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

// GetLinks returns every step-graph edge in the model.
func (m *Model) GetLinks() (*Links, *Error) {
	m.proj.mu.Lock()
	defer m.proj.mu.Unlock()
	mm, ok := m.lookup()
	if !ok {
		return nil, newError(serr.New(serr.BadModelName, "unknown model: "+m.name))
	}
	res := resolve.Resolve(m.proj.proj, mm)
	return newLinks(stepLinks(mm, res)), nil
}

// GetLatexEquation renders ident's equation as a LaTeX expression.
// Arrayed equations render their fallback, or, if no fallback is set, the
// equation of one of their elements; which element is not defined.
func (m *Model) GetLatexEquation(ident string) (string, *Error) {
	m.proj.mu.Lock()
	defer m.proj.mu.Unlock()
	mm, ok := m.lookup()
	if !ok {
		return "", newError(serr.New(serr.BadModelName, "unknown model: "+m.name))
	}
	v, ok := mm.Get(ident)
	if !ok {
		return "", newError(serr.New(serr.DoesNotExist, "unknown variable: "+ident))
	}
	if v.Kind == model.VarModule {
		return "", newError(serr.New(serr.DoesNotExist, "module "+ident+" has no equation"))
	}
	expr := v.Equation.Expr
	if v.Equation.Kind == model.EqArrayed {
		expr = v.Equation.Fallback
		for _, e := range v.Equation.Elements {
			if expr == "" {
				expr = e
			}
			break
		}
	}
	if expr == "" {
		return "", nil
	}
	e, errs := parser.Parse(expr)
	if len(errs) > 0 {
		ferr := &serr.Error{}
		for _, d := range errs {
			ferr.Add(d)
		}
		return "", newError(ferr)
	}
	return toLatex(e), nil
}

func toLatex(n ast.Expr) string {
	switch v := n.(type) {
	case nil:
		return ""
	case *ast.Number:
		return formatFloat(v.Value)
	case *ast.Ident:
		return latexIdent(v.Name)
	case *ast.Index:
		subs := make([]string, len(v.Subs))
		for i, s := range v.Subs {
			subs[i] = toLatexSub(s)
		}
		return latexIdent(v.Name) + "_{" + strings.Join(subs, ",") + "}"
	case *ast.UnaryOp:
		if v.Op == "-" {
			return "-" + toLatex(v.Arg)
		}
		return v.Op + toLatex(v.Arg)
	case *ast.Transpose:
		return toLatex(v.Arg) + "^{T}"
	case *ast.BinOp:
		switch v.Op {
		case "/":
			return "\\frac{" + toLatex(v.Left) + "}{" + toLatex(v.Right) + "}"
		case "^":
			return toLatex(v.Left) + "^{" + toLatex(v.Right) + "}"
		default:
			return toLatex(v.Left) + " " + latexOp(v.Op) + " " + toLatex(v.Right)
		}
	case *ast.If:
		return "\\begin{cases}" + toLatex(v.Then) + " & " + toLatex(v.Cond) + " \\\\ " + toLatex(v.Else) + " & \\text{otherwise}\\end{cases}"
	case *ast.Call:
		args := make([]string, len(v.Args))
		for i, a := range v.Args {
			args[i] = toLatex(a)
		}
		return "\\operatorname{" + v.Func + "}(" + strings.Join(args, ", ") + ")"
	}
	return ""
}

func toLatexSub(s *ast.Subscript) string {
	switch s.Kind {
	case ast.SubExpr:
		return toLatex(s.Expr)
	case ast.SubWildcard:
		return "*"
	case ast.SubWildcardDim:
		return "*:" + s.Dim
	case ast.SubRange:
		return s.From + ":" + s.To
	case ast.SubPosition:
		return "@" + formatFloat(float64(s.Position))
	}
	return ""
}

func latexIdent(name string) string {
	return strings.ReplaceAll(strings.Trim(name, "'"), "_", "\\_")
}

func latexOp(op string) string {
	switch op {
	case "<=":
		return "\\leq"
	case ">=":
		return "\\geq"
	case "<>":
		return "\\neq"
	case "&&":
		return "\\land"
	case "||":
		return "\\lor"
	default:
		return op
	}
}

func formatFloat(f float64) string {
	s := strings.TrimRight(strings.TrimRight(jsonNumber(f), "0"), ".")
	if s == "" || s == "-" {
		s = "0"
	}
	return s
}

func jsonNumber(f float64) string {
	b, _ := json.Marshal(f)
	return string(b)
}

// GetVarJSON returns the native-JSON encoding of a single variable.
func (m *Model) GetVarJSON(ident string) ([]byte, *Error) {
	m.proj.mu.Lock()
	defer m.proj.mu.Unlock()
	mm, ok := m.lookup()
	if !ok {
		return nil, newError(serr.New(serr.BadModelName, "unknown model: "+m.name))
	}
	v, ok := mm.Get(ident)
	if !ok {
		return nil, newError(serr.New(serr.DoesNotExist, "unknown variable: "+ident))
	}
	b, err := wire.MarshalVariable(v)
	if err != nil {
		return nil, newError(serr.New(serr.Generic, err.Error()))
	}
	return b, nil
}

// GetSimSpecsJSON returns the project's sim-specs, native-JSON encoded.
func (m *Model) GetSimSpecsJSON() ([]byte, *Error) {
	m.proj.mu.Lock()
	defer m.proj.mu.Unlock()
	b, err := wire.MarshalSimSpecs(m.proj.proj.SimSpecs)
	if err != nil {
		return nil, newError(serr.New(serr.Generic, err.Error()))
	}
	return b, nil
}

func (m *Model) varsJSON(kind model.VarKind) ([]byte, *Error) {
	m.proj.mu.Lock()
	defer m.proj.mu.Unlock()
	mm, ok := m.lookup()
	if !ok {
		return nil, newError(serr.New(serr.BadModelName, "unknown model: "+m.name))
	}
	var vars []*model.Variable
	for _, ident := range mm.OrderedIdents() {
		if v := mm.Variables[ident]; v.Kind == kind {
			vars = append(vars, v)
		}
	}
	b, err := wire.MarshalVariables(vars)
	if err != nil {
		return nil, newError(serr.New(serr.Generic, err.Error()))
	}
	return b, nil
}

// GetStocksJSON, GetFlowsJSON and GetAuxsJSON return native-JSON arrays of
// each variable kind.
func (m *Model) GetStocksJSON() ([]byte, *Error) { return m.varsJSON(model.VarStock) }
func (m *Model) GetFlowsJSON() ([]byte, *Error)  { return m.varsJSON(model.VarFlow) }
func (m *Model) GetAuxsJSON() ([]byte, *Error)   { return m.varsJSON(model.VarAux) }

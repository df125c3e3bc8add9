// Package resolve performs name resolution and subscript/array expansion:
// every ApplyToAll equation is materialized once per
// instance over the Cartesian product of its dimensions, Arrayed equations
// are checked for coverage, and each equation's text is parsed into an AST.
// Subscripts inside *references* are left as written here and lowered later,
// by the compiler: a position subscript (@N) selects the element at that
// position, and wildcard and range subscripts inside a reduction such as SUM
// become iteration over the matching instances.
package resolve

import (
	"sort"
	"strconv"
	"strings"

	"github.com/bpowers/simlin/internal/eqn/ast"
	"github.com/bpowers/simlin/internal/eqn/parser"
	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/model"
)

// Instance is one concrete (variable, subscript-tuple) evaluation unit. A
// scalar variable has exactly one Instance with a nil Tuple.
type Instance struct {
	Ident       string   // canonical variable ident
	Tuple       []string // canonical element names, in Dims order; nil for scalar
	Dims        []string // dimension names this instance's variable is arrayed over
	Kind        model.VarKind
	Expr        ast.Expr
	InitExpr    ast.Expr // stocks only; nil if the stock has no separate initial equation
	Units       string
	NonNegative bool
	GF          *model.GraphicalFunction
	Inflows     []string
	Outflows    []string
	ModelName   string
	References  []model.ModuleRef
}

// Key returns the stable column key for this instance: the ident alone for
// scalars, or "ident[a,b]" for an array element.
func (in Instance) Key() string {
	if len(in.Tuple) == 0 {
		return in.Ident
	}
	return in.Ident + "[" + strings.Join(in.Tuple, ",") + "]"
}

// VarDims maps a canonical variable ident to the dimension names it is
// arrayed over (nil/absent for scalars). Resolve returns this alongside the
// instance list so later stages (the compiler wiring stock<->flow instances
// together, the unit checker) can look up a referenced variable's shape
// without re-deriving it.
type VarDims map[string][]string

// Result is everything Resolve produces for one Model.
type Result struct {
	Instances []Instance
	Dims      VarDims
	Errors    []serr.Detail
}

// Resolve expands every variable in m into its concrete Instances.
func Resolve(proj *model.Project, m *model.Model) Result {
	var res Result
	res.Dims = make(VarDims)

	// First pass: record each variable's dimension shape so forward and
	// backward references alike (inflows referencing a flow defined later
	// in iteration order, array reads of another array) can see it.
	for _, ident := range m.OrderedIdents() {
		v := m.Variables[ident]
		res.Dims[ident] = equationDims(v.Equation)
	}

	for _, ident := range m.OrderedIdents() {
		v := m.Variables[ident]
		instances, errs := expandVariable(proj, v)
		res.Instances = append(res.Instances, instances...)
		res.Errors = append(res.Errors, errs...)
	}

	for _, in := range res.Instances {
		res.Errors = append(res.Errors, checkReferences(res.Dims, in, in.Expr)...)
		res.Errors = append(res.Errors, checkReferences(res.Dims, in, in.InitExpr)...)
	}
	return res
}

// checkReferences reports UnknownDependency for every Ident/Index reference
// in expr that names neither a known variable, "time"/"dt", nor a valid
// module-output reference ("module.output"). Bare-Ident subscripts (e.g. the
// "regions" in pop[regions]) are dimension or element names, not variable
// references, and are never checked here.
func checkReferences(dims VarDims, owner Instance, expr ast.Expr) []serr.Detail {
	if expr == nil {
		return nil
	}
	seen := make(map[string]bool)
	var details []serr.Detail

	check := func(name string) {
		c := model.Canonical(name)
		if c == "time" || c == "dt" || seen[c] {
			return
		}
		if _, ok := dims[c]; ok {
			return
		}
		if mod, _, ok := model.CanonicalModuleRef(c); ok {
			if _, exists := dims[mod]; exists {
				return
			}
		}
		seen[c] = true
		details = append(details, serr.Detail{
			Code: serr.UnknownDependency, Kind: serr.KindVariable, VarName: owner.Ident,
			Message: owner.Ident + " references unknown variable " + name,
		})
	}

	var walk func(n ast.Expr)
	walk = func(n ast.Expr) {
		if n == nil {
			return
		}
		switch e := n.(type) {
		case *ast.Number:
		case *ast.Ident:
			check(e.Name)
		case *ast.BinOp:
			walk(e.Left)
			walk(e.Right)
		case *ast.UnaryOp:
			walk(e.Arg)
		case *ast.Transpose:
			walk(e.Arg)
		case *ast.If:
			walk(e.Cond)
			walk(e.Then)
			walk(e.Else)
		case *ast.Call:
			for _, a := range e.Args {
				walk(a)
			}
		case *ast.Index:
			check(e.Name)
			for _, s := range e.Subs {
				if s.Kind != ast.SubExpr {
					continue
				}
				if _, ok := s.Expr.(*ast.Ident); ok {
					continue
				}
				walk(s.Expr)
			}
		}
	}
	walk(expr)
	return details
}

func equationDims(eq model.Equation) []string {
	switch eq.Kind {
	case model.EqApplyToAll:
		return eq.Dimensions
	case model.EqArrayed:
		return eq.Dims
	default:
		return nil
	}
}

func expandVariable(proj *model.Project, v *model.Variable) ([]Instance, []serr.Detail) {
	var errs []serr.Detail
	ident := v.CanonicalIdent()

	if v.Kind == model.VarModule {
		return []Instance{{
			Ident: ident, Kind: v.Kind, ModelName: v.ModelName, References: v.References,
		}}, nil
	}

	if v.GF != nil {
		if d := v.GF.Validate(v.Ident); d != nil {
			errs = append(errs, *d)
		}
	}

	switch v.Equation.Kind {
	case model.EqScalar:
		expr, perrs := parseAttached(v.Ident, v.Equation.Expr)
		errs = append(errs, perrs...)
		var initExpr ast.Expr
		if v.Kind == model.VarStock && v.Equation.InitialExpr != "" {
			ie, perrs := parseAttached(v.Ident, v.Equation.InitialExpr)
			errs = append(errs, perrs...)
			initExpr = ie
		}
		return []Instance{instanceOf(v, nil, nil, expr, initExpr)}, errs

	case model.EqApplyToAll:
		dimObjs, derrs := lookupDims(proj, v.Ident, v.Equation.Dimensions)
		errs = append(errs, derrs...)
		if len(dimObjs) > 2 {
			errs = append(errs, serr.Detail{Code: serr.ArraysMultiDimensionalNotImplemented, Kind: serr.KindVariable, VarName: v.Ident,
				Message: "variable " + v.Ident + " has rank " + strconv.Itoa(len(dimObjs)) + "; only rank 1-2 arrays are supported"})
			return nil, errs
		}
		expr, perrs := parseAttached(v.Ident, v.Equation.Expr)
		errs = append(errs, perrs...)
		var initExpr ast.Expr
		if v.Kind == model.VarStock && v.Equation.InitialExpr != "" {
			ie, perrs := parseAttached(v.Ident, v.Equation.InitialExpr)
			errs = append(errs, perrs...)
			initExpr = ie
		}
		excluded := make(map[string]bool, len(v.Equation.Exceptions))
		for _, e := range v.Equation.Exceptions {
			excluded[model.TupleKey(e)] = true
		}
		var out []Instance
		for _, tuple := range cartesian(dimObjs) {
			if excluded[model.TupleKey(tuple)] {
				continue
			}
			out = append(out, instanceOf(v, v.Equation.Dimensions, tuple, expr, initExpr))
		}
		return out, errs

	case model.EqArrayed:
		dimObjs, derrs := lookupDims(proj, v.Ident, v.Equation.Dims)
		errs = append(errs, derrs...)
		if len(dimObjs) > 2 {
			errs = append(errs, serr.Detail{Code: serr.ArraysMultiDimensionalNotImplemented, Kind: serr.KindVariable, VarName: v.Ident,
				Message: "variable " + v.Ident + " has rank " + strconv.Itoa(len(dimObjs)) + "; only rank 1-2 arrays are supported"})
			return nil, errs
		}
		var fallback ast.Expr
		if v.Equation.Fallback != "" {
			fb, perrs := parseAttached(v.Ident, v.Equation.Fallback)
			errs = append(errs, perrs...)
			fallback = fb
		}
		var out []Instance
		for _, tuple := range cartesian(dimObjs) {
			exprText, ok := v.Equation.Elements[model.TupleKey(tuple)]
			var expr ast.Expr
			if ok {
				e, perrs := parseAttached(v.Ident, exprText)
				errs = append(errs, perrs...)
				expr = e
			} else if fallback != nil {
				expr = fallback
			} else {
				errs = append(errs, serr.Detail{Code: serr.MismatchedDimensions, Kind: serr.KindVariable, VarName: v.Ident,
					Message: "variable " + v.Ident + " has no equation for subscript [" + strings.Join(tuple, ",") + "]"})
				continue
			}
			var initExpr ast.Expr
			if v.Kind == model.VarStock && v.Equation.InitialExpr != "" {
				ie, perrs := parseAttached(v.Ident, v.Equation.InitialExpr)
				errs = append(errs, perrs...)
				initExpr = ie
			}
			out = append(out, instanceOf(v, v.Equation.Dims, tuple, expr, initExpr))
		}
		return out, errs
	}
	return nil, errs
}

func instanceOf(v *model.Variable, dims, tuple []string, expr, initExpr ast.Expr) Instance {
	return Instance{
		Ident: v.CanonicalIdent(), Tuple: tuple, Dims: dims, Kind: v.Kind,
		Expr: expr, InitExpr: initExpr, Units: v.Units, NonNegative: v.NonNegative,
		GF: v.GF, Inflows: v.Inflows, Outflows: v.Outflows,
	}
}

func parseAttached(varName, text string) (ast.Expr, []serr.Detail) {
	expr, errs := parser.Parse(text)
	for i := range errs {
		errs[i].VarName = varName
		if errs[i].Kind == serr.KindProject {
			errs[i].Kind = serr.KindVariable
		}
	}
	return expr, errs
}

func lookupDims(proj *model.Project, varName string, names []string) ([]*model.Dimension, []serr.Detail) {
	var dims []*model.Dimension
	var errs []serr.Detail
	for _, n := range names {
		d, ok := proj.Dimensions.Get(n)
		if !ok {
			errs = append(errs, serr.Detail{Code: serr.BadDimensionName, Kind: serr.KindVariable, VarName: varName,
				Message: "unknown dimension " + n})
			continue
		}
		dims = append(dims, d)
	}
	return dims, errs
}

// cartesian returns every element tuple across dims, in row-major order with
// the first dimension varying slowest (so iteration order is deterministic
// across runs, matching the "topological order is deterministic" testable
// property).
func cartesian(dims []*model.Dimension) [][]string {
	if len(dims) == 0 {
		return nil
	}
	tuples := [][]string{{}}
	for _, d := range dims {
		var next [][]string
		for _, t := range tuples {
			for i := 0; i < d.Len(); i++ {
				nt := append(append([]string{}, t...), d.ElementAt(i))
				next = append(next, nt)
			}
		}
		tuples = next
	}
	return tuples
}

// SortedKeys is a small helper used by callers that need deterministic
// iteration over a VarDims map.
func (d VarDims) SortedKeys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

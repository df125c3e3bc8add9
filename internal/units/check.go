package units

import (
	"math/big"

	"github.com/bpowers/simlin/internal/eqn/ast"
	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/model"
	"github.com/bpowers/simlin/internal/resolve"
)

// builtinSignature describes how a built-in's result unit derives from its
// argument units. resultFromArg names the argument index whose unit the
// result copies (-1 for a dimensionless result); timeArg names an argument
// index that must carry time units (-1 if none does).
type builtinSignature struct {
	resultFromArg int // -1 => dimensionless result
	timeArg       int // -1 => no argument is required to carry time units
}

var builtins = map[string]builtinSignature{
	"smooth": {0, 1}, "smooth3": {0, 1}, "smoothi": {0, 1},
	"delay1": {0, 1}, "delay3": {0, 1}, "delayn": {0, 1}, "delay_fixed": {0, 1},
	"trend": {0, 1}, "forecast": {0, 1},
	"pulse": {0, -1}, "ramp": {0, -1}, "step": {0, -1},
	"init": {0, -1}, "active_initial": {0, -1}, "sample_if_true": {1, -1},
	"min": {0, -1}, "max": {0, -1}, "abs": {0, -1}, "int": {0, -1},
	"safediv": {0, -1},
	"sin": {-1, -1}, "cos": {-1, -1}, "exp": {-1, -1}, "ln": {-1, -1}, "log10": {-1, -1}, "sqrt": {-1, -1},
	"sum": {0, -1}, "prod": {0, -1}, "elmcount": {-1, -1},
	"random_uniform": {-1, -1}, "random_normal": {-1, -1}, "random_pink": {-1, -1},
}

// Checker evaluates unit expressions over a model's instances.
type Checker struct {
	declared map[string]Expr // canonical ident -> declared unit (absent => unspecified)
	timeUnit Expr
}

// NewChecker builds a Checker from a model's declared variable units and the
// project's time unit.
func NewChecker(m *model.Model, timeUnit Expr) *Checker {
	c := &Checker{declared: make(map[string]Expr), timeUnit: timeUnit}
	for ident, v := range m.Variables {
		if v.Units == "" {
			continue
		}
		u, detail := ParseDefinition(v.Units)
		if detail == nil {
			c.declared[ident] = u
		}
	}
	return c
}

// Check walks every instance's expression, returning Consistency/Inference
// problems. It never returns an error that should block simulation — unit
// errors are a separate, non-fatal track.
func (c *Checker) Check(res resolve.Result) []serr.Detail {
	var details []serr.Detail
	for _, in := range res.Instances {
		if in.Kind == model.VarModule || in.Expr == nil {
			continue
		}
		inferred, problems := c.infer(in.Ident, in.Expr)
		details = append(details, problems...)

		if in.Kind == model.VarStock {
			if in.InitExpr != nil {
				_, iproblems := c.infer(in.Ident, in.InitExpr)
				details = append(details, iproblems...)
			}
			if declared, ok := c.declared[in.Ident]; ok {
				expected := inferred.Mul(c.timeUnit)
				if !declared.Equal(expected) && !inferred.IsDimensionless() {
					details = append(details, serr.Detail{
						Code: serr.UnitDefinitionErrors, Kind: serr.KindUnits, UnitKind: serr.UnitConsistency,
						VarName: in.Ident,
						Message: "stock " + in.Ident + " declared units " + declared.String() + " but net flow implies " + expected.String(),
					})
				}
			}
			continue
		}
		if declared, ok := c.declared[in.Ident]; ok && !declared.IsDimensionless() && !inferred.IsDimensionless() && !declared.Equal(inferred) {
			details = append(details, serr.Detail{
				Code: serr.UnitDefinitionErrors, Kind: serr.KindUnits, UnitKind: serr.UnitInference,
				VarName: in.Ident,
				Message: "variable " + in.Ident + " declared units " + declared.String() + " but equation implies " + inferred.String(),
			})
		}
	}
	return details
}

func (c *Checker) infer(owner string, e ast.Expr) (Expr, []serr.Detail) {
	switch n := e.(type) {
	case *ast.Number:
		return Dimensionless(), nil
	case *ast.Ident:
		if u, ok := c.declared[model.Canonical(n.Name)]; ok {
			return u, nil
		}
		return Dimensionless(), nil
	case *ast.Index:
		if u, ok := c.declared[model.Canonical(n.Name)]; ok {
			return u, nil
		}
		return Dimensionless(), nil
	case *ast.UnaryOp:
		return c.infer(owner, n.Arg)
	case *ast.Transpose:
		return c.infer(owner, n.Arg)
	case *ast.If:
		_, cerrs := c.infer(owner, n.Cond)
		t, terrs := c.infer(owner, n.Then)
		el, eerrs := c.infer(owner, n.Else)
		errs := append(append(cerrs, terrs...), eerrs...)
		if !t.IsDimensionless() && !el.IsDimensionless() && !t.Equal(el) {
			errs = append(errs, serr.Detail{
				Code: serr.UnitDefinitionErrors, Kind: serr.KindUnits, UnitKind: serr.UnitConsistency, VarName: owner,
				Message: "if/then/else branches have mismatched units in " + owner,
			})
		}
		return t, errs
	case *ast.BinOp:
		l, lerrs := c.infer(owner, n.Left)
		r, rerrs := c.infer(owner, n.Right)
		errs := append(lerrs, rerrs...)
		switch n.Op {
		case "+", "-", "<", "<=", ">", ">=", "=", "<>":
			if !l.IsDimensionless() && !r.IsDimensionless() && !l.Equal(r) {
				errs = append(errs, serr.Detail{
					Code: serr.UnitDefinitionErrors, Kind: serr.KindUnits, UnitKind: serr.UnitConsistency, VarName: owner,
					Message: "mismatched units (" + l.String() + " vs " + r.String() + ") in " + owner,
				})
			}
			if l.IsDimensionless() {
				return r, errs
			}
			return l, errs
		case "*":
			return l.Mul(r), errs
		case "/":
			return l.Div(r), errs
		case "%":
			return l, errs
		case "^":
			if num, ok := n.Right.(*ast.Number); ok {
				return l.Pow(big.NewRat(0, 1).SetFloat64(num.Value)), errs
			}
			if !l.IsDimensionless() {
				errs = append(errs, serr.Detail{
					Code: serr.UnitDefinitionErrors, Kind: serr.KindUnits, UnitKind: serr.UnitInference, VarName: owner,
					Message: "non-constant exponent requires a dimensionless base in " + owner,
				})
			}
			return Dimensionless(), errs
		case "&&", "||":
			return Dimensionless(), errs
		}
		return Dimensionless(), errs
	case *ast.Call:
		var errs []serr.Detail
		argUnits := make([]Expr, len(n.Args))
		for i, a := range n.Args {
			u, aerrs := c.infer(owner, a)
			argUnits[i] = u
			errs = append(errs, aerrs...)
		}
		sig, ok := builtins[canonicalBuiltin(n.Func)]
		if !ok {
			return Dimensionless(), errs
		}
		if sig.timeArg >= 0 && sig.timeArg < len(argUnits) {
			if !argUnits[sig.timeArg].Equal(c.timeUnit) && !argUnits[sig.timeArg].IsDimensionless() {
				errs = append(errs, serr.Detail{
					Code: serr.UnitDefinitionErrors, Kind: serr.KindUnits, UnitKind: serr.UnitConsistency, VarName: owner,
					Message: n.Func + " expects a time-unit argument in " + owner,
				})
			}
		}
		if sig.resultFromArg >= 0 && sig.resultFromArg < len(argUnits) {
			return argUnits[sig.resultFromArg], errs
		}
		return Dimensionless(), errs
	}
	return Dimensionless(), nil
}

func canonicalBuiltin(name string) string {
	return model.Canonical(name)
}

// Package units implements the unit algebra and checker:
// unit expressions form a free abelian group over atomic unit symbols,
// represented as sparse rational-exponent maps, and checking propagates
// those maps across an equation's AST the same way the bytecode compiler
// later walks the AST to emit instructions.
package units

import (
	"math/big"
	"sort"
	"strings"

	"github.com/bpowers/simlin/internal/eqn/ast"
	"github.com/bpowers/simlin/internal/eqn/parser"
	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/model"
)

// Expr is a unit expression: atomic symbol -> rational exponent. A nil or
// empty Expr is dimensionless.
type Expr map[string]*big.Rat

// Dimensionless is the empty unit.
func Dimensionless() Expr { return Expr{} }

// Clone returns an independent copy.
func (u Expr) Clone() Expr {
	out := make(Expr, len(u))
	for k, v := range u {
		out[k] = new(big.Rat).Set(v)
	}
	return out
}

// Mul combines exponents additively (unit multiplication).
func (u Expr) Mul(o Expr) Expr {
	out := u.Clone()
	for k, v := range o {
		if cur, ok := out[k]; ok {
			cur.Add(cur, v)
			if cur.Sign() == 0 {
				delete(out, k)
			}
		} else {
			out[k] = new(big.Rat).Set(v)
		}
	}
	return out
}

// Div combines exponents subtractively (unit division).
func (u Expr) Div(o Expr) Expr {
	neg := make(Expr, len(o))
	for k, v := range o {
		neg[k] = new(big.Rat).Neg(v)
	}
	return u.Mul(neg)
}

// Pow scales every exponent by n (unit exponentiation by a constant).
func (u Expr) Pow(n *big.Rat) Expr {
	out := make(Expr, len(u))
	for k, v := range u {
		nv := new(big.Rat).Mul(v, n)
		if nv.Sign() != 0 {
			out[k] = nv
		}
	}
	return out
}

// Equal reports whether two unit expressions are the same after
// simplification (every exponent matches; absent == zero).
func (u Expr) Equal(o Expr) bool {
	seen := make(map[string]bool, len(u)+len(o))
	for k := range u {
		seen[k] = true
	}
	for k := range o {
		seen[k] = true
	}
	for k := range seen {
		a, aok := u[k]
		b, bok := o[k]
		switch {
		case aok && bok:
			if a.Cmp(b) != 0 {
				return false
			}
		case aok && !bok:
			if a.Sign() != 0 {
				return false
			}
		case bok && !aok:
			if b.Sign() != 0 {
				return false
			}
		}
	}
	return true
}

// IsDimensionless reports whether every exponent is zero/absent.
func (u Expr) IsDimensionless() bool {
	for _, v := range u {
		if v.Sign() != 0 {
			return false
		}
	}
	return true
}

// String renders as a product of powers, e.g. "kg*m/s^2".
func (u Expr) String() string {
	if u.IsDimensionless() {
		return "1"
	}
	names := make([]string, 0, len(u))
	for k, v := range u {
		if v.Sign() != 0 {
			names = append(names, k)
		}
	}
	sort.Strings(names)
	var num, den []string
	for _, n := range names {
		e := u[n]
		if e.Sign() > 0 {
			if e.IsInt() && e.Num().Int64() == 1 {
				num = append(num, n)
			} else {
				num = append(num, n+"^"+e.RatString())
			}
		} else {
			ne := new(big.Rat).Neg(e)
			if ne.IsInt() && ne.Num().Int64() == 1 {
				den = append(den, n)
			} else {
				den = append(den, n+"^"+ne.RatString())
			}
		}
	}
	s := strings.Join(num, "*")
	if s == "" {
		s = "1"
	}
	if len(den) > 0 {
		s += "/" + strings.Join(den, "/")
	}
	return s
}

// ParseDefinition parses a unit-definition equation string ("kg*m/s^2") into
// an Expr.
func ParseDefinition(text string) (Expr, *serr.Detail) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Dimensionless(), nil
	}
	expr, errs := parser.Parse(text)
	if len(errs) > 0 {
		return nil, &serr.Detail{Code: serr.UnitDefinitionErrors, Kind: serr.KindUnits, UnitKind: serr.UnitDefinition, Message: errs[0].Message}
	}
	u, err := evalUnitExpr(expr)
	if err != nil {
		return nil, &serr.Detail{Code: serr.UnitDefinitionErrors, Kind: serr.KindUnits, UnitKind: serr.UnitDefinition, Message: err.Error()}
	}
	return u, nil
}

type unitError struct{ msg string }

func (e unitError) Error() string { return e.msg }

func evalUnitExpr(e ast.Expr) (Expr, error) {
	switch n := e.(type) {
	case *ast.Number:
		return Dimensionless(), nil
	case *ast.Ident:
		return Expr{model.Canonical(n.Name): big.NewRat(1, 1)}, nil
	case *ast.UnaryOp:
		return evalUnitExpr(n.Arg)
	case *ast.BinOp:
		l, err := evalUnitExpr(n.Left)
		if err != nil {
			return nil, err
		}
		r, err := evalUnitExpr(n.Right)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case "*":
			return l.Mul(r), nil
		case "/":
			return l.Div(r), nil
		case "^":
			num, ok := n.Right.(*ast.Number)
			if !ok {
				return nil, unitError{"unit exponent must be a constant"}
			}
			return l.Pow(big.NewRat(0, 1).SetFloat64(num.Value)), nil
		default:
			return nil, unitError{"unsupported operator in unit equation: " + n.Op}
		}
	default:
		return nil, unitError{"unsupported construct in unit equation"}
	}
}

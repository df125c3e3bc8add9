package depgraph

import (
	"github.com/bpowers/simlin/internal/eqn/ast"
	"github.com/bpowers/simlin/internal/model"
)

// References walks expr and returns the canonical idents it mentions that
// are present in known (the set of variable idents defined in the owning
// model, including module-output references written "module.output").
// Built-in function names (the Func of a Call) and dimension/element names
// used as subscript indices are not variables and are never returned.
func References(expr ast.Expr, known map[string]bool) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func(n ast.Expr)
	walk = func(n ast.Expr) {
		if n == nil {
			return
		}
		switch e := n.(type) {
		case *ast.Number:
		case *ast.Ident:
			c := model.Canonical(e.Name)
			if known[c] && !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
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
			c := model.Canonical(e.Name)
			if known[c] && !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
			for _, s := range e.Subs {
				if s.Kind == ast.SubExpr {
					walk(s.Expr)
				}
			}
		}
	}
	walk(expr)
	return out
}

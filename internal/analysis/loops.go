// Package analysis enumerates structural feedback loops over a model's
// step-dependency graph and assigns each a polarity, the way
// the compiler's own dependency pass (internal/depgraph) already finds
// strongly-connected components — loop enumeration just needs the
// elementary cycles within each component, not merely "is there a cycle".
package analysis

import (
	"sort"
	"strconv"

	"github.com/bits-and-blooms/bitset"
	"github.com/bpowers/simlin/internal/depgraph"
	"github.com/bpowers/simlin/internal/eqn/ast"
	"github.com/bpowers/simlin/internal/model"
	"github.com/bpowers/simlin/internal/resolve"
)

// Polarity is a loop or edge's reinforcing/balancing sign.
type Polarity int

// Polarity values.
const (
	PolarityUnknown Polarity = iota
	PolarityPositive
	PolarityNegative
)

// Edge is one step-graph dependency edge (From reads To) with its assigned
// polarity.
type Edge struct {
	From, To string
	Polarity Polarity
}

// Loop is one elementary cycle over the step graph, in traversal order,
// with a stable id assigned by discovery order over the canonical vertex
// ordering.
type Loop struct {
	ID       string
	Vertices []string
	Edges    []Edge
	Polarity Polarity
}

// FindLoops enumerates every elementary cycle in g using Johnson's
// algorithm, restricted at each outer iteration to the subgraph induced by
// vertices at or after the current start vertex in canonical order.
func FindLoops(g *depgraph.Graph, res resolve.Result) []Loop {
	order := append([]string(nil), g.Idents...)
	sort.Strings(order)
	indexOf := make(map[string]int, len(order))
	for i, v := range order {
		indexOf[v] = i
	}

	exprByIdent := make(map[string]ast.Expr, len(res.Instances))
	for _, in := range res.Instances {
		if in.Expr != nil {
			exprByIdent[in.Ident] = in.Expr
		}
	}

	var cycles [][]string
	for i, s := range order {
		blocked := bitset.New(uint(len(order)))
		blockMap := make(map[string][]string)
		var stack []string

		var unblock func(v string)
		unblock = func(v string) {
			blocked.Clear(uint(indexOf[v]))
			for _, w := range blockMap[v] {
				if blocked.Test(uint(indexOf[w])) {
					unblock(w)
				}
			}
			blockMap[v] = nil
		}

		var circuit func(v string) bool
		circuit = func(v string) bool {
			found := false
			stack = append(stack, v)
			blocked.Set(uint(indexOf[v]))

			for _, w := range g.Successors(v) {
				if indexOf[w] < i {
					continue
				}
				if w == s {
					cycles = append(cycles, append([]string(nil), stack...))
					found = true
				} else if !blocked.Test(uint(indexOf[w])) {
					if circuit(w) {
						found = true
					}
				}
			}

			if found {
				unblock(v)
			} else {
				for _, w := range g.Successors(v) {
					if indexOf[w] < i {
						continue
					}
					blockMap[w] = append(blockMap[w], v)
				}
			}
			stack = stack[:len(stack)-1]
			return found
		}
		circuit(s)
	}

	loops := make([]Loop, 0, len(cycles))
	for i, verts := range cycles {
		var edges []Edge
		polarity := PolarityPositive
		for j, v := range verts {
			to := verts[(j+1)%len(verts)]
			p := edgePolarity(exprByIdent[v], to)
			edges = append(edges, Edge{From: v, To: to, Polarity: p})
			polarity = combine(polarity, p)
		}
		loops = append(loops, Loop{ID: loopID(i), Vertices: verts, Edges: edges, Polarity: polarity})
	}
	return loops
}

func loopID(i int) string {
	return "L" + strconv.Itoa(i+1)
}

func combine(a, b Polarity) Polarity {
	if a == PolarityUnknown || b == PolarityUnknown {
		return PolarityUnknown
	}
	if a == b {
		return PolarityPositive
	}
	return PolarityNegative
}

// edgePolarity estimates the sign of ∂from/∂to for one step-graph edge by
// statically inspecting how `to`'s ident appears in from's equation:
// addition/plain multiplication keeps sign, subtraction/negation/division-
// as-denominator flips it, and anything nonlinear or appearing with mixed
// signs is Unknown.
func edgePolarity(expr ast.Expr, target string) Polarity {
	if expr == nil {
		return PolarityUnknown
	}
	sign, seen := walkPolarity(expr, model.Canonical(target), true)
	if !seen {
		return PolarityUnknown
	}
	return sign
}

// walkPolarity returns the accumulated sign of every occurrence of target
// within expr (Unknown if occurrences disagree) and whether target was
// found at all.
func walkPolarity(n ast.Expr, target string, positiveContext bool) (Polarity, bool) {
	switch v := n.(type) {
	case nil:
		return PolarityUnknown, false
	case *ast.Ident:
		if model.Canonical(v.Name) == target {
			return ctxSign(positiveContext), true
		}
		return PolarityUnknown, false
	case *ast.Index:
		if model.Canonical(v.Name) == target {
			return ctxSign(positiveContext), true
		}
		return PolarityUnknown, false
	case *ast.Number:
		return PolarityUnknown, false
	case *ast.UnaryOp:
		ctx := positiveContext
		if v.Op == "-" {
			ctx = !ctx
		}
		return walkPolarity(v.Arg, target, ctx)
	case *ast.Transpose:
		return walkPolarity(v.Arg, target, positiveContext)
	case *ast.BinOp:
		rightCtx := positiveContext
		switch v.Op {
		case "-", "/":
			rightCtx = !positiveContext
		case "+", "*":
		default:
			if containsIdent(v.Left, target) || containsIdent(v.Right, target) {
				return PolarityUnknown, true
			}
			return PolarityUnknown, false
		}
		lSign, lSeen := walkPolarity(v.Left, target, positiveContext)
		rSign, rSeen := walkPolarity(v.Right, target, rightCtx)
		return mergeSeen(lSign, lSeen, rSign, rSeen)
	case *ast.If:
		tSign, tSeen := walkPolarity(v.Then, target, positiveContext)
		eSign, eSeen := walkPolarity(v.Else, target, positiveContext)
		return mergeSeen(tSign, tSeen, eSign, eSeen)
	case *ast.Call:
		found := false
		for _, a := range v.Args {
			if containsIdent(a, target) {
				found = true
			}
		}
		if found {
			return PolarityUnknown, true
		}
		return PolarityUnknown, false
	}
	return PolarityUnknown, false
}

func ctxSign(positive bool) Polarity {
	if positive {
		return PolarityPositive
	}
	return PolarityNegative
}

func mergeSeen(aSign Polarity, aSeen bool, bSign Polarity, bSeen bool) (Polarity, bool) {
	if !aSeen && !bSeen {
		return PolarityUnknown, false
	}
	if aSeen && !bSeen {
		return aSign, true
	}
	if bSeen && !aSeen {
		return bSign, true
	}
	if aSign == bSign {
		return aSign, true
	}
	return PolarityUnknown, true
}

func containsIdent(n ast.Expr, target string) bool {
	switch v := n.(type) {
	case *ast.Ident:
		return model.Canonical(v.Name) == target
	case *ast.Index:
		return model.Canonical(v.Name) == target
	case *ast.UnaryOp:
		return containsIdent(v.Arg, target)
	case *ast.Transpose:
		return containsIdent(v.Arg, target)
	case *ast.BinOp:
		return containsIdent(v.Left, target) || containsIdent(v.Right, target)
	case *ast.If:
		return containsIdent(v.Cond, target) || containsIdent(v.Then, target) || containsIdent(v.Else, target)
	case *ast.Call:
		for _, a := range v.Args {
			if containsIdent(a, target) {
				return true
			}
		}
	}
	return false
}

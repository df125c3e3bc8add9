// Package depgraph builds the init- and step-dependency graphs for a
// Model, detects circular dependencies via Tarjan's SCC algorithm,
// and produces the topological evaluation order the compiler assembles its
// init/step programs in.
package depgraph

import (
	"sort"

	"github.com/bits-and-blooms/bitset"

	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/model"
	"github.com/bpowers/simlin/internal/resolve"
)

// Graph is a directed graph over canonical variable idents: an edge u->v
// means "u's equation reads v", i.e. v must be evaluated before u.
type Graph struct {
	Idents []string
	adj    map[string][]string
}

// New builds an empty Graph over the given vertex set.
func New(idents []string) *Graph {
	g := &Graph{adj: make(map[string][]string, len(idents))}
	for _, id := range idents {
		g.Idents = append(g.Idents, id)
		g.adj[id] = nil
	}
	return g
}

// Successors returns the idents v directly depends on (v->dep edges).
func (g *Graph) Successors(v string) []string {
	return g.adj[v]
}

// AddEdge records that `from` depends on `to`.
func (g *Graph) AddEdge(from, to string) {
	if from == to {
		g.adj[from] = append(g.adj[from], to)
		return
	}
	for _, existing := range g.adj[from] {
		if existing == to {
			return
		}
	}
	g.adj[from] = append(g.adj[from], to)
}

// BuildStepGraph builds the step-graph: stocks are leaves (no
// outgoing edges — their value each step comes from integration, not from
// evaluating a dependency chain), and flows/auxes depend on whatever their
// equation references, stocks included.
func BuildStepGraph(m *model.Model, res resolve.Result) *Graph {
	known := knownIdents(m)
	g := New(m.OrderedIdents())
	for _, in := range res.Instances {
		if in.Kind == model.VarStock {
			continue
		}
		for _, dep := range References(in.Expr, known) {
			g.AddEdge(in.Ident, dep)
		}
	}
	return g
}

// BuildInitGraph builds the init-graph: stocks depend on
// whatever their initial equation references; everything else is evaluated
// exactly as in the step graph, since any non-stock variable might feed a
// stock's initial value.
func BuildInitGraph(m *model.Model, res resolve.Result) *Graph {
	known := knownIdents(m)
	g := New(m.OrderedIdents())
	for _, in := range res.Instances {
		var expr = in.Expr
		if in.Kind == model.VarStock {
			if in.InitExpr != nil {
				expr = in.InitExpr
			}
		}
		for _, dep := range References(expr, known) {
			g.AddEdge(in.Ident, dep)
		}
	}
	return g
}

func knownIdents(m *model.Model) map[string]bool {
	known := make(map[string]bool, len(m.Variables))
	for ident := range m.Variables {
		known[ident] = true
	}
	return known
}

// scc is one strongly-connected component, in discovery order.
type scc struct {
	members []string
}

// Tarjan runs Tarjan's SCC algorithm, returning components in an order such
// that a component is never emitted before any component it depends on
// (i.e. dependencies-first, directly usable as an evaluation order once
// flattened and checked for non-trivial cycles).
func (g *Graph) tarjan() []scc {
	index := make(map[string]int, len(g.Idents))
	lowlink := make(map[string]int, len(g.Idents))
	indexCounter := 0
	var stack []string
	onStack := bitset.New(uint(len(g.Idents)))
	vertexNum := make(map[string]int, len(g.Idents))
	for i, id := range g.Idents {
		vertexNum[id] = i
	}
	var sccs []scc

	var strongconnect func(v string)
	strongconnect = func(v string) {
		index[v] = indexCounter
		lowlink[v] = indexCounter
		indexCounter++
		stack = append(stack, v)
		onStack.Set(uint(vertexNum[v]))

		for _, w := range g.adj[v] {
			if _, seen := index[w]; !seen {
				strongconnect(w)
				if lowlink[w] < lowlink[v] {
					lowlink[v] = lowlink[w]
				}
			} else if onStack.Test(uint(vertexNum[w])) {
				if index[w] < lowlink[v] {
					lowlink[v] = index[w]
				}
			}
		}

		if lowlink[v] == index[v] {
			var members []string
			for {
				n := len(stack) - 1
				w := stack[n]
				stack = stack[:n]
				onStack.Clear(uint(vertexNum[w]))
				members = append(members, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc{members: members})
		}
	}

	// Iterate idents in stable order so the resulting evaluation order is
	// deterministic run to run.
	for _, id := range g.Idents {
		if _, seen := index[id]; !seen {
			strongconnect(id)
		}
	}
	return sccs
}

// hasSelfLoop reports whether v has an edge to itself.
func (g *Graph) hasSelfLoop(v string) bool {
	for _, w := range g.adj[v] {
		if w == v {
			return true
		}
	}
	return false
}

// TopoOrder returns idents in dependency-first evaluation order, or a
// CircularDependency detail naming every ident in the offending cycle if any
// non-trivial SCC is found.
func (g *Graph) TopoOrder(stocks map[string]bool) ([]string, *serr.Detail) {
	sccs := g.tarjan()
	var order []string
	for _, c := range sccs {
		nonTrivial := len(c.members) > 1 || (len(c.members) == 1 && g.hasSelfLoop(c.members[0]))
		if nonTrivial {
			hasNonStock := false
			for _, m := range c.members {
				if !stocks[m] {
					hasNonStock = true
					break
				}
			}
			if hasNonStock {
				names := append([]string(nil), c.members...)
				sort.Strings(names)
				return nil, &serr.Detail{
					Code: serr.CircularDependency, Kind: serr.KindModel,
					Message: "circular dependency among: " + joinComma(names),
				}
			}
		}
		order = append(order, c.members...)
	}
	return order, nil
}

func joinComma(xs []string) string {
	out := ""
	for i, x := range xs {
		if i > 0 {
			out += ", "
		}
		out += x
	}
	return out
}

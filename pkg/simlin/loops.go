package simlin

import (
	"github.com/bpowers/simlin/internal/analysis"
	"github.com/bpowers/simlin/internal/depgraph"
	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/model"
	"github.com/bpowers/simlin/internal/resolve"
)

// Loops is the result-list handle for structural feedback loop enumeration.
type Loops struct {
	refcounted
	items []analysis.Loop
}

func newLoops(items []analysis.Loop) *Loops {
	return &Loops{refcounted: newRefcounted(), items: items}
}

// Ref/Unref follow the same refcount convention as every other handle.
func (l *Loops) Ref() *Loops { l.ref(); return l }
func (l *Loops) Unref()      { l.unref() }

// Count returns the number of enumerated loops.
func (l *Loops) Count() int { return len(l.items) }

// Get returns the i'th loop.
func (l *Loops) Get(i int) (analysis.Loop, bool) {
	if i < 0 || i >= len(l.items) {
		return analysis.Loop{}, false
	}
	return l.items[i], true
}

// Link is one step-dependency edge, the unit get_links/get_incoming_links
// reports.
type Link struct {
	From, To string
	Polarity analysis.Polarity
	Score    float64 // relative LTM contribution; 0 unless computed from a Sim
}

// Links is the result-list handle for get_links/analyze_get_links.
type Links struct {
	refcounted
	items []Link
}

func newLinks(items []Link) *Links {
	return &Links{refcounted: newRefcounted(), items: items}
}

func (l *Links) Ref() *Links { l.ref(); return l }
func (l *Links) Unref()      { l.unref() }

// Count returns the number of links.
func (l *Links) Count() int { return len(l.items) }

// Get returns the i'th link.
func (l *Links) Get(i int) (Link, bool) {
	if i < 0 || i >= len(l.items) {
		return Link{}, false
	}
	return l.items[i], true
}

// AnalyzeGetLoops enumerates structural feedback loops for modelName.
func (p *Project) AnalyzeGetLoops(modelName string) (*Loops, *Error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.proj.Model(modelName)
	if !ok {
		return nil, newError(serr.New(serr.BadModelName, "unknown model: "+modelName))
	}
	res := resolve.Resolve(p.proj, m)
	g := depgraph.BuildStepGraph(m, res)
	return newLoops(analysis.FindLoops(g, res)), nil
}

// stepLinks flattens a model's step-dependency graph into plain Links, for
// get_links where callers want the raw edge set rather than
// loops grouped into cycles. Polarity is left Unknown here; only loop edges
// (analysis.FindLoops) carry the statically-inferred sign.
func stepLinks(m *model.Model, res resolve.Result) []Link {
	g := depgraph.BuildStepGraph(m, res)
	var out []Link
	for _, from := range g.Idents {
		for _, to := range g.Successors(from) {
			out = append(out, Link{From: from, To: to, Polarity: analysis.PolarityUnknown})
		}
	}
	return out
}

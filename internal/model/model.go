package model

import (
	"sort"

	serr "github.com/bpowers/simlin/internal/errors"
)

// View and Group are opaque, pass-through structures: diagram/view layout
// is an external collaborator, so the datamodel only needs to
// round-trip them untouched through patch application and serialization.
type View struct {
	Index    int
	Elements map[string]any
}

// Group is an opaque named collection of variable idents used by the
// diagram layer to cluster a view; the engine never interprets membership.
type Group struct {
	Name string
	Vars []string
}

// Model is one simulatable (or submodel) unit within a Project.
// Variables is keyed by canonical ident.
type Model struct {
	Name      string
	Variables map[string]*Variable
	Views     []View
	Groups    []Group

	// order preserves insertion order for deterministic iteration
	// (compilation, serialization) independent of Go's map ordering.
	order []string
}

// NewModel constructs an empty Model.
func NewModel(name string) *Model {
	return &Model{Name: name, Variables: make(map[string]*Variable)}
}

// Upsert inserts or replaces a variable by its canonical ident.
func (m *Model) Upsert(v *Variable) {
	c := v.CanonicalIdent()
	if _, exists := m.Variables[c]; !exists {
		m.order = append(m.order, c)
	}
	m.Variables[c] = v
}

// Delete removes a variable by ident.
func (m *Model) Delete(ident string) {
	c := Canonical(ident)
	if _, ok := m.Variables[c]; !ok {
		return
	}
	delete(m.Variables, c)
	for i, n := range m.order {
		if n == c {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

// Get looks up a variable by ident.
func (m *Model) Get(ident string) (*Variable, bool) {
	v, ok := m.Variables[Canonical(ident)]
	return v, ok
}

// OrderedIdents returns canonical idents in insertion order.
func (m *Model) OrderedIdents() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// SortedIdents returns canonical idents in lexical order (useful for
// deterministic diffing/printing independent of edit history).
func (m *Model) SortedIdents() []string {
	out := m.OrderedIdents()
	sort.Strings(out)
	return out
}

// Validate checks model-level invariants: inflow/outflow
// strings reference existing Flow variables, and each Flow is claimed by at
// most one Stock per direction.
func (m *Model) Validate(dims *Dimensions, models map[string]*Model) []serr.Detail {
	var details []serr.Detail
	inflowOwner := make(map[string]string)
	outflowOwner := make(map[string]string)

	for _, ident := range m.OrderedIdents() {
		v := m.Variables[ident]
		switch v.Kind {
		case VarStock:
			for _, in := range v.Inflows {
				cin := Canonical(in)
				flow, ok := m.Get(cin)
				if !ok || flow.Kind != VarFlow {
					details = append(details, serr.Detail{
						Code: serr.UnknownDependency, Kind: serr.KindVariable, VarName: v.Ident,
						Message: "stock " + v.Ident + " has unknown inflow " + in,
					})
					continue
				}
				if owner, ok := inflowOwner[cin]; ok && owner != ident {
					details = append(details, serr.Detail{
						Code: serr.BadModuleInputSrc, Kind: serr.KindVariable, VarName: v.Ident,
						Message: "flow " + in + " is an inflow of more than one stock",
					})
				}
				inflowOwner[cin] = ident
			}
			for _, out := range v.Outflows {
				cout := Canonical(out)
				flow, ok := m.Get(cout)
				if !ok || flow.Kind != VarFlow {
					details = append(details, serr.Detail{
						Code: serr.UnknownDependency, Kind: serr.KindVariable, VarName: v.Ident,
						Message: "stock " + v.Ident + " has unknown outflow " + out,
					})
					continue
				}
				if owner, ok := outflowOwner[cout]; ok && owner != ident {
					details = append(details, serr.Detail{
						Code: serr.BadModuleInputSrc, Kind: serr.KindVariable, VarName: v.Ident,
						Message: "flow " + out + " is an outflow of more than one stock",
					})
				}
				outflowOwner[cout] = ident
			}
		case VarModule:
			if _, ok := models[Canonical(v.ModelName)]; !ok {
				details = append(details, serr.Detail{
					Code: serr.BadModelName, Kind: serr.KindVariable, VarName: v.Ident,
					Message: "module " + v.Ident + " references unknown model " + v.ModelName,
				})
			}
		}
	}
	return details
}

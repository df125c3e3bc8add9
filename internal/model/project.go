package model

import (
	"sort"

	serr "github.com/bpowers/simlin/internal/errors"
)

// Project is the top-level datamodel entity. Apart from construction
// (AddModel inserts in place), the engine treats it as immutable: the patch
// engine edits a Clone and returns that new Project rather than editing the
// original, so Clone is the building block mutation composes with.
type Project struct {
	Name       string
	SimSpecs   SimSpecs
	Dimensions *Dimensions
	Units      *Units
	Models     map[string]*Model // keyed by canonical model name
	Source     []byte            // opaque original bytes (XMILE/Vensim), if imported

	order []string
}

// NewProject constructs an empty Project with the given name.
func NewProject(name string) *Project {
	return &Project{
		Name:       name,
		Dimensions: NewDimensions(),
		Units:      NewUnits(),
		Models:     make(map[string]*Model),
	}
}

// AddModel inserts a model, returning a DuplicateVariable-flavored detail if
// a model of that name already exists.
func (p *Project) AddModel(m *Model) *serr.Detail {
	c := Canonical(m.Name)
	if _, exists := p.Models[c]; exists {
		return &serr.Detail{Code: serr.DuplicateVariable, Kind: serr.KindProject, Message: "duplicate model name: " + m.Name}
	}
	p.Models[c] = m
	p.order = append(p.order, c)
	return nil
}

// Model looks up a model by name.
func (p *Project) Model(name string) (*Model, bool) {
	m, ok := p.Models[Canonical(name)]
	return m, ok
}

// ModelNames returns model names in insertion order.
func (p *Project) ModelNames() []string {
	out := make([]string, len(p.order))
	copy(out, p.order)
	return out
}

// Clone copies the Project so mutating operators (the patch engine) can
// produce a new state atomically without ever touching the original. Every
// variable is copied together with its flow lists, module references and
// per-element equations; graphical functions and view element maps, which
// patches only ever replace whole, are shared with the original.
func (p *Project) Clone() *Project {
	np := NewProject(p.Name)
	np.SimSpecs = p.SimSpecs
	for _, d := range p.Dimensions.All() {
		dd := *d
		np.Dimensions.Add(dd)
	}
	for _, u := range p.Units.All() {
		uu := *u
		np.Units.Add(uu)
	}
	if p.Source != nil {
		np.Source = append([]byte(nil), p.Source...)
	}
	for _, name := range p.ModelNames() {
		src := p.Models[name]
		dst := NewModel(src.Name)
		for _, ident := range src.OrderedIdents() {
			v := *src.Variables[ident]
			v.Inflows = append([]string(nil), v.Inflows...)
			v.Outflows = append([]string(nil), v.Outflows...)
			v.References = append([]ModuleRef(nil), v.References...)
			if v.Equation.Elements != nil {
				elems := make(map[string]string, len(v.Equation.Elements))
				for k, e := range v.Equation.Elements {
					elems[k] = e
				}
				v.Equation.Elements = elems
			}
			dst.Upsert(&v)
		}
		dst.Views = append([]View(nil), src.Views...)
		dst.Groups = append([]Group(nil), src.Groups...)
		np.Models[name] = dst
		np.order = append(np.order, name)
	}
	return np
}

// Validate checks the project-wide invariants: model
// names unique (guaranteed by AddModel), dimension names unique and
// non-empty, every dimension reference resolves, and sim-specs are sane.
func (p *Project) Validate() []serr.Detail {
	var details []serr.Detail
	details = append(details, p.Dimensions.Validate()...)
	if d := p.SimSpecs.Validate(); d != nil {
		details = append(details, *d)
	}
	for _, name := range p.ModelNames() {
		details = append(details, p.Models[name].Validate(p.Dimensions, p.Models)...)
	}
	sort.Slice(details, func(i, j int) bool { return details[i].Message < details[j].Message })
	return details
}

package simlin

import (
	"sync"

	"github.com/bpowers/simlin/internal/compiler"
	serr "github.com/bpowers/simlin/internal/errors"
	"github.com/bpowers/simlin/internal/model"
	"github.com/bpowers/simlin/internal/model/patch"
	"github.com/bpowers/simlin/internal/pipeline"
	"github.com/bpowers/simlin/internal/wire"
)

// Project is the top-level FFI handle. It owns a
// model.Project plus a cache of compiled artifacts keyed by model name;
// apply_patch invalidates the whole cache on commit.
//
// Mutation (AddModel, ApplyPatch) requires the caller hold exclusive access;
// the mutex here only protects the Go-level cache bookkeeping against the
// data race that a misbehaving caller would otherwise turn into a crash
// instead of a logic error.
type Project struct {
	refcounted

	mu       sync.Mutex
	proj     *model.Project
	compiled map[string]*compiledModel
}

type compiledModel struct {
	prog *compiler.Program
	diag pipeline.Diagnostics
}

func newProject(p *model.Project) *Project {
	return &Project{refcounted: newRefcounted(), proj: p, compiled: make(map[string]*compiledModel)}
}

// NewProject starts an empty project (the add-model-from-scratch path;
// the Open* calls are the other entry points).
func NewProject(name string) *Project {
	return newProject(model.NewProject(name))
}

// OpenProtobuf parses the versioned binary wire form.
func OpenProtobuf(data []byte) (*Project, *Error) {
	p, err := wire.UnmarshalBinary(data)
	if err != nil {
		return nil, newError(err)
	}
	return newProject(p), nil
}

// OpenJSON parses the native JSON dialect.
func OpenJSON(data []byte) (*Project, *Error) {
	p, err := wire.UnmarshalJSON(data)
	if err != nil {
		return nil, newError(err)
	}
	return newProject(p), nil
}

// OpenXMILE and OpenVensim are the external-collaborator hooks; the core
// only returns the stable error code.
func OpenXMILE(data []byte) (*Project, *Error) {
	p, err := wire.OpenXMILE(data)
	if err != nil {
		return nil, newError(err)
	}
	return newProject(p), nil
}

func OpenVensim(data []byte) (*Project, *Error) {
	p, err := wire.OpenVensim(data)
	if err != nil {
		return nil, newError(err)
	}
	return newProject(p), nil
}

// Ref increments the refcount and returns p for chaining.
func (p *Project) Ref() *Project {
	p.ref()
	return p
}

// Unref decrements the refcount; there is nothing further to release once
// it reaches zero beyond letting the GC reclaim p.
func (p *Project) Unref() {
	p.unref()
}

// GetModelCount returns the number of models in the project.
func (p *Project) GetModelCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.proj.ModelNames())
}

// Names returns every model name, in declaration order.
func (p *Project) Names() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.proj.ModelNames()))
	for _, name := range p.proj.ModelNames() {
		out = append(out, p.proj.Models[name].Name)
	}
	return out
}

// ByName returns a Model handle for name, or ok=false if no such model
// exists. The returned handle holds its own reference to p.
func (p *Project) ByName(name string) (*Model, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.proj.Model(name)
	if !ok {
		return nil, false
	}
	p.ref()
	return newModel(p, m.Name), true
}

// AddModel inserts a new, empty model, returning
// the handle for it.
func (p *Project) AddModel(name string) (*Model, *Error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	m := model.NewModel(name)
	if d := p.proj.AddModel(m); d != nil {
		return nil, newError(&serr.Error{Code: d.Code, Details: []serr.Detail{*d}})
	}
	p.ref()
	return newModel(p, m.Name), nil
}

// SerializeProtobuf renders the current state as the versioned binary wire
// form.
func (p *Project) SerializeProtobuf() ([]byte, *Error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, err := wire.MarshalBinary(p.proj)
	if err != nil {
		return nil, newError(serr.New(serr.Generic, err.Error()))
	}
	return b, nil
}

// SerializeJSON renders the current state as the native JSON dialect.
func (p *Project) SerializeJSON() ([]byte, *Error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	b, err := wire.MarshalJSON(p.proj)
	if err != nil {
		return nil, newError(serr.New(serr.Generic, err.Error()))
	}
	return b, nil
}

// SerializeXMILE is the external-collaborator hook for export; the core
// only returns the stable error code.
func (p *Project) SerializeXMILE() ([]byte, *Error) {
	return nil, newError(serr.New(serr.XmlDeserialization, "XMILE export is handled outside the core engine"))
}

// GetErrors collects every diagnostic across the whole project: project-
// wide invariants plus each model's resolve/units/compile diagnostics.
func (p *Project) GetErrors() *Error {
	p.mu.Lock()
	defer p.mu.Unlock()
	e := &serr.Error{}
	for _, d := range p.proj.Validate() {
		e.Add(d)
	}
	for _, name := range p.proj.ModelNames() {
		diag := p.diagnoseLocked(name)
		for _, d := range diag.All() {
			e.Add(d)
		}
	}
	return newError(e)
}

// ApplyPatch applies a patch document to modelName.
func (p *Project) ApplyPatch(modelName string, patchJSON []byte, dryRun, allowErrors bool) *Error {
	p.mu.Lock()
	defer p.mu.Unlock()
	next, err := patch.Apply(p.proj, modelName, patchJSON, patch.Options{DryRun: dryRun, AllowErrors: allowErrors})
	if next != p.proj {
		p.proj = next
		p.compiled = make(map[string]*compiledModel)
	}
	return newError(err)
}

// IsSimulatable reports whether the model compiled without semantic
// errors; unit errors never gate this.
func (p *Project) IsSimulatable(modelName string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.diagnoseLocked(modelName).Simulatable()
}

// RenderSVG is the diagram-rendering hook; view/diagram
// layout is an external collaborator, so the core only
// returns the stable error code.
func (p *Project) RenderSVG(_ string) ([]byte, *Error) {
	return nil, newError(serr.New(serr.Generic, "SVG rendering is handled outside the core engine"))
}

// buildLocked returns (and caches) the compiled Program for modelName. p.mu
// must be held.
func (p *Project) buildLocked(modelName string) *compiledModel {
	c := model.Canonical(modelName)
	if cm, ok := p.compiled[c]; ok {
		return cm
	}
	m, ok := p.proj.Model(modelName)
	if !ok {
		cm := &compiledModel{diag: pipeline.Diagnostics{Errors: []serr.Detail{{Code: serr.BadModelName, Message: "unknown model: " + modelName}}}}
		p.compiled[c] = cm
		return cm
	}
	prog, diag := pipeline.Build(p.proj, m)
	cm := &compiledModel{prog: prog, diag: diag}
	p.compiled[c] = cm
	return cm
}

func (p *Project) diagnoseLocked(modelName string) pipeline.Diagnostics {
	return p.buildLocked(modelName).diag
}

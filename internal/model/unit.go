package model

// Unit is a named unit definition: an equation that is a product-of-powers
// over atomic unit symbols (e.g. "kg*m/s^2"), plus any aliases that refer to
// the same unit. Disabled units are kept (for round-tripping) but excluded
// from consistency checking.
type Unit struct {
	Name     string
	Equation string // raw product-of-powers text; "" if this is a base/atomic unit
	Disabled bool
	Aliases  []string
}

// Units is the project-level table of unit definitions.
type Units struct {
	byName map[string]*Unit
	order  []string
}

// NewUnits constructs an empty unit table.
func NewUnits() *Units {
	return &Units{byName: make(map[string]*Unit)}
}

// Add inserts a unit definition (and its aliases) into the table.
func (us *Units) Add(u Unit) {
	uu := u
	c := Canonical(u.Name)
	us.byName[c] = &uu
	us.order = append(us.order, c)
	for _, alias := range u.Aliases {
		us.byName[Canonical(alias)] = &uu
	}
}

// Get looks up a unit by name or alias.
func (us *Units) Get(name string) (*Unit, bool) {
	u, ok := us.byName[Canonical(name)]
	return u, ok
}

// All returns unit definitions in insertion order (aliases excluded).
func (us *Units) All() []*Unit {
	out := make([]*Unit, 0, len(us.order))
	for _, n := range us.order {
		out = append(out, us.byName[n])
	}
	return out
}

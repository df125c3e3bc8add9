package model

// EquationKind tags which shape a Variable's equation takes.
type EquationKind int

// Equation shapes.
const (
	EqScalar EquationKind = iota
	EqApplyToAll
	EqArrayed
)

// Equation is the tagged union of the three equation shapes a Variable can
// carry. Only the field matching Kind is meaningful.
type Equation struct {
	Kind EquationKind

	// EqScalar
	Expr string
	// Separate initial-value expression for stocks; empty if unused.
	InitialExpr string

	// EqApplyToAll
	Dimensions []string // dimension names the expression is replicated over
	Exceptions [][]string // subscript tuples excluded from the apply-to-all

	// EqArrayed: sparse per-tuple expressions, keyed by the canonical
	// joined subscript tuple (see model.TupleKey).
	Dims       []string
	Elements   map[string]string
	// Fallback, if non-empty, is used for tuples missing from Elements
	// (an apply-to-all fallback within an otherwise arrayed equation).
	Fallback string
}

// TupleKey canonicalizes a subscript tuple into a stable map key.
func TupleKey(tuple []string) string {
	key := ""
	for i, t := range tuple {
		if i > 0 {
			key += "\x00"
		}
		key += Canonical(t)
	}
	return key
}

// VarKind tags which of the four Variable shapes a Variable is.
type VarKind int

// Variable shapes.
const (
	VarStock VarKind = iota
	VarFlow
	VarAux
	VarModule
)

// ModuleRef binds one module input, relating a source expression (evaluated
// in the parent model) to an input name in the referenced submodel.
type ModuleRef struct {
	Src string
	Dst string
}

// Variable is the tagged union of Stock | Flow | Aux | Module. Fields
// irrelevant to Kind are left zero.
type Variable struct {
	Kind VarKind
	Ident string
	Docs  string

	// Stock | Flow | Aux
	Equation Equation
	Units    string

	// Stock
	Inflows     []string
	Outflows    []string
	NonNegative bool

	// Flow | Aux
	GF *GraphicalFunction

	// Module
	ModelName  string
	References []ModuleRef
}

// CanonicalIdent returns the canonicalized identifier used for all internal
// lookups.
func (v *Variable) CanonicalIdent() string {
	return Canonical(v.Ident)
}

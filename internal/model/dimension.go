package model

import (
	"strconv"

	serr "github.com/bpowers/simlin/internal/errors"
)

// Dimension is either an explicit ordered list of named elements, or an
// anonymous dimension of a given Size (elements implicitly named "1".."N").
// A Dimension may additionally be a Subrange of another dimension, carrying a
// positional mapping into that dimension's elements.
type Dimension struct {
	Name     string
	Elements []string // nil if Size > 0 (anonymous)
	Size     int      // 0 if Elements is set

	// Subrange, if non-empty, names the dimension this one is a positional
	// mapping into that dimension.
	Subrange string
}

// Len returns the number of elements in the dimension.
func (d Dimension) Len() int {
	if d.Elements != nil {
		return len(d.Elements)
	}
	return d.Size
}

// ElementAt returns the display name of the i'th element (0-indexed).
func (d Dimension) ElementAt(i int) string {
	if d.Elements != nil {
		return d.Elements[i]
	}
	return itoa(i + 1)
}

// IndexOf returns the 0-based position of elem within the dimension, or -1.
func (d Dimension) IndexOf(elem string) int {
	celem := Canonical(elem)
	if d.Elements != nil {
		for i, e := range d.Elements {
			if Canonical(e) == celem {
				return i
			}
		}
		return -1
	}
	n, ok := atoiStrict(elem)
	if !ok || n < 1 || n > d.Size {
		return -1
	}
	return n - 1
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func atoiStrict(s string) (int, bool) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, false
	}
	return n, true
}

// Dimensions is the project-level table of named dimensions, keyed by
// canonical name.
type Dimensions struct {
	byName map[string]*Dimension
	order  []string
}

// NewDimensions constructs an empty dimension table.
func NewDimensions() *Dimensions {
	return &Dimensions{byName: make(map[string]*Dimension)}
}

// Add inserts a dimension, returning a BadDimensionName detail if its name
// is empty or its canonical name collides with one already present.
func (ds *Dimensions) Add(d Dimension) *serr.Detail {
	if d.Name == "" {
		return &serr.Detail{Code: serr.BadDimensionName, Message: "dimension name must not be empty", Kind: serr.KindProject}
	}
	c := Canonical(d.Name)
	if _, ok := ds.byName[c]; ok {
		return &serr.Detail{Code: serr.BadDimensionName, Message: "duplicate dimension: " + d.Name, Kind: serr.KindProject}
	}
	dd := d
	ds.byName[c] = &dd
	ds.order = append(ds.order, c)
	return nil
}

// Get looks up a dimension by (possibly non-canonical) name.
func (ds *Dimensions) Get(name string) (*Dimension, bool) {
	d, ok := ds.byName[Canonical(name)]
	return d, ok
}

// Names returns dimension names in insertion order.
func (ds *Dimensions) Names() []string {
	out := make([]string, len(ds.order))
	copy(out, ds.order)
	return out
}

// All returns the dimensions in insertion order.
func (ds *Dimensions) All() []*Dimension {
	out := make([]*Dimension, 0, len(ds.order))
	for _, n := range ds.order {
		out = append(out, ds.byName[n])
	}
	return out
}

// Validate checks the cross-dimension invariants: element
// names unique within a dimension, and a subrange's length does not exceed
// its parent's.
func (ds *Dimensions) Validate() []serr.Detail {
	var details []serr.Detail
	for _, d := range ds.All() {
		seen := make(map[string]bool, len(d.Elements))
		for _, e := range d.Elements {
			c := Canonical(e)
			if seen[c] {
				details = append(details, serr.Detail{
					Code: serr.BadDimensionName, Kind: serr.KindProject,
					Message: "duplicate element \"" + e + "\" in dimension " + d.Name,
				})
			}
			seen[c] = true
		}
		if d.Subrange != "" {
			parent, ok := ds.Get(d.Subrange)
			if !ok {
				details = append(details, serr.Detail{
					Code: serr.BadDimensionName, Kind: serr.KindProject,
					Message: "dimension " + d.Name + " is a subrange of unknown dimension " + d.Subrange,
				})
			} else if d.Len() > parent.Len() {
				details = append(details, serr.Detail{
					Code: serr.MismatchedDimensions, Kind: serr.KindProject,
					Message: "subrange " + d.Name + " is longer than parent dimension " + d.Subrange,
				})
			}
		}
	}
	return details
}

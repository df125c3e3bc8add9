package model

import serr "github.com/bpowers/simlin/internal/errors"

// GFKind selects how a GraphicalFunction interpolates/extrapolates between
// and beyond its tabulated points.
type GFKind int

// Graphical function interpolation kinds.
const (
	GFContinuous GFKind = iota
	GFDiscrete
	GFExtrapolate
)

// Scale is the [Min, Max] extent of an axis, used to synthesize implicit
// x_points when none are given explicitly.
type Scale struct {
	Min, Max float64
}

// GraphicalFunction is a tabulated lookup function. When
// XPoints is nil, x coordinates are implicit: linearly spaced from
// XScale.Min to XScale.Max across len(YPoints) samples.
type GraphicalFunction struct {
	Kind    GFKind
	XPoints []float64 // nil => implicit
	YPoints []float64
	XScale  Scale
	YScale  Scale
}

// Validate reports the BadTable conditions a table can carry: no points,
// mismatched point lists, or an implicit-x table whose XScale collapses
// to a point.
func (gf *GraphicalFunction) Validate(owner string) *serr.Detail {
	if len(gf.YPoints) == 0 {
		return &serr.Detail{Code: serr.BadTable, Kind: serr.KindVariable, VarName: owner, Message: "graphical function has no points"}
	}
	if gf.XPoints == nil && gf.XScale.Min == gf.XScale.Max {
		return &serr.Detail{Code: serr.BadTable, Kind: serr.KindVariable, VarName: owner, Message: "graphical function has implicit x_points but x_scale.min == x_scale.max"}
	}
	if gf.XPoints != nil && len(gf.XPoints) != len(gf.YPoints) {
		return &serr.Detail{Code: serr.BadTable, Kind: serr.KindVariable, VarName: owner, Message: "graphical function x_points and y_points have different lengths"}
	}
	return nil
}

// Xs materializes the x coordinates, synthesizing a linear ramp when
// XPoints is absent.
func (gf *GraphicalFunction) Xs() []float64 {
	if gf.XPoints != nil {
		return gf.XPoints
	}
	n := len(gf.YPoints)
	xs := make([]float64, n)
	if n == 1 {
		xs[0] = gf.XScale.Min
		return xs
	}
	step := (gf.XScale.Max - gf.XScale.Min) / float64(n-1)
	for i := range xs {
		xs[i] = gf.XScale.Min + float64(i)*step
	}
	return xs
}

// Lookup evaluates the graphical function at x according to Kind:
// continuous linearly interpolates, discrete holds the left sample, and
// extrapolate linearly projects past the table's endpoints (otherwise the
// result clamps to the nearest endpoint).
func (gf *GraphicalFunction) Lookup(x float64) float64 {
	xs := gf.Xs()
	ys := gf.YPoints
	n := len(xs)
	if n == 0 {
		return 0
	}
	if x <= xs[0] {
		if gf.Kind == GFExtrapolate && n > 1 {
			return extrapolate(xs[0], ys[0], xs[1], ys[1], x)
		}
		return ys[0]
	}
	if x >= xs[n-1] {
		if gf.Kind == GFExtrapolate && n > 1 {
			return extrapolate(xs[n-2], ys[n-2], xs[n-1], ys[n-1], x)
		}
		return ys[n-1]
	}
	// binary search for the bracketing segment [i, i+1)
	lo, hi := 0, n-1
	for hi-lo > 1 {
		mid := (lo + hi) / 2
		if xs[mid] <= x {
			lo = mid
		} else {
			hi = mid
		}
	}
	switch gf.Kind {
	case GFDiscrete:
		return ys[lo]
	default: // continuous, extrapolate (interior points behave the same)
		return lerp(xs[lo], ys[lo], xs[hi], ys[hi], x)
	}
}

func lerp(x0, y0, x1, y1, x float64) float64 {
	if x1 == x0 {
		return y0
	}
	t := (x - x0) / (x1 - x0)
	return y0 + t*(y1-y0)
}

func extrapolate(x0, y0, x1, y1, x float64) float64 {
	return lerp(x0, y0, x1, y1, x)
}

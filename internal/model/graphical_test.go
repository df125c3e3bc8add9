package model

import "testing"

func continuousTable(kind GFKind) *GraphicalFunction {
	return &GraphicalFunction{
		Kind:    kind,
		XPoints: []float64{0, 50, 100},
		YPoints: []float64{0, 0.5, 1},
		XScale:  Scale{Min: 0, Max: 100},
		YScale:  Scale{Min: 0, Max: 1},
	}
}

func TestLookupInterpolatesAndClamps(t *testing.T) {
	cases := []struct {
		name string
		kind GFKind
		x    float64
		want float64
	}{
		{"interior interpolation", GFContinuous, 25, 0.25},
		{"exact sample", GFContinuous, 50, 0.5},
		{"clamp past the right edge", GFContinuous, 150, 1.0},
		{"clamp past the left edge", GFContinuous, -10, 0},
		{"extrapolate past the right edge", GFExtrapolate, 150, 1.5},
		{"extrapolate past the left edge", GFExtrapolate, -50, -0.5},
		{"discrete holds the left sample", GFDiscrete, 75, 0.5},
	}
	for _, c := range cases {
		gf := continuousTable(c.kind)
		if got := gf.Lookup(c.x); got != c.want {
			t.Errorf("%s: Lookup(%v) = %v, want %v", c.name, c.x, got, c.want)
		}
	}
}

func TestLookupImplicitXPoints(t *testing.T) {
	gf := &GraphicalFunction{
		Kind:    GFContinuous,
		YPoints: []float64{0, 0.5, 1},
		XScale:  Scale{Min: 0, Max: 100},
	}
	if got := gf.Lookup(25); got != 0.25 {
		t.Errorf("Lookup(25) = %v, want 0.25", got)
	}
	xs := gf.Xs()
	if len(xs) != 3 || xs[0] != 0 || xs[1] != 50 || xs[2] != 100 {
		t.Errorf("Xs() = %v, want [0 50 100]", xs)
	}
}

func TestValidateRejectsDegenerateTables(t *testing.T) {
	cases := []struct {
		name string
		gf   GraphicalFunction
	}{
		{"no points", GraphicalFunction{Kind: GFContinuous}},
		{"implicit xs with a collapsed x scale", GraphicalFunction{
			Kind: GFContinuous, YPoints: []float64{0, 1}, XScale: Scale{Min: 5, Max: 5},
		}},
		{"mismatched point lists", GraphicalFunction{
			Kind: GFContinuous, XPoints: []float64{0, 1}, YPoints: []float64{0, 0.5, 1},
		}},
	}
	for _, c := range cases {
		if d := c.gf.Validate("effect"); d == nil {
			t.Errorf("%s: expected a BadTable detail", c.name)
		}
	}
}

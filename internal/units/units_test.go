package units

import (
	"math/big"
	"testing"
)

func TestParseDefinitionProductQuotient(t *testing.T) {
	u, detail := ParseDefinition("kg*m/s^2")
	if detail != nil {
		t.Fatalf("unexpected error: %s", detail.Message)
	}
	if got, want := u["kg"], big.NewRat(1, 1); got.Cmp(want) != 0 {
		t.Errorf("kg exponent = %v, want %v", got, want)
	}
	if got, want := u["m"], big.NewRat(1, 1); got.Cmp(want) != 0 {
		t.Errorf("m exponent = %v, want %v", got, want)
	}
	if got, want := u["s"], big.NewRat(-2, 1); got.Cmp(want) != 0 {
		t.Errorf("s exponent = %v, want %v", got, want)
	}
}

func TestParseDefinitionEmptyIsDimensionless(t *testing.T) {
	u, detail := ParseDefinition("")
	if detail != nil {
		t.Fatalf("unexpected error: %s", detail.Message)
	}
	if !u.IsDimensionless() {
		t.Errorf("expected dimensionless, got %s", u.String())
	}
}

func TestExprMulDivCancel(t *testing.T) {
	meters := Expr{"m": big.NewRat(1, 1)}
	perSecond := Expr{"s": big.NewRat(-1, 1)}
	speed := meters.Mul(perSecond)
	if speed.String() != "m/s" {
		t.Errorf("speed = %s, want m/s", speed.String())
	}
	back := speed.Div(perSecond)
	if !back.Equal(meters) {
		t.Errorf("back = %s, want %s", back.String(), meters.String())
	}
}

func TestExprEqualTreatsAbsentAsZero(t *testing.T) {
	a := Expr{"m": big.NewRat(1, 1), "s": big.NewRat(0, 1)}
	b := Expr{"m": big.NewRat(1, 1)}
	if !a.Equal(b) {
		t.Errorf("expected %s to equal %s (zero exponents are absent)", a.String(), b.String())
	}
}

func TestParseDefinitionRejectsNonConstantExponent(t *testing.T) {
	_, detail := ParseDefinition("m^x")
	if detail == nil {
		t.Fatal("expected an error for a non-constant exponent")
	}
}

package logmath

import (
	"math"
	"testing"
)

func TestNew_RejectsBadBase(t *testing.T) {
	for _, base := range []float64{1.0, 0.5, -2.0} {
		if _, err := New(base, 0); err == nil {
			t.Errorf("New(%v, 0) expected error, got nil", base)
		}
	}
}

func TestDefault_MatchesSpecConstant(t *testing.T) {
	tbl := Default()
	if tbl.base != DefaultBase {
		t.Fatalf("base = %v, want %v", tbl.base, DefaultBase)
	}
}

func TestAdd_ZeroIdentity(t *testing.T) {
	tbl := Default()
	z := tbl.Zero()
	const x = int32(-1000)
	if got := tbl.Add(z, x); got != x {
		t.Errorf("Add(zero, x) = %v, want %v", got, x)
	}
	if got := tbl.Add(x, z); got != x {
		t.Errorf("Add(x, zero) = %v, want %v", got, x)
	}
}

func TestAdd_Commutative(t *testing.T) {
	tbl := Default()
	a, b := int32(-500), int32(-800)
	if tbl.Add(a, b) != tbl.Add(b, a) {
		t.Errorf("Add is not commutative: Add(a,b)=%v Add(b,a)=%v", tbl.Add(a, b), tbl.Add(b, a))
	}
}

func TestAdd_AgreesWithExact(t *testing.T) {
	tbl := Default()
	for _, pair := range [][2]int32{{-100, -200}, {-50, -50}, {-1, -10000}, {0, -1}} {
		table := tbl.Add(pair[0], pair[1])
		exact := tbl.AddExact(pair[0], pair[1])
		diff := table - exact
		if diff < -2 || diff > 2 {
			t.Errorf("Add(%v,%v)=%v diverges from AddExact=%v by more than rounding", pair[0], pair[1], table, exact)
		}
	}
}

func TestLogExp_RoundTrip(t *testing.T) {
	tbl := Default()
	for _, p := range []float64{1.0, 0.5, 0.01, 1e-6} {
		l := tbl.Log(p)
		back := tbl.Exp(l)
		if math.Abs(back-p)/p > 0.01 {
			t.Errorf("round trip for p=%v: Log=%v Exp=%v", p, l, back)
		}
	}
}

func TestCompare_HigherMagnitudeIsWorse(t *testing.T) {
	if !Compare(-10, -1000) {
		t.Error("Compare(-10, -1000) should report -10 as more likely")
	}
	if Compare(-1000, -10) {
		t.Error("Compare(-1000, -10) should report -1000 as less likely")
	}
}

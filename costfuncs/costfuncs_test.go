package costfuncs

import (
	"math"
	"testing"

	tn "github.com/sharnoff/tripletnet"
)

const epsilon = 1e-9

func TestMarginRankingLoss(t *testing.T) {
	m := MarginRanking(0.2)

	dista := []float64{1.0, 0.5, 0.3, 0.0}
	distb := []float64{0.5, 0.5, 0.2, 1.0}

	ls, err := m.Loss(dista, distb, 1)
	if err != nil {
		t.Fatal(err)
	}

	want := []float64{0, 0.2, 0.1, 1.2}
	for i := range want {
		if math.Abs(ls[i]-want[i]) > epsilon {
			t.Errorf("loss[%d] = %v, want %v", i, ls[i], want[i])
		}
	}

	da, db, err := m.Deriv(dista, distb, 1)
	if err != nil {
		t.Fatal(err)
	}

	wantA := []float64{0, -1, -1, -1}
	for i := range wantA {
		if da[i] != wantA[i] || db[i] != -wantA[i] {
			t.Errorf("deriv[%d] = (%v, %v), want (%v, %v)", i, da[i], db[i], wantA[i], -wantA[i])
		}
	}
}

func TestSoftMarginMatchesNumericalGradient(t *testing.T) {
	s := SoftMargin()
	dista := []float64{0.3, 2, -1}
	distb := []float64{0.5, 0.1, 3}

	da, db, err := s.Deriv(dista, distb, 1)
	if err != nil {
		t.Fatal(err)
	}

	const h = 1e-6
	for i := range dista {
		up := []float64{dista[i] + h}
		down := []float64{dista[i] - h}
		lu, _ := s.Loss(up, distb[i:i+1], 1)
		ld, _ := s.Loss(down, distb[i:i+1], 1)
		numeric := (lu[0] - ld[0]) / (2 * h)
		if math.Abs(numeric-da[i]) > 1e-6 {
			t.Errorf("d/dista[%d] = %v, numerical %v", i, da[i], numeric)
		}
		if math.Abs(da[i]+db[i]) > epsilon {
			t.Errorf("d/distb[%d] = %v, want %v", i, db[i], -da[i])
		}
	}
}

func TestLossesRejectMismatchedInput(t *testing.T) {
	for _, l := range []tn.RankingLoss{MarginRanking(0.1), SoftMargin()} {
		if _, err := l.Loss([]float64{1, 2}, []float64{1}, 1); !tn.IsInvariantViolation(err) {
			t.Errorf("%T: length mismatch gave %v", l, err)
		}
		if _, _, err := l.Deriv([]float64{1}, []float64{1}, 0.5); !tn.IsInvariantViolation(err) {
			t.Errorf("%T: bad target gave %v", l, err)
		}
	}
}

func TestRegistered(t *testing.T) {
	l, err := tn.NewLoss("margin-ranking", 0.3)
	if err != nil {
		t.Fatal(err)
	}
	if m, ok := l.(*marginRanking); !ok || m.Margin() != 0.3 {
		t.Errorf("NewLoss returned %#v", l)
	}

	if _, err := tn.NewLoss("soft-margin", 0); err != nil {
		t.Error(err)
	}

	if _, err := tn.NewLoss("hinge-of-doom", 0); !tn.IsNotFound(err) {
		t.Errorf("unknown loss gave %v", err)
	}
}

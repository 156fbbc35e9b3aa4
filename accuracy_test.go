package tripletnet

import (
	"math"
	"testing"
)

func TestLossAccuracy(t *testing.T) {
	tests := []struct {
		name         string
		dista, distb []float64
		margin       float64
		want         float64
	}{
		{"all correct", []float64{2, 3}, []float64{1, 1}, 0, 1},
		{"none correct", []float64{1, 1}, []float64{2, 3}, 0, 0},
		{"equal is wrong", []float64{1, 2, 3, 4}, []float64{1, 1, 1, 5}, 0, 0.5},
		{"margin", []float64{1.5, 3}, []float64{1, 1}, 1, 0.5},
		{"single", []float64{0.3}, []float64{0.2}, 0, 1},
	}

	for _, test := range tests {
		got, err := LossAccuracy(test.dista, test.distb, test.margin)
		if err != nil {
			t.Errorf("%s: %v", test.name, err)
		} else if got != test.want {
			t.Errorf("%s: got %v, want %v", test.name, got, test.want)
		}
	}
}

func TestLossAccuracyErrors(t *testing.T) {
	if _, err := LossAccuracy([]float64{1}, []float64{1, 2}, 0); !IsInvariantViolation(err) {
		t.Errorf("length mismatch: got error %v, want invariant violation", err)
	}
	if _, err := LossAccuracy(nil, nil, 0); !IsDivisionUndefined(err) {
		t.Errorf("empty batch: got error %v, want division undefined", err)
	}
	if _, err := LossAccuracy([]float64{1}, []float64{1}, math.NaN()); !IsConfiguration(err) {
		t.Errorf("NaN margin: got error %v, want configuration error", err)
	}
}

func TestDistances(t *testing.T) {
	ds, err := Distances([][]float64{{0, 0}, {1, 1}}, [][]float64{{3, 4}, {1, 1}})
	if err != nil {
		t.Fatal(err)
	}
	if ds[0] != 5 || ds[1] != 0 {
		t.Errorf("got %v, want [5 0]", ds)
	}

	if _, err := Distances([][]float64{{0}}, nil); !IsInvariantViolation(err) {
		t.Errorf("row mismatch: got error %v, want invariant violation", err)
	}
	if _, err := Distances([][]float64{{0}}, [][]float64{{0, 1}}); !IsInvariantViolation(err) {
		t.Errorf("dimension mismatch: got error %v, want invariant violation", err)
	}
}

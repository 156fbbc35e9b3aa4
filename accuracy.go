package tripletnet

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

// LossAccuracy returns the fraction of pairs for which dista - distb - margin > 0: the negative
// has been placed farther from the anchor than the positive, by at least the margin. Training
// reports accuracy with a margin of 0.
//
// dista and distb must have the same, non-zero, length.
func LossAccuracy(dista, distb []float64, margin float64) (float64, error) {
	if len(dista) != len(distb) {
		return 0, SizeMismatchError{Expected: len(dista), Given: len(distb), Name: "distb"}
	} else if len(dista) == 0 {
		return 0, errors.Wrap(ErrDivisionUndefined, "accuracy of an empty batch")
	} else if math.IsNaN(margin) {
		return 0, configErrorf("margin is NaN")
	}

	diff := make([]float64, len(dista))
	floats.SubTo(diff, dista, distb)

	var correct int
	for _, d := range diff {
		if d-margin > 0 {
			correct++
		}
	}

	return float64(correct) / float64(len(dista)), nil
}

// Distances returns, for each row, the euclidean distance between a[i] and b[i].
func Distances(a, b [][]float64) ([]float64, error) {
	if len(a) != len(b) {
		return nil, SizeMismatchError{Expected: len(a), Given: len(b), Name: "embeddings"}
	}

	ds := make([]float64, len(a))
	for i := range a {
		if len(a[i]) != len(b[i]) {
			return nil, invariantErrorf("embedding dimensions differ at %d (%d != %d)", i, len(a[i]), len(b[i]))
		}

		ds[i] = floats.Distance(a[i], b[i], 2)
	}

	return ds, nil
}

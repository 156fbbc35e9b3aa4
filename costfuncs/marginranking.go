package costfuncs

import (
	"math"

	"github.com/pkg/errors"
	tn "github.com/sharnoff/tripletnet"
)

type marginRanking struct {
	margin float64
}

// MarginRanking returns the margin ranking loss, which implements tripletnet.RankingLoss. For each
// pair, the loss is max(0, -target*(dista - distb) + margin).
func MarginRanking(margin float64) *marginRanking {
	return &marginRanking{margin}
}

func (m *marginRanking) TypeString() string {
	return "margin-ranking"
}

// Margin returns the margin the loss was constructed with.
func (m *marginRanking) Margin() float64 {
	return m.margin
}

func (m *marginRanking) Loss(dista, distb []float64, target float64) ([]float64, error) {
	if err := check(dista, distb, target); err != nil {
		return nil, err
	}

	ls := make([]float64, len(dista))
	for i := range dista {
		ls[i] = math.Max(0, -target*(dista[i]-distb[i])+m.margin)
	}

	return ls, nil
}

func (m *marginRanking) Deriv(dista, distb []float64, target float64) ([]float64, []float64, error) {
	if err := check(dista, distb, target); err != nil {
		return nil, nil, err
	}

	da := make([]float64, len(dista))
	db := make([]float64, len(dista))
	for i := range dista {
		// the hinge is flat at and below zero
		if -target*(dista[i]-distb[i])+m.margin > 0 {
			da[i] = -target
			db[i] = target
		}
	}

	return da, db, nil
}

// check covers the conditions shared by every loss in this package
func check(dista, distb []float64, target float64) error {
	if len(dista) != len(distb) {
		return tn.SizeMismatchError{Expected: len(dista), Given: len(distb), Name: "distb"}
	} else if target != 1 && target != -1 {
		return errors.Wrapf(tn.ErrInvariantViolation, "target must be 1 or -1 (%v)", target)
	}

	return nil
}

package costfuncs

import (
	"math"
)

type softMargin struct{}

// SoftMargin returns a smooth version of the margin ranking loss, log(1 + exp(-target*(dista -
// distb))). It has no margin; its gradient never quite vanishes, so easy triplets still contribute
// a little.
func SoftMargin() *softMargin {
	return &softMargin{}
}

func (s *softMargin) TypeString() string {
	return "soft-margin"
}

func (s *softMargin) Loss(dista, distb []float64, target float64) ([]float64, error) {
	if err := check(dista, distb, target); err != nil {
		return nil, err
	}

	ls := make([]float64, len(dista))
	for i := range dista {
		ls[i] = softplus(-target * (dista[i] - distb[i]))
	}

	return ls, nil
}

func (s *softMargin) Deriv(dista, distb []float64, target float64) ([]float64, []float64, error) {
	if err := check(dista, distb, target); err != nil {
		return nil, nil, err
	}

	da := make([]float64, len(dista))
	db := make([]float64, len(dista))
	for i := range dista {
		g := -target * logistic(-target*(dista[i]-distb[i]))
		da[i] = g
		db[i] = -g
	}

	return da, db, nil
}

// softplus is log(1 + e^x), without overflowing for large x
func softplus(x float64) float64 {
	if x > 30 {
		return x
	}
	return math.Log1p(math.Exp(x))
}

func logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

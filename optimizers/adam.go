package optimizers

import (
	"math"

	"github.com/pkg/errors"
	tn "github.com/sharnoff/tripletnet"
)

const (
	defaultBeta1   float64 = 0.9
	defaultBeta2   float64 = 0.999
	defaultEpsilon float64 = 1e-8
)

// moments is the state kept for one parameter group
type moments struct {
	m, v []float64
	t    int
}

type adam struct {
	beta1, beta2, epsilon float64

	groups map[string]*moments
}

// Adam returns the Adam optimizer, with betas 0.9 and 0.999 unless set by Betas. State is kept
// separately for each parameter group name, so one Adam should serve a single model.
func Adam() *adam {
	return &adam{
		beta1:   defaultBeta1,
		beta2:   defaultBeta2,
		epsilon: defaultEpsilon,
		groups:  make(map[string]*moments),
	}
}

// Betas sets the decay rates of the first and second moment estimates.
func (a *adam) Betas(beta1, beta2 float64) *adam {
	a.beta1 = beta1
	a.beta2 = beta2
	return a
}

// Epsilon sets the term added to the denominator for numerical stability.
func (a *adam) Epsilon(eps float64) *adam {
	a.epsilon = eps
	return a
}

func (a *adam) TypeString() string {
	return "adam"
}

// Steps returns the number of updates applied to the named group.
func (a *adam) Steps(name string) int {
	if g, ok := a.groups[name]; ok {
		return g.t
	}

	return 0
}

func (a *adam) Run(name string, size int, grad func(int) float64, add func(int, float64), learningRate float64) error {
	if !(a.beta1 >= 0 && a.beta1 < 1) || !(a.beta2 >= 0 && a.beta2 < 1) {
		return errors.Wrapf(tn.ErrConfiguration, "adam betas must be in [0, 1) (%v, %v)", a.beta1, a.beta2)
	}

	g, ok := a.groups[name]
	if !ok {
		g = &moments{m: make([]float64, size), v: make([]float64, size)}
		a.groups[name] = g
	} else if len(g.m) != size {
		return tn.SizeMismatchError{Expected: len(g.m), Given: size, Name: "parameter group " + name}
	}

	g.t++
	c1 := 1 - math.Pow(a.beta1, float64(g.t))
	c2 := 1 - math.Pow(a.beta2, float64(g.t))

	for i := 0; i < size; i++ {
		d := grad(i)
		g.m[i] = a.beta1*g.m[i] + (1-a.beta1)*d
		g.v[i] = a.beta2*g.v[i] + (1-a.beta2)*d*d

		mHat := g.m[i] / c1
		vHat := g.v[i] / c2
		add(i, -learningRate*mHat/(math.Sqrt(vHat)+a.epsilon))
	}

	return nil
}

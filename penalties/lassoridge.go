package penalties

import (
	"gonum.org/v1/gonum/floats"
)

// **********************************************
// Norm
// **********************************************

type norm float64

// Norm returns the Penalty λ‖e‖₂, applied to every embedding. It keeps embeddings from growing
// without bound to satisfy the margin. λ is a small value close to 0 where λ > 0.
func Norm(λ float64) *norm {
	p := norm(λ)
	return &p
}

func (p *norm) TypeString() string {
	return "norm"
}

func (p *norm) Cost(e []float64) float64 {
	return float64(*p) * floats.Norm(e, 2)
}

func (p *norm) Deriv(e []float64) []float64 {
	d := make([]float64, len(e))
	n := floats.Norm(e, 2)
	if n == 0 {
		// not differentiable at the origin; any subgradient with norm <= λ works, and zero is one
		return d
	}

	floats.ScaleTo(d, float64(*p)/n, e)
	return d
}

// **********************************************
// L2 (Ridge)
// **********************************************

type l2 float64

// L2 returns the Penalty λ‖e‖₂². λ is a small value close to 0 where λ > 0
func L2(λ float64) *l2 {
	p := l2(λ)
	return &p
}

// Ridge is a proxy for L2
func Ridge(λ float64) *l2 {
	return L2(λ)
}

func (p *l2) TypeString() string {
	return "l2-ridge"
}

func (p *l2) Cost(e []float64) float64 {
	return float64(*p) * floats.Dot(e, e)
}

func (p *l2) Deriv(e []float64) []float64 {
	d := make([]float64, len(e))
	floats.ScaleTo(d, 2*float64(*p), e)
	return d
}

// **********************************************
// L1 (Lasso)
// **********************************************

type l1 float64

// L1 returns the Penalty λ‖e‖₁. λ is a small value close to 0 where λ > 0
func L1(λ float64) *l1 {
	p := l1(λ)
	return &p
}

// Lasso is a proxy for L1
func Lasso(λ float64) *l1 {
	return L1(λ)
}

func (p *l1) TypeString() string {
	return "l1-lasso"
}

func (p *l1) Cost(e []float64) float64 {
	return float64(*p) * floats.Norm(e, 1)
}

func (p *l1) Deriv(e []float64) []float64 {
	λ := float64(*p)
	d := make([]float64, len(e))
	for i, v := range e {
		if v != 0 {
			d[i] = λ * sign(v)
		}
	}
	return d
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}

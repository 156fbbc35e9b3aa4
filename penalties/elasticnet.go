package penalties

import (
	"gonum.org/v1/gonum/floats"
)

// DefaultAlpha is the mix used by ByName for "elastic-net"
const DefaultAlpha float64 = 0.5

type elasticNet struct {
	α float64
	λ float64
}

// λ is a small value close to 0 where λ > 0,
// α is a value that controls the ratio between L1 and L2
// Regularization, where 0 ≤ α ≤ 1. α = 1 is functionally identical to L1 and α = 0 is equivalent to
// L2.
func ElasticNet(α, λ float64) *elasticNet {
	return &elasticNet{α, λ}
}

func (p *elasticNet) TypeString() string {
	return "elastic-net"
}

func (p *elasticNet) Cost(e []float64) float64 {
	return p.λ * ((1-p.α)*floats.Dot(e, e) + p.α*floats.Norm(e, 1))
}

func (p *elasticNet) Deriv(e []float64) []float64 {
	d := make([]float64, len(e))
	for i, v := range e {
		d[i] = p.λ * (1 - p.α) * 2 * v
		if v != 0 {
			d[i] += p.λ * p.α * sign(v)
		}
	}
	return d
}

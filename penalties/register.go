// Package penalties provides regularization terms on embeddings, for use as tripletnet.Penalty.
package penalties

import (
	"github.com/pkg/errors"
	tn "github.com/sharnoff/tripletnet"
)

// ByName returns the Penalty with the given TypeString and strength λ. "elastic-net" uses
// DefaultAlpha. A λ of 0 returns nil: no penalty at all.
func ByName(name string, λ float64) (tn.Penalty, error) {
	if λ < 0 {
		return nil, errors.Wrapf(tn.ErrConfiguration, "penalty strength must be >= 0 (%v)", λ)
	} else if λ == 0 {
		return nil, nil
	}

	switch name {
	case Norm(0).TypeString():
		return Norm(λ), nil
	case L2(0).TypeString():
		return L2(λ), nil
	case L1(0).TypeString():
		return L1(λ), nil
	case ElasticNet(0, 0).TypeString():
		return ElasticNet(DefaultAlpha, λ), nil
	}

	return nil, errors.Wrapf(tn.ErrNotFound, "no penalty named %q", name)
}

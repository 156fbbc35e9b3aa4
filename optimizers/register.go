// Package optimizers provides the update rules that trainable embedders apply to their weights.
package optimizers

import (
	"github.com/pkg/errors"
	tn "github.com/sharnoff/tripletnet"
)

// ByName returns the optimizer with the given name: "sgd" or "adam". The betas are only used by
// Adam.
func ByName(name string, beta1, beta2 float64) (tn.Optimizer, error) {
	switch name {
	case SGD().TypeString():
		return SGD(), nil
	case "adam":
		return Adam().Betas(beta1, beta2), nil
	default:
		return nil, errors.Wrapf(tn.ErrNotFound, "no optimizer named %q", name)
	}
}

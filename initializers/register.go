// Package initializers provides the starting values for the weights of trainable embedders. Every
// Initializer draws from the *rand.Rand it is given, so that runs are reproducible from a seed.
package initializers

import (
	"math"

	"github.com/pkg/errors"
	tn "github.com/sharnoff/tripletnet"
)

// default values, because 'default' is a keyword
var defaultValue = map[string]float64{
	"uniform-lower": -1,
	"uniform-upper": 1,
	"normal-mean":   0,
	"normal-sd":     1,
	"varscl-factor": 1,
}

// SetDefault changes one of the default values used by the constructors in this package. It only
// affects values constructed afterwards.
func SetDefault(name string, value float64) error {
	if _, ok := defaultValue[name]; !ok {
		return errors.Wrapf(tn.ErrNotFound, "Value with name %q does not exist", name)
	} else if math.IsNaN(value) || math.IsInf(value, 0) {
		return errors.Wrapf(tn.ErrConfiguration, "Value is invalid (%v)", value)
	}

	defaultValue[name] = value
	return nil
}

// Default returns the Initializer used when none is given: Xavier.
func Default() tn.Initializer {
	return Xavier()
}

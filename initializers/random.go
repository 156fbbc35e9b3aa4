package initializers

import (
	"math/rand"
)

type random struct {
	RNG
}

// Random returns an Initializer that uses the provided RNG to generate the weights. There is no
// scaling beyond that of the RNG.
func Random(g RNG) random {
	return random{g}
}

// Set is the implementation of tripletnet.Initializer
func (r random) Set(rng *rand.Rand, fanIn, fanOut int, ws []float64) {
	for i := range ws {
		ws[i] = r.Gen(rng)
	}
}

// Package generator builds the triplet lists used for training: a random list to start with, and
// then, every few epochs, a list that mixes the hardest triplets seen so far with fresh random
// ones.
//
// All randomness comes from the *rand.Rand passed to each call, so that a list can be reproduced
// from the seed and the state of the sampler.
package generator

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	tn "github.com/sharnoff/tripletnet"
	"k8s.io/klog/v2"
)

// Generator produces TripletLists over a fixed set of classes.
type Generator struct {
	// pools[c] is the list of dataset indices of class c
	pools [][]int

	perClass int
}

// New returns a Generator producing perClass triplets for each class. pools[c] lists the dataset
// indices belonging to class c. There must be at least two classes, each with at least two items,
// so that every class can provide an anchor, a distinct positive, and a negative from elsewhere.
func New(pools [][]int, perClass int) (*Generator, error) {
	if len(pools) < 2 {
		return nil, errors.Wrapf(tn.ErrConfiguration, "at least 2 classes are required (have %d)", len(pools))
	} else if perClass <= 0 {
		return nil, errors.Wrapf(tn.ErrConfiguration, "triplets per class must be > 0 (%d)", perClass)
	}

	g := &Generator{
		pools:    make([][]int, len(pools)),
		perClass: perClass,
	}

	for c, p := range pools {
		if len(p) < 2 {
			return nil, errors.Wrapf(tn.ErrConfiguration, "class %d has %d items, at least 2 are required", c, len(p))
		}

		g.pools[c] = make([]int, len(p))
		copy(g.pools[c], p)
	}

	return g, nil
}

// NumClasses returns the number of classes the Generator draws from.
func (g *Generator) NumClasses() int {
	return len(g.pools)
}

// PerClass returns the number of triplets produced for each class by RegenerateTripletList.
func (g *Generator) PerClass() int {
	return g.perClass
}

// Classes returns the list of all classes, in order. It is the usual argument to
// InitialTripletList.
func (g *Generator) Classes() []int {
	cs := make([]int, len(g.pools))
	for i := range cs {
		cs[i] = i
	}

	return cs
}

// InitialTripletList returns n random triplets for each of the given classes, in the order the
// classes are given. The anchor and positive are two distinct items of the class; the negative is
// drawn from a class chosen uniformly among all the others.
func (g *Generator) InitialTripletList(rng *rand.Rand, classes []int, n int) (tn.TripletList, error) {
	if rng == nil {
		return nil, errors.Wrap(tn.ErrConfiguration, "rand source is nil")
	} else if n < 0 {
		return nil, errors.Wrapf(tn.ErrConfiguration, "number of triplets per class must be >= 0 (%d)", n)
	}

	for _, c := range classes {
		if c < 0 || c >= len(g.pools) {
			return nil, errors.Wrapf(tn.ErrInvariantViolation, "class %d is out of range [0, %d)", c, len(g.pools))
		}
	}

	list := make(tn.TripletList, 0, len(classes)*n)
	for _, c := range classes {
		for i := 0; i < n; i++ {
			list = append(list, g.random(rng, c))
		}
	}

	return list, nil
}

// RegenerateTripletList returns a new list with PerClass() triplets for every class. For each
// class, round(hardFrac * PerClass()) triplets are taken from the hardest records in hard,
// hardest first, and the remainder is filled with random triplets, drawn the same way as by
// InitialTripletList. If a class has fewer hard records than requested, all of them are used and
// the shortfall is filled randomly.
//
// With hardFrac = 0 and the same rng state, the result is identical to
// InitialTripletList(rng, Classes(), PerClass()).
func (g *Generator) RegenerateTripletList(rng *rand.Rand, hard tn.HardSource, hardFrac float64) (tn.TripletList, error) {
	if rng == nil {
		return nil, errors.Wrap(tn.ErrConfiguration, "rand source is nil")
	} else if hard == nil {
		return nil, errors.Wrap(tn.ErrConfiguration, "HardSource is nil")
	} else if !(hardFrac >= 0 && hardFrac <= 1) {
		return nil, errors.Wrapf(tn.ErrConfiguration, "hard fraction must be in [0, 1] (%v)", hardFrac)
	} else if hard.NumClasses() != len(g.pools) {
		return nil, errors.Wrapf(tn.ErrInvariantViolation, "HardSource has %d classes, generator has %d", hard.NumClasses(), len(g.pools))
	}

	want := int(math.Round(hardFrac * float64(g.perClass)))

	list := make(tn.TripletList, 0, len(g.pools)*g.perClass)
	for c := range g.pools {
		var taken int
		if want > 0 {
			recs, err := hard.HardestForClass(c)
			if err != nil {
				return nil, errors.Wrapf(err, "Failed to get hard triplets for class %d\n", c)
			}

			taken = want
			if len(recs) < want {
				taken = len(recs)
				klog.V(1).Infof("class %d: %v: wanted %d hard triplets, have %d; filling the rest randomly",
					c, tn.ErrInsufficientHardCandidates, want, len(recs))
			}

			for _, r := range recs[:taken] {
				list = append(list, r.Triplet)
			}
		}

		for i := taken; i < g.perClass; i++ {
			list = append(list, g.random(rng, c))
		}
	}

	return list, nil
}

// random returns a random triplet for class c
func (g *Generator) random(rng *rand.Rand, c int) tn.Triplet {
	pool := g.pools[c]

	a := rng.Intn(len(pool))
	p := rng.Intn(len(pool) - 1)
	if p >= a {
		p++
	}

	nc := rng.Intn(len(g.pools) - 1)
	if nc >= c {
		nc++
	}
	neg := g.pools[nc]

	return tn.Triplet{
		Anchor:   pool[a],
		Positive: pool[p],
		Negative: neg[rng.Intn(len(neg))],
	}
}

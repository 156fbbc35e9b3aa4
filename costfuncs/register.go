// Package costfuncs provides the ranking losses that can be used to train an embedder. Importing
// it registers them with tripletnet by name, so that they can be built with tripletnet.NewLoss.
package costfuncs

import (
	tn "github.com/sharnoff/tripletnet"
)

func init() {
	list := map[string]func(float64) tn.RankingLoss{
		MarginRanking(0).TypeString(): func(margin float64) tn.RankingLoss { return MarginRanking(margin) },
		SoftMargin().TypeString():     func(float64) tn.RankingLoss { return SoftMargin() },
	}

	for s, f := range list {
		if err := tn.RegisterLoss(s, f); err != nil {
			panic(err.Error())
		}
	}
}

// Package tripletnet trains embedding networks with triplet loss, and keeps the hardest triplets
// seen during training so that they can be mixed back into later triplet lists.
//
// For brevity, tripletnet is abbreviated 'tn'.
//
// # Triplets
//
// A Triplet is three dataset indices: an anchor, a positive of the same class, and a negative of
// a different class. A network is trained so that, in embedding space, the anchor is closer to
// the positive than to the negative. Two distances are computed for every triplet:
//
//	dista = ||anchor - negative||
//	distb = ||anchor - positive||
//
// and the RankingLoss (see the subpackage "costfuncs") pushes dista above distb.
//
// Lists of triplets come from the subpackage "generator", which draws them at random to begin
// with, and later takes a fraction from the records kept by the hard-negative sampler (the
// subpackage "sampler"). Every batch of training reports its per-triplet losses to the sampler,
// which keeps a bounded number of the hardest for each class.
//
// # Creating a Trainer
//
// The standard procedure for a run is:
//
//	net, err := tn.NewEmbedder("simple", tn.EmbedderArgs{ImSize: 64, Dim: 128, RNG: rng})
//	loss, err := tn.NewLoss("margin-ranking", 0.2)
//
//	t, err := tn.NewTrainer(tn.TrainArgs{
//		Embedder:    net,
//		Loss:        loss,
//		Penalty:     penalties.Norm(0.001),
//		Train:       trainLoader,
//		Validation:  valLoader,
//		Sampler:     samp,
//		Regenerator: gen,
//		HardFrac:    0.5,
//		RNG:         rng,
//		Checkpoints: store,
//		Network:     "simple",
//		Epochs:      10,
//		ValFreq:     1,
//		TripletFreq: 2,
//	})
//
//	res, err := t.Run()
//
// Embedders and losses are registered by name from the init functions of their subpackages, so
// those must be imported (even if only for side effects) before NewEmbedder or NewLoss is called.
// The command in cmd/tripletnet wires all of the above from a YAML configuration file.
//
// # Errors
//
// Errors returned by this package and its subpackages wrap one of a small set of sentinels, which
// can be checked with IsConfiguration, IsInvariantViolation, IsNotFound, and
// IsDivisionUndefined. Errors are wrapped with github.com/pkg/errors, so formatting them with
// "%+v" gives their stack traces.
package tripletnet

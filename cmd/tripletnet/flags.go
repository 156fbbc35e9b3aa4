package main

import (
	"flag"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/sharnoff/tripletnet/config"
)

// intList is a comma separated list of integers, such as "0,1,2,3"
type intList struct {
	p *[]int
}

func (l intList) String() string {
	if l.p == nil {
		return ""
	}

	s := make([]string, len(*l.p))
	for i, v := range *l.p {
		s[i] = strconv.Itoa(v)
	}
	return strings.Join(s, ",")
}

func (l intList) Set(s string) error {
	var vs []int
	for _, f := range strings.Split(s, ",") {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}

		v, err := strconv.Atoi(f)
		if err != nil {
			return errors.Wrapf(err, "Couldn't parse list element %q\n", f)
		}
		vs = append(vs, v)
	}

	*l.p = vs
	return nil
}

// bindFlags defines a flag for every field of c on fs, with the current values as defaults
func bindFlags(fs *flag.FlagSet, c *config.Config) {
	fs.IntVar(&c.BatchSize, "batch-size", c.BatchSize, "input batch size for training")
	fs.IntVar(&c.Epochs, "epochs", c.Epochs, "number of epochs to train")
	fs.Float64Var(&c.LR, "lr", c.LR, "learning rate")
	fs.Float64Var(&c.LRDecay, "lr-decay", c.LRDecay, "factor the learning rate is multiplied by every lr-decay-every steps")
	fs.IntVar(&c.LRDecayEvery, "lr-decay-every", c.LRDecayEvery, "optimizer steps between learning rate decays (0: constant)")
	fs.Float64Var(&c.Beta1, "beta1", c.Beta1, "adam beta1")
	fs.Float64Var(&c.Beta2, "beta2", c.Beta2, "adam beta2")
	fs.Int64Var(&c.Seed, "seed", c.Seed, "random seed")
	fs.Float64Var(&c.Margin, "margin", c.Margin, "margin for triplet loss")
	fs.Float64Var(&c.Reg, "reg", c.Reg, "regularization for embedding")
	fs.StringVar(&c.Loss, "loss", c.Loss, "ranking loss: margin-ranking or soft-margin")
	fs.StringVar(&c.Optimizer, "optimizer", c.Optimizer, "optimizer: adam or sgd")
	fs.StringVar(&c.Penalty, "penalty", c.Penalty, "embedding penalty: norm, l2-ridge, l1-lasso, or elastic-net")
	fs.StringVar(&c.Resume, "resume", c.Resume, "path to latest checkpoint (default: none)")

	fs.StringVar(&c.Name, "name", c.Name, "name of experiment")
	fs.StringVar(&c.RunsDir, "runs-dir", c.RunsDir, "directory holding the runs")
	fs.StringVar(&c.Data, "data", c.Data, "dataset")
	fs.StringVar(&c.DataDir, "data-dir", c.DataDir, "directory of the dataset")
	fs.IntVar(&c.ImSize, "im-size", c.ImSize, "side length images are resized to")

	fs.IntVar(&c.TripletFreq, "triplet-freq", c.TripletFreq, "epochs before new triplets list")
	fs.IntVar(&c.ValFreq, "val-freq", c.ValFreq, "epochs before validating on validation set")
	fs.StringVar(&c.Network, "network", c.Network, "network architecture to use")
	fs.IntVar(&c.EmbeddingDim, "embedding-dim", c.EmbeddingDim, "size of the embeddings")
	fs.IntVar(&c.LogInterval, "log-interval", c.LogInterval, "how many batches to wait before logging training status")

	fs.Var(intList{&c.TrainClasses}, "train-classes", "comma separated training classes")
	fs.Var(intList{&c.ValClasses}, "val-classes", "comma separated validation classes")
	fs.IntVar(&c.TripletsPerClass, "triplets-per-class", c.TripletsPerClass, "triplets per class in each list")
	fs.Float64Var(&c.HardFrac, "hard-frac", c.HardFrac, "fraction of each class's triplets taken from the hardest seen")
	fs.StringVar(&c.TiePolicy, "tie-policy", c.TiePolicy, "which of equally hard triplets to keep: keep-earliest or keep-latest")

	fs.BoolVar(&c.DedupeHard, "dedupe-hard", c.DedupeHard, "keep at most one record per triplet among the hardest seen")

	fs.IntVar(&c.Workers, "workers", c.Workers, "goroutines loading batches")
	fs.IntVar(&c.Prefetch, "prefetch", c.Prefetch, "batches loaded ahead of training")
}

// overrideFlags copies the flags explicitly given in fs onto c
func overrideFlags(fs *flag.FlagSet, c *config.Config) error {
	target := flag.NewFlagSet("config", flag.ContinueOnError)
	bindFlags(target, c)

	var err error
	fs.Visit(func(f *flag.Flag) {
		if err != nil || target.Lookup(f.Name) == nil {
			return
		}
		err = target.Set(f.Name, f.Value.String())
	})

	return err
}

// Command tripletnet trains an embedding network on an image folder dataset with triplet loss,
// mixing the hardest triplets seen back into the training list every few epochs.
//
// Settings come from the defaults, then the YAML file given by -config, then any flags given
// explicitly.
package main

import (
	"flag"
	"math/rand"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	tn "github.com/sharnoff/tripletnet"
	"github.com/sharnoff/tripletnet/checkpoint"
	"github.com/sharnoff/tripletnet/config"
	"github.com/sharnoff/tripletnet/dataset"
	"github.com/sharnoff/tripletnet/generator"
	"github.com/sharnoff/tripletnet/hyperparams"
	"github.com/sharnoff/tripletnet/initializers"
	"github.com/sharnoff/tripletnet/optimizers"
	"github.com/sharnoff/tripletnet/penalties"
	"github.com/sharnoff/tripletnet/sampler"
	"k8s.io/klog/v2"

	_ "github.com/sharnoff/tripletnet/costfuncs"
	_ "github.com/sharnoff/tripletnet/embedders"
)

var flagConfig = flag.String("config", "", "YAML run configuration; flags given explicitly override it")

func main() {
	klog.InitFlags(nil)

	cfg := config.Default()
	bindFlags(flag.CommandLine, cfg)
	flag.Parse()
	defer klog.Flush()

	if *flagConfig != "" {
		var err error
		if cfg, err = config.Load(*flagConfig); err != nil {
			klog.Fatalf("Error:\n%+v", err)
		} else if err = overrideFlags(flag.CommandLine, cfg); err != nil {
			klog.Fatalf("Error:\n%+v", err)
		}
	}

	if err := run(cfg); err != nil {
		klog.Fatalf("Error:\n%+v", err)
	}
}

// data holds everything derived from the dataset
type data struct {
	train, val     *dataset.Dataset
	trainGen       *generator.Generator
	trainLd, valLd *dataset.Loader
}

func loadData(cfg *config.Config, rng *rand.Rand) (*data, error) {
	if cfg.Data != "cub-2011" {
		return nil, errors.Wrapf(tn.ErrConfiguration, "unknown dataset %q", cfg.Data)
	}

	var d data
	var err error
	if d.train, err = dataset.LoadFolder(cfg.DataDir, cfg.TrainClasses, cfg.ImSize, cfg.Workers); err != nil {
		return nil, errors.Wrapf(err, "Failed to load training classes\n")
	} else if d.val, err = dataset.LoadFolder(cfg.DataDir, cfg.ValClasses, cfg.ImSize, cfg.Workers); err != nil {
		return nil, errors.Wrapf(err, "Failed to load validation classes\n")
	}

	if d.trainGen, err = generator.New(d.train.Pools(), cfg.TripletsPerClass); err != nil {
		return nil, err
	}
	valGen, err := generator.New(d.val.Pools(), cfg.TripletsPerClass)
	if err != nil {
		return nil, err
	}

	trainList, err := d.trainGen.InitialTripletList(rng, d.trainGen.Classes(), cfg.TripletsPerClass)
	if err != nil {
		return nil, err
	}
	valList, err := valGen.InitialTripletList(rng, valGen.Classes(), cfg.TripletsPerClass)
	if err != nil {
		return nil, err
	}

	opts := dataset.LoaderOptions{
		BatchSize: cfg.BatchSize,
		Workers:   cfg.Workers,
		Prefetch:  cfg.Prefetch,
		Shuffle:   true,
		RNG:       rng,
	}

	if d.trainLd, err = dataset.NewLoader(d.train, trainList, opts); err != nil {
		return nil, err
	} else if d.valLd, err = dataset.NewLoader(d.val, valList, opts); err != nil {
		return nil, err
	}

	return &d, nil
}

// learningRate is constant unless lr_decay_every is set, in which case it decays over the
// given number of optimizer steps
func learningRate(cfg *config.Config, steps int) tn.HyperParameter {
	if cfg.LRDecayEvery <= 0 || cfg.LRDecay == 1 {
		return hyperparams.Constant(cfg.LR)
	}

	return hyperparams.Decay(cfg.LR, cfg.LRDecay, cfg.LRDecayEvery, steps)
}

func initNet(cfg *config.Config, rng *rand.Rand, steps int) (tn.Embedder, error) {
	opt, err := optimizers.ByName(cfg.Optimizer, cfg.Beta1, cfg.Beta2)
	if err != nil {
		return nil, err
	}

	net, err := tn.NewEmbedder(cfg.Network, tn.EmbedderArgs{
		ImSize:       cfg.ImSize,
		Dim:          cfg.EmbeddingDim,
		RNG:          rng,
		Init:         initializers.Xavier(),
		Optimizer:    opt,
		LearningRate: learningRate(cfg, steps),
	})
	if err != nil {
		return nil, err
	}

	if t, ok := net.(tn.Trainable); ok {
		klog.Infof("  + Number of params: %d", t.NumParams())
	} else {
		klog.Infof("Network %q has no parameters; only mining hard triplets", cfg.Network)
	}

	return net, nil
}

func run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	rng := rand.New(rand.NewSource(cfg.Seed))

	d, err := loadData(cfg, rng)
	if err != nil {
		return err
	}

	net, err := initNet(cfg, rng, cfg.Epochs*d.trainLd.NumBatches())
	if err != nil {
		return err
	}

	loss, err := tn.NewLoss(cfg.Loss, cfg.Margin)
	if err != nil {
		return err
	}

	penalty, err := penalties.ByName(cfg.Penalty, cfg.Reg)
	if err != nil {
		return err
	}

	tie, err := sampler.ParseTiePolicy(cfg.TiePolicy)
	if err != nil {
		return err
	}

	capacity := sampler.Capacity(cfg.HardFrac, cfg.BatchSize)
	if capacity < 1 {
		capacity = 1
	}

	opts := []sampler.Option{sampler.WithTiePolicy(tie)}
	if cfg.DedupeHard {
		opts = append(opts, sampler.WithDedupe())
	}

	samp, err := sampler.New(d.train.NumClasses(), capacity, d.train, opts...)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	startEpoch, best := 1, 0.0
	if cfg.Resume != "" {
		c, err := checkpoint.Restore(cfg.Resume, cfg.Network, net)
		if tn.IsNotFound(err) {
			klog.Warningf("=> no checkpoint found at '%s'", cfg.Resume)
		} else if err != nil {
			return err
		} else {
			startEpoch, best = c.Epoch, c.BestAccuracy
			if c.RunID != "" {
				runID = c.RunID
			}
		}
	}

	dir := filepath.Join(cfg.RunsDir, "r-"+time.Now().Format("01-02-15-04"), cfg.Name)
	store, err := checkpoint.NewStore(dir)
	if err != nil {
		return err
	}
	if err := cfg.Save(filepath.Join(dir, "config.yaml")); err != nil {
		return err
	}

	klog.Infof("Run %s: %d training triplets, %d validation triplets, writing to %s",
		runID, d.trainLd.Len(), d.valLd.Len(), dir)

	tr, err := tn.NewTrainer(tn.TrainArgs{
		Embedder:     net,
		Loss:         loss,
		Penalty:      penalty,
		Train:        d.trainLd,
		Validation:   d.valLd,
		Sampler:      samp,
		Regenerator:  d.trainGen,
		HardFrac:     cfg.HardFrac,
		RNG:          rng,
		Checkpoints:  store,
		Network:      cfg.Network,
		RunID:        runID,
		Epochs:       cfg.Epochs,
		StartEpoch:   startEpoch,
		ValFreq:      cfg.ValFreq,
		TripletFreq:  cfg.TripletFreq,
		LogInterval:  cfg.LogInterval,
		BestAccuracy: best,
		Workers:      cfg.Workers,
	})
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := tr.Run()
	if err != nil {
		return err
	}

	klog.Infof("Done training! It took %v. Best accuracy %.2f%% (epoch %d), %d triplet lists regenerated",
		time.Since(start).Round(time.Second), 100*res.BestAccuracy, res.BestEpoch, res.Regenerations)
	return nil
}

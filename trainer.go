package tripletnet

import (
	"math"
	"math/rand"

	"github.com/pkg/errors"
	"github.com/sharnoff/tripletnet/utils"
	"gonum.org/v1/gonum/floats"
	"k8s.io/klog/v2"
)

// target given to the RankingLoss: dista (anchor to negative) should be the larger distance
const target float64 = 1

// A wrapper for sending back the progress of training or validation
type Result struct {
	Epoch int

	// Batch is the index of the batch within the epoch. It is 0 for validation results.
	Batch int

	// Seen is the number of triplets processed before this batch; Total is the size of the
	// triplet list.
	Seen, Total int

	// Loss, Accuracy, and EmbNorm are the values for the most recent batch. The Avg variants are
	// averaged over the epoch so far.
	Loss, LossAvg         float64
	Accuracy, AccuracyAvg float64
	EmbNorm, EmbNormAvg   float64

	// The result is either from validation or a status update
	IsTest bool
}

// EpochResult summarizes a pass over a BatchSource.
type EpochResult struct {
	Epoch    int
	Batches  int
	Triplets int

	// averages over the epoch, weighted by batch size
	Loss     float64
	Accuracy float64
	EmbNorm  float64
}

// RunResult is returned by Run.
type RunResult struct {
	// LastEpoch is the last epoch that was trained.
	LastEpoch int

	BestAccuracy float64

	// BestEpoch is the epoch whose validation gave BestAccuracy, or 0 if no validation improved on
	// the starting value.
	BestEpoch int

	// Regenerations is the number of times the triplet list was replaced.
	Regenerations int

	LastTrain      EpochResult
	LastValidation EpochResult
}

type TrainArgs struct {
	// Embedder is the network being trained. If it is not Trainable, only the forward pass is run
	// and the sampler is still fed, which can be used to mine hard triplets for a fixed network.
	Embedder Embedder

	Loss RankingLoss

	// Penalty is applied to the embeddings of each role (anchor, positive, negative) of a batch,
	// flattened into one vector. It may be nil.
	Penalty Penalty

	// Train provides the training batches. Its triplet list is replaced every TripletFreq epochs.
	Train BatchSource

	// Validation provides the validation batches. It may be nil if ValFreq <= 0.
	Validation BatchSource

	Sampler     Sampler
	Regenerator Regenerator

	// HardFrac is the fraction of each class's triplets that regeneration takes from the sampler.
	HardFrac float64

	// RNG is given to the Regenerator.
	RNG *rand.Rand

	// Checkpoints receives a Checkpoint after every validation. It may be nil.
	Checkpoints CheckpointStore

	// Network and RunID are recorded in checkpoints.
	Network string
	RunID   string

	// Epochs are numbered from 1. Training runs from StartEpoch (1 if zero) to Epochs, inclusive.
	Epochs     int
	StartEpoch int

	// ValFreq, TripletFreq, and LogInterval give how often to validate (in epochs), regenerate
	// the triplet list (in epochs), and log progress (in batches). Zero or less disables
	// validation or regeneration; LogInterval defaults to 1.
	ValFreq     int
	TripletFreq int
	LogInterval int

	// AccuracyMargin is the margin used by LossAccuracy. The loss's own margin is separate.
	AccuracyMargin float64

	// BestAccuracy is the best validation accuracy of earlier runs, when resuming.
	BestAccuracy float64

	// Workers is the number of goroutines used for the forward pass. All CPUs are used if it is
	// zero or less.
	Workers int

	// Update is how validation results and status updates are returned. It may be nil.
	Update func(Result)
}

// Trainer runs the training loop: batches are embedded, scored, reported to the sampler, and
// used to update the embedder; every few epochs the triplet list is regenerated from the hardest
// triplets seen. A Trainer is not safe for concurrent use.
type Trainer struct {
	args      TrainArgs
	trainable Trainable

	best      float64
	bestEpoch int
	regens    int
}

// NewTrainer checks the arguments and returns a Trainer. All errors satisfy IsConfiguration.
func NewTrainer(args TrainArgs) (*Trainer, error) {
	switch {
	case args.Embedder == nil:
		return nil, NilArgError{"Embedder"}
	case args.Loss == nil:
		return nil, NilArgError{"Loss"}
	case args.Train == nil:
		return nil, NilArgError{"Train"}
	case args.Sampler == nil:
		return nil, NilArgError{"Sampler"}
	case args.ValFreq > 0 && args.Validation == nil:
		return nil, configErrorf("ValFreq is %d but Validation is nil", args.ValFreq)
	case args.TripletFreq > 0 && args.Regenerator == nil:
		return nil, configErrorf("TripletFreq is %d but Regenerator is nil", args.TripletFreq)
	case args.TripletFreq > 0 && args.RNG == nil:
		return nil, configErrorf("TripletFreq is %d but RNG is nil", args.TripletFreq)
	case !(args.HardFrac >= 0 && args.HardFrac <= 1):
		return nil, configErrorf("HardFrac must be in [0, 1] (%v)", args.HardFrac)
	case args.Epochs < 0:
		return nil, configErrorf("Epochs must be >= 0 (%d)", args.Epochs)
	case args.StartEpoch < 0:
		return nil, configErrorf("StartEpoch must be >= 0 (%d)", args.StartEpoch)
	case math.IsNaN(args.AccuracyMargin):
		return nil, configErrorf("AccuracyMargin is NaN")
	}

	if args.StartEpoch == 0 {
		args.StartEpoch = 1
	}
	if args.LogInterval <= 0 {
		args.LogInterval = 1
	}
	if args.Update == nil {
		args.Update = func(Result) {}
	}

	t := &Trainer{
		args: args,
		best: args.BestAccuracy,
	}

	t.trainable, _ = args.Embedder.(Trainable)
	return t, nil
}

// BestAccuracy returns the best validation accuracy so far.
func (t *Trainer) BestAccuracy() float64 {
	return t.best
}

// Run trains from StartEpoch to Epochs. After each epoch that is a multiple of ValFreq, the
// network is validated and checkpointed; after each multiple of TripletFreq, the triplet list is
// regenerated from the sampler, swapped into Train, and the sampler is reset.
func (t *Trainer) Run() (RunResult, error) {
	var res RunResult
	validate, regenerate := Every(t.args.ValFreq), Every(t.args.TripletFreq)

	for epoch := t.args.StartEpoch; epoch <= t.args.Epochs; epoch++ {
		tr, err := t.TrainEpoch(epoch)
		if err != nil {
			return res, errors.Wrapf(err, "Training epoch %d failed\n", epoch)
		}

		res.LastEpoch = epoch
		res.LastTrain = tr

		if validate(epoch) {
			vr, err := t.Validate(epoch)
			if err != nil {
				return res, errors.Wrapf(err, "Validation after epoch %d failed\n", epoch)
			}

			res.LastValidation = vr
			if err = t.checkpoint(epoch, vr.Accuracy); err != nil {
				return res, err
			}
		}

		if regenerate(epoch) {
			if err := t.Regenerate(); err != nil {
				return res, errors.Wrapf(err, "Regenerating triplets after epoch %d failed\n", epoch)
			}
		}
	}

	res.BestAccuracy = t.best
	res.BestEpoch = t.bestEpoch
	res.Regenerations = t.regens
	return res, nil
}

func (t *Trainer) checkpoint(epoch int, acc float64) error {
	isBest := acc > t.best
	if isBest {
		t.best = acc
		t.bestEpoch = epoch
	}

	if t.args.Checkpoints == nil {
		return nil
	}

	c := Checkpoint{
		RunID:        t.args.RunID,
		Epoch:        epoch + 1,
		BestAccuracy: t.best,
		Network:      t.args.Network,
	}

	if s, ok := t.args.Embedder.(Stateful); ok {
		st, err := s.State()
		if err != nil {
			return errors.Wrapf(err, "Failed to get network state after epoch %d\n", epoch)
		}
		c.Model = st
	}

	if err := t.args.Checkpoints.Save(c, isBest); err != nil {
		return errors.Wrapf(err, "Failed to save checkpoint after epoch %d\n", epoch)
	}

	return nil
}

// Regenerate replaces the training triplet list with one built from the sampler's hardest
// records, then resets the sampler.
func (t *Trainer) Regenerate() error {
	list, err := t.args.Regenerator.RegenerateTripletList(t.args.RNG, t.args.Sampler, t.args.HardFrac)
	if err != nil {
		return err
	}

	t.args.Train.SetTripletList(list)
	t.args.Sampler.Reset()
	t.regens++

	klog.Infof("Regenerated triplet list: %d triplets, hard fraction %.2f", len(list), t.args.HardFrac)
	return nil
}

// pass holds the outputs of the forward pass over a batch
type pass struct {
	// emb[k][i] is the embedding of image i of role k (anchor, positive, negative)
	emb [3][][]float64

	// dista[i] is the anchor to negative distance, distb[i] anchor to positive
	dista, distb []float64

	loss []float64
}

func (t *Trainer) forward(b Batch) (pass, error) {
	var f pass

	n := b.Size()
	for k := range b.Images {
		if len(b.Images[k]) != n {
			return f, SizeMismatchError{Expected: n, Given: len(b.Images[k]), Name: "batch images"}
		}
		f.emb[k] = make([][]float64, n)
	}

	// the embedder is only read during the forward pass
	embed := func(i int) error {
		k, j := i/n, i%n
		e, err := t.args.Embedder.Embed(b.Images[k][j])
		if err != nil {
			return errors.Wrapf(err, "Failed to embed image %d of triplet %v\n", k, b.Triplets[j])
		} else if len(e) != t.args.Embedder.Dim() {
			return SizeMismatchError{Expected: t.args.Embedder.Dim(), Given: len(e), Name: "embedding"}
		}

		f.emb[k][j] = e
		return nil
	}

	if err := utils.MultiThread(0, 3*n, embed, 1, t.args.Workers); err != nil {
		return f, err
	}

	var err error
	if f.dista, err = Distances(f.emb[0], f.emb[2]); err != nil {
		return f, err
	} else if f.distb, err = Distances(f.emb[0], f.emb[1]); err != nil {
		return f, err
	}

	if f.loss, err = t.args.Loss.Loss(f.dista, f.distb, target); err != nil {
		return f, errors.Wrapf(err, "Failed to compute loss\n")
	}

	return f, nil
}

// flat concatenates the embeddings of one role
func flat(emb [][]float64) []float64 {
	var size int
	for _, e := range emb {
		size += len(e)
	}

	out := make([]float64, 0, size)
	for _, e := range emb {
		out = append(out, e...)
	}

	return out
}

// embNorm is the average over the three roles of the norm of the batch's embeddings
func (f pass) embNorm() float64 {
	var sum float64
	for k := range f.emb {
		sum += floats.Norm(flat(f.emb[k]), 2)
	}

	return sum / 3
}

// backward accumulates the gradient of mean(loss) + penalty into the embedder, then steps it
func (t *Trainer) backward(b Batch, f pass) error {
	da, db, err := t.args.Loss.Deriv(f.dista, f.distb, target)
	if err != nil {
		return errors.Wrapf(err, "Failed to get loss derivatives\n")
	}

	n := b.Size()
	dim := t.trainable.Dim()
	scale := 1 / float64(n)

	var grads [3][][]float64
	for k := range grads {
		grads[k] = make([][]float64, n)
		for i := range grads[k] {
			grads[k][i] = make([]float64, dim)
		}
	}

	for i := 0; i < n; i++ {
		a, p, neg := f.emb[0][i], f.emb[1][i], f.emb[2][i]

		// d|a - x| / da = (a - x) / |a - x|; nothing flows through a zero distance
		if d := f.dista[i]; d > 0 && da[i] != 0 {
			c := scale * da[i] / d
			for j := range a {
				g := c * (a[j] - neg[j])
				grads[0][i][j] += g
				grads[2][i][j] -= g
			}
		}

		if d := f.distb[i]; d > 0 && db[i] != 0 {
			c := scale * db[i] / d
			for j := range a {
				g := c * (a[j] - p[j])
				grads[0][i][j] += g
				grads[1][i][j] -= g
			}
		}
	}

	if t.args.Penalty != nil {
		for k := range f.emb {
			pd := t.args.Penalty.Deriv(flat(f.emb[k]))
			for i := range grads[k] {
				floats.Add(grads[k][i], pd[i*dim:(i+1)*dim])
			}
		}
	}

	t.trainable.ZeroGrad()
	for k := range grads {
		for i := range grads[k] {
			if err := t.trainable.Backward(b.Images[k][i], grads[k][i]); err != nil {
				return errors.Wrapf(err, "Backward pass failed for image %d of triplet %v\n", k, b.Triplets[i])
			}
		}
	}

	return t.trainable.Step()
}

// epochMeters are the running averages of an epoch
type epochMeters struct {
	loss, acc, norm Meter
	batches, seen   int
}

func (m *epochMeters) update(f pass, n int, margin float64) (loss, acc, norm float64, err error) {
	loss = floats.Sum(f.loss) / float64(n)
	if acc, err = LossAccuracy(f.dista, f.distb, margin); err != nil {
		return
	}
	norm = f.embNorm()

	for _, u := range []struct {
		m *Meter
		v float64
	}{{&m.loss, loss}, {&m.acc, acc}, {&m.norm, norm}} {
		if err = u.m.Update(u.v, float64(n)); err != nil {
			return
		}
	}

	m.batches++
	m.seen += n
	return
}

func (m *epochMeters) result(epoch int) EpochResult {
	return EpochResult{
		Epoch:    epoch,
		Batches:  m.batches,
		Triplets: m.seen,
		Loss:     m.loss.avgOrZero(),
		Accuracy: m.acc.avgOrZero(),
		EmbNorm:  m.norm.avgOrZero(),
	}
}

// TrainEpoch runs one pass over the current training list, updating the embedder if it is
// Trainable and feeding every batch to the sampler.
func (t *Trainer) TrainEpoch(epoch int) (EpochResult, error) {
	var m epochMeters
	total := t.args.Train.Len()

	it := t.args.Train.Epoch()
	defer it.Close()

	for batch := 0; it.Next(); batch++ {
		b := it.Batch()
		n := b.Size()
		if n == 0 {
			continue
		}

		f, err := t.forward(b)
		if err != nil {
			return m.result(epoch), errors.Wrapf(err, "Forward pass failed on batch %d\n", batch)
		}

		if err = t.args.Sampler.SampleNegatives(f.dista, f.distb, f.loss, b.Triplets); err != nil {
			return m.result(epoch), errors.Wrapf(err, "Sampler rejected batch %d\n", batch)
		}

		seen := m.seen
		loss, acc, norm, err := m.update(f, n, t.args.AccuracyMargin)
		if err != nil {
			return m.result(epoch), errors.Wrapf(err, "Failed to record batch %d\n", batch)
		}

		if t.trainable != nil {
			if err = t.backward(b, f); err != nil {
				return m.result(epoch), errors.Wrapf(err, "Update failed on batch %d\n", batch)
			}
		}

		if batch%t.args.LogInterval == 0 {
			r := Result{
				Epoch: epoch, Batch: batch, Seen: seen, Total: total,
				Loss: loss, LossAvg: m.loss.avgOrZero(),
				Accuracy: acc, AccuracyAvg: m.acc.avgOrZero(),
				EmbNorm: norm, EmbNormAvg: m.norm.avgOrZero(),
			}

			klog.Infof("Train Epoch: %d [%d/%d]\tLoss: %.4f (%.4f) \tLoss Acc: %.2f%% (%.2f%%) \tEmb_Norm: %.2f (%.2f)",
				epoch, seen, total, r.Loss, r.LossAvg, 100*r.Accuracy, 100*r.AccuracyAvg, r.EmbNorm, r.EmbNormAvg)
			t.args.Update(r)
		}
	}

	if err := it.Err(); err != nil {
		return m.result(epoch), errors.Wrapf(err, "Failed to load training batch\n")
	}

	return m.result(epoch), nil
}

// Validate runs one pass over the validation set without changing the embedder or the sampler.
func (t *Trainer) Validate(epoch int) (EpochResult, error) {
	if t.args.Validation == nil {
		return EpochResult{}, NilArgError{"Validation"}
	}

	var m epochMeters

	it := t.args.Validation.Epoch()
	defer it.Close()

	for batch := 0; it.Next(); batch++ {
		b := it.Batch()
		n := b.Size()
		if n == 0 {
			continue
		}

		f, err := t.forward(b)
		if err != nil {
			return m.result(epoch), errors.Wrapf(err, "Forward pass failed on validation batch %d\n", batch)
		}

		if _, _, _, err = m.update(f, n, t.args.AccuracyMargin); err != nil {
			return m.result(epoch), errors.Wrapf(err, "Failed to record validation batch %d\n", batch)
		}
	}

	if err := it.Err(); err != nil {
		return m.result(epoch), errors.Wrapf(err, "Failed to load validation batch\n")
	}

	res := m.result(epoch)

	klog.Infof("Test/val triplets: Average loss: %.4f, Accuracy: %.2f%%", res.Loss, 100*res.Accuracy)
	t.args.Update(Result{
		Epoch: epoch, Seen: m.seen, Total: t.args.Validation.Len(),
		Loss: res.Loss, LossAvg: res.Loss,
		Accuracy: res.Accuracy, AccuracyAvg: res.Accuracy,
		EmbNorm: res.EmbNorm, EmbNormAvg: res.EmbNorm,
		IsTest: true,
	})

	return res, nil
}

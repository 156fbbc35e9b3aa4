package tripletnet

import (
	"encoding/json"
	"image"
	"math/rand"
)

// Embedder maps an image to its embedding vector. Embed must be safe to call from several
// goroutines at once, as long as nothing is modifying the Embedder.
type Embedder interface {
	Embed(image.Image) ([]float64, error)

	// Dim returns the length of every vector returned by Embed.
	Dim() int
}

// Trainable is an Embedder with parameters that can be learned. None of its methods are safe for
// concurrent use.
type Trainable interface {
	Embedder

	// Backward accumulates the gradient of the loss, given the gradient with respect to the
	// embedding of the image. The gradient has length Dim().
	Backward(img image.Image, grad []float64) error

	// Step applies the accumulated gradients and clears them.
	Step() error

	// ZeroGrad discards the accumulated gradients without applying them.
	ZeroGrad()

	// NumParams returns the number of learnable parameters.
	NumParams() int
}

// Stateful is implemented by Embedders whose parameters can be saved in a Checkpoint.
type Stateful interface {
	State() (json.RawMessage, error)
	LoadState(json.RawMessage) error
}

// RankingLoss is the loss primitive applied to a batch of distance pairs.
type RankingLoss interface {
	// Loss returns the loss contributed by each pair. A target of 1 means that dista should be
	// larger than distb; -1 means the opposite.
	Loss(dista, distb []float64, target float64) ([]float64, error)
	// Loss(dista, distb []float64, target float64) (perExample []float64, err error)

	// Deriv returns, for each pair, the derivatives of its loss with respect to dista and distb.
	// It will only be called with the same arguments that were given to Loss.
	Deriv(dista, distb []float64, target float64) ([]float64, []float64, error)
	// Deriv(dista, distb []float64, target float64) (da, db []float64, err error)
}

// Penalty is a regularization term applied to each embedding.
type Penalty interface {
	Cost([]float64) float64

	// Deriv returns the gradient of Cost with respect to the embedding.
	Deriv([]float64) []float64
}

// Optimizer determines how the weights of a Trainable are adjusted.
type Optimizer interface {
	// arguments: name of the parameter group, number of weights, gradient of weight at index,
	// add to weight at index, learning rate
	//
	// The name lets stateful Optimizers keep separate state for each group.
	Run(string, int, func(int) float64, func(int, float64), float64) error
	// Run(name string, size int, grad func(int) float64, add func(int, float64), learningRate float64) error
}

// HyperParameter provides a value that may change with the number of optimization steps taken.
type HyperParameter interface {
	Value(int) float64
}

// Initializer sets the starting values of a group of weights, drawing from the provided source.
type Initializer interface {
	// Set(rng, fanIn, fanOut, weights)
	Set(*rand.Rand, int, int, []float64)
}

// Labeler gives the class of a dataset item.
type Labeler interface {
	Class(int) (int, error)
}

// HardSource provides the hardest records observed for each class.
type HardSource interface {
	NumClasses() int

	// HardestForClass returns a snapshot of the records kept for the class, hardest first.
	HardestForClass(int) ([]Record, error)
}

// Sampler observes the outcome of every training batch. It is only ever used from the training
// goroutine.
type Sampler interface {
	HardSource

	// SampleNegatives(dista, distb, loss, triplets)
	SampleNegatives(dista, distb, loss []float64, triplets []Triplet) error
	Reset()
}

// Regenerator produces the next TripletList from the state of a HardSource.
type Regenerator interface {
	RegenerateTripletList(rng *rand.Rand, hard HardSource, hardFrac float64) (TripletList, error)
}

// BatchSource is the primary method of providing triplets to the Trainer.
type BatchSource interface {
	// Epoch starts a pass over the current TripletList.
	Epoch() BatchIter

	// SetTripletList replaces the list used by future calls to Epoch. Passes that have already
	// started are not affected.
	SetTripletList(TripletList)

	// Len returns the number of triplets in the current list.
	Len() int
}

// BatchIter iterates over the batches of one epoch. It must be either drained or closed.
type BatchIter interface {
	Next() bool
	Batch() Batch
	Err() error
	Close()
}

// CheckpointStore persists Checkpoints. isBest marks the checkpoint as the best seen so far.
type CheckpointStore interface {
	Save(c Checkpoint, isBest bool) error
}

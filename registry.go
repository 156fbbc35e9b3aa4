package tripletnet

import (
	"math/rand"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// EmbedderArgs are the construction parameters given to a registered embedder. Fields that a
// variant does not need are ignored by it.
type EmbedderArgs struct {
	// ImSize is the side length of the (square) input images.
	ImSize int

	// Dim is the requested embedding dimension.
	Dim int

	// RNG is the source for any random initialization.
	RNG *rand.Rand

	Init         Initializer
	Optimizer    Optimizer
	LearningRate HyperParameter
}

var (
	registryMux sync.Mutex
	losses      = make(map[string]func(margin float64) RankingLoss)
	embedders   = make(map[string]func(EmbedderArgs) (Embedder, error))
)

// RegisterLoss makes a RankingLoss available by name to NewLoss. It is intended to be called
// from the init function of the package providing the loss.
func RegisterLoss(name string, f func(margin float64) RankingLoss) error {
	registryMux.Lock()
	defer registryMux.Unlock()

	if f == nil {
		return errors.Wrapf(ErrRegisterNilReturn, "loss %q", name)
	} else if _, ok := losses[name]; ok {
		return errors.Wrapf(ErrRegisterDuplicate, "loss %q", name)
	}

	losses[name] = f
	return nil
}

// NewLoss returns the RankingLoss registered under name, built with the given margin.
func NewLoss(name string, margin float64) (RankingLoss, error) {
	registryMux.Lock()
	f, ok := losses[name]
	registryMux.Unlock()

	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no loss registered as %q (have %v)", name, Losses())
	}

	return f(margin), nil
}

// Losses returns the sorted names of all registered losses.
func Losses() []string {
	registryMux.Lock()
	defer registryMux.Unlock()

	return sortedKeys(len(losses), func(add func(string)) {
		for k := range losses {
			add(k)
		}
	})
}

// RegisterEmbedder makes an embedding network variant available by name to NewEmbedder.
func RegisterEmbedder(name string, f func(EmbedderArgs) (Embedder, error)) error {
	registryMux.Lock()
	defer registryMux.Unlock()

	if f == nil {
		return errors.Wrapf(ErrRegisterNilReturn, "embedder %q", name)
	} else if _, ok := embedders[name]; ok {
		return errors.Wrapf(ErrRegisterDuplicate, "embedder %q", name)
	}

	embedders[name] = f
	return nil
}

// NewEmbedder constructs the embedder registered under name.
func NewEmbedder(name string, args EmbedderArgs) (Embedder, error) {
	registryMux.Lock()
	f, ok := embedders[name]
	registryMux.Unlock()

	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "no network registered as %q (have %v)", name, Embedders())
	}

	e, err := f(args)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to construct network %q\n", name)
	}

	return e, nil
}

// Embedders returns the sorted names of all registered embedders.
func Embedders() []string {
	registryMux.Lock()
	defer registryMux.Unlock()

	return sortedKeys(len(embedders), func(add func(string)) {
		for k := range embedders {
			add(k)
		}
	})
}

func sortedKeys(n int, each func(func(string))) []string {
	keys := make([]string, 0, n)
	each(func(k string) { keys = append(keys, k) })
	sort.Strings(keys)
	return keys
}

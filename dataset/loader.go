package dataset

import (
	"context"
	"image"
	"math/rand"
	"sync"

	"github.com/pkg/errors"
	tn "github.com/sharnoff/tripletnet"
)

// ItemGetter provides the images of a triplet. It must be safe for concurrent use. *Dataset
// implements it.
type ItemGetter interface {
	GetItem(tn.Triplet) ([3]image.Image, tn.Triplet, error)
}

// LoaderOptions are the arguments to NewLoader.
type LoaderOptions struct {
	// BatchSize is the number of triplets per batch. The last batch of an epoch may be smaller.
	BatchSize int

	// Workers is the number of goroutines assembling batches. Defaults to 1.
	Workers int

	// Prefetch is the number of batches that may be assembled ahead of the consumer. Defaults
	// to 2.
	Prefetch int

	// Shuffle sets whether every epoch visits the triplets in a new random order. RNG must be set
	// if it is.
	Shuffle bool
	RNG     *rand.Rand
}

// Loader is the implementation of tripletnet.BatchSource. The triplet list is only read at the
// start of each epoch, so it may be replaced at any time by SetTripletList.
type Loader struct {
	items ItemGetter
	opts  LoaderOptions

	mux  sync.Mutex
	list tn.TripletList
}

// NewLoader returns a Loader producing batches of list, which is copied.
func NewLoader(items ItemGetter, list tn.TripletList, opts LoaderOptions) (*Loader, error) {
	if items == nil {
		return nil, errors.Wrap(tn.ErrConfiguration, "ItemGetter is nil")
	} else if opts.BatchSize <= 0 {
		return nil, errors.Wrapf(tn.ErrConfiguration, "batch size must be > 0 (%d)", opts.BatchSize)
	} else if opts.Shuffle && opts.RNG == nil {
		return nil, errors.Wrap(tn.ErrConfiguration, "shuffling requires a rand source")
	}

	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.Prefetch <= 0 {
		opts.Prefetch = 2
	}

	return &Loader{
		items: items,
		opts:  opts,
		list:  list.Clone(),
	}, nil
}

// SetTripletList replaces the list used by later epochs. The list is copied.
func (l *Loader) SetTripletList(list tn.TripletList) {
	l.mux.Lock()
	l.list = list.Clone()
	l.mux.Unlock()
}

// Len returns the number of triplets in the current list.
func (l *Loader) Len() int {
	l.mux.Lock()
	defer l.mux.Unlock()

	return len(l.list)
}

// NumBatches returns the number of batches an epoch over the current list would have.
func (l *Loader) NumBatches() int {
	return (l.Len() + l.opts.BatchSize - 1) / l.opts.BatchSize
}

type batchResult struct {
	batch tn.Batch
	err   error
}

type job struct {
	triplets []tn.Triplet
	out      chan<- batchResult
}

// Epoch starts assembling the batches of one pass over the current list. Batches are returned in
// order regardless of the number of workers; with shuffling, the order is drawn from the RNG
// before Epoch returns.
func (l *Loader) Epoch() tn.BatchIter {
	l.mux.Lock()
	list := l.list
	l.mux.Unlock()

	order := make(tn.TripletList, len(list))
	if l.opts.Shuffle {
		for i, j := range l.opts.RNG.Perm(len(list)) {
			order[i] = list[j]
		}
	} else {
		copy(order, list)
	}

	ctx, cancel := context.WithCancel(context.Background())
	queue := make(chan chan batchResult, l.opts.Prefetch)
	jobs := make(chan job)

	it := &epochIter{queue: queue, cancel: cancel}

	it.wg.Add(l.opts.Workers)
	for w := 0; w < l.opts.Workers; w++ {
		go func() {
			defer it.wg.Done()
			for j := range jobs {
				j.out <- l.assemble(ctx, j.triplets)
			}
		}()
	}

	it.wg.Add(1)
	go func() {
		defer it.wg.Done()
		defer close(queue)
		defer close(jobs)

		for start := 0; start < len(order); start += l.opts.BatchSize {
			end := start + l.opts.BatchSize
			if end > len(order) {
				end = len(order)
			}

			out := make(chan batchResult, 1)
			select {
			case jobs <- job{order[start:end], out}:
			case <-ctx.Done():
				return
			}

			select {
			case queue <- out:
			case <-ctx.Done():
				return
			}
		}
	}()

	return it
}

func (l *Loader) assemble(ctx context.Context, ts []tn.Triplet) batchResult {
	b := tn.Batch{Triplets: make([]tn.Triplet, len(ts))}
	for k := range b.Images {
		b.Images[k] = make([]image.Image, len(ts))
	}

	for i, t := range ts {
		if ctx.Err() != nil {
			return batchResult{err: ctx.Err()}
		}

		imgs, t, err := l.items.GetItem(t)
		if err != nil {
			return batchResult{err: errors.Wrapf(err, "Failed to load triplet %d of batch\n", i)}
		}

		b.Triplets[i] = t
		for k := range imgs {
			b.Images[k][i] = imgs[k]
		}
	}

	return batchResult{batch: b}
}

type epochIter struct {
	queue  <-chan chan batchResult
	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once

	cur  tn.Batch
	err  error
	done bool
}

func (it *epochIter) Next() bool {
	if it.done {
		return false
	}

	out, ok := <-it.queue
	if !ok {
		it.done = true
		it.Close()
		return false
	}

	r := <-out
	if r.err != nil {
		it.err = r.err
		it.done = true
		it.Close()
		return false
	}

	it.cur = r.batch
	return true
}

// Batch returns the batch reached by the last call to Next.
func (it *epochIter) Batch() tn.Batch {
	return it.cur
}

// Err returns the error that stopped the epoch early, if any.
func (it *epochIter) Err() error {
	return it.err
}

// Close stops the workers and waits for them to exit. It may be called more than once.
func (it *epochIter) Close() {
	it.once.Do(func() {
		it.done = true
		it.cancel()
		it.wg.Wait()
	})
}

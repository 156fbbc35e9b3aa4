package dataset

import (
	"image"
	"math/rand"
	"reflect"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	tn "github.com/sharnoff/tripletnet"
)

func list(n int) tn.TripletList {
	l := make(tn.TripletList, n)
	for i := range l {
		// 4 items per class, 3 classes
		c := i % 3
		l[i] = tn.Triplet{Anchor: c * 4, Positive: c*4 + 1 + i%3, Negative: ((c+1)%3)*4 + i%4}
	}
	return l
}

func newLoader(t *testing.T, items ItemGetter, l tn.TripletList, opts LoaderOptions) *Loader {
	t.Helper()
	ld, err := NewLoader(items, l, opts)
	if err != nil {
		t.Fatal(err)
	}
	return ld
}

// drain runs one epoch and returns its batches
func drain(t *testing.T, it tn.BatchIter) []tn.Batch {
	t.Helper()
	defer it.Close()

	var bs []tn.Batch
	for it.Next() {
		bs = append(bs, it.Batch())
	}
	if err := it.Err(); err != nil {
		t.Fatal(err)
	}
	return bs
}

func flatten(bs []tn.Batch) tn.TripletList {
	var l tn.TripletList
	for _, b := range bs {
		l = append(l, b.Triplets...)
	}
	return l
}

func TestNewLoaderRejectsBadOptions(t *testing.T) {
	d := blocks(t, 3, 4)
	tests := []struct {
		name  string
		items ItemGetter
		opts  LoaderOptions
	}{
		{"nil items", nil, LoaderOptions{BatchSize: 2}},
		{"zero batch", d, LoaderOptions{}},
		{"shuffle without rng", d, LoaderOptions{BatchSize: 2, Shuffle: true}},
	}

	for _, test := range tests {
		if _, err := NewLoader(test.items, list(3), test.opts); !tn.IsConfiguration(err) {
			t.Errorf("%s: got error %v, want configuration error", test.name, err)
		}
	}
}

func TestEpochInOrder(t *testing.T) {
	d := blocks(t, 3, 4)
	l := list(7)

	for _, workers := range []int{1, 4} {
		ld := newLoader(t, d, l, LoaderOptions{BatchSize: 3, Workers: workers, Prefetch: 1})
		if ld.NumBatches() != 3 {
			t.Errorf("NumBatches() = %d, want 3", ld.NumBatches())
		}

		bs := drain(t, ld.Epoch())
		if len(bs) != 3 || bs[0].Size() != 3 || bs[2].Size() != 1 {
			t.Fatalf("workers %d: got %d batches", workers, len(bs))
		}

		if got := flatten(bs); !reflect.DeepEqual(got, l) {
			t.Errorf("workers %d: got %v, want %v", workers, got, l)
		}

		// images line up with the triplet indices
		for _, b := range bs {
			for i, tr := range b.Triplets {
				if value(b.Images[0][i]) != tr.Anchor || value(b.Images[1][i]) != tr.Positive || value(b.Images[2][i]) != tr.Negative {
					t.Errorf("images of %v do not match", tr)
				}
			}
		}
	}
}

func TestShuffleIsSeededPermutation(t *testing.T) {
	d := blocks(t, 3, 4)
	l := list(20)

	run := func(seed int64) tn.TripletList {
		ld := newLoader(t, d, l, LoaderOptions{BatchSize: 6, Workers: 3, Shuffle: true, RNG: rand.New(rand.NewSource(seed))})
		return flatten(drain(t, ld.Epoch()))
	}

	a, b := run(5), run(5)
	if !reflect.DeepEqual(a, b) {
		t.Errorf("same seed gave different orders")
	}

	key := func(l tn.TripletList) []string {
		s := make([]string, len(l))
		for i, tr := range l {
			s[i] = tr.String()
		}
		sort.Strings(s)
		return s
	}
	if !reflect.DeepEqual(key(a), key(l)) {
		t.Errorf("shuffled epoch is not a permutation of the list")
	}
}

func TestSetTripletListTakesEffectNextEpoch(t *testing.T) {
	d := blocks(t, 3, 4)
	first, second := list(4), list(9)[4:]

	ld := newLoader(t, d, first, LoaderOptions{BatchSize: 2})
	it := ld.Epoch()

	ld.SetTripletList(second)
	if ld.Len() != 5 {
		t.Errorf("Len() = %d after SetTripletList, want 5", ld.Len())
	}

	if got := flatten(drain(t, it)); !reflect.DeepEqual(got, first) {
		t.Errorf("running epoch saw the new list: %v", got)
	}
	if got := flatten(drain(t, ld.Epoch())); !reflect.DeepEqual(got, second) {
		t.Errorf("next epoch got %v, want %v", got, second)
	}

	// the loader keeps its own copy
	second[0] = tn.Triplet{}
	if got := flatten(drain(t, ld.Epoch())); got[0] == (tn.Triplet{}) {
		t.Error("modifying the given list changed the loader")
	}
}

// slowGetter counts calls and sleeps a little on each
type slowGetter struct {
	*Dataset
	calls int64
}

func (s *slowGetter) GetItem(tr tn.Triplet) ([3]image.Image, tn.Triplet, error) {
	atomic.AddInt64(&s.calls, 1)
	time.Sleep(time.Millisecond)
	return s.Dataset.GetItem(tr)
}

func TestCloseStopsEarly(t *testing.T) {
	g := &slowGetter{Dataset: blocks(t, 3, 4)}
	ld := newLoader(t, g, list(200), LoaderOptions{BatchSize: 2, Workers: 2, Prefetch: 2})

	it := ld.Epoch()
	if !it.Next() {
		t.Fatalf("no first batch: %v", it.Err())
	}
	it.Close()
	it.Close()

	if it.Next() {
		t.Error("Next() returned true after Close")
	}
	if n := atomic.LoadInt64(&g.calls); n >= 200 {
		t.Errorf("all %d triplets were loaded despite Close", n)
	}
}

type failingGetter struct {
	*Dataset
	failOn tn.Triplet
}

func (f failingGetter) GetItem(tr tn.Triplet) ([3]image.Image, tn.Triplet, error) {
	if tr == f.failOn {
		return [3]image.Image{}, tr, errors.New("disk on fire")
	}
	return f.Dataset.GetItem(tr)
}

func TestEpochStopsOnError(t *testing.T) {
	l := list(6)
	ld := newLoader(t, failingGetter{blocks(t, 3, 4), l[3]}, l, LoaderOptions{BatchSize: 2})

	it := ld.Epoch()
	defer it.Close()

	var n int
	for it.Next() {
		n++
	}

	if n != 1 {
		t.Errorf("got %d batches before the error, want 1", n)
	}
	if it.Err() == nil {
		t.Error("Err() is nil")
	}
}

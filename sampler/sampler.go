// Package sampler keeps, for every class, the hardest triplets observed during training, so that
// they can be mixed back into the next triplet list.
//
// Each class holds at most Capacity() records in a min-heap keyed by hardness, so inserting a
// record costs O(log capacity) no matter how many batches have been observed. A Sampler is not
// safe for concurrent use; it should only be touched from the training loop.
package sampler

import (
	"container/heap"
	"math"
	"sort"

	"github.com/pkg/errors"
	tn "github.com/sharnoff/tripletnet"
)

// TiePolicy decides which of two records with equal hardness ranks as harder.
type TiePolicy int

const (
	// KeepEarliest ranks the earlier-seen record as harder. A later record with the same hardness
	// as the least-hard retained record does not displace it.
	KeepEarliest TiePolicy = iota

	// KeepLatest ranks the later-seen record as harder. A later record with the same hardness as
	// the least-hard retained record displaces it; among several, the oldest goes first.
	KeepLatest
)

func (p TiePolicy) String() string {
	switch p {
	case KeepEarliest:
		return "keep-earliest"
	case KeepLatest:
		return "keep-latest"
	default:
		return "unknown"
	}
}

// ParseTiePolicy returns the TiePolicy whose String is s.
func ParseTiePolicy(s string) (TiePolicy, error) {
	for _, p := range []TiePolicy{KeepEarliest, KeepLatest} {
		if p.String() == s {
			return p, nil
		}
	}

	return 0, errors.Wrapf(tn.ErrConfiguration, "unknown tie policy %q", s)
}

// Capacity returns the number of records kept per class under the reference policy:
// round((hardFrac + hardFrac/2) * batchSize).
func Capacity(hardFrac float64, batchSize int) int {
	return int(math.Round((hardFrac + hardFrac/2) * float64(batchSize)))
}

// Option configures a Sampler.
type Option func(*Sampler)

// WithTiePolicy sets the TiePolicy. The default is KeepEarliest.
func WithTiePolicy(p TiePolicy) Option {
	return func(s *Sampler) {
		s.tie = p
	}
}

// WithDedupe keeps at most one record per Triplet in each class. A triplet seen again (as happens
// when the same list is trained for several epochs) replaces its earlier record only if it ranks
// as harder under the TiePolicy.
func WithDedupe() Option {
	return func(s *Sampler) {
		s.dedupe = true
	}
}

// Sampler is the hard-negative sampler. It implements tripletnet.Sampler.
type Sampler struct {
	labels   tn.Labeler
	capacity int
	tie      TiePolicy
	dedupe   bool

	classes []*recordHeap

	// seq is the sequence number given to the next record
	seq uint64
}

// New returns a Sampler for numClasses classes, each keeping at most capacity records. labels
// maps dataset indices to classes in [0, numClasses).
func New(numClasses, capacity int, labels tn.Labeler, opts ...Option) (*Sampler, error) {
	if numClasses <= 0 {
		return nil, errors.Wrapf(tn.ErrConfiguration, "number of classes must be > 0 (%d)", numClasses)
	} else if capacity <= 0 {
		return nil, errors.Wrapf(tn.ErrConfiguration, "capacity per class must be > 0 (%d)", capacity)
	} else if labels == nil {
		return nil, errors.Wrap(tn.ErrConfiguration, "Labeler is nil")
	}

	s := &Sampler{
		labels:   labels,
		capacity: capacity,
		tie:      KeepEarliest,
		classes:  make([]*recordHeap, numClasses),
	}

	for _, o := range opts {
		o(s)
	}

	if s.tie != KeepEarliest && s.tie != KeepLatest {
		return nil, errors.Wrapf(tn.ErrConfiguration, "unknown tie policy %d", int(s.tie))
	}

	for c := range s.classes {
		s.classes[c] = &recordHeap{
			recs: make([]tn.Record, 0, capacity),
			tie:  s.tie,
		}
		if s.dedupe {
			s.classes[c].pos = make(map[tn.Triplet]int, capacity)
		}
	}

	return s, nil
}

// SampleNegatives records every triplet of a batch, using its loss as its hardness. The class of
// a triplet is the class of its anchor, which its positive must share. Without WithDedupe, a
// triplet observed several times is recorded each time, so a class may hold copies of it.
//
// The batch is checked completely before anything is recorded: mismatched lengths, NaN losses,
// classes out of range, or anchors and positives of different classes are all caller bugs and
// return ErrInvariantViolation without changing the Sampler.
func (s *Sampler) SampleNegatives(dista, distb, loss []float64, triplets []tn.Triplet) error {
	n := len(triplets)
	switch {
	case len(dista) != n:
		return tn.SizeMismatchError{Expected: n, Given: len(dista), Name: "dista"}
	case len(distb) != n:
		return tn.SizeMismatchError{Expected: n, Given: len(distb), Name: "distb"}
	case len(loss) != n:
		return tn.SizeMismatchError{Expected: n, Given: len(loss), Name: "loss"}
	}

	classes := make([]int, n)
	for i, t := range triplets {
		c, err := s.classOf(t)
		if err != nil {
			return errors.Wrapf(err, "triplet %d of batch", i)
		} else if math.IsNaN(loss[i]) {
			return errors.Wrapf(tn.ErrInvariantViolation, "loss of triplet %d %v is NaN", i, t)
		}

		classes[i] = c
	}

	for i, t := range triplets {
		s.insert(classes[i], tn.Record{
			Triplet: t,
			Loss:    loss[i],
			Margin:  dista[i] - distb[i],
			Seq:     s.seq,
		})
		s.seq++
	}

	return nil
}

func (s *Sampler) classOf(t tn.Triplet) (int, error) {
	ca, err := s.labels.Class(t.Anchor)
	if err != nil {
		return 0, errors.Wrapf(tn.ErrInvariantViolation, "anchor %d: %v", t.Anchor, err)
	}

	cp, err := s.labels.Class(t.Positive)
	if err != nil {
		return 0, errors.Wrapf(tn.ErrInvariantViolation, "positive %d: %v", t.Positive, err)
	}

	if ca != cp {
		return 0, errors.Wrapf(tn.ErrInvariantViolation, "anchor %d and positive %d have different classes (%d != %d)",
			t.Anchor, t.Positive, ca, cp)
	} else if ca < 0 || ca >= len(s.classes) {
		return 0, errors.Wrapf(tn.ErrInvariantViolation, "class %d of anchor %d is out of range [0, %d)", ca, t.Anchor, len(s.classes))
	}

	cn, err := s.labels.Class(t.Negative)
	if err != nil {
		return 0, errors.Wrapf(tn.ErrInvariantViolation, "negative %d: %v", t.Negative, err)
	} else if cn == ca {
		return 0, errors.Wrapf(tn.ErrInvariantViolation, "negative %d has the anchor's class %d", t.Negative, ca)
	}

	return ca, nil
}

func (s *Sampler) insert(class int, r tn.Record) {
	h := s.classes[class]
	if h.pos != nil {
		if i, ok := h.pos[r.Triplet]; ok {
			if harder(r, h.recs[i], s.tie) {
				h.recs[i] = r
				heap.Fix(h, i)
			}
			return
		}
	}

	if h.Len() < s.capacity {
		heap.Push(h, r)
		return
	}

	// h.recs[0] is the least hard record kept
	if harder(r, h.recs[0], s.tie) {
		if h.pos != nil {
			delete(h.pos, h.recs[0].Triplet)
			h.pos[r.Triplet] = 0
		}
		h.recs[0] = r
		heap.Fix(h, 0)
	}
}

// Reset removes every record from every class. The sequence numbering starts over.
func (s *Sampler) Reset() {
	for _, h := range s.classes {
		h.recs = h.recs[:0]
		if h.pos != nil {
			h.pos = make(map[tn.Triplet]int, s.capacity)
		}
	}

	s.seq = 0
}

// HardestForClass returns a copy of the records kept for the class, hardest first. ErrNotFound
// is returned if the class is not in [0, NumClasses()).
func (s *Sampler) HardestForClass(class int) ([]tn.Record, error) {
	if class < 0 || class >= len(s.classes) {
		return nil, errors.Wrapf(tn.ErrNotFound, "class %d is out of range [0, %d)", class, len(s.classes))
	}

	h := s.classes[class]
	recs := make([]tn.Record, len(h.recs))
	copy(recs, h.recs)

	sort.Slice(recs, func(i, j int) bool {
		return harder(recs[i], recs[j], s.tie)
	})

	return recs, nil
}

// Len returns the number of records kept for the class, or 0 if it is out of range.
func (s *Sampler) Len(class int) int {
	if class < 0 || class >= len(s.classes) {
		return 0
	}

	return s.classes[class].Len()
}

// NumClasses returns the number of classes the Sampler was constructed with.
func (s *Sampler) NumClasses() int {
	return len(s.classes)
}

// Capacity returns the maximum number of records kept per class.
func (s *Sampler) Capacity() int {
	return s.capacity
}

// Observed returns the number of records given to the Sampler since the last Reset.
func (s *Sampler) Observed() uint64 {
	return s.seq
}

// TiePolicy returns the policy the Sampler was constructed with.
func (s *Sampler) TiePolicy() TiePolicy {
	return s.tie
}

// harder returns whether a ranks as harder than b.
func harder(a, b tn.Record, tie TiePolicy) bool {
	if a.Loss != b.Loss {
		return a.Loss > b.Loss
	}

	if tie == KeepLatest {
		return a.Seq > b.Seq
	}

	return a.Seq < b.Seq
}

// recordHeap is a min-heap: the least hard record is at the root.
type recordHeap struct {
	recs []tn.Record
	tie  TiePolicy

	// pos maps each kept triplet to its index in recs. It is nil unless deduplicating.
	pos map[tn.Triplet]int
}

func (h *recordHeap) Len() int {
	return len(h.recs)
}

func (h *recordHeap) Less(i, j int) bool {
	return harder(h.recs[j], h.recs[i], h.tie)
}

func (h *recordHeap) Swap(i, j int) {
	h.recs[i], h.recs[j] = h.recs[j], h.recs[i]
	if h.pos != nil {
		h.pos[h.recs[i].Triplet] = i
		h.pos[h.recs[j].Triplet] = j
	}
}

func (h *recordHeap) Push(x interface{}) {
	r := x.(tn.Record)
	if h.pos != nil {
		h.pos[r.Triplet] = len(h.recs)
	}
	h.recs = append(h.recs, r)
}

func (h *recordHeap) Pop() interface{} {
	last := h.recs[len(h.recs)-1]
	h.recs = h.recs[:len(h.recs)-1]
	if h.pos != nil {
		delete(h.pos, last.Triplet)
	}
	return last
}

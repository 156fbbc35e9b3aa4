package sampler

import (
	"fmt"
	"math"
	"testing"

	tn "github.com/sharnoff/tripletnet"
)

// item i belongs to class i / perClass
type blockLabels struct {
	perClass, numClasses int
}

func (b blockLabels) Class(idx int) (int, error) {
	if idx < 0 || idx >= b.perClass*b.numClasses {
		return 0, fmt.Errorf("index %d out of range", idx)
	}
	return idx / b.perClass, nil
}

// triplet returns a valid triplet for the class, distinguished by n
func triplet(class, n int) tn.Triplet {
	other := (class + 1) % 2
	return tn.Triplet{Anchor: class*100 + n, Positive: class*100 + (n+1)%100, Negative: other * 100}
}

func newSampler(t *testing.T, capacity int, opts ...Option) *Sampler {
	t.Helper()
	s, err := New(2, capacity, blockLabels{100, 2}, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

// feed gives the sampler one batch with the provided losses for class
func feed(t *testing.T, s *Sampler, class int, losses ...float64) []tn.Triplet {
	t.Helper()
	ts := make([]tn.Triplet, len(losses))
	da := make([]float64, len(losses))
	db := make([]float64, len(losses))
	for i := range losses {
		ts[i] = triplet(class, i)
		da[i] = 1
		db[i] = 1 + losses[i]
	}
	if err := s.SampleNegatives(da, db, losses, ts); err != nil {
		t.Fatalf("SampleNegatives: %v", err)
	}
	return ts
}

func losses(recs []tn.Record) []float64 {
	ls := make([]float64, len(recs))
	for i, r := range recs {
		ls[i] = r.Loss
	}
	return ls
}

func equalFloats(a, b []float64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewRejectsBadConfiguration(t *testing.T) {
	tests := []struct {
		name       string
		numClasses int
		capacity   int
		labels     tn.Labeler
	}{
		{"zero classes", 0, 3, blockLabels{1, 1}},
		{"negative classes", -1, 3, blockLabels{1, 1}},
		{"zero capacity", 2, 0, blockLabels{1, 1}},
		{"nil labels", 2, 3, nil},
	}

	for _, test := range tests {
		_, err := New(test.numClasses, test.capacity, test.labels)
		if !tn.IsConfiguration(err) {
			t.Errorf("%s: got error %v, want configuration error", test.name, err)
		}
	}

	if _, err := New(2, 3, blockLabels{1, 2}, WithTiePolicy(TiePolicy(9))); !tn.IsConfiguration(err) {
		t.Errorf("unknown tie policy: got error %v, want configuration error", err)
	}
}

func TestParseTiePolicy(t *testing.T) {
	for _, p := range []TiePolicy{KeepEarliest, KeepLatest} {
		got, err := ParseTiePolicy(p.String())
		if err != nil || got != p {
			t.Errorf("ParseTiePolicy(%q) = %v, %v", p.String(), got, err)
		}
	}

	if _, err := ParseTiePolicy("unknown"); !tn.IsConfiguration(err) {
		t.Errorf("got error %v, want configuration error", err)
	}
}

func TestCapacity(t *testing.T) {
	tests := []struct {
		hardFrac  float64
		batchSize int
		want      int
	}{
		{0.5, 64, 48},
		{0.5, 4, 3},
		{1, 10, 15},
		{0, 64, 0},
		{0.25, 10, 4}, // 3.75 rounds up
	}

	for _, test := range tests {
		if got := Capacity(test.hardFrac, test.batchSize); got != test.want {
			t.Errorf("Capacity(%v, %d) = %d, want %d", test.hardFrac, test.batchSize, got, test.want)
		}
	}
}

func TestKeepsTopCapacityInIncreasingOrder(t *testing.T) {
	const capacity = 5
	s := newSampler(t, capacity)

	in := make([]float64, capacity+1)
	for i := range in {
		in[i] = float64(i+1) * 0.1
	}
	feed(t, s, 0, in...)

	recs, err := s.HardestForClass(0)
	if err != nil {
		t.Fatal(err)
	}

	want := []float64{in[5], in[4], in[3], in[2], in[1]}
	if !equalFloats(losses(recs), want) {
		t.Errorf("kept %v, want %v", losses(recs), want)
	}

	if n := s.Len(1); n != 0 {
		t.Errorf("class 1 has %d records, want 0", n)
	}
}

func TestScenarioFromTrainingRun(t *testing.T) {
	s := newSampler(t, 3)
	ts := feed(t, s, 0, 0.1, 0.5, 0.9, 0.3, 0.7)

	recs, err := s.HardestForClass(0)
	if err != nil {
		t.Fatal(err)
	}

	if want := []float64{0.9, 0.7, 0.5}; !equalFloats(losses(recs), want) {
		t.Fatalf("kept %v, want %v", losses(recs), want)
	}

	// the records refer back to the triplets that were given
	if recs[0].Triplet != ts[2] || recs[1].Triplet != ts[4] || recs[2].Triplet != ts[1] {
		t.Errorf("wrong triplets kept: %v", recs)
	}

	// margin is dista - distb
	if want := -0.9; math.Abs(recs[0].Margin-want) > 1e-12 {
		t.Errorf("margin = %v, want %v", recs[0].Margin, want)
	}
}

func TestResetEmptiesAllClasses(t *testing.T) {
	s := newSampler(t, 4)
	feed(t, s, 0, 1, 2, 3)
	feed(t, s, 1, 4, 5)

	s.Reset()
	s.Reset() // idempotent

	for c := 0; c < s.NumClasses(); c++ {
		recs, err := s.HardestForClass(c)
		if err != nil {
			t.Fatal(err)
		}
		if len(recs) != 0 {
			t.Errorf("class %d has %d records after Reset", c, len(recs))
		}
	}

	if s.Observed() != 0 {
		t.Errorf("Observed() = %d after Reset, want 0", s.Observed())
	}

	// still usable afterwards
	feed(t, s, 1, 0.5)
	if s.Len(1) != 1 {
		t.Errorf("Len(1) = %d, want 1", s.Len(1))
	}
}

func TestTiePolicies(t *testing.T) {
	t.Run("keep earliest", func(t *testing.T) {
		s := newSampler(t, 2)
		ts := feed(t, s, 0, 1, 1, 1)

		recs, _ := s.HardestForClass(0)
		if len(recs) != 2 || recs[0].Triplet != ts[0] || recs[1].Triplet != ts[1] {
			t.Errorf("kept %v, want the first two triplets in order", recs)
		}
	})

	t.Run("keep latest", func(t *testing.T) {
		s := newSampler(t, 2, WithTiePolicy(KeepLatest))
		ts := feed(t, s, 0, 1, 1, 1)

		recs, _ := s.HardestForClass(0)
		if len(recs) != 2 || recs[0].Triplet != ts[2] || recs[1].Triplet != ts[1] {
			t.Errorf("kept %v, want the last two triplets, newest first", recs)
		}
	})

	t.Run("strictly harder always wins", func(t *testing.T) {
		for _, p := range []TiePolicy{KeepEarliest, KeepLatest} {
			s := newSampler(t, 1, WithTiePolicy(p))
			feed(t, s, 0, 1, 2)
			recs, _ := s.HardestForClass(0)
			if len(recs) != 1 || recs[0].Loss != 2 {
				t.Errorf("%v: kept %v, want loss 2", p, recs)
			}
		}
	})
}

func TestRepeatedTriplets(t *testing.T) {
	t.Run("recorded each time", func(t *testing.T) {
		s := newSampler(t, 3)
		ts := feed(t, s, 0, 0.2, 0.5)
		feed(t, s, 0, 0.9, 0.1)

		recs, _ := s.HardestForClass(0)
		if want := []float64{0.9, 0.5, 0.2}; !equalFloats(losses(recs), want) {
			t.Fatalf("kept %v, want %v", losses(recs), want)
		}
		if recs[0].Triplet != ts[0] || recs[2].Triplet != ts[0] {
			t.Errorf("expected two records of %v, got %v", ts[0], recs)
		}
	})

	t.Run("deduplicated", func(t *testing.T) {
		s := newSampler(t, 3, WithDedupe())
		ts := feed(t, s, 0, 0.2, 0.5)
		feed(t, s, 0, 0.9, 0.1)

		recs, _ := s.HardestForClass(0)
		if want := []float64{0.9, 0.5}; !equalFloats(losses(recs), want) {
			t.Fatalf("kept %v, want %v", losses(recs), want)
		}
		if recs[0].Triplet != ts[0] || recs[1].Triplet != ts[1] {
			t.Errorf("wrong triplets kept: %v", recs)
		}
	})

	t.Run("deduplicated after eviction", func(t *testing.T) {
		s := newSampler(t, 2, WithDedupe())
		ts := feed(t, s, 0, 1, 2, 3)

		// ts[0] was evicted, so it comes back as a new record
		feed(t, s, 0, 5)
		recs, _ := s.HardestForClass(0)
		if want := []float64{5, 3}; !equalFloats(losses(recs), want) {
			t.Fatalf("kept %v, want %v", losses(recs), want)
		}
		if recs[0].Triplet != ts[0] || recs[1].Triplet != ts[2] {
			t.Errorf("wrong triplets kept: %v", recs)
		}

		// an easier copy of a kept triplet changes nothing
		feed(t, s, 0, 4)
		recs, _ = s.HardestForClass(0)
		if want := []float64{5, 3}; !equalFloats(losses(recs), want) {
			t.Errorf("kept %v, want %v", losses(recs), want)
		}

		s.Reset()
		feed(t, s, 0, 0.1, 0.2)
		if s.Len(0) != 2 {
			t.Errorf("Len(0) = %d after Reset, want 2", s.Len(0))
		}
	})
}

func TestHardestForClassOutOfRange(t *testing.T) {
	s := newSampler(t, 2)
	for _, c := range []int{-1, 2, 100} {
		if _, err := s.HardestForClass(c); !tn.IsNotFound(err) {
			t.Errorf("HardestForClass(%d): got error %v, want not found", c, err)
		}
	}
}

func TestHardestForClassReturnsCopy(t *testing.T) {
	s := newSampler(t, 2)
	feed(t, s, 0, 1, 2)

	recs, _ := s.HardestForClass(0)
	recs[0].Loss = -100

	again, _ := s.HardestForClass(0)
	if again[0].Loss != 2 {
		t.Errorf("modifying a snapshot changed the sampler: %v", again)
	}
}

func TestSampleNegativesRejectsMalformedBatches(t *testing.T) {
	good := triplet(0, 1)

	tests := []struct {
		name     string
		da, db   []float64
		loss     []float64
		triplets []tn.Triplet
	}{
		{"short dista", []float64{}, []float64{1}, []float64{1}, []tn.Triplet{good}},
		{"short distb", []float64{1}, nil, []float64{1}, []tn.Triplet{good}},
		{"short loss", []float64{1}, []float64{1}, []float64{}, []tn.Triplet{good}},
		{"anchor out of range", []float64{1}, []float64{1}, []float64{1}, []tn.Triplet{{Anchor: 500, Positive: 1, Negative: 100}}},
		{"positive of other class", []float64{1}, []float64{1}, []float64{1}, []tn.Triplet{{Anchor: 1, Positive: 101, Negative: 150}}},
		{"negative of same class", []float64{1}, []float64{1}, []float64{1}, []tn.Triplet{{Anchor: 1, Positive: 2, Negative: 3}}},
		{"negative out of range", []float64{1}, []float64{1}, []float64{1}, []tn.Triplet{{Anchor: 1, Positive: 2, Negative: -3}}},
		{"NaN loss", []float64{1}, []float64{1}, []float64{nan()}, []tn.Triplet{good}},
	}

	for _, test := range tests {
		s := newSampler(t, 2)
		err := s.SampleNegatives(test.da, test.db, test.loss, test.triplets)
		if !tn.IsInvariantViolation(err) {
			t.Errorf("%s: got error %v, want invariant violation", test.name, err)
		}
	}
}

func TestRejectedBatchChangesNothing(t *testing.T) {
	s := newSampler(t, 3)
	feed(t, s, 0, 0.4)

	ts := []tn.Triplet{triplet(0, 2), {Anchor: 1, Positive: 101, Negative: 150}}
	err := s.SampleNegatives([]float64{1, 1}, []float64{1, 1}, []float64{5, 5}, ts)
	if err == nil {
		t.Fatal("expected an error")
	}

	if s.Len(0) != 1 || s.Observed() != 1 {
		t.Errorf("rejected batch was partially recorded: Len(0) = %d, Observed() = %d", s.Len(0), s.Observed())
	}
}

func nan() float64 {
	zero := 0.0
	return zero / zero
}

package tripletnet

import (
	"encoding/json"
	"fmt"
	"image"
)

// Triplet references three dataset items by index. The Anchor and Positive share a class; the
// Negative belongs to a different one.
type Triplet struct {
	Anchor   int `json:"anchor"`
	Positive int `json:"positive"`
	Negative int `json:"negative"`
}

func (t Triplet) String() string {
	return fmt.Sprintf("(%d, %d, %d)", t.Anchor, t.Positive, t.Negative)
}

// TripletList is the ordered sequence of Triplets used for one training phase. Lists are replaced
// wholesale on regeneration, never modified in place.
type TripletList []Triplet

// Clone returns a copy of the list that shares no memory with it.
func (l TripletList) Clone() TripletList {
	if l == nil {
		return nil
	}

	c := make(TripletList, len(l))
	copy(c, l)
	return c
}

// Record is one observation of a Triplet during training.
type Record struct {
	Triplet Triplet

	// Loss is the margin-ranking loss the triplet contributed; it is used as its hardness.
	Loss float64

	// Margin is dista - distb. Values at or below the loss margin are the hard cases.
	Margin float64

	// Seq is the order in which the record was observed, starting at zero after every reset.
	Seq uint64
}

// Batch is one batch of triplets, as provided by a BatchSource. Images[0], [1] and [2] hold the
// anchor, positive and negative images of each triplet, at the same index as Triplets.
type Batch struct {
	Triplets []Triplet
	Images   [3][]image.Image
}

// Size returns the number of triplets in the batch.
func (b Batch) Size() int {
	return len(b.Triplets)
}

// Checkpoint is the state persisted after validation.
type Checkpoint struct {
	RunID        string  `json:"run_id"`
	Epoch        int     `json:"epoch"`
	BestAccuracy float64 `json:"best_accuracy"`

	// Network is the registered name of the embedder.
	Network string `json:"network"`

	// Model is the embedder's own state, if it has any.
	Model json.RawMessage `json:"model,omitempty"`
}

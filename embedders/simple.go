package embedders

import (
	"encoding/json"
	"image"

	"github.com/pkg/errors"
	tn "github.com/sharnoff/tripletnet"
	"github.com/sharnoff/tripletnet/hyperparams"
	"github.com/sharnoff/tripletnet/initializers"
	"github.com/sharnoff/tripletnet/optimizers"
	"gonum.org/v1/gonum/mat"
)

const defaultLearningRate float64 = 1e-4

// simple is a single linear layer from the grayscale pixels of an image to its embedding
type simple struct {
	side, dim int

	// weights is dim x side*side
	weights *mat.Dense
	bias    *mat.VecDense

	// accumulated gradients, the same shapes as the weights and bias
	dWeights *mat.Dense
	dBias    *mat.VecDense

	opt tn.Optimizer
	lr  tn.HyperParameter

	// number of times Step has been called
	iter int
}

// Simple returns the "simple" network: a trainable linear projection of the image's grayscale
// pixels, resized to args.ImSize, onto args.Dim outputs. The weights are set by args.Init (Xavier
// if nil) from args.RNG. If args.Optimizer or args.LearningRate are nil, SGD and a constant
// learning rate of 1e-4 are used.
func Simple(args tn.EmbedderArgs) (*simple, error) {
	if args.ImSize <= 0 {
		return nil, errors.Wrapf(tn.ErrConfiguration, "image size must be > 0 (%d)", args.ImSize)
	} else if args.Dim <= 0 {
		return nil, errors.Wrapf(tn.ErrConfiguration, "embedding dimension must be > 0 (%d)", args.Dim)
	} else if args.RNG == nil {
		return nil, errors.Wrap(tn.ErrConfiguration, "rand source is nil")
	}

	if args.Init == nil {
		args.Init = initializers.Default()
	}
	if args.Optimizer == nil {
		args.Optimizer = optimizers.SGD()
	}
	if args.LearningRate == nil {
		args.LearningRate = hyperparams.Constant(defaultLearningRate)
	}

	in := args.ImSize * args.ImSize
	s := &simple{
		side:     args.ImSize,
		dim:      args.Dim,
		weights:  mat.NewDense(args.Dim, in, nil),
		bias:     mat.NewVecDense(args.Dim, nil),
		dWeights: mat.NewDense(args.Dim, in, nil),
		dBias:    mat.NewVecDense(args.Dim, nil),
		opt:      args.Optimizer,
		lr:       args.LearningRate,
	}

	args.Init.Set(args.RNG, in, args.Dim, s.weights.RawMatrix().Data)
	return s, nil
}

func (s *simple) TypeString() string {
	return "simple"
}

func (s *simple) Dim() int {
	return s.dim
}

func (s *simple) NumParams() int {
	r, c := s.weights.Dims()
	return r*c + s.bias.Len()
}

func (s *simple) Embed(img image.Image) ([]float64, error) {
	if img == nil {
		return nil, errors.Wrap(tn.ErrInvariantViolation, "image is nil")
	}

	x := mat.NewVecDense(s.side*s.side, pixels(img, s.side))

	out := mat.NewVecDense(s.dim, nil)
	out.MulVec(s.weights, x)
	out.AddVec(out, s.bias)

	return out.RawVector().Data, nil
}

func (s *simple) Backward(img image.Image, grad []float64) error {
	if img == nil {
		return errors.Wrap(tn.ErrInvariantViolation, "image is nil")
	} else if len(grad) != s.dim {
		return tn.SizeMismatchError{Expected: s.dim, Given: len(grad), Name: "embedding gradient"}
	}

	x := mat.NewVecDense(s.side*s.side, pixels(img, s.side))
	g := mat.NewVecDense(s.dim, grad)

	// d(Wx + b)/dW = g x^T
	s.dWeights.RankOne(s.dWeights, 1, g, x)
	s.dBias.AddVec(s.dBias, g)
	return nil
}

func (s *simple) Step() error {
	lr := s.lr.Value(s.iter)

	w, dw := s.weights.RawMatrix().Data, s.dWeights.RawMatrix().Data
	if err := s.opt.Run("weights", len(w), func(i int) float64 { return dw[i] }, func(i int, d float64) { w[i] += d }, lr); err != nil {
		return errors.Wrapf(err, "Failed to optimize weights on step %d\n", s.iter)
	}

	b, db := s.bias.RawVector().Data, s.dBias.RawVector().Data
	if err := s.opt.Run("bias", len(b), func(i int) float64 { return db[i] }, func(i int, d float64) { b[i] += d }, lr); err != nil {
		return errors.Wrapf(err, "Failed to optimize bias on step %d\n", s.iter)
	}

	s.iter++
	s.ZeroGrad()
	return nil
}

func (s *simple) ZeroGrad() {
	s.dWeights.Zero()
	s.dBias.Zero()
}

type simpleState struct {
	ImSize  int       `json:"im_size"`
	Dim     int       `json:"dim"`
	Iter    int       `json:"iter"`
	Weights []float64 `json:"weights"`
	Bias    []float64 `json:"bias"`
}

func (s *simple) State() (json.RawMessage, error) {
	st := simpleState{
		ImSize:  s.side,
		Dim:     s.dim,
		Iter:    s.iter,
		Weights: s.weights.RawMatrix().Data,
		Bias:    s.bias.RawVector().Data,
	}

	b, err := json.Marshal(st)
	if err != nil {
		return nil, errors.Wrapf(err, "Failed to encode simple network\n")
	}

	return b, nil
}

func (s *simple) LoadState(b json.RawMessage) error {
	var st simpleState
	if err := json.Unmarshal(b, &st); err != nil {
		return errors.Wrapf(err, "Failed to decode simple network\n")
	}

	if st.ImSize != s.side || st.Dim != s.dim {
		return errors.Wrapf(tn.ErrConfiguration, "saved network is %dx%d -> %d, have %dx%d -> %d",
			st.ImSize, st.ImSize, st.Dim, s.side, s.side, s.dim)
	} else if len(st.Weights) != s.dim*s.side*s.side {
		return tn.SizeMismatchError{Expected: s.dim * s.side * s.side, Given: len(st.Weights), Name: "saved weights"}
	} else if len(st.Bias) != s.dim {
		return tn.SizeMismatchError{Expected: s.dim, Given: len(st.Bias), Name: "saved bias"}
	}

	copy(s.weights.RawMatrix().Data, st.Weights)
	copy(s.bias.RawVector().Data, st.Bias)
	s.iter = st.Iter
	s.ZeroGrad()
	return nil
}

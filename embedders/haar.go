package embedders

import (
	"image"
	"math"

	"github.com/pkg/errors"
	"github.com/rivo/duplo/haar"
	tn "github.com/sharnoff/tripletnet"
)

// haarNet embeds an image as the lowest-frequency coefficients of its 2D Haar wavelet transform.
// It has no parameters to train, and serves as a baseline for the learned networks.
type haarNet struct {
	// scale is the side length images are resized to before the transform; a power of two
	scale int

	// block is the side length of the top-left block of coefficients that is kept
	block int
}

// Haar returns the "haar" network. Images are resized to the largest power of two not above
// args.ImSize, and the embedding is the top-left k x k block of coefficients of each of the three
// colour channels, with k the largest value for which 3*k*k <= args.Dim (at least 1, at most the
// scale).
func Haar(args tn.EmbedderArgs) (*haarNet, error) {
	if args.ImSize < 2 {
		return nil, errors.Wrapf(tn.ErrConfiguration, "image size must be >= 2 (%d)", args.ImSize)
	} else if args.Dim <= 0 {
		return nil, errors.Wrapf(tn.ErrConfiguration, "embedding dimension must be > 0 (%d)", args.Dim)
	}

	scale := 1
	for scale*2 <= args.ImSize {
		scale *= 2
	}

	block := int(math.Sqrt(float64(args.Dim) / haar.ColourChannels))
	if block < 1 {
		block = 1
	} else if block > scale {
		block = scale
	}

	return &haarNet{scale: scale, block: block}, nil
}

func (h *haarNet) TypeString() string {
	return "haar"
}

// Dim returns 3*k*k, which may be less than the requested dimension.
func (h *haarNet) Dim() int {
	return haar.ColourChannels * h.block * h.block
}

func (h *haarNet) Embed(img image.Image) ([]float64, error) {
	if img == nil {
		return nil, errors.Wrap(tn.ErrInvariantViolation, "image is nil")
	}

	m := haar.Transform(scaled(img, h.scale))

	emb := make([]float64, 0, h.Dim())
	for ch := 0; ch < haar.ColourChannels; ch++ {
		for y := 0; y < h.block; y++ {
			for x := 0; x < h.block; x++ {
				emb = append(emb, m.Coefs[y*int(m.Width)+x][ch])
			}
		}
	}

	return emb, nil
}

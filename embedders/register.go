// Package embedders provides the embedding networks that can be trained (or evaluated) with
// triplets. Importing it registers them with tripletnet by name:
//
//	"simple"  a trainable linear projection of the grayscale pixels
//	"haar"    fixed Haar wavelet features, for comparison
package embedders

import (
	tn "github.com/sharnoff/tripletnet"
)

func init() {
	list := map[string]func(tn.EmbedderArgs) (tn.Embedder, error){
		"simple": func(args tn.EmbedderArgs) (tn.Embedder, error) {
			s, err := Simple(args)
			if err != nil {
				return nil, err
			}
			return s, nil
		},
		"haar": func(args tn.EmbedderArgs) (tn.Embedder, error) {
			h, err := Haar(args)
			if err != nil {
				return nil, err
			}
			return h, nil
		},
	}

	for s, f := range list {
		if err := tn.RegisterEmbedder(s, f); err != nil {
			panic(err.Error())
		}
	}
}

package initializers

import (
	"math"
	"math/rand"
	"reflect"
	"testing"

	tn "github.com/sharnoff/tripletnet"
)

func TestUniformStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	ws := make([]float64, 1000)
	Random(Uniform().Bounds(0.5, -0.5)).Set(rng, 10, 10, ws)

	for i, w := range ws {
		if w < -0.5 || w >= 0.5 {
			t.Fatalf("weight %d = %v is outside [-0.5, 0.5)", i, w)
		}
	}
}

func TestTruncNormalStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	g := TruncNormal().Mean(3).SD(0.1).Trunc(1)

	for i := 0; i < 1000; i++ {
		if v := g.Gen(rng); v < 2.9 || v > 3.1 {
			t.Fatalf("value %v is more than one sd from the mean", v)
		}
	}
}

func TestVarianceScalingSD(t *testing.T) {
	tests := []struct {
		name          string
		init          *varianceScaling
		fanIn, fanOut int
		want          float64
	}{
		{"lecun", LeCun().varianceScaling, 16, 4, math.Sqrt(1.0 / 16)},
		{"he", He().varianceScaling, 8, 100, math.Sqrt(2.0 / 8)},
		{"xavier", Xavier().varianceScaling, 10, 30, math.Sqrt(1.0 / 20)},
		{"out", VarianceScaling().Out(), 10, 25, math.Sqrt(1.0 / 25)},
		{"empty", VarianceScaling(), 0, 0, 1},
	}

	for _, test := range tests {
		if got := test.init.SD(test.fanIn, test.fanOut); math.Abs(got-test.want) > 1e-12 {
			t.Errorf("%s: SD(%d, %d) = %v, want %v", test.name, test.fanIn, test.fanOut, got, test.want)
		}
	}
}

func TestSetIsReproducible(t *testing.T) {
	a := make([]float64, 50)
	b := make([]float64, 50)

	Xavier().Set(rand.New(rand.NewSource(9)), 5, 10, a)
	Xavier().Set(rand.New(rand.NewSource(9)), 5, 10, b)

	if !reflect.DeepEqual(a, b) {
		t.Errorf("same seed gave different weights")
	}

	limit := 2 * Xavier().SD(5, 10)
	for i, w := range a {
		if math.Abs(w) > limit {
			t.Errorf("weight %d = %v exceeds the truncation at %v", i, w, limit)
		}
	}
}

func TestSetDefault(t *testing.T) {
	old := defaultValue["normal-sd"]
	defer func() { defaultValue["normal-sd"] = old }()

	if err := SetDefault("normal-sd", 4); err != nil {
		t.Fatal(err)
	}
	if n := Normal(); n.σ != 4 {
		t.Errorf("Normal().σ = %v after SetDefault, want 4", n.σ)
	}

	if err := SetDefault("no-such-value", 1); !tn.IsNotFound(err) {
		t.Errorf("unknown name: got error %v, want not found", err)
	}
	if err := SetDefault("normal-sd", math.Inf(1)); !tn.IsConfiguration(err) {
		t.Errorf("infinite value: got error %v, want configuration error", err)
	}
}

package optimizers

type gradientdescent int8

// GradientDescent returns plain stochastic gradient descent: each weight moves by
// -learningRate * gradient.
func GradientDescent() gradientdescent {
	return gradientdescent(0)
}

// SGD is an alias for GradientDescent.
func SGD() gradientdescent {
	return GradientDescent()
}

func (g gradientdescent) TypeString() string {
	return "sgd"
}

func (g gradientdescent) Run(name string, size int, grad func(int) float64, add func(int, float64), learningRate float64) error {
	for i := 0; i < size; i++ {
		add(i, -1*learningRate*grad(i))
	}

	return nil
}

package initializers

type leCun struct {
	*varianceScaling
}

// LeCun is VarianceScaling().In()
func LeCun() leCun {
	return leCun{VarianceScaling().In()}
}

type he struct {
	*varianceScaling
}

// He is VarianceScaling().In().Factor(2), suited to rectified units.
func He() he {
	return he{VarianceScaling().In().Factor(2)}
}

type xavier struct {
	*varianceScaling
}

// Xavier is VarianceScaling().Avg()
func Xavier() xavier {
	return xavier{VarianceScaling().Avg()}
}

func Glorot() xavier {
	return Xavier()
}

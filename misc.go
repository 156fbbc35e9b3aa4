package tripletnet

// Every returns a function that is true on every multiple of frequency. It is suitable for
// TrainArgs.ValFreq-style checks. A frequency of zero or less never fires.
func Every(frequency int) func(int) bool {
	if frequency <= 0 {
		return func(int) bool { return false }
	}

	return func(iteration int) bool {
		return iteration%frequency == 0
	}
}

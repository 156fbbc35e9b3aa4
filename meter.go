package tripletnet

import (
	"math"

	"github.com/pkg/errors"
)

// Meter keeps the last value given to it along with a running, weighted average. The zero value is
// ready to use.
type Meter struct {
	last  float64
	sum   float64
	count float64
	avg   float64
}

// NewMeter returns a Meter with nothing recorded.
func NewMeter() *Meter {
	return new(Meter)
}

// Reset forgets everything recorded so far.
func (m *Meter) Reset() {
	*m = Meter{}
}

// Update records value with the given weight, usually the size of the batch it was computed
// over. Weights must be positive and values must not be NaN.
func (m *Meter) Update(value, weight float64) error {
	if !(weight > 0) || math.IsInf(weight, 0) {
		return errors.Wrapf(ErrInvariantViolation, "meter weight must be > 0 (%v)", weight)
	} else if math.IsNaN(value) {
		return errors.Wrapf(ErrInvariantViolation, "meter value is NaN")
	}

	m.last = value
	m.sum += value * weight
	m.count += weight
	m.avg = m.sum / m.count
	return nil
}

// Add is Update with a weight of 1.
func (m *Meter) Add(value float64) error {
	return m.Update(value, 1)
}

// Average returns the weighted average of everything recorded since the last Reset. If nothing has
// been recorded, ErrDivisionUndefined is returned.
func (m *Meter) Average() (float64, error) {
	if m.count == 0 {
		return 0, errors.Wrap(ErrDivisionUndefined, "meter has no values")
	}

	return m.avg, nil
}

// Last returns the most recently recorded value, or 0 if there is none.
func (m *Meter) Last() float64 {
	return m.last
}

// Sum returns the weighted sum of the values added since the last Reset.
func (m *Meter) Sum() float64 {
	return m.sum
}

// Count returns the total weight recorded.
func (m *Meter) Count() float64 {
	return m.count
}

// avgOrZero is used for status lines, where there is always at least one value.
func (m *Meter) avgOrZero() float64 {
	return m.avg
}

package analysis

import (
	"errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/interp"
)

var (
	ErrTooShort   = errors.New("analysis: series too short")
	ErrBadSpacing = errors.New("analysis: sample spacing must be positive")
)

func nextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// DominantFrequency returns the frequency of the strongest non-zero bin of
// samples taken every dt. The mean is removed and the series zero-padded to
// a power of two, so the resolution is 1/(N dt) for the padded length N.
func DominantFrequency(samples []float64, dt float64) (float64, error) {
	if dt <= 0 {
		return 0, ErrBadSpacing
	}
	if len(samples) < 4 {
		return 0, ErrTooShort
	}

	n := nextPow2(len(samples))
	data := make([]float64, n)
	mean := floats.Sum(samples) / float64(len(samples))
	for i, v := range samples {
		data[i] = v - mean
	}

	ps := PowerSpectrum(data)
	k := 1 + floats.MaxIdx(ps[1:])
	return float64(k) / (float64(n) * dt), nil
}

// Resample linearly interpolates (times, values) onto n evenly spaced points
// spanning the same interval and returns the values and their spacing.
// times must be ascending; repeated times keep their first value.
func Resample(times, values []float64, n int) ([]float64, float64, error) {
	if len(times) != len(values) || len(times) < 2 || n < 2 {
		return nil, 0, ErrTooShort
	}
	span := times[len(times)-1] - times[0]
	if span <= 0 {
		return nil, 0, ErrBadSpacing
	}

	xs := make([]float64, 0, len(times))
	ys := make([]float64, 0, len(values))
	for i, t := range times {
		if len(xs) > 0 && t <= xs[len(xs)-1] {
			continue
		}
		xs = append(xs, t)
		ys = append(ys, values[i])
	}

	var pl interp.PiecewiseLinear
	if err := pl.Fit(xs, ys); err != nil {
		return nil, 0, err
	}

	dt := span / float64(n-1)
	out := make([]float64, n)
	for i := range out {
		out[i] = pl.Predict(times[0] + float64(i)*dt)
	}
	return out, dt, nil
}

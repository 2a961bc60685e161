// Package analysis provides spectral tools for recorded run series.
//
//   - [PowerSpectrum]: magnitude of the positive-frequency bins (gonum dsp/fourier)
//   - [Resample]: linear resampling of an unevenly spaced series
//   - [DominantFrequency]: strongest non-zero frequency of a series
//
// The orbit frequency of a bunch shows up as the dominant frequency of its
// average position:
//
//	f, err := analysis.DominantFrequency(x, dt)
//	period := 1 / f
package analysis

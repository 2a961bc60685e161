package analysis

import (
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
)

// PowerSpectrum returns |X_k| for the n/2 non-negative frequency bins below
// Nyquist. data may have any length of at least two.
func PowerSpectrum(data []float64) []float64 {
	if len(data) < 2 {
		return nil
	}
	coeff := fourier.NewFFT(len(data)).Coefficients(nil, data)
	ps := make([]float64, len(data)/2)
	for i := range ps {
		ps[i] = cmplx.Abs(coeff[i])
	}
	return ps
}

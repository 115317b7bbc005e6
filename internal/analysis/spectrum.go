package analysis

import (
	"fmt"
	"math/cmplx"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"

	"github.com/san-kum/choreo/internal/dynamo"
	"github.com/san-kum/choreo/internal/trajectory"
)

// MinSamples is the shortest sequence DominantFrequency accepts.
const MinSamples = 8

// PowerSpectrum returns |X_k| for k = 0..n/2 of a real signal.
func PowerSpectrum(signal []float64) []float64 {
	if len(signal) == 0 {
		return nil
	}
	fft := fourier.NewFFT(len(signal))
	coeffs := fft.Coefficients(nil, signal)
	ps := make([]float64, len(coeffs))
	for i, c := range coeffs {
		ps[i] = cmplx.Abs(c)
	}
	return ps
}

// DominantFrequency finds the strongest non-DC component summed over all
// joints of seq. Sampling is assumed uniform at the sequence's mean
// interval.
func DominantFrequency(seq trajectory.Sequence) (float64, error) {
	n := len(seq)
	if n < MinSamples {
		return 0, fmt.Errorf("%w: need %d samples, got %d", dynamo.ErrConfiguration, MinSamples, n)
	}
	dur := seq.Duration()
	if !(dur > 0) {
		return 0, fmt.Errorf("%w: zero-length sequence", dynamo.ErrNumericDegeneracy)
	}
	dt := dur / float64(n-1)

	fft := fourier.NewFFT(n)
	total := make([]float64, n/2+1)
	signal := make([]float64, n)
	for j := 0; j < seq.Dim(); j++ {
		for i, f := range seq {
			if j < len(f.Targets) {
				signal[i] = f.Targets[j]
			}
		}
		mean := stat.Mean(signal, nil)
		for i := range signal {
			signal[i] -= mean
		}
		for k, c := range fft.Coefficients(nil, signal) {
			total[k] += cmplx.Abs(c)
		}
	}

	best := 0
	for k := 1; k < len(total); k++ {
		if total[k] > total[best] || best == 0 {
			best = k
		}
	}
	if best == 0 || total[best] == 0 {
		return 0, fmt.Errorf("%w: no periodic component", dynamo.ErrNumericDegeneracy)
	}
	return fft.Freq(best) / dt, nil
}

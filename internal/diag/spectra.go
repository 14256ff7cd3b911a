package diag

import (
	"math"
	"math/cmplx"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// SamplingRate is the nominal sampling frequency (Hz) of functional runs
const SamplingRate = 0.5

// Spectrum holds the voxel-averaged power spectral density
type Spectrum struct {
	Freq []float64
	Mean []float64
	SD   []float64
}

// WholeBrainSpectra linearly detrends every voxel time series and computes
// its one-sided periodogram (density scaling, rectangular window) at
// sampling rate fs. The mean and population SD across voxels are returned
// per frequency bin.
func WholeBrainSpectra(ts [][]float64, fs float64) (*Spectrum, error) {
	if len(ts) == 0 {
		return nil, eris.Wrap(ErrTooFewVoxels, "spectra")
	}
	nt := len(ts[0])
	if nt < 2 {
		return nil, eris.Errorf("spectra: %d time points", nt)
	}

	fft := fourier.NewFFT(nt)
	nbins := nt/2 + 1
	power := make([][]float64, nbins)
	for k := range power {
		power[k] = make([]float64, 0, len(ts))
	}

	coeffs := make([]complex128, nbins)
	buf := make([]float64, nt)
	for _, row := range ts {
		if len(row) != nt {
			return nil, eris.Wrapf(ErrShapeMismatch, "spectra: %d time points, expected %d", len(row), nt)
		}
		detrend(buf, row)
		coeffs = fft.Coefficients(coeffs, buf)
		for k, c := range coeffs {
			p := math.Pow(cmplx.Abs(c), 2) / (fs * float64(nt))
			if k > 0 && (k < nbins-1 || nt%2 == 1) {
				p *= 2
			}
			power[k] = append(power[k], p)
		}
	}

	s := &Spectrum{
		Freq: make([]float64, nbins),
		Mean: make([]float64, nbins),
		SD:   make([]float64, nbins),
	}
	for k := range power {
		s.Freq[k] = float64(k) * fs / float64(nt)
		mean, variance := stat.PopMeanVariance(power[k], nil)
		s.Mean[k] = mean
		s.SD[k] = math.Sqrt(variance)
	}
	return s, nil
}

// detrend writes x minus its least-squares line into dst
func detrend(dst, x []float64) {
	t := make([]float64, len(x))
	for i := range t {
		t[i] = float64(i)
	}
	alpha, beta := stat.LinearRegression(t, x, nil, false)
	for i, v := range x {
		dst[i] = v - (alpha + beta*t[i])
	}
}

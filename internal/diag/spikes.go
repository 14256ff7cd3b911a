package diag

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// SliceTrace holds the regional statistics of one axial slice over time
type SliceTrace struct {
	Mean   []float64
	SD     []float64
	Spikes []int // positions in Mean flagged as spikes
}

// SpikeReport is the result of DetectSpikes
type SpikeReport struct {
	Count  int
	Slices []SliceTrace
}

// GradientFilter returns, per time point, whether the column sum of a
// gradient table (3 rows × T columns) is non-zero. Reference volumes have
// an all-zero gradient and are excluded.
func GradientFilter(bvec [][]float64) []bool {
	if len(bvec) == 0 {
		return nil
	}
	keep := make([]bool, len(bvec[0]))
	for t := range keep {
		var sum float64
		for _, row := range bvec {
			sum += row[t]
		}
		keep[t] = sum != 0
	}
	return keep
}

// DetectSpikes computes, for every slice along the first axis of a
// reoriented series, the mean and population SD of the centred region
// covering 25%–75% of each in-plane axis at every time point. A time point
// is a spike when its mean exceeds the mean of all means plus the mean of
// all SDs. keep, when non-nil, restricts the time axis.
func DetectSpikes(s *Series, keep []bool) (*SpikeReport, error) {
	if s == nil || s.T() == 0 {
		return nil, eris.Wrap(ErrEmptyVolume, "spike detection")
	}
	if keep != nil && len(keep) != s.T() {
		return nil, eris.Wrapf(ErrShapeMismatch, "spike detection: filter has %d entries for %d time points", len(keep), s.T())
	}

	dims := s.Dims()
	r0, r1 := centralRange(dims[1])
	c0, c1 := centralRange(dims[2])

	report := &SpikeReport{Slices: make([]SliceTrace, dims[0])}
	region := make([]float64, 0, (r1-r0)*(c1-c0))

	for i := 0; i < dims[0]; i++ {
		var tr SliceTrace
		for t, v := range s.Vols {
			if keep != nil && !keep[t] {
				continue
			}
			region = region[:0]
			for r := r0; r < r1; r++ {
				for c := c0; c < c1; c++ {
					region = append(region, v.At(i, r, c))
				}
			}
			mean, variance := stat.PopMeanVariance(region, nil)
			tr.Mean = append(tr.Mean, mean)
			tr.SD = append(tr.SD, math.Sqrt(variance))
		}

		if len(tr.Mean) > 0 {
			n := float64(len(tr.Mean))
			threshold := floats.Sum(tr.Mean)/n + floats.Sum(tr.SD)/n
			for t, m := range tr.Mean {
				if m > threshold {
					tr.Spikes = append(tr.Spikes, t)
				}
			}
		}
		report.Count += len(tr.Spikes)
		report.Slices[i] = tr
	}
	return report, nil
}

// centralRange returns the half-open index range covering the middle half
// of an axis of length n.
func centralRange(n int) (int, int) {
	lo := int(math.RoundToEven(float64(n) * 0.25))
	hi := int(math.RoundToEven(float64(n) * 0.75))
	if hi <= lo {
		return 0, n
	}
	return lo, hi
}

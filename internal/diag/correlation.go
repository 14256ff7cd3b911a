package diag

import (
	"math"
	"math/rand/v2"
	"sort"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// DefaultCorrelationFraction is the share of in-mask voxels sampled
const DefaultCorrelationFraction = 0.1

// Correlation summarizes the pairwise temporal correlation of sampled voxels
type Correlation struct {
	Mean   float64
	SD     float64
	Matrix *mat.SymDense
}

// WholeBrainCorrelation samples fraction of the voxel time series (rows of
// ts) at random, computes their Pearson correlation matrix, and returns the
// mean and population SD over every matrix entry. Constant time series are
// excluded before sampling since their correlation is undefined.
func WholeBrainCorrelation(ts [][]float64, fraction float64, rng *rand.Rand) (*Correlation, error) {
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultCorrelationFraction
	}

	var usable []int
	for i, row := range ts {
		if !constant(row) {
			usable = append(usable, i)
		}
	}

	n := int(float64(len(usable)) * fraction)
	if n < 2 {
		return nil, eris.Wrapf(ErrTooFewVoxels, "correlation: %d usable voxels, sample of %d", len(usable), n)
	}

	perm := rng.Perm(len(usable))[:n]
	sort.Ints(perm)

	nt := len(ts[usable[0]])
	x := mat.NewDense(nt, n, nil)
	for j, p := range perm {
		row := ts[usable[p]]
		if len(row) != nt {
			return nil, eris.Wrapf(ErrShapeMismatch, "correlation: voxel %d has %d time points, expected %d", usable[p], len(row), nt)
		}
		x.SetCol(j, row)
	}

	corr := mat.NewSymDense(n, nil)
	stat.CorrelationMatrix(corr, x, nil)

	values := make([]float64, 0, n*n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			values = append(values, corr.At(i, j))
		}
	}
	mean, variance := stat.PopMeanVariance(values, nil)

	return &Correlation{Mean: mean, SD: math.Sqrt(variance), Matrix: corr}, nil
}

func constant(row []float64) bool {
	if len(row) < 2 {
		return true
	}
	for _, v := range row[1:] {
		if v != row[0] {
			return false
		}
	}
	return true
}

// NewRand returns the seeded source used for voxel sampling
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

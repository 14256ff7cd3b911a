package diag

import (
	"math"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/floats"
)

const (
	// HeadRadius converts rotations (degrees) to displacement in mm
	HeadRadius = 50.0
	// FDThreshold is the per-step displacement counted as excessive (mm)
	FDThreshold = 0.5
)

// Displacement summarizes framewise displacement of a motion-parameter file
type Displacement struct {
	FD    []float64 // one value per step between consecutive time points
	Total float64
	Above int // steps with FD above FDThreshold
}

// FramewiseDisplacement computes framewise displacement from a matrix of
// motion parameters, one row per time point. The first three columns are
// rotations in degrees and are converted to arc length at HeadRadius;
// any further columns (translations, mm) are used as given. FD is the sum
// of absolute first differences across all columns.
func FramewiseDisplacement(params [][]float64) (*Displacement, error) {
	if len(params) == 0 {
		return &Displacement{}, nil
	}
	cols := len(params[0])
	if cols < 3 {
		return nil, eris.Errorf("framewise displacement: need at least 3 motion columns, got %d", cols)
	}

	d := &Displacement{}
	if len(params) < 2 {
		return d, nil
	}
	d.FD = make([]float64, len(params)-1)

	prev := toDisplacement(params[0])
	for t := 1; t < len(params); t++ {
		if len(params[t]) != cols {
			return nil, eris.Errorf("framewise displacement: row %d has %d columns, expected %d", t, len(params[t]), cols)
		}
		cur := toDisplacement(params[t])
		var fd float64
		for c := range cur {
			fd += math.Abs(cur[c] - prev[c])
		}
		d.FD[t-1] = fd
		if fd > FDThreshold {
			d.Above++
		}
		prev = cur
	}
	d.Total = floats.Sum(d.FD)
	return d, nil
}

func toDisplacement(row []float64) []float64 {
	out := make([]float64, len(row))
	copy(out, row)
	for c := 0; c < 3; c++ {
		out[c] = row[c] * math.Pi / 180 * HeadRadius
	}
	return out
}

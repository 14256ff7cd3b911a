// Package diag implements the image diagnostics run on QC'd scans: bounding
// boxes, montages, spike detection, head motion, whole-brain correlation and
// spectra, plus the raster and plot rendering for each.
//
// All spatial routines operate on radiologically reoriented volumes (see
// Reorient).
package diag

import (
	"math"

	"github.com/franz/neuroqc/internal/nifti"
)

// Volume is a dense 3-D array in row-major order: the last axis varies
// fastest.
type Volume struct {
	Dims [3]int
	Data []float64
}

// NewVolume allocates a zeroed volume
func NewVolume(d0, d1, d2 int) *Volume {
	return &Volume{Dims: [3]int{d0, d1, d2}, Data: make([]float64, d0*d1*d2)}
}

func (v *Volume) index(i, j, k int) int {
	return (i*v.Dims[1]+j)*v.Dims[2] + k
}

// At returns the value at (i, j, k)
func (v *Volume) At(i, j, k int) float64 {
	return v.Data[v.index(i, j, k)]
}

// Set stores x at (i, j, k)
func (v *Volume) Set(i, j, k int, x float64) {
	v.Data[v.index(i, j, k)] = x
}

// Range returns the minimum and maximum value
func (v *Volume) Range() (min, max float64) {
	return valueRange(v.Data)
}

// Slice extracts the plane at index idx along axis. The plane keeps the
// remaining two axes in order.
func (v *Volume) Slice(axis, idx int) *Plane {
	switch axis {
	case 0:
		p := NewPlane(v.Dims[1], v.Dims[2])
		for j := 0; j < v.Dims[1]; j++ {
			for k := 0; k < v.Dims[2]; k++ {
				p.Set(j, k, v.At(idx, j, k))
			}
		}
		return p
	case 1:
		p := NewPlane(v.Dims[0], v.Dims[2])
		for i := 0; i < v.Dims[0]; i++ {
			for k := 0; k < v.Dims[2]; k++ {
				p.Set(i, k, v.At(i, idx, k))
			}
		}
		return p
	default:
		p := NewPlane(v.Dims[0], v.Dims[1])
		for i := 0; i < v.Dims[0]; i++ {
			for j := 0; j < v.Dims[1]; j++ {
				p.Set(i, j, v.At(i, j, idx))
			}
		}
		return p
	}
}

// Plane is a 2-D slice of a volume
type Plane struct {
	Rows, Cols int
	Data       []float64
}

// NewPlane allocates a zeroed plane
func NewPlane(rows, cols int) *Plane {
	return &Plane{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

// At returns the value at row r, column c
func (p *Plane) At(r, c int) float64 { return p.Data[r*p.Cols+c] }

// Set stores x at row r, column c
func (p *Plane) Set(r, c int, x float64) { p.Data[r*p.Cols+c] = x }

// FromImage copies volume t of a NIfTI image into a Volume indexed (x, y, z)
func FromImage(img *nifti.Image, t int) *Volume {
	nx, ny, nz := img.Dims[0], img.Dims[1], img.Dims[2]
	src := img.Volume(t)
	v := NewVolume(nx, ny, nz)
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				v.Set(x, y, z, src[x+nx*(y+ny*z)])
			}
		}
	}
	return v
}

// Reorient converts an (x, y, z) volume to radiological display order:
// axes are permuted to (z, x, y) and the result is rotated 180 degrees in
// the plane of its first two axes.
func Reorient(v *Volume) *Volume {
	nx, ny, nz := v.Dims[0], v.Dims[1], v.Dims[2]
	out := NewVolume(nz, nx, ny)
	for i := 0; i < nz; i++ {
		for j := 0; j < nx; j++ {
			for k := 0; k < ny; k++ {
				out.Set(i, j, k, v.At(nx-1-j, k, nz-1-i))
			}
		}
	}
	return out
}

// Series is a reoriented time series, one volume per time point
type Series struct {
	Vols []*Volume
}

// SeriesFromImage reorients every volume of img
func SeriesFromImage(img *nifti.Image) *Series {
	s := &Series{Vols: make([]*Volume, img.NT())}
	for t := range s.Vols {
		s.Vols[t] = Reorient(FromImage(img, t))
	}
	return s
}

// T returns the number of time points
func (s *Series) T() int { return len(s.Vols) }

// Dims returns the spatial dimensions of the series
func (s *Series) Dims() [3]int {
	if len(s.Vols) == 0 {
		return [3]int{}
	}
	return s.Vols[0].Dims
}

// Range returns the minimum and maximum over all time points
func (s *Series) Range() (min, max float64) {
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range s.Vols {
		lo, hi := v.Range()
		min = math.Min(min, lo)
		max = math.Max(max, hi)
	}
	if len(s.Vols) == 0 {
		return 0, 0
	}
	return min, max
}

func valueRange(data []float64) (min, max float64) {
	if len(data) == 0 {
		return 0, 0
	}
	min, max = data[0], data[0]
	for _, x := range data[1:] {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return min, max
}

// MaskedTimeSeries returns a voxels × time matrix of func restricted to the
// voxels where mask is positive. Both images are used in file order.
func MaskedTimeSeries(fn, mask *nifti.Image) ([][]float64, error) {
	n := fn.NVox()
	if mask.NVox() != n {
		return nil, ErrShapeMismatch
	}
	m := mask.Volume(0)
	nt := fn.NT()

	var out [][]float64
	for i := 0; i < n; i++ {
		if m[i] <= 0 {
			continue
		}
		ts := make([]float64, nt)
		for t := 0; t < nt; t++ {
			ts[t] = fn.Data[t*n+i]
		}
		out = append(out, ts)
	}
	return out, nil
}

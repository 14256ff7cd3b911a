package diag

import (
	"errors"
)

var (
	// ErrEmptyVolume is returned when a volume has no non-zero voxel
	ErrEmptyVolume = errors.New("volume contains no non-zero voxels")
	// ErrShapeMismatch is returned when two images must share a grid and do not
	ErrShapeMismatch = errors.New("image dimensions do not match")
	// ErrTooFewVoxels is returned when a statistic needs more samples than
	// the mask provides
	ErrTooFewVoxels = errors.New("too few usable voxels")
)

// Box is an inclusive [start, end] extent per axis
type Box [3][2]int

// EmptyBox is returned for volumes without any non-zero voxel
var EmptyBox = Box{{-1, -1}, {-1, -1}, {-1, -1}}

// Full returns the box spanning every voxel of v
func Full(v *Volume) Box {
	return Box{{0, v.Dims[0] - 1}, {0, v.Dims[1] - 1}, {0, v.Dims[2] - 1}}
}

// Size returns the number of voxels along each axis
func (b Box) Size() [3]int {
	return [3]int{b[0][1] - b[0][0] + 1, b[1][1] - b[1][0] + 1, b[2][1] - b[2][0] + 1}
}

// BoundingBox finds the smallest box containing every non-zero voxel.
// Each axis is scanned ascending for the first occupied slice and
// descending for the last; both scans are bounded by the axis length.
func BoundingBox(v *Volume) (Box, error) {
	var occupied [3][]bool
	for a := 0; a < 3; a++ {
		occupied[a] = make([]bool, v.Dims[a])
	}

	found := false
	for i := 0; i < v.Dims[0]; i++ {
		for j := 0; j < v.Dims[1]; j++ {
			for k := 0; k < v.Dims[2]; k++ {
				if v.At(i, j, k) != 0 {
					occupied[0][i] = true
					occupied[1][j] = true
					occupied[2][k] = true
					found = true
				}
			}
		}
	}
	if !found {
		return EmptyBox, ErrEmptyVolume
	}

	var box Box
	for a := 0; a < 3; a++ {
		lo, hi := 0, v.Dims[a]-1
		for lo < v.Dims[a] && !occupied[a][lo] {
			lo++
		}
		for hi >= 0 && !occupied[a][hi] {
			hi--
		}
		box[a] = [2]int{lo, hi}
	}
	return box, nil
}

// Crop copies the voxels inside b
func Crop(v *Volume, b Box) *Volume {
	size := b.Size()
	out := NewVolume(size[0], size[1], size[2])
	for i := 0; i < size[0]; i++ {
		for j := 0; j < size[1]; j++ {
			for k := 0; k < size[2]; k++ {
				out.Set(i, j, k, v.At(b[0][0]+i, b[1][0]+j, b[2][0]+k))
			}
		}
	}
	return out
}

package nifti

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rotisserie/eris"
)

// Write stores data (file order, x fastest) as a little-endian float32
// NIfTI-1 file. A ".gz" suffix selects gzip compression.
func Write(path string, dims []int, data []float64) error {
	if len(dims) < 3 || len(dims) > 4 {
		return eris.Wrapf(ErrFormat, "write %s: %d dimensions", path, len(dims))
	}
	n := 1
	for _, d := range dims {
		n *= d
	}
	if n != len(data) {
		return eris.Wrapf(ErrFormat, "write %s: dims %v need %d voxels, got %d", path, dims, n, len(data))
	}

	var raw header1
	raw.SizeofHdr = headerSize
	raw.Dim[0] = int16(len(dims))
	for i := 1; i < 8; i++ {
		raw.Dim[i] = 1
		raw.Pixdim[i] = 1
	}
	for i, d := range dims {
		raw.Dim[i+1] = int16(d)
	}
	raw.Pixdim[0] = 1
	raw.Datatype = DTFloat32
	raw.Bitpix = 32
	raw.VoxOffset = dataOffset
	raw.SclSlope = 1
	raw.XyztUnits = 10 // mm, seconds
	copy(raw.Magic[:], "n+1\x00")

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &raw); err != nil {
		return eris.Wrap(err, "nifti: encode header")
	}
	buf.Write(make([]byte, dataOffset-headerSize)) // empty extension block
	for _, v := range data {
		binary.Write(&buf, binary.LittleEndian, math.Float32bits(float32(v)))
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "nifti: create %s", path)
	}
	defer f.Close()

	var w io.Writer = f
	var zw *gzip.Writer
	if strings.HasSuffix(path, ".gz") {
		zw = gzip.NewWriter(f)
		w = zw
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return eris.Wrapf(err, "nifti: write %s", path)
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return eris.Wrapf(err, "nifti: write %s", path)
		}
	}
	return f.Close()
}

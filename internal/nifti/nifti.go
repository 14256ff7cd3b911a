// Package nifti reads single-file NIfTI-1 volumes (.nii, .nii.gz).
package nifti

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"math"
	"os"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rotisserie/eris"
)

// ErrFormat is returned for files that are not readable NIfTI-1 volumes
var ErrFormat = errors.New("not a supported NIfTI-1 file")

const (
	headerSize = 348
	dataOffset = 352
)

// Datatype codes
const (
	DTUint8   int16 = 2
	DTInt16   int16 = 4
	DTInt32   int16 = 8
	DTFloat32 int16 = 16
	DTFloat64 int16 = 64
	DTInt8    int16 = 256
	DTUint16  int16 = 512
	DTUint32  int16 = 768
)

// header1 mirrors the on-disk NIfTI-1 header
type header1 struct {
	SizeofHdr     int32
	DataType      [10]byte
	DbName        [18]byte
	Extents       int32
	SessionError  int16
	Regular       byte
	DimInfo       byte
	Dim           [8]int16
	IntentP1      float32
	IntentP2      float32
	IntentP3      float32
	IntentCode    int16
	Datatype      int16
	Bitpix        int16
	SliceStart    int16
	Pixdim        [8]float32
	VoxOffset     float32
	SclSlope      float32
	SclInter      float32
	SliceEnd      int16
	SliceCode     byte
	XyztUnits     byte
	CalMax        float32
	CalMin        float32
	SliceDuration float32
	Toffset       float32
	Glmax         int32
	Glmin         int32
	Descrip       [80]byte
	AuxFile       [24]byte
	QformCode     int16
	SformCode     int16
	QuaternB      float32
	QuaternC      float32
	QuaternD      float32
	QoffsetX      float32
	QoffsetY      float32
	QoffsetZ      float32
	SrowX         [4]float32
	SrowY         [4]float32
	SrowZ         [4]float32
	IntentName    [16]byte
	Magic         [4]byte
}

// Header holds the parts of a NIfTI header the QC routines need
type Header struct {
	Dims      []int     // nx, ny, nz[, nt]
	PixDim    []float64 // voxel size per dimension
	Datatype  int16
	VoxOffset int64
	Slope     float64
	Inter     float64
	Descrip   string

	order binary.ByteOrder
}

// NT returns the number of volumes (1 for 3-D images)
func (h *Header) NT() int {
	if len(h.Dims) < 4 {
		return 1
	}
	return h.Dims[3]
}

// NVox returns the number of voxels in one volume
func (h *Header) NVox() int {
	n := 1
	for i := 0; i < 3 && i < len(h.Dims); i++ {
		n *= h.Dims[i]
	}
	return n
}

// Image is a decoded volume or time series. Data is stored in file order:
// x fastest, then y, z and t. Scaling has been applied.
type Image struct {
	Header
	Data []float64
}

// At returns the voxel value at (x, y, z, t)
func (im *Image) At(x, y, z, t int) float64 {
	nx, ny, nz := im.dim(0), im.dim(1), im.dim(2)
	return im.Data[x+nx*(y+ny*(z+nz*t))]
}

// Volume returns the voxels of volume t in file order
func (im *Image) Volume(t int) []float64 {
	n := im.NVox()
	return im.Data[t*n : (t+1)*n]
}

func (im *Image) dim(i int) int {
	if i < len(im.Dims) {
		return im.Dims[i]
	}
	return 1
}

// ReadHeader reads only the header of path
func ReadHeader(path string) (*Header, error) {
	rc, err := open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	buf := make([]byte, headerSize)
	if _, err := io.ReadFull(rc, buf); err != nil {
		return nil, eris.Wrapf(ErrFormat, "%s: short header: %v", path, err)
	}
	h, err := parseHeader(buf)
	if err != nil {
		return nil, eris.Wrapf(err, "%s", path)
	}
	return h, nil
}

// Read decodes path into memory
func Read(path string) (*Image, error) {
	rc, err := open(path)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	raw, err := io.ReadAll(rc)
	if err != nil {
		return nil, eris.Wrapf(err, "nifti: read %s", path)
	}
	if len(raw) < headerSize {
		return nil, eris.Wrapf(ErrFormat, "%s: %d bytes", path, len(raw))
	}

	h, err := parseHeader(raw[:headerSize])
	if err != nil {
		return nil, eris.Wrapf(err, "%s", path)
	}

	if h.VoxOffset > int64(len(raw)) {
		return nil, eris.Wrapf(ErrFormat, "%s: vox_offset %d past end of file", path, h.VoxOffset)
	}
	n := h.NVox() * h.NT()
	data, err := decode(raw[h.VoxOffset:], h, n)
	if err != nil {
		return nil, eris.Wrapf(err, "%s", path)
	}
	return &Image{Header: *h, Data: data}, nil
}

func open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "nifti: open %s", path)
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}

	zr, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, eris.Wrapf(ErrFormat, "%s: gzip: %v", path, err)
	}
	return &gzipFile{Reader: zr, f: f}, nil
}

type gzipFile struct {
	*gzip.Reader
	f *os.File
}

func (g *gzipFile) Close() error {
	g.Reader.Close()
	return g.f.Close()
}

func parseHeader(buf []byte) (*Header, error) {
	var order binary.ByteOrder = binary.LittleEndian
	if int32(binary.LittleEndian.Uint32(buf)) != headerSize {
		if int32(binary.BigEndian.Uint32(buf)) != headerSize {
			return nil, eris.Wrap(ErrFormat, "bad sizeof_hdr")
		}
		order = binary.BigEndian
	}

	var raw header1
	if err := binary.Read(bytes.NewReader(buf), order, &raw); err != nil {
		return nil, eris.Wrapf(ErrFormat, "decode header: %v", err)
	}

	magic := string(raw.Magic[:3])
	if magic != "n+1" && magic != "ni1" {
		return nil, eris.Wrapf(ErrFormat, "magic %q", magic)
	}
	if magic == "ni1" {
		return nil, eris.Wrap(ErrFormat, "two-file (.hdr/.img) pairs are not supported")
	}

	ndim := int(raw.Dim[0])
	if ndim < 3 || ndim > 7 {
		return nil, eris.Wrapf(ErrFormat, "unsupported dimensionality %d", ndim)
	}

	h := &Header{
		Datatype:  raw.Datatype,
		VoxOffset: int64(raw.VoxOffset),
		Slope:     float64(raw.SclSlope),
		Inter:     float64(raw.SclInter),
		Descrip:   strings.TrimRight(string(raw.Descrip[:]), "\x00"),
		order:     order,
	}
	// dimensions beyond t are folded into t
	for i := 1; i <= ndim && i <= 4; i++ {
		d := int(raw.Dim[i])
		if d < 1 {
			d = 1
		}
		h.Dims = append(h.Dims, d)
		h.PixDim = append(h.PixDim, float64(raw.Pixdim[i]))
	}
	for i := 5; i <= ndim; i++ {
		if d := int(raw.Dim[i]); d > 1 {
			h.Dims[3] *= d
		}
	}
	if len(h.Dims) == 4 && h.Dims[3] == 1 {
		h.Dims = h.Dims[:3]
		h.PixDim = h.PixDim[:3]
	}
	if h.VoxOffset < dataOffset {
		h.VoxOffset = dataOffset
	}
	if h.Slope == 0 || math.IsNaN(h.Slope) {
		h.Slope, h.Inter = 1, 0
	}
	return h, nil
}

func bytesPer(dt int16) int {
	switch dt {
	case DTUint8, DTInt8:
		return 1
	case DTInt16, DTUint16:
		return 2
	case DTInt32, DTUint32, DTFloat32:
		return 4
	case DTFloat64:
		return 8
	}
	return 0
}

func decode(buf []byte, h *Header, n int) ([]float64, error) {
	size := bytesPer(h.Datatype)
	if size == 0 {
		return nil, eris.Wrapf(ErrFormat, "unsupported datatype %d", h.Datatype)
	}
	if len(buf) < n*size {
		return nil, eris.Wrapf(ErrFormat, "truncated data: have %d bytes, need %d", len(buf), n*size)
	}

	o := h.order
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		b := buf[i*size:]
		var v float64
		switch h.Datatype {
		case DTUint8:
			v = float64(b[0])
		case DTInt8:
			v = float64(int8(b[0]))
		case DTInt16:
			v = float64(int16(o.Uint16(b)))
		case DTUint16:
			v = float64(o.Uint16(b))
		case DTInt32:
			v = float64(int32(o.Uint32(b)))
		case DTUint32:
			v = float64(o.Uint32(b))
		case DTFloat32:
			v = float64(math.Float32frombits(o.Uint32(b)))
		case DTFloat64:
			v = math.Float64frombits(o.Uint64(b))
		}
		out[i] = v*h.Slope + h.Inter
	}
	return out, nil
}

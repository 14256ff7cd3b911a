package diag

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/franz/neuroqc/internal/nifti"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func constantSeries(d0, d1, d2, t int, value float64) *Series {
	s := &Series{}
	for i := 0; i < t; i++ {
		v := NewVolume(d0, d1, d2)
		for j := range v.Data {
			v.Data[j] = value
		}
		s.Vols = append(s.Vols, v)
	}
	return s
}

func TestBoundingBox_SingleVoxel(t *testing.T) {
	points := [][3]int{{0, 0, 0}, {3, 5, 7}, {9, 9, 9}, {4, 0, 8}}
	for _, p := range points {
		v := NewVolume(10, 10, 10)
		v.Set(p[0], p[1], p[2], 1)

		box, err := BoundingBox(v)
		require.NoError(t, err)
		assert.Equal(t, Box{{p[0], p[0]}, {p[1], p[1]}, {p[2], p[2]}}, box, "voxel %v", p)
	}
}

func TestBoundingBox_Extent(t *testing.T) {
	v := NewVolume(8, 6, 4)
	v.Set(2, 1, 0, 5)
	v.Set(5, 4, 2, -3) // negative intensities still count as occupied

	box, err := BoundingBox(v)
	require.NoError(t, err)
	assert.Equal(t, Box{{2, 5}, {1, 4}, {0, 2}}, box)

	c := Crop(v, box)
	assert.Equal(t, [3]int{4, 4, 3}, c.Dims)
	assert.Equal(t, 5.0, c.At(0, 0, 0))
	assert.Equal(t, -3.0, c.At(3, 3, 2))
}

func TestBoundingBox_Empty(t *testing.T) {
	box, err := BoundingBox(NewVolume(5, 5, 5))
	assert.ErrorIs(t, err, ErrEmptyVolume)
	assert.Equal(t, EmptyBox, box)
}

func TestReorient(t *testing.T) {
	// (x, y, z) = (2, 3, 4)
	v := NewVolume(2, 3, 4)
	for i := range v.Data {
		v.Data[i] = float64(i)
	}
	r := Reorient(v)
	assert.Equal(t, [3]int{4, 2, 3}, r.Dims)

	for i := 0; i < 4; i++ {
		for j := 0; j < 2; j++ {
			for k := 0; k < 3; k++ {
				assert.Equal(t, v.At(1-j, k, 3-i), r.At(i, j, k))
			}
		}
	}
}

func TestFromImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "v.nii")
	data := make([]float64, 2*3*4*2)
	for i := range data {
		data[i] = float64(i)
	}
	require.NoError(t, nifti.Write(path, []int{2, 3, 4, 2}, data))
	img, err := nifti.Read(path)
	require.NoError(t, err)

	v := FromImage(img, 1)
	assert.Equal(t, [3]int{2, 3, 4}, v.Dims)
	assert.Equal(t, img.At(1, 2, 3, 1), v.At(1, 2, 3))

	s := SeriesFromImage(img)
	assert.Equal(t, 2, s.T())
	assert.Equal(t, [3]int{4, 2, 3}, s.Dims())
}

func TestSpatialMontage_PanelCount(t *testing.T) {
	v := NewVolume(36, 36, 36)
	for i := 4; i < 30; i++ {
		for j := 6; j < 28; j++ {
			for k := 2; k < 33; k++ {
				v.Set(i, j, k, float64(i+j+k))
			}
		}
	}

	m, err := SpatialMontage(v, MontageOptions{Title: "scan", Name: "BOLD", MaxFrac: 0.75})
	require.NoError(t, err)
	assert.Len(t, m.Panels, SpatialPanels)
	assert.Equal(t, 6, m.Grid)
	for _, p := range m.Panels {
		assert.False(t, p.Blank)
		assert.Equal(t, 22, p.Plane.Rows)
		assert.Equal(t, 31, p.Plane.Cols)
	}

	// window is a fraction of the observed range
	lo, hi := 12.0, float64(29+27+32)
	assert.InDelta(t, lo, m.Min, 1e-9)
	assert.InDelta(t, lo+(hi-lo)*0.75, m.Max, 1e-9)
}

func TestSpatialMontage_EmptyVolumeUsesFullExtent(t *testing.T) {
	m, err := SpatialMontage(NewVolume(36, 36, 36), MontageOptions{})
	require.NoError(t, err)
	assert.Len(t, m.Panels, SpatialPanels)
	assert.Equal(t, 36, m.Panels[0].Plane.Rows)
}

func TestTemporalMontage_PanelCount(t *testing.T) {
	for _, nt := range []int{1, 2, 10, 16, 17, 60} {
		s := constantSeries(6, 5, 4, nt, 1)
		m, err := TemporalMontage(s, MontageOptions{})
		require.NoError(t, err)

		g := int(math.Ceil(math.Sqrt(float64(nt))))
		assert.Equal(t, g, m.Grid)
		require.Len(t, m.Panels, g*g, "T=%d", nt)
		for i, p := range m.Panels {
			assert.Equal(t, i >= nt, p.Blank, "T=%d panel %d", nt, i)
		}
		// mid slice of the last axis leaves a (d0, d1) plane
		assert.Equal(t, 6, m.Panels[0].Plane.Rows)
		assert.Equal(t, 5, m.Panels[0].Plane.Cols)
	}
}

func TestMontage_Render(t *testing.T) {
	v := NewVolume(10, 12, 8)
	v.Set(5, 6, 4, 100)
	m, err := SpatialMontage(v, MontageOptions{Title: "X_T1_02", Name: "T1", Colormap: Hot})
	require.NoError(t, err)

	img := m.Render()
	assert.Equal(t, 6*tileSize+colorbarWidth, img.Bounds().Dx())
	assert.Equal(t, 6*tileSize+titleHeight, img.Bounds().Dy())

	path := filepath.Join(t.TempDir(), "m.png")
	require.NoError(t, m.WritePNG(path))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))
}

func TestSliceSteps(t *testing.T) {
	steps := SliceSteps(36, 36)
	for i, s := range steps {
		assert.Equal(t, i, s)
	}
	assert.Equal(t, []int{0, 0, 0}, SliceSteps(1, 3))
	steps = SliceSteps(10, 36)
	assert.Equal(t, 0, steps[0])
	assert.Equal(t, 9, steps[35])
}

func TestWindow(t *testing.T) {
	lo, hi := Window(10, 110, 0, 0.25)
	assert.Equal(t, 10.0, lo)
	assert.Equal(t, 35.0, hi)

	lo, hi = Window(-1, 1, 0, 0)
	assert.Equal(t, -1.0, lo)
	assert.Equal(t, 1.0, hi)
}

func TestDetectSpikes_Constant(t *testing.T) {
	s := constantSeries(4, 8, 8, 20, 100)
	r, err := DetectSpikes(s, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Count)
	assert.Len(t, r.Slices, 4)
	assert.Len(t, r.Slices[0].Mean, 20)
}

func TestDetectSpikes_Injected(t *testing.T) {
	s := constantSeries(4, 8, 8, 20, 100)
	base, err := DetectSpikes(s, nil)
	require.NoError(t, err)

	spiked := s.Vols[7]
	for i := range spiked.Data {
		spiked.Data[i] = 5000
	}
	r, err := DetectSpikes(s, nil)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, r.Count, base.Count+1)
	assert.Equal(t, []int{7}, r.Slices[0].Spikes)
}

func TestDetectSpikes_GradientFilter(t *testing.T) {
	s := constantSeries(2, 8, 8, 4, 100)
	for i := range s.Vols[0].Data {
		s.Vols[0].Data[i] = 9000 // b0 reference volume
	}
	bvec := [][]float64{
		{0, 1, 0, 0.7},
		{0, 0, 1, 0.7},
		{0, 0, 0, 0},
	}
	keep := GradientFilter(bvec)
	assert.Equal(t, []bool{false, true, true, true}, keep)

	r, err := DetectSpikes(s, keep)
	require.NoError(t, err)
	assert.Equal(t, 0, r.Count)
	assert.Len(t, r.Slices[0].Mean, 3)

	_, err = DetectSpikes(s, []bool{true})
	assert.ErrorIs(t, err, ErrShapeMismatch)
}

func TestCentralRange(t *testing.T) {
	lo, hi := centralRange(64)
	assert.Equal(t, 16, lo)
	assert.Equal(t, 48, hi)

	lo, hi = centralRange(1)
	assert.Equal(t, 0, lo)
	assert.Equal(t, 1, hi)
}

func TestFramewiseDisplacement(t *testing.T) {
	deg := 180 / math.Pi / HeadRadius // one degree-column unit worth 1 mm
	params := [][]float64{
		{0, 0, 0, 0, 0, 0},
		{deg * 0.1, 0, 0, 0, 0, 0.2},
		{deg * 0.1, 0, 0, 0, 0, 1.0},
		{deg * 0.1, 0, 0, 0, 0, 1.0},
	}

	d, err := FramewiseDisplacement(params)
	require.NoError(t, err)
	require.Len(t, d.FD, 3)
	assert.InDelta(t, 0.3, d.FD[0], 1e-9)
	assert.InDelta(t, 0.8, d.FD[1], 1e-9)
	assert.InDelta(t, 0.0, d.FD[2], 1e-9)
	assert.InDelta(t, 1.1, d.Total, 1e-9)
	assert.Equal(t, 1, d.Above)

	_, err = FramewiseDisplacement([][]float64{{1, 2}})
	assert.Error(t, err)

	d, err = FramewiseDisplacement([][]float64{{1, 2, 3}})
	require.NoError(t, err)
	assert.Empty(t, d.FD)
}

func TestWholeBrainCorrelation(t *testing.T) {
	ts := make([][]float64, 200)
	for i := range ts {
		ts[i] = make([]float64, 30)
		for j := range ts[i] {
			ts[i][j] = math.Sin(float64(j) / 3)
		}
	}
	ts[0] = make([]float64, 30) // constant voxel is never sampled

	c, err := WholeBrainCorrelation(ts, 0.1, NewRand(7))
	require.NoError(t, err)
	r, _ := c.Matrix.Dims()
	assert.Equal(t, 19, r)
	assert.InDelta(t, 1.0, c.Mean, 1e-9)
	assert.InDelta(t, 0.0, c.SD, 1e-9)

	again, err := WholeBrainCorrelation(ts, 0.1, NewRand(7))
	require.NoError(t, err)
	assert.Equal(t, c.Mean, again.Mean)

	_, err = WholeBrainCorrelation(ts[:5], 0.1, NewRand(1))
	assert.ErrorIs(t, err, ErrTooFewVoxels)
}

func TestWholeBrainSpectra(t *testing.T) {
	const nt = 64
	ts := make([][]float64, 3)
	for i := range ts {
		ts[i] = make([]float64, nt)
		for j := range ts[i] {
			// linear trend plus a tone at bin 8
			ts[i][j] = 5*float64(j) + math.Cos(2*math.Pi*8*float64(j)/nt)
		}
	}

	s, err := WholeBrainSpectra(ts, SamplingRate)
	require.NoError(t, err)
	require.Len(t, s.Freq, nt/2+1)
	assert.InDelta(t, 8*SamplingRate/nt, s.Freq[8], 1e-12)

	peak := 0
	for k := range s.Mean {
		if s.Mean[k] > s.Mean[peak] {
			peak = k
		}
	}
	assert.Equal(t, 8, peak)
	assert.InDelta(t, 0.0, s.SD[8], 1e-9)
}

func TestPlots(t *testing.T) {
	dir := t.TempDir()

	s := constantSeries(5, 8, 8, 12, 10)
	r, err := DetectSpikes(s, nil)
	require.NoError(t, err)
	require.NoError(t, PlotSpikes(r, "X_RST_04 spikes", filepath.Join(dir, "spikes.png")))

	d, err := FramewiseDisplacement([][]float64{{0, 0, 0}, {0.1, 0, 0}, {0.2, 0.1, 0}})
	require.NoError(t, err)
	require.NoError(t, FunctionalFigure(nil, d, nil, "X_RST_04", filepath.Join(dir, "fmri.png")))

	for _, name := range []string{"spikes.png", "fmri.png"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err)
	}
}

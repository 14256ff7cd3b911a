package diag

import (
	"math"

	"github.com/rotisserie/eris"
)

// Mode selects how a montage steps through its input
type Mode int

const (
	// Spatial steps through slices of one volume
	Spatial Mode = iota
	// Temporal shows the middle slice at every time point
	Temporal
)

func (m Mode) String() string {
	if m == Temporal {
		return "temporal"
	}
	return "spatial"
}

// SpatialPanels is the number of slices in a spatial montage (6x6 grid)
const SpatialPanels = 36

// MontageOptions controls panel selection and windowing.
// MinFrac and MaxFrac place the display window as fractions of the observed
// intensity range: 0 and 1 show the full range.
type MontageOptions struct {
	Title    string
	Name     string
	Colormap Colormap
	MinFrac  float64
	MaxFrac  float64
	Box      *Box // spatial only; found automatically when nil
}

// Panel is one cell of a montage grid
type Panel struct {
	Plane *Plane
	Blank bool
}

// Montage is a grid of panels ready for rendering
type Montage struct {
	Mode     Mode
	Grid     int
	Panels   []Panel
	Min, Max float64
	Title    string
	Name     string
	Colormap Colormap
}

// Window converts range fractions to absolute display limits
func Window(lo, hi, minFrac, maxFrac float64) (float64, float64) {
	if maxFrac <= 0 {
		maxFrac = 1
	}
	span := hi - lo
	return lo + span*minFrac, lo + span*maxFrac
}

// SpatialMontage lays out SpatialPanels evenly spaced slices along the
// first axis of a reoriented volume, cropped to its bounding box. An
// all-zero volume is shown uncropped.
func SpatialMontage(v *Volume, opts MontageOptions) (*Montage, error) {
	if v == nil || len(v.Data) == 0 {
		return nil, eris.Wrap(ErrEmptyVolume, "spatial montage")
	}

	box := Full(v)
	if opts.Box != nil {
		box = *opts.Box
	} else if b, err := BoundingBox(v); err == nil {
		box = b
	}
	for a := 0; a < 3; a++ {
		if box[a][0] < 0 || box[a][1] >= v.Dims[a] || box[a][0] > box[a][1] {
			return nil, eris.Errorf("spatial montage: box %v outside volume %v", box, v.Dims)
		}
	}
	cropped := Crop(v, box)

	m := newMontage(Spatial, 6, opts)
	lo, hi := cropped.Range()
	m.Min, m.Max = Window(lo, hi, opts.MinFrac, opts.MaxFrac)

	for _, idx := range SliceSteps(cropped.Dims[0], SpatialPanels) {
		m.Panels = append(m.Panels, Panel{Plane: cropped.Slice(0, idx)})
	}
	return m, nil
}

// TemporalMontage shows the middle slice of the last axis of every time
// point on a ceil(sqrt(T)) square grid; trailing cells are blank.
func TemporalMontage(s *Series, opts MontageOptions) (*Montage, error) {
	if s == nil || s.T() == 0 {
		return nil, eris.Wrap(ErrEmptyVolume, "temporal montage")
	}

	grid := GridSize(s.T())
	mid := (s.Dims()[2] - 1) / 2

	m := newMontage(Temporal, grid, opts)
	lo, hi := s.Range()
	m.Min, m.Max = Window(lo, hi, opts.MinFrac, opts.MaxFrac)

	for i := 0; i < grid*grid; i++ {
		if i < s.T() {
			m.Panels = append(m.Panels, Panel{Plane: s.Vols[i].Slice(2, mid)})
		} else {
			m.Panels = append(m.Panels, Panel{Blank: true})
		}
	}
	return m, nil
}

func newMontage(mode Mode, grid int, opts MontageOptions) *Montage {
	cm := opts.Colormap
	if cm == nil {
		cm = Gray
	}
	return &Montage{
		Mode:     mode,
		Grid:     grid,
		Title:    opts.Title,
		Name:     opts.Name,
		Colormap: cm,
	}
}

// GridSize returns the side of the smallest square grid holding n cells
func GridSize(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Ceil(math.Sqrt(float64(n))))
}

// SliceSteps returns count indices spread evenly over [0, n-1], rounded
// half to even.
func SliceSteps(n, count int) []int {
	steps := make([]int, count)
	if count == 1 || n <= 1 {
		return steps
	}
	for i := range steps {
		steps[i] = int(math.RoundToEven(float64(i) * float64(n-1) / float64(count-1)))
	}
	return steps
}

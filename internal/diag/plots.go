package diag

import (
	"fmt"
	"image/color"
	"os"

	"github.com/rotisserie/eris"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/palette/moreland"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// heat maps are drawn one rectangle per cell; larger matrices are strided
const maxHeatMapCells = 256

var (
	black = color.Black
	red   = color.RGBA{R: 220, A: 255}
	band  = color.RGBA{A: 128}
)

// PlotSpikes renders one small time-series panel per slice, the regional
// mean as a line with the ±1 SD band shaded.
func PlotSpikes(r *SpikeReport, title, path string) error {
	grid := GridSize(len(r.Slices))
	if grid == 0 {
		return eris.Wrap(ErrEmptyVolume, "plot spikes")
	}

	var panels []*plot.Plot
	for _, tr := range r.Slices {
		p := plot.New()
		p.HideAxes()
		if len(tr.Mean) > 0 {
			if err := addBand(p, tr.Mean, tr.SD); err != nil {
				return err
			}
		}
		panels = append(panels, p)
	}

	size := vg.Length(grid) * vg.Inch
	return saveTiles(path, title, grid, grid, size, size, panels)
}

func addBand(p *plot.Plot, mean, sd []float64) error {
	upper := make(plotter.XYs, len(mean))
	lower := make(plotter.XYs, len(mean))
	line := make(plotter.XYs, len(mean))
	for t := range mean {
		line[t] = plotter.XY{X: float64(t), Y: mean[t]}
		upper[t] = plotter.XY{X: float64(t), Y: mean[t] + sd[t]}
		lower[len(mean)-1-t] = plotter.XY{X: float64(t), Y: mean[t] - sd[t]}
	}

	poly, err := plotter.NewPolygon(append(upper, lower...))
	if err != nil {
		return eris.Wrap(err, "plot: sd band")
	}
	poly.Color = band
	poly.LineStyle.Width = 0

	l, err := plotter.NewLine(line)
	if err != nil {
		return eris.Wrap(err, "plot: mean line")
	}
	l.Color = black

	p.Add(poly, l)
	return nil
}

// FunctionalFigure renders the whole-brain spectra, framewise displacement
// and correlation heat map of a functional run on one 2×2 figure. Any nil
// input leaves its panel empty.
func FunctionalFigure(spectrum *Spectrum, fd *Displacement, corr *Correlation, title, path string) error {
	var panels []*plot.Plot

	sp := plot.New()
	sp.Title.Text = "Whole-brain spectra mean, SD"
	sp.X.Label.Text = "Frequency (Hz)"
	sp.Y.Label.Text = "Power"
	if spectrum != nil {
		if err := addSpectra(sp, spectrum); err != nil {
			return err
		}
	}
	panels = append(panels, sp)

	mp := plot.New()
	mp.Title.Text = "Head motion"
	mp.X.Label.Text = "TR"
	mp.Y.Label.Text = "Framewise displacement (mm/TR)"
	if fd != nil {
		if err := addDisplacement(mp, fd); err != nil {
			return err
		}
	}
	panels = append(panels, mp)

	cp := plot.New()
	cp.X.Label.Text = "Voxel"
	cp.Y.Label.Text = "Voxel"
	cp.Title.Text = "Whole-brain r"
	if corr != nil {
		cp.Title.Text = fmt.Sprintf("Whole-brain r mean=%.4f, SD=%.4f", corr.Mean, corr.SD)
		addHeatMap(cp, corr.Matrix)
	}
	panels = append(panels, cp)

	return saveTiles(path, title, 2, 2, 8*vg.Inch, 7*vg.Inch, panels)
}

func addSpectra(p *plot.Plot, s *Spectrum) error {
	mean := make(plotter.XYs, len(s.Freq))
	hi := make(plotter.XYs, len(s.Freq))
	lo := make(plotter.XYs, len(s.Freq))
	for k, f := range s.Freq {
		mean[k] = plotter.XY{X: f, Y: s.Mean[k]}
		hi[k] = plotter.XY{X: f, Y: s.Mean[k] + s.SD[k]}
		lo[k] = plotter.XY{X: f, Y: s.Mean[k] - s.SD[k]}
	}

	m, err := plotter.NewLine(mean)
	if err != nil {
		return eris.Wrap(err, "plot: spectra")
	}
	m.Color = black
	m.Width = vg.Points(2)
	p.Add(m)

	for _, xy := range []plotter.XYs{hi, lo} {
		l, err := plotter.NewLine(xy)
		if err != nil {
			return eris.Wrap(err, "plot: spectra")
		}
		l.Color = black
		l.Width = vg.Points(0.5)
		l.Dashes = []vg.Length{vg.Points(3), vg.Points(2)}
		p.Add(l)
	}
	return nil
}

func addDisplacement(p *plot.Plot, d *Displacement) error {
	xy := make(plotter.XYs, len(d.FD))
	for t, v := range d.FD {
		xy[t] = plotter.XY{X: float64(t), Y: v}
	}
	p.X.Min, p.X.Max = -3, float64(len(d.FD)+3)
	p.Y.Min, p.Y.Max = 0, 2

	if len(xy) > 0 {
		l, err := plotter.NewLine(xy)
		if err != nil {
			return eris.Wrap(err, "plot: displacement")
		}
		l.Color = black
		p.Add(l)
	}

	th, err := plotter.NewLine(plotter.XYs{{X: p.X.Min, Y: FDThreshold}, {X: p.X.Max, Y: FDThreshold}})
	if err != nil {
		return eris.Wrap(err, "plot: threshold")
	}
	th.Color = red
	p.Add(th)
	return nil
}

func addHeatMap(p *plot.Plot, m *mat.SymDense) {
	cm := moreland.SmoothBlueRed()
	cm.SetMin(-1)
	cm.SetMax(1)

	h := plotter.NewHeatMap(newStridedGrid(m, maxHeatMapCells), cm.Palette(255))
	h.Min, h.Max = -1, 1
	p.Add(h)
	p.HideAxes()
}

// stridedGrid exposes a square matrix to plotter.HeatMap, sampling every
// step-th row and column.
type stridedGrid struct {
	m    mat.Matrix
	n    int
	step int
}

func newStridedGrid(m mat.Matrix, limit int) stridedGrid {
	r, _ := m.Dims()
	step := 1
	for r/step > limit {
		step++
	}
	return stridedGrid{m: m, n: r / step, step: step}
}

func (g stridedGrid) Dims() (c, r int)   { return g.n, g.n }
func (g stridedGrid) Z(c, r int) float64 { return g.m.At(r*g.step, c*g.step) }
func (g stridedGrid) X(c int) float64    { return float64(c * g.step) }
func (g stridedGrid) Y(r int) float64    { return float64(r * g.step) }

// saveTiles draws plots row by row onto a rows×cols grid under a common
// title and writes a PNG.
func saveTiles(path, title string, rows, cols int, width, height vg.Length, plots []*plot.Plot) error {
	img := vgimg.New(width, height)
	dc := draw.New(img)

	heading := plot.New()
	heading.Title.Text = title
	heading.HideAxes()
	heading.Draw(dc)

	tiles := draw.Tiles{
		Rows:   rows,
		Cols:   cols,
		PadX:   vg.Millimeter,
		PadY:   vg.Millimeter,
		PadTop: vg.Points(24),
	}
	for i, p := range plots {
		if i >= rows*cols {
			break
		}
		p.Draw(tiles.At(dc, i%cols, i/cols))
	}

	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "diag: create %s", path)
	}
	if _, err := (vgimg.PngCanvas{Canvas: img}).WriteTo(f); err != nil {
		f.Close()
		return eris.Wrapf(err, "diag: encode %s", path)
	}
	return f.Close()
}

package diag

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	tileSize      = 96
	titleHeight   = 36
	colorbarWidth = 64
	colorbarStrip = 14
)

// Render draws the montage: title on top, panels on a square grid and a
// colorbar on the right.
func (m *Montage) Render() *image.RGBA {
	gridPx := m.Grid * tileSize
	img := image.NewRGBA(image.Rect(0, 0, gridPx+colorbarWidth, gridPx+titleHeight))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)

	for i, p := range m.Panels {
		if p.Blank || p.Plane == nil {
			continue
		}
		row, col := i/m.Grid, i%m.Grid
		tile := image.Rect(col*tileSize, titleHeight+row*tileSize, (col+1)*tileSize, titleHeight+(row+1)*tileSize)
		drawPanel(img, tile, p.Plane, m.Min, m.Max, m.Colormap)
	}

	drawColorbar(img, image.Rect(gridPx+8, titleHeight+gridPx/10, gridPx+8+colorbarStrip, titleHeight+gridPx*8/10), m.Min, m.Max, m.Colormap)

	drawCentered(img, m.Title, img.Bounds().Dx()/2, 14)
	drawCentered(img, m.Name, img.Bounds().Dx()/2, 30)
	return img
}

// WritePNG renders the montage to path
func (m *Montage) WritePNG(path string) error {
	return WritePNG(path, m.Render())
}

// WritePNG encodes img to path
func WritePNG(path string, img image.Image) error {
	f, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "diag: create %s", path)
	}
	if err := png.Encode(f, img); err != nil {
		f.Close()
		return eris.Wrapf(err, "diag: encode %s", path)
	}
	return f.Close()
}

// drawPanel color maps a plane and scales it, aspect preserved, into tile
func drawPanel(dst *image.RGBA, tile image.Rectangle, p *Plane, lo, hi float64, cm Colormap) {
	src := image.NewRGBA(image.Rect(0, 0, p.Cols, p.Rows))
	for r := 0; r < p.Rows; r++ {
		for c := 0; c < p.Cols; c++ {
			src.Set(c, r, cm.At(normalize(p.At(r, c), lo, hi)))
		}
	}

	w, h := tile.Dx(), tile.Dy()
	if p.Cols*h > p.Rows*w {
		h = p.Rows * w / p.Cols
	} else {
		w = p.Cols * h / p.Rows
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	x0 := tile.Min.X + (tile.Dx()-w)/2
	y0 := tile.Min.Y + (tile.Dy()-h)/2
	draw.NearestNeighbor.Scale(dst, image.Rect(x0, y0, x0+w, y0+h), src, src.Bounds(), draw.Src, nil)
}

func drawColorbar(dst *image.RGBA, strip image.Rectangle, lo, hi float64, cm Colormap) {
	h := strip.Dy()
	for y := 0; y < h; y++ {
		c := cm.At(1 - float64(y)/float64(max(h-1, 1)))
		for x := strip.Min.X; x < strip.Max.X; x++ {
			dst.Set(x, strip.Min.Y+y, c)
		}
	}
	drawText(dst, formatTick(hi), strip.Max.X+3, strip.Min.Y+10)
	drawText(dst, formatTick(lo), strip.Max.X+3, strip.Max.Y)
}

func formatTick(v float64) string {
	return strconv.FormatFloat(v, 'g', 4, 64)
}

func drawText(dst *image.RGBA, s string, x, y int) {
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(color.Black),
		Face: basicfont.Face7x13,
		Dot:  fixed.P(x, y),
	}
	d.DrawString(s)
}

func drawCentered(dst *image.RGBA, s string, cx, y int) {
	if s == "" {
		return
	}
	w := font.MeasureString(basicfont.Face7x13, s).Ceil()
	x := cx - w/2
	if x < 2 {
		x = 2
	}
	drawText(dst, s, x, y)
}

func normalize(v, lo, hi float64) float64 {
	if hi <= lo {
		if v > lo {
			return 1
		}
		return 0
	}
	return (v - lo) / (hi - lo)
}

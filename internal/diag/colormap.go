package diag

import (
	"image/color"
	"math"

	"gonum.org/v1/plot/palette"
	"gonum.org/v1/plot/palette/moreland"
)

// Colormap maps a normalized value in [0, 1] to a color
type Colormap interface {
	At(v float64) color.Color
	Name() string
}

type grayMap struct{}

func (grayMap) At(v float64) color.Color {
	return color.Gray{Y: uint8(math.Round(clamp01(v) * 255))}
}

func (grayMap) Name() string { return "gray" }

type paletteMap struct {
	name string
	cm   palette.ColorMap
}

func newPaletteMap(name string, cm palette.ColorMap) *paletteMap {
	cm.SetMin(0)
	cm.SetMax(1)
	return &paletteMap{name: name, cm: cm}
}

func (p *paletteMap) At(v float64) color.Color {
	c, err := p.cm.At(clamp01(v))
	if err != nil {
		return color.Black
	}
	return c
}

func (p *paletteMap) Name() string { return p.name }

// Colormaps available to montages
var (
	Gray    Colormap = grayMap{}
	Hot     Colormap = newPaletteMap("hot", moreland.BlackBody())
	RedBlue Colormap = newPaletteMap("redblue", moreland.SmoothBlueRed())
)

// ColormapByName resolves a colormap name, defaulting to Gray
func ColormapByName(name string) Colormap {
	switch name {
	case "hot":
		return Hot
	case "redblue":
		return RedBlue
	default:
		return Gray
	}
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

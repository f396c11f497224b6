package plotting

// Package plotting renders the pipeline's figures with gonum/plot. Every
// figure type is a struct carrying its inputs and an output path, with a
// Plot method that writes a PNG.

import (
	"errors"
	"image/color"
	"os"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// ErrShapeMismatch is returned when parallel inputs differ in length.
var ErrShapeMismatch = errors.New("plotting: input lengths differ")

var thresholdColor = color.RGBA{R: 0xC0, A: 0xFF}

// dashedLine styles a threshold guide line.
func dashedLine(ls *draw.LineStyle) {
	ls.Color = thresholdColor
	ls.Width = vg.Points(1)
	ls.Dashes = []vg.Length{vg.Points(4), vg.Points(3)}
}

// saveTiled draws a grid of plots onto one PNG canvas.
func saveTiled(plots [][]*plot.Plot, width, height vg.Length, path string) error {
	img := vgimg.New(width, height)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows: len(plots),
		Cols: len(plots[0]),
		PadX: vg.Millimeter * 2,
		PadY: vg.Millimeter * 2,
	}
	canvases := plot.Align(plots, tiles, dc)
	for i := range plots {
		for j := range plots[i] {
			if plots[i][j] != nil {
				plots[i][j].Draw(canvases[i][j])
			}
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		return err
	}
	return nil
}

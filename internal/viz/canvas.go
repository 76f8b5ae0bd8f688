package viz

import (
	"math"
	"strings"

	"github.com/emsim-dev/emsim/internal/grid"
)

// Braille patterns: 2x4 dots per cell
// 1 4
// 2 5
// 3 6
// 7 8
//
// Unicode offset 0x2800
var pixelMap = [4][2]int{
	{0x1, 0x8},
	{0x2, 0x10},
	{0x4, 0x20},
	{0x40, 0x80},
}

// Canvas is a braille drawing surface. Each character cell holds a 2x4
// block of sub-pixels.
type Canvas struct {
	Width, Height int
	Grid          [][]rune
}

func NewCanvas(w, h int) *Canvas {
	c := &Canvas{
		Width:  w,
		Height: h,
		Grid:   make([][]rune, h),
	}
	for i := range c.Grid {
		c.Grid[i] = make([]rune, w)
		for j := range c.Grid[i] {
			c.Grid[i][j] = 0x2800
		}
	}
	return c
}

// Set turns on the sub-pixel at (x, y). The canvas size in sub-pixels is
// (Width*2) x (Height*4).
func (c *Canvas) Set(x, y int) {
	if x < 0 || y < 0 {
		return
	}
	col := x / 2
	row := y / 4
	if col >= c.Width || row >= c.Height {
		return
	}
	c.Grid[row][col] |= rune(pixelMap[y%4][x%2])
}

// DrawLine draws a line in sub-pixel coordinates using Bresenham's
// algorithm.
func (c *Canvas) DrawLine(x0, y0, x1, y1 int) {
	dx := absInt(x1 - x0)
	dy := absInt(y1 - y0)
	sx := -1
	if x0 < x1 {
		sx = 1
	}
	sy := -1
	if y0 < y1 {
		sy = 1
	}
	err := dx - dy

	for {
		c.Set(x0, y0)
		if x0 == x1 && y0 == y1 {
			break
		}
		e2 := 2 * err
		if e2 > -dy {
			err -= dy
			x0 += sx
		}
		if e2 < dx {
			err += dx
			y0 += sy
		}
	}
}

func (c *Canvas) String() string {
	var b strings.Builder
	for _, row := range c.Grid {
		b.WriteString(string(row) + "\n")
	}
	return b.String()
}

var shadeRamp = []rune(" ░▒▓█")

// Heatmap renders a real image as a shaded character grid, normalized to
// the image maximum. Each input pixel maps to one character cell, so
// callers should downsample large images first.
func Heatmap(img *grid.Real2D) string {
	max := 0.0
	for _, v := range img.Data {
		if a := math.Abs(v); a > max {
			max = a
		}
	}
	var b strings.Builder
	for j := 0; j < img.Rows; j++ {
		for i := 0; i < img.Cols; i++ {
			level := 0
			if max > 0 {
				level = int(math.Abs(img.At(j, i)) / max * float64(len(shadeRamp)-1))
				if level >= len(shadeRamp) {
					level = len(shadeRamp) - 1
				}
			}
			b.WriteRune(shadeRamp[level])
			b.WriteRune(shadeRamp[level])
		}
		b.WriteByte('\n')
	}
	return b.String()
}

// VectorField draws a grid of arrows for a 2-component field, such as a
// center-of-mass deflection map. vy and vx must have the same shape. The
// arrows are scaled to the largest magnitude in the field.
func VectorField(vy, vx *grid.Real2D, cellPx int) string {
	if cellPx < 4 {
		cellPx = 4
	}
	max := 0.0
	for i := range vy.Data {
		if m := math.Hypot(vy.Data[i], vx.Data[i]); m > max {
			max = m
		}
	}
	c := NewCanvas(vy.Cols*cellPx/2, vy.Rows*cellPx/4)
	half := float64(cellPx) / 2
	for j := 0; j < vy.Rows; j++ {
		for i := 0; i < vy.Cols; i++ {
			cx := float64(i*cellPx) + half
			cy := float64(j*cellPx) + half
			if max == 0 {
				c.Set(int(cx), int(cy))
				continue
			}
			scale := half / max
			ex := cx + vx.At(j, i)*scale
			ey := cy + vy.At(j, i)*scale
			c.DrawLine(int(cx), int(cy), int(ex), int(ey))
		}
	}
	return c.String()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

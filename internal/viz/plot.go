package viz

import (
	"fmt"

	"github.com/guptarohit/asciigraph"

	"github.com/emsim-dev/emsim/internal/grid"
)

// binMeans averages a [ny][nx][bins] dataset over the scan, one value per
// detector bin.
func binMeans(out *grid.Real3D) []float64 {
	data := make([]float64, out.D2)
	n := float64(out.D0 * out.D1)
	for j := 0; j < out.D0; j++ {
		for i := 0; i < out.D1; i++ {
			for k := 0; k < out.D2; k++ {
				data[k] += out.At(j, i, k)
			}
		}
	}
	for k := range data {
		data[k] /= n
	}
	return data
}

// BinProfile plots mean intensity per detector bin for a [ny][nx][bins]
// dataset.
func BinProfile(out *grid.Real3D, caption string) string {
	return asciigraph.Plot(binMeans(out),
		asciigraph.Height(10),
		asciigraph.Width(72),
		asciigraph.Caption(caption),
	)
}

// LineTrace plots intensity along one scan row of a single detector bin.
func LineTrace(out *grid.Real3D, bin, row int) string {
	data := make([]float64, out.D1)
	for i := 0; i < out.D1; i++ {
		data[i] = out.At(row, i, bin)
	}
	return asciigraph.Plot(data,
		asciigraph.Height(10),
		asciigraph.Width(72),
		asciigraph.Caption(fmt.Sprintf("bin %d, row %d", bin, row)),
	)
}

// BinImage extracts the scan image of one detector bin.
func BinImage(out *grid.Real3D, bin int) *grid.Real2D {
	img := grid.NewReal2D(out.D0, out.D1)
	for j := 0; j < out.D0; j++ {
		for i := 0; i < out.D1; i++ {
			img.Set(j, i, out.At(j, i, bin))
		}
	}
	return img
}

// Integrated sums a [ny][nx][bins] dataset over a half-open bin range,
// producing a scan image suitable for Heatmap.
func Integrated(out *grid.Real3D, lo, hi int) *grid.Real2D {
	if lo < 0 {
		lo = 0
	}
	if hi > out.D2 || hi <= 0 {
		hi = out.D2
	}
	img := grid.NewReal2D(out.D0, out.D1)
	for j := 0; j < out.D0; j++ {
		for i := 0; i < out.D1; i++ {
			sum := 0.0
			for k := lo; k < hi; k++ {
				sum += out.At(j, i, k)
			}
			img.Set(j, i, sum)
		}
	}
	return img
}

// Downsample reduces an image to at most maxCols columns by block
// averaging, preserving aspect ratio.
func Downsample(img *grid.Real2D, maxCols int) *grid.Real2D {
	if img.Cols <= maxCols {
		return img
	}
	factor := (img.Cols + maxCols - 1) / maxCols
	rows := (img.Rows + factor - 1) / factor
	cols := (img.Cols + factor - 1) / factor
	out := grid.NewReal2D(rows, cols)
	counts := make([]int, rows*cols)
	for j := 0; j < img.Rows; j++ {
		for i := 0; i < img.Cols; i++ {
			oj, oi := j/factor, i/factor
			out.Add(oj, oi, img.At(j, i))
			counts[oj*cols+oi]++
		}
	}
	for i := range out.Data {
		if counts[i] > 0 {
			out.Data[i] /= float64(counts[i])
		}
	}
	return out
}

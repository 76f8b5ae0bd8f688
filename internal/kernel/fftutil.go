package kernel

import (
	"math"

	"github.com/mjibson/go-dsp/fft"

	"github.com/emsim-dev/emsim/internal/grid"
)

func toRows(a *grid.Cplx2D) [][]complex128 {
	rows := make([][]complex128, a.Rows)
	for j := 0; j < a.Rows; j++ {
		rows[j] = a.Data[j*a.Cols : (j+1)*a.Cols]
	}
	return rows
}

func fromRows(rows [][]complex128) *grid.Cplx2D {
	out := grid.NewCplx2D(len(rows), len(rows[0]))
	for j, row := range rows {
		copy(out.Data[j*out.Cols:], row)
	}
	return out
}

// FFT2 computes the 2D forward transform.
func FFT2(a *grid.Cplx2D) *grid.Cplx2D { return fromRows(fft.FFT2(toRows(a))) }

// IFFT2 computes the 2D inverse transform, including the 1/N scaling.
func IFFT2(a *grid.Cplx2D) *grid.Cplx2D { return fromRows(fft.IFFT2(toRows(a))) }

// Norm returns the L2 norm of the array.
func Norm(a *grid.Cplx2D) float64 {
	sum := 0.0
	for _, v := range a.Data {
		sum += real(v)*real(v) + imag(v)*imag(v)
	}
	return math.Sqrt(sum)
}

// Normalize scales the array to unit L2 norm in place.
func Normalize(a *grid.Cplx2D) {
	n := Norm(a)
	if n == 0 {
		return
	}
	s := complex(1.0/n, 0)
	for p := range a.Data {
		a.Data[p] *= s
	}
}

package grid

import "math"

// Real2D is a dense row-major 2D array backed by a flat slice.
type Real2D struct {
	Rows, Cols int
	Data       []float64
}

func NewReal2D(rows, cols int) *Real2D {
	return &Real2D{Rows: rows, Cols: cols, Data: make([]float64, rows*cols)}
}

func (a *Real2D) At(j, i int) float64     { return a.Data[j*a.Cols+i] }
func (a *Real2D) Set(j, i int, v float64) { a.Data[j*a.Cols+i] = v }
func (a *Real2D) Add(j, i int, v float64) { a.Data[j*a.Cols+i] += v }

func (a *Real2D) Clone() *Real2D {
	c := NewReal2D(a.Rows, a.Cols)
	copy(c.Data, a.Data)
	return c
}

func (a *Real2D) SameShape(b *Real2D) bool {
	return b != nil && a.Rows == b.Rows && a.Cols == b.Cols
}

// Cplx2D is a dense row-major complex 2D array.
type Cplx2D struct {
	Rows, Cols int
	Data       []complex128
}

func NewCplx2D(rows, cols int) *Cplx2D {
	return &Cplx2D{Rows: rows, Cols: cols, Data: make([]complex128, rows*cols)}
}

func (a *Cplx2D) At(j, i int) complex128     { return a.Data[j*a.Cols+i] }
func (a *Cplx2D) Set(j, i int, v complex128) { a.Data[j*a.Cols+i] = v }

func (a *Cplx2D) Clone() *Cplx2D {
	c := NewCplx2D(a.Rows, a.Cols)
	copy(c.Data, a.Data)
	return c
}

// Real3D is a dense 3D array, slowest dimension first.
type Real3D struct {
	D0, D1, D2 int
	Data       []float64
}

func NewReal3D(d0, d1, d2 int) *Real3D {
	return &Real3D{D0: d0, D1: d1, D2: d2, Data: make([]float64, d0*d1*d2)}
}

func (a *Real3D) At(k, j, i int) float64     { return a.Data[(k*a.D1+j)*a.D2+i] }
func (a *Real3D) Set(k, j, i int, v float64) { a.Data[(k*a.D1+j)*a.D2+i] = v }
func (a *Real3D) Add(k, j, i int, v float64) { a.Data[(k*a.D1+j)*a.D2+i] += v }

// Slice returns the j*i plane at index k as a view, not a copy.
func (a *Real3D) Slice(k int) *Real2D {
	off := k * a.D1 * a.D2
	return &Real2D{Rows: a.D1, Cols: a.D2, Data: a.Data[off : off+a.D1*a.D2]}
}

// Cplx3D is a dense complex 3D array, slowest dimension first.
type Cplx3D struct {
	D0, D1, D2 int
	Data       []complex128
}

func NewCplx3D(d0, d1, d2 int) *Cplx3D {
	return &Cplx3D{D0: d0, D1: d1, D2: d2, Data: make([]complex128, d0*d1*d2)}
}

func (a *Cplx3D) At(k, j, i int) complex128     { return a.Data[(k*a.D1+j)*a.D2+i] }
func (a *Cplx3D) Set(k, j, i int, v complex128) { a.Data[(k*a.D1+j)*a.D2+i] = v }

func (a *Cplx3D) Slice(k int) *Cplx2D {
	off := k * a.D1 * a.D2
	return &Cplx2D{Rows: a.D1, Cols: a.D2, Data: a.Data[off : off+a.D1*a.D2]}
}

// MaxAbs returns the largest absolute value in the array.
func (a *Real2D) MaxAbs() float64 {
	m := 0.0
	for _, v := range a.Data {
		if av := math.Abs(v); av > m {
			m = av
		}
	}
	return m
}
